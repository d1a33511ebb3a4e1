package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/client"
	"github.com/stackit-dev/stackit/internal/config"
	"github.com/stackit-dev/stackit/internal/di"
	"github.com/stackit-dev/stackit/internal/model"
)

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Token    string `json:"token"`
	TokenExp string `json:"token_expires"`
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		runServer()
		return
	}

	cmd := os.Args[1]

	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println("stackit v0.1.0")
		return
	}

	if strings.HasPrefix(cmd, "-") {
		runServer()
		return
	}

	args := os.Args[2:]

	switch cmd {
	case "server", "serve":
		runServer()
	case "create-admin":
		cmdCreateAdmin(args)
	case "register":
		cmdRegister(args)
	case "login", "auth":
		cmdLogin(args)
	case "ask":
		cmdAsk(args)
	case "answer":
		cmdAnswer(args)
	case "comment":
		cmdComment(args)
	case "accept":
		cmdAccept(args)
	case "vote":
		cmdVote(args)
	case "upload":
		cmdUpload(args)
	case "read", "list":
		cmdRead(args)
	case "status", "whoami":
		cmdStatus(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`stackit - moderated Q&A backend

Usage: stackit <command> [options]

Client Commands:
  register            Create an account and log in
  login               Get a fresh token
  ask                 Ask a question
  answer              Answer a question
  comment             Comment on an answer
  accept              Accept an answer to your question
  vote                Vote on a question or answer
  upload              Upload an image and print its URL
  read                List questions, or show one with its answers
  status              Show current config and token status

Server:
  server              Start the Stackit server (default if no command)
  create-admin        Create an ADMIN user directly in the database

Examples:
  stackit register --username gopher --email gopher@example.com --password '...'
  stackit ask --title "Closing channels" --body "Who should close?" --tags go,channels
  stackit answer --question 12 --body "Only the sender."
  stackit accept --answer 31
  stackit vote --answer 31 --up
  stackit read --tag go --limit 10

Environment Variables (server):
  STACKIT_CONFIG            YAML config file, watched for changes
  STACKIT_ADDR              Listen address (default: :8080)
  STACKIT_DB_DRIVER         sqlite or postgres (default: sqlite)
  STACKIT_DB                SQLite path (default: stackit.db)
  STACKIT_DB_DSN            Postgres connection string
  STACKIT_MODERATION_URL    Moderation service base URL
  STACKIT_MODERATION_ENABLED  Set to false to skip screening
  STACKIT_JWT_SECRET        Token signing secret (required in production)
  STACKIT_STORAGE           disk or supabase (default: disk)`)
}

// ============================================================================
// SERVER
// ============================================================================

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	container, cleanup, err := di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer cleanup()
	logger := container.Logger
	defer func() { _ = logger.Sync() }()

	if cfg.Path() != "" {
		watcher, err := config.NewWatcher(cfg, logger)
		if err != nil {
			logger.Warn("config watcher disabled", zap.Error(err))
		} else {
			defer watcher.Stop()
			watcher.OnChange(func(next config.Config) {
				container.Gateway.SetEnabled(next.Moderation.Enabled)
			})
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           container.Server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("stackit listening",
			zap.String("addr", cfg.Addr),
			zap.String("env", cfg.Environment),
			zap.Bool("moderation", container.Gateway.Enabled()),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTTL)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func cmdCreateAdmin(args []string) {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	username := fs.String("username", "", "Username (required)")
	email := fs.String("email", "", "Email (required)")
	password := fs.String("password", "", "Password (required, 8+ chars)")
	fs.Parse(args)

	if *username == "" || *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Error: --username, --email and --password are required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	container, cleanup, err := di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	user, err := container.Accounts.Register(context.Background(), *username, *email, *password, model.RoleAdmin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Created admin '%s' (user %d)\n", user.Username, user.ID)
}

// ============================================================================
// CLIENT COMMANDS
// ============================================================================

func cmdRegister(args []string) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	username := fs.String("username", "", "Username (required)")
	email := fs.String("email", "", "Email (required)")
	password := fs.String("password", "", "Password (required, 8+ chars)")
	url := fs.String("url", "http://localhost:8080", "Stackit server URL")
	fs.Parse(args)

	if *username == "" || *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Error: --username, --email and --password are required")
		os.Exit(1)
	}

	ctx := context.Background()
	c := client.New(*url)
	user, err := c.Register(ctx, *username, *email, *password)
	if err != nil {
		fail(err)
	}
	fmt.Printf("✓ Registered '%s' (user %d)\n", user.Username, user.ID)

	if err := c.Login(ctx, *username, *password); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: auto-login failed: %v\n", err)
		fmt.Println("Run 'stackit login' to authenticate")
		return
	}
	saveSession(c, *username)
}

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "Username (defaults to the saved one)")
	password := fs.String("password", "", "Password (required)")
	url := fs.String("url", "", "Stackit server URL (defaults to the saved one)")
	fs.Parse(args)

	saved, _ := loadCLIConfig()
	if *username == "" {
		*username = saved.Username
	}
	if *url == "" {
		*url = saved.BaseURL
	}
	if *url == "" {
		*url = "http://localhost:8080"
	}
	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Error: --username and --password are required")
		os.Exit(1)
	}

	c := client.New(*url)
	if err := c.Login(context.Background(), *username, *password); err != nil {
		fail(err)
	}
	saveSession(c, *username)
}

func cmdAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	title := fs.String("title", "", "Question title (required)")
	body := fs.String("body", "", "Question body (required)")
	tags := fs.String("tags", "", "Comma-separated tags")
	images := fs.String("images", "", "Comma-separated image URLs")
	fs.Parse(args)

	if *title == "" || *body == "" {
		fmt.Fprintln(os.Stderr, "Error: --title and --body are required")
		os.Exit(1)
	}

	c := mustClient()
	q, err := c.AskQuestion(context.Background(), *title, *body, splitList(*images), splitList(*tags))
	if err != nil {
		fail(err)
	}
	fmt.Printf("✓ Asked: %s\n", q.Title)
	fmt.Printf("  ID: %d\n", q.ID)
}

func cmdAnswer(args []string) {
	fs := flag.NewFlagSet("answer", flag.ExitOnError)
	questionID := fs.Int64("question", 0, "Question ID (required)")
	body := fs.String("body", "", "Answer body (required)")
	images := fs.String("images", "", "Comma-separated image URLs")
	fs.Parse(args)

	if *questionID == 0 || *body == "" {
		fmt.Fprintln(os.Stderr, "Error: --question and --body are required")
		os.Exit(1)
	}

	c := mustClient()
	a, err := c.PostAnswer(context.Background(), *questionID, *body, splitList(*images))
	if err != nil {
		fail(err)
	}
	fmt.Printf("✓ Answered question %d\n", *questionID)
	fmt.Printf("  ID: %d\n", a.ID)
}

func cmdComment(args []string) {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	answerID := fs.Int64("answer", 0, "Answer ID (required)")
	body := fs.String("body", "", "Comment body (required)")
	fs.Parse(args)

	if *answerID == 0 || *body == "" {
		fmt.Fprintln(os.Stderr, "Error: --answer and --body are required")
		os.Exit(1)
	}

	c := mustClient()
	cm, err := c.PostComment(context.Background(), *answerID, *body, nil)
	if err != nil {
		fail(err)
	}
	fmt.Printf("✓ Commented on answer %d\n", *answerID)
	fmt.Printf("  ID: %d\n", cm.ID)
}

func cmdAccept(args []string) {
	fs := flag.NewFlagSet("accept", flag.ExitOnError)
	answerID := fs.Int64("answer", 0, "Answer ID (required)")
	fs.Parse(args)

	if *answerID == 0 {
		fmt.Fprintln(os.Stderr, "Error: --answer is required")
		os.Exit(1)
	}

	c := mustClient()
	a, err := c.Accept(context.Background(), *answerID)
	if err != nil {
		fail(err)
	}
	fmt.Printf("✓ Accepted answer %d on question %d\n", a.ID, a.QuestionID)
}

func cmdVote(args []string) {
	fs := flag.NewFlagSet("vote", flag.ExitOnError)
	questionID := fs.Int64("question", 0, "Question ID")
	answerID := fs.Int64("answer", 0, "Answer ID")
	up := fs.Bool("up", false, "Upvote")
	down := fs.Bool("down", false, "Downvote")
	withdraw := fs.Bool("clear", false, "Withdraw your vote")
	fs.Parse(args)

	if (*questionID == 0 && *answerID == 0) || (*questionID != 0 && *answerID != 0) {
		fmt.Fprintln(os.Stderr, "Error: provide exactly one of --question or --answer")
		os.Exit(1)
	}
	chosen := 0
	for _, b := range []bool{*up, *down, *withdraw} {
		if b {
			chosen++
		}
	}
	if chosen != 1 {
		fmt.Fprintln(os.Stderr, "Error: provide exactly one of --up, --down or --clear")
		os.Exit(1)
	}

	target, id := model.VoteTargetQuestion, *questionID
	if *answerID != 0 {
		target, id = model.VoteTargetAnswer, *answerID
	}
	value := 0
	switch {
	case *up:
		value = 1
	case *down:
		value = -1
	}

	c := mustClient()
	score, err := c.Vote(context.Background(), target, id, value)
	if err != nil {
		fail(err)
	}
	fmt.Printf("✓ Voted on %s %d (score %d)\n", target, id, score)
}

func cmdUpload(args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	kind := fs.String("kind", "question", "avatar, question, answer or comment")
	path := fs.String("file", "", "Image file (required)")
	fs.Parse(args)

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		os.Exit(1)
	}
	data, err := os.ReadFile(*path)
	if err != nil {
		fail(err)
	}

	c := mustClient()
	url, err := c.Upload(context.Background(), *kind, filepath.Base(*path), data)
	if err != nil {
		fail(err)
	}
	fmt.Println(url)
}

func cmdRead(args []string) {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	questionID := fs.Int64("question", 0, "Show one question with its answers")
	tag := fs.String("tag", "", "Filter by tag")
	limit := fs.Int("limit", 20, "Number of questions")
	fs.Parse(args)

	cfg, _ := loadCLIConfig()
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:8080"
	}
	c := client.New(base)
	ctx := context.Background()

	if *questionID != 0 {
		q, err := c.GetQuestion(ctx, *questionID)
		if err != nil {
			fail(err)
		}
		fmt.Printf("[%d] %s  (score %d, %d views)\n", q.ID, q.Title, q.Score, q.ViewCount)
		fmt.Printf("%s\n\n", q.Body)
		answers, err := c.Answers(ctx, q.ID)
		if err != nil {
			fail(err)
		}
		for _, a := range answers {
			mark := " "
			if a.Accepted {
				mark = "✓"
			}
			fmt.Printf("%s [%d] score %d\n  %s\n", mark, a.ID, a.Score, a.Body)
		}
		return
	}

	questions, err := c.ListQuestions(ctx, *tag, *limit)
	if err != nil {
		fail(err)
	}
	for _, q := range questions {
		names := make([]string, 0, len(q.Tags))
		for _, t := range q.Tags {
			names = append(names, t.Name)
		}
		fmt.Printf("[%d] %s  (score %d) %s\n", q.ID, q.Title, q.Score, strings.Join(names, ","))
	}
}

func cmdStatus(args []string) {
	cfg, err := loadCLIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Server:   %s\n", cfg.BaseURL)
	fmt.Printf("Username: %s\n", cfg.Username)
	if cfg.Token == "" {
		fmt.Println("Token:    none")
		return
	}
	fmt.Printf("Token:    expires %s\n", cfg.TokenExp)
}

// ============================================================================
// HELPERS
// ============================================================================

func fail(err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Blocked() {
		fmt.Fprintf(os.Stderr, "Blocked by moderation: %s\n", strings.Join(apiErr.Reasons(), ", "))
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func stackitDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".stackit")
}

func cliConfigPath() string {
	return filepath.Join(stackitDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, errors.New("not logged in - run 'stackit register' or 'stackit login'")
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	if err := os.MkdirAll(stackitDir(), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(cliConfigPath(), data, 0600)
}

func saveSession(c *client.Client, username string) {
	cfg := CLIConfig{
		BaseURL:  c.BaseURL,
		Username: username,
		Token:    c.Token,
		TokenExp: c.TokenExp.Format(time.RFC3339),
	}
	if err := saveCLIConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Logged in as '%s' (expires %s)\n", username, cfg.TokenExp)
}

func mustClient() *client.Client {
	cfg, err := loadCLIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Token == "" {
		fmt.Fprintln(os.Stderr, "Error: not authenticated - run 'stackit login'")
		os.Exit(1)
	}
	exp, _ := time.Parse(time.RFC3339, cfg.TokenExp)
	if time.Now().After(exp) {
		fmt.Fprintln(os.Stderr, "Error: token expired - run 'stackit login'")
		os.Exit(1)
	}
	c := client.New(cfg.BaseURL)
	c.Token = cfg.Token
	c.TokenExp = exp
	return c
}
