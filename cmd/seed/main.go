package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/stackit-dev/stackit/internal/client"
	"github.com/stackit-dev/stackit/internal/model"
)

const seedPassword = "seed-password-1"

var users = []string{"ada", "grace", "linus", "ken", "barbara"}

var questions = []struct {
	title string
	body  string
	tags  []string
}{
	{"Who should close a Go channel?", "I have several goroutines writing to one channel. Which of them closes it?", []string{"go", "concurrency"}},
	{"Difference between a slice and an array", "When does Go copy the backing array?", []string{"go"}},
	{"How do I cancel a long SQL query?", "The query keeps running after the HTTP client disconnects.", []string{"sql", "go", "context"}},
	{"Postgres row locks inside a transaction", "Does SELECT ... FOR UPDATE block plain readers?", []string{"postgres", "sql"}},
	{"Why is my Docker image 1GB?", "It is a small static binary, but the image is huge.", []string{"docker"}},
	{"Table-driven tests with subtests", "How do I name subtests so that -run can pick one?", []string{"go", "testing"}},
	{"Rate limiting per user", "Fixed window or token bucket for an API with bursts?", []string{"api", "design"}},
	{"Storing image URLs next to rows", "Array column or join table?", []string{"postgres", "design"}},
}

var answers = []string{
	"Only the sender closes. Receivers never close a channel they read from.",
	"Use a sync.WaitGroup and close after Wait returns.",
	"Pass the request context into QueryContext; cancellation propagates to the driver.",
	"Plain SELECTs are not blocked, only other locking reads and writes.",
	"Use a multi-stage build and copy the binary into a distroless image.",
	"t.Run takes the name; spaces become underscores in the -run pattern.",
	"A fixed window is simpler and good enough for most write endpoints.",
	"An array column is fine until you need to query by URL.",
}

var comments = []string{
	"This matches what the docs say.",
	"Could you add a short example?",
	"Worked for me, thanks.",
	"There is an edge case when the buffer is full.",
	"Upvoted, this saved me an hour.",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Stackit server URL")
	flag.Parse()

	ctx := context.Background()
	log.Printf("Seeding %s...\n", *baseURL)

	var clients []*client.Client
	for _, name := range users {
		c := client.New(*baseURL)
		if _, err := c.Register(ctx, name, name+"@example.com", seedPassword); err != nil {
			log.Printf("✗ Register %s: %v (trying login)", name, err)
		}
		if err := c.Login(ctx, name, seedPassword); err != nil {
			log.Fatalf("login %s: %v", name, err)
		}
		log.Printf("✓ User: %s", name)
		clients = append(clients, c)
	}

	type asked struct {
		id    int64
		owner int
	}
	var posted []asked
	for _, q := range questions {
		idx := rand.Intn(len(clients))
		question, err := clients[idx].AskQuestion(ctx, q.title, q.body, nil, q.tags)
		if err != nil {
			log.Printf("✗ Failed to ask: %v", err)
			continue
		}
		posted = append(posted, asked{id: question.ID, owner: idx})
		log.Printf("✓ Question #%d: %s (by %s)", question.ID, q.title, users[idx])
		time.Sleep(20 * time.Millisecond)
	}

	answerCount := 0
	for _, q := range posted {
		var answerIDs []int64
		for i := 0; i < rand.Intn(3)+1; i++ {
			idx := rand.Intn(len(clients))
			a, err := clients[idx].PostAnswer(ctx, q.id, answers[rand.Intn(len(answers))], nil)
			if err != nil {
				log.Printf("✗ Failed to answer: %v", err)
				continue
			}
			answerCount++
			answerIDs = append(answerIDs, a.ID)

			if rand.Float32() < 0.5 {
				cIdx := rand.Intn(len(clients))
				if _, err := clients[cIdx].PostComment(ctx, a.ID, comments[rand.Intn(len(comments))], nil); err != nil {
					log.Printf("✗ Failed to comment: %v", err)
				}
			}
		}
		if len(answerIDs) == 0 {
			continue
		}
		if rand.Float32() < 0.6 {
			pick := answerIDs[rand.Intn(len(answerIDs))]
			if _, err := clients[q.owner].Accept(ctx, pick); err != nil {
				log.Printf("✗ Failed to accept: %v", err)
			} else {
				log.Printf("  ✓ Accepted answer #%d", pick)
			}
		}
		for _, c := range clients {
			value := 1
			if rand.Float32() < 0.2 {
				value = -1
			}
			_, _ = c.Vote(ctx, model.VoteTargetAnswer, answerIDs[0], value)
		}
	}

	for _, c := range clients {
		for _, q := range posted {
			if rand.Float32() < 0.5 {
				_, _ = c.Vote(ctx, model.VoteTargetQuestion, q.id, 1)
			}
		}
	}
	log.Printf("✓ Added votes")

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users:     %d\n", len(users))
	fmt.Printf("Questions: %d\n", len(posted))
	fmt.Printf("Answers:   %d\n", answerCount)
	fmt.Println("\nView at:", *baseURL)
}
