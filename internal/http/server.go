package httpapp

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/auth"
	"github.com/stackit-dev/stackit/internal/config"
	"github.com/stackit-dev/stackit/internal/metrics"
	"github.com/stackit-dev/stackit/internal/moderation"
	"github.com/stackit-dev/stackit/internal/qa"
	"github.com/stackit-dev/stackit/internal/rate"
	"github.com/stackit-dev/stackit/internal/storage"
	"github.com/stackit-dev/stackit/internal/store"
)

// Moderator is the moderation surface exposed over HTTP.
type Moderator interface {
	ScreenText(ctx context.Context, content string, kind moderation.Kind) moderation.Verdict
	ScreenImage(ctx context.Context, imageURL string) moderation.Verdict
	ScreenMany(ctx context.Context, urls []string) []moderation.Verdict
	Healthy(ctx context.Context) bool
	Enabled() bool
}

// Services is everything the handlers call into.
type Services struct {
	Pipeline   *qa.Pipeline
	Acceptance *qa.Acceptance
	Ledger     *qa.Ledger
	Catalog    *qa.Catalog
	Accounts   *qa.Accounts
	Auth       *auth.Service
	Moderation Moderator
	Storage    *storage.Service
	Limiter    rate.Limiter
	Store      store.Store
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

type Server struct {
	Services
	cfg    config.Config
	router *chi.Mux
}

func NewServer(svc Services, cfg config.Config) *Server {
	s := &Server{Services: svc, cfg: cfg}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying mux for adapters that need a *chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) routes() *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(s.requestLogger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", s.handleHealth)
	router.Get("/ready", s.handleReady)
	router.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	if s.cfg.Storage.Backend == "" || s.cfg.Storage.Backend == "disk" {
		router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.Storage.Dir))))
	}

	router.Route("/api", func(r chi.Router) {
		r.Post("/users", s.handleCreateUser)
		r.Get("/users/{id}", s.handleGetUser)
		r.Post("/auth/token", s.handleCreateToken)

		r.Get("/questions", s.handleListQuestions)
		r.Get("/questions/user/{id}", s.handleListUserQuestions)
		r.Get("/questions/{id}", s.handleGetQuestion)
		r.Get("/questions/{id}/score", s.handleQuestionScore)
		r.Get("/questions/{id}/answers", s.handleListAnswers)
		r.Get("/answers/{id}/comments", s.handleListComments)
		r.Get("/answers/{id}/score", s.handleAnswerScore)
		r.Get("/tags", s.handleListTags)
		r.Get("/moderation/health", s.handleModerationHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/auth/me", s.handleMe)

			r.Post("/questions", s.handleCreateQuestion)
			r.Put("/questions/{id}", s.handleUpdateQuestion)
			r.Delete("/questions/{id}", s.handleDeleteQuestion)
			r.Post("/questions/{id}/answers", s.handleCreateAnswer)
			r.Post("/questions/{id}/vote", s.handleVoteQuestion)

			r.Put("/answers/{id}", s.handleUpdateAnswer)
			r.Delete("/answers/{id}", s.handleDeleteAnswer)
			r.Post("/answers/{id}/accept", s.handleAcceptAnswer)
			r.Post("/answers/{id}/vote", s.handleVoteAnswer)
			r.Post("/answers/{id}/comments", s.handleCreateComment)

			r.Put("/comments/{id}", s.handleUpdateComment)
			r.Delete("/comments/{id}", s.handleDeleteComment)

			r.Post("/moderation/text", s.handleModerateText)
			r.Post("/moderation/image", s.handleModerateImage)
			r.Post("/moderation/batch", s.handleModerateBatch)

			r.Post("/files/upload/{kind}", s.handleUpload)
			r.Delete("/files", s.handleDeleteFile)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) { notFound(w) })
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) { methodNotAllowed(w) })
	return router
}

// requestLogger logs each request and records it against the route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.Metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed)
		s.Logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", elapsed),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

// handleHealth godoc
//
//	@Summary	Liveness probe
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady godoc
//
//	@Summary	Readiness probe
//	@Description	Ready once the database answers a ping.
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Failure	503	{object}	map[string]string
//	@Router		/ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		s.Logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "database unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
