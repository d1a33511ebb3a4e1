package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/auth"
	"github.com/stackit-dev/stackit/internal/config"
	"github.com/stackit-dev/stackit/internal/metrics"
	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/moderation"
	"github.com/stackit-dev/stackit/internal/qa"
	"github.com/stackit-dev/stackit/internal/rate"
	"github.com/stackit-dev/stackit/internal/storage"
	"github.com/stackit-dev/stackit/internal/store/sqlite"
)

type allowAllLimiter struct{}

func (allowAllLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	return true, 0
}

// fakeModeration blocks text mentioning "cheap meds" and image URLs
// containing "nsfw".
func fakeModeration(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/moderate/text", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content     string `json:"content"`
			ContentType string `json:"content_type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if strings.Contains(body.Content, "cheap meds") {
			_, _ = w.Write([]byte(`{"is_appropriate":false,"confidence":0.97,"categories":{"spam":0.97},"flagged_reasons":["spam"],"moderation_action":"block"}`))
			return
		}
		_, _ = w.Write([]byte(`{"is_appropriate":true,"confidence":0.99,"categories":{"normal":0.99},"flagged_reasons":[],"moderation_action":"allow"}`))
	})
	mux.HandleFunc("/moderate/image", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if strings.Contains(r.PostForm.Get("image_url"), "nsfw") {
			_, _ = w.Write([]byte(`{"is_appropriate":false,"confidence":0.9,"categories":{"nudity":0.9},"flagged_reasons":["nudity"],"moderation_action":"block"}`))
			return
		}
		_, _ = w.Write([]byte(`{"is_appropriate":true,"confidence":0.99,"categories":{},"flagged_reasons":[],"moderation_action":"allow"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type harness struct {
	server *Server
	store  *sqlite.Store
	auth   *auth.Service
}

func newHarness(t *testing.T, limiter rate.Limiter, tweak func(*config.Config)) *harness {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Defaults()
	cfg.Moderation.BaseURL = fakeModeration(t).URL
	cfg.Moderation.Enabled = true
	cfg.Storage.Backend = "disk"
	cfg.Storage.Dir = t.TempDir()
	cfg.Storage.PublicBaseURL = "http://files.test/uploads"
	cfg.Storage.MaxUploadBytes = 1 << 20
	cfg.CORSOrigins = []string{"*"}
	if tweak != nil {
		tweak(&cfg)
	}

	logger := zap.NewNop()
	collector := metrics.NewCollector("stackit")
	tracer := noop.NewTracerProvider().Tracer("test")
	gateway := moderation.NewGateway(cfg.Moderation, nil, logger, collector, tracer)
	files, err := storage.New(cfg.Storage, logger, collector)
	require.NoError(t, err)
	authSvc := auth.NewService(st, cfg.Auth)

	deps := qa.Deps{Store: st, Screener: gateway, Logger: logger, Metrics: collector, Tracer: tracer}
	server := NewServer(Services{
		Pipeline:   qa.NewPipeline(deps),
		Acceptance: qa.NewAcceptance(deps),
		Ledger:     qa.NewLedger(deps),
		Catalog:    qa.NewCatalog(deps),
		Accounts:   qa.NewAccounts(deps),
		Auth:       authSvc,
		Moderation: gateway,
		Storage:    files,
		Limiter:    limiter,
		Store:      st,
		Metrics:    collector,
		Logger:     logger,
	}, cfg)
	return &harness{server: server, store: st, auth: authSvc}
}

func (h *harness) user(t *testing.T, name string) (int64, string) {
	t.Helper()
	u := model.User{Username: name, Email: name + "@example.com", Role: model.RoleUser, PasswordHash: "x", CreatedAt: time.Now()}
	id, err := h.store.CreateUser(context.Background(), &u)
	require.NoError(t, err)
	u.ID = id
	token, err := h.auth.Issue(u)
	require.NoError(t, err)
	return id, token.Token
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	h.server.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out), resp.Body.String())
	return out
}

func (h *harness) question(t *testing.T, token string) model.Question {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/api/questions", token, map[string]any{
		"title": "How do I close a channel safely?",
		"body":  "Several goroutines write to it.",
		"tags":  []string{"Go", "channels"},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[model.Question](t, resp)
}

func (h *harness) answer(t *testing.T, token string, questionID int64) model.Answer {
	t.Helper()
	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers", questionID), token, map[string]any{
		"body": "Only the sender should close it.",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[model.Answer](t, resp)
}

func TestRegisterAndToken(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)

	resp := h.do(t, http.MethodPost, "/api/users", "", map[string]any{
		"username": "gopher", "email": "gopher@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.NotContains(t, resp.Body.String(), "correct horse")

	resp = h.do(t, http.MethodPost, "/api/users", "", map[string]any{
		"username": "gopher", "email": "other@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(t, http.MethodPost, "/api/auth/token", "", map[string]any{"username": "gopher", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = h.do(t, http.MethodPost, "/api/auth/token", "", map[string]any{"username": "gopher", "password": "correct horse"})
	require.Equal(t, http.StatusOK, resp.Code)
	token := decode[map[string]any](t, resp)["token"].(string)

	resp = h.do(t, http.MethodPost, "/api/questions", token, map[string]any{"title": "t", "body": "b"})
	assert.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
}

func TestWritesRequireToken(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)

	resp := h.do(t, http.MethodPost, "/api/questions", "", map[string]any{"title": "t", "body": "b"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = h.do(t, http.MethodPost, "/api/questions", "not-a-token", map[string]any{"title": "t", "body": "b"})
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[map[string]any](t, resp)["type"])
}

func TestCreateQuestionReturnsExpandedView(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	_, token := h.user(t, "asker")

	resp := h.do(t, http.MethodPost, "/api/questions", token, map[string]any{
		"title":      "Why is my slice empty?",
		"body":       "I append inside a function.",
		"image_urls": []string{"https://img.test/a.png", "https://img.test/b.png"},
		"tags":       []string{"Slices", "go"},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	q := decode[model.Question](t, resp)
	assert.Equal(t, []string{"https://img.test/a.png", "https://img.test/b.png"}, q.ImageURLs)
	require.Len(t, q.Tags, 2)
	assert.Equal(t, "go", q.Tags[0].Name)
	assert.Equal(t, "slices", q.Tags[1].Name)

	resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/questions/%d", q.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int64(1), decode[model.Question](t, resp).ViewCount)

	resp = h.do(t, http.MethodGet, "/api/questions?tag=slices", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[struct {
		Questions []model.Question `json:"questions"`
	}](t, resp)
	assert.Len(t, list.Questions, 1)
}

func TestBlockedAnswerIsRejectedAndNotStored(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	_, token := h.user(t, "asker")
	q := h.question(t, token)

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers", q.ID), token, map[string]any{
		"body": "buy cheap meds now",
	})
	require.Equal(t, http.StatusForbidden, resp.Code)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "CONTENT_MODERATION", body["type"])
	assert.Equal(t, "blocked", body["status"])
	assert.Equal(t, "answer", body["content_type"])
	assert.Equal(t, "block", body["moderation_action"])
	assert.Equal(t, []any{"spam"}, body["reasons"])

	resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/questions/%d/answers", q.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, decode[[]model.Answer](t, resp))
}

func TestBlockedImageNamesURL(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	_, token := h.user(t, "asker")
	q := h.question(t, token)
	a := h.answer(t, token, q.ID)

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/answers/%d/comments", a.ID), token, map[string]any{
		"body":       "look at this",
		"image_urls": []string{"https://img.test/fine.png", "https://img.test/nsfw.png"},
	})
	require.Equal(t, http.StatusForbidden, resp.Code)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "https://img.test/nsfw.png", body["url"])
	assert.Equal(t, "image", body["content_type"])

	resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/answers/%d/comments", a.ID), "", nil)
	assert.Empty(t, decode[[]model.Comment](t, resp))
}

func TestModerationOutageAcceptsSubmission(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, func(cfg *config.Config) {
		cfg.Moderation.BaseURL = "http://127.0.0.1:1"
		cfg.Moderation.Timeout = 200 * time.Millisecond
	})
	_, token := h.user(t, "asker")
	q := h.question(t, token)

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/questions/%d/answers", q.ID), token, map[string]any{
		"body": "buy cheap meds now",
	})
	assert.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodGet, "/api/moderation/health", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, false, decode[map[string]any](t, resp)["backend_connected"])
}

func TestOwnershipAndAccept(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	_, ownerToken := h.user(t, "asker")
	_, helperToken := h.user(t, "helper")
	q := h.question(t, ownerToken)
	a1 := h.answer(t, helperToken, q.ID)
	a2 := h.answer(t, helperToken, q.ID)

	resp := h.do(t, http.MethodPut, fmt.Sprintf("/api/questions/%d", q.ID), helperToken, map[string]any{"title": "hijack", "body": "x"})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "FORBIDDEN", decode[map[string]any](t, resp)["type"])

	resp = h.do(t, http.MethodPost, fmt.Sprintf("/api/answers/%d/accept", a1.ID), helperToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = h.do(t, http.MethodPost, fmt.Sprintf("/api/answers/%d/accept", a1.ID), ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	resp = h.do(t, http.MethodPost, fmt.Sprintf("/api/answers/%d/accept", a2.ID), ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/questions/%d/answers", q.ID), "", nil)
	answers := decode[[]model.Answer](t, resp)
	require.Len(t, answers, 2)
	assert.Equal(t, a2.ID, answers[0].ID)
	assert.True(t, answers[0].Accepted)
	assert.False(t, answers[1].Accepted)

	resp = h.do(t, http.MethodDelete, fmt.Sprintf("/api/answers/%d", a1.ID), ownerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)
	resp = h.do(t, http.MethodDelete, fmt.Sprintf("/api/answers/%d", a1.ID), helperToken, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestVoteReplacesEarlierValue(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	_, token := h.user(t, "asker")
	_, voter := h.user(t, "voter")
	q := h.question(t, token)
	a := h.answer(t, token, q.ID)
	path := fmt.Sprintf("/api/answers/%d/vote", a.ID)

	resp := h.do(t, http.MethodPost, path, voter, map[string]any{"value": 1})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	resp = h.do(t, http.MethodPost, path, voter, map[string]any{"value": -1})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(-1), decode[map[string]any](t, resp)["score"])

	resp = h.do(t, http.MethodPost, path, voter, map[string]any{"value": 5})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	resp = h.do(t, http.MethodPost, path, voter, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = h.do(t, http.MethodPost, fmt.Sprintf("/api/questions/%d/vote", q.ID), voter, map[string]any{"value": 1})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, resp)["score"])
}

func TestSubmitRateLimit(t *testing.T) {
	h := newHarness(t, rate.NewMemory(), func(cfg *config.Config) {
		cfg.RateLimits.SubmitPerMinute = 1
	})
	_, token := h.user(t, "asker")
	h.question(t, token)

	resp := h.do(t, http.MethodPost, "/api/questions", token, map[string]any{"title": "again", "body": "again"})
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))

	_, other := h.user(t, "other")
	resp = h.do(t, http.MethodPost, "/api/questions", other, map[string]any{"title": "mine", "body": "mine"})
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestUploadAndDelete(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	_, token := h.user(t, "asker")

	upload := func(kind string, data []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "pic.png")
		require.NoError(t, err)
		_, _ = part.Write(data)
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/files/upload/"+kind, &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		h.server.ServeHTTP(resp, req)
		return resp
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	resp := upload("answer", png)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	url := decode[map[string]any](t, resp)["url"].(string)
	assert.True(t, strings.HasPrefix(url, "http://files.test/uploads/stackit/answers/"), url)

	assert.Equal(t, http.StatusBadRequest, upload("banner", png).Code)
	assert.Equal(t, http.StatusBadRequest, upload("avatar", []byte("plain text")).Code)

	resp = h.do(t, http.MethodDelete, "/api/files?url="+url, token, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = h.do(t, http.MethodDelete, "/api/files?url=https://elsewhere.test/x.png", token, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestOperationalEndpoints(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/ready", "", nil).Code)

	resp := h.do(t, http.MethodGet, "/api/moderation/health", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, true, decode[map[string]any](t, resp)["backend_connected"])

	resp = h.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "stackit_http_requests_total")

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/nope", "", nil).Code)
}

func TestModerationPassthrough(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	_, token := h.user(t, "asker")

	resp := h.do(t, http.MethodPost, "/api/moderation/text", token, map[string]any{"content": "buy cheap meds now"})
	require.Equal(t, http.StatusOK, resp.Code)
	verdict := decode[moderation.Verdict](t, resp)
	assert.Equal(t, moderation.ActionBlock, verdict.Action)

	resp = h.do(t, http.MethodPost, "/api/moderation/image", token, map[string]any{"image_url": "https://img.test/cat.png"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[moderation.Verdict](t, resp).Allowed)
}

func TestModerationBatchKeepsInputOrder(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	_, token := h.user(t, "asker")

	urls := []string{"https://img.test/cat.png", "https://img.test/nsfw.png", "https://img.test/dog.png"}
	resp := h.do(t, http.MethodPost, "/api/moderation/batch", token, map[string]any{
		"text_content": "what a lovely cat",
		"image_urls":   urls,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	out := decode[moderateBatchResponse](t, resp)
	require.NotNil(t, out.Text)
	assert.True(t, out.Text.Allowed)
	require.Len(t, out.Images, 3)
	for i, img := range out.Images {
		assert.Equal(t, urls[i], img.URL)
	}
	assert.True(t, out.Images[0].Allowed)
	assert.Equal(t, moderation.ActionBlock, out.Images[1].Action)
	assert.True(t, out.Images[2].Allowed)
	assert.Equal(t, moderation.ActionBlock, out.OverallDecision)

	resp = h.do(t, http.MethodPost, "/api/moderation/batch", token, map[string]any{"text_content": "hello"})
	require.Equal(t, http.StatusOK, resp.Code)
	out = decode[moderateBatchResponse](t, resp)
	assert.Empty(t, out.Images)
	assert.Equal(t, moderation.ActionAllow, out.OverallDecision)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/moderation/batch", token, map[string]any{}).Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/moderation/batch", "", map[string]any{"text_content": "x"}).Code)
}

func TestUserQuestionsAndMe(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	askerID, asker := h.user(t, "asker")
	otherID, other := h.user(t, "other")
	mine := h.question(t, asker)
	h.question(t, other)

	resp := h.do(t, http.MethodGet, fmt.Sprintf("/api/questions/user/%d", askerID), "", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	questions := decode[[]model.Question](t, resp)
	require.Len(t, questions, 1)
	assert.Equal(t, mine.ID, questions[0].ID)

	resp = h.do(t, http.MethodGet, "/api/questions/user/9999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = h.do(t, http.MethodGet, "/api/auth/me", other, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	me := decode[model.User](t, resp)
	assert.Equal(t, otherID, me.ID)
	assert.Equal(t, "other@example.com", me.Email)

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/auth/me", "", nil).Code)
}

func TestScoreEndpoints(t *testing.T) {
	h := newHarness(t, allowAllLimiter{}, nil)
	_, token := h.user(t, "asker")
	_, voter := h.user(t, "voter")
	q := h.question(t, token)
	a := h.answer(t, token, q.ID)

	resp := h.do(t, http.MethodPost, fmt.Sprintf("/api/answers/%d/vote", a.ID), voter, map[string]any{"value": 1})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/answers/%d/score", a.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, decode[scoreResponse](t, resp).Score)

	resp = h.do(t, http.MethodGet, fmt.Sprintf("/api/questions/%d/score", q.ID), "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 0, decode[scoreResponse](t, resp).Score)

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/answers/9999/score", "", nil).Code)
}
