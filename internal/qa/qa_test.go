package qa

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/apperr"
	"github.com/stackit-dev/stackit/internal/config"
	"github.com/stackit-dev/stackit/internal/metrics"
	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/moderation"
	"github.com/stackit-dev/stackit/internal/store"
	"github.com/stackit-dev/stackit/internal/store/sqlite"
)

type mockScreener struct {
	mock.Mock
}

func (m *mockScreener) ScreenText(ctx context.Context, content string, kind moderation.Kind) moderation.Verdict {
	args := m.Called(ctx, content, kind)
	return args.Get(0).(moderation.Verdict)
}

func (m *mockScreener) ScreenMany(ctx context.Context, urls []string) []moderation.Verdict {
	args := m.Called(ctx, urls)
	if fn, ok := args.Get(0).(func([]string) []moderation.Verdict); ok {
		return fn(urls)
	}
	return args.Get(0).([]moderation.Verdict)
}

func allowAll(m *mockScreener) {
	m.On("ScreenText", mock.Anything, mock.Anything, mock.Anything).Return(moderation.Allow())
	m.On("ScreenMany", mock.Anything, mock.Anything).Return(func(urls []string) []moderation.Verdict {
		out := make([]moderation.Verdict, len(urls))
		for i := range out {
			out[i] = moderation.Allow()
		}
		return out
	})
}

func blocked(reasons ...string) moderation.Verdict {
	return moderation.Verdict{Allowed: false, Confidence: 0.99, Reasons: reasons, Action: moderation.ActionBlock}
}

type env struct {
	store    *sqlite.Store
	screener *mockScreener
	deps     Deps
	pipeline *Pipeline
	accept   *Acceptance
	ledger   *Ledger
	catalog  *Catalog
	accounts *Accounts
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return newEnvWith(t, st, &mockScreener{})
}

func newEnvWith(t *testing.T, st *sqlite.Store, screener Screener) *env {
	t.Helper()
	deps := Deps{
		Store:    st,
		Screener: screener,
		Logger:   zap.NewNop(),
		Metrics:  metrics.NewCollector("test"),
		Tracer:   noop.NewTracerProvider().Tracer("test"),
	}
	e := &env{
		store:    st,
		deps:     deps,
		pipeline: NewPipeline(deps),
		accept:   NewAcceptance(deps),
		ledger:   NewLedger(deps),
		catalog:  NewCatalog(deps),
		accounts: NewAccounts(deps),
	}
	if m, ok := screener.(*mockScreener); ok {
		e.screener = m
	}
	return e
}

func (e *env) user(t *testing.T, name string, role model.Role) int64 {
	t.Helper()
	id, err := e.store.CreateUser(context.Background(), &model.User{
		Username:     name,
		Email:        name + "@example.com",
		Role:         role,
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
	return id
}

func (e *env) question(t *testing.T, ownerID int64) model.Question {
	t.Helper()
	q, err := e.pipeline.CreateQuestion(context.Background(), ownerID, QuestionInput{
		Title: "How do I cancel a goroutine?",
		Body:  "I start a worker and need to stop it from main.",
	})
	require.NoError(t, err)
	return q
}

func (e *env) answer(t *testing.T, questionID, authorID int64) model.Answer {
	t.Helper()
	a, err := e.pipeline.CreateAnswer(context.Background(), authorID, questionID, PostInput{Body: "Pass a context.Context and select on Done."})
	require.NoError(t, err)
	return a
}

func countAnswers(t *testing.T, st store.Store, questionID int64) int {
	t.Helper()
	answers, err := st.ListAnswersByQuestion(context.Background(), questionID)
	require.NoError(t, err)
	return len(answers)
}

func TestAssertOwner(t *testing.T) {
	assert.NoError(t, assertOwner(model.Answer{UserID: 3}, 3))
	err := assertOwner(model.Comment{UserID: 3}, 4)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestCreateQuestionScreensTitleAndBody(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)

	q, err := e.pipeline.CreateQuestion(context.Background(), owner, QuestionInput{
		Title:     "  Channels vs mutexes  ",
		Body:      " When should I prefer one? ",
		ImageURLs: []string{" https://img.test/a.png ", "", "https://img.test/b.png"},
		Tags:      []string{"Go", "concurrency", "go ", ""},
	})
	require.NoError(t, err)

	assert.Equal(t, "Channels vs mutexes", q.Title)
	assert.Equal(t, "When should I prefer one?", q.Body)
	assert.Equal(t, []string{"https://img.test/a.png", "https://img.test/b.png"}, q.ImageURLs)
	require.Len(t, q.Tags, 2)
	assert.Equal(t, "concurrency", q.Tags[0].Name)
	assert.Equal(t, "go", q.Tags[1].Name)
	e.screener.AssertCalled(t, "ScreenText", mock.Anything, "Channels vs mutexes\n\nWhen should I prefer one?", moderation.KindQuestion)
	e.screener.AssertCalled(t, "ScreenMany", mock.Anything, []string{"https://img.test/a.png", "https://img.test/b.png"})
}

func TestCreateAnswerBlockedPersistsNothing(t *testing.T) {
	e := newEnv(t)
	e.screener.On("ScreenText", mock.Anything, "buy cheap meds now", moderation.KindAnswer).Return(blocked("spam"))
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	author := e.user(t, "spammer", model.RoleUser)
	q := e.question(t, owner)

	_, err := e.pipeline.CreateAnswer(context.Background(), author, q.ID, PostInput{
		Body:      "buy cheap meds now",
		ImageURLs: []string{"https://img.test/pills.png"},
	})

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindModerationBlocked))
	assert.Equal(t, []string{"spam"}, apperr.Reasons(err))
	appErr, _ := apperr.As(err)
	assert.Equal(t, "answer", appErr.Details["content_type"])
	assert.Equal(t, "block", appErr.Details["moderation_action"])
	assert.Equal(t, 0, countAnswers(t, e.store, q.ID))
	e.screener.AssertNotCalled(t, "ScreenMany", mock.Anything, mock.Anything)
}

func TestBlockedImageIsNamed(t *testing.T) {
	e := newEnv(t)
	urls := []string{"https://img.test/ok.png", "https://img.test/nsfw.png", "https://img.test/also-bad.png"}
	e.screener.On("ScreenText", mock.Anything, mock.Anything, mock.Anything).Return(moderation.Allow())
	e.screener.On("ScreenMany", mock.Anything, urls).Return([]moderation.Verdict{
		moderation.Allow(), blocked("nudity"), blocked("violence"),
	})
	owner := e.user(t, "asker", model.RoleUser)
	q := e.question(t, owner)

	_, err := e.pipeline.CreateAnswer(context.Background(), owner, q.ID, PostInput{Body: "see attached", ImageURLs: urls})

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindModerationBlocked, appErr.Kind)
	assert.Equal(t, "https://img.test/nsfw.png", appErr.Details["url"])
	assert.Equal(t, "image", appErr.Details["content_type"])
	assert.Equal(t, []string{"nudity"}, apperr.Reasons(err))
	assert.Equal(t, 0, countAnswers(t, e.store, q.ID))
}

func TestFlaggedContentIsPersisted(t *testing.T) {
	e := newEnv(t)
	e.screener.On("ScreenText", mock.Anything, "heated but fine", moderation.KindComment).
		Return(moderation.Verdict{Allowed: true, Action: moderation.ActionFlag, Reasons: []string{"tone"}})
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	a := e.answer(t, e.question(t, owner).ID, owner)

	c, err := e.pipeline.CreateComment(context.Background(), owner, a.ID, PostInput{Body: "heated but fine"})
	require.NoError(t, err)
	assert.NotZero(t, c.ID)
	assert.Equal(t, []string{}, c.ImageURLs)
}

func TestModerationOutageFailsOpen(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	st, err := sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	defer st.Close()

	cfg := config.Defaults().Moderation
	cfg.BaseURL = baseURL
	cfg.Enabled = true
	cfg.Timeout = 200 * time.Millisecond
	gateway := moderation.NewGateway(cfg, nil, zap.NewNop(), metrics.NewCollector("test"), noop.NewTracerProvider().Tracer("test"))
	e := newEnvWith(t, st, gateway)
	owner := e.user(t, "asker", model.RoleUser)

	q, err := e.pipeline.CreateQuestion(context.Background(), owner, QuestionInput{
		Title:     "Is moderation down?",
		Body:      "This should still be saved.",
		ImageURLs: []string{"https://img.test/a.png"},
	})
	require.NoError(t, err)
	stored, err := st.GetQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "Is moderation down?", stored.Title)
}

func TestCreateRequiresExistingParentAndUser(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	q := e.question(t, owner)

	_, err := e.pipeline.CreateAnswer(context.Background(), owner, 9999, PostInput{Body: "hi"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = e.pipeline.CreateAnswer(context.Background(), 9999, q.ID, PostInput{Body: "hi"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = e.pipeline.CreateComment(context.Background(), owner, 9999, PostInput{Body: "hi"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = e.pipeline.CreateQuestion(context.Background(), owner, QuestionInput{Title: "  ", Body: "body"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCancelledContextWritesNothing(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.screener.On("ScreenText", mock.Anything, "late answer", moderation.KindAnswer).
		Run(func(mock.Arguments) { cancel() }).
		Return(moderation.Allow())
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	q := e.question(t, owner)

	_, err := e.pipeline.CreateAnswer(ctx, owner, q.ID, PostInput{Body: "late answer"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, countAnswers(t, e.store, q.ID))
}

func TestUpdateOwnership(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	other := e.user(t, "other", model.RoleUser)
	admin := e.user(t, "admin", model.RoleAdmin)
	q := e.question(t, owner)
	a := e.answer(t, q.ID, owner)

	_, err := e.pipeline.UpdateQuestion(context.Background(), other, q.ID, QuestionInput{Title: "mine now", Body: "x"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = e.pipeline.UpdateAnswer(context.Background(), admin, a.ID, PostInput{Body: "admins cannot edit"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = e.pipeline.UpdateAnswer(context.Background(), owner, 4242, PostInput{Body: "x"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestUpdateKeepsAttachmentsWhenOmitted(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	q := e.question(t, owner)

	a, err := e.pipeline.CreateAnswer(context.Background(), owner, q.ID, PostInput{Body: "v1", ImageURLs: []string{"https://img.test/1.png"}})
	require.NoError(t, err)

	a, err = e.pipeline.UpdateAnswer(context.Background(), owner, a.ID, PostInput{Body: "v2"})
	require.NoError(t, err)
	assert.Equal(t, "v2", a.Body)
	assert.Equal(t, []string{"https://img.test/1.png"}, a.ImageURLs)

	a, err = e.pipeline.UpdateAnswer(context.Background(), owner, a.ID, PostInput{Body: "v3", ImageURLs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, a.ImageURLs)

	updated, err := e.pipeline.UpdateQuestion(context.Background(), owner, q.ID, QuestionInput{Title: "Retitled", Body: "b", Tags: []string{"ctx"}})
	require.NoError(t, err)
	require.Len(t, updated.Tags, 1)
	updated, err = e.pipeline.UpdateQuestion(context.Background(), owner, q.ID, QuestionInput{Title: "Retitled again", Body: "b"})
	require.NoError(t, err)
	assert.Len(t, updated.Tags, 1)
}

func TestUpdateBlockedLeavesRecordUntouched(t *testing.T) {
	e := newEnv(t)
	e.screener.On("ScreenText", mock.Anything, "now with spam", moderation.KindComment).Return(blocked("spam"))
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	a := e.answer(t, e.question(t, owner).ID, owner)
	c, err := e.pipeline.CreateComment(context.Background(), owner, a.ID, PostInput{Body: "original"})
	require.NoError(t, err)

	_, err = e.pipeline.UpdateComment(context.Background(), owner, c.ID, PostInput{Body: "now with spam"})
	assert.True(t, apperr.Is(err, apperr.KindModerationBlocked))

	stored, err := e.store.GetComment(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Body)
}

func TestDeleteOwnerOrAdmin(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	other := e.user(t, "other", model.RoleUser)
	admin := e.user(t, "admin", model.RoleAdmin)
	q := e.question(t, owner)
	a := e.answer(t, q.ID, other)
	c, err := e.pipeline.CreateComment(context.Background(), other, a.ID, PostInput{Body: "thanks"})
	require.NoError(t, err)

	assert.True(t, apperr.Is(e.pipeline.DeleteComment(context.Background(), owner, c.ID), apperr.KindForbidden))
	assert.NoError(t, e.pipeline.DeleteComment(context.Background(), other, c.ID))
	assert.True(t, apperr.Is(e.pipeline.DeleteAnswer(context.Background(), owner, a.ID), apperr.KindForbidden))
	assert.NoError(t, e.pipeline.DeleteAnswer(context.Background(), admin, a.ID))
	assert.NoError(t, e.pipeline.DeleteQuestion(context.Background(), owner, q.ID))
	assert.True(t, apperr.Is(e.pipeline.DeleteQuestion(context.Background(), owner, q.ID), apperr.KindNotFound))
}

func TestAcceptSwapsAcceptedAnswer(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	helper := e.user(t, "helper", model.RoleUser)
	q := e.question(t, owner)
	a1 := e.answer(t, q.ID, helper)
	a2 := e.answer(t, q.ID, helper)

	_, err := e.accept.Accept(context.Background(), a1.ID, owner)
	require.NoError(t, err)

	got, err := e.accept.Accept(context.Background(), a2.ID, owner)
	require.NoError(t, err)
	assert.True(t, got.Accepted)

	first, err := e.store.GetAnswer(context.Background(), a1.ID)
	require.NoError(t, err)
	assert.False(t, first.Accepted)
	second, err := e.store.GetAnswer(context.Background(), a2.ID)
	require.NoError(t, err)
	assert.True(t, second.Accepted)
}

func TestAcceptInvariantAcrossSequence(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	q := e.question(t, owner)
	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, e.answer(t, q.ID, owner).ID)
	}

	for _, id := range []int64{ids[2], ids[0], ids[0], ids[3], ids[1]} {
		_, err := e.accept.Accept(context.Background(), id, owner)
		require.NoError(t, err)

		answers, err := e.store.ListAnswersByQuestion(context.Background(), q.ID)
		require.NoError(t, err)
		accepted := 0
		for _, a := range answers {
			if a.Accepted {
				accepted++
				assert.Equal(t, id, a.ID)
			}
		}
		assert.Equal(t, 1, accepted)
	}
}

func TestAcceptOnlyByQuestionOwner(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	author := e.user(t, "author", model.RoleUser)
	admin := e.user(t, "admin", model.RoleAdmin)
	q := e.question(t, owner)
	a := e.answer(t, q.ID, author)

	for _, actor := range []int64{author, admin, 9999} {
		_, err := e.accept.Accept(context.Background(), a.ID, actor)
		assert.True(t, apperr.Is(err, apperr.KindForbidden), "actor %d", actor)
	}
	stored, err := e.store.GetAnswer(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, stored.Accepted)

	_, err = e.accept.Accept(context.Background(), 777, owner)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestTagCreatedOnce(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)

	for i := 0; i < 2; i++ {
		_, err := e.pipeline.CreateQuestion(context.Background(), owner, QuestionInput{
			Title: fmt.Sprintf("Question %d", i),
			Body:  "body",
			Tags:  []string{"generics"},
		})
		require.NoError(t, err)
	}

	tags, err := e.catalog.Tags(context.Background())
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "generics", tags[0].Name)

	tagged, err := e.catalog.ListQuestions(context.Background(), "Generics", 10)
	require.NoError(t, err)
	assert.Len(t, tagged, 2)
}

// racingTagStore loses the first insert to a concurrent writer.
type racingTagStore struct {
	store.TagStore
	reads   int
	creates int
}

func (r *racingTagStore) GetTagByName(ctx context.Context, name string) (model.Tag, error) {
	r.reads++
	if r.reads == 1 {
		return model.Tag{}, store.ErrNotFound
	}
	return model.Tag{ID: 42, Name: name, Color: model.DefaultTagColor}, nil
}

func (r *racingTagStore) CreateTag(ctx context.Context, tag *model.Tag) (int64, error) {
	r.creates++
	return 0, store.ErrDuplicateTag
}

func TestGetOrCreateTagRetriesAfterLostRace(t *testing.T) {
	st := &racingTagStore{}
	tag, err := getOrCreateTag(context.Background(), st, "errors")
	require.NoError(t, err)
	assert.Equal(t, int64(42), tag.ID)
	assert.Equal(t, 1, st.creates)
	assert.Equal(t, 2, st.reads)
}

func TestNormalizeTags(t *testing.T) {
	got, err := normalizeTags([]string{" Go ", "go", "", "HTTP"})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "http"}, got)

	_, err = normalizeTags([]string{strings.Repeat("x", 51)})
	assert.Error(t, err)
}

func TestVoteLedger(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	v1 := e.user(t, "voter1", model.RoleUser)
	v2 := e.user(t, "voter2", model.RoleUser)
	q := e.question(t, owner)
	a := e.answer(t, q.ID, owner)
	ctx := context.Background()

	tally, err := e.ledger.VoteAnswer(ctx, a.ID, v1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tally)

	tally, err = e.ledger.VoteAnswer(ctx, a.ID, v1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tally, "repeat vote must replace, not accumulate")

	tally, err = e.ledger.VoteAnswer(ctx, a.ID, v2, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, tally)

	tally, err = e.ledger.VoteAnswer(ctx, a.ID, v1, -1)
	require.NoError(t, err)
	assert.Equal(t, -2, tally)

	tally, err = e.ledger.VoteAnswer(ctx, a.ID, v2, 0)
	require.NoError(t, err)
	assert.Equal(t, -1, tally)

	tally, err = e.ledger.VoteQuestion(ctx, q.ID, v2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tally)

	_, err = e.ledger.VoteAnswer(ctx, a.ID, v1, 2)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = e.ledger.VoteAnswer(ctx, 31337, v1, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	stored, err := e.store.GetAnswer(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, stored.Score)
}

func TestCatalogViewCountsAndOrder(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	q := e.question(t, owner)
	a1 := e.answer(t, q.ID, owner)
	a2 := e.answer(t, q.ID, owner)
	_, err := e.accept.Accept(context.Background(), a2.ID, owner)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := e.catalog.ViewQuestion(context.Background(), q.ID)
		require.NoError(t, err)
	}
	viewed, err := e.catalog.ViewQuestion(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), viewed.ViewCount)

	answers, err := e.catalog.Answers(context.Background(), q.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, a2.ID, answers[0].ID)
	assert.Equal(t, a1.ID, answers[1].ID)

	_, err = e.catalog.ViewQuestion(context.Background(), 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAccounts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	u, err := e.accounts.Register(ctx, "gopher", "Gopher@Example.com", "correct horse", "")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.Equal(t, "gopher@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	_, err = e.accounts.Register(ctx, "gopher", "other@example.com", "correct horse", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = e.accounts.Register(ctx, "newbie", "not-an-email", "correct horse", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = e.accounts.Register(ctx, "newbie", "newbie@example.com", "short", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	got, err := e.accounts.Authenticate(ctx, "gopher", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = e.accounts.Authenticate(ctx, "gopher", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	_, err = e.accounts.Authenticate(ctx, "nobody", "whatever")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestAttachmentURLsWithCommasRoundTrip(t *testing.T) {
	e := newEnv(t)
	url := "https://res.cloudinary.com/demo/image/upload/w_100,h_100,c_fill/sample.jpg"
	e.screener.On("ScreenMany", mock.Anything, []string{url}).Return([]moderation.Verdict{moderation.Allow()}).Once()
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	q := e.question(t, owner)

	a, err := e.pipeline.CreateAnswer(context.Background(), owner, q.ID, PostInput{
		Body:      "Resize it on the CDN.",
		ImageURLs: []string{url},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{url}, a.ImageURLs)

	stored, err := e.store.GetAnswer(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{url}, stored.ImageURLs)
	e.screener.AssertCalled(t, "ScreenMany", mock.Anything, []string{url})
}

func TestQuestionsByUser(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	alice := e.user(t, "alice", model.RoleUser)
	bob := e.user(t, "bob", model.RoleUser)
	first := e.question(t, alice)
	e.question(t, bob)
	second := e.question(t, alice)

	questions, err := e.catalog.QuestionsByUser(context.Background(), alice, 10)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	ids := []int64{questions[0].ID, questions[1].ID}
	assert.ElementsMatch(t, []int64{first.ID, second.ID}, ids)
	for _, q := range questions {
		assert.Equal(t, alice, q.UserID)
	}

	_, err = e.catalog.QuestionsByUser(context.Background(), 999, 10)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestLedgerTally(t *testing.T) {
	e := newEnv(t)
	allowAll(e.screener)
	owner := e.user(t, "asker", model.RoleUser)
	voter := e.user(t, "voter", model.RoleUser)
	q := e.question(t, owner)
	a := e.answer(t, q.ID, owner)
	ctx := context.Background()

	tally, err := e.ledger.Tally(ctx, model.VoteTargetAnswer, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, tally)

	_, err = e.ledger.VoteAnswer(ctx, a.ID, voter, -1)
	require.NoError(t, err)
	_, err = e.ledger.VoteAnswer(ctx, a.ID, owner, -1)
	require.NoError(t, err)
	tally, err = e.ledger.Tally(ctx, model.VoteTargetAnswer, a.ID)
	require.NoError(t, err)
	assert.Equal(t, -2, tally)

	_, err = e.ledger.Tally(ctx, model.VoteTargetQuestion, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = e.ledger.Tally(ctx, model.VoteTarget("comment"), a.ID)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
