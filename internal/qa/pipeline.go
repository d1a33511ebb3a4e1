package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/apperr"
	"github.com/stackit-dev/stackit/internal/content"
	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/moderation"
	"github.com/stackit-dev/stackit/internal/store"
)

const (
	maxTitleLen       = 255
	maxTagNameLen     = 50
	maxTagAttempts    = 3
	questionScreenSep = "\n\n"
)

// QuestionInput carries a question submission. On update a nil ImageURLs or
// Tags keeps the stored value.
type QuestionInput struct {
	Title     string
	Body      string
	ImageURLs []string
	Tags      []string
}

// PostInput carries an answer or comment submission. On update a nil
// ImageURLs keeps the stored attachments.
type PostInput struct {
	Body      string
	ImageURLs []string
}

// Pipeline validates, screens and persists submissions.
type Pipeline struct {
	Deps
}

func NewPipeline(deps Deps) *Pipeline {
	return &Pipeline{Deps: deps}
}

func (p *Pipeline) CreateQuestion(ctx context.Context, actorID int64, in QuestionInput) (q model.Question, err error) {
	ctx, span := p.start(ctx, "qa.CreateQuestion")
	defer func() { p.observe("question", "create", err); end(span, err) }()

	if _, err := p.Store.GetUser(ctx, actorID); err != nil {
		return model.Question{}, translate(err, "user")
	}
	if err := validateQuestion(in); err != nil {
		return model.Question{}, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return model.Question{}, err
	}
	urls := content.Normalize(in.ImageURLs)
	if err := p.screen(ctx, moderation.KindQuestion, questionText(in.Title, in.Body), urls); err != nil {
		return model.Question{}, err
	}

	rec := content.Assemble(in.Body, urls)
	now := p.now()
	draft := model.Question{
		UserID:    actorID,
		Title:     strings.TrimSpace(in.Title),
		Body:      rec.Text,
		ImageURLs: rec.URLs(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ctx.Err(); err != nil {
		return model.Question{}, err
	}
	err = p.Store.WithTx(ctx, func(tx store.Store) error {
		id, err := tx.CreateQuestion(ctx, &draft)
		if err != nil {
			return err
		}
		if err := attachTags(ctx, tx, id, tags); err != nil {
			return err
		}
		q, err = tx.GetQuestion(ctx, id)
		return err
	})
	if err != nil {
		return model.Question{}, translate(err, "question")
	}
	p.Logger.Info("question created", zap.Int64("question_id", q.ID), zap.Int64("user_id", actorID), zap.Int("tags", len(q.Tags)))
	return q, nil
}

func (p *Pipeline) UpdateQuestion(ctx context.Context, actorID, questionID int64, in QuestionInput) (q model.Question, err error) {
	ctx, span := p.start(ctx, "qa.UpdateQuestion")
	defer func() { p.observe("question", "update", err); end(span, err) }()

	existing, err := p.Store.GetQuestion(ctx, questionID)
	if err != nil {
		return model.Question{}, translate(err, "question")
	}
	if _, err := p.Store.GetUser(ctx, actorID); err != nil {
		return model.Question{}, translate(err, "user")
	}
	if err := assertOwner(existing, actorID); err != nil {
		return model.Question{}, err
	}
	if err := validateQuestion(in); err != nil {
		return model.Question{}, err
	}
	var tags []string
	if in.Tags != nil {
		if tags, err = normalizeTags(in.Tags); err != nil {
			return model.Question{}, err
		}
	}
	var urls []string
	if in.ImageURLs != nil {
		urls = content.Normalize(in.ImageURLs)
	}
	if err := p.screen(ctx, moderation.KindQuestion, questionText(in.Title, in.Body), urls); err != nil {
		return model.Question{}, err
	}

	if in.ImageURLs == nil {
		urls = existing.ImageURLs
	}
	rec := content.Assemble(in.Body, urls)
	existing.Title = strings.TrimSpace(in.Title)
	existing.Body = rec.Text
	existing.ImageURLs = rec.URLs()
	existing.UpdatedAt = p.now()
	if err := ctx.Err(); err != nil {
		return model.Question{}, err
	}
	err = p.Store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateQuestion(ctx, &existing); err != nil {
			return err
		}
		if in.Tags != nil {
			if err := attachTags(ctx, tx, existing.ID, tags); err != nil {
				return err
			}
		}
		q, err = tx.GetQuestion(ctx, existing.ID)
		return err
	})
	if err != nil {
		return model.Question{}, translate(err, "question")
	}
	return q, nil
}

// DeleteQuestion removes a question with its answers and comments. Admins may
// delete any question.
func (p *Pipeline) DeleteQuestion(ctx context.Context, actorID, questionID int64) (err error) {
	ctx, span := p.start(ctx, "qa.DeleteQuestion")
	defer func() { p.observe("question", "delete", err); end(span, err) }()

	existing, err := p.Store.GetQuestion(ctx, questionID)
	if err != nil {
		return translate(err, "question")
	}
	if err := p.assertCanDelete(ctx, existing, actorID); err != nil {
		return err
	}
	if err := p.Store.DeleteQuestion(ctx, questionID); err != nil {
		return translate(err, "question")
	}
	p.Logger.Info("question deleted", zap.Int64("question_id", questionID), zap.Int64("actor_id", actorID))
	return nil
}

func (p *Pipeline) assertCanDelete(ctx context.Context, record Owned, actorID int64) error {
	actor, err := p.Store.GetUser(ctx, actorID)
	if err != nil {
		return translate(err, "user")
	}
	if err := assertOwner(record, actorID); err != nil && !actor.IsAdmin() {
		return err
	}
	return nil
}

func (p *Pipeline) observe(entity, op string, err error) {
	p.Metrics.Submissions.WithLabelValues(entity, op, outcome(err)).Inc()
	if apperr.Is(err, apperr.KindModerationBlocked) {
		p.Logger.Info("submission blocked by moderation",
			zap.String("entity", entity),
			zap.String("op", op),
			zap.Strings("reasons", apperr.Reasons(err)),
		)
	}
}

func validateQuestion(in QuestionInput) error {
	if err := requireText("title", in.Title, maxTitleLen); err != nil {
		return err
	}
	return requireText("body", in.Body, 0)
}

// questionText is what gets screened for a question: title and body together.
func questionText(title, body string) string {
	return strings.TrimSpace(title) + questionScreenSep + strings.TrimSpace(body)
}

// normalizeTags trims, lowercases and de-duplicates tag names.
func normalizeTags(names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		if len([]rune(name)) > maxTagNameLen {
			return nil, apperr.Validation(fmt.Sprintf("tag %q is longer than %d characters", name, maxTagNameLen))
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func attachTags(ctx context.Context, tx store.Store, questionID int64, names []string) error {
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		tag, err := getOrCreateTag(ctx, tx, name)
		if err != nil {
			return err
		}
		ids = append(ids, tag.ID)
	}
	return tx.SetQuestionTags(ctx, questionID, ids)
}

// getOrCreateTag returns the tag called name, creating it if needed. Losing a
// creation race to a concurrent writer falls back to reading their row.
func getOrCreateTag(ctx context.Context, st store.TagStore, name string) (model.Tag, error) {
	for attempt := 0; attempt < maxTagAttempts; attempt++ {
		tag, err := st.GetTagByName(ctx, name)
		if err == nil {
			return tag, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return model.Tag{}, err
		}
		tag = model.Tag{Name: name, Color: model.DefaultTagColor}
		id, err := st.CreateTag(ctx, &tag)
		if err == nil {
			tag.ID = id
			return tag, nil
		}
		if !errors.Is(err, store.ErrDuplicateTag) {
			return model.Tag{}, err
		}
	}
	return model.Tag{}, fmt.Errorf("resolve tag %q: %w", name, store.ErrDuplicateTag)
}
