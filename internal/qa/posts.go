package qa

import (
	"context"

	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/content"
	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/moderation"
)

func (p *Pipeline) CreateAnswer(ctx context.Context, actorID, questionID int64, in PostInput) (a model.Answer, err error) {
	ctx, span := p.start(ctx, "qa.CreateAnswer")
	defer func() { p.observe("answer", "create", err); end(span, err) }()

	if _, err := p.Store.GetQuestion(ctx, questionID); err != nil {
		return model.Answer{}, translate(err, "question")
	}
	if _, err := p.Store.GetUser(ctx, actorID); err != nil {
		return model.Answer{}, translate(err, "user")
	}
	if err := requireText("body", in.Body, 0); err != nil {
		return model.Answer{}, err
	}
	urls := content.Normalize(in.ImageURLs)
	if err := p.screen(ctx, moderation.KindAnswer, in.Body, urls); err != nil {
		return model.Answer{}, err
	}

	rec := content.Assemble(in.Body, urls)
	now := p.now()
	draft := model.Answer{
		QuestionID: questionID,
		UserID:     actorID,
		Body:       rec.Text,
		ImageURLs:  rec.URLs(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := ctx.Err(); err != nil {
		return model.Answer{}, err
	}
	id, err := p.Store.CreateAnswer(ctx, &draft)
	if err != nil {
		return model.Answer{}, translate(err, "answer")
	}
	if a, err = p.Store.GetAnswer(ctx, id); err != nil {
		return model.Answer{}, translate(err, "answer")
	}
	p.Logger.Info("answer created", zap.Int64("answer_id", a.ID), zap.Int64("question_id", questionID), zap.Int64("user_id", actorID))
	return a, nil
}

func (p *Pipeline) UpdateAnswer(ctx context.Context, actorID, answerID int64, in PostInput) (a model.Answer, err error) {
	ctx, span := p.start(ctx, "qa.UpdateAnswer")
	defer func() { p.observe("answer", "update", err); end(span, err) }()

	existing, err := p.Store.GetAnswer(ctx, answerID)
	if err != nil {
		return model.Answer{}, translate(err, "answer")
	}
	if _, err := p.Store.GetUser(ctx, actorID); err != nil {
		return model.Answer{}, translate(err, "user")
	}
	if err := assertOwner(existing, actorID); err != nil {
		return model.Answer{}, err
	}
	if err := requireText("body", in.Body, 0); err != nil {
		return model.Answer{}, err
	}
	urls, err := p.screenPost(ctx, moderation.KindAnswer, in, existing.ImageURLs)
	if err != nil {
		return model.Answer{}, err
	}

	rec := content.Assemble(in.Body, urls)
	existing.Body = rec.Text
	existing.ImageURLs = rec.URLs()
	existing.UpdatedAt = p.now()
	if err := ctx.Err(); err != nil {
		return model.Answer{}, err
	}
	if err := p.Store.UpdateAnswer(ctx, &existing); err != nil {
		return model.Answer{}, translate(err, "answer")
	}
	if a, err = p.Store.GetAnswer(ctx, answerID); err != nil {
		return model.Answer{}, translate(err, "answer")
	}
	return a, nil
}

func (p *Pipeline) DeleteAnswer(ctx context.Context, actorID, answerID int64) (err error) {
	ctx, span := p.start(ctx, "qa.DeleteAnswer")
	defer func() { p.observe("answer", "delete", err); end(span, err) }()

	existing, err := p.Store.GetAnswer(ctx, answerID)
	if err != nil {
		return translate(err, "answer")
	}
	if err := p.assertCanDelete(ctx, existing, actorID); err != nil {
		return err
	}
	if err := p.Store.DeleteAnswer(ctx, answerID); err != nil {
		return translate(err, "answer")
	}
	p.Logger.Info("answer deleted", zap.Int64("answer_id", answerID), zap.Int64("actor_id", actorID))
	return nil
}

func (p *Pipeline) CreateComment(ctx context.Context, actorID, answerID int64, in PostInput) (c model.Comment, err error) {
	ctx, span := p.start(ctx, "qa.CreateComment")
	defer func() { p.observe("comment", "create", err); end(span, err) }()

	if _, err := p.Store.GetAnswer(ctx, answerID); err != nil {
		return model.Comment{}, translate(err, "answer")
	}
	if _, err := p.Store.GetUser(ctx, actorID); err != nil {
		return model.Comment{}, translate(err, "user")
	}
	if err := requireText("body", in.Body, 0); err != nil {
		return model.Comment{}, err
	}
	urls := content.Normalize(in.ImageURLs)
	if err := p.screen(ctx, moderation.KindComment, in.Body, urls); err != nil {
		return model.Comment{}, err
	}

	rec := content.Assemble(in.Body, urls)
	now := p.now()
	draft := model.Comment{
		AnswerID:  answerID,
		UserID:    actorID,
		Body:      rec.Text,
		ImageURLs: rec.URLs(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := ctx.Err(); err != nil {
		return model.Comment{}, err
	}
	id, err := p.Store.CreateComment(ctx, &draft)
	if err != nil {
		return model.Comment{}, translate(err, "comment")
	}
	if c, err = p.Store.GetComment(ctx, id); err != nil {
		return model.Comment{}, translate(err, "comment")
	}
	return c, nil
}

func (p *Pipeline) UpdateComment(ctx context.Context, actorID, commentID int64, in PostInput) (c model.Comment, err error) {
	ctx, span := p.start(ctx, "qa.UpdateComment")
	defer func() { p.observe("comment", "update", err); end(span, err) }()

	existing, err := p.Store.GetComment(ctx, commentID)
	if err != nil {
		return model.Comment{}, translate(err, "comment")
	}
	if _, err := p.Store.GetUser(ctx, actorID); err != nil {
		return model.Comment{}, translate(err, "user")
	}
	if err := assertOwner(existing, actorID); err != nil {
		return model.Comment{}, err
	}
	if err := requireText("body", in.Body, 0); err != nil {
		return model.Comment{}, err
	}
	urls, err := p.screenPost(ctx, moderation.KindComment, in, existing.ImageURLs)
	if err != nil {
		return model.Comment{}, err
	}

	rec := content.Assemble(in.Body, urls)
	existing.Body = rec.Text
	existing.ImageURLs = rec.URLs()
	existing.UpdatedAt = p.now()
	if err := ctx.Err(); err != nil {
		return model.Comment{}, err
	}
	if err := p.Store.UpdateComment(ctx, &existing); err != nil {
		return model.Comment{}, translate(err, "comment")
	}
	if c, err = p.Store.GetComment(ctx, commentID); err != nil {
		return model.Comment{}, translate(err, "comment")
	}
	return c, nil
}

func (p *Pipeline) DeleteComment(ctx context.Context, actorID, commentID int64) (err error) {
	ctx, span := p.start(ctx, "qa.DeleteComment")
	defer func() { p.observe("comment", "delete", err); end(span, err) }()

	existing, err := p.Store.GetComment(ctx, commentID)
	if err != nil {
		return translate(err, "comment")
	}
	if err := p.assertCanDelete(ctx, existing, actorID); err != nil {
		return err
	}
	return translate(p.Store.DeleteComment(ctx, commentID), "comment")
}

// screenPost screens an answer or comment update and returns the attachment
// list to persist. Kept attachments were screened when first submitted.
func (p *Pipeline) screenPost(ctx context.Context, kind moderation.Kind, in PostInput, existing []string) ([]string, error) {
	var urls []string
	if in.ImageURLs != nil {
		urls = content.Normalize(in.ImageURLs)
	}
	if err := p.screen(ctx, kind, in.Body, urls); err != nil {
		return nil, err
	}
	if in.ImageURLs == nil {
		return existing, nil
	}
	return urls, nil
}
