package qa

import (
	"context"
	"strings"

	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/store"
)

// Catalog serves the read side: question pages, answer threads and tags.
type Catalog struct {
	Deps
}

func NewCatalog(deps Deps) *Catalog {
	return &Catalog{Deps: deps}
}

// ViewQuestion returns the question and counts the view.
func (c *Catalog) ViewQuestion(ctx context.Context, id int64) (model.Question, error) {
	if err := c.Store.IncrementViewCount(ctx, id); err != nil {
		return model.Question{}, translate(err, "question")
	}
	q, err := c.Store.GetQuestion(ctx, id)
	return q, translate(err, "question")
}

func (c *Catalog) ListQuestions(ctx context.Context, tag string, limit int) ([]model.Question, error) {
	questions, err := c.Store.ListQuestions(ctx, store.QuestionListOpts{
		Tag:   strings.ToLower(strings.TrimSpace(tag)),
		Limit: limit,
	})
	return questions, translate(err, "question")
}

// QuestionsByUser lists the questions userID asked, newest first.
func (c *Catalog) QuestionsByUser(ctx context.Context, userID int64, limit int) ([]model.Question, error) {
	if _, err := c.Store.GetUser(ctx, userID); err != nil {
		return nil, translate(err, "user")
	}
	questions, err := c.Store.ListQuestions(ctx, store.QuestionListOpts{UserID: userID, Limit: limit})
	return questions, translate(err, "question")
}

// Answers lists a question's answers, accepted first.
func (c *Catalog) Answers(ctx context.Context, questionID int64) ([]model.Answer, error) {
	if _, err := c.Store.GetQuestion(ctx, questionID); err != nil {
		return nil, translate(err, "question")
	}
	answers, err := c.Store.ListAnswersByQuestion(ctx, questionID)
	return answers, translate(err, "answer")
}

func (c *Catalog) Comments(ctx context.Context, answerID int64) ([]model.Comment, error) {
	if _, err := c.Store.GetAnswer(ctx, answerID); err != nil {
		return nil, translate(err, "answer")
	}
	comments, err := c.Store.ListCommentsByAnswer(ctx, answerID)
	return comments, translate(err, "comment")
}

func (c *Catalog) Tags(ctx context.Context) ([]model.Tag, error) {
	tags, err := c.Store.ListTags(ctx)
	return tags, translate(err, "tag")
}
