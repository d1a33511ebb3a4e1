package store

import (
	"context"
	"errors"

	"github.com/stackit-dev/stackit/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateTag  = errors.New("duplicate tag")
	ErrDuplicateName = errors.New("duplicate name")
	// ErrAcceptConflict is returned when a write would leave two accepted
	// answers on one question.
	ErrAcceptConflict = errors.New("accepted answer conflict")
)

// QuestionListOpts filters a question listing. Zero values match everything.
type QuestionListOpts struct {
	Tag    string
	UserID int64
	Limit  int
}

// Store is the full persistence surface. WithTx runs fn against a Store
// bound to a single transaction; fn's error rolls it back.
type Store interface {
	UserStore
	QuestionStore
	AnswerStore
	CommentStore
	TagStore
	VoteStore
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
}

type QuestionStore interface {
	CreateQuestion(ctx context.Context, q *model.Question) (int64, error)
	GetQuestion(ctx context.Context, id int64) (model.Question, error)
	// LockQuestion reads a question and, where the driver supports it, holds a
	// row lock on it until the surrounding transaction ends.
	LockQuestion(ctx context.Context, id int64) (model.Question, error)
	ListQuestions(ctx context.Context, opts QuestionListOpts) ([]model.Question, error)
	UpdateQuestion(ctx context.Context, q *model.Question) error
	SetQuestionTags(ctx context.Context, questionID int64, tagIDs []int64) error
	IncrementViewCount(ctx context.Context, questionID int64) error
	DeleteQuestion(ctx context.Context, id int64) error
}

type AnswerStore interface {
	CreateAnswer(ctx context.Context, a *model.Answer) (int64, error)
	GetAnswer(ctx context.Context, id int64) (model.Answer, error)
	ListAnswersByQuestion(ctx context.Context, questionID int64) ([]model.Answer, error)
	// LockAnswersByQuestion is ListAnswersByQuestion holding row locks.
	LockAnswersByQuestion(ctx context.Context, questionID int64) ([]model.Answer, error)
	UpdateAnswer(ctx context.Context, a *model.Answer) error
	SetAnswerAccepted(ctx context.Context, answerID int64, accepted bool) error
	DeleteAnswer(ctx context.Context, id int64) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, c *model.Comment) (int64, error)
	GetComment(ctx context.Context, id int64) (model.Comment, error)
	ListCommentsByAnswer(ctx context.Context, answerID int64) ([]model.Comment, error)
	UpdateComment(ctx context.Context, c *model.Comment) error
	DeleteComment(ctx context.Context, id int64) error
}

type TagStore interface {
	// CreateTag returns ErrDuplicateTag when the name is already taken.
	CreateTag(ctx context.Context, tag *model.Tag) (int64, error)
	GetTagByName(ctx context.Context, name string) (model.Tag, error)
	ListTags(ctx context.Context) ([]model.Tag, error)
}

type VoteStore interface {
	// UpsertVote records the voter's current value, replacing any earlier one.
	UpsertVote(ctx context.Context, vote *model.Vote) error
	VoteTally(ctx context.Context, target model.VoteTarget, targetID int64) (int, error)
}
