package qa

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/apperr"
	"github.com/stackit-dev/stackit/internal/model"
)

// Ledger records one vote per user and target. A repeat vote replaces the
// earlier value; zero withdraws it.
type Ledger struct {
	Deps
}

func NewLedger(deps Deps) *Ledger {
	return &Ledger{Deps: deps}
}

func (l *Ledger) VoteAnswer(ctx context.Context, answerID, userID int64, value int) (int, error) {
	return l.Vote(ctx, model.VoteTargetAnswer, answerID, userID, value)
}

func (l *Ledger) VoteQuestion(ctx context.Context, questionID, userID int64, value int) (int, error) {
	return l.Vote(ctx, model.VoteTargetQuestion, questionID, userID, value)
}

// Vote stores userID's value for the target and returns the new tally.
func (l *Ledger) Vote(ctx context.Context, target model.VoteTarget, targetID, userID int64, value int) (tally int, err error) {
	ctx, span := l.start(ctx, "qa.Vote")
	defer func() { end(span, err) }()

	if value < -1 || value > 1 {
		return 0, apperr.Validation("vote value must be -1, 0 or 1")
	}
	if err := l.targetExists(ctx, target, targetID); err != nil {
		return 0, err
	}
	if _, err := l.Store.GetUser(ctx, userID); err != nil {
		return 0, translate(err, "user")
	}
	vote := model.Vote{
		TargetType: target,
		TargetID:   targetID,
		UserID:     userID,
		Value:      value,
		CreatedAt:  l.now(),
	}
	if err := l.Store.UpsertVote(ctx, &vote); err != nil {
		return 0, translate(err, string(target))
	}
	tally, err = l.Store.VoteTally(ctx, target, targetID)
	if err != nil {
		return 0, translate(err, string(target))
	}
	l.Metrics.Votes.WithLabelValues(string(target), strconv.Itoa(value)).Inc()
	l.Logger.Debug("vote recorded",
		zap.String("target", string(target)),
		zap.Int64("target_id", targetID),
		zap.Int64("user_id", userID),
		zap.Int("value", value),
		zap.Int("tally", tally),
	)
	return tally, nil
}

func (l *Ledger) Tally(ctx context.Context, target model.VoteTarget, targetID int64) (int, error) {
	if err := l.targetExists(ctx, target, targetID); err != nil {
		return 0, err
	}
	tally, err := l.Store.VoteTally(ctx, target, targetID)
	return tally, translate(err, string(target))
}

func (l *Ledger) targetExists(ctx context.Context, target model.VoteTarget, id int64) error {
	switch target {
	case model.VoteTargetAnswer:
		_, err := l.Store.GetAnswer(ctx, id)
		return translate(err, "answer")
	case model.VoteTargetQuestion:
		_, err := l.Store.GetQuestion(ctx, id)
		return translate(err, "question")
	default:
		return apperr.Validation("unknown vote target")
	}
}
