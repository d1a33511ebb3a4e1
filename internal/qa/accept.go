package qa

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/model"
	"github.com/stackit-dev/stackit/internal/store"
)

// Acceptance marks an answer as the accepted one for its question.
type Acceptance struct {
	Deps
}

func NewAcceptance(deps Deps) *Acceptance {
	return &Acceptance{Deps: deps}
}

// Accept makes answerID the only accepted answer of its question. Only the
// question's owner may do this. The clear and set steps share one
// transaction holding locks on the question and its answers.
func (c *Acceptance) Accept(ctx context.Context, answerID, actorID int64) (a model.Answer, err error) {
	ctx, span := c.start(ctx, "qa.Accept")
	span.SetAttributes(attribute.Int64("answer.id", answerID))
	defer func() { end(span, err) }()

	var cleared []int64
	err = c.Store.WithTx(ctx, func(tx store.Store) error {
		target, err := tx.GetAnswer(ctx, answerID)
		if err != nil {
			return translate(err, "answer")
		}
		question, err := tx.LockQuestion(ctx, target.QuestionID)
		if err != nil {
			return translate(err, "question")
		}
		if err := assertOwner(question, actorID); err != nil {
			return err
		}
		answers, err := tx.LockAnswersByQuestion(ctx, question.ID)
		if err != nil {
			return err
		}
		for _, other := range answers {
			if other.ID == target.ID || !other.Accepted {
				continue
			}
			if err := tx.SetAnswerAccepted(ctx, other.ID, false); err != nil {
				return err
			}
			cleared = append(cleared, other.ID)
		}
		if !target.Accepted {
			if err := tx.SetAnswerAccepted(ctx, target.ID, true); err != nil {
				return err
			}
		}
		a, err = tx.GetAnswer(ctx, target.ID)
		return err
	})
	if err != nil {
		return model.Answer{}, translate(err, "answer")
	}
	c.Metrics.Accepts.Inc()
	c.Logger.Info("answer accepted",
		zap.Int64("answer_id", a.ID),
		zap.Int64("question_id", a.QuestionID),
		zap.Int64s("cleared", cleared),
	)
	return a, nil
}
