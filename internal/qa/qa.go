// Package qa holds the submission core: moderation-gated create/update/delete
// for questions, answers and comments, answer acceptance and the vote ledger.
package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/apperr"
	"github.com/stackit-dev/stackit/internal/metrics"
	"github.com/stackit-dev/stackit/internal/moderation"
	"github.com/stackit-dev/stackit/internal/store"
)

// Screener is the part of the moderation gateway the core depends on.
type Screener interface {
	ScreenText(ctx context.Context, content string, kind moderation.Kind) moderation.Verdict
	ScreenMany(ctx context.Context, urls []string) []moderation.Verdict
}

// Owned is any record with an owning user.
type Owned interface {
	OwnerID() int64
}

// assertOwner is the single ownership check used by every mutating path.
func assertOwner(record Owned, actorID int64) error {
	if record.OwnerID() != actorID {
		return apperr.Forbidden("you can only modify your own content")
	}
	return nil
}

// Deps bundles what the core components share.
type Deps struct {
	Store    store.Store
	Screener Screener
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Tracer   trace.Tracer
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d Deps) start(ctx context.Context, name string) (context.Context, trace.Span) {
	return d.Tracer.Start(ctx, name)
}

// end closes span and records err on it.
func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperr.Is(err, apperr.KindModerationBlocked):
		return "blocked"
	case apperr.Is(err, apperr.KindForbidden):
		return "forbidden"
	case apperr.Is(err, apperr.KindNotFound):
		return "not_found"
	case apperr.Is(err, apperr.KindValidation):
		return "invalid"
	default:
		return "error"
	}
}

// translate maps store sentinels onto application errors. resource names what
// a NotFound refers to.
func translate(err error, resource string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound(resource).WithCause(err)
	case errors.Is(err, store.ErrAcceptConflict):
		return apperr.Conflict("another answer was accepted concurrently").WithCause(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return apperr.Internal(fmt.Sprintf("%s operation failed", resource), err)
	}
}

// screen runs text then attachments through moderation. Nothing may be
// written before it returns nil.
func (d Deps) screen(ctx context.Context, kind moderation.Kind, text string, urls []string) error {
	v := d.Screener.ScreenText(ctx, text, kind)
	if moderation.IsBlocked(v) {
		return apperr.ModerationBlocked(string(kind), string(v.Action), v.Reasons, "")
	}
	if len(urls) == 0 {
		return nil
	}
	for i, v := range d.Screener.ScreenMany(ctx, urls) {
		if moderation.IsBlocked(v) {
			return apperr.ModerationBlocked(string(moderation.KindImage), string(v.Action), v.Reasons, urls[i])
		}
	}
	return nil
}

func requireText(field, value string, max int) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return apperr.Validation(field + " is required")
	}
	if max > 0 && len([]rune(value)) > max {
		return apperr.Validation(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}
