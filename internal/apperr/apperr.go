// Package apperr defines the error kinds surfaced by the submission core and
// their mapping onto HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindNotFound          Kind = "NOT_FOUND"
	KindForbidden         Kind = "FORBIDDEN"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindConflict          Kind = "CONFLICT"
	KindModerationBlocked Kind = "CONTENT_MODERATION"
	KindRateLimit         Kind = "RATE_LIMIT"
	KindInternal          Kind = "INTERNAL"
)

// Error is the application error carried from the core to the transport.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the kind onto a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden, KindModerationBlocked:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WithCause wraps an underlying error
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func Forbidden(message string) *Error {
	if message == "" {
		message = "forbidden"
	}
	return &Error{Kind: KindForbidden, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Unauthorized(message string) *Error {
	if message == "" {
		message = "unauthorized"
	}
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func RateLimited(retryAfterSeconds int) *Error {
	return &Error{
		Kind:    KindRateLimit,
		Message: "rate limit exceeded",
		Details: map[string]any{"retry_after": retryAfterSeconds},
	}
}

func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// ModerationBlocked reports content rejected by moderation. url is empty when
// the text body triggered the block.
func ModerationBlocked(contentType, action string, reasons []string, url string) *Error {
	if reasons == nil {
		reasons = []string{}
	}
	msg := fmt.Sprintf("%s content was blocked by moderation", contentType)
	if url != "" {
		msg = fmt.Sprintf("image %s was blocked by moderation", url)
	}
	details := map[string]any{
		"content_type":      contentType,
		"moderation_action": action,
		"reasons":           reasons,
		"status":            "blocked",
	}
	if url != "" {
		details["url"] = url
	}
	return &Error{Kind: KindModerationBlocked, Message: msg, Details: details}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reasons returns the moderation reasons carried by a blocked error.
func Reasons(err error) []string {
	appErr, ok := As(err)
	if !ok || appErr.Kind != KindModerationBlocked {
		return nil
	}
	reasons, _ := appErr.Details["reasons"].([]string)
	return reasons
}
