package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/apperr"
	"github.com/stackit-dev/stackit/internal/auth"
	"github.com/stackit-dev/stackit/internal/rate"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type ctxKey int

const identityKey ctxKey = iota

// requireAuth rejects requests without a valid bearer token and stores the
// caller's identity on the context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.fail(w, r, apperr.Unauthorized("missing bearer token"))
			return
		}
		bearer := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		verified, err := s.Auth.Authenticate(r.Context(), bearer)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrUnknownUser) {
				s.fail(w, r, apperr.Unauthorized("invalid or expired token"))
				return
			}
			s.fail(w, r, apperr.Internal("authenticate", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, verified)))
	})
}

// identity returns the authenticated caller. Only valid behind requireAuth.
func identity(r *http.Request) auth.Verified {
	v, _ := r.Context().Value(identityKey).(auth.Verified)
	return v
}

// allowRateLimit charges one hit for the caller against action. A limit of
// zero disables the check.
func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 {
		return true
	}
	ok, retry := s.Limiter.Allow(rate.Key(action, identity(r).UserID), limit, time.Minute)
	if !ok {
		writeRateLimit(w, retry)
		return false
	}
	return true
}

// fail writes err as a JSON error body. Application errors carry their kind
// and details; anything else is logged and reported as an internal error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		s.Logger.Debug("request cancelled", zap.String("path", r.URL.Path))
		writeJSON(w, 499, map[string]any{"error": "request cancelled"})
		return
	}
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Internal("internal server error", err)
	}
	if appErr.Kind == apperr.KindInternal {
		s.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	body := make(map[string]any, len(appErr.Details)+2)
	for k, v := range appErr.Details {
		body[k] = v
	}
	body["error"] = appErr.Message
	body["type"] = string(appErr.Kind)
	writeJSON(w, appErr.HTTPStatus(), body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	secs := int(retry.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"type":        string(apperr.KindRateLimit),
		"retry_after": secs,
	})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found", "type": string(apperr.KindNotFound)})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

// readJSON decodes a request body into dest and runs its validate tags.
func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return apperr.Validation("invalid JSON body: " + err.Error())
	}
	if err := validate.Struct(dest); err != nil {
		return apperr.Validation(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of " + fe.Param()
	default:
		return field + " is invalid"
	}
}

// pathID parses the {id} route parameter.
func pathID(r *http.Request, resource string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + resource + " id")
	}
	return id, nil
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}
