// Package moderation screens submitted text and images against the external
// moderation service. Any upstream failure yields an allow verdict.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/config"
	"github.com/stackit-dev/stackit/internal/metrics"
)

// Failure categories reported when a call fails open.
const (
	CategoryTransport   = "transport"
	CategoryTimeout     = "timeout"
	CategoryStatus      = "status"
	CategoryDecode      = "decode"
	CategoryCircuitOpen = "circuit_open"
)

const maxResponseBytes = 1 << 20

type Gateway struct {
	baseURL string
	timeout time.Duration
	enabled atomic.Bool
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
}

func NewGateway(cfg config.Moderation, client *http.Client, logger *zap.Logger, collector *metrics.Collector, tracer trace.Tracer) *Gateway {
	if client == nil {
		client = &http.Client{}
	}
	g := &Gateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  client,
		logger:  logger,
		metrics: collector,
		tracer:  tracer,
	}
	g.enabled.Store(cfg.Enabled)
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "moderation",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("moderation circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g
}

// SetEnabled flips the administrative switch. While disabled every screen
// returns Allow without contacting the service.
func (g *Gateway) SetEnabled(enabled bool) {
	if g.enabled.Swap(enabled) != enabled {
		g.logger.Info("moderation switch changed", zap.Bool("enabled", enabled))
	}
}

func (g *Gateway) Enabled() bool {
	return g.enabled.Load()
}

func (g *Gateway) ScreenText(ctx context.Context, content string, kind Kind) Verdict {
	if strings.TrimSpace(content) == "" {
		return Allow()
	}
	return g.screen(ctx, kind, func(ctx context.Context) (*http.Request, error) {
		body, err := json.Marshal(map[string]string{
			"content":      content,
			"content_type": string(kind),
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/moderate/text", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (g *Gateway) ScreenImage(ctx context.Context, imageURL string) Verdict {
	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return Allow()
	}
	return g.screen(ctx, KindImage, func(ctx context.Context) (*http.Request, error) {
		form := url.Values{"image_url": {imageURL}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/moderate/image", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
}

// ScreenMany screens each url in turn. verdicts[i] belongs to urls[i].
func (g *Gateway) ScreenMany(ctx context.Context, urls []string) []Verdict {
	verdicts := make([]Verdict, len(urls))
	for i, u := range urls {
		verdicts[i] = g.ScreenImage(ctx, u)
	}
	return verdicts
}

// Healthy reports whether the moderation service answers its health probe.
func (g *Gateway) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug("moderation health probe failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	return resp.StatusCode == http.StatusOK
}

func (g *Gateway) screen(ctx context.Context, kind Kind, build func(context.Context) (*http.Request, error)) Verdict {
	if !g.enabled.Load() {
		return Allow()
	}
	ctx, span := g.tracer.Start(ctx, "moderation.screen", trace.WithAttributes(attribute.String("moderation.kind", string(kind))))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.do(ctx, build)
	})
	g.metrics.ModerationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return g.failOpen(kind, err)
	}
	v := out.(Verdict)
	span.SetAttributes(attribute.String("moderation.action", string(v.Action)))
	g.metrics.ModerationVerdicts.WithLabelValues(string(kind), string(v.Action)).Inc()
	return v
}

func (g *Gateway) do(ctx context.Context, build func(context.Context) (*http.Request, error)) (Verdict, error) {
	req, err := build(ctx)
	if err != nil {
		return Verdict{}, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return Verdict{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Verdict{}, &statusError{code: resp.StatusCode}
	}
	var wire wireVerdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&wire); err != nil {
		return Verdict{}, &decodeError{err: err}
	}
	return wire.verdict(), nil
}

// failOpen is the single exit for every upstream failure.
func (g *Gateway) failOpen(kind Kind, err error) Verdict {
	category := Categorize(err)
	g.metrics.ModerationFailures.WithLabelValues(string(kind), category).Inc()
	g.logger.Warn("moderation unavailable, allowing content",
		zap.String("op", string(kind)),
		zap.String("category", category),
		zap.String("outcome", string(ActionAllow)),
		zap.Error(err),
	)
	return Allow()
}

// Categorize buckets an upstream error for logs and metrics.
func Categorize(err error) string {
	var se *statusError
	var de *decodeError
	var ne net.Error
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return CategoryCircuitOpen
	case errors.As(err, &se):
		return CategoryStatus
	case errors.As(err, &de):
		return CategoryDecode
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return CategoryTimeout
	default:
		return CategoryTransport
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("moderation service returned status %d", e.code)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode moderation response: %v", e.err)
}

func (e *decodeError) Unwrap() error {
	return e.err
}
