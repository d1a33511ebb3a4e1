// Package storage accepts image uploads and hands back public URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stackit-dev/stackit/internal/apperr"
	"github.com/stackit-dev/stackit/internal/config"
	"github.com/stackit-dev/stackit/internal/metrics"
)

// Root prefixes every object key.
const Root = "stackit"

type Kind string

const (
	KindAvatar   Kind = "avatar"
	KindQuestion Kind = "question"
	KindAnswer   Kind = "answer"
	KindComment  Kind = "comment"
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAvatar, KindQuestion, KindAnswer, KindComment:
		return k, true
	}
	return "", false
}

// Folder is where objects of this kind live, e.g. "stackit/questions".
func (k Kind) Folder() string {
	return Root + "/" + string(k) + "s"
}

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var ErrNotOwned = errors.New("url does not belong to this store")

// Backend persists objects under a key and maps between keys and public URLs.
type Backend interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyFor returns the object key behind a public URL, or ErrNotOwned.
	KeyFor(url string) (string, error)
}

type Upload struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type Service struct {
	backend  Backend
	maxBytes int64
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func NewService(backend Backend, cfg config.Storage, logger *zap.Logger, collector *metrics.Collector) *Service {
	return &Service{backend: backend, maxBytes: cfg.MaxUploadBytes, logger: logger, metrics: collector}
}

// MaxBytes is the largest accepted upload.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload sniffs data, rejects anything that is not an allowed image and
// stores it under a fresh random name.
func (s *Service) Upload(ctx context.Context, kind Kind, data []byte) (up Upload, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "rejected"
			if apperr.KindOf(err) == apperr.KindInternal {
				result = "error"
			}
		}
		s.metrics.Uploads.WithLabelValues(string(kind), result).Inc()
	}()

	if _, ok := ParseKind(string(kind)); !ok {
		return Upload{}, apperr.Validation(fmt.Sprintf("unknown upload kind %q", kind))
	}
	if len(data) == 0 {
		return Upload{}, apperr.Validation("file is empty")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return Upload{}, apperr.Validation(fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}
	mt := mimetype.Detect(data)
	ext, ok := allowedTypes[mt.String()]
	if !ok {
		return Upload{}, apperr.Validation(fmt.Sprintf("unsupported file type %s", mt.String()))
	}

	key := kind.Folder() + "/" + uuid.NewString() + ext
	url, err := s.backend.Put(ctx, key, mt.String(), data)
	if err != nil {
		return Upload{}, apperr.Internal("store upload", err)
	}
	s.logger.Info("file uploaded", zap.String("key", key), zap.String("content_type", mt.String()), zap.Int("size", len(data)))
	return Upload{URL: url, Key: key, ContentType: mt.String(), Size: len(data)}, nil
}

// Delete removes the object behind url. Failures are logged and swallowed.
func (s *Service) Delete(ctx context.Context, url string) {
	key, err := s.backend.KeyFor(url)
	if err != nil {
		s.logger.Warn("delete skipped", zap.String("url", url), zap.Error(err))
		return
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		s.logger.Warn("delete failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.logger.Info("file deleted", zap.String("key", key))
}

// New picks the backend named in cfg.
func New(cfg config.Storage, logger *zap.Logger, collector *metrics.Collector) (*Service, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case "supabase":
		backend, err = NewSupabase(cfg)
	case "", "disk":
		backend, err = NewDisk(cfg.Dir, cfg.PublicBaseURL)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewService(backend, cfg, logger, collector), nil
}
