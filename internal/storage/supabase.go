package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"github.com/stackit-dev/stackit/internal/config"
)

// Supabase stores objects in a public Supabase Storage bucket.
type Supabase struct {
	storage *storage_go.Client
	bucket  string
	// publicPrefix is the public URL of the bucket root, with trailing slash.
	publicPrefix string
}

func NewSupabase(cfg config.Storage) (*Supabase, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" || cfg.Bucket == "" {
		return nil, errors.New("supabase storage needs url, key and bucket")
	}
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, nil)
	if err != nil {
		return nil, fmt.Errorf("supabase client: %w", err)
	}
	return &Supabase{
		storage:      client.Storage,
		bucket:       cfg.Bucket,
		publicPrefix: strings.TrimRight(cfg.SupabaseURL, "/") + "/storage/v1/object/public/" + cfg.Bucket + "/",
	}, nil
}

func (s *Supabase) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	upsert := false
	_, err := s.storage.UploadFile(s.bucket, key, bytes.NewReader(data), storage_go.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.storage.GetPublicUrl(s.bucket, key).SignedURL, nil
}

func (s *Supabase) Delete(_ context.Context, key string) error {
	if _, err := s.storage.RemoveFile(s.bucket, []string{key}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Supabase) KeyFor(url string) (string, error) {
	return keyUnder(s.publicPrefix, url)
}

func keyUnder(prefix, url string) (string, error) {
	key, ok := strings.CutPrefix(url, prefix)
	if !ok || key == "" || !strings.HasPrefix(key, Root+"/") || strings.Contains(key, "..") {
		return "", ErrNotOwned
	}
	return key, nil
}
