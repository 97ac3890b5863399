package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"roblox-lms-backend/internal/logger"
)

var ErrObjectNotFound = errors.New("object not found")

// MasterVideoStore holds master recordings in a GCS bucket. Uploads go straight from the
// recording host to the bucket through V4 signed URLs.
type MasterVideoStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewMasterVideoStore(ctx context.Context, bucket, credentialsFile string, log *logger.Logger) (*MasterVideoStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("missing clip bucket name")
	}

	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	log.Info("master video storage initialized", "bucket", bucket)
	return &MasterVideoStore{log: log.With("service", "MasterVideoStore"), client: client, bucket: bucket}, nil
}

// URI returns the gs:// location of key.
func (s *MasterVideoStore) URI(key string) string {
	return "gs://" + s.bucket + "/" + strings.TrimLeft(key, "/")
}

func (s *MasterVideoStore) SignedUploadURL(key, contentType string, ttl time.Duration) (string, time.Time, error) {
	expires := time.Now().Add(ttl)
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		ContentType: contentType,
		Expires:     expires,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign upload url for %s: %w", key, err)
	}
	return url, expires, nil
}

func (s *MasterVideoStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Download copies key into dir and returns the local path.
func (s *MasterVideoStore) Download(ctx context.Context, key, dir string) (string, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("open %s: %w", key, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(key))
	if err := writeFile(dst, r); err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	s.log.Debug("downloaded master video", "key", key, "path", dst)
	return dst, nil
}

// writeFile copies r into dst. A failed copy removes dst so a later run never mistakes a
// truncated file for a complete download.
func writeFile(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

func (s *MasterVideoStore) Close() error {
	return s.client.Close()
}

// ParseURI splits gs://bucket/key. ok is false for anything else.
func ParseURI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "gs://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
