package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"servicedocs-backend/internal/shared/storage/object"
)

// Store implements object.Store on the local filesystem for development.
// Objects live at baseDir/bucket/key and presigned URLs are file:// URLs.
type Store struct {
	baseDir string
	now     func() time.Time
}

// New creates a local object store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open %s/%s: %w", bucket, key, object.ErrNotFound)
		}
		return nil, err
	}
	return f, nil
}

// Put writes r at bucket/key. Used by dev tooling and tests in place of a client-side PUT.
func (s *Store) Put(ctx context.Context, bucket, key string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := s.resolve(bucket, key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, r)
	if err != nil {
		return 0, fmt.Errorf("write body: %w", err)
	}
	return written, nil
}

// PresignPut returns a file:// URL for the target path.
func (s *Store) PresignPut(ctx context.Context, req object.PutRequest) (object.Presigned, error) {
	return s.presign(ctx, req.Bucket, req.Key, http.MethodPut, req.Expires)
}

// PresignGet returns a file:// URL for the stored object.
func (s *Store) PresignGet(ctx context.Context, req object.GetRequest) (object.Presigned, error) {
	return s.presign(ctx, req.Bucket, req.Key, http.MethodGet, req.Expires)
}

// Delete removes a stored object. Missing objects are ignored.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) presign(ctx context.Context, bucket, key, method string, expires time.Duration) (object.Presigned, error) {
	if err := ctx.Err(); err != nil {
		return object.Presigned{}, err
	}
	fullPath, err := s.resolve(bucket, key)
	if err != nil {
		return object.Presigned{}, err
	}
	abs, err := filepath.Abs(fullPath)
	if err != nil {
		return object.Presigned{}, err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return object.Presigned{
		URL:       u.String(),
		Method:    method,
		ExpiresAt: s.now().Add(object.ExpiresOrDefault(expires)),
	}, nil
}

func (s *Store) resolve(bucket, key string) (string, error) {
	cleanBucket := filepath.Clean(strings.TrimSpace(bucket))
	cleanKey := filepath.Clean(strings.TrimSpace(key))
	for _, part := range []string{cleanBucket, cleanKey} {
		if part == "." || part == "" || strings.HasPrefix(part, "..") || filepath.IsAbs(part) {
			return "", fmt.Errorf("invalid storage key")
		}
	}
	return filepath.Join(s.baseDir, cleanBucket, cleanKey), nil
}

var _ object.Store = (*Store)(nil)
