package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docvault-backend/internal/shared/storage/object"
)

// Kind is the storage location recorded for local files.
const Kind = "local"

// Store implements ObjectStore using the local filesystem.
type Store struct {
	baseDir string
	now     func() time.Time
}

// New creates a new local object store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, now: time.Now}
}

func (s *Store) Kind() string { return Kind }

// Save writes the reader to disk under uploads/ and returns the relative path.
func (s *Store) Save(ctx context.Context, fileName string, r io.Reader) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}
	key, err := object.NewKey(s.now(), fileName)
	if err != nil {
		return object.Object{}, err
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return object.Object{}, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return object.Object{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	head, body, err := object.Sniff(r)
	if err != nil {
		_ = os.Remove(fullPath)
		return object.Object{}, err
	}
	written, err := io.Copy(f, body)
	if err != nil {
		_ = os.Remove(fullPath)
		return object.Object{}, fmt.Errorf("write body: %w", err)
	}

	return object.Object{
		Pointer:     key,
		SizeBytes:   written,
		ContentType: object.DetectContentType(head),
	}, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, pointer string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(pointer)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

// Delete removes a stored object. Missing files are not an error.
func (s *Store) Delete(ctx context.Context, pointer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(pointer)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *Store) resolve(pointer string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(pointer))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key")
	}
	return filepath.Join(s.baseDir, clean), nil
}

var _ object.ObjectStore = (*Store)(nil)
