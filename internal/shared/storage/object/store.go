package object

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"docvault-backend/internal/shared/util"
)

// SniffLen is how many leading bytes stores read for content detection.
const SniffLen = 3072

// Object describes a stored file.
type Object struct {
	Pointer     string
	SizeBytes   int64
	ContentType string
}

// ObjectStore defines the contract for saving and retrieving binary objects.
// Pointers are opaque to callers: relative paths for local disk,
// s3://bucket/key for S3.
type ObjectStore interface {
	Kind() string
	Save(ctx context.Context, fileName string, r io.Reader) (Object, error)
	Open(ctx context.Context, pointer string) (io.ReadCloser, error)
	Delete(ctx context.Context, pointer string) error
}

// NewKey builds the storage key for an upload: uploads/<unix-ms>-<rand>-<name>.
func NewKey(now time.Time, fileName string) (string, error) {
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join("uploads", fmt.Sprintf("%d-%s-%s", now.UnixMilli(), randomSuffix(), name)), nil
}

// DetectContentType sniffs the media type of the leading bytes.
func DetectContentType(head []byte) string {
	return mimetype.Detect(head).String()
}

// Sniff reads up to SniffLen bytes from r and returns them together with a
// reader that replays them before the remainder.
func Sniff(r io.Reader) ([]byte, io.Reader, error) {
	buf := make([]byte, SniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, nil, fmt.Errorf("read sniff: %w", err)
	}
	head := buf[:n]
	return head, io.MultiReader(bytes.NewReader(head), r), nil
}

func randomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano()%1e8)
	}
	return hex.EncodeToString(b[:])
}
