package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"docvault-backend/internal/shared/storage/object"
)

// Kind is the storage location recorded for S3 objects.
const Kind = "s3"

const pointerScheme = "s3://"

// Store implements ObjectStore using Amazon S3.
type Store struct {
	client   *s3.Client
	bucket   string
	prefix   string
	kmsKeyID string
	now      func() time.Time
}

// New creates a new S3-backed object store.
func New(ctx context.Context, region, bucket, prefix, kmsKeyID string) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Store{
		client:   s3.NewFromConfig(cfg),
		bucket:   bucket,
		prefix:   normalizePrefix(prefix),
		kmsKeyID: strings.TrimSpace(kmsKeyID),
		now:      time.Now,
	}, nil
}

func (s *Store) Kind() string { return Kind }

// Save uploads the reader contents and returns an s3://bucket/key pointer.
func (s *Store) Save(ctx context.Context, fileName string, r io.Reader) (object.Object, error) {
	if err := ctx.Err(); err != nil {
		return object.Object{}, err
	}
	key, err := object.NewKey(s.now(), fileName)
	if err != nil {
		return object.Object{}, err
	}
	objectKey := applyPrefix(s.prefix, key)

	head, body, err := object.Sniff(r)
	if err != nil {
		return object.Object{}, err
	}
	mimeType := object.DetectContentType(head)
	counter := &countingReader{r: body}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        counter,
		ContentType: aws.String(mimeType),
	}
	if s.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return object.Object{}, fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}

	return object.Object{
		Pointer:     formatPointer(s.bucket, objectKey),
		SizeBytes:   counter.n,
		ContentType: mimeType,
	}, nil
}

// Open downloads a stored object for reading.
func (s *Store) Open(ctx context.Context, pointer string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bucket, key, err := s.locate(pointer)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// Delete removes a stored object. S3 treats missing keys as success.
func (s *Store) Delete(ctx context.Context, pointer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bucket, key, err := s.locate(pointer)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 delete object bucket=%s key=%s: %w", bucket, key, err)
	}
	return nil
}

// locate accepts either an s3:// pointer or a bare key relative to the prefix.
func (s *Store) locate(pointer string) (string, string, error) {
	if strings.HasPrefix(pointer, pointerScheme) {
		return parsePointer(pointer)
	}
	key := applyPrefix(s.prefix, pointer)
	if key == "" {
		return "", "", fmt.Errorf("invalid storage pointer %q", pointer)
	}
	return s.bucket, key, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func formatPointer(bucket, key string) string {
	return pointerScheme + bucket + "/" + key
}

func parsePointer(pointer string) (string, string, error) {
	rest := strings.TrimPrefix(pointer, pointerScheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid storage pointer %q", pointer)
	}
	return bucket, key, nil
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

var _ object.ObjectStore = (*Store)(nil)
