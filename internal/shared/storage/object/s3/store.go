package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"servicedocs-backend/internal/shared/storage/object"
)

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of the S3 presign client used by Store.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store implements object.Store using Amazon S3.
type Store struct {
	client  API
	presign Presigner
	prefix  string
	now     func() time.Time
}

// New creates an S3-backed store using the default AWS credential chain.
func New(ctx context.Context, region, prefix string) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewFromClient(s3.NewFromConfig(cfg), prefix), nil
}

// NewFromClient wraps an existing S3 client.
func NewFromClient(client *s3.Client, prefix string) *Store {
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		prefix:  normalizePrefix(prefix),
		now:     time.Now,
	}
}

// Open downloads an object for reading.
func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objectKey := applyPrefix(s.prefix, key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", bucket, objectKey, object.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get object bucket=%s key=%s: %w", bucket, objectKey, err)
	}
	return out.Body, nil
}

// PresignPut issues a PUT URL with content type and length pinned.
func (s *Store) PresignPut(ctx context.Context, req object.PutRequest) (object.Presigned, error) {
	expires := object.ExpiresOrDefault(req.Expires)
	out, err := s.presign.PresignPutObject(ctx, putInput(req, s.prefix), func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return object.Presigned{}, fmt.Errorf("presign put bucket=%s key=%s: %w", req.Bucket, req.Key, err)
	}
	return object.Presigned{URL: out.URL, Method: http.MethodPut, ExpiresAt: s.now().Add(expires)}, nil
}

// PresignGet issues an inline GET URL.
func (s *Store) PresignGet(ctx context.Context, req object.GetRequest) (object.Presigned, error) {
	expires := object.ExpiresOrDefault(req.Expires)
	out, err := s.presign.PresignGetObject(ctx, getInput(req, s.prefix), func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return object.Presigned{}, fmt.Errorf("presign get bucket=%s key=%s: %w", req.Bucket, req.Key, err)
	}
	return object.Presigned{URL: out.URL, Method: http.MethodGet, ExpiresAt: s.now().Add(expires)}, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	objectKey := applyPrefix(s.prefix, key)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		return fmt.Errorf("s3 delete object bucket=%s key=%s: %w", bucket, objectKey, err)
	}
	return nil
}

func putInput(req object.PutRequest, prefix string) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(req.Bucket),
		Key:    aws.String(applyPrefix(prefix, req.Key)),
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}
	if req.ContentLength > 0 {
		input.ContentLength = aws.Int64(req.ContentLength)
	}
	return input
}

func getInput(req object.GetRequest, prefix string) *s3.GetObjectInput {
	input := &s3.GetObjectInput{
		Bucket: aws.String(req.Bucket),
		Key:    aws.String(applyPrefix(prefix, req.Key)),
	}
	if req.ContentType != "" {
		input.ResponseContentType = aws.String(req.ContentType)
	}
	input.ResponseContentDisposition = aws.String(inlineDisposition(req.FileName))
	return input
}

func inlineDisposition(fileName string) string {
	if strings.TrimSpace(fileName) == "" {
		return "inline"
	}
	if v := mime.FormatMediaType("inline", map[string]string{"filename": fileName}); v != "" {
		return v
	}
	return "inline"
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

var _ object.Store = (*Store)(nil)
