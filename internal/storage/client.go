package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const PreviewContentType = "image/jpeg"

// ErrObjectTooLarge is returned when a source object exceeds the read limit.
var ErrObjectTooLarge = errors.New("object exceeds size limit")

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	UseSSL   bool
}

type Client struct {
	minio  *minio.Client
	bucket string
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{
		minio:  mc,
		bucket: cfg.Bucket,
	}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := c.minio.BucketExists(ctx, c.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}

	return nil
}

func (c *Client) PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := c.minio.PresignedPutObject(ctx, c.bucket, objectKey, expiry)
	if err != nil {
		return "", fmt.Errorf("presign put object: %w", err)
	}
	return u.String(), nil
}

// PresignedGetURL lets clients download a finished preview directly.
func (c *Client) PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := c.minio.PresignedGetObject(ctx, c.bucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return u.String(), nil
}

func (c *Client) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	_, err := c.minio.StatObject(ctx, c.bucket, objectKey, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject" {
		return false, nil
	}
	return false, fmt.Errorf("stat object %s: %w", objectKey, err)
}

// ReadObject reads the whole object. A positive limit caps the number of
// bytes accepted; objects whose stat size is already over it are refused
// before any download.
func (c *Client) ReadObject(ctx context.Context, objectKey string, limit int64) ([]byte, error) {
	if limit > 0 {
		info, err := c.minio.StatObject(ctx, c.bucket, objectKey, minio.StatObjectOptions{})
		if err != nil {
			return nil, fmt.Errorf("stat object %s: %w", objectKey, err)
		}
		if info.Size > limit {
			return nil, tooLarge(objectKey, limit)
		}
	}

	obj, err := c.minio.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	defer obj.Close()

	return ReadLimited(obj, objectKey, limit)
}

// ReadLimited reads r fully, failing with ErrObjectTooLarge past limit.
// A non-positive limit disables the check.
func ReadLimited(r io.Reader, objectKey string, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", objectKey, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, tooLarge(objectKey, limit)
	}
	return data, nil
}

func tooLarge(objectKey string, limit int64) error {
	return fmt.Errorf("%w: %s is larger than %d bytes", ErrObjectTooLarge, objectKey, limit)
}

// PreviewMeta is stored as object user metadata next to a preview.
type PreviewMeta struct {
	JobID      string
	Identifier string
	SourceKey  string
}

func (m PreviewMeta) userMetadata() map[string]string {
	md := map[string]string{"bundle": preview.BundleName}
	if m.JobID != "" {
		md["job-id"] = m.JobID
	}
	if m.Identifier != "" {
		md["identifier"] = m.Identifier
	}
	if m.SourceKey != "" {
		md["source-key"] = m.SourceKey
	}
	return md
}

// WritePreview stores a rendered JPEG so that browsers following a presigned
// link display it inline under its filtered name.
func (c *Client) WritePreview(ctx context.Context, objectKey string, data []byte, meta PreviewMeta) error {
	_, err := c.minio.PutObject(ctx, c.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        PreviewContentType,
		ContentDisposition: `inline; filename="` + path.Base(objectKey) + `"`,
		UserMetadata:       meta.userMetadata(),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}

// SourceKey is where clients upload the original for jobID.
func SourceKey(jobID string) string {
	return path.Join("uploads", jobID, "source")
}

// PreviewKey is where the preview of jobID is stored under prefix.
func PreviewKey(prefix, jobID, name string) string {
	return path.Join(strings.Trim(prefix, "/"), preview.BundleName, jobID, name)
}
