package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/previewflow/internal/storage"
)

const (
	SourceTypeS3Presigned = "s3_presigned"

	defaultOutputPrefix = "outputs"
)

// ObjectReader is the part of *storage.Client the fetcher needs.
type ObjectReader interface {
	ReadObject(ctx context.Context, objectKey string, limit int64) ([]byte, error)
}

// PreviewWriter is the part of *storage.Client the emitter needs.
type PreviewWriter interface {
	WritePreview(ctx context.Context, objectKey string, data []byte, meta storage.PreviewMeta) error
}

type ObjectStoreFetcher struct {
	Storage ObjectReader
	// MaxBytes caps the source size; zero reads without a limit.
	MaxBytes int64
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if !strings.EqualFold(req.SourceType, SourceTypeS3Presigned) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey, f.MaxBytes)
}

// ObjectStoreEmitter files previews under <prefix>/BRANDED_PREVIEW/<job>/.
type ObjectStoreEmitter struct {
	Storage      PreviewWriter
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, data []byte) (string, error) {
	if e.Storage == nil {
		return "", errors.New("storage client is required")
	}

	objectKey := storage.PreviewKey(outputPrefix(e.OutputPrefix), sanitizePathToken(req.JobID), outputFileName(req))
	meta := storage.PreviewMeta{
		JobID:      req.JobID,
		Identifier: req.Identifier,
		SourceKey:  req.ObjectKey,
	}
	if err := e.Storage.WritePreview(ctx, objectKey, data, meta); err != nil {
		return "", err
	}
	return objectKey, nil
}

func NewObjectStoreProcessor(client *storage.Client, outputPrefix string, maxBytes int64, renderer Renderer) *Processor {
	return NewProcessor(
		ObjectStoreFetcher{Storage: client, MaxBytes: maxBytes},
		renderer,
		ObjectStoreEmitter{Storage: client, OutputPrefix: outputPrefix},
	)
}

func outputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return defaultOutputPrefix
	}
	return prefix
}
