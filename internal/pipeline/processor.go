package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/previewflow/internal/domain"
	"github.com/dunamismax/previewflow/internal/preview"
	"github.com/dunamismax/previewflow/internal/storage"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	// OutputName is the stored file name, see domain.Job.OutputName.
	OutputName string
	Identifier string
	Config     preview.Config
	// Verbose receives the sizing trace when non-nil.
	Verbose io.Writer
}

// RequestFromJob resolves the job's overrides against base.
func RequestFromJob(job domain.Job, base preview.Config) Request {
	return Request{
		JobID:      job.ID,
		SourceType: job.SourceType,
		ObjectKey:  job.ObjectKey,
		OutputName: job.OutputName(),
		Identifier: job.Identifier,
		Config:     job.Options.Apply(base),
	}
}

type Output struct {
	Path         string
	Bytes        int
	Width        int
	Height       int
	SourceBytes  int
	SourceWidth  int
	SourceHeight int
	Duration     time.Duration
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, data []byte) (string, error)
}

type Processor struct {
	fetcher  Fetcher
	renderer Renderer
	emitter  Emitter
}

func NewProcessor(fetcher Fetcher, renderer Renderer, emitter Emitter) *Processor {
	return &Processor{fetcher: fetcher, renderer: renderer, emitter: emitter}
}

func NewLocalProcessor(outputDir string, maxBytes int64, renderer Renderer) *Processor {
	return NewProcessor(LocalFileFetcher{MaxBytes: maxBytes}, renderer, LocalFileEmitter{OutputDir: outputDir})
}

func (p *Processor) Process(ctx context.Context, req Request) (Output, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Output{}, errors.New("job_id is required")
	}
	if p.renderer == nil {
		return Output{}, errors.New("renderer is required")
	}
	started := time.Now()

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Output{}, fmt.Errorf("fetch stage: %w", err)
	}

	res, err := p.renderer.Render(ctx, req.Config, sourceBytes, req.Identifier, req.Verbose)
	if err != nil {
		return Output{}, fmt.Errorf("transform stage: %w", err)
	}

	written, err := p.emitter.Emit(ctx, req, res.Data)
	if err != nil {
		return Output{}, fmt.Errorf("emit stage: %w", err)
	}

	return Output{
		Path:         written,
		Bytes:        len(res.Data),
		Width:        res.Width,
		Height:       res.Height,
		SourceBytes:  len(sourceBytes),
		SourceWidth:  res.SourceWidth,
		SourceHeight: res.SourceHeight,
		Duration:     time.Since(started),
	}, nil
}

// LocalFileFetcher reads sources from the worker's filesystem. Files larger
// than MaxBytes fail with storage.ErrObjectTooLarge; zero means no cap.
type LocalFileFetcher struct {
	MaxBytes int64
}

func (f LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	file, err := os.Open(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("open input file %s: %w", req.ObjectKey, err)
	}
	defer file.Close()

	return storage.ReadLimited(file, req.ObjectKey, f.MaxBytes)
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, data []byte) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputFileName(req))
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return fullPath, nil
}

func outputFileName(req Request) string {
	name := filepath.Base(strings.TrimSpace(req.OutputName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return preview.FilteredName(sanitizePathToken(req.JobID))
	}
	return name
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
