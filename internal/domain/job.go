package domain

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dunamismax/previewflow/internal/preview"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

type CreateJobRequest struct {
	SourceType string          `json:"source_type"`
	WebhookURL string          `json:"webhook_url,omitempty"`
	ObjectKey  string          `json:"object_key,omitempty"`
	SourceName string          `json:"source_name,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
	Options    *PreviewOptions `json:"options,omitempty"`
}

// PreviewOptions overrides individual preview tunables for one job. Nil
// fields keep the service configuration.
type PreviewOptions struct {
	MaxWidth    *int    `json:"max_width,omitempty"`
	MaxHeight   *int    `json:"max_height,omitempty"`
	Blurring    *bool   `json:"blurring,omitempty"`
	HQScaling   *bool   `json:"hq_scaling,omitempty"`
	BrandHeight *int    `json:"brand_height,omitempty"`
	BrandName   *string `json:"brand_name,omitempty"`
	BrandAbbrev *string `json:"brand_abbrev,omitempty"`
	Quality     *int    `json:"quality,omitempty"`
}

type Job struct {
	ID         string
	Status     string
	SourceType string
	SourceName string
	ObjectKey  string
	Identifier string
	WebhookURL string
	Options    *PreviewOptions
	OutputKey  string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if name := strings.TrimSpace(r.SourceName); name != "" && path.Base(name) != name {
		return fmt.Errorf("source_name must be a bare file name: %s", r.SourceName)
	}
	if r.Options != nil {
		if err := r.Options.Apply(preview.DefaultConfig()).Validate(); err != nil {
			return fmt.Errorf("options: %w", err)
		}
	}
	return nil
}

// Apply layers the overrides on top of base.
func (o *PreviewOptions) Apply(base preview.Config) preview.Config {
	if o == nil {
		return base
	}
	cfg := base
	if o.MaxWidth != nil {
		cfg.MaxWidth = *o.MaxWidth
	}
	if o.MaxHeight != nil {
		cfg.MaxHeight = *o.MaxHeight
	}
	if o.Blurring != nil {
		cfg.Blurring = *o.Blurring
	}
	if o.HQScaling != nil {
		cfg.HQScaling = *o.HQScaling
	}
	if o.BrandHeight != nil {
		cfg.BrandHeight = *o.BrandHeight
	}
	if o.BrandName != nil {
		cfg.BrandName = *o.BrandName
	}
	if o.BrandAbbrev != nil {
		cfg.BrandAbbrev = *o.BrandAbbrev
	}
	if o.Quality != nil {
		cfg.Quality = *o.Quality
	}
	return cfg
}

// OutputName is the file name the preview of this job is stored under.
func (j Job) OutputName() string {
	name := strings.TrimSpace(j.SourceName)
	if name == "" {
		name = path.Base(j.ObjectKey)
	}
	if name == "" || name == "." || name == "/" {
		name = j.ID
	}
	return preview.FilteredName(name)
}
