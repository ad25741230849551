package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dunamismax/previewflow/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeGeneratePreview = "preview:generate"

type GeneratePreviewPayload struct {
	JobID       string                 `json:"job_id"`
	SourceType  string                 `json:"source_type"`
	WebhookURL  string                 `json:"webhook_url,omitempty"`
	ObjectKey   string                 `json:"object_key"`
	SourceName  string                 `json:"source_name,omitempty"`
	Identifier  string                 `json:"identifier,omitempty"`
	Options     *domain.PreviewOptions `json:"options,omitempty"`
	RequestedAt time.Time              `json:"requested_at"`
}

// PayloadFromJob snapshots everything the worker needs so it never has to
// read the job back before rendering.
func PayloadFromJob(job domain.Job) GeneratePreviewPayload {
	return GeneratePreviewPayload{
		JobID:       job.ID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		SourceName:  job.SourceName,
		Identifier:  job.Identifier,
		Options:     job.Options,
		RequestedAt: time.Now().UTC(),
	}
}

func NewGeneratePreviewTask(payload GeneratePreviewPayload) (*asynq.Task, error) {
	if strings.TrimSpace(payload.JobID) == "" {
		return nil, errors.New("generate payload: job_id is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate payload: %w", err)
	}
	return asynq.NewTask(TypeGeneratePreview, body), nil
}

func ParseGeneratePreviewPayload(task *asynq.Task) (GeneratePreviewPayload, error) {
	var payload GeneratePreviewPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GeneratePreviewPayload{}, fmt.Errorf("unmarshal generate payload: %w", err)
	}
	return payload, nil
}

// Job rebuilds the job view the processor works from.
func (p GeneratePreviewPayload) Job() domain.Job {
	return domain.Job{
		ID:         p.JobID,
		SourceType: p.SourceType,
		WebhookURL: p.WebhookURL,
		ObjectKey:  p.ObjectKey,
		SourceName: p.SourceName,
		Identifier: p.Identifier,
		Options:    p.Options,
	}
}
