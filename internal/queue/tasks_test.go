package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/previewflow/internal/domain"
	"github.com/hibiken/asynq"
)

func TestGeneratePreviewTaskRoundTrip(t *testing.T) {
	width := 400
	job := domain.Job{
		ID:         "0192b7a4-0000-7000-8000-000000000001",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/0192b7a4/source",
		SourceName: "scan.tif",
		Identifier: "123456789/42",
		Options:    &domain.PreviewOptions{MaxWidth: &width},
	}

	task, err := NewGeneratePreviewTask(PayloadFromJob(job))
	if err != nil {
		t.Fatalf("NewGeneratePreviewTask returned error: %v", err)
	}
	if task.Type() != TypeGeneratePreview {
		t.Fatalf("expected task type %q, got %q", TypeGeneratePreview, task.Type())
	}

	parsed, err := ParseGeneratePreviewPayload(task)
	if err != nil {
		t.Fatalf("ParseGeneratePreviewPayload returned error: %v", err)
	}

	got := parsed.Job()
	if got.ID != job.ID || got.SourceName != job.SourceName || got.Identifier != job.Identifier {
		t.Fatalf("job did not survive the round trip: %+v", got)
	}
	if got.Options == nil || got.Options.MaxWidth == nil || *got.Options.MaxWidth != width {
		t.Fatalf("expected max_width override %d, got %+v", width, got.Options)
	}
	if parsed.RequestedAt.IsZero() {
		t.Fatal("expected requested_at to be set")
	}
}

func TestGeneratePreviewTaskRequiresJobID(t *testing.T) {
	if _, err := NewGeneratePreviewTask(GeneratePreviewPayload{}); err == nil {
		t.Fatal("expected error for payload without job_id")
	}
}

func TestClientOptions(t *testing.T) {
	c := NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, "previews",
		WithMaxRetry(5),
		WithTimeout(30*time.Second),
		WithRetention(0),
		WithTimeout(-1),
	)
	defer c.Close()

	if c.maxRetry != 5 || c.timeout != 30*time.Second || c.retention != 0 {
		t.Fatalf("unexpected client settings: retry=%d timeout=%s retention=%s", c.maxRetry, c.timeout, c.retention)
	}
	if got := len(c.taskOptions("job-1")); got != 4 {
		t.Fatalf("expected 4 task options without retention, got %d", got)
	}

	d := NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, "previews")
	defer d.Close()
	if d.maxRetry != defaultMaxRetry || d.timeout != defaultTimeout || d.retention != defaultRetention {
		t.Fatalf("defaults not applied: %+v", d)
	}
	if got := len(d.taskOptions("job-1")); got != 5 {
		t.Fatalf("expected 5 task options with retention, got %d", got)
	}
}
