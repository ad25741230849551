package store

import (
	"context"
	"errors"

	"github.com/dunamismax/previewflow/internal/domain"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// Transition moves a job to status only if it is currently in from.
	Transition(ctx context.Context, id, from, status string) (domain.Job, error)
	// Finish records the terminal status along with the stored output key or
	// the failure message.
	Finish(ctx context.Context, id, status, outputKey, errMsg string) (domain.Job, error)
}
