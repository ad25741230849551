package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// ErrAlreadyQueued is returned when a task for the job is already known to
// the queue.
var ErrAlreadyQueued = errors.New("preview task already queued")

const (
	defaultMaxRetry  = 3
	defaultTimeout   = 2 * time.Minute
	defaultRetention = 24 * time.Hour
)

type Client struct {
	client    *asynq.Client
	queue     string
	maxRetry  int
	timeout   time.Duration
	retention time.Duration
}

type ClientOption func(*Client)

// WithMaxRetry bounds how often a transiently failing preview is retried.
func WithMaxRetry(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetry = n
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetention keeps completed tasks visible to asynq tooling for d.
func WithRetention(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.retention = d
		}
	}
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string, opts ...ClientOption) *Client {
	c := &Client{
		client:    asynq.NewClient(redisOpt),
		queue:     queueName,
		maxRetry:  defaultMaxRetry,
		timeout:   defaultTimeout,
		retention: defaultRetention,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnqueueGeneratePreview uses the job id as the asynq task id, so a job is
// queued at most once.
func (c *Client) EnqueueGeneratePreview(ctx context.Context, payload GeneratePreviewPayload) (*asynq.TaskInfo, error) {
	task, err := NewGeneratePreviewTask(payload)
	if err != nil {
		return nil, err
	}

	info, err := c.client.EnqueueContext(ctx, task, c.taskOptions(payload.JobID)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		return nil, fmt.Errorf("%w: job %s", ErrAlreadyQueued, payload.JobID)
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", TypeGeneratePreview, err)
	}
	return info, nil
}

func (c *Client) taskOptions(jobID string) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(c.queue),
		asynq.TaskID(jobID),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	}
	if c.retention > 0 {
		opts = append(opts, asynq.Retention(c.retention))
	}
	return opts
}

func (c *Client) Close() error {
	return c.client.Close()
}
