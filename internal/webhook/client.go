// Package webhook notifies job owners when a preview finishes. Bodies are
// signed with HMAC-SHA256 over "<timestamp>.<body>".
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/previewflow/internal/id"
)

const (
	HeaderSignature = "X-Previewflow-Signature"
	HeaderTimestamp = "X-Previewflow-Timestamp"
	HeaderEvent     = "X-Previewflow-Event"
	HeaderDelivery  = "X-Previewflow-Delivery"

	EventPreviewCompleted = "preview.completed"
	EventPreviewFailed    = "preview.failed"
)

// ErrRejected marks a 4xx answer; the receiver will not change its mind.
var ErrRejected = errors.New("webhook rejected")

// Payload is the body posted for both preview events.
type Payload struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	SourceType  string    `json:"source_type"`
	ObjectKey   string    `json:"object_key"`
	Bundle      string    `json:"bundle"`
	OutputKey   string    `json:"output_key,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	Bytes       int       `json:"bytes,omitempty"`
	Error       string    `json:"error,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	signingSecret  string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}

	return &Client{
		httpClient:     &http.Client{Timeout: timeout},
		signingSecret:  cfg.SigningSecret,
		maxAttempts:    max(1, cfg.MaxAttempts),
		initialBackoff: initialBackoff,
		maxBackoff:     max(initialBackoff, cfg.MaxBackoff),
	}
}

// Send posts payload to endpoint, retrying transport errors, 429 and 5xx
// with exponential backoff. Every attempt carries the same delivery id so
// receivers can drop duplicates. An empty endpoint is a no-op.
func (c *Client) Send(ctx context.Context, endpoint, event string, payload any) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderSignature, Sign(c.signingSecret, timestamp, body))
	header.Set(HeaderEvent, event)
	header.Set(HeaderDelivery, id.New())

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		wait, err := c.post(ctx, endpoint, header, body)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRejected) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(max(wait, backoff)):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// post makes one attempt. wait is the delay the receiver asked for with
// Retry-After, capped at the client's max backoff.
func (c *Client) post(ctx context.Context, endpoint string, header http.Header, body []byte) (wait time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrRejected, err)
	}
	req.Header = header.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return 0, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return min(retryAfter(resp.Header.Get("Retry-After")), c.maxBackoff), fmt.Errorf("webhook returned status=%d", resp.StatusCode)
	default:
		return 0, fmt.Errorf("%w: status=%d", ErrRejected, resp.StatusCode)
	}
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// Sign computes the signature header value for body sent at timestamp.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify is the receiving side of Sign.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
