// Package webhook delivers signed job notifications.
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
)

const (
	HeaderSignature = "X-Cutout-Signature"
	HeaderTimestamp = "X-Cutout-Timestamp"
	HeaderEvent     = "X-Cutout-Event"

	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// ErrPermanent marks a response that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

type Config struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Backoff is the retry schedule shared by the outbound HTTP clients.
type Backoff struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

func (b Backoff) normalized() Backoff {
	if b.MaxAttempts < 1 {
		b.MaxAttempts = 1
	}
	if b.Initial <= 0 {
		b.Initial = time.Second
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	return b
}

// Retry calls fn until it succeeds, returns an ErrPermanent error, the
// attempts run out or ctx ends. The wait doubles after every failure.
func (b Backoff) Retry(ctx context.Context, fn func(attempt int) error) error {
	b = b.normalized()
	wait := b.Initial
	var lastErr error
	for attempt := 1; attempt <= b.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) || attempt == b.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, b.Max)
	}
	return lastErr
}

type Client struct {
	httpClient    *http.Client
	signingSecret string
	backoff       Backoff
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		signingSecret: cfg.SigningSecret,
		backoff: Backoff{
			MaxAttempts: cfg.MaxAttempts,
			Initial:     cfg.InitialBackoff,
			Max:         cfg.MaxBackoff,
		}.normalized(),
	}
}

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
	signature := Sign(c.signingSecret, timestamp, body)

	err = c.backoff.Retry(ctx, func(int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("%w: build webhook request: %v", ErrPermanent, err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderTimestamp, timestamp)
		req.Header.Set(HeaderSignature, signature)
		req.Header.Set(HeaderEvent, event)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return ClassifyStatus(resp.StatusCode)
	})
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	return nil
}

// Sign returns the "sha256=<hex>" HMAC of timestamp + "." + body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}

// ClassifyStatus maps an HTTP status to nil, a retryable error, or an
// ErrPermanent error for client errors other than 408 and 429.
func ClassifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return fmt.Errorf("status=%d", status)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status=%d", ErrPermanent, status)
	default:
		return fmt.Errorf("status=%d", status)
	}
}
