// Package http delivers beacon events to a webhook endpoint.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/internal/ports"
	"github.com/bft-labs/beacons/pkg/log"
)

const (
	defaultQueueSize   = 64
	defaultMaxAttempts = 5
)

// WebhookConfig configures a Webhook.
type WebhookConfig struct {
	URL     string
	AuthKey string

	// Client defaults to an *http.Client with a 10s timeout.
	Client ports.HTTPClient

	QueueSize      int
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Hostname string
	Logger   log.Logger
}

// Webhook implements ports.Notifier by POSTing each event as JSON.
// Notify only enqueues; a worker started by Run does the delivery and
// retries 5xx and transport errors with exponential backoff.
type Webhook struct {
	cfg    WebhookConfig
	events chan domain.Event
	logger log.Logger

	mu      sync.Mutex
	dropped uint64
}

// NewWebhook creates a webhook notifier.
func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = DefaultBackoffInitial
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Webhook{
		cfg:    cfg,
		events: make(chan domain.Event, cfg.QueueSize),
		logger: logger,
	}
}

// Notify implements ports.Notifier. Events are dropped when the queue is full.
func (w *Webhook) Notify(_ context.Context, e domain.Event) {
	select {
	case w.events <- e:
	default:
		w.mu.Lock()
		w.dropped++
		n := w.dropped
		w.mu.Unlock()
		w.logger.Warn("webhook queue full, dropping event",
			log.String("key", e.Identity.Key()),
			log.Uint64("dropped", n),
		)
	}
}

// Dropped returns the number of events discarded because the queue was full.
func (w *Webhook) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Run delivers queued events until ctx is cancelled.
func (w *Webhook) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-w.events:
			if err := w.deliver(ctx, e); err != nil && ctx.Err() == nil {
				w.logger.Error("webhook delivery failed",
					log.String("key", e.Identity.Key()),
					log.String("type", e.Type.String()),
					log.Err(err),
				)
			}
		}
	}
}

func (w *Webhook) deliver(ctx context.Context, e domain.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		retry, err := w.send(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == w.cfg.MaxAttempts {
			break
		}
		delay := retryDelay(attempt, w.cfg.BackoffInitial, w.cfg.BackoffMax)
		w.logger.Debug("webhook attempt failed, backing off",
			log.Int("attempt", attempt),
			log.Duration("backoff", delay),
			log.Err(err),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

// send posts one event. retry reports whether the failure is transient.
func (w *Webhook) send(ctx context.Context, body []byte) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if w.cfg.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.AuthKey)
	}
	if w.cfg.Hostname != "" {
		req.Header.Set("X-Beacons-Hostname", w.cfg.Hostname)
	}
	req.Header.Set("X-Beacons-OSArch", runtime.GOOS+"/"+runtime.GOARCH)

	resp, err := w.cfg.Client.Do(req)
	if err != nil {
		return true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			fmt.Errorf("server returned %d: %s", resp.StatusCode, string(respBody))
	}
	return false, nil
}
