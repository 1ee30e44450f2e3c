package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/config"
	"github.com/aragroup/ara-platform/internal/safego"
	"github.com/cenkalti/backoff/v5"
)

// WebhookSignatureHeader carries the HMAC of a signed delivery, in the same
// "t=<millis>, v1=<hex>" form the platform accepts from its identity provider.
const WebhookSignatureHeader = "X-ARA-Signature"

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultFlushInterval  = 5 * time.Second
	defaultRetryInterval  = 500 * time.Millisecond
	webhookQueueSize      = 1000
)

// WebhookShipper posts entries as JSON arrays. With a batch size, entries are
// queued and flushed when the batch fills, on the flush interval, and on
// Close. Network errors and 5xx responses are retried with backoff.
type WebhookShipper struct {
	url           string
	secret        string
	headers       map[string]string
	batchSize     int
	flushInterval time.Duration
	maxRetries    int
	retryInterval time.Duration
	client        *http.Client
	now           func() time.Time

	queue     chan *LogEntry
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebhookShipper creates a shipper for cfg.
func NewWebhookShipper(cfg *config.AuditWebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	flush := time.Duration(cfg.FlushInterval) * time.Second
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	ws := &WebhookShipper{
		url:           cfg.URL,
		secret:        cfg.Secret,
		headers:       cfg.Headers,
		batchSize:     cfg.BatchSize,
		flushInterval: flush,
		maxRetries:    max(cfg.MaxRetries, 0),
		retryInterval: defaultRetryInterval,
		client:        &http.Client{Timeout: timeout},
		now:           time.Now,
		done:          make(chan struct{}),
	}
	if ws.batchSize > 0 {
		ws.queue = make(chan *LogEntry, webhookQueueSize)
		ws.wg.Add(1)
		safego.Go("audit-webhook-shipper", ws.run)
	}
	return ws, nil
}

func (ws *WebhookShipper) run() {
	defer ws.wg.Done()
	ticker := time.NewTicker(ws.flushInterval)
	defer ticker.Stop()

	batch := make([]*LogEntry, 0, ws.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), ws.client.Timeout*time.Duration(ws.maxRetries+1))
		defer cancel()
		if err := ws.deliver(ctx, batch); err != nil {
			slog.Warn("failed to deliver audit batch", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-ws.queue:
			batch = append(batch, e)
			if len(batch) >= ws.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ws.done:
			for {
				select {
				case e := <-ws.queue:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Ship queues entry when batching, or posts it immediately. A full queue
// falls back to an immediate post.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.queue != nil {
		select {
		case <-ws.done:
			return fmt.Errorf("webhook shipper is closed")
		default:
		}
		select {
		case ws.queue <- entry:
			return nil
		default:
		}
	}
	return ws.deliver(ctx, []*LogEntry{entry})
}

func (ws *WebhookShipper) deliver(ctx context.Context, entries []*LogEntry) error {
	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entries: %w", err)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = ws.retryInterval
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, ws.post(ctx, body)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(ws.maxRetries+1)))
	return err
}

func (ws *WebhookShipper) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}
	if ws.secret != "" {
		req.Header.Set(WebhookSignatureHeader, auth.SignWebhook(ws.secret, ws.now(), body))
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
	return nil
}

// Close flushes queued entries and stops the batch loop.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() { close(ws.done) })
	ws.wg.Wait()
	return nil
}
