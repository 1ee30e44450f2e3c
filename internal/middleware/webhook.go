// webhook.go provides middleware that authenticates identity provider webhook
// deliveries. The signature is checked against the raw body before any handler
// runs, so unsigned or forged deliveries never reach the database.
package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aragroup/ara-platform/internal/auth"
	"github.com/aragroup/ara-platform/internal/safego"
	"github.com/aragroup/ara-platform/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// WebhookBodyKey is the context key holding the verified raw request body.
const WebhookBodyKey = "webhook_body"

// MaxWebhookBodyBytes bounds the size of a webhook delivery.
const MaxWebhookBodyBytes = 1 << 20

const (
	webhookMaxFailures   = 5
	webhookFailureWindow = time.Minute
)

// WebhookFailureLimiter tracks per-IP signature failures so a client guessing
// signatures is cut off. Valid deliveries are never counted.
type WebhookFailureLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

func newWebhookFailureLimiter() *WebhookFailureLimiter {
	return &WebhookFailureLimiter{
		failures: make(map[string][]time.Time),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// NewWebhookFailureLimiter creates a WebhookFailureLimiter and starts a loop
// that drops IPs with no failures inside the window every interval.
func NewWebhookFailureLimiter(interval time.Duration) *WebhookFailureLimiter {
	if interval <= 0 {
		interval = webhookFailureWindow
	}
	l := newWebhookFailureLimiter()
	safego.Go("webhook-failure-sweep", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-l.stop:
				return
			}
		}
	})
	return l
}

// Stop ends the sweep loop. It is safe to call more than once.
func (l *WebhookFailureLimiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *WebhookFailureLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip := range l.failures {
		l.recent(ip)
	}
}

// recent prunes and returns the failures of ip inside the window. Callers hold mu.
func (l *WebhookFailureLimiter) recent(ip string) []time.Time {
	cutoff := l.now().Add(-webhookFailureWindow)
	kept := l.failures[ip][:0]
	for _, t := range l.failures[ip] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, ip)
		return nil
	}
	l.failures[ip] = kept
	return kept
}

// blocked reports whether ip has exhausted its failure budget.
func (l *WebhookFailureLimiter) blocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(ip)) >= webhookMaxFailures
}

func (l *WebhookFailureLimiter) fail(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[ip] = append(l.recent(ip), l.now())
}

// WebhookSignatureMiddleware verifies the auth.SignatureHeader HMAC over the raw
// body with secret. Failures are answered with 401 and no handler runs, and are
// counted per client IP in limiter. An empty secret rejects every delivery. On
// success the body is stored under WebhookBodyKey and restored on the request.
func WebhookSignatureMiddleware(secret string, tolerance time.Duration, limiter *WebhookFailureLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if limiter.blocked(clientIP) {
			slog.Warn("webhook: too many signature failures", "ip", clientIP)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many invalid webhook signatures",
			})
			return
		}

		if secret == "" {
			slog.Error("webhook: signing secret is not configured, rejecting delivery")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid webhook signature",
			})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBodyBytes))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "webhook body too large",
			})
			return
		}

		err = auth.VerifyWebhookSignature(c.GetHeader(auth.SignatureHeader), body, secret, tolerance, time.Now())
		if err != nil {
			limiter.fail(clientIP)
			telemetry.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
			slog.Warn("webhook: signature rejected", "ip", clientIP, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid webhook signature",
			})
			return
		}

		c.Set(WebhookBodyKey, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// WebhookBody returns the body verified by WebhookSignatureMiddleware.
func WebhookBody(c *gin.Context) []byte {
	v, _ := c.Get(WebhookBodyKey)
	b, _ := v.([]byte)
	return b
}
