// Package audit records security-relevant events such as sign-ins, membership
// and role changes, invitation responses and directory deletions. Records are
// written to the audit_logs table and optionally shipped to external
// destinations (file, webhook, Redis stream) so they reach a SIEM
// independently of the application log pipeline.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aragroup/ara-platform/internal/config"
	"github.com/redis/go-redis/v9"
)

// LogEntry is the shipped form of an audit event.
type LogEntry struct {
	Timestamp      time.Time              `json:"timestamp"`
	Action         string                 `json:"action"`
	UserID         string                 `json:"user_id,omitempty"`
	OrganizationID string                 `json:"organization_id,omitempty"`
	ResourceType   string                 `json:"resource_type,omitempty"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	IPAddress      string                 `json:"ip_address,omitempty"`
	RequestID      string                 `json:"request_id,omitempty"`
	StatusCode     int                    `json:"status_code,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Shipper delivers entries to one destination.
type Shipper interface {
	Ship(ctx context.Context, entry *LogEntry) error
	Close() error
}

// redacted replaces metadata values whose key names a credential.
const redacted = "[REDACTED]"

var sensitiveKeys = []string{"token", "secret", "password", "cookie", "authorization", "code"}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// redact returns a copy of entry with credential-like metadata masked. The
// database row keeps the original metadata; only external copies are masked.
func redact(entry *LogEntry) *LogEntry {
	if len(entry.Metadata) == 0 {
		return entry
	}
	out := *entry
	out.Metadata = make(map[string]interface{}, len(entry.Metadata))
	for k, v := range entry.Metadata {
		if isSensitive(k) {
			v = redacted
		}
		out.Metadata[k] = v
	}
	return &out
}

// MultiShipper fans entries out to every configured destination.
type MultiShipper struct {
	shippers []Shipper
}

// NewMultiShipper builds the enabled shippers in cfgs. client backs the redis
// shipper and may be nil when none is configured.
func NewMultiShipper(cfgs []config.AuditShipperConfig, client redis.UniversalClient) (*MultiShipper, error) {
	ms := &MultiShipper{}
	for i, c := range cfgs {
		if !c.Enabled {
			continue
		}
		var (
			s   Shipper
			err error
		)
		switch c.Type {
		case config.AuditShipperWebhook:
			if c.Webhook == nil {
				err = errors.New("webhook settings are required")
				break
			}
			s, err = NewWebhookShipper(c.Webhook)
		case config.AuditShipperFile:
			if c.File == nil {
				err = errors.New("file settings are required")
				break
			}
			s, err = NewFileShipper(c.File)
		case config.AuditShipperRedis:
			if client == nil {
				err = errors.New("redis client is not configured")
				break
			}
			s = NewRedisStreamShipper(client, c.Redis)
		default:
			err = fmt.Errorf("unknown type %q", c.Type)
		}
		if err != nil {
			_ = ms.Close()
			return nil, fmt.Errorf("audit shipper %d (%s): %w", i, c.Type, err)
		}
		ms.shippers = append(ms.shippers, s)
	}
	return ms, nil
}

// Len returns the number of active shippers.
func (ms *MultiShipper) Len() int {
	return len(ms.shippers)
}

// Ship redacts entry and sends it to every destination. A failing destination
// does not stop the others; all failures are joined.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	out := redact(entry)
	var errs []error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, out); err != nil {
			slog.Warn("audit shipper failed", "action", entry.Action, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every destination.
func (ms *MultiShipper) Close() error {
	var errs []error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
