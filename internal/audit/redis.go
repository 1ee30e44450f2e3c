package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aragroup/ara-platform/internal/config"
	"github.com/redis/go-redis/v9"
)

// DefaultAuditStream is the stream used when none is configured.
const DefaultAuditStream = "ara:audit"

// RedisStreamShipper appends each entry to a Redis stream with XADD. The
// "action" field allows consumers to filter without decoding "entry".
type RedisStreamShipper struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamShipper creates a shipper on client. cfg may be nil.
func NewRedisStreamShipper(client redis.UniversalClient, cfg *config.AuditRedisConfig) *RedisStreamShipper {
	s := &RedisStreamShipper{client: client, stream: DefaultAuditStream}
	if cfg != nil {
		if cfg.Stream != "" {
			s.stream = cfg.Stream
		}
		s.maxLen = cfg.MaxLen
	}
	return s
}

// Ship appends entry. With a max length the stream is trimmed approximately.
func (s *RedisStreamShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{"action": entry.Action, "entry": string(data)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to audit stream %s: %w", s.stream, err)
	}
	return nil
}

// Close is a no-op; the client is shared.
func (s *RedisStreamShipper) Close() error { return nil }
