package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"clinicq/internal/scheduler"
)

// DefaultChannel is where waiting-room display boards listen.
const DefaultChannel = "clinicq:called"

// RedisSink publishes the snapshot JSON to a pub/sub channel consumed by
// waiting-room display boards.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink creates the sink. An empty channel falls back to
// DefaultChannel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

// PatientCalled publishes the snapshot. Subscribers that are offline simply
// miss the message; the board re-reads queue status on reconnect.
func (s *RedisSink) PatientCalled(ctx context.Context, p scheduler.CalledPatient) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", s.channel, err)
	}
	return nil
}
