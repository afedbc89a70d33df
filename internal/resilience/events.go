package resilience

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// TransitionChannel is the redis channel carrying breaker transition events.
const TransitionChannel = "resilience.transitions"

// TransitionEvent is published on every breaker state change for external
// alerting.
type TransitionEvent struct {
	Downstream string    `json:"downstream"`
	FromState  string    `json:"fromState"`
	ToState    string    `json:"toState"`
	Timestamp  time.Time `json:"timestamp"`
}

// RedisPublisher fans breaker transitions out over redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisPublisher constructs the publisher.
func NewRedisPublisher(client *redis.Client, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, logger: logger}
}

// Listener returns a TransitionListener that publishes events. Publish
// failures are logged and dropped; alerting must never block the call path.
func (p *RedisPublisher) Listener() TransitionListener {
	return func(downstream string, from, to State) {
		event := TransitionEvent{
			Downstream: downstream,
			FromState:  from.String(),
			ToState:    to.String(),
			Timestamp:  time.Now().UTC(),
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.client.Publish(ctx, TransitionChannel, payload).Err(); err != nil {
			p.logger.Warn("publish breaker transition", slog.Any("error", err))
		}
	}
}

// LogListener returns a TransitionListener that records transitions via slog.
func LogListener(logger *slog.Logger) TransitionListener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(downstream string, from, to State) {
		logger.Info("circuit breaker transition",
			slog.String("downstream", downstream),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}
}
