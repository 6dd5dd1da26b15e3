package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "mapquiz:progress:"

// RedisBroker shares progress events between instances over Redis pub/sub.
type RedisBroker struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func NewRedisBroker(rdb *redis.Client, logger *slog.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, logger: logger}
}

func redisChannel(userID string) string {
	return redisChannelPrefix + userID
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error) {
	ps := b.rdb.Subscribe(ctx, redisChannel(userID))
	// Wait for the confirmation so no event published after we return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("subscribing to %s: %w", redisChannel(userID), err)
	}

	out := make(chan []byte, 16)
	msgs := ps.Channel()
	go func() {
		defer close(out)
		for msg := range msgs {
			select {
			case out <- []byte(msg.Payload):
			default:
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				b.logger.Debug("closing redis subscription", "error", err)
			}
		})
	}
	return out, cancel, nil
}

func (b *RedisBroker) Publish(ctx context.Context, userID string, ev Event) {
	data, _ := json.Marshal(ev)
	if err := b.rdb.Publish(ctx, redisChannel(userID), data).Err(); err != nil {
		b.logger.Warn("publishing progress event failed",
			"user_id", userID, "type", ev.Type, "error", err)
	}
}
