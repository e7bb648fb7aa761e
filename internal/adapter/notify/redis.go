package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fx-rate-cache/internal/domain/ports"
	"fx-rate-cache/pkg/logger"
)

// RedisNotifier broadcasts cache invalidations to every instance subscribed
// to the same channel. Messages published by this instance are ignored on
// receipt.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     *logger.Logger
}

type invalidation struct {
	Origin string    `json:"origin"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

var _ ports.InvalidationPublisher = (*RedisNotifier)(nil)

func NewRedisNotifier(ctx context.Context, addr, password string, db int, channel string, log *logger.Logger) (*RedisNotifier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisNotifier{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log,
	}, nil
}

func (n *RedisNotifier) Origin() string {
	return n.origin
}

func (n *RedisNotifier) PublishInvalidation(ctx context.Context, reason string) error {
	b, err := json.Marshal(invalidation{Origin: n.origin, Reason: reason, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := n.rdb.Publish(ctx, n.channel, b).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	n.log.Debug("Invalidation published", "channel", n.channel, "reason", reason)
	return nil
}

// Subscribe calls fn for every invalidation published by another instance
// until ctx is done.
func (n *RedisNotifier) Subscribe(ctx context.Context, fn func(ctx context.Context, reason string)) error {
	sub := n.rdb.Subscribe(ctx, n.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", n.channel, err)
	}
	n.log.Info("Listening for cache invalidations", "channel", n.channel, "origin", n.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if reason, remote := n.decode(msg.Payload); remote {
				fn(ctx, reason)
			}
		}
	}
}

// decode returns the reason of a message and whether it came from another
// instance.
func (n *RedisNotifier) decode(payload string) (string, bool) {
	var inv invalidation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		n.log.Warn("Ignoring malformed invalidation message", "error", err)
		return "", false
	}
	if inv.Origin == n.origin {
		return "", false
	}
	return inv.Reason, true
}

func (n *RedisNotifier) Close() error {
	return n.rdb.Close()
}
