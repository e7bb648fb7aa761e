package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"fx-rate-cache/pkg/logger"
)

// RateEvent announces a change to the rate tables upstream. The cache has no
// incremental update, so any valid event invalidates it.
type RateEvent struct {
	Op         string `json:"op"`
	Table      string `json:"table"`
	CurrencyID int64  `json:"currency_id,omitempty"`
}

type Invalidator interface {
	InvalidateCache(ctx context.Context, reload bool) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	target  Invalidator
	log     *logger.Logger
	backoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, target Invalidator, log *logger.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       1e6,
		CommitInterval: 0, // commits are explicit
	})
	return &Consumer{reader: r, target: target, log: log.With("topic", topic), backoff: time.Second}
}

// Run consumes rate events until ctx is done. A message is committed once
// the cache has been invalidated for it, or when it cannot be decoded.
// Messages are handled strictly in order.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("Rate event consumer stopped")
				return nil
			}
			c.log.Error("Failed to fetch rate event", "error", err)
			c.sleep(ctx)
			continue
		}

		var ev RateEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.Op == "" {
			c.log.Error("Skipping invalid rate event", "error", err, "offset", m.Offset)
			c.commit(ctx, m)
			continue
		}

		if !c.invalidate(ctx, ev) {
			c.log.Info("Rate event consumer stopped")
			return nil
		}

		c.commit(ctx, m)
		c.log.Info("Cache invalidated by rate event", "op", ev.Op, "table", ev.Table, "offset", m.Offset)
	}
}

// invalidate retries until the cache has been invalidated for ev. Later
// events are not fetched meanwhile, since committing one of them would also
// commit past ev. It reports false when ctx ends first.
func (c *Consumer) invalidate(ctx context.Context, ev RateEvent) bool {
	for {
		err := c.target.InvalidateCache(ctx, false)
		if err == nil {
			return true
		}
		c.log.Error("Failed to invalidate cache for rate event, retrying", "error", err, "op", ev.Op)
		c.sleep(ctx)
		if ctx.Err() != nil {
			return false
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.log.Error("Failed to commit rate event", "error", err, "offset", m.Offset)
	}
}

func (c *Consumer) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.backoff):
	}
}
