package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dkozyrev/codeshop/internal/infrastructure/observability"
	"github.com/dkozyrev/codeshop/internal/infrastructure/redis"
	"github.com/segmentio/kafka-go"
)

// OrderEvent is published after a fulfillment transaction commits.
type OrderEvent struct {
	OrderID    int64  `json:"order_id"`
	UserID     int64  `json:"user_id"`
	TotalCents int64  `json:"total_cents"`
	CodesSold  int    `json:"codes_sold"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

// CreditEvent is published after a credit request review commits.
type CreditEvent struct {
	RequestID   int64  `json:"request_id"`
	UserID      int64  `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
	ReviewedAt  string `json:"reviewed_at"`
}

// Consumer projects committed shop events into Prometheus counters and
// evicts Redis keys the events invalidate. Fulfillment itself is synchronous
// in Postgres; the consumer never mutates shop state.
type Consumer struct {
	reader      *kafka.Reader
	redisClient redis.RedisClient
}

func NewConsumer(brokers []string, topic, groupID string, redisClient redis.RedisClient) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		redisClient: redisClient,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key))

		switch msg.Topic {
		case "orders":
			var event OrderEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				slog.Error("failed to unmarshal order event", "error", err)
				continue
			}
			if event.Status == "completed" {
				observability.OrdersCompleted.Inc()
				observability.CodesSold.Add(float64(event.CodesSold))
			}
			c.evict(ctx,
				fmt.Sprintf("user:%d:balance", event.UserID),
				"products:active",
			)

		case "credits":
			var event CreditEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				slog.Error("failed to unmarshal credit event", "error", err)
				continue
			}
			if event.Status == "approved" {
				observability.CreditsApproved.Inc()
			}
			c.evict(ctx, fmt.Sprintf("user:%d:balance", event.UserID))

		default:
			slog.Error("unknown topic", "topic", msg.Topic)
		}
	}
}

func (c *Consumer) evict(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := c.redisClient.Del(ctx, key); err != nil {
			slog.Error("failed to evict cache key", "key", key, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
