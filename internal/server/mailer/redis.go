package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/infinex-exchange/account.account/internal/logging"
)

// RedisMailer appends mail jobs to a Redis stream consumed by the mailer
// daemon. Jobs survive a daemon restart; the stream is the queue.
type RedisMailer struct {
	client *redis.Client
	stream string
	logger logging.Logger
}

func NewRedisMailer(client *redis.Client, stream string, logger logging.Logger) *RedisMailer {
	return &RedisMailer{client: client, stream: stream, logger: logger}
}

func (m *RedisMailer) Send(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error marshaling mail job: %w", err)
	}

	err = m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream,
		Values: map[string]any{"job": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("error enqueueing mail job: %w", err)
	}

	m.logger.Debug(ctx, "mail job enqueued",
		"id", msg.ID, "template", msg.Template, "uid", msg.UID)
	return nil
}
