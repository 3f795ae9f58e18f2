package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisOutbox enqueues messages on a Redis list for the notify worker to deliver.
type RedisOutbox struct {
	client *redis.Client
	key    string
}

func NewRedisOutbox(client *redis.Client, key string) *RedisOutbox {
	return &RedisOutbox{client: client, key: key}
}

func (o *RedisOutbox) Send(ctx context.Context, msg Message) error {
	if msg.To == "" || msg.Subject == "" {
		return ErrMissingRecipient
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := o.client.LPush(ctx, o.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Worker drains the outbox into a Sender, oldest message first.
type Worker struct {
	client  *redis.Client
	key     string
	sender  Sender
	logger  zerolog.Logger
	timeout time.Duration
}

func NewWorker(client *redis.Client, key string, sender Sender, logger zerolog.Logger) *Worker {
	return &Worker{
		client:  client,
		key:     key,
		sender:  sender,
		logger:  logger.With().Str("component", "notify-worker").Logger(),
		timeout: 5 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.ProcessOne(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("outbox read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOne waits up to the worker timeout for one message and delivers it.
// Undecodable or undeliverable messages are logged and dropped.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	res, err := w.client.BRPop(ctx, w.timeout, w.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(res) != 2 {
		return false, fmt.Errorf("unexpected BRPOP reply of length %d", len(res))
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		w.logger.Warn().Err(err).Msg("dropping undecodable notification")
		return true, nil
	}
	Dispatch(ctx, w.logger, w.sender, msg)
	return true, nil
}
