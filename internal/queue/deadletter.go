package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"moviesite/internal/models"

	"github.com/redis/go-redis/v9"
)

// deadLetterCap bounds the redis list; the queue table keeps the full history.
const deadLetterCap = 1000

// RedisDeadLetters mirrors quarantined intents into a capped redis list for
// operators and external consumers.
type RedisDeadLetters struct {
	client *redis.Client
	key    string
}

func NewRedisDeadLetters(client *redis.Client, key string) *RedisDeadLetters {
	return &RedisDeadLetters{client: client, key: key}
}

func (d *RedisDeadLetters) PushDeadLetter(ctx context.Context, intent *models.Intent) error {
	if d == nil || d.client == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode deadletter %d: %w", intent.ID, err)
	}

	pipe := d.client.TxPipeline()
	pipe.LPush(ctx, d.key, data)
	pipe.LTrim(ctx, d.key, 0, deadLetterCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deadletter push %d: %w", intent.ID, err)
	}
	return nil
}

// Recent returns up to limit dead letters, newest first.
func (d *RedisDeadLetters) Recent(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	items, err := d.client.LRange(ctx, d.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read deadletters: %w", err)
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item))
	}
	return out, nil
}
