package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/roomlink/realtime/src/types"
)

const messageTTL = 30 * 24 * time.Hour

// RedisStore keeps chat history in Redis sorted sets, one per chat, scored
// by creation timestamp.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreConfig holds connection settings for the Redis message store.
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) chatKey(chatID string) string {
	return s.prefix + "chat:" + chatID + ":messages"
}

// SaveMessage stores an envelope under its chat's sorted set.
func (s *RedisStore) SaveMessage(ctx context.Context, env types.Envelope) (string, error) {
	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	key := s.chatKey(env.ChatID)
	err = s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(env.CreatedAt.UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.client.Expire(ctx, key, messageTTL)
	return env.ID, nil
}

// LoadRecentMessages returns the newest messages for a chat, oldest first.
func (s *RedisStore) LoadRecentMessages(ctx context.Context, chatID string, limit int) ([]types.Envelope, error) {
	if limit <= 0 {
		limit = 50
	}

	// Newest first from the tail of the set, then reversed for
	// most-recent-last ordering.
	raw, err := s.client.ZRevRangeByScore(ctx, s.chatKey(chatID), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	msgs := make([]types.Envelope, 0, len(raw))
	for idx := len(raw) - 1; idx >= 0; idx-- {
		var env types.Envelope
		if err := json.Unmarshal([]byte(raw[idx]), &env); err != nil {
			continue
		}
		msgs = append(msgs, env)
	}
	return msgs, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
