package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/novahub/nova-gateway/internal/config"
	"github.com/novahub/nova-gateway/internal/orchestrator"
)

// ErrRunNotFound indicates no checkpoint exists for a thread.
var ErrRunNotFound = errors.New("history: run not found")

// RedisStore keeps conversation history in Redis lists and run checkpoints
// in plain keys, both expiring after the configured TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to Redis and validates the connection.
func NewRedisStore(cfg *config.HistoryConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{rdb: rdb, ttl: cfg.GetTTL()}, nil
}

// AppendExchange pushes an exchange onto the conversation list, trims to
// the cap, and refreshes the TTL.
func (s *RedisStore) AppendExchange(ctx context.Context, ex Exchange) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal exchange: %w", err)
	}

	key := conversationKey(ex.UserID, ex.Platform)
	pipe := s.rdb.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxExchanges-1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append exchange: %w", err)
	}
	return nil
}

// Recent returns up to n exchanges, newest first.
func (s *RedisStore) Recent(ctx context.Context, userID, platform string, n int) ([]Exchange, error) {
	if n <= 0 {
		n = maxExchanges
	}
	raw, err := s.rdb.LRange(ctx, conversationKey(userID, platform), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange: %w", err)
	}

	exchanges := make([]Exchange, 0, len(raw))
	for _, item := range raw {
		var ex Exchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			continue
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, nil
}

// SaveRun checkpoints a terminal task state.
func (s *RedisStore) SaveRun(ctx context.Context, state *orchestrator.TaskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	if err := s.rdb.Set(ctx, runKey(state.ThreadID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// LoadRun fetches a checkpointed task state by thread ID.
func (s *RedisStore) LoadRun(ctx context.Context, threadID string) (*orchestrator.TaskState, error) {
	data, err := s.rdb.Get(ctx, runKey(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	var state orchestrator.TaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &state, nil
}

// Close releases the underlying connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
