package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codex-k8s/orion-orchestrator/internal/llm"
)

// DefaultKeyPrefix namespaces conversation keys in Redis.
const DefaultKeyPrefix = "orion:conversation:"

// Redis keeps each session as a capped list with a sliding expiry.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	tail   int
}

// RedisOptions configures a Redis store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
	Limit    int
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewRedisWithClient(client, opts), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, opts RedisOptions) *Redis {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, tail: tailLimit(opts.Limit)}
}

func (r *Redis) key(sessionID string) string {
	return r.prefix + strings.TrimSpace(sessionID)
}

// History implements Store.
func (r *Redis) History(ctx context.Context, sessionID, systemPrompt string) ([]llm.Message, error) {
	raw, err := r.client.LRange(ctx, r.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", sessionID, err)
	}
	tail := make([]llm.Message, 0, len(raw))
	for _, item := range raw {
		var msg llm.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode conversation %s: %w", sessionID, err)
		}
		tail = append(tail, msg)
	}
	return compose(systemPrompt, tail), nil
}

// Append implements Store.
func (r *Redis) Append(ctx context.Context, sessionID string, messages ...llm.Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values = append(values, string(data))
	}

	key := r.key(sessionID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-r.tail), -1)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append conversation %s: %w", sessionID, err)
	}
	return nil
}

// Reset implements Store.
func (r *Redis) Reset(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("reset conversation %s: %w", sessionID, err)
	}
	return nil
}

// Prune implements Store. Redis expires idle sessions itself.
func (r *Redis) Prune(context.Context) (int, error) {
	return 0, nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
