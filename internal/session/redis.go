package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/datalens/internal/providers"
)

const redisKeyPrefix = "datalens:session:"

// RedisCheckpointer persists session history in Redis, one JSON document
// per session key. Intended for managed deployments where the process is
// disposable but a Redis instance is at hand.
type RedisCheckpointer struct {
	rdb *redis.Client
}

// NewRedisCheckpointer connects using a redis:// URL.
func NewRedisCheckpointer(ctx context.Context, url string) (*RedisCheckpointer, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("session checkpoint store connected", "addr", opts.Addr)
	return &RedisCheckpointer{rdb: rdb}, nil
}

func (c *RedisCheckpointer) Load(ctx context.Context, sessionID string) ([]providers.Message, error) {
	doc, err := c.rdb.Get(ctx, redisKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var history []providers.Message
	if err := json.Unmarshal([]byte(doc), &history); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return history, nil
}

func (c *RedisCheckpointer) Save(ctx context.Context, sessionID string, history []providers.Message) error {
	doc, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if err := c.rdb.Set(ctx, redisKeyPrefix+sessionID, doc, 0).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

func (c *RedisCheckpointer) Delete(ctx context.Context, sessionID string) error {
	if err := c.rdb.Del(ctx, redisKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (c *RedisCheckpointer) List(ctx context.Context) ([]string, error) {
	var ids []string
	iter := c.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(redisKeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

func (c *RedisCheckpointer) Close() error {
	return c.rdb.Close()
}
