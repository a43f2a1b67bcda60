package gojob

import (
	"context"
	"errors"
	"strconv"
	"time"

	jobredis "github.com/goliatone/go-job/queue/adapters/redis"
	redis "github.com/redis/go-redis/v9"
)

// DefaultQueueName prefixes the redis keys of the wake-up queue.
const DefaultQueueName = "featurehooks:dispatch"

// NewRedisQueue builds a go-job queue over client. The returned adapter is
// both the ingest enqueuer and the dispatch worker's dequeuer.
func NewRedisQueue(client redis.Cmdable, name string, opts ...jobredis.Option) *jobredis.Adapter {
	if name == "" {
		name = DefaultQueueName
	}
	storageOpts := append([]jobredis.Option{jobredis.WithQueueName(name)}, opts...)
	return jobredis.NewAdapter(jobredis.NewStorage(RedisClient{client: client}, storageOpts...))
}

// RedisClient maps go-redis commands onto go-job's redis client contract.
// Missing keys read as empty values rather than redis.Nil errors.
type RedisClient struct {
	client redis.Cmdable
}

func (c RedisClient) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return c.client.HSet(ctx, key, values).Err()
}

func (c RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.client.HGetAll(ctx, key).Result()
}

func (c RedisClient) HGet(ctx context.Context, key, field string) (string, error) {
	value, err := c.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

func (c RedisClient) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return c.client.HDel(ctx, key, fields...).Err()
}

func (c RedisClient) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, value := range values {
		args[i] = value
	}
	return c.client.LPush(ctx, key, args...).Err()
}

func (c RedisClient) RPop(ctx context.Context, key string) (string, error) {
	value, err := c.client.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

func (c RedisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return c.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (c RedisClient) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, member := range members {
		args[i] = member
	}
	return c.client.ZRem(ctx, key, args...).Err()
}

func (c RedisClient) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]jobredis.ZItem, error) {
	items, err := c.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(max, 'f', -1, 64),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]jobredis.ZItem, 0, len(items))
	for _, item := range items {
		member, _ := item.Member.(string)
		out = append(out, jobredis.ZItem{Member: member, Score: item.Score})
	}
	return out, nil
}

func (c RedisClient) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	value, err := c.client.Eval(ctx, script, keys, args...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return value, err
}

func (c RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, key, ttl).Err()
}

func (c RedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

var _ jobredis.Client = RedisClient{}
