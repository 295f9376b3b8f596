package dedup

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores dispatched ids in a sorted set scored by insertion time (unix ms).
// Several relay replicas may share it.
type Redis struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

func OpenRedis(ctx context.Context, rawURL, key string) (*Redis, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("dedup redis url is required")
	}
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedis(client, key), nil
}

func NewRedis(client *redis.Client, key string) *Redis {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key, now: time.Now}
}

func (r *Redis) Contains(ctx context.Context, id string) (bool, error) {
	err := r.client.ZScore(ctx, r.key, id).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Redis) Insert(ctx context.Context, id string) error {
	return r.client.ZAdd(ctx, r.key, redis.Z{Score: float64(r.now().UnixMilli()), Member: id}).Err()
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *Redis) Size(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.key).Result()
	return int(n), err
}

func (r *Redis) Prune(ctx context.Context, before time.Time) (int, error) {
	// Exclusive upper bound.
	max := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	n, err := r.client.ZRemRangeByScore(ctx, r.key, "-inf", max).Result()
	return int(n), err
}

func (r *Redis) Close() error { return r.client.Close() }
