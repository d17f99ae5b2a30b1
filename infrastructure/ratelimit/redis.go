package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a caller exceeds the configured rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter records an attempt for a key and rejects it when the key has been
// seen too often inside the window. Rejected attempts are not recorded.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

type Config struct {
	Limit  int
	Window time.Duration
}

func NewConfigFromEnv() *Config {
	limit, err := strconv.Atoi(os.Getenv("FLAG_SUBMISSION_RATE_LIMIT"))
	if err != nil || limit < 1 {
		limit = 10
	}
	window, err := strconv.Atoi(os.Getenv("FLAG_SUBMISSION_RATE_WINDOW"))
	if err != nil || window < 1 {
		window = 60
	}

	return &Config{
		Limit:  limit,
		Window: time.Duration(window) * time.Second,
	}
}

// RedisLimiter is a sliding-window limiter on a sorted set per key: members
// are attempt timestamps, scores their unix nanos. Sharing the window state
// in redis keeps the limit accurate across multiple api processes.
type RedisLimiter struct {
	client *redis.Client
	cfg    *Config
	prefix string
}

func NewRedisLimiter(cfg *Config) (*RedisLimiter, error) {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLimiter{
		client: client,
		cfg:    cfg,
		prefix: "ratelimit:submission:",
	}, nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	now := time.Now()
	cutoff := now.Add(-l.cfg.Window)
	redisKey := l.prefix + key

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(cutoff.UnixNano(), 10))
	count := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to read rate limit window: %w", err)
	}

	if count.Val() >= int64(l.cfg.Limit) {
		return ErrRateLimited
	}

	member := strconv.FormatInt(now.UnixNano(), 10)
	pipe = l.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, redisKey, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record rate limit attempt: %w", err)
	}

	return nil
}
