package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spectra-gallery/spectra-playground/logging"
	"github.com/spectra-gallery/spectra-playground/models"
)

type RedisPlaygroundCache struct {
	client redis.UniversalClient
	log    logging.Logger
}

func NewRedisPlaygroundCache(ctx context.Context, devMode bool, redisEndpoint string, log logging.Logger) (*RedisPlaygroundCache, error) {
	opts := &redis.Options{Addr: redisEndpoint}
	if !devMode {
		// AWS elasticache endpoints require TLS
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewFromClient(client, log), nil
}

func NewFromClient(client redis.UniversalClient, log logging.Logger) *RedisPlaygroundCache {
	return &RedisPlaygroundCache{client: client, log: log.With("component", "redis")}
}

func (redisCache *RedisPlaygroundCache) Close() error {
	return redisCache.client.Close()
}

func (redisCache *RedisPlaygroundCache) Publish(ctx context.Context, channel string, message []byte) error {
	return redisCache.client.Publish(ctx, channel, message).Err()
}

func (redisCache *RedisPlaygroundCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	// Ensure subscription is established
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					redisCache.log.Warn(ctx, "pubsub channel closed", "channel", channel)
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

// Keys use hash tags so related keys land on one cluster slot.
func buildShareKey(token string) string {
	return "share:{" + token + "}"
}

func buildAttemptsKey(key string) string {
	return "attempts:{" + key + "}"
}

func (redisCache *RedisPlaygroundCache) SetShare(ctx context.Context, share models.ShareEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(share)
	if err != nil {
		return err
	}
	return redisCache.client.Set(ctx, buildShareKey(share.Token), data, ttl).Err()
}

func (redisCache *RedisPlaygroundCache) GetShare(ctx context.Context, token string) (models.ShareEntry, bool, error) {
	data, err := redisCache.client.Get(ctx, buildShareKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ShareEntry{}, false, nil
		}
		return models.ShareEntry{}, false, err
	}

	var share models.ShareEntry
	if err := json.Unmarshal(data, &share); err != nil {
		return models.ShareEntry{}, false, err
	}
	return share, true, nil
}

func (redisCache *RedisPlaygroundCache) InvalidateShares(ctx context.Context, tokens []string) error {
	// Each token has its own hash tag, so delete one at a time for cluster safety.
	for _, token := range tokens {
		if err := redisCache.client.Del(ctx, buildShareKey(token)).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (redisCache *RedisPlaygroundCache) IncrementAttempts(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := buildAttemptsKey(key)

	pipe := redisCache.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	// NX keeps the window anchored at the first failed attempt.
	pipe.ExpireNX(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (redisCache *RedisPlaygroundCache) ResetAttempts(ctx context.Context, key string) error {
	return redisCache.client.Del(ctx, buildAttemptsKey(key)).Err()
}
