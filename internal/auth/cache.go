package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const tokenKeyPrefix = "authtok:"

// NewRedisClient connects to the chat Redis instance used for token caching.
func NewRedisClient(host string, port int) (*redis.Client, error) {
	maxPool := runtime.NumCPU() * 8
	if maxPool > 512 {
		maxPool = 512
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		PoolSize: maxPool,
	})

	ctx, cancelFunc := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFunc()
	if _, err := rc.Ping(ctx).Result(); err != nil {
		err = errors.New("Redis connection failed: " + err.Error())
		zap.L().Error("redis_connect", zap.Error(err))
		return nil, err
	}
	return rc, nil
}

// cachedVerifier memoises successful verifications in Redis for a bounded
// TTL so reconnect storms don't hammer the auth collaborator. Failures are
// never cached: an unreachable collaborator stays a per-attempt failure.
type cachedVerifier struct {
	next Verifier
	rdc  *redis.Client
	ttl  time.Duration
}

func NewCachedVerifier(next Verifier, rdc *redis.Client, ttl time.Duration) Verifier {
	return &cachedVerifier{next: next, rdc: rdc, ttl: ttl}
}

func (c *cachedVerifier) Verify(ctx context.Context, token string) *Identity {
	if token == "" {
		return nil
	}

	key := tokenKeyPrefix + token
	if raw, err := c.rdc.Get(ctx, key).Result(); err == nil {
		var id Identity
		if jsonErr := json.Unmarshal([]byte(raw), &id); jsonErr == nil {
			return &id
		}
		// Unreadable entry: drop it and fall through to the collaborator.
		_ = c.rdc.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		zap.L().Warn("auth.cache_get", zap.Error(err))
	}

	id := c.next.Verify(ctx, token)
	if id == nil {
		return nil
	}

	if raw, err := json.Marshal(id); err == nil {
		if err := c.rdc.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			zap.L().Warn("auth.cache_set", zap.Error(err))
		}
	}
	return id
}
