package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// unlockScript deletes the key only while it still holds our token
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Lock sets key if absent and returns the token needed to release it
func (c *Client) Lock(ctx context.Context, key string, expiration time.Duration) (string, error) {
	token := uuid.New().String()

	ok, err := c.master.SetNX(ctx, key, token, expiration).Result()
	if err != nil {
		c.logger.Error("redis lock failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}

	c.logger.Debug("redis lock acquired",
		zap.String("key", key),
		zap.Duration("expiration", expiration),
	)
	return token, nil
}

// Unlock releases key if token still owns it
func (c *Client) Unlock(ctx context.Context, key, token string) error {
	n, err := unlockScript.Run(ctx, c.master, []string{key}, token).Int64()
	if err != nil {
		c.logger.Error("redis unlock failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}

	c.logger.Debug("redis lock released", zap.String("key", key))
	return nil
}

// TryLock retries Lock up to maxRetries times
func (c *Client) TryLock(ctx context.Context, key string, expiration time.Duration, maxRetries int, retryDelay time.Duration) (string, error) {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		token, err := c.Lock(ctx, key, expiration)
		if err == nil {
			return token, nil
		}
		lastErr = err

		if i < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	c.logger.Warn("redis trylock failed after retries",
		zap.String("key", key),
		zap.Int("retries", maxRetries),
		zap.Error(lastErr),
	)
	return "", lastErr
}

// WithLocks runs fn while holding a lock on every non-empty key. Keys are
// deduplicated and taken in sorted order.
func (c *Client) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, c.config.LockPrefix+k)
	}
	sort.Strings(sorted)

	type held struct{ key, token string }
	acquired := make([]held, 0, len(sorted))
	defer func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			if err := c.Unlock(context.WithoutCancel(ctx), acquired[i].key, acquired[i].token); err != nil {
				c.logger.Warn("failed to unlock",
					zap.String("key", acquired[i].key),
					zap.Error(err),
				)
			}
		}
	}()

	for _, key := range sorted {
		token, err := c.TryLock(ctx, key, c.config.LockTTL, c.config.LockRetries, c.config.LockRetryDelay)
		if err != nil {
			return err
		}
		acquired = append(acquired, held{key: key, token: token})
	}

	return fn(ctx)
}
