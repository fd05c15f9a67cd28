package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/response"
)

// HeaderService identifies the calling service; requests without it are
// limited per client IP.
const HeaderService = "X-Metax-Service"

// RateLimitConfig configures the write limiter
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// MaxRequests allowed per window and caller
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:     false,
		MaxRequests: 120,
		Window:      time.Minute,
		KeyPrefix:   "metax:rate_limit",
	}
}

// ScriptRunner evaluates a Lua script atomically
type ScriptRunner interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// slidingWindowScript keeps one sorted-set member per accepted request,
// scored by its arrival time in milliseconds.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

local current = redis.call('ZCARD', key)
if current < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, limit - current - 1, now + window}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2]
return {0, 0, tonumber(oldest) + window}
`

// RateLimiter is a sliding-window limit on dataset writes backed by redis
type RateLimiter struct {
	runner ScriptRunner
	cfg    RateLimitConfig
	logger *logger.Logger
}

func NewRateLimiter(runner ScriptRunner, cfg RateLimitConfig, log *logger.Logger) *RateLimiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 120
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "metax:rate_limit"
	}
	return &RateLimiter{runner: runner, cfg: cfg, logger: log}
}

// Handler limits mutating requests only; reads pass straight through.
// A redis failure lets the request through.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		key := l.key(c)
		allowed, remaining, resetAt, err := l.check(c.Request.Context(), key)
		if err != nil {
			l.logger.Error("rate limiter error", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt/1000, 10))

		if !allowed {
			retry := time.Until(time.UnixMilli(resetAt))
			if retry < time.Second {
				retry = time.Second
			}
			c.Header("Retry-After", strconv.Itoa(int(retry.Seconds())))
			response.ErrorWithCode(c, apperrors.ErrTooManyRequests,
				fmt.Sprintf("retry in %d seconds", int(retry.Seconds())))
			c.Abort()
			return
		}

		c.Next()
	}
}

func (l *RateLimiter) key(c *gin.Context) string {
	if svc := c.GetHeader(HeaderService); svc != "" {
		return fmt.Sprintf("%s:service:%s", l.cfg.KeyPrefix, svc)
	}
	return fmt.Sprintf("%s:ip:%s", l.cfg.KeyPrefix, c.ClientIP())
}

func (l *RateLimiter) check(ctx context.Context, key string) (allowed bool, remaining int, resetAt int64, err error) {
	now := time.Now().UnixMilli()

	res, err := l.runner.Eval(ctx, slidingWindowScript, []string{key},
		now, l.cfg.Window.Milliseconds(), l.cfg.MaxRequests, uuid.NewString())
	if err != nil {
		return false, 0, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected rate limit result %v", res)
	}
	allowedInt, _ := vals[0].(int64)
	remainingInt, _ := vals[1].(int64)
	resetAt, _ = vals[2].(int64)

	return allowedInt == 1, int(remainingInt), resetAt, nil
}
