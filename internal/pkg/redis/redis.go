package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps a go-redis universal client with logging
type Client struct {
	config *Config
	logger *logger.Logger
	master redis.UniversalClient
}

// New connects and pings before returning
func New(cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}

	opts := &redis.UniversalOptions{
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,

		MaxRetries: cfg.MaxRetries,
	}

	switch cfg.Mode {
	case ModeSingle:
		opts.Addrs = []string{cfg.MasterAddr}
	case ModeSentinel:
		opts.Addrs = cfg.SentinelAddrs
		opts.MasterName = cfg.MasterName
	case ModeCluster:
		opts.Addrs = cfg.ClusterAddrs
		opts.IsClusterMode = true
	}

	client := &Client{
		config: cfg,
		logger: log,
		master: redis.NewUniversalClient(opts),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("redis client initialized successfully",
		zap.String("mode", string(cfg.Mode)),
		zap.Strings("addrs", opts.Addrs),
	)

	return client, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.master == nil {
		return ErrNotInitialized
	}

	if err := c.master.Ping(ctx).Err(); err != nil {
		c.logger.Error("redis ping failed", zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) Close() error {
	if c.master == nil {
		return nil
	}
	if err := c.master.Close(); err != nil {
		c.logger.Error("close redis client failed", zap.Error(err))
		return err
	}
	c.logger.Info("redis client closed")
	return nil
}

func (c *Client) Config() *Config {
	return c.config
}

// Eval runs a Lua script atomically on the server
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	res, err := c.master.Eval(ctx, script, keys, args...).Result()
	if err != nil && !IsNil(err) {
		c.logger.Error("redis eval failed", zap.Strings("keys", keys), zap.Error(err))
		return nil, err
	}
	return res, nil
}
