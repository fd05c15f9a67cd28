package redis

import (
	"errors"
	"time"
)

// DeployMode selects how the client reaches redis
type DeployMode string

const (
	ModeSingle   DeployMode = "single"
	ModeSentinel DeployMode = "sentinel"
	ModeCluster  DeployMode = "cluster"
)

// Config holds connection, pool and lock settings
type Config struct {
	Mode DeployMode `mapstructure:"mode" yaml:"mode"`

	MasterAddr string `mapstructure:"master_addr" yaml:"master_addr"`

	// sentinel mode
	SentinelAddrs []string `mapstructure:"sentinel_addrs" yaml:"sentinel_addrs"`
	MasterName    string   `mapstructure:"master_name" yaml:"master_name"`

	// cluster mode
	ClusterAddrs []string `mapstructure:"cluster_addrs" yaml:"cluster_addrs"`

	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`

	PoolSize     int `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout" yaml:"pool_timeout"`

	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// Per-identifier advisory locks taken around record writes
	LockPrefix     string        `mapstructure:"lock_prefix" yaml:"lock_prefix"`
	LockTTL        time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
	LockRetries    int           `mapstructure:"lock_retries" yaml:"lock_retries"`
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay" yaml:"lock_retry_delay"`
}

func DefaultConfig() *Config {
	return &Config{
		Mode:       ModeSingle,
		MasterAddr: "localhost:6379",
		DB:         0,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,

		MaxRetries: 3,

		LockPrefix:     "metax:lock:",
		LockTTL:        30 * time.Second,
		LockRetries:    50,
		LockRetryDelay: 100 * time.Millisecond,
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSingle:
		if c.MasterAddr == "" {
			return errors.New("redis: master_addr is required in single mode")
		}
	case ModeSentinel:
		if len(c.SentinelAddrs) == 0 {
			return errors.New("redis: sentinel_addrs is required in sentinel mode")
		}
		if c.MasterName == "" {
			return errors.New("redis: master_name is required in sentinel mode")
		}
	case ModeCluster:
		if len(c.ClusterAddrs) == 0 {
			return errors.New("redis: cluster_addrs is required in cluster mode")
		}
	default:
		return errors.New("redis: invalid mode, must be one of: single, sentinel, cluster")
	}

	if c.DB < 0 || c.DB > 15 {
		return errors.New("redis: db must be between 0 and 15")
	}
	if c.PoolSize <= 0 {
		return errors.New("redis: pool_size must be > 0")
	}
	if c.MinIdleConns < 0 || c.MinIdleConns > c.PoolSize {
		return errors.New("redis: min_idle_conns must be between 0 and pool_size")
	}
	if c.DialTimeout <= 0 {
		return errors.New("redis: dial_timeout must be > 0")
	}
	if c.LockTTL <= 0 {
		return errors.New("redis: lock_ttl must be > 0")
	}
	if c.LockRetries < 0 {
		return errors.New("redis: lock_retries must be >= 0")
	}

	return nil
}
