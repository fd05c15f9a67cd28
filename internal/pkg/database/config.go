package database

import (
	"errors"
	"fmt"
	"time"
)

// Supported dialects
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config defines the database configuration
type Config struct {
	// Driver selects the dialect: postgres in deployments, sqlite for tests and local tooling
	Driver string `mapstructure:"driver"`

	// Connection settings
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"` // disable, require, verify-ca, verify-full

	// SQLitePath is the database file (or ":memory:") when Driver is sqlite
	SQLitePath string `mapstructure:"sqlitepath"`

	// Connection pool settings
	MaxIdleConns    int           `mapstructure:"maxidleconns"`
	MaxOpenConns    int           `mapstructure:"maxopenconns"`
	ConnMaxLifetime time.Duration `mapstructure:"connmaxlifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"connmaxidletime"`

	// GORM settings
	LogLevel      string        `mapstructure:"loglevel"`      // silent, error, warn, info
	SlowThreshold time.Duration `mapstructure:"slowthreshold"` // Slow query threshold
	PrepareStmt   bool          `mapstructure:"preparestmt"`

	// Serializable runs every unit of work at SERIALIZABLE isolation (postgres only)
	Serializable bool `mapstructure:"serializable"`
	// MaxTxRetries bounds retries of serialization failures and deadlocks
	MaxTxRetries int `mapstructure:"maxtxretries"`

	Timezone    string `mapstructure:"timezone"`
	AutoMigrate bool   `mapstructure:"automigrate"`
}

// DefaultConfig returns the default database configuration
func DefaultConfig() *Config {
	return &Config{
		Driver:   DriverPostgres,
		Host:     "localhost",
		Port:     5432,
		User:     "metax",
		Password: "metax",
		DBName:   "metax",
		SSLMode:  "disable",

		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,

		LogLevel:      "warn",
		SlowThreshold: 200 * time.Millisecond,
		PrepareStmt:   true,

		Serializable: true,
		MaxTxRetries: 3,

		Timezone:    "UTC",
		AutoMigrate: false,
	}
}

// SQLiteConfig returns a configuration for an sqlite database at path
func SQLiteConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.Driver = DriverSQLite
	cfg.SQLitePath = path
	cfg.MaxIdleConns = 1
	cfg.MaxOpenConns = 1
	// an in-memory database lives only as long as its single connection
	cfg.ConnMaxLifetime = 0
	cfg.ConnMaxIdleTime = 0
	cfg.LogLevel = "silent"
	cfg.PrepareStmt = false
	cfg.AutoMigrate = true
	return cfg
}

// Validate validates the database configuration
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	case DriverPostgres:
		if c.Host == "" {
			return errors.New("database host is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return errors.New("database port must be between 1 and 65535")
		}
		if c.User == "" {
			return errors.New("database user is required")
		}
		if c.DBName == "" {
			return errors.New("database name is required")
		}
		validSSLMode := false
		for _, mode := range []string{"disable", "require", "verify-ca", "verify-full"} {
			if c.SSLMode == mode {
				validSSLMode = true
				break
			}
		}
		if !validSSLMode {
			return errors.New("invalid SSL mode, must be one of: disable, require, verify-ca, verify-full")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	validLogLevel := false
	for _, level := range []string{"silent", "error", "warn", "info"} {
		if c.LogLevel == level {
			validLogLevel = true
			break
		}
	}
	if !validLogLevel {
		return errors.New("invalid log level, must be one of: silent, error, warn, info")
	}

	if c.MaxIdleConns < 0 {
		return errors.New("max idle connections must be >= 0")
	}
	if c.MaxOpenConns < 0 {
		return errors.New("max open connections must be >= 0")
	}
	if c.MaxIdleConns > c.MaxOpenConns && c.MaxOpenConns > 0 {
		return errors.New("max idle connections cannot exceed max open connections")
	}
	if c.MaxTxRetries < 0 {
		return errors.New("max transaction retries must be >= 0")
	}

	return nil
}

// DSN returns the PostgreSQL connection DSN
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, c.Timezone)
}
