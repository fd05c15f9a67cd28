package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/database"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/kafka"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/minio"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/redis"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/workerpool"
	"github.com/CSCfi/fairdata-metax-sub001/internal/server/middleware"
)

// EnvPrefix prefixes every environment override, e.g. METAX_DATABASE_HOST
const EnvPrefix = "METAX"

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database database.Config `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Kafka    KafkaConfig     `mapstructure:"kafka"`
	MinIO    minio.Config    `mapstructure:"minio"`
	Log      logger.Config   `mapstructure:"log"`
	Catalog  CatalogConfig   `mapstructure:"catalog"`
	Events   EventsConfig    `mapstructure:"events"`
	Files    FilesConfig     `mapstructure:"files"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	RateLimit middleware.RateLimitConfig `mapstructure:"rate_limit"`
}

// Addr returns host:port
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig enables the advisory lock and the pub/sub publisher
type RedisConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	redis.Config `mapstructure:",squash"`
}

type KafkaConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	kafka.Config `mapstructure:",squash"`
}

type CatalogConfig struct {
	// QuarantineIdentifier is the identifier of the single quarantine catalog
	QuarantineIdentifier string        `mapstructure:"quarantine_identifier"`
	CacheSize            int           `mapstructure:"cache_size"`
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
	// InheritAlternateSetOnFork lets a new version with an unchanged
	// preferred identifier join the predecessor's alternate record set
	InheritAlternateSetOnFork bool   `mapstructure:"inherit_alternate_set_on_fork"`
	URNPrefix                 string `mapstructure:"urn_prefix"`
	// SeedFile is read by cmd/migrate
	SeedFile string `mapstructure:"seed_file"`
}

type EventsConfig struct {
	// Backends lists publishers to fan out to: redis, kafka. Empty disables events.
	Backends     []string `mapstructure:"backends"`
	RedisChannel string   `mapstructure:"redis_channel"`
}

type FilesConfig struct {
	// Registry selects where file sizes come from: database or minio
	Registry string `mapstructure:"registry"`
	// StatWorkers bounds concurrent object lookups against minio
	StatWorkers workerpool.Config `mapstructure:"stat_workers"`
}

const (
	RegistryDatabase = "database"
	RegistryMinIO    = "minio"
)

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8008,
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       middleware.DefaultRateLimitConfig(),
		},
		Database: *database.DefaultConfig(),
		Redis:    RedisConfig{Enabled: false, Config: *redis.DefaultConfig()},
		Kafka:    KafkaConfig{Enabled: false, Config: *kafka.DefaultConfig()},
		MinIO:    *minio.DefaultConfig(),
		Log:      *logger.DefaultConfig(),
		Catalog: CatalogConfig{
			QuarantineIdentifier: "urn:nbn:fi:att:data-catalog-att",
			CacheSize:            256,
			CacheTTL:             5 * time.Minute,
			URNPrefix:            "urn:nbn:fi:att:",
		},
		Events: EventsConfig{
			RedisChannel: "metax:catalog-records",
		},
		Files: FilesConfig{
			Registry:    RegistryDatabase,
			StatWorkers: *workerpool.DefaultConfig(),
		},
	}
}

// LoadConfig reads the YAML file at path (optional) and applies METAX_*
// environment overrides on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	v.SetDefault("server.rate_limit.max_requests", d.Server.RateLimit.MaxRequests)
	v.SetDefault("server.rate_limit.window", d.Server.RateLimit.Window)
	v.SetDefault("server.rate_limit.key_prefix", d.Server.RateLimit.KeyPrefix)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.sqlitepath", d.Database.SQLitePath)
	v.SetDefault("database.maxidleconns", d.Database.MaxIdleConns)
	v.SetDefault("database.maxopenconns", d.Database.MaxOpenConns)
	v.SetDefault("database.connmaxlifetime", d.Database.ConnMaxLifetime)
	v.SetDefault("database.connmaxidletime", d.Database.ConnMaxIdleTime)
	v.SetDefault("database.loglevel", d.Database.LogLevel)
	v.SetDefault("database.slowthreshold", d.Database.SlowThreshold)
	v.SetDefault("database.preparestmt", d.Database.PrepareStmt)
	v.SetDefault("database.serializable", d.Database.Serializable)
	v.SetDefault("database.maxtxretries", d.Database.MaxTxRetries)
	v.SetDefault("database.timezone", d.Database.Timezone)
	v.SetDefault("database.automigrate", d.Database.AutoMigrate)

	v.SetDefault("redis.enabled", d.Redis.Enabled)
	v.SetDefault("redis.mode", d.Redis.Mode)
	v.SetDefault("redis.master_addr", d.Redis.MasterAddr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.pool_size", d.Redis.PoolSize)
	v.SetDefault("redis.min_idle_conns", d.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", d.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", d.Redis.WriteTimeout)
	v.SetDefault("redis.pool_timeout", d.Redis.PoolTimeout)
	v.SetDefault("redis.max_retries", d.Redis.MaxRetries)
	v.SetDefault("redis.lock_prefix", d.Redis.LockPrefix)
	v.SetDefault("redis.lock_ttl", d.Redis.LockTTL)
	v.SetDefault("redis.lock_retries", d.Redis.LockRetries)
	v.SetDefault("redis.lock_retry_delay", d.Redis.LockRetryDelay)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.batch_size", d.Kafka.BatchSize)
	v.SetDefault("kafka.batch_timeout", d.Kafka.BatchTimeout)
	v.SetDefault("kafka.required_acks", d.Kafka.RequiredAcks)
	v.SetDefault("kafka.compression", d.Kafka.Compression)
	v.SetDefault("kafka.async", d.Kafka.Async)

	v.SetDefault("minio.endpoint", d.MinIO.Endpoint)
	v.SetDefault("minio.access_key_id", d.MinIO.AccessKeyID)
	v.SetDefault("minio.secret_access_key", d.MinIO.SecretAccessKey)
	v.SetDefault("minio.use_ssl", d.MinIO.UseSSL)
	v.SetDefault("minio.bucket_lookup", d.MinIO.BucketLookup)
	v.SetDefault("minio.bucket", d.MinIO.Bucket)
	v.SetDefault("minio.file_prefix", d.MinIO.FilePrefix)
	v.SetDefault("minio.request_timeout", d.MinIO.RequestTimeout)

	v.SetDefault("log.name", d.Log.Name)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.enablecaller", d.Log.EnableCaller)
	v.SetDefault("log.enablestacktrace", d.Log.EnableStacktrace)
	v.SetDefault("log.file.filename", d.Log.File.Filename)
	v.SetDefault("log.file.maxsize", d.Log.File.MaxSize)
	v.SetDefault("log.file.maxage", d.Log.File.MaxAge)
	v.SetDefault("log.file.maxbackups", d.Log.File.MaxBackups)
	v.SetDefault("log.file.compress", d.Log.File.Compress)

	v.SetDefault("catalog.quarantine_identifier", d.Catalog.QuarantineIdentifier)
	v.SetDefault("catalog.cache_size", d.Catalog.CacheSize)
	v.SetDefault("catalog.cache_ttl", d.Catalog.CacheTTL)
	v.SetDefault("catalog.inherit_alternate_set_on_fork", d.Catalog.InheritAlternateSetOnFork)
	v.SetDefault("catalog.urn_prefix", d.Catalog.URNPrefix)
	v.SetDefault("catalog.seed_file", d.Catalog.SeedFile)

	v.SetDefault("events.backends", d.Events.Backends)
	v.SetDefault("events.redis_channel", d.Events.RedisChannel)

	v.SetDefault("files.registry", d.Files.Registry)
	v.SetDefault("files.stat_workers.size", d.Files.StatWorkers.Size)
	v.SetDefault("files.stat_workers.expiry_duration", d.Files.StatWorkers.ExpiryDuration)
}

// Validate checks cross-section consistency and delegates to each section
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("conf: server.port must be between 1 and 65535")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("conf: database: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("conf: log: %w", err)
	}
	if c.Redis.Enabled {
		if err := c.Redis.Config.Validate(); err != nil {
			return fmt.Errorf("conf: %w", err)
		}
	}
	if c.Kafka.Enabled {
		if err := c.Kafka.Config.Validate(); err != nil {
			return fmt.Errorf("conf: %w", err)
		}
	}
	if c.Server.RateLimit.Enabled && !c.Redis.Enabled {
		return errors.New("conf: server.rate_limit requires redis.enabled")
	}
	if c.Catalog.QuarantineIdentifier == "" {
		return errors.New("conf: catalog.quarantine_identifier is required")
	}
	if c.Catalog.CacheSize <= 0 {
		return errors.New("conf: catalog.cache_size must be > 0")
	}
	if c.Catalog.URNPrefix == "" {
		return errors.New("conf: catalog.urn_prefix is required")
	}

	for _, b := range c.Events.Backends {
		switch b {
		case "redis":
			if !c.Redis.Enabled {
				return errors.New("conf: events backend redis requires redis.enabled")
			}
		case "kafka":
			if !c.Kafka.Enabled {
				return errors.New("conf: events backend kafka requires kafka.enabled")
			}
		default:
			return fmt.Errorf("conf: unknown events backend %q", b)
		}
	}

	switch c.Files.Registry {
	case RegistryDatabase:
	case RegistryMinIO:
		if err := c.MinIO.Validate(); err != nil {
			return fmt.Errorf("conf: %w", err)
		}
		if c.Files.StatWorkers.Size <= 0 {
			return errors.New("conf: files.stat_workers.size must be > 0")
		}
	default:
		return fmt.Errorf("conf: unknown files.registry %q", c.Files.Registry)
	}

	return nil
}
