package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	crdata "github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/data"
	"github.com/CSCfi/fairdata-metax-sub001/internal/conf"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/database"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/kafka"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/minio"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/redis"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/workerpool"
)

// Data owns the connections to every backing service. Redis, MinIO and
// Kafka are nil unless enabled in the configuration; StatPool exists only
// alongside MinIO.
type Data struct {
	DB            *database.DB
	RedisClient   *redis.Client
	MinIOClient   *minio.Client
	StatPool      *workerpool.Pool
	KafkaProducer *kafka.Producer
	Logger        *logger.Logger
}

func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	d := &Data{Logger: log}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if d.KafkaProducer != nil {
			if err := d.KafkaProducer.Close(); err != nil {
				log.Warn("failed to close kafka producer", zap.Error(err))
			}
		}
		if d.StatPool != nil {
			d.StatPool.Release()
		}
		if d.MinIOClient != nil {
			_ = d.MinIOClient.Close()
		}
		if d.RedisClient != nil {
			_ = d.RedisClient.Close()
		}
		if d.DB != nil {
			_ = d.DB.Close()
		}
	}

	db, err := database.New(&config.Database, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}
	d.DB = db

	if err := db.AutoMigrate(crdata.Models()...); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	if config.Redis.Enabled {
		d.RedisClient, err = redis.New(&config.Redis.Config, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	if config.Files.Registry == conf.RegistryMinIO {
		d.MinIOClient, err = minio.NewClient(&config.MinIO, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init minio: %w", err)
		}
		d.StatPool, err = workerpool.New(&config.Files.StatWorkers, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init stat worker pool: %w", err)
		}
	}

	if config.Kafka.Enabled {
		d.KafkaProducer, err = kafka.NewProducer(&config.Kafka.Config, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init kafka producer: %w", err)
		}
	}

	log.Info("data layer initialized",
		zap.String("database", config.Database.Driver),
		zap.Bool("redis", d.RedisClient != nil),
		zap.Bool("minio", d.MinIOClient != nil),
		zap.Bool("kafka", d.KafkaProducer != nil),
	)
	return d, cleanup, nil
}

// HealthCheck pings the database and every enabled connection
func (d *Data) HealthCheck(ctx context.Context) error {
	if err := d.DB.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if d.RedisClient != nil {
		if err := d.RedisClient.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if d.MinIOClient != nil {
		if err := d.MinIOClient.Ping(ctx); err != nil {
			return fmt.Errorf("minio: %w", err)
		}
	}
	return nil
}
