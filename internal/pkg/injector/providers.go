package injector

import (
	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/biz"
	crdata "github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/data"
	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/events"
	"github.com/CSCfi/fairdata-metax-sub001/internal/conf"
	"github.com/CSCfi/fairdata-metax-sub001/internal/data"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/database"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/CSCfi/fairdata-metax-sub001/internal/server"
	"github.com/CSCfi/fairdata-metax-sub001/internal/server/middleware"
)

// Data layer helpers

func provideData(config *conf.Config, log *logger.Logger) (*data.Data, func(), error) {
	return data.NewData(config, log)
}

func provideDB(d *data.Data) *database.DB {
	return d.DB
}

func provideHealthChecker(d *data.Data) server.HealthChecker {
	return d
}

func provideTransactor(db *database.DB) biz.Transactor {
	return database.NewTransactionManager(db)
}

// provideLocker serializes writers through redis when it is enabled
func provideLocker(d *data.Data) biz.Locker {
	if d.RedisClient != nil {
		return d.RedisClient
	}
	return biz.NopLocker{}
}

// Repository providers

func provideRecordRepo(db *database.DB) biz.RecordRepo {
	return crdata.NewRecordRepo(db)
}

func provideAlternateSetRepo(db *database.DB) biz.AlternateSetRepo {
	return crdata.NewAlternateSetRepo(db)
}

func provideCatalogLookup(db *database.DB, config *conf.Config) biz.CatalogLookup {
	return crdata.NewCatalogRepo(db, config.Catalog.QuarantineIdentifier, config.Catalog.CacheSize, config.Catalog.CacheTTL)
}

func provideFileRegistry(d *data.Data, config *conf.Config) biz.FileRegistry {
	if config.Files.Registry == conf.RegistryMinIO && d.MinIOClient != nil {
		return crdata.NewObjectStoreFileRegistry(d.MinIOClient, config.MinIO.FilePrefix, d.StatPool)
	}
	return crdata.NewDBFileRegistry(d.DB)
}

func provideIdentifierGenerator(config *conf.Config) biz.IdentifierGenerator {
	return crdata.NewURNGenerator(config.Catalog.URNPrefix)
}

// provideEventPublisher fans out to every configured backend
func provideEventPublisher(d *data.Data, config *conf.Config, log *logger.Logger) biz.EventPublisher {
	var publishers events.MultiPublisher
	for _, backend := range config.Events.Backends {
		switch backend {
		case "redis":
			if d.RedisClient != nil {
				publishers = append(publishers, events.NewRedisPublisher(d.RedisClient, config.Events.RedisChannel, log))
			}
		case "kafka":
			if d.KafkaProducer != nil {
				publishers = append(publishers, events.NewKafkaPublisher(d.KafkaProducer))
			}
		}
	}

	switch len(publishers) {
	case 0:
		return events.NopPublisher{}
	case 1:
		return publishers[0]
	default:
		return publishers
	}
}

// Use case providers

func provideVersionForkEngine(
	records biz.RecordRepo,
	ids biz.IdentifierGenerator,
	validator *biz.UniquenessValidator,
	sets *biz.AlternateSetManager,
	aggregator *biz.Aggregator,
	config *conf.Config,
	log *logger.Logger,
) *biz.VersionForkEngine {
	return biz.NewVersionForkEngine(records, ids, validator, sets, aggregator, config.Catalog.InheritAlternateSetOnFork, log)
}

// provideRateLimiter returns nil when write limiting is disabled
func provideRateLimiter(d *data.Data, config *conf.Config, log *logger.Logger) *middleware.RateLimiter {
	if !config.Server.RateLimit.Enabled || d.RedisClient == nil {
		return nil
	}
	return middleware.NewRateLimiter(d.RedisClient, config.Server.RateLimit, log)
}
