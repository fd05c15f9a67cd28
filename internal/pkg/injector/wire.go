//go:build wireinject
// +build wireinject

package injector

import (
	"github.com/google/wire"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/biz"
	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/service"
	"github.com/CSCfi/fairdata-metax-sub001/internal/conf"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/CSCfi/fairdata-metax-sub001/internal/server"
)

// ProviderSet is the Wire provider set for all dependencies
var ProviderSet = wire.NewSet(
	// Data layer
	dataProviderSet,

	// Repositories
	repositoryProviderSet,

	// Use cases
	useCaseProviderSet,

	// Servers
	serverProviderSet,
)

// Data layer providers
var dataProviderSet = wire.NewSet(
	provideData,
	provideDB,
	provideTransactor,
	provideLocker,
	provideHealthChecker,
)

// Repository providers
var repositoryProviderSet = wire.NewSet(
	provideRecordRepo,
	provideAlternateSetRepo,
	provideCatalogLookup,
	provideFileRegistry,
	provideIdentifierGenerator,
	provideEventPublisher,
)

// Use case providers
var useCaseProviderSet = wire.NewSet(
	biz.NewResolver,
	biz.NewUniquenessValidator,
	biz.NewAlternateSetManager,
	biz.NewAggregator,
	provideVersionForkEngine,
	biz.NewCatalogRecordUseCase,
)

// Server providers
var serverProviderSet = wire.NewSet(
	service.NewDatasetService,
	provideRateLimiter,
	server.NewHTTPServer,
)

// InitializeApp initializes the application with Wire
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, func(), error) {
	wire.Build(ProviderSet, newApp)
	return nil, nil, nil
}
