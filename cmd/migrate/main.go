package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	crdata "github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/data"
	"github.com/CSCfi/fairdata-metax-sub001/internal/conf"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/database"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
	seedFile   = flag.String("seed", "", "catalog seed file; overrides catalog.seed_file")
)

// migrate creates or updates the schema and upserts the seeded data catalogs
func main() {
	flag.Parse()

	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(config.Log.ForCommand("metax-migrate"))
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// migrations always run here, whatever the server is configured to do
	config.Database.AutoMigrate = true
	db, err := database.New(&config.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.AutoMigrate(crdata.Models()...); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	path := config.Catalog.SeedFile
	if *seedFile != "" {
		path = *seedFile
	}
	if path == "" {
		log.Info("no catalog seed file configured, done")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatal("failed to open catalog seed", zap.String("file", path), zap.Error(err))
	}
	defer f.Close()

	catalogs, err := crdata.LoadCatalogSeed(f)
	if err != nil {
		log.Fatal("invalid catalog seed", zap.String("file", path), zap.Error(err))
	}

	repo := crdata.NewCatalogRepo(db, config.Catalog.QuarantineIdentifier, config.Catalog.CacheSize, config.Catalog.CacheTTL)
	n, err := crdata.SeedCatalogs(context.Background(), repo, catalogs)
	if err != nil {
		log.Fatal("failed to seed data catalogs", zap.Int("written", n), zap.Error(err))
	}

	log.Info("data catalogs seeded", zap.String("file", path), zap.Int("catalogs", n))
}
