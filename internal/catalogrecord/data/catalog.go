package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm/clause"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/biz"
	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/database"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
)

var (
	catalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "metax",
		Subsystem: "data_catalog",
		Name:      "cache_hits_total",
		Help:      "Data catalog lookups served from the LRU cache",
	})
	catalogCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "metax",
		Subsystem: "data_catalog",
		Name:      "cache_misses_total",
		Help:      "Data catalog lookups that went to the database",
	})
)

// CatalogRepo reads data catalogs through a small expiring LRU cache.
// Catalogs change rarely and are read on every write.
type CatalogRepo struct {
	db                   *database.DB
	cache                *expirable.LRU[string, *types.DataCatalog]
	quarantineIdentifier string
}

// NewCatalogRepo creates the catalog lookup. quarantineIdentifier names the
// quarantine catalog in addition to any catalog flagged is_quarantine.
func NewCatalogRepo(db *database.DB, quarantineIdentifier string, cacheSize int, ttl time.Duration) *CatalogRepo {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	return &CatalogRepo{
		db:                   db,
		cache:                expirable.NewLRU[string, *types.DataCatalog](cacheSize, nil, ttl),
		quarantineIdentifier: quarantineIdentifier,
	}
}

var _ biz.CatalogLookup = (*CatalogRepo)(nil)

func (r *CatalogRepo) GetCatalog(ctx context.Context, identifier string) (*types.DataCatalog, error) {
	if identifier == "" {
		return nil, apperrors.New(apperrors.ErrCatalogNotFound, "data catalog is required")
	}
	return r.load(ctx, "identifier:"+identifier, "identifier = ?", identifier)
}

func (r *CatalogRepo) GetCatalogByID(ctx context.Context, id int64) (*types.DataCatalog, error) {
	return r.load(ctx, "id:"+strconv.FormatInt(id, 10), "id = ?", id)
}

// QuarantineCatalog returns nil when no quarantine catalog exists
func (r *CatalogRepo) QuarantineCatalog(ctx context.Context) (*types.DataCatalog, error) {
	if r.quarantineIdentifier != "" {
		cat, err := r.GetCatalog(ctx, r.quarantineIdentifier)
		if err == nil {
			return cat, nil
		}
		if !apperrors.Is(err, apperrors.ErrCatalogNotFound) {
			return nil, err
		}
	}

	var po DataCatalogPO
	res := r.db.Conn(ctx).Where("is_quarantine = ?", true).Order("id").Limit(1).Find(&po)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to find quarantine catalog: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.toDomain(&po), nil
}

// Save inserts or updates a catalog by identifier and drops cached copies
func (r *CatalogRepo) Save(ctx context.Context, cat *types.DataCatalog) error {
	po := &DataCatalogPO{
		Identifier:        cat.Identifier,
		Title:             cat.Title,
		DatasetVersioning: cat.SupportsVersioning,
		IsQuarantine:      cat.IsQuarantine,
		Harvested:         cat.IsHarvested,
		DateCreated:       cat.DateCreated,
	}
	if po.DateCreated.IsZero() {
		po.DateCreated = time.Now().UTC()
	}

	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "dataset_versioning", "is_quarantine", "harvested"}),
	}).Create(po).Error
	if err != nil {
		return fmt.Errorf("failed to save data catalog %s: %w", cat.Identifier, err)
	}

	r.cache.Purge()
	return nil
}

func (r *CatalogRepo) load(ctx context.Context, key string, query interface{}, args ...interface{}) (*types.DataCatalog, error) {
	if cat, ok := r.cache.Get(key); ok {
		catalogCacheHitsTotal.Inc()
		cp := *cat
		return &cp, nil
	}
	catalogCacheMissesTotal.Inc()

	var po DataCatalogPO
	if err := r.db.Conn(ctx).Where(query, args...).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, apperrors.Newf(apperrors.ErrCatalogNotFound, "data catalog %v not found", args...)
		}
		return nil, fmt.Errorf("failed to get data catalog: %w", err)
	}

	cat := r.toDomain(&po)
	r.cache.Add("identifier:"+cat.Identifier, cat)
	r.cache.Add("id:"+strconv.FormatInt(cat.ID, 10), cat)

	cp := *cat
	return &cp, nil
}

func (r *CatalogRepo) toDomain(po *DataCatalogPO) *types.DataCatalog {
	return &types.DataCatalog{
		ID:                 po.ID,
		Identifier:         po.Identifier,
		Title:              po.Title,
		SupportsVersioning: po.DatasetVersioning,
		IsQuarantine:       po.IsQuarantine || (r.quarantineIdentifier != "" && po.Identifier == r.quarantineIdentifier),
		IsHarvested:        po.Harvested,
		DateCreated:        po.DateCreated,
	}
}
