package biz

import (
	"context"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
)

// RecordFilter narrows identifier lookups. Removed records are excluded
// unless IncludeRemoved is set.
type RecordFilter struct {
	CatalogID        int64 // 0 matches every catalog
	ExcludeCatalogID int64 // 0 excludes nothing
	IncludeRemoved   bool
}

// RecordRepo defines the repository interface for catalog record data operations.
// Lookups return an empty slice when nothing matches; GetByID returns an
// ErrRecordNotFound AppError.
type RecordRepo interface {
	Create(ctx context.Context, record *types.DatasetRecord) error
	Update(ctx context.Context, record *types.DatasetRecord) error
	GetByID(ctx context.Context, id int64) (*types.DatasetRecord, error)

	FindByURN(ctx context.Context, urn string, filter RecordFilter) ([]*types.DatasetRecord, error)
	FindByPreferredIdentifier(ctx context.Context, pid string, filter RecordFilter) ([]*types.DatasetRecord, error)
	FindByOtherIdentifier(ctx context.Context, localIdentifier string, filter RecordFilter) ([]*types.DatasetRecord, error)

	// ListByAlternateSet returns the records referencing the set
	ListByAlternateSet(ctx context.Context, setID int64) ([]*types.DatasetRecord, error)
	// SetAlternateSet points every listed record at setID, or clears the reference when nil
	SetAlternateSet(ctx context.Context, recordIDs []int64, setID *int64) error

	// ReplaceFiles stores membership together with each file's byte size
	ReplaceFiles(ctx context.Context, recordID int64, files []types.FileInfo) error
	ListFiles(ctx context.Context, recordID int64) ([]types.FileInfo, error)
	UpdateAggregates(ctx context.Context, recordID, totalByteSize, fileCount int64) error
}

// AlternateSetRepo stores alternate record sets. Membership lives on the
// records themselves.
type AlternateSetRepo interface {
	Create(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// CatalogLookup resolves data catalogs. Unknown catalogs yield an
// ErrCatalogNotFound AppError. QuarantineCatalog returns nil when none is configured.
type CatalogLookup interface {
	GetCatalog(ctx context.Context, identifier string) (*types.DataCatalog, error)
	GetCatalogByID(ctx context.Context, id int64) (*types.DataCatalog, error)
	QuarantineCatalog(ctx context.Context) (*types.DataCatalog, error)
}

// FileRegistry resolves file and directory identifiers to files with sizes.
// ResolveDirectories expands every directory to the files it contains.
type FileRegistry interface {
	ResolveFiles(ctx context.Context, identifiers []string) ([]types.FileInfo, error)
	ResolveDirectories(ctx context.Context, identifiers []string) ([]types.FileInfo, error)
}

// IdentifierGenerator issues globally unique urn identifiers
type IdentifierGenerator interface {
	NewURN() string
}

// EventPublisher delivers lifecycle events, best effort
type EventPublisher interface {
	Publish(ctx context.Context, event types.Event) error
}

// Transactor runs fn as one atomic unit of work
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work on the given keys across processes
type Locker interface {
	WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// NopLocker runs fn directly. Used when no lock backend is configured.
type NopLocker struct{}

func (NopLocker) WithLocks(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
