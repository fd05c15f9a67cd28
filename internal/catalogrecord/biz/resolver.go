package biz

import (
	"context"
	"fmt"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
)

// Scope bounds an identifier lookup
type Scope struct {
	// CatalogID limits preferred identifier matches to one catalog; 0 means global
	CatalogID int64
	// Global forces a global preferred identifier search, as when the
	// target is the quarantine catalog
	Global         bool
	IncludeRemoved bool
}

// Resolver finds records by any of their identifiers
type Resolver struct {
	records  RecordRepo
	catalogs CatalogLookup
}

func NewResolver(records RecordRepo, catalogs CatalogLookup) *Resolver {
	return &Resolver{records: records, catalogs: catalogs}
}

// FindByIdentifier searches, in order, urn identifiers, preferred identifiers
// and other-identifier local identifiers, and returns the first non-empty tier.
// An empty result is not an error.
func (r *Resolver) FindByIdentifier(ctx context.Context, value string, scope Scope) ([]*types.DatasetRecord, error) {
	if value == "" {
		return nil, nil
	}

	filter := RecordFilter{IncludeRemoved: scope.IncludeRemoved}

	matches, err := r.records.FindByURN(ctx, value, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to look up urn identifier: %w", err)
	}
	if len(matches) > 0 {
		return matches, nil
	}

	pidFilter := filter
	if !scope.Global {
		pidFilter.CatalogID = scope.CatalogID
	}
	matches, err = r.records.FindByPreferredIdentifier(ctx, value, pidFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to look up preferred identifier: %w", err)
	}
	if len(matches) > 0 {
		return matches, nil
	}

	matches, err = r.records.FindByOtherIdentifier(ctx, value, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to look up other identifier: %w", err)
	}
	return matches, nil
}

// PreferOldestCatalog picks the match living in the earliest created catalog.
// Within a catalog the chain head wins, then the lowest id.
func (r *Resolver) PreferOldestCatalog(ctx context.Context, matches []*types.DatasetRecord) (*types.DatasetRecord, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	var (
		best    *types.DatasetRecord
		bestCat *types.DataCatalog
	)
	for _, m := range matches {
		cat, err := r.catalogs.GetCatalogByID(ctx, m.DataCatalogID)
		if err != nil {
			return nil, err
		}
		if best == nil || preferOver(m, cat, best, bestCat) {
			best, bestCat = m, cat
		}
	}
	return best, nil
}

func preferOver(a *types.DatasetRecord, aCat *types.DataCatalog, b *types.DatasetRecord, bCat *types.DataCatalog) bool {
	if !aCat.DateCreated.Equal(bCat.DateCreated) {
		return aCat.DateCreated.Before(bCat.DateCreated)
	}
	if aCat.ID != bCat.ID {
		return aCat.ID < bCat.ID
	}
	aHead, bHead := a.NextVersionID == nil, b.NextVersionID == nil
	if aHead != bHead {
		return aHead
	}
	return a.ID < b.ID
}

// ResolveOne resolves value to exactly one record for a write. Several
// versions of one chain sharing a preferred identifier resolve to the head.
func (r *Resolver) ResolveOne(ctx context.Context, value string, scope Scope) (*types.DatasetRecord, error) {
	matches, err := r.FindByIdentifier(ctx, value, scope)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, recordNotFound(value)
	case 1:
		return matches[0], nil
	}

	heads := make([]*types.DatasetRecord, 0, len(matches))
	for _, m := range matches {
		if m.NextVersionID == nil {
			heads = append(heads, m)
		}
	}
	if len(heads) == 1 {
		return heads[0], nil
	}
	return nil, ambiguousIdentifier(value, len(matches))
}
