package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
)

// seed stores a record directly, bypassing every rule
func (e *engine) seed(t *testing.T, rec types.DatasetRecord) *types.DatasetRecord {
	t.Helper()
	r := rec
	if r.ResearchDataset.PreferredIdentifier == "" {
		r.ResearchDataset.PreferredIdentifier = r.PreferredIdentifier
	}
	require.NoError(t, e.store.Create(context.Background(), &r))
	return &r
}

func TestResolver_TierOrder(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	byURN := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:a", PreferredIdentifier: "doi:a", DataCatalogID: e.versioned.ID})
	e.seed(t, types.DatasetRecord{URNIdentifier: "urn:b", PreferredIdentifier: "urn:a", DataCatalogID: e.other.ID})
	byOther := e.seed(t, types.DatasetRecord{
		URNIdentifier:       "urn:c",
		PreferredIdentifier: "doi:c",
		DataCatalogID:       e.other.ID,
		ResearchDataset:     rd(t, `{"other_identifier":[{"local_identifier":"local-1"}]}`),
	})

	got, err := e.resolver.FindByIdentifier(ctx, "urn:a", Scope{Global: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, byURN.ID, got[0].ID, "urn tier must win over preferred identifier tier")

	got, err = e.resolver.FindByIdentifier(ctx, "local-1", Scope{Global: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, byOther.ID, got[0].ID)

	got, err = e.resolver.FindByIdentifier(ctx, "nothing", Scope{Global: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolver_PreferredIdentifierScope(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.seed(t, types.DatasetRecord{URNIdentifier: "urn:1", PreferredIdentifier: "doi:x", DataCatalogID: e.versioned.ID})
	e.seed(t, types.DatasetRecord{URNIdentifier: "urn:2", PreferredIdentifier: "doi:x", DataCatalogID: e.other.ID})

	got, err := e.resolver.FindByIdentifier(ctx, "doi:x", Scope{CatalogID: e.other.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "urn:2", got[0].URNIdentifier)

	got, err = e.resolver.FindByIdentifier(ctx, "doi:x", Scope{CatalogID: e.other.ID, Global: true})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = e.resolver.FindByIdentifier(ctx, "doi:x", Scope{})
	require.NoError(t, err)
	assert.Len(t, got, 2, "no catalog means a global search")
}

func TestResolver_IncludeRemoved(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	e.seed(t, types.DatasetRecord{URNIdentifier: "urn:gone", PreferredIdentifier: "doi:gone", DataCatalogID: e.versioned.ID, Removed: true})

	got, err := e.resolver.FindByIdentifier(ctx, "urn:gone", Scope{Global: true})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.resolver.FindByIdentifier(ctx, "urn:gone", Scope{Global: true, IncludeRemoved: true})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestResolver_PreferOldestCatalog(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	newer := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:n", PreferredIdentifier: "doi:x", DataCatalogID: e.other.ID})
	older := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:o", PreferredIdentifier: "doi:x", DataCatalogID: e.versioned.ID})

	best, err := e.resolver.PreferOldestCatalog(ctx, []*types.DatasetRecord{newer, older})
	require.NoError(t, err)
	assert.Equal(t, older.ID, best.ID)

	best, err = e.resolver.PreferOldestCatalog(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, best)
}

func TestResolver_ResolveOne(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	old := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:v1", PreferredIdentifier: "doi:chain", DataCatalogID: e.versioned.ID})
	cur := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:v2", PreferredIdentifier: "doi:chain", DataCatalogID: e.versioned.ID, PreviousVersionID: &old.ID})
	old.NextVersionID = &cur.ID
	require.NoError(t, e.store.Update(ctx, old))

	got, err := e.resolver.ResolveOne(ctx, "doi:chain", Scope{Global: true})
	require.NoError(t, err)
	assert.Equal(t, cur.ID, got.ID, "a shared identifier within one chain resolves to its head")

	got, err = e.resolver.ResolveOne(ctx, "urn:v1", Scope{Global: true})
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID)

	e.seed(t, types.DatasetRecord{URNIdentifier: "urn:p1", PreferredIdentifier: "doi:two", DataCatalogID: e.versioned.ID})
	e.seed(t, types.DatasetRecord{URNIdentifier: "urn:p2", PreferredIdentifier: "doi:two", DataCatalogID: e.other.ID})
	_, err = e.resolver.ResolveOne(ctx, "doi:two", Scope{Global: true})
	requireCode(t, err, apperrors.ErrAmbiguousIdentifier)

	_, err = e.resolver.ResolveOne(ctx, "doi:missing", Scope{Global: true})
	requireCode(t, err, apperrors.ErrRecordNotFound)
}
