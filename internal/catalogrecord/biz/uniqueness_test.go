package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
)

func TestUniquenessValidator_Validate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	inVersioned := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:v", PreferredIdentifier: "doi:v", DataCatalogID: e.versioned.ID})
	e.seed(t, types.DatasetRecord{URNIdentifier: "urn:q", PreferredIdentifier: "doi:q", DataCatalogID: e.quarantine.ID})
	e.seed(t, types.DatasetRecord{URNIdentifier: "urn:removed", PreferredIdentifier: "doi:removed", DataCatalogID: e.versioned.ID, Removed: true})

	tests := []struct {
		name      string
		candidate string
		target    *types.DataCatalog
		current   *types.DatasetRecord
		reason    string
	}{
		{name: "empty candidate", candidate: "", target: e.versioned},
		{name: "fresh identifier", candidate: "doi:new", target: e.versioned},
		{name: "same catalog", candidate: "doi:v", target: e.versioned, reason: ConflictSameCatalog},
		{name: "own identifier on update", candidate: "doi:v", target: e.versioned, current: inVersioned},
		{name: "other non-quarantine catalog", candidate: "doi:v", target: e.other},
		{name: "already in quarantine", candidate: "doi:q", target: e.other, reason: ConflictCrossCatalog},
		{name: "reuse inside quarantine", candidate: "doi:q", target: e.quarantine},
		{name: "foreign identifier into quarantine", candidate: "doi:v", target: e.quarantine, reason: ConflictQuarantine},
		{name: "urn of another record", candidate: "urn:v", target: e.other, reason: ConflictURNCollision},
		{name: "urn of a removed record", candidate: "urn:removed", target: e.other, reason: ConflictURNCollision},
		{name: "removed record frees the identifier", candidate: "doi:removed", target: e.versioned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.validator.Validate(ctx, tt.candidate, tt.target, OperationCreate, tt.current)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			appErr := requireCode(t, err, apperrors.ErrIdentifierConflict)
			assert.Equal(t, tt.reason, appErr.Reason)
			assert.Equal(t, FieldPreferredIdentifier, appErr.Field)
		})
	}
}

func TestUniquenessValidator_IgnoresOwnChain(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	v1 := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:v1", PreferredIdentifier: "urn:v1", DataCatalogID: e.versioned.ID})
	v2 := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:v2", PreferredIdentifier: "urn:v1", DataCatalogID: e.versioned.ID, PreviousVersionID: &v1.ID})
	v1.NextVersionID = &v2.ID
	require.NoError(t, e.store.Update(ctx, v1))

	// the head carries its predecessor's urn as preferred identifier
	require.NoError(t, e.validator.Validate(ctx, "urn:v1", e.other, OperationUpdate, v2))

	err := e.validator.Validate(ctx, "urn:v1", e.other, OperationCreate, nil)
	appErr := requireCode(t, err, apperrors.ErrIdentifierConflict)
	assert.Equal(t, ConflictURNCollision, appErr.Reason)
}
