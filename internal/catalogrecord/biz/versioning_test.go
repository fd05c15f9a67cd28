package biz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
)

func TestVersionForkEngine_Decide(t *testing.T) {
	e := newEngine(t)
	current := &types.DatasetRecord{
		PreferredIdentifier: "doi:x",
		ResearchDataset:     rd(t, `{"preferred_identifier":"doi:x","title":{"en":"A"},"files":[{"identifier":"f1"}]}`),
	}

	tests := []struct {
		name     string
		next     string
		target   *types.DataCatalog
		preserve bool
		want     ForkDecision
	}{
		{
			name:   "identical document",
			next:   `{"preferred_identifier":"doi:x","title":{"en":"A"},"files":[{"identifier":"f1"}]}`,
			target: e.versioned,
		},
		{
			name:   "title change",
			next:   `{"preferred_identifier":"doi:x","title":{"en":"B"},"files":[{"identifier":"f1"}]}`,
			target: e.versioned,
			want:   ForkDecision{Required: true, MetadataChanged: true},
		},
		{
			name:   "file change",
			next:   `{"preferred_identifier":"doi:x","title":{"en":"A"},"files":[{"identifier":"f2"}]}`,
			target: e.versioned,
			want:   ForkDecision{Required: true, FilesChanged: true},
		},
		{
			name:   "identifier change",
			next:   `{"preferred_identifier":"doi:y","title":{"en":"A"},"files":[{"identifier":"f1"}]}`,
			target: e.versioned,
			want:   ForkDecision{Required: true, MetadataChanged: true, PIDChanged: true},
		},
		{
			name:   "missing identifier keeps the current one",
			next:   `{"title":{"en":"A"},"files":[{"identifier":"f1"}]}`,
			target: e.versioned,
		},
		{
			name:   "catalog without versioning",
			next:   `{"preferred_identifier":"doi:x","title":{"en":"B"},"files":[{"identifier":"f1"}]}`,
			target: e.flat,
			want:   ForkDecision{MetadataChanged: true},
		},
		{
			name:     "preserve version",
			next:     `{"preferred_identifier":"doi:x","title":{"en":"A"},"files":[{"identifier":"f2"}]}`,
			target:   e.versioned,
			preserve: true,
			want:     ForkDecision{FilesChanged: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := rd(t, tt.next)
			assert.Equal(t, tt.want, e.forks.Decide(current, &next, tt.target, tt.preserve))
		})
	}

	assert.Equal(t, ForkDecision{}, e.forks.Decide(current, nil, e.versioned, false),
		"administrative-only updates never fork")
}

func TestVersionForkEngine_ForkRejectsNonCurrent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	next := int64(42)
	superseded := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:old", PreferredIdentifier: "doi:x", DataCatalogID: e.versioned.ID, NextVersionID: &next})
	removed := e.seed(t, types.DatasetRecord{URNIdentifier: "urn:gone", PreferredIdentifier: "doi:y", DataCatalogID: e.versioned.ID, Removed: true})

	decision := ForkDecision{Required: true, MetadataChanged: true}
	_, err := e.forks.Fork(ctx, testActor, superseded, superseded.ResearchDataset, e.versioned, decision)
	requireCode(t, err, apperrors.ErrImmutableVersionEdit)

	_, err = e.forks.Fork(ctx, testActor, removed, removed.ResearchDataset, e.versioned, decision)
	requireCode(t, err, apperrors.ErrInvalidTransition)
}

func TestVersionForkEngine_CarriesMembershipWhenFilesUnchanged(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.store.addFile("f1", 10)
	e.store.addFile("f2", 32)

	rec := e.create(t, e.versioned, `{"title":{"en":"A"},"files":[{"identifier":"f1"},{"identifier":"f2"}]}`)
	require.Equal(t, int64(42), rec.TotalByteSize)

	res, err := e.uc.Update(ctx, testActor, rec.URNIdentifier, &types.UpdateRequest{
		ResearchDataset: ptr(rd(t, `{"title":{"en":"B"},"files":[{"identifier":"f1"},{"identifier":"f2"}]}`)),
	})
	require.NoError(t, err)
	require.True(t, res.Forked)

	assert.Equal(t, int64(42), res.Record.TotalByteSize)
	assert.Equal(t, int64(2), res.Record.FileCount)

	assert.Equal(t, []string{"f1", "f2"}, e.store.memberIDs(res.Record.ID))

	prev := e.store.record(rec.ID)
	assert.Equal(t, int64(42), prev.TotalByteSize, "predecessor aggregates are frozen")
}

func TestVersionForkEngine_MetadataForkAfterFileRemovedFromStorage(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.store.addFile("f1", 10)
	e.store.addFile("f2", 32)

	rec := e.create(t, e.versioned, `{"title":{"en":"A"},"files":[{"identifier":"f1"},{"identifier":"f2"}]}`)
	require.Equal(t, int64(42), rec.TotalByteSize)

	e.store.removeFile("f2")

	res, err := e.uc.Update(ctx, testActor, rec.URNIdentifier, &types.UpdateRequest{
		ResearchDataset: ptr(rd(t, `{"title":{"en":"B"},"files":[{"identifier":"f1"},{"identifier":"f2"}]}`)),
	})
	require.NoError(t, err)
	require.True(t, res.Forked)

	assert.Equal(t, rec.PreferredIdentifier, res.Record.PreferredIdentifier)
	assert.Equal(t, int64(42), res.Record.TotalByteSize)
	assert.Equal(t, int64(2), res.Record.FileCount)
	assert.Equal(t, []string{"f1", "f2"}, e.store.memberIDs(res.Record.ID))

	stored := e.store.record(res.Record.ID)
	assert.Equal(t, int64(42), stored.TotalByteSize)
}

func TestVersionForkEngine_AlternateSetOnFork(t *testing.T) {
	t.Run("unchanged identifier leaves the new version out", func(t *testing.T) {
		e := newEngine(t)
		ctx := context.Background()

		a := e.create(t, e.versioned, `{"preferred_identifier":"doi:x","title":{"en":"A"}}`)
		b := e.create(t, e.other, `{"preferred_identifier":"doi:x","title":{"en":"A"}}`)
		require.NotNil(t, e.store.record(a.ID).AlternateRecordSetID)

		res, err := e.uc.Update(ctx, testActor, a.URNIdentifier, &types.UpdateRequest{
			ResearchDataset: ptr(rd(t, `{"preferred_identifier":"doi:x","title":{"en":"B"}}`)),
		})
		require.NoError(t, err)
		require.True(t, res.Forked)

		assert.Nil(t, e.store.record(res.Record.ID).AlternateRecordSetID)
		setID := e.store.record(a.ID).AlternateRecordSetID
		require.NotNil(t, setID)
		assert.Equal(t, []int64{a.ID, b.ID}, e.store.setMembers(*setID))
	})

	t.Run("unchanged identifier joins when inheriting", func(t *testing.T) {
		e := newEngine(t, withInheritOnFork())
		ctx := context.Background()

		a := e.create(t, e.versioned, `{"preferred_identifier":"doi:x","title":{"en":"A"}}`)
		b := e.create(t, e.other, `{"preferred_identifier":"doi:x","title":{"en":"A"}}`)

		res, err := e.uc.Update(ctx, testActor, a.URNIdentifier, &types.UpdateRequest{
			ResearchDataset: ptr(rd(t, `{"preferred_identifier":"doi:x","title":{"en":"B"}}`)),
		})
		require.NoError(t, err)

		setID := e.store.record(res.Record.ID).AlternateRecordSetID
		require.NotNil(t, setID)
		assert.Equal(t, []int64{a.ID, b.ID, res.Record.ID}, e.store.setMembers(*setID))
	})

	t.Run("changed identifier moves membership", func(t *testing.T) {
		e := newEngine(t)
		ctx := context.Background()

		a := e.create(t, e.versioned, `{"preferred_identifier":"doi:x","title":{"en":"A"}}`)
		b := e.create(t, e.other, `{"preferred_identifier":"doi:x","title":{"en":"A"}}`)
		c := e.create(t, e.third, `{"preferred_identifier":"doi:y","title":{"en":"A"}}`)

		res, err := e.uc.Update(ctx, testActor, a.URNIdentifier, &types.UpdateRequest{
			ResearchDataset: ptr(rd(t, `{"preferred_identifier":"doi:y","title":{"en":"A"}}`)),
		})
		require.NoError(t, err)
		require.True(t, res.Forked)

		// the old pair dissolves, the new version pairs with c
		assert.Nil(t, e.store.record(a.ID).AlternateRecordSetID)
		assert.Nil(t, e.store.record(b.ID).AlternateRecordSetID)
		setID := e.store.record(res.Record.ID).AlternateRecordSetID
		require.NotNil(t, setID)
		assert.Equal(t, []int64{c.ID, res.Record.ID}, e.store.setMembers(*setID))
	})
}

func ptr[T any](v T) *T { return &v }
