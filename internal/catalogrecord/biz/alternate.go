package biz

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

// AlternateSetManager keeps alternate record sets in step with preferred
// identifiers shared across non-quarantine catalogs
type AlternateSetManager struct {
	records  RecordRepo
	sets     AlternateSetRepo
	catalogs CatalogLookup
	logger   *logger.Logger
}

func NewAlternateSetManager(records RecordRepo, sets AlternateSetRepo, catalogs CatalogLookup, log *logger.Logger) *AlternateSetManager {
	return &AlternateSetManager{records: records, sets: sets, catalogs: catalogs, logger: log}
}

// OnIdentifierEstablished links record with every live record sharing its
// preferred identifier in other non-quarantine catalogs. Existing sets among
// the matches are merged into the oldest one.
func (m *AlternateSetManager) OnIdentifierEstablished(ctx context.Context, record *types.DatasetRecord) error {
	if record.PreferredIdentifier == "" || record.Removed {
		return nil
	}

	cat, err := m.catalogs.GetCatalogByID(ctx, record.DataCatalogID)
	if err != nil {
		return err
	}
	if cat.IsQuarantine {
		return nil
	}
	quarantine, err := m.catalogs.QuarantineCatalog(ctx)
	if err != nil {
		return err
	}

	found, err := m.records.FindByPreferredIdentifier(ctx, record.PreferredIdentifier,
		RecordFilter{ExcludeCatalogID: record.DataCatalogID})
	if err != nil {
		return wrapSetErr(err)
	}

	matches := make([]*types.DatasetRecord, 0, len(found))
	for _, f := range found {
		if f.ID == record.ID || (quarantine != nil && f.DataCatalogID == quarantine.ID) {
			continue
		}
		matches = append(matches, f)
	}
	if len(matches) == 0 {
		return nil
	}

	setIDs := distinctSetIDs(matches)
	if record.AlternateRecordSetID != nil {
		setIDs = appendDistinct(setIDs, *record.AlternateRecordSetID)
		sort.Slice(setIDs, func(i, j int) bool { return setIDs[i] < setIDs[j] })
	}

	var (
		target int64
		others []int64
	)
	if len(setIDs) == 0 {
		target, err = m.sets.Create(ctx)
		if err != nil {
			return wrapSetErr(err)
		}
		alternateSetChangesTotal.WithLabelValues("created").Inc()
	} else {
		target, others = setIDs[0], setIDs[1:]
	}

	// Fold every other set into the target
	for _, sid := range others {
		members, err := m.records.ListByAlternateSet(ctx, sid)
		if err != nil {
			return wrapSetErr(err)
		}
		if err := m.records.SetAlternateSet(ctx, recordIDs(members), &target); err != nil {
			return wrapSetErr(err)
		}
		if err := m.sets.Delete(ctx, sid); err != nil {
			return wrapSetErr(err)
		}
		alternateSetChangesTotal.WithLabelValues("merged").Inc()
	}

	attach := []int64{record.ID}
	for _, mm := range matches {
		if mm.AlternateRecordSetID == nil {
			attach = append(attach, mm.ID)
		}
	}
	if err := m.records.SetAlternateSet(ctx, attach, &target); err != nil {
		return wrapSetErr(err)
	}
	alternateSetChangesTotal.WithLabelValues("joined").Add(float64(len(attach)))

	record.AlternateRecordSetID = &target

	m.logger.WithContext(ctx).Debug("alternate record set updated",
		zap.Int64("set_id", target),
		zap.String("preferred_identifier", record.PreferredIdentifier),
		zap.Int("attached", len(attach)),
		zap.Int("merged", len(others)),
	)
	return nil
}

// OnRecordRemovedOrForked detaches record from its set. A set left with a
// single member is deleted and that member's reference cleared.
func (m *AlternateSetManager) OnRecordRemovedOrForked(ctx context.Context, record *types.DatasetRecord) error {
	if record.AlternateRecordSetID == nil {
		return nil
	}
	setID := *record.AlternateRecordSetID

	if err := m.records.SetAlternateSet(ctx, []int64{record.ID}, nil); err != nil {
		return wrapSetErr(err)
	}
	record.AlternateRecordSetID = nil
	alternateSetChangesTotal.WithLabelValues("left").Inc()

	remaining, err := m.records.ListByAlternateSet(ctx, setID)
	if err != nil {
		return wrapSetErr(err)
	}
	if len(remaining) > 1 {
		return nil
	}

	if err := m.records.SetAlternateSet(ctx, recordIDs(remaining), nil); err != nil {
		return wrapSetErr(err)
	}
	if err := m.sets.Delete(ctx, setID); err != nil {
		return wrapSetErr(err)
	}
	alternateSetChangesTotal.WithLabelValues("deleted").Inc()

	m.logger.WithContext(ctx).Debug("alternate record set dissolved", zap.Int64("set_id", setID))
	return nil
}

// Join puts record into an existing set
func (m *AlternateSetManager) Join(ctx context.Context, record *types.DatasetRecord, setID int64) error {
	if err := m.records.SetAlternateSet(ctx, []int64{record.ID}, &setID); err != nil {
		return wrapSetErr(err)
	}
	record.AlternateRecordSetID = &setID
	alternateSetChangesTotal.WithLabelValues("joined").Inc()
	return nil
}

// Siblings returns the urn identifiers of the other live members of record's set
func (m *AlternateSetManager) Siblings(ctx context.Context, record *types.DatasetRecord) ([]string, error) {
	if record.AlternateRecordSetID == nil {
		return []string{}, nil
	}
	members, err := m.records.ListByAlternateSet(ctx, *record.AlternateRecordSetID)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(members))
	for _, mm := range members {
		if mm.ID == record.ID || mm.Removed {
			continue
		}
		out = append(out, mm.URNIdentifier)
	}
	sort.Strings(out)
	return out, nil
}

func distinctSetIDs(records []*types.DatasetRecord) []int64 {
	var ids []int64
	for _, r := range records {
		if r.AlternateRecordSetID != nil {
			ids = appendDistinct(ids, *r.AlternateRecordSetID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func appendDistinct(ids []int64, id int64) []int64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

func recordIDs(records []*types.DatasetRecord) []int64 {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func wrapSetErr(err error) error {
	return apperrors.Wrap(err, apperrors.ErrAlternateSetFailed)
}
