package data

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/biz"
	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/database"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
)

// RecordRepo stores catalog records in postgres (sqlite in tests)
type RecordRepo struct {
	db *database.DB
}

// NewRecordRepo creates the catalog record repository
func NewRecordRepo(db *database.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

var _ biz.RecordRepo = (*RecordRepo)(nil)

// Create inserts the record and indexes its other identifiers. A clashing
// urn_identifier is rejected by the unique index.
func (r *RecordRepo) Create(ctx context.Context, record *types.DatasetRecord) error {
	po, err := toRecordPO(record)
	if err != nil {
		return err
	}

	if err := r.db.Conn(ctx).Create(po).Error; err != nil {
		if database.IsDuplicateKeyError(err) {
			return apperrors.Wrapf(err, apperrors.ErrIdentifierConflict, "urn_identifier %s already exists", record.URNIdentifier).
				WithReason(biz.ConflictURNCollision)
		}
		return fmt.Errorf("failed to create catalog record: %w", err)
	}
	record.ID = po.ID

	return r.replaceOtherIdentifiers(ctx, record)
}

// Update writes every mutable column. urn_identifier, the aggregates and
// alternate set membership have dedicated writers and are left alone.
func (r *RecordRepo) Update(ctx context.Context, record *types.DatasetRecord) error {
	doc, err := json.Marshal(record.ResearchDataset)
	if err != nil {
		return fmt.Errorf("failed to marshal research_dataset: %w", err)
	}

	res := r.db.Conn(ctx).Model(&CatalogRecordPO{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"preferred_identifier":     record.PreferredIdentifier,
			"data_catalog_id":          record.DataCatalogID,
			"research_dataset":         datatypes.JSON(doc),
			"next_version_id":          record.NextVersionID,
			"previous_version_id":      record.PreviousVersionID,
			"removed":                  record.Removed,
			"date_removed":             record.DateRemoved,
			"preservation_state":       record.PreservationState,
			"preservation_description": record.PreservationDescription,
			"cumulative_state":         record.CumulativeState,
			"date_modified":            record.DateModified,
			"user_modified":            record.UserModified,
			"service_modified":         record.ServiceModified,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update catalog record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.ErrRecordNotFound, "catalog record %d", record.ID)
	}

	return r.replaceOtherIdentifiers(ctx, record)
}

// GetByID loads a record regardless of its removal state
func (r *RecordRepo) GetByID(ctx context.Context, id int64) (*types.DatasetRecord, error) {
	var po CatalogRecordPO
	if err := r.db.Conn(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if database.IsRecordNotFoundError(err) {
			return nil, apperrors.Newf(apperrors.ErrRecordNotFound, "catalog record %d", id)
		}
		return nil, fmt.Errorf("failed to get catalog record: %w", err)
	}
	return toRecord(&po)
}

func (r *RecordRepo) FindByURN(ctx context.Context, urn string, filter biz.RecordFilter) ([]*types.DatasetRecord, error) {
	return r.find(ctx, filter, "urn_identifier = ?", urn)
}

func (r *RecordRepo) FindByPreferredIdentifier(ctx context.Context, pid string, filter biz.RecordFilter) ([]*types.DatasetRecord, error) {
	return r.find(ctx, filter, "preferred_identifier = ?", pid)
}

func (r *RecordRepo) FindByOtherIdentifier(ctx context.Context, localIdentifier string, filter biz.RecordFilter) ([]*types.DatasetRecord, error) {
	sub := r.db.Conn(ctx).Model(&OtherIdentifierPO{}).
		Select("record_id").
		Where("local_identifier = ?", localIdentifier)
	return r.find(ctx, filter, "id IN (?)", sub)
}

// ListByAlternateSet returns every member of the set, oldest first
func (r *RecordRepo) ListByAlternateSet(ctx context.Context, setID int64) ([]*types.DatasetRecord, error) {
	return r.find(ctx, biz.RecordFilter{IncludeRemoved: true}, "alternate_record_set_id = ?", setID)
}

func (r *RecordRepo) SetAlternateSet(ctx context.Context, recordIDs []int64, setID *int64) error {
	if len(recordIDs) == 0 {
		return nil
	}

	var value interface{} = gorm.Expr("NULL")
	if setID != nil {
		value = *setID
	}

	err := r.db.Conn(ctx).Model(&CatalogRecordPO{}).
		Where("id IN ?", recordIDs).
		Update("alternate_record_set_id", value).Error
	if err != nil {
		return fmt.Errorf("failed to set alternate record set: %w", err)
	}
	return nil
}

// ReplaceFiles swaps the file membership of one version
func (r *RecordRepo) ReplaceFiles(ctx context.Context, recordID int64, files []types.FileInfo) error {
	conn := r.db.Conn(ctx)
	if err := conn.Where("record_id = ?", recordID).Delete(&DatasetFilePO{}).Error; err != nil {
		return fmt.Errorf("failed to clear dataset files: %w", err)
	}
	if len(files) == 0 {
		return nil
	}

	rows := make([]DatasetFilePO, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, dup := seen[f.Identifier]; dup {
			continue
		}
		seen[f.Identifier] = struct{}{}
		rows = append(rows, DatasetFilePO{RecordID: recordID, FileIdentifier: f.Identifier, ByteSize: f.ByteSize})
	}
	if err := conn.CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("failed to store dataset files: %w", err)
	}
	return nil
}

// ListFiles returns the stored membership of one version ordered by identifier
func (r *RecordRepo) ListFiles(ctx context.Context, recordID int64) ([]types.FileInfo, error) {
	var rows []DatasetFilePO
	err := r.db.Conn(ctx).
		Where("record_id = ?", recordID).
		Scopes(database.OrderBy("file_identifier", false)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset files: %w", err)
	}

	files := make([]types.FileInfo, 0, len(rows))
	for _, row := range rows {
		files = append(files, types.FileInfo{Identifier: row.FileIdentifier, ByteSize: row.ByteSize})
	}
	return files, nil
}

func (r *RecordRepo) UpdateAggregates(ctx context.Context, recordID, totalByteSize, fileCount int64) error {
	res := r.db.Conn(ctx).Model(&CatalogRecordPO{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{
			"total_byte_size": totalByteSize,
			"file_count":      fileCount,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update aggregates: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.Newf(apperrors.ErrRecordNotFound, "catalog record %d", recordID)
	}
	return nil
}

func (r *RecordRepo) find(ctx context.Context, filter biz.RecordFilter, query interface{}, args ...interface{}) ([]*types.DatasetRecord, error) {
	var pos []CatalogRecordPO
	err := r.db.Conn(ctx).
		Where(query, args...).
		Scopes(
			database.WhereIf(!filter.IncludeRemoved, "removed = ?", false),
			database.WhereIf(filter.CatalogID != 0, "data_catalog_id = ?", filter.CatalogID),
			database.WhereIf(filter.ExcludeCatalogID != 0, "data_catalog_id <> ?", filter.ExcludeCatalogID),
			database.OrderBy("id", false),
		).
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog records: %w", err)
	}

	out := make([]*types.DatasetRecord, 0, len(pos))
	for i := range pos {
		rec, err := toRecord(&pos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *RecordRepo) replaceOtherIdentifiers(ctx context.Context, record *types.DatasetRecord) error {
	conn := r.db.Conn(ctx)
	if err := conn.Where("record_id = ?", record.ID).Delete(&OtherIdentifierPO{}).Error; err != nil {
		return fmt.Errorf("failed to clear other identifiers: %w", err)
	}

	ids := record.ResearchDataset.LocalIdentifiers()
	if len(ids) == 0 {
		return nil
	}
	rows := make([]OtherIdentifierPO, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, OtherIdentifierPO{RecordID: record.ID, LocalIdentifier: id})
	}
	if err := conn.Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to store other identifiers: %w", err)
	}
	return nil
}

func toRecordPO(rec *types.DatasetRecord) (*CatalogRecordPO, error) {
	doc, err := json.Marshal(rec.ResearchDataset)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal research_dataset: %w", err)
	}
	return &CatalogRecordPO{
		ID:                      rec.ID,
		URNIdentifier:           rec.URNIdentifier,
		PreferredIdentifier:     rec.PreferredIdentifier,
		DataCatalogID:           rec.DataCatalogID,
		ResearchDataset:         datatypes.JSON(doc),
		NextVersionID:           rec.NextVersionID,
		PreviousVersionID:       rec.PreviousVersionID,
		AlternateRecordSetID:    rec.AlternateRecordSetID,
		Removed:                 rec.Removed,
		DateRemoved:             rec.DateRemoved,
		TotalByteSize:           rec.TotalByteSize,
		FileCount:               rec.FileCount,
		PreservationState:       rec.PreservationState,
		PreservationDescription: rec.PreservationDescription,
		CumulativeState:         rec.CumulativeState,
		DateCreated:             rec.DateCreated,
		DateModified:            rec.DateModified,
		UserCreated:             rec.UserCreated,
		UserModified:            rec.UserModified,
		ServiceCreated:          rec.ServiceCreated,
		ServiceModified:         rec.ServiceModified,
	}, nil
}

func toRecord(po *CatalogRecordPO) (*types.DatasetRecord, error) {
	rec := &types.DatasetRecord{
		ID:                      po.ID,
		URNIdentifier:           po.URNIdentifier,
		PreferredIdentifier:     po.PreferredIdentifier,
		DataCatalogID:           po.DataCatalogID,
		NextVersionID:           po.NextVersionID,
		PreviousVersionID:       po.PreviousVersionID,
		AlternateRecordSetID:    po.AlternateRecordSetID,
		Removed:                 po.Removed,
		DateRemoved:             po.DateRemoved,
		TotalByteSize:           po.TotalByteSize,
		FileCount:               po.FileCount,
		PreservationState:       po.PreservationState,
		PreservationDescription: po.PreservationDescription,
		CumulativeState:         po.CumulativeState,
		DateCreated:             po.DateCreated,
		DateModified:            po.DateModified,
		UserCreated:             po.UserCreated,
		UserModified:            po.UserModified,
		ServiceCreated:          po.ServiceCreated,
		ServiceModified:         po.ServiceModified,
	}
	if len(po.ResearchDataset) > 0 {
		if err := json.Unmarshal(po.ResearchDataset, &rec.ResearchDataset); err != nil {
			return nil, fmt.Errorf("failed to unmarshal research_dataset of %s: %w", po.URNIdentifier, err)
		}
	}
	return rec, nil
}
