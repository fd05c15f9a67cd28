package biz

import (
	"context"

	"go.uber.org/zap"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

// Aggregator maintains a version's file membership and the byte size and
// file count derived from it
type Aggregator struct {
	records RecordRepo
	files   FileRegistry
	logger  *logger.Logger
}

func NewAggregator(records RecordRepo, files FileRegistry, log *logger.Logger) *Aggregator {
	return &Aggregator{records: records, files: files, logger: log}
}

// Assign derives membership from research_dataset files and directories,
// stores it with the sizes the registry reports and recomputes the
// aggregates. It is the only step that consults the file registry.
func (a *Aggregator) Assign(ctx context.Context, record *types.DatasetRecord) error {
	if !record.IsCurrent() {
		return invalidTransition(record.URNIdentifier, record.State(), "assign files to")
	}

	var members []types.FileInfo

	if ids := record.ResearchDataset.FileIdentifiers(); len(ids) > 0 {
		infos, err := a.files.ResolveFiles(ctx, ids)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrFileRegistry).WithField(FieldFiles)
		}
		members = append(members, infos...)
	}
	if ids := record.ResearchDataset.DirectoryIdentifiers(); len(ids) > 0 {
		infos, err := a.files.ResolveDirectories(ctx, ids)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrFileRegistry).WithField(FieldDirectories)
		}
		members = append(members, infos...)
	}

	if err := a.records.ReplaceFiles(ctx, record.ID, distinctFiles(members)); err != nil {
		return apperrors.Wrap(err, apperrors.ErrAggregateFailed)
	}
	return a.Recompute(ctx, record)
}

// CopyMembership gives to the exact file membership of from, stored sizes
// included, and recomputes to. Files later removed from storage stay part
// of the carried membership.
func (a *Aggregator) CopyMembership(ctx context.Context, from, to *types.DatasetRecord) error {
	files, err := a.records.ListFiles(ctx, from.ID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrAggregateFailed)
	}
	if err := a.records.ReplaceFiles(ctx, to.ID, files); err != nil {
		return apperrors.Wrap(err, apperrors.ErrAggregateFailed)
	}
	return a.Recompute(ctx, to)
}

// Recompute sums the stored byte sizes over the distinct member files.
// Only the current version of a chain is ever recomputed.
func (a *Aggregator) Recompute(ctx context.Context, record *types.DatasetRecord) error {
	if !record.IsCurrent() {
		return invalidTransition(record.URNIdentifier, record.State(), "recompute aggregates of")
	}

	files, err := a.records.ListFiles(ctx, record.ID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrAggregateFailed)
	}

	var size, count int64
	for _, f := range distinctFiles(files) {
		size += f.ByteSize
		count++
	}

	if err := a.records.UpdateAggregates(ctx, record.ID, size, count); err != nil {
		return apperrors.Wrap(err, apperrors.ErrAggregateFailed)
	}
	record.TotalByteSize = size
	record.FileCount = count

	a.logger.WithContext(ctx).Debug("file aggregates recomputed",
		zap.String("urn_identifier", record.URNIdentifier),
		zap.Int64("total_byte_size", size),
		zap.Int64("file_count", count),
	)
	return nil
}

func distinctFiles(files []types.FileInfo) []types.FileInfo {
	out := make([]types.FileInfo, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, dup := seen[f.Identifier]; dup {
			continue
		}
		seen[f.Identifier] = struct{}{}
		out = append(out, f)
	}
	return out
}
