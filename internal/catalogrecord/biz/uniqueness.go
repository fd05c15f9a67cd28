package biz

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

// OperationKind tells the validator what kind of write is being checked
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationUpdate OperationKind = "update"
)

// UniquenessValidator enforces the preferred identifier rules of the target catalog
type UniquenessValidator struct {
	records  RecordRepo
	catalogs CatalogLookup
	logger   *logger.Logger
}

func NewUniquenessValidator(records RecordRepo, catalogs CatalogLookup, log *logger.Logger) *UniquenessValidator {
	return &UniquenessValidator{records: records, catalogs: catalogs, logger: log}
}

// Validate checks that candidate may be used as a preferred identifier in
// target. current is the record being updated (nil on create); it and every
// version in its chain are ignored when looking for collisions.
func (v *UniquenessValidator) Validate(ctx context.Context, candidate string, target *types.DataCatalog, op OperationKind, current *types.DatasetRecord) error {
	if candidate == "" {
		return nil
	}

	own, err := v.chainIDs(ctx, current)
	if err != nil {
		return err
	}

	err = v.validate(ctx, candidate, target, own)
	if err != nil {
		if reason := conflictReason(err); reason != "" {
			identifierConflictsTotal.WithLabelValues(reason).Inc()
			v.logger.WithContext(ctx).Info("preferred identifier rejected",
				zap.String("preferred_identifier", candidate),
				zap.String("data_catalog", target.Identifier),
				zap.String("operation", string(op)),
				zap.String("reason", reason),
			)
		}
	}
	return err
}

func (v *UniquenessValidator) validate(ctx context.Context, candidate string, target *types.DataCatalog, own map[int64]struct{}) error {
	if target.IsQuarantine {
		matches, err := v.records.FindByPreferredIdentifier(ctx, candidate, RecordFilter{ExcludeCatalogID: target.ID})
		if err != nil {
			return fmt.Errorf("failed to search preferred identifier: %w", err)
		}
		if m := firstForeign(matches, own); m != nil {
			return identifierConflict(ConflictQuarantine,
				"cannot introduce an identifier from another catalog while saving into the quarantine catalog: %s is already used by %s",
				candidate, m.URNIdentifier)
		}
	} else {
		matches, err := v.records.FindByPreferredIdentifier(ctx, candidate, RecordFilter{CatalogID: target.ID})
		if err != nil {
			return fmt.Errorf("failed to search preferred identifier: %w", err)
		}
		if m := firstForeign(matches, own); m != nil {
			return identifierConflict(ConflictSameCatalog,
				"preferred_identifier %s already exists in data catalog %s", candidate, target.Identifier)
		}

		quarantine, err := v.catalogs.QuarantineCatalog(ctx)
		if err != nil {
			return err
		}
		if quarantine != nil && quarantine.ID != target.ID {
			matches, err := v.records.FindByPreferredIdentifier(ctx, candidate, RecordFilter{CatalogID: quarantine.ID})
			if err != nil {
				return fmt.Errorf("failed to search preferred identifier: %w", err)
			}
			if m := firstForeign(matches, own); m != nil {
				return identifierConflict(ConflictCrossCatalog,
					"preferred_identifier %s already exists in the quarantine catalog %s", candidate, quarantine.Identifier)
			}
		}
	}

	// A chosen preferred identifier must never equal a generated urn anywhere
	matches, err := v.records.FindByURN(ctx, candidate, RecordFilter{IncludeRemoved: true})
	if err != nil {
		return fmt.Errorf("failed to search urn identifier: %w", err)
	}
	if target.IsQuarantine {
		// a quarantine record whose pid defaulted to its own urn may be reused in quarantine
		matches = dropQuarantineReuse(matches, candidate, target.ID)
	}
	if m := firstForeign(matches, own); m != nil {
		return identifierConflict(ConflictURNCollision,
			"preferred_identifier %s collides with the urn_identifier of another record", candidate)
	}
	return nil
}

// chainIDs collects the ids of every version in current's chain
func (v *UniquenessValidator) chainIDs(ctx context.Context, current *types.DatasetRecord) (map[int64]struct{}, error) {
	ids := map[int64]struct{}{}
	if current == nil {
		return ids, nil
	}
	ids[current.ID] = struct{}{}

	for prev := current.PreviousVersionID; prev != nil; {
		if _, seen := ids[*prev]; seen {
			break
		}
		rec, err := v.records.GetByID(ctx, *prev)
		if err != nil {
			return nil, err
		}
		ids[rec.ID] = struct{}{}
		prev = rec.PreviousVersionID
	}
	for next := current.NextVersionID; next != nil; {
		if _, seen := ids[*next]; seen {
			break
		}
		rec, err := v.records.GetByID(ctx, *next)
		if err != nil {
			return nil, err
		}
		ids[rec.ID] = struct{}{}
		next = rec.NextVersionID
	}
	return ids, nil
}

func firstForeign(matches []*types.DatasetRecord, own map[int64]struct{}) *types.DatasetRecord {
	for _, m := range matches {
		if _, ok := own[m.ID]; !ok {
			return m
		}
	}
	return nil
}

func dropQuarantineReuse(matches []*types.DatasetRecord, candidate string, quarantineID int64) []*types.DatasetRecord {
	out := matches[:0:0]
	for _, m := range matches {
		if m.DataCatalogID == quarantineID && m.PreferredIdentifier == candidate {
			continue
		}
		out = append(out, m)
	}
	return out
}
