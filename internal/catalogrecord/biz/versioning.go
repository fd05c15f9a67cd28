package biz

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

// ForkDecision explains whether an update creates a new version
type ForkDecision struct {
	Required        bool
	FilesChanged    bool
	MetadataChanged bool
	PIDChanged      bool
}

// Trigger names what caused the fork, for metrics and logs
func (d ForkDecision) Trigger() string {
	switch {
	case d.FilesChanged && d.MetadataChanged:
		return "files_and_metadata"
	case d.FilesChanged:
		return "files"
	case d.PIDChanged:
		return "preferred_identifier"
	default:
		return "metadata"
	}
}

// VersionForkEngine decides on and performs new dataset versions
type VersionForkEngine struct {
	records       RecordRepo
	ids           IdentifierGenerator
	validator     *UniquenessValidator
	sets          *AlternateSetManager
	aggregator    *Aggregator
	inheritOnFork bool
	logger        *logger.Logger
}

func NewVersionForkEngine(
	records RecordRepo,
	ids IdentifierGenerator,
	validator *UniquenessValidator,
	sets *AlternateSetManager,
	aggregator *Aggregator,
	inheritOnFork bool,
	log *logger.Logger,
) *VersionForkEngine {
	return &VersionForkEngine{
		records:       records,
		ids:           ids,
		validator:     validator,
		sets:          sets,
		aggregator:    aggregator,
		inheritOnFork: inheritOnFork,
		logger:        log,
	}
}

// Decide compares the stored document with the incoming one. next may be nil
// when only administrative fields change.
func (e *VersionForkEngine) Decide(current *types.DatasetRecord, next *types.ResearchDataset, target *types.DataCatalog, preserveVersion bool) ForkDecision {
	var d ForkDecision
	if next == nil {
		return d
	}

	d.FilesChanged = !current.ResearchDataset.SameFileSet(*next)
	d.PIDChanged = next.PreferredIdentifier != "" && next.PreferredIdentifier != current.PreferredIdentifier
	d.MetadataChanged = d.PIDChanged || !current.ResearchDataset.SameDescriptiveMetadata(*next)
	d.Required = target.SupportsVersioning && !preserveVersion && (d.FilesChanged || d.MetadataChanged)
	return d
}

// Fork creates the successor of current carrying next as its document.
// current is left untouched apart from its next-version link. target is the
// catalog the new version lives in.
func (e *VersionForkEngine) Fork(ctx context.Context, actor types.Actor, current *types.DatasetRecord, next types.ResearchDataset, target *types.DataCatalog, decision ForkDecision) (*types.UpdateResult, error) {
	switch current.State() {
	case types.StateSuperseded:
		return nil, immutableVersionEdit(current.URNIdentifier)
	case types.StateRemoved:
		return nil, invalidTransition(current.URNIdentifier, current.State(), "create a new version of")
	}

	newRec := current.Clone()
	newRec.ID = 0
	newRec.ResearchDataset = next.Clone()
	newRec.DataCatalogID = target.ID
	newRec.AlternateRecordSetID = nil
	newRec.NextVersionID = nil
	prevID := current.ID
	newRec.PreviousVersionID = &prevID
	newRec.TotalByteSize = 0
	newRec.FileCount = 0
	newRec.URNIdentifier = e.ids.NewURN()

	now := time.Now().UTC()
	newRec.DateCreated = now
	newRec.DateModified = now
	newRec.UserCreated = actor.User
	newRec.ServiceCreated = actor.Service
	newRec.UserModified = ""
	newRec.ServiceModified = ""

	var pid string
	switch {
	case decision.PIDChanged:
		pid = next.PreferredIdentifier
		if err := e.validator.Validate(ctx, pid, target, OperationUpdate, current); err != nil {
			return nil, err
		}
	case decision.FilesChanged:
		// A new file set is a new dataset as far as citations go
		pid = newRec.URNIdentifier
	default:
		pid = current.PreferredIdentifier
	}
	newRec.SetPreferredIdentifier(pid)

	if err := e.records.Create(ctx, newRec); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRecordPersistFailed)
	}

	nextID := newRec.ID
	current.NextVersionID = &nextID
	if err := e.records.Update(ctx, current); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrRecordPersistFailed)
	}

	if decision.FilesChanged {
		if err := e.aggregator.Assign(ctx, newRec); err != nil {
			return nil, err
		}
	} else {
		if err := e.aggregator.CopyMembership(ctx, current, newRec); err != nil {
			return nil, err
		}
	}

	if newRec.PreferredIdentifier != current.PreferredIdentifier || newRec.DataCatalogID != current.DataCatalogID {
		if err := e.sets.OnRecordRemovedOrForked(ctx, current); err != nil {
			return nil, err
		}
		if err := e.sets.OnIdentifierEstablished(ctx, newRec); err != nil {
			return nil, err
		}
	} else if e.inheritOnFork && current.AlternateRecordSetID != nil {
		if err := e.sets.Join(ctx, newRec, *current.AlternateRecordSetID); err != nil {
			return nil, err
		}
	}

	trigger := decision.Trigger()
	versionsCreatedTotal.WithLabelValues(trigger).Inc()
	e.logger.WithContext(ctx).Info("new dataset version created",
		zap.String("previous", current.URNIdentifier),
		zap.String("urn_identifier", newRec.URNIdentifier),
		zap.String("preferred_identifier", newRec.PreferredIdentifier),
		zap.String("trigger", trigger),
	)

	return &types.UpdateResult{Record: newRec, Previous: current, Forked: true}, nil
}
