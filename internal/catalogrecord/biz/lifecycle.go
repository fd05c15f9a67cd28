package biz

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

// CatalogRecordUseCase runs create, update and delete of catalog records as
// single units of work and publishes lifecycle events once they commit
type CatalogRecordUseCase struct {
	tx         Transactor
	locker     Locker
	records    RecordRepo
	catalogs   CatalogLookup
	ids        IdentifierGenerator
	resolver   *Resolver
	validator  *UniquenessValidator
	sets       *AlternateSetManager
	aggregator *Aggregator
	forks      *VersionForkEngine
	publisher  EventPublisher
	logger     *logger.Logger
}

// NewCatalogRecordUseCase wires the engine components around one store
func NewCatalogRecordUseCase(
	tx Transactor,
	locker Locker,
	records RecordRepo,
	catalogs CatalogLookup,
	ids IdentifierGenerator,
	resolver *Resolver,
	validator *UniquenessValidator,
	sets *AlternateSetManager,
	aggregator *Aggregator,
	forks *VersionForkEngine,
	publisher EventPublisher,
	log *logger.Logger,
) *CatalogRecordUseCase {
	if locker == nil {
		locker = NopLocker{}
	}
	return &CatalogRecordUseCase{
		tx:         tx,
		locker:     locker,
		records:    records,
		catalogs:   catalogs,
		ids:        ids,
		resolver:   resolver,
		validator:  validator,
		sets:       sets,
		aggregator: aggregator,
		forks:      forks,
		publisher:  publisher,
		logger:     log,
	}
}

// Create stores a new dataset. The urn is generated and doubles as the
// preferred identifier when none is given.
func (uc *CatalogRecordUseCase) Create(ctx context.Context, actor types.Actor, req *types.CreateRequest) (record *types.DatasetRecord, err error) {
	defer func() { observeOperation("create", err) }()
	ctx = logger.WithActor(ctx, actor.User, actor.Service)

	target, err := uc.catalogs.GetCatalog(ctx, req.DataCatalog)
	if err != nil {
		return nil, keyed(err, FieldDataCatalog)
	}

	pid := req.ResearchDataset.PreferredIdentifier
	if pid == "" && target.IsHarvested {
		return nil, apperrors.Newf(apperrors.ErrIdentifierRequired,
			"preferred_identifier is required in harvested catalog %s", target.Identifier).
			WithField(FieldPreferredIdentifier)
	}

	var events []types.Event
	err = uc.locker.WithLocks(ctx, lockKeys(pid), func(ctx context.Context) error {
		return uc.tx.InTx(ctx, func(ctx context.Context) error {
			events = events[:0]

			if err := uc.validator.Validate(ctx, pid, target, OperationCreate, nil); err != nil {
				return err
			}

			now := time.Now().UTC()
			rec := &types.DatasetRecord{
				URNIdentifier:   uc.ids.NewURN(),
				DataCatalogID:   target.ID,
				ResearchDataset: req.ResearchDataset.Clone(),
				CumulativeState: req.CumulativeState,
				DateCreated:     now,
				DateModified:    now,
				UserCreated:     actor.User,
				ServiceCreated:  actor.Service,
			}
			if pid == "" {
				rec.SetPreferredIdentifier(rec.URNIdentifier)
			} else {
				rec.SetPreferredIdentifier(pid)
			}

			if err := uc.records.Create(ctx, rec); err != nil {
				return apperrors.Wrap(err, apperrors.ErrRecordPersistFailed)
			}
			if err := uc.aggregator.Assign(ctx, rec); err != nil {
				return err
			}
			if err := uc.sets.OnIdentifierEstablished(ctx, rec); err != nil {
				return err
			}

			record = rec
			events = append(events, uc.event(types.EventCreated, rec, target))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	uc.logger.WithContext(ctx).Info("catalog record created",
		zap.String("urn_identifier", record.URNIdentifier),
		zap.String("preferred_identifier", record.PreferredIdentifier),
		zap.String("data_catalog", target.Identifier),
	)
	uc.publish(ctx, events)
	return record, nil
}

// Update applies req to the record identified by identifier, either in
// place or by creating a new version
func (uc *CatalogRecordUseCase) Update(ctx context.Context, actor types.Actor, identifier string, req *types.UpdateRequest) (result *types.UpdateResult, err error) {
	defer func() { observeOperation("update", err) }()
	ctx = logger.WithActor(ctx, actor.User, actor.Service)

	var requested string
	if req.ResearchDataset != nil {
		requested = req.ResearchDataset.PreferredIdentifier
	}

	var events []types.Event
	err = uc.locker.WithLocks(ctx, uc.writeLockKeys(ctx, identifier, requested), func(ctx context.Context) error {
		return uc.tx.InTx(ctx, func(ctx context.Context) error {
			events = events[:0]

			res, evs, err := uc.update(ctx, actor, identifier, req)
			if err != nil {
				return err
			}
			result, events = res, evs
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	uc.logger.WithContext(ctx).Info("catalog record updated",
		zap.String("urn_identifier", result.Record.URNIdentifier),
		zap.Bool("new_version_created", result.Forked),
	)
	uc.publish(ctx, events)
	return result, nil
}

func (uc *CatalogRecordUseCase) update(ctx context.Context, actor types.Actor, identifier string, req *types.UpdateRequest) (*types.UpdateResult, []types.Event, error) {
	current, err := uc.resolveForWrite(ctx, identifier, "update")
	if err != nil {
		return nil, nil, err
	}

	target, err := uc.targetCatalog(ctx, current, req.DataCatalog)
	if err != nil {
		return nil, nil, err
	}
	catalogChanged := target.ID != current.DataCatalogID

	var next *types.ResearchDataset
	if req.ResearchDataset != nil {
		rd := req.ResearchDataset.Clone()
		next = &rd
	}

	decision := uc.forks.Decide(current, next, target, req.PreserveVersion)

	if current.State() == types.StateSuperseded && (catalogChanged || decision.FilesChanged || decision.MetadataChanged) {
		return nil, nil, immutableVersionEdit(current.URNIdentifier)
	}

	effectivePID := current.PreferredIdentifier
	if decision.PIDChanged {
		effectivePID = next.PreferredIdentifier
	}
	switch {
	case decision.Required && (decision.PIDChanged || decision.FilesChanged):
		// the fork engine settles the new version's identifier
	case catalogChanged || decision.PIDChanged:
		if err := uc.validator.Validate(ctx, effectivePID, target, OperationUpdate, current); err != nil {
			return nil, nil, err
		}
	}

	if decision.Required {
		res, err := uc.forks.Fork(ctx, actor, current, *next, target, decision)
		if err != nil {
			return nil, nil, err
		}
		if applyAdministrative(res.Record, req) {
			if err := uc.records.Update(ctx, res.Record); err != nil {
				return nil, nil, apperrors.Wrap(err, apperrors.ErrRecordPersistFailed)
			}
		}

		prevCat := target
		if catalogChanged {
			if prevCat, err = uc.catalogs.GetCatalogByID(ctx, res.Previous.DataCatalogID); err != nil {
				return nil, nil, err
			}
		}
		return res, []types.Event{
			uc.event(types.EventCreated, res.Record, target),
			uc.event(types.EventUpdated, res.Previous, prevCat),
		}, nil
	}

	rec := current
	if next != nil {
		if next.PreferredIdentifier == "" {
			next.PreferredIdentifier = current.PreferredIdentifier
		}
		rec.ResearchDataset = *next
		rec.SetPreferredIdentifier(effectivePID)
	}
	rec.DataCatalogID = target.ID
	applyAdministrative(rec, req)
	rec.DateModified = time.Now().UTC()
	rec.UserModified = actor.User
	rec.ServiceModified = actor.Service

	if err := uc.records.Update(ctx, rec); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrRecordPersistFailed)
	}
	if decision.FilesChanged {
		if err := uc.aggregator.Assign(ctx, rec); err != nil {
			return nil, nil, err
		}
	}
	if decision.PIDChanged || catalogChanged {
		if err := uc.sets.OnRecordRemovedOrForked(ctx, rec); err != nil {
			return nil, nil, err
		}
		if err := uc.sets.OnIdentifierEstablished(ctx, rec); err != nil {
			return nil, nil, err
		}
	}

	return &types.UpdateResult{Record: rec}, []types.Event{uc.event(types.EventUpdated, rec, target)}, nil
}

// Delete marks the record removed and releases its alternate set membership.
// Its identifiers stay reserved.
func (uc *CatalogRecordUseCase) Delete(ctx context.Context, actor types.Actor, identifier string) (err error) {
	defer func() { observeOperation("delete", err) }()
	ctx = logger.WithActor(ctx, actor.User, actor.Service)

	var (
		events []types.Event
		urn    string
	)
	err = uc.locker.WithLocks(ctx, uc.writeLockKeys(ctx, identifier), func(ctx context.Context) error {
		return uc.tx.InTx(ctx, func(ctx context.Context) error {
			events = events[:0]

			rec, err := uc.resolveForWrite(ctx, identifier, "delete")
			if err != nil {
				return err
			}
			cat, err := uc.catalogs.GetCatalogByID(ctx, rec.DataCatalogID)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			rec.Removed = true
			rec.DateRemoved = &now
			rec.DateModified = now
			rec.UserModified = actor.User
			rec.ServiceModified = actor.Service
			if err := uc.records.Update(ctx, rec); err != nil {
				return apperrors.Wrap(err, apperrors.ErrRecordPersistFailed)
			}
			if err := uc.sets.OnRecordRemovedOrForked(ctx, rec); err != nil {
				return err
			}

			urn = rec.URNIdentifier
			events = append(events, uc.event(types.EventDeleted, rec, cat))
			return nil
		})
	})
	if err != nil {
		return err
	}

	uc.logger.WithContext(ctx).Info("catalog record removed", zap.String("urn_identifier", urn))
	uc.publish(ctx, events)
	return nil
}

// Get reads a record by any identifier. Matches in several catalogs resolve
// to the one in the oldest catalog.
func (uc *CatalogRecordUseCase) Get(ctx context.Context, identifier string, includeRemoved bool) (*types.DatasetRecord, error) {
	matches, err := uc.resolver.FindByIdentifier(ctx, identifier, Scope{Global: true, IncludeRemoved: includeRemoved})
	if err != nil {
		return nil, err
	}
	rec, err := uc.resolver.PreferOldestCatalog(ctx, matches)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, recordNotFound(identifier)
	}
	return rec, nil
}

// Versions returns the whole version chain of the identified record, oldest first
func (uc *CatalogRecordUseCase) Versions(ctx context.Context, identifier string) ([]*types.DatasetRecord, error) {
	rec, err := uc.Get(ctx, identifier, true)
	if err != nil {
		return nil, err
	}

	seen := map[int64]struct{}{rec.ID: {}}
	first := rec
	for first.PreviousVersionID != nil {
		if _, ok := seen[*first.PreviousVersionID]; ok {
			break
		}
		prev, err := uc.records.GetByID(ctx, *first.PreviousVersionID)
		if err != nil {
			return nil, err
		}
		seen[prev.ID] = struct{}{}
		first = prev
	}

	chain := []*types.DatasetRecord{first}
	visited := map[int64]struct{}{first.ID: {}}
	for cur := first; cur.NextVersionID != nil; {
		if _, ok := visited[*cur.NextVersionID]; ok {
			break
		}
		next, err := uc.records.GetByID(ctx, *cur.NextVersionID)
		if err != nil {
			return nil, err
		}
		visited[next.ID] = struct{}{}
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// AlternateRecords lists the urns of records describing the same dataset in
// other catalogs
func (uc *CatalogRecordUseCase) AlternateRecords(ctx context.Context, identifier string) ([]string, error) {
	rec, err := uc.Get(ctx, identifier, false)
	if err != nil {
		return nil, err
	}
	return uc.sets.Siblings(ctx, rec)
}

// AddFiles appends files and directories to a dataset. Cumulative datasets
// grow in place; any other dataset goes through the regular update path.
func (uc *CatalogRecordUseCase) AddFiles(ctx context.Context, actor types.Actor, identifier string, files []types.DatasetFile, dirs []types.DatasetDirectory) (*types.UpdateResult, error) {
	if len(files) == 0 && len(dirs) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "no files or directories given").WithField(FieldFiles)
	}

	current, err := uc.resolveForWrite(ctx, identifier, "add files to")
	if err != nil {
		return nil, err
	}

	rd := current.ResearchDataset.WithFiles(files, dirs)
	req := &types.UpdateRequest{
		ResearchDataset: &rd,
		PreserveVersion: current.IsCumulative() && current.IsCurrent(),
	}
	return uc.Update(ctx, actor, current.URNIdentifier, req)
}

// resolveForWrite resolves identifier among live records. A removed match
// is reported as an invalid transition rather than as missing.
func (uc *CatalogRecordUseCase) resolveForWrite(ctx context.Context, identifier, op string) (*types.DatasetRecord, error) {
	rec, err := uc.resolver.ResolveOne(ctx, identifier, Scope{Global: true})
	if err == nil {
		return rec, nil
	}
	if !apperrors.Is(err, apperrors.ErrRecordNotFound) {
		return nil, err
	}

	removed, ferr := uc.resolver.FindByIdentifier(ctx, identifier, Scope{Global: true, IncludeRemoved: true})
	if ferr != nil {
		return nil, ferr
	}
	if len(removed) > 0 {
		return nil, invalidTransition(removed[0].URNIdentifier, types.StateRemoved, op)
	}
	return nil, err
}

func (uc *CatalogRecordUseCase) targetCatalog(ctx context.Context, current *types.DatasetRecord, ref string) (*types.DataCatalog, error) {
	if ref == "" {
		return uc.catalogs.GetCatalogByID(ctx, current.DataCatalogID)
	}
	cat, err := uc.catalogs.GetCatalog(ctx, ref)
	if err != nil {
		return nil, keyed(err, FieldDataCatalog)
	}
	return cat, nil
}

func (uc *CatalogRecordUseCase) event(t types.EventType, rec *types.DatasetRecord, cat *types.DataCatalog) types.Event {
	return types.Event{
		Type:        t,
		Record:      rec.Clone(),
		DataCatalog: cat.Identifier,
		OccurredAt:  time.Now().UTC(),
	}
}

// publish delivers committed events. Failures are logged and counted only.
func (uc *CatalogRecordUseCase) publish(ctx context.Context, events []types.Event) {
	if uc.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := uc.publisher.Publish(ctx, ev); err != nil {
			eventPublishFailuresTotal.Inc()
			uc.logger.WithContext(ctx).Warn("failed to publish catalog record event",
				zap.String("event_type", string(ev.Type)),
				zap.String("urn_identifier", ev.Record.URNIdentifier),
				zap.Error(err),
			)
		}
	}
}

// applyAdministrative copies the administrative fields of req and reports
// whether anything was set
func applyAdministrative(rec *types.DatasetRecord, req *types.UpdateRequest) bool {
	changed := false
	if req.PreservationState != nil {
		rec.PreservationState = *req.PreservationState
		changed = true
	}
	if req.PreservationDescription != nil {
		rec.PreservationDescription = *req.PreservationDescription
		changed = true
	}
	if req.CumulativeState != nil {
		rec.CumulativeState = *req.CumulativeState
		changed = true
	}
	return changed
}

// writeLockKeys covers the identifier as given and the preferred
// identifier of the record it currently resolves to, so writes addressed by
// urn and by pid serialize on the same dataset
func (uc *CatalogRecordUseCase) writeLockKeys(ctx context.Context, identifier string, extra ...string) []string {
	values := []string{identifier}
	if existing, err := uc.resolver.ResolveOne(ctx, identifier, Scope{Global: true}); err == nil {
		values = append(values, existing.PreferredIdentifier)
	}
	return lockKeys(append(values, extra...)...)
}

func lockKeys(values ...string) []string {
	keys := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			keys = append(keys, "pid:"+v)
		}
	}
	return keys
}

// keyed attaches field to an AppError that has none
func keyed(err error, field string) error {
	if appErr, ok := apperrors.As(err); ok && appErr.Field == "" {
		appErr.Field = field
	}
	return err
}
