package biz

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
)

// fakeStore is an in-memory backend for every collaborator the engine needs
type fakeStore struct {
	mu sync.Mutex

	records   map[int64]*types.DatasetRecord
	members   map[int64][]types.FileInfo
	sets      map[int64]bool
	catalogs  []*types.DataCatalog
	files     map[string]types.FileInfo
	dirs      map[string][]string
	events    []types.Event
	nextID    int64
	nextSetID int64
	urnSeq    int

	failPublish bool
	// failOn makes the named repo method fail once
	failOn string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: map[int64]*types.DatasetRecord{},
		members: map[int64][]types.FileInfo{},
		sets:    map[int64]bool{},
		files:   map[string]types.FileInfo{},
		dirs:    map[string][]string{},
	}
}

func (s *fakeStore) addCatalog(c types.DataCatalog) *types.DataCatalog {
	if c.ID == 0 {
		c.ID = int64(len(s.catalogs) + 1)
	}
	if c.DateCreated.IsZero() {
		c.DateCreated = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(c.ID))
	}
	cp := c
	s.catalogs = append(s.catalogs, &cp)
	return &cp
}

func (s *fakeStore) addFile(id string, size int64) {
	s.files[id] = types.FileInfo{Identifier: id, ByteSize: size, Path: "/" + id}
}

func (s *fakeStore) addDir(id string, files ...string) {
	s.dirs[id] = files
}

func (s *fakeStore) fail(method string) error {
	if s.failOn == method {
		s.failOn = ""
		return fmt.Errorf("injected %s failure", method)
	}
	return nil
}

func (s *fakeStore) record(id int64) *types.DatasetRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Clone()
}

func (s *fakeStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}

func (s *fakeStore) setMembers(setID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, r := range s.records {
		if r.AlternateRecordSetID != nil && *r.AlternateRecordSetID == setID {
			ids = append(ids, r.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RecordRepo

func (s *fakeStore) Create(_ context.Context, r *types.DatasetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Create"); err != nil {
		return err
	}
	for _, o := range s.records {
		if o.URNIdentifier == r.URNIdentifier {
			return fmt.Errorf("duplicate urn_identifier %s", r.URNIdentifier)
		}
	}
	s.nextID++
	r.ID = s.nextID
	s.records[r.ID] = r.Clone()
	return nil
}

func (s *fakeStore) Update(_ context.Context, r *types.DatasetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Update"); err != nil {
		return err
	}
	old, ok := s.records[r.ID]
	if !ok {
		return apperrors.Newf(apperrors.ErrRecordNotFound, "record %d", r.ID)
	}
	cp := r.Clone()
	// aggregates and set membership have their own writers
	cp.TotalByteSize, cp.FileCount = old.TotalByteSize, old.FileCount
	cp.AlternateRecordSetID = old.AlternateRecordSetID
	s.records[r.ID] = cp
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*types.DatasetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrRecordNotFound, "record %d", id)
	}
	return r.Clone(), nil
}

func (s *fakeStore) find(filter RecordFilter, match func(*types.DatasetRecord) bool) []*types.DatasetRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*types.DatasetRecord{}
	for _, r := range s.records {
		if r.Removed && !filter.IncludeRemoved {
			continue
		}
		if filter.CatalogID != 0 && r.DataCatalogID != filter.CatalogID {
			continue
		}
		if filter.ExcludeCatalogID != 0 && r.DataCatalogID == filter.ExcludeCatalogID {
			continue
		}
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) FindByURN(_ context.Context, urn string, f RecordFilter) ([]*types.DatasetRecord, error) {
	return s.find(f, func(r *types.DatasetRecord) bool { return r.URNIdentifier == urn }), nil
}

func (s *fakeStore) FindByPreferredIdentifier(_ context.Context, pid string, f RecordFilter) ([]*types.DatasetRecord, error) {
	return s.find(f, func(r *types.DatasetRecord) bool { return r.PreferredIdentifier == pid }), nil
}

func (s *fakeStore) FindByOtherIdentifier(_ context.Context, local string, f RecordFilter) ([]*types.DatasetRecord, error) {
	return s.find(f, func(r *types.DatasetRecord) bool {
		for _, id := range r.ResearchDataset.LocalIdentifiers() {
			if id == local {
				return true
			}
		}
		return false
	}), nil
}

func (s *fakeStore) ListByAlternateSet(_ context.Context, setID int64) ([]*types.DatasetRecord, error) {
	return s.find(RecordFilter{IncludeRemoved: true}, func(r *types.DatasetRecord) bool {
		return r.AlternateRecordSetID != nil && *r.AlternateRecordSetID == setID
	}), nil
}

func (s *fakeStore) SetAlternateSet(_ context.Context, ids []int64, setID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		r, ok := s.records[id]
		if !ok {
			return fmt.Errorf("record %d not found", id)
		}
		if setID == nil {
			r.AlternateRecordSetID = nil
		} else {
			v := *setID
			r.AlternateRecordSetID = &v
		}
	}
	return nil
}

func (s *fakeStore) ReplaceFiles(_ context.Context, recordID int64, files []types.FileInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[recordID] = append([]types.FileInfo(nil), files...)
	return nil
}

func (s *fakeStore) ListFiles(_ context.Context, recordID int64) ([]types.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]types.FileInfo(nil), s.members[recordID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

// memberIDs lists the stored membership of one record by identifier
func (s *fakeStore) memberIDs(recordID int64) []string {
	files, _ := s.ListFiles(context.Background(), recordID)
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.Identifier)
	}
	return ids
}

// removeFile drops a file from storage as the registry sees it
func (s *fakeStore) removeFile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, id)
}

func (s *fakeStore) UpdateAggregates(_ context.Context, recordID, size, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpdateAggregates"); err != nil {
		return err
	}
	r, ok := s.records[recordID]
	if !ok {
		return fmt.Errorf("record %d not found", recordID)
	}
	r.TotalByteSize, r.FileCount = size, count
	return nil
}

// CatalogLookup

func (s *fakeStore) GetCatalog(_ context.Context, identifier string) (*types.DataCatalog, error) {
	for _, c := range s.catalogs {
		if c.Identifier == identifier {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.Newf(apperrors.ErrCatalogNotFound, "data catalog %s", identifier)
}

func (s *fakeStore) GetCatalogByID(_ context.Context, id int64) (*types.DataCatalog, error) {
	for _, c := range s.catalogs {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.Newf(apperrors.ErrCatalogNotFound, "data catalog %d", id)
}

func (s *fakeStore) QuarantineCatalog(_ context.Context) (*types.DataCatalog, error) {
	for _, c := range s.catalogs {
		if c.IsQuarantine {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

// FileRegistry

func (s *fakeStore) ResolveFiles(_ context.Context, ids []string) ([]types.FileInfo, error) {
	out := make([]types.FileInfo, 0, len(ids))
	for _, id := range ids {
		f, ok := s.files[id]
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrFileNotFound, "file %s", id)
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *fakeStore) ResolveDirectories(ctx context.Context, ids []string) ([]types.FileInfo, error) {
	var out []types.FileInfo
	for _, id := range ids {
		files, ok := s.dirs[id]
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrDirectoryNotFound, "directory %s", id)
		}
		infos, err := s.ResolveFiles(ctx, files)
		if err != nil {
			return nil, err
		}
		out = append(out, infos...)
	}
	return out, nil
}

// IdentifierGenerator

func (s *fakeStore) NewURN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urnSeq++
	return fmt.Sprintf("urn:nbn:fi:att:%04d", s.urnSeq)
}

// EventPublisher

func (s *fakeStore) Publish(_ context.Context, ev types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPublish {
		return fmt.Errorf("broker unavailable")
	}
	s.events = append(s.events, ev)
	return nil
}

// Transactor restores a snapshot when fn fails

func (s *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	snapRecords := make(map[int64]*types.DatasetRecord, len(s.records))
	for id, r := range s.records {
		snapRecords[id] = r.Clone()
	}
	snapMembers := make(map[int64][]types.FileInfo, len(s.members))
	for id, m := range s.members {
		snapMembers[id] = append([]types.FileInfo(nil), m...)
	}
	snapSets := make(map[int64]bool, len(s.sets))
	for id := range s.sets {
		snapSets[id] = true
	}
	snapNextID, snapNextSetID := s.nextID, s.nextSetID
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.records, s.members, s.sets = snapRecords, snapMembers, snapSets
		s.nextID, s.nextSetID = snapNextID, snapNextSetID
		s.mu.Unlock()
		return err
	}
	return nil
}

// fakeSets is the AlternateSetRepo view of the store
type fakeSets struct{ s *fakeStore }

func (f fakeSets) Create(_ context.Context) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.nextSetID++
	f.s.sets[f.s.nextSetID] = true
	return f.s.nextSetID, nil
}

func (f fakeSets) Delete(_ context.Context, id int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.sets, id)
	return nil
}

// engine bundles a use case with its store and the default catalogs
type engine struct {
	store      *fakeStore
	uc         *CatalogRecordUseCase
	resolver   *Resolver
	validator  *UniquenessValidator
	sets       *AlternateSetManager
	aggregator *Aggregator
	forks      *VersionForkEngine
	locker     *recordingLocker

	versioned  *types.DataCatalog
	other      *types.DataCatalog
	third      *types.DataCatalog
	quarantine *types.DataCatalog
	harvested  *types.DataCatalog
	flat       *types.DataCatalog
}

// recordingLocker runs fn directly and remembers the keys of every call
type recordingLocker struct {
	mu    sync.Mutex
	calls [][]string
}

func (l *recordingLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.calls = append(l.calls, append([]string(nil), keys...))
	l.mu.Unlock()
	return fn(ctx)
}

func (l *recordingLocker) last() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.calls) == 0 {
		return nil
	}
	return l.calls[len(l.calls)-1]
}

type engineOption func(*engineConfig)

type engineConfig struct{ inheritOnFork bool }

func withInheritOnFork() engineOption {
	return func(c *engineConfig) { c.inheritOnFork = true }
}

func newEngine(t *testing.T, opts ...engineOption) *engine {
	t.Helper()
	cfg := engineConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	log := logger.NewNop()
	s := newFakeStore()
	e := &engine{store: s}
	e.versioned = s.addCatalog(types.DataCatalog{Identifier: "urn:nbn:fi:att:data-catalog-ida", SupportsVersioning: true})
	e.other = s.addCatalog(types.DataCatalog{Identifier: "urn:nbn:fi:att:data-catalog-pas", SupportsVersioning: true})
	e.third = s.addCatalog(types.DataCatalog{Identifier: "urn:nbn:fi:att:data-catalog-ext"})
	e.quarantine = s.addCatalog(types.DataCatalog{Identifier: "urn:nbn:fi:att:data-catalog-att", IsQuarantine: true, SupportsVersioning: true})
	e.harvested = s.addCatalog(types.DataCatalog{Identifier: "urn:nbn:fi:att:data-catalog-harvest-syke", IsHarvested: true})
	e.flat = s.addCatalog(types.DataCatalog{Identifier: "urn:nbn:fi:att:data-catalog-flat"})

	e.resolver = NewResolver(s, s)
	e.validator = NewUniquenessValidator(s, s, log)
	e.sets = NewAlternateSetManager(s, fakeSets{s}, s, log)
	e.aggregator = NewAggregator(s, s, log)
	e.forks = NewVersionForkEngine(s, s, e.validator, e.sets, e.aggregator, cfg.inheritOnFork, log)
	e.locker = &recordingLocker{}
	e.uc = NewCatalogRecordUseCase(s, e.locker, s, s, s, e.resolver, e.validator, e.sets, e.aggregator, e.forks, s, log)
	return e
}

var testActor = types.Actor{User: "tester", Service: "qvain"}

func rd(t *testing.T, doc string) types.ResearchDataset {
	t.Helper()
	var out types.ResearchDataset
	require.NoError(t, out.UnmarshalJSON([]byte(doc)))
	return out
}

func (e *engine) create(t *testing.T, cat *types.DataCatalog, doc string) *types.DatasetRecord {
	t.Helper()
	rec, err := e.uc.Create(context.Background(), testActor, &types.CreateRequest{
		DataCatalog:     cat.Identifier,
		ResearchDataset: rd(t, doc),
	})
	require.NoError(t, err)
	return rec
}

func requireCode(t *testing.T, err error, code int) *apperrors.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code, "unexpected error: %v", err)
	return appErr
}
