package data

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/biz"
	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/database"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/minio"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/workerpool"
)

// DBFileRegistry resolves files from the files and directories tables
type DBFileRegistry struct {
	db *database.DB
}

func NewDBFileRegistry(db *database.DB) *DBFileRegistry {
	return &DBFileRegistry{db: db}
}

var _ biz.FileRegistry = (*DBFileRegistry)(nil)

// ResolveFiles fails with ErrFileNotFound naming every unknown or removed file
func (r *DBFileRegistry) ResolveFiles(ctx context.Context, identifiers []string) ([]types.FileInfo, error) {
	if len(identifiers) == 0 {
		return []types.FileInfo{}, nil
	}

	var pos []FilePO
	err := r.db.Conn(ctx).
		Where("identifier IN ?", identifiers).
		Where("removed = ?", false).
		Scopes(database.OrderBy("identifier", false)).
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve files: %w", err)
	}

	found := make(map[string]struct{}, len(pos))
	out := make([]types.FileInfo, 0, len(pos))
	for _, po := range pos {
		found[po.Identifier] = struct{}{}
		out = append(out, types.FileInfo{Identifier: po.Identifier, ByteSize: po.ByteSize, Path: po.FilePath})
	}

	if missing := missingIdentifiers(identifiers, found); len(missing) > 0 {
		return nil, apperrors.Newf(apperrors.ErrFileNotFound, "unknown files: %s", strings.Join(missing, ", ")).
			WithField(biz.FieldFiles)
	}
	return out, nil
}

// ResolveDirectories expands each directory to the live files of its project below its path
func (r *DBFileRegistry) ResolveDirectories(ctx context.Context, identifiers []string) ([]types.FileInfo, error) {
	if len(identifiers) == 0 {
		return []types.FileInfo{}, nil
	}

	var dirs []DirectoryPO
	if err := r.db.Conn(ctx).Where("identifier IN ?", identifiers).Find(&dirs).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve directories: %w", err)
	}

	found := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		found[d.Identifier] = struct{}{}
	}
	if missing := missingIdentifiers(identifiers, found); len(missing) > 0 {
		return nil, apperrors.Newf(apperrors.ErrDirectoryNotFound, "unknown directories: %s", strings.Join(missing, ", ")).
			WithField(biz.FieldDirectories)
	}

	var out []types.FileInfo
	for _, d := range dirs {
		prefix := strings.TrimSuffix(d.DirectoryPath, "/") + "/"

		var pos []FilePO
		err := r.db.Conn(ctx).
			Where("project_identifier = ?", d.Project).
			Where("file_path LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
			Where("removed = ?", false).
			Scopes(database.OrderBy("file_path", false)).
			Find(&pos).Error
		if err != nil {
			return nil, fmt.Errorf("failed to list files of directory %s: %w", d.Identifier, err)
		}
		for _, po := range pos {
			out = append(out, types.FileInfo{Identifier: po.Identifier, ByteSize: po.ByteSize, Path: po.FilePath})
		}
	}
	return out, nil
}

// objectStore is the part of the minio client the object store registry uses
type objectStore interface {
	StatObject(ctx context.Context, objectName string) (minio.ObjectInfo, error)
	ListObjects(ctx context.Context, prefix string) ([]minio.ObjectInfo, error)
}

// ObjectStoreFileRegistry resolves files straight from the storage bucket.
// A file identifier is an object key below the prefix and a directory
// identifier is a key prefix. Stat calls run on pool when one is given.
type ObjectStoreFileRegistry struct {
	store  objectStore
	prefix string
	pool   *workerpool.Pool
}

func NewObjectStoreFileRegistry(store objectStore, prefix string, pool *workerpool.Pool) *ObjectStoreFileRegistry {
	return &ObjectStoreFileRegistry{store: store, prefix: prefix, pool: pool}
}

var _ biz.FileRegistry = (*ObjectStoreFileRegistry)(nil)

func (r *ObjectStoreFileRegistry) ResolveFiles(ctx context.Context, identifiers []string) ([]types.FileInfo, error) {
	infos := make([]types.FileInfo, len(identifiers))
	missing := make([]bool, len(identifiers))

	err := r.run(ctx, len(identifiers), func(ctx context.Context, i int) error {
		info, err := r.store.StatObject(ctx, r.prefix+identifiers[i])
		if err != nil {
			if minio.IsNotFound(err) {
				missing[i] = true
				return nil
			}
			return apperrors.Wrap(err, apperrors.ErrFileRegistry)
		}
		infos[i] = types.FileInfo{Identifier: identifiers[i], ByteSize: info.Size, Path: "/" + info.Key}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]types.FileInfo, 0, len(identifiers))
	found := make(map[string]struct{}, len(identifiers))
	for i, info := range infos {
		if !missing[i] {
			out = append(out, info)
			found[info.Identifier] = struct{}{}
		}
	}
	if m := missingIdentifiers(identifiers, found); len(m) > 0 {
		return nil, apperrors.Newf(apperrors.ErrFileNotFound, "unknown files: %s", strings.Join(m, ", ")).
			WithField(biz.FieldFiles)
	}
	return out, nil
}

func (r *ObjectStoreFileRegistry) run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	if r.pool != nil {
		return r.pool.Run(ctx, n, task)
	}
	for i := 0; i < n; i++ {
		if err := task(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *ObjectStoreFileRegistry) ResolveDirectories(ctx context.Context, identifiers []string) ([]types.FileInfo, error) {
	var out []types.FileInfo
	for _, id := range identifiers {
		objects, err := r.store.ListObjects(ctx, r.prefix+strings.TrimSuffix(id, "/")+"/")
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrFileRegistry)
		}
		if len(objects) == 0 {
			return nil, apperrors.Newf(apperrors.ErrDirectoryNotFound, "unknown directory: %s", id).
				WithField(biz.FieldDirectories)
		}
		for _, o := range objects {
			out = append(out, types.FileInfo{
				Identifier: strings.TrimPrefix(o.Key, r.prefix),
				ByteSize:   o.Size,
				Path:       "/" + o.Key,
			})
		}
	}
	return out, nil
}

func missingIdentifiers(want []string, found map[string]struct{}) []string {
	var missing []string
	seen := map[string]struct{}{}
	for _, id := range want {
		if _, ok := found[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	sort.Strings(missing)
	return missing
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
