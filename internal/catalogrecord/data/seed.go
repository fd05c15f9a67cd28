package data

import (
	"context"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
)

// CatalogSeed is the YAML form of the data catalogs a deployment starts with
//
//	catalogs:
//	  - identifier: urn:nbn:fi:att:data-catalog-ida
//	    title: IDA
//	    dataset_versioning: true
//	    date_created: 2018-01-01T00:00:00Z
type CatalogSeed struct {
	Catalogs []CatalogSeedEntry `yaml:"catalogs"`
}

type CatalogSeedEntry struct {
	Identifier        string    `yaml:"identifier"`
	Title             string    `yaml:"title"`
	DatasetVersioning bool      `yaml:"dataset_versioning"`
	IsQuarantine      bool      `yaml:"is_quarantine"`
	Harvested         bool      `yaml:"harvested"`
	DateCreated       time.Time `yaml:"date_created"`
}

// LoadCatalogSeed decodes a seed file. Unknown keys are rejected.
func LoadCatalogSeed(r io.Reader) ([]types.DataCatalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed CatalogSeed
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode catalog seed: %w", err)
	}

	seen := make(map[string]struct{}, len(seed.Catalogs))
	out := make([]types.DataCatalog, 0, len(seed.Catalogs))
	for i, e := range seed.Catalogs {
		if e.Identifier == "" {
			return nil, fmt.Errorf("catalog seed entry %d has no identifier", i)
		}
		if _, dup := seen[e.Identifier]; dup {
			return nil, fmt.Errorf("catalog seed lists %s twice", e.Identifier)
		}
		seen[e.Identifier] = struct{}{}

		out = append(out, types.DataCatalog{
			Identifier:         e.Identifier,
			Title:              e.Title,
			SupportsVersioning: e.DatasetVersioning,
			IsQuarantine:       e.IsQuarantine,
			IsHarvested:        e.Harvested,
			DateCreated:        e.DateCreated,
		})
	}
	return out, nil
}

// SeedCatalogs upserts every catalog and returns how many were written
func SeedCatalogs(ctx context.Context, repo *CatalogRepo, catalogs []types.DataCatalog) (int, error) {
	for i := range catalogs {
		if err := repo.Save(ctx, &catalogs[i]); err != nil {
			return i, err
		}
	}
	return len(catalogs), nil
}
