package data

import (
	"time"

	"gorm.io/datatypes"
)

// DataCatalogPO is a data catalog and its identifier policy
type DataCatalogPO struct {
	ID                int64     `gorm:"primaryKey;autoIncrement"`
	Identifier        string    `gorm:"column:identifier;size:255;not null;uniqueIndex:idx_dc_identifier"`
	Title             string    `gorm:"column:title;size:255"`
	DatasetVersioning bool      `gorm:"column:dataset_versioning;not null;default:false"`
	IsQuarantine      bool      `gorm:"column:is_quarantine;not null;default:false"`
	Harvested         bool      `gorm:"column:harvested;not null;default:false"`
	DateCreated       time.Time `gorm:"column:date_created;not null"`
}

func (DataCatalogPO) TableName() string {
	return "data_catalogs"
}

// CatalogRecordPO is one dataset version. urn_identifier carries the unique
// index that backs identifier immutability.
type CatalogRecordPO struct {
	ID                   int64          `gorm:"primaryKey;autoIncrement"`
	URNIdentifier        string         `gorm:"column:urn_identifier;size:255;not null;uniqueIndex:idx_cr_urn"`
	PreferredIdentifier  string         `gorm:"column:preferred_identifier;size:1024;not null;index:idx_cr_pid"`
	DataCatalogID        int64          `gorm:"column:data_catalog_id;not null;index:idx_cr_catalog"`
	ResearchDataset      datatypes.JSON `gorm:"column:research_dataset;not null"`
	NextVersionID        *int64         `gorm:"column:next_version_id"`
	PreviousVersionID    *int64         `gorm:"column:previous_version_id"`
	AlternateRecordSetID *int64         `gorm:"column:alternate_record_set_id;index:idx_cr_alt_set"`
	Removed              bool           `gorm:"column:removed;not null;default:false;index:idx_cr_removed"`
	DateRemoved          *time.Time     `gorm:"column:date_removed"`

	TotalByteSize int64 `gorm:"column:total_byte_size;not null;default:0"`
	FileCount     int64 `gorm:"column:file_count;not null;default:0"`

	PreservationState       int    `gorm:"column:preservation_state;not null;default:0"`
	PreservationDescription string `gorm:"column:preservation_description;type:text"`
	CumulativeState         int    `gorm:"column:cumulative_state;not null;default:0"`

	DateCreated     time.Time `gorm:"column:date_created;not null"`
	DateModified    time.Time `gorm:"column:date_modified;not null"`
	UserCreated     string    `gorm:"column:user_created;size:200"`
	UserModified    string    `gorm:"column:user_modified;size:200"`
	ServiceCreated  string    `gorm:"column:service_created;size:200"`
	ServiceModified string    `gorm:"column:service_modified;size:200"`
}

func (CatalogRecordPO) TableName() string {
	return "catalog_records"
}

// OtherIdentifierPO indexes research_dataset.other_identifier for lookups
type OtherIdentifierPO struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	RecordID        int64  `gorm:"column:record_id;not null;index:idx_oi_record"`
	LocalIdentifier string `gorm:"column:local_identifier;size:1024;not null;index:idx_oi_local"`
}

func (OtherIdentifierPO) TableName() string {
	return "catalog_record_other_identifiers"
}

// DatasetFilePO is one file of one dataset version
type DatasetFilePO struct {
	RecordID       int64  `gorm:"column:record_id;primaryKey;autoIncrement:false"`
	FileIdentifier string `gorm:"column:file_identifier;primaryKey;size:255"`
	// ByteSize as resolved when the file joined the version
	ByteSize int64 `gorm:"column:byte_size;not null;default:0"`
}

func (DatasetFilePO) TableName() string {
	return "catalog_record_files"
}

// AlternateRecordSetPO groups records across catalogs. Members reference it
// from catalog_records.
type AlternateRecordSetPO struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (AlternateRecordSetPO) TableName() string {
	return "alternate_record_sets"
}

// FilePO is a file known to the storage registry
type FilePO struct {
	Identifier string `gorm:"column:identifier;primaryKey;size:255"`
	FilePath   string `gorm:"column:file_path;size:4096;not null;index:idx_file_path"`
	ByteSize   int64  `gorm:"column:byte_size;not null;default:0"`
	Project    string `gorm:"column:project_identifier;size:200;index:idx_file_project"`
	Removed    bool   `gorm:"column:removed;not null;default:false"`
}

func (FilePO) TableName() string {
	return "files"
}

// DirectoryPO is a directory known to the storage registry. Its files are
// the files of the same project below DirectoryPath.
type DirectoryPO struct {
	Identifier    string `gorm:"column:identifier;primaryKey;size:255"`
	DirectoryPath string `gorm:"column:directory_path;size:4096;not null"`
	Project       string `gorm:"column:project_identifier;size:200"`
}

func (DirectoryPO) TableName() string {
	return "directories"
}

// Models lists every table for migrations
func Models() []interface{} {
	return []interface{}{
		&DataCatalogPO{},
		&CatalogRecordPO{},
		&OtherIdentifierPO{},
		&DatasetFilePO{},
		&AlternateRecordSetPO{},
		&FilePO{},
		&DirectoryPO{},
	}
}
