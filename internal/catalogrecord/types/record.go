package types

import "time"

// State of a record in its version chain
type State string

const (
	StateCurrent    State = "current"
	StateSuperseded State = "superseded"
	StateRemoved    State = "removed"
)

// Cumulative states of a dataset. Files can be added in place only while
// the record is cumulative.
const (
	CumulativeStateNo     = 0
	CumulativeStateYes    = 1
	CumulativeStateClosed = 2
)

// DatasetRecord is one version of one dataset in one data catalog
type DatasetRecord struct {
	ID                  int64           `json:"id"`
	URNIdentifier       string          `json:"identifier"`
	PreferredIdentifier string          `json:"preferred_identifier"`
	DataCatalogID       int64           `json:"data_catalog_id"`
	ResearchDataset     ResearchDataset `json:"research_dataset"`

	NextVersionID        *int64 `json:"next_version_id,omitempty"`
	PreviousVersionID    *int64 `json:"previous_version_id,omitempty"`
	AlternateRecordSetID *int64 `json:"alternate_record_set_id,omitempty"`

	Removed     bool       `json:"removed"`
	DateRemoved *time.Time `json:"date_removed,omitempty"`

	// Derived from file membership
	TotalByteSize int64 `json:"total_byte_size"`
	FileCount     int64 `json:"file_count"`

	// Administrative fields, never part of the metadata comparison
	PreservationState       int    `json:"preservation_state"`
	PreservationDescription string `json:"preservation_description,omitempty"`
	CumulativeState         int    `json:"cumulative_state"`

	DateCreated     time.Time `json:"date_created"`
	DateModified    time.Time `json:"date_modified"`
	UserCreated     string    `json:"user_created,omitempty"`
	UserModified    string    `json:"user_modified,omitempty"`
	ServiceCreated  string    `json:"service_created,omitempty"`
	ServiceModified string    `json:"service_modified,omitempty"`
}

// State derives the chain state
func (r *DatasetRecord) State() State {
	switch {
	case r.Removed:
		return StateRemoved
	case r.NextVersionID != nil:
		return StateSuperseded
	default:
		return StateCurrent
	}
}

// IsCurrent reports whether the record is the live head of its chain
func (r *DatasetRecord) IsCurrent() bool {
	return r.State() == StateCurrent
}

// IsCumulative reports whether files may be appended without a new version
func (r *DatasetRecord) IsCumulative() bool {
	return r.CumulativeState == CumulativeStateYes
}

// SetPreferredIdentifier keeps the column and the document in step
func (r *DatasetRecord) SetPreferredIdentifier(pid string) {
	r.PreferredIdentifier = pid
	r.ResearchDataset.PreferredIdentifier = pid
}

// Clone returns a deep copy
func (r *DatasetRecord) Clone() *DatasetRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.ResearchDataset = r.ResearchDataset.Clone()
	out.NextVersionID = cloneID(r.NextVersionID)
	out.PreviousVersionID = cloneID(r.PreviousVersionID)
	out.AlternateRecordSetID = cloneID(r.AlternateRecordSetID)
	if r.DateRemoved != nil {
		t := *r.DateRemoved
		out.DateRemoved = &t
	}
	return &out
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// DataCatalog is read-only reference data describing a catalog's policy
type DataCatalog struct {
	ID                 int64     `json:"id"`
	Identifier         string    `json:"identifier"`
	Title              string    `json:"title,omitempty"`
	SupportsVersioning bool      `json:"dataset_versioning"`
	IsQuarantine       bool      `json:"is_quarantine"`
	IsHarvested        bool      `json:"harvested"`
	DateCreated        time.Time `json:"date_created"`
}

// AlternateRecordSet groups records in different catalogs that describe the
// same logical dataset
type AlternateRecordSet struct {
	ID        int64   `json:"id"`
	RecordIDs []int64 `json:"record_ids"`
}

// FileInfo is what the file registry knows about one file
type FileInfo struct {
	Identifier string `json:"identifier"`
	ByteSize   int64  `json:"byte_size"`
	Path       string `json:"file_path"`
}

// Actor identifies who performs an operation
type Actor struct {
	User    string
	Service string
}

// Name returns the user, or the service when the call is service-to-service
func (a Actor) Name() string {
	if a.User != "" {
		return a.User
	}
	return a.Service
}
