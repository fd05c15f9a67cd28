package types

import "time"

// CreateRequest carries a new dataset
type CreateRequest struct {
	DataCatalog     string
	ResearchDataset ResearchDataset
	CumulativeState int
}

// UpdateRequest carries a full replacement of the metadata document plus
// optional administrative changes. A nil ResearchDataset leaves the
// document untouched.
type UpdateRequest struct {
	DataCatalog     string
	ResearchDataset *ResearchDataset
	// PreserveVersion updates in place even where a new version would be created
	PreserveVersion bool

	PreservationState       *int
	PreservationDescription *string
	CumulativeState         *int
}

// UpdateResult is the outcome of an update. Previous is set only when a new
// version was created.
type UpdateResult struct {
	Record   *DatasetRecord `json:"record"`
	Previous *DatasetRecord `json:"previous,omitempty"`
	Forked   bool           `json:"new_version_created"`
}

// EventType names a record lifecycle event
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is emitted after a create, update or delete commits
type Event struct {
	Type        EventType
	Record      *DatasetRecord
	DataCatalog string
	OccurredAt  time.Time
}
