package service

import (
	"encoding/json"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
)

// Headers identifying the caller. Authentication happens upstream.
const (
	HeaderUser    = "X-Metax-User"
	HeaderService = "X-Metax-Service"
)

// CreateDatasetRequest is the body of POST /datasets. data_catalog is either
// the catalog identifier or an object carrying it.
type CreateDatasetRequest struct {
	DataCatalog     json.RawMessage `json:"data_catalog" binding:"required"`
	ResearchDataset json.RawMessage `json:"research_dataset" binding:"required"`
	CumulativeState int             `json:"cumulative_state" binding:"min=0,max=2"`
}

// UpdateDatasetRequest is the body of PUT /datasets/:identifier. Absent
// fields are left unchanged.
type UpdateDatasetRequest struct {
	DataCatalog             json.RawMessage `json:"data_catalog"`
	ResearchDataset         json.RawMessage `json:"research_dataset"`
	PreservationState       *int            `json:"preservation_state" binding:"omitempty,min=0"`
	PreservationDescription *string         `json:"preservation_description"`
	CumulativeState         *int            `json:"cumulative_state" binding:"omitempty,min=0,max=2"`
}

// AddFilesRequest is the body of POST /datasets/:identifier/files
type AddFilesRequest struct {
	Files       []types.DatasetFile      `json:"files"`
	Directories []types.DatasetDirectory `json:"directories"`
}

// DatasetResponse is a record with its derived chain state
type DatasetResponse struct {
	*types.DatasetRecord
	State types.State `json:"state"`
}

// UpdateDatasetResponse reports the record an update produced
type UpdateDatasetResponse struct {
	Record            *DatasetResponse `json:"record"`
	Previous          *DatasetResponse `json:"previous,omitempty"`
	NewVersionCreated bool             `json:"new_version_created"`
}

// VersionResponse is one entry of a version chain listing
type VersionResponse struct {
	Identifier          string      `json:"identifier"`
	PreferredIdentifier string      `json:"preferred_identifier"`
	DateCreated         string      `json:"date_created"`
	Removed             bool        `json:"removed"`
	State               types.State `json:"state"`
}

func toDatasetResponse(rec *types.DatasetRecord) *DatasetResponse {
	if rec == nil {
		return nil
	}
	return &DatasetResponse{DatasetRecord: rec, State: rec.State()}
}

func toVersionResponse(rec *types.DatasetRecord) *VersionResponse {
	return &VersionResponse{
		Identifier:          rec.URNIdentifier,
		PreferredIdentifier: rec.PreferredIdentifier,
		DateCreated:         rec.DateCreated.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Removed:             rec.Removed,
		State:               rec.State(),
	}
}
