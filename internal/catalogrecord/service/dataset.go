package service

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/biz"
	"github.com/CSCfi/fairdata-metax-sub001/internal/catalogrecord/types"
	apperrors "github.com/CSCfi/fairdata-metax-sub001/internal/pkg/errors"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/logger"
	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/response"
)

// DatasetService exposes the catalog record lifecycle over HTTP
type DatasetService struct {
	uc     *biz.CatalogRecordUseCase
	logger *logger.Logger
}

func NewDatasetService(uc *biz.CatalogRecordUseCase, log *logger.Logger) *DatasetService {
	return &DatasetService{uc: uc, logger: log}
}

// RegisterRoutes mounts the dataset endpoints. Identifiers containing a
// slash must be sent percent-encoded.
func (s *DatasetService) RegisterRoutes(r *gin.RouterGroup) {
	datasets := r.Group("/datasets")
	datasets.POST("", s.CreateDataset)
	datasets.GET("/:identifier", s.GetDataset)
	datasets.PUT("/:identifier", s.UpdateDataset)
	datasets.DELETE("/:identifier", s.DeleteDataset)
	datasets.GET("/:identifier/versions", s.ListVersions)
	datasets.GET("/:identifier/alternate_records", s.ListAlternateRecords)
	datasets.POST("/:identifier/files", s.AddFiles)
}

// CreateDataset POST /datasets
func (s *DatasetService) CreateDataset(c *gin.Context) {
	var req CreateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	catalog, err := catalogIdentifier(req.DataCatalog)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	rd, err := researchDataset(req.ResearchDataset)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	rec, err := s.uc.Create(c.Request.Context(), actorFrom(c), &types.CreateRequest{
		DataCatalog:     catalog,
		ResearchDataset: *rd,
		CumulativeState: req.CumulativeState,
	})
	if err != nil {
		s.handleError(c, "create", err)
		return
	}

	response.Created(c, toDatasetResponse(rec))
}

// GetDataset GET /datasets/:identifier?removed=true
func (s *DatasetService) GetDataset(c *gin.Context) {
	includeRemoved, _ := strconv.ParseBool(c.DefaultQuery("removed", "false"))

	rec, err := s.uc.Get(c.Request.Context(), c.Param("identifier"), includeRemoved)
	if err != nil {
		s.handleError(c, "get", err)
		return
	}

	response.Success(c, toDatasetResponse(rec))
}

// UpdateDataset PUT /datasets/:identifier?preserve_version=true
func (s *DatasetService) UpdateDataset(c *gin.Context) {
	var req UpdateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	update := &types.UpdateRequest{
		PreservationState:       req.PreservationState,
		PreservationDescription: req.PreservationDescription,
		CumulativeState:         req.CumulativeState,
	}
	update.PreserveVersion, _ = strconv.ParseBool(c.DefaultQuery("preserve_version", "false"))

	if len(req.DataCatalog) > 0 {
		catalog, err := catalogIdentifier(req.DataCatalog)
		if err != nil {
			response.HandleError(c, err)
			return
		}
		update.DataCatalog = catalog
	}
	if len(req.ResearchDataset) > 0 {
		rd, err := researchDataset(req.ResearchDataset)
		if err != nil {
			response.HandleError(c, err)
			return
		}
		update.ResearchDataset = rd
	}

	result, err := s.uc.Update(c.Request.Context(), actorFrom(c), c.Param("identifier"), update)
	if err != nil {
		s.handleError(c, "update", err)
		return
	}

	response.Success(c, toUpdateResponse(result))
}

// DeleteDataset DELETE /datasets/:identifier
func (s *DatasetService) DeleteDataset(c *gin.Context) {
	if err := s.uc.Delete(c.Request.Context(), actorFrom(c), c.Param("identifier")); err != nil {
		s.handleError(c, "delete", err)
		return
	}
	response.NoContent(c)
}

// ListVersions GET /datasets/:identifier/versions
func (s *DatasetService) ListVersions(c *gin.Context) {
	chain, err := s.uc.Versions(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		s.handleError(c, "versions", err)
		return
	}

	items := make([]*VersionResponse, len(chain))
	for i, rec := range chain {
		items[i] = toVersionResponse(rec)
	}
	response.Success(c, items)
}

// ListAlternateRecords GET /datasets/:identifier/alternate_records
func (s *DatasetService) ListAlternateRecords(c *gin.Context) {
	urns, err := s.uc.AlternateRecords(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		s.handleError(c, "alternate_records", err)
		return
	}
	if urns == nil {
		urns = []string{}
	}
	response.Success(c, urns)
}

// AddFiles POST /datasets/:identifier/files
func (s *DatasetService) AddFiles(c *gin.Context) {
	var req AddFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := s.uc.AddFiles(c.Request.Context(), actorFrom(c), c.Param("identifier"), req.Files, req.Directories)
	if err != nil {
		s.handleError(c, "add_files", err)
		return
	}

	response.Success(c, toUpdateResponse(result))
}

// handleError logs unexpected failures; client rejections are logged by the
// request logger already
func (s *DatasetService) handleError(c *gin.Context, op string, err error) {
	if !apperrors.IsClientError(apperrors.ExtractCode(err)) {
		s.logger.WithContext(c.Request.Context()).Error("dataset operation failed",
			zap.String("operation", op),
			zap.String("identifier", c.Param("identifier")),
			zap.Error(err),
		)
	}
	response.HandleError(c, err)
}

func actorFrom(c *gin.Context) types.Actor {
	return types.Actor{
		User:    c.GetHeader(HeaderUser),
		Service: c.GetHeader(HeaderService),
	}
}

// catalogIdentifier accepts "urn:..." or {"identifier": "urn:..."}
func catalogIdentifier(raw json.RawMessage) (string, error) {
	v := gjson.ParseBytes(raw)
	var id string
	switch {
	case v.Type == gjson.String:
		id = v.String()
	case v.IsObject():
		id = v.Get("identifier").String()
	}
	if id == "" {
		return "", apperrors.NewValidationError(biz.FieldDataCatalog, "data_catalog must be an identifier or an object with one")
	}
	return id, nil
}

func researchDataset(raw json.RawMessage) (*types.ResearchDataset, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, apperrors.NewValidationError(biz.FieldResearchDataset, "research_dataset must be an object")
	}
	var rd types.ResearchDataset
	if err := json.Unmarshal(raw, &rd); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInvalidParams, "malformed research_dataset").
			WithField(biz.FieldResearchDataset)
	}
	return &rd, nil
}

func toUpdateResponse(result *types.UpdateResult) *UpdateDatasetResponse {
	return &UpdateDatasetResponse{
		Record:            toDatasetResponse(result.Record),
		Previous:          toDatasetResponse(result.Previous),
		NewVersionCreated: result.Forked,
	}
}
