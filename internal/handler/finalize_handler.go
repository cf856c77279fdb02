package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/dto"
	"github.com/noah-isme/timetable-allocator/internal/models"
	"github.com/noah-isme/timetable-allocator/internal/service"
	appErrors "github.com/noah-isme/timetable-allocator/pkg/errors"
	"github.com/noah-isme/timetable-allocator/pkg/response"
)

type snapshotReader interface {
	Snapshot(ctx context.Context) (*allocator.Snapshot, *service.LoadedRoster, error)
}

type finalizer interface {
	Finalize(ctx context.Context, req dto.FinalizeRequest, actorID string) (*dto.FinalizeResponse, error)
	Get(ctx context.Context, id string) (*models.AllocationSnapshotDetail, error)
	List(ctx context.Context, limit int) ([]models.AllocationSnapshot, error)
}

type exporter interface {
	Export(ctx context.Context, snapshotID string, req dto.ExportRequest) (*dto.ExportResponse, error)
	Open(token string) (*service.Download, error)
}

// FinalizeHandler exposes snapshot, finalize and export endpoints.
type FinalizeHandler struct {
	snapshots snapshotReader
	finalizer finalizer
	exports   exporter
}

// NewFinalizeHandler constructs the handler.
func NewFinalizeHandler(allocations *service.AllocationService, finalize *service.FinalizeService, exports *service.ExportService) *FinalizeHandler {
	return &FinalizeHandler{snapshots: allocations, finalizer: finalize, exports: exports}
}

// Snapshot godoc
// @Summary Export the current allocation state without persisting it
// @Tags Finalize
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/snapshot [get]
func (h *FinalizeHandler) Snapshot(c *gin.Context) {
	snapshot, _, err := h.snapshots.Snapshot(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot)
}

// Finalize godoc
// @Summary Persist the current allocation as a new snapshot version
// @Tags Finalize
// @Accept json
// @Produce json
// @Param payload body dto.FinalizeRequest false "Finalize options"
// @Success 201 {object} response.Envelope
// @Router /allocations/finalize [post]
func (h *FinalizeHandler) Finalize(c *gin.Context) {
	var req dto.FinalizeRequest
	if !bindJSON(c, &req, "invalid finalize payload", true) {
		return
	}
	result, err := h.finalizer.Finalize(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List finalized snapshots, newest first
// @Tags Finalize
// @Produce json
// @Param limit query int false "Maximum results (default 20)"
// @Success 200 {object} response.Envelope
// @Router /allocations/finalized [get]
func (h *FinalizeHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a number"))
			return
		}
		limit = parsed
	}
	list, err := h.finalizer.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

// Get godoc
// @Summary Show a finalized snapshot with its rows
// @Tags Finalize
// @Produce json
// @Param id path string true "Snapshot ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /allocations/finalized/{id} [get]
func (h *FinalizeHandler) Get(c *gin.Context) {
	detail, err := h.finalizer.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// Export godoc
// @Summary Render a finalized snapshot to CSV or PDF
// @Tags Finalize
// @Accept json
// @Produce json
// @Param id path string true "Snapshot ID"
// @Param payload body dto.ExportRequest true "Export format"
// @Success 201 {object} response.Envelope
// @Router /allocations/finalized/{id}/export [post]
func (h *FinalizeHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if !bindJSON(c, &req, "invalid export payload", false) {
		return
	}
	if req.Format != "csv" && req.Format != "pdf" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	result, err := h.exports.Export(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a rendered export through its signed token
// @Tags Finalize
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /exports/download [get]
func (h *FinalizeHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.exports.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, map[string]string{
		"Content-Disposition": `attachment; filename="` + download.Filename + `"`,
	})
}
