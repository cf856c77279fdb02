package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-allocator/internal/dto"
	"github.com/noah-isme/timetable-allocator/internal/service"
	"github.com/noah-isme/timetable-allocator/pkg/response"
)

type rosterSession interface {
	Roster() (*service.LoadedRoster, error)
	Reload(ctx context.Context, req dto.ReloadRosterRequest) (*dto.RosterSummary, error)
}

// RosterHandler exposes the roster backing the active allocation session.
type RosterHandler struct {
	service rosterSession
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(svc *service.AllocationService) *RosterHandler {
	return &RosterHandler{service: svc}
}

// Get godoc
// @Summary Show the roster of the active allocation session
// @Tags Roster
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /roster [get]
func (h *RosterHandler) Get(c *gin.Context) {
	roster, err := h.service.Roster()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, map[string]interface{}{
		"semester":  roster.Semester,
		"loaded_at": roster.LoadedAt,
	})
}

// Reload godoc
// @Summary Reload the roster and start a fresh allocation session
// @Description Drops cached roster reads and discards every current assignment.
// @Tags Roster
// @Accept json
// @Produce json
// @Param payload body dto.ReloadRosterRequest false "Semester filter"
// @Success 200 {object} response.Envelope
// @Router /roster/reload [post]
func (h *RosterHandler) Reload(c *gin.Context) {
	var req dto.ReloadRosterRequest
	if !bindJSON(c, &req, "invalid roster reload payload", true) {
		return
	}
	summary, err := h.service.Reload(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}
