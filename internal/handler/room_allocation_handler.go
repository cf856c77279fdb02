package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/dto"
	"github.com/noah-isme/timetable-allocator/internal/service"
	"github.com/noah-isme/timetable-allocator/pkg/response"
)

type roomAllocations interface {
	SetMode(ctx context.Context, req dto.SetModeRequest) (*allocator.BatchAssignment, error)
	AssignRoom(ctx context.Context, req dto.AssignRoomRequest) (*dto.AssignRoomResponse, error)
	AutoAssignRooms(ctx context.Context) (*allocator.RoomAutoAssignResult, error)
	ResetRooms(ctx context.Context) error
	Revalidate(ctx context.Context) (*dto.RevalidateResponse, error)
	Pairings(ctx context.Context) ([]allocator.BatchAssignment, error)
	Conflicts(ctx context.Context) ([]allocator.Conflict, error)
	RoomProgress(ctx context.Context) (*dto.RoomProgressResponse, error)
}

// RoomAllocationHandler exposes the room-batch allocator.
type RoomAllocationHandler struct {
	service roomAllocations
}

// NewRoomAllocationHandler constructs the handler.
func NewRoomAllocationHandler(svc *service.AllocationService) *RoomAllocationHandler {
	return &RoomAllocationHandler{service: svc}
}

// Pairings godoc
// @Summary List batch-subject pairings with room, teacher and mode
// @Tags Room Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/rooms/pairings [get]
func (h *RoomAllocationHandler) Pairings(c *gin.Context) {
	list, err := h.service.Pairings(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

// Conflicts godoc
// @Summary List active room type conflicts
// @Tags Room Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/rooms/conflicts [get]
func (h *RoomAllocationHandler) Conflicts(c *gin.Context) {
	list, err := h.service.Conflicts(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, map[string]interface{}{"count": len(list)})
}

// Progress godoc
// @Summary Room allocation progress and usage
// @Tags Room Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/rooms/progress [get]
func (h *RoomAllocationHandler) Progress(c *gin.Context) {
	progress, err := h.service.RoomProgress(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress)
}

// Mode godoc
// @Summary Switch a pairing between combined and separate attendance
// @Description The recorded room is not re-checked; call revalidate afterwards.
// @Tags Room Allocation
// @Accept json
// @Produce json
// @Param payload body dto.SetModeRequest true "Mode change"
// @Success 200 {object} response.Envelope
// @Router /allocations/rooms/mode [post]
func (h *RoomAllocationHandler) Mode(c *gin.Context) {
	var req dto.SetModeRequest
	if !bindJSON(c, &req, "invalid batch mode payload", false) {
		return
	}
	pairing, err := h.service.SetMode(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pairing)
}

// Assign godoc
// @Summary Assign a room to a pairing
// @Description Undersized rooms are rejected with 422. Lab/theory mismatches are stored and reported as a conflict.
// @Tags Room Allocation
// @Accept json
// @Produce json
// @Param payload body dto.AssignRoomRequest true "Room assignment"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /allocations/rooms/assign [post]
func (h *RoomAllocationHandler) Assign(c *gin.Context) {
	var req dto.AssignRoomRequest
	if !bindJSON(c, &req, "invalid room assignment payload", false) {
		return
	}
	result, err := h.service.AssignRoom(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Auto godoc
// @Summary Fill every pairing without a room using the tightest compatible room
// @Tags Room Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/rooms/auto [post]
func (h *RoomAllocationHandler) Auto(c *gin.Context) {
	result, err := h.service.AutoAssignRooms(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Reset godoc
// @Summary Clear every room and restore default modes
// @Tags Room Allocation
// @Success 204
// @Router /allocations/rooms/reset [post]
func (h *RoomAllocationHandler) Reset(c *gin.Context) {
	if err := h.service.ResetRooms(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Revalidate godoc
// @Summary Recompute conflicts and list undersized rooms
// @Tags Room Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/rooms/revalidate [post]
func (h *RoomAllocationHandler) Revalidate(c *gin.Context) {
	result, err := h.service.Revalidate(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
