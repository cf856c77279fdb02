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

type teacherAllocations interface {
	AssignTeacher(ctx context.Context, req dto.AssignTeacherRequest) (*allocator.Assignment, error)
	UnassignTeacher(ctx context.Context, req dto.TeacherSubjectRequest) (bool, error)
	TogglePriority(ctx context.Context, req dto.TeacherSubjectRequest) (*allocator.Assignment, bool, error)
	AutoAssignTeachers(ctx context.Context) (*allocator.AutoAssignResult, error)
	ResetTeachers(ctx context.Context) error
	TeacherAssignments(ctx context.Context) ([]allocator.SubjectAllocation, error)
	Workloads(ctx context.Context) ([]allocator.Workload, error)
	Workload(ctx context.Context, teacherID string) (*allocator.Workload, error)
	TeacherProgress(ctx context.Context) (*dto.TeacherProgressResponse, error)
}

// TeacherAllocationHandler exposes the teacher-load allocator.
type TeacherAllocationHandler struct {
	service teacherAllocations
}

// NewTeacherAllocationHandler constructs the handler.
func NewTeacherAllocationHandler(svc *service.AllocationService) *TeacherAllocationHandler {
	return &TeacherAllocationHandler{service: svc}
}

// Assignments godoc
// @Summary List subjects with their assigned teachers
// @Tags Teacher Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/teachers/assignments [get]
func (h *TeacherAllocationHandler) Assignments(c *gin.Context) {
	list, err := h.service.TeacherAssignments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

// Workloads godoc
// @Summary List assigned and remaining hours per teacher
// @Tags Teacher Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/teachers/workloads [get]
func (h *TeacherAllocationHandler) Workloads(c *gin.Context) {
	list, err := h.service.Workloads(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

// Workload godoc
// @Summary Show one teacher's workload
// @Tags Teacher Allocation
// @Produce json
// @Param id path string true "Teacher MIS id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /allocations/teachers/workloads/{id} [get]
func (h *TeacherAllocationHandler) Workload(c *gin.Context) {
	w, err := h.service.Workload(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, w)
}

// Progress godoc
// @Summary Teacher allocation progress
// @Tags Teacher Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/teachers/progress [get]
func (h *TeacherAllocationHandler) Progress(c *gin.Context) {
	progress, err := h.service.TeacherProgress(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress)
}

// Assign godoc
// @Summary Assign a teacher to a subject
// @Description Hours default to min(subject hours, 4). Rejections carry remaining and requested hours.
// @Tags Teacher Allocation
// @Accept json
// @Produce json
// @Param payload body dto.AssignTeacherRequest true "Assignment"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /allocations/teachers/assign [post]
func (h *TeacherAllocationHandler) Assign(c *gin.Context) {
	var req dto.AssignTeacherRequest
	if !bindJSON(c, &req, "invalid teacher assignment payload", false) {
		return
	}
	assignment, err := h.service.AssignTeacher(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Unassign godoc
// @Summary Remove a teacher from a subject
// @Tags Teacher Allocation
// @Accept json
// @Produce json
// @Param payload body dto.TeacherSubjectRequest true "Teacher and subject"
// @Success 200 {object} response.Envelope
// @Router /allocations/teachers/unassign [post]
func (h *TeacherAllocationHandler) Unassign(c *gin.Context) {
	var req dto.TeacherSubjectRequest
	if !bindJSON(c, &req, "invalid unassign payload", false) {
		return
	}
	removed, err := h.service.UnassignTeacher(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"removed": removed})
}

// Priority godoc
// @Summary Toggle the priority flag of an assignment
// @Tags Teacher Allocation
// @Accept json
// @Produce json
// @Param payload body dto.TeacherSubjectRequest true "Teacher and subject"
// @Success 200 {object} response.Envelope
// @Router /allocations/teachers/priority [post]
func (h *TeacherAllocationHandler) Priority(c *gin.Context) {
	var req dto.TeacherSubjectRequest
	if !bindJSON(c, &req, "invalid priority payload", false) {
		return
	}
	assignment, toggled, err := h.service.TogglePriority(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"toggled": toggled, "assignment": assignment})
}

// Auto godoc
// @Summary Rebuild every teacher assignment from preferences
// @Tags Teacher Allocation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /allocations/teachers/auto [post]
func (h *TeacherAllocationHandler) Auto(c *gin.Context) {
	result, err := h.service.AutoAssignTeachers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Reset godoc
// @Summary Clear every teacher assignment
// @Tags Teacher Allocation
// @Success 204
// @Router /allocations/teachers/reset [post]
func (h *TeacherAllocationHandler) Reset(c *gin.Context) {
	if err := h.service.ResetTeachers(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
