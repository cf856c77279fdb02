package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/models"
	"github.com/noah-isme/timetable-allocator/internal/service"
)

type staticRoster struct {
	roster *service.LoadedRoster
}

func (s staticRoster) Load(ctx context.Context, semester int) (*service.LoadedRoster, error) {
	return s.roster, nil
}

func (s staticRoster) Reload(ctx context.Context, semester int) (*service.LoadedRoster, error) {
	return s.roster, nil
}

func handlerRoster() *service.LoadedRoster {
	divisions := []models.Division{{ID: "d-1", Name: "Division A", Semester: 3, Strength: 60}}
	return &service.LoadedRoster{
		Roster: allocator.Roster{
			Teachers: []models.Teacher{
				{MISID: "T1", Name: "Asha Rao", SubjectPreferences: []string{"CS301"}, MaxHours: 6},
			},
			Subjects: []models.Subject{
				{Code: "CS301", Name: "Operating Systems", TotalHours: 4},
				{Code: "CS302", Name: "Networks Lab", TotalHours: 3, RequiresLab: true},
			},
			Rooms: []models.Room{
				{ID: "r-1", RoomNo: "A-101", Capacity: 60, RoomType: models.RoomTypeClassroom},
				{ID: "r-3", RoomNo: "A-102", Capacity: 40, RoomType: models.RoomTypeClassroom},
			},
			Batches: allocator.BatchesFromDivisions(divisions),
		},
		Divisions: divisions,
		Semester:  3,
		LoadedAt:  time.Now().UTC(),
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

func newAllocationRouter(t *testing.T, start bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := service.NewAllocationService(staticRoster{roster: handlerRoster()}, nil, nil, nil)
	if start {
		_, err := svc.Start(context.Background(), 3)
		require.NoError(t, err)
	}

	teachers := NewTeacherAllocationHandler(svc)
	rooms := NewRoomAllocationHandler(svc)
	roster := NewRosterHandler(svc)

	router := gin.New()
	router.GET("/roster", roster.Get)
	router.POST("/roster/reload", roster.Reload)
	router.GET("/allocations/teachers/workloads/:id", teachers.Workload)
	router.POST("/allocations/teachers/assign", teachers.Assign)
	router.POST("/allocations/teachers/unassign", teachers.Unassign)
	router.POST("/allocations/teachers/priority", teachers.Priority)
	router.POST("/allocations/teachers/reset", teachers.Reset)
	router.GET("/allocations/rooms/pairings", rooms.Pairings)
	router.GET("/allocations/rooms/conflicts", rooms.Conflicts)
	router.POST("/allocations/rooms/assign", rooms.Assign)
	router.POST("/allocations/rooms/mode", rooms.Mode)
	router.POST("/allocations/rooms/revalidate", rooms.Revalidate)
	return router
}

func perform(router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestTeacherAllocationHandlerAssignFlow(t *testing.T) {
	router := newAllocationRouter(t, true)
	payload := map[string]interface{}{"subject_code": "CS301", "teacher_id": "T1"}

	w, env := perform(router, http.MethodPost, "/allocations/teachers/assign", payload)
	require.Equal(t, http.StatusCreated, w.Code)
	var assignment allocator.Assignment
	require.NoError(t, json.Unmarshal(env.Data, &assignment))
	assert.Equal(t, 4, assignment.Hours)

	w, env = perform(router, http.MethodPost, "/allocations/teachers/assign", payload)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_ASSIGNMENT", env.Error.Code)

	w, env = perform(router, http.MethodPost, "/allocations/teachers/assign", map[string]interface{}{"subject_code": "CS302", "teacher_id": "T1", "hours": 3})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", env.Error.Code)
	assert.Equal(t, float64(2), env.Error.Details["remaining"])
	assert.Equal(t, float64(3), env.Error.Details["requested"])

	w, env = perform(router, http.MethodPost, "/allocations/teachers/priority", map[string]string{"subject_code": "CS301", "teacher_id": "T1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"toggled":true`)

	w, _ = perform(router, http.MethodGet, "/allocations/teachers/workloads/T1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = perform(router, http.MethodPost, "/allocations/teachers/reset", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, env = perform(router, http.MethodPost, "/allocations/teachers/unassign", map[string]string{"subject_code": "CS301", "teacher_id": "T1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":false}`, string(env.Data))
}

func TestTeacherAllocationHandlerValidation(t *testing.T) {
	router := newAllocationRouter(t, true)

	w, env := perform(router, http.MethodPost, "/allocations/teachers/assign", map[string]string{"subject_code": "CS301"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, env = perform(router, http.MethodGet, "/allocations/teachers/workloads/T9", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "teacher", env.Error.Details["entity"])
}

func TestAllocationHandlersRequireSession(t *testing.T) {
	router := newAllocationRouter(t, false)

	w, env := perform(router, http.MethodGet, "/allocations/rooms/pairings", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ROSTER_NOT_LOADED", env.Error.Code)

	w, _ = perform(router, http.MethodPost, "/roster/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = perform(router, http.MethodGet, "/roster", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), env.Meta["semester"])
}

func TestRoomAllocationHandlerAssign(t *testing.T) {
	router := newAllocationRouter(t, true)

	w, env := perform(router, http.MethodPost, "/allocations/rooms/assign", map[string]string{"batch_key": "A-3", "subject_code": "CS301", "room_id": "r-3"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Room A-102 capacity (40) is insufficient for this batch (60 students)", env.Error.Message)
	assert.Equal(t, float64(40), env.Error.Details["capacity"])
	assert.Equal(t, float64(60), env.Error.Details["required"])

	w, env = perform(router, http.MethodPost, "/allocations/rooms/assign", map[string]string{"batch_key": "A-3", "subject_code": "CS302", "room_id": "r-3"})
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Pairing  allocator.BatchAssignment `json:"pairing"`
		Conflict *allocator.Conflict       `json:"conflict"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "r-3", result.Pairing.RoomID)
	require.NotNil(t, result.Conflict)
	assert.Equal(t, allocator.ConflictRoomTypeMismatch, result.Conflict.Reason)

	w, env = perform(router, http.MethodGet, "/allocations/rooms/conflicts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), env.Meta["count"])
}

func TestRoomAllocationHandlerModeAndRevalidate(t *testing.T) {
	router := newAllocationRouter(t, true)

	w, env := perform(router, http.MethodPost, "/allocations/rooms/mode", map[string]string{"batch_key": "A-3", "subject_code": "CS302", "mode": "split"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, _ = perform(router, http.MethodPost, "/allocations/rooms/assign", map[string]string{"batch_key": "A-3", "subject_code": "CS302", "room_id": "r-3"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = perform(router, http.MethodPost, "/allocations/rooms/mode", map[string]string{"batch_key": "A-3", "subject_code": "CS302", "mode": "combined"})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = perform(router, http.MethodPost, "/allocations/rooms/revalidate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Issues []allocator.CapacityIssue `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Issues, 1)
	assert.Equal(t, 60, result.Issues[0].Required)
}
