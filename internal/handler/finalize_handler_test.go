package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-allocator/internal/allocator"
	"github.com/noah-isme/timetable-allocator/internal/dto"
	"github.com/noah-isme/timetable-allocator/internal/middleware"
	"github.com/noah-isme/timetable-allocator/internal/models"
	"github.com/noah-isme/timetable-allocator/internal/service"
	appErrors "github.com/noah-isme/timetable-allocator/pkg/errors"
)

type finalizerMock struct {
	req     dto.FinalizeRequest
	actor   string
	limit   int
	listErr error
}

func (m *finalizerMock) Finalize(ctx context.Context, req dto.FinalizeRequest, actorID string) (*dto.FinalizeResponse, error) {
	m.req = req
	m.actor = actorID
	return &dto.FinalizeResponse{Snapshot: models.AllocationSnapshot{ID: "snap-1", Version: 1}}, nil
}

func (m *finalizerMock) Get(ctx context.Context, id string) (*models.AllocationSnapshotDetail, error) {
	if id != "snap-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "allocation snapshot not found")
	}
	return &models.AllocationSnapshotDetail{AllocationSnapshot: models.AllocationSnapshot{ID: id}}, nil
}

func (m *finalizerMock) List(ctx context.Context, limit int) ([]models.AllocationSnapshot, error) {
	m.limit = limit
	return []models.AllocationSnapshot{}, m.listErr
}

type exporterMock struct {
	path    string
	format  string
	openErr error
}

func (m *exporterMock) Export(ctx context.Context, snapshotID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	m.format = req.Format
	return &dto.ExportResponse{ExportID: "exp-1", Format: req.Format, URL: "/api/v1/exports/download?token=abc"}, nil
}

func (m *exporterMock) Open(token string) (*service.Download, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	file, err := os.Open(m.path)
	if err != nil {
		return nil, err
	}
	return &service.Download{File: file, Filename: filepath.Base(m.path), ContentType: "text/csv"}, nil
}

type snapshotReaderMock struct{}

func (snapshotReaderMock) Snapshot(ctx context.Context) (*allocator.Snapshot, *service.LoadedRoster, error) {
	return &allocator.Snapshot{TeacherProgress: allocator.Progress{Completed: 1, Total: 2, Percentage: 50}}, nil, nil
}

func newFinalizeRouter(f *finalizerMock, e *exporterMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := &FinalizeHandler{snapshots: snapshotReaderMock{}, finalizer: f, exports: e}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
		c.Next()
	})
	router.GET("/allocations/snapshot", h.Snapshot)
	router.POST("/allocations/finalize", h.Finalize)
	router.GET("/allocations/finalized", h.List)
	router.GET("/allocations/finalized/:id", h.Get)
	router.POST("/allocations/finalized/:id/export", h.Export)
	router.GET("/exports/download", h.Download)
	return router
}

func TestFinalizeHandlerFinalizeUsesActor(t *testing.T) {
	f := &finalizerMock{}
	router := newFinalizeRouter(f, &exporterMock{})

	w, _ := perform(router, http.MethodPost, "/allocations/finalize", map[string]interface{}{"dispatch": true, "note": "v1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "admin-1", f.actor)
	assert.True(t, f.req.Dispatch)

	w, _ = perform(router, http.MethodPost, "/allocations/finalize", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.False(t, f.req.Dispatch)
}

func TestFinalizeHandlerSnapshotAndReads(t *testing.T) {
	f := &finalizerMock{}
	router := newFinalizeRouter(f, &exporterMock{})

	w, env := perform(router, http.MethodGet, "/allocations/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"percentage":50`)

	w, _ = perform(router, http.MethodGet, "/allocations/finalized?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, f.limit)

	w, _ = perform(router, http.MethodGet, "/allocations/finalized?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = perform(router, http.MethodGet, "/allocations/finalized/missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "allocation snapshot not found", env.Error.Message)
}

func TestFinalizeHandlerExportValidatesFormat(t *testing.T) {
	e := &exporterMock{}
	router := newFinalizeRouter(&finalizerMock{}, e)

	w, _ := perform(router, http.MethodPost, "/allocations/finalized/snap-1/export", map[string]string{"format": "xlsx"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := perform(router, http.MethodPost, "/allocations/finalized/snap-1/export", map[string]string{"format": "pdf"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pdf", e.format)
	assert.Contains(t, string(env.Data), "exports/download?token=")
}

func TestFinalizeHandlerDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1_export.csv")
	require.NoError(t, os.WriteFile(path, []byte("Subject,Teacher\nCS301,T1\n"), 0o644))
	router := newFinalizeRouter(&finalizerMock{}, &exporterMock{path: path})

	req := httptest.NewRequest(http.MethodGet, "/exports/download?token=abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="v1_export.csv"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "Subject,Teacher"))

	w, _ = perform(router, http.MethodGet, "/exports/download", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFinalizeHandlerDownloadForbidden(t *testing.T) {
	router := newFinalizeRouter(&finalizerMock{}, &exporterMock{openErr: appErrors.Clone(appErrors.ErrForbidden, "download link expired")})

	w, env := perform(router, http.MethodGet, "/exports/download?token=old", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "download link expired", env.Error.Message)
}
