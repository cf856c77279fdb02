package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-allocator/internal/dto"
	"github.com/noah-isme/timetable-allocator/internal/models"
	appErrors "github.com/noah-isme/timetable-allocator/pkg/errors"
	"github.com/noah-isme/timetable-allocator/pkg/export"
	"github.com/noah-isme/timetable-allocator/pkg/storage"
)

type snapshotDetailReader interface {
	Get(ctx context.Context, id string) (*models.AllocationSnapshotDetail, error)
}

type fileStorage interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	RetainFor time.Duration
}

// Download is an opened export file ready to stream.
type Download struct {
	File        *os.File
	Filename    string
	ContentType string
}

// ExportService renders finalized snapshots to CSV or PDF and hands out signed download links.
type ExportService struct {
	snapshots snapshotDetailReader
	storage   fileStorage
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(snapshots snapshotDetailReader, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetainFor <= 0 {
		cfg.RetainFor = 7 * 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		snapshots: snapshots,
		storage:   files,
		signer:    signer,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Export renders the snapshot, stores the file and returns a signed URL for it.
func (s *ExportService) Export(ctx context.Context, snapshotID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	renderer, err := export.RendererFor(export.Format(req.Format))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unsupported export format")
	}
	detail, err := s.snapshots.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	payload, err := renderer.Render(snapshotDocument(detail))
	s.metrics.ObserveExport(req.Format, time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	exportID := uuid.NewString()
	filename := fmt.Sprintf("allocations/v%d_%s_%s.%s", detail.Version, time.Now().UTC().Format("20060102_150405"), exportID[:8], renderer.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, grant, err := s.signer.Sign(exportID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}

	s.logger.Info("allocation export stored",
		zap.String("snapshot_id", snapshotID),
		zap.String("export_id", exportID),
		zap.String("path", relPath),
	)
	return &dto.ExportResponse{
		ExportID:  exportID,
		Format:    req.Format,
		URL:       fmt.Sprintf("%s/exports/download?token=%s", strings.TrimRight(s.cfg.APIPrefix, "/"), url.QueryEscape(token)),
		ExpiresAt: grant.ExpiresAt,
	}, nil
}

// Open verifies a download token and opens the file it grants.
func (s *ExportService) Open(token string) (*Download, error) {
	grant, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	file, err := s.storage.Open(grant.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	return &Download{
		File:        file,
		Filename:    grant.Path[strings.LastIndex(grant.Path, "/")+1:],
		ContentType: contentTypeFor(grant.Path),
	}, nil
}

// Cleanup removes exports older than the retention window.
func (s *ExportService) Cleanup() ([]string, error) {
	removed, err := s.storage.CleanupOlderThan(s.cfg.RetainFor)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *ExportService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Cleanup(); err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
			}
		}
	}
}

func contentTypeFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".pdf"):
		return export.NewPDFExporter().ContentType()
	case strings.HasSuffix(path, ".csv"):
		return export.NewCSVExporter().ContentType()
	default:
		return "application/octet-stream"
	}
}

func snapshotDocument(detail *models.AllocationSnapshotDetail) export.Document {
	teacherRows := make([][]string, 0, len(detail.Subjects))
	for _, row := range detail.Subjects {
		teacherRows = append(teacherRows, []string{
			row.SubjectCode,
			row.TeacherID,
			strconv.Itoa(row.Hours),
			yesNo(row.IsPriority),
			yesNo(row.IsPrimary),
		})
	}
	roomRows := make([][]string, 0, len(detail.Pairings))
	for _, row := range detail.Pairings {
		roomRows = append(roomRows, []string{
			row.BatchKey,
			row.SubjectCode,
			deref(row.TeacherID),
			deref(row.RoomID),
			string(row.Mode),
		})
	}
	return export.Document{
		Title: fmt.Sprintf("Allocation v%d (%s)", detail.Version, detail.CreatedAt.UTC().Format(time.RFC3339)),
		Tables: []export.Table{
			{Title: "Teacher allocations", Headers: []string{"Subject", "Teacher", "Hours", "Priority", "Primary"}, Rows: teacherRows},
			{Title: "Room allocations", Headers: []string{"Batch", "Subject", "Teacher", "Room", "Mode"}, Rows: roomRows},
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
