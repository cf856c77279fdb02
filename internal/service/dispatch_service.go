package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-allocator/internal/models"
	"github.com/noah-isme/timetable-allocator/pkg/jobs"
	"github.com/noah-isme/timetable-allocator/pkg/timetable"
)

const dispatchJobType = "timetable.generate"

// GeneratorPublisher delivers an encoded generate request to the timetable generator.
// Both the HTTP client and the AMQP publisher satisfy it.
type GeneratorPublisher interface {
	Publish(ctx context.Context, messageID string, body []byte) error
}

type snapshotStatusWriter interface {
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AllocationSnapshotStatus, meta types.JSONText) error
}

type dispatchPayload struct {
	SnapshotID string
	Body       []byte
}

// DispatchConfig tunes the dispatch worker pool.
type DispatchConfig struct {
	Transport  string
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// DispatchService hands finalized allocations to the timetable generator in the background.
type DispatchService struct {
	publisher GeneratorPublisher
	snapshots snapshotStatusWriter
	metrics   *MetricsService
	transport string
	queue     *jobs.Queue
	logger    *zap.Logger
}

// NewDispatchService constructs the service and its queue. Call Start before dispatching.
func NewDispatchService(publisher GeneratorPublisher, snapshots snapshotStatusWriter, metrics *MetricsService, cfg DispatchConfig, logger *zap.Logger) *DispatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DispatchService{
		publisher: publisher,
		snapshots: snapshots,
		metrics:   metrics,
		transport: cfg.Transport,
		logger:    logger,
	}
	s.queue = jobs.NewQueue("dispatch", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		OnFailure:  s.fail,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *DispatchService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop waits for in-flight dispatches to return.
func (s *DispatchService) Stop() {
	s.queue.Stop()
}

// Dispatch queues the generate request for a snapshot and returns the job id.
func (s *DispatchService) Dispatch(ctx context.Context, snapshotID string, req timetable.GenerateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    dispatchJobType,
		Payload: dispatchPayload{SnapshotID: snapshotID, Body: body},
	}
	if err := s.queue.Enqueue(job); err != nil {
		return "", err
	}
	s.logger.Info("dispatch queued", zap.String("job_id", job.ID), zap.String("snapshot_id", snapshotID), zap.String("transport", s.transport))
	return job.ID, nil
}

func (s *DispatchService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(dispatchPayload)
	if !ok {
		return fmt.Errorf("unexpected dispatch payload %T", job.Payload)
	}
	if err := s.publisher.Publish(ctx, job.ID, payload.Body); err != nil {
		s.metrics.RecordDispatch(s.transport, false)
		return err
	}
	s.metrics.RecordDispatch(s.transport, true)

	meta, _ := json.Marshal(map[string]interface{}{
		"job_id":        job.ID,
		"transport":     s.transport,
		"attempts":      job.Attempt,
		"dispatched_at": time.Now().UTC(),
	})
	if err := s.snapshots.UpdateStatus(ctx, nil, payload.SnapshotID, models.AllocationSnapshotStatusDispatched, types.JSONText(meta)); err != nil {
		s.logger.Warn("failed to mark snapshot dispatched", zap.String("snapshot_id", payload.SnapshotID), zap.Error(err))
	}
	return nil
}

func (s *DispatchService) fail(ctx context.Context, job jobs.Job, cause error) {
	payload, ok := job.Payload.(dispatchPayload)
	if !ok {
		return
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"job_id":    job.ID,
		"transport": s.transport,
		"attempts":  job.Attempt,
		"error":     cause.Error(),
	})
	if err := s.snapshots.UpdateStatus(ctx, nil, payload.SnapshotID, models.AllocationSnapshotStatusFailed, types.JSONText(meta)); err != nil {
		s.logger.Warn("failed to mark snapshot dispatch failure", zap.String("snapshot_id", payload.SnapshotID), zap.Error(err))
	}
}
