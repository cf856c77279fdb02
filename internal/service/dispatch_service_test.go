package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-allocator/internal/models"
	"github.com/noah-isme/timetable-allocator/pkg/jobs"
	"github.com/noah-isme/timetable-allocator/pkg/timetable"
)

type publisherStub struct {
	mu       sync.Mutex
	err      error
	messages map[string][]byte
}

func (p *publisherStub) Publish(ctx context.Context, messageID string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if p.messages == nil {
		p.messages = map[string][]byte{}
	}
	p.messages[messageID] = body
	return nil
}

type statusUpdate struct {
	id     string
	status models.AllocationSnapshotStatus
	meta   map[string]interface{}
}

type statusWriterStub struct {
	updates chan statusUpdate
}

func (s *statusWriterStub) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.AllocationSnapshotStatus, meta types.JSONText) error {
	var decoded map[string]interface{}
	_ = json.Unmarshal(meta, &decoded)
	s.updates <- statusUpdate{id: id, status: status, meta: decoded}
	return nil
}

func waitForStatus(t *testing.T, writer *statusWriterStub) statusUpdate {
	t.Helper()
	select {
	case update := <-writer.updates:
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot status update")
		return statusUpdate{}
	}
}

func TestDispatchServicePublishesAndMarksSnapshot(t *testing.T) {
	publisher := &publisherStub{}
	writer := &statusWriterStub{updates: make(chan statusUpdate, 1)}
	metrics := NewMetricsService()
	svc := NewDispatchService(publisher, writer, metrics, DispatchConfig{Transport: "http", Workers: 1}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	jobID, err := svc.Dispatch(context.Background(), "snap-1", timetable.GenerateRequest{SnapshotID: "snap-1", Version: 2})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	update := waitForStatus(t, writer)
	assert.Equal(t, "snap-1", update.id)
	assert.Equal(t, models.AllocationSnapshotStatusDispatched, update.status)
	assert.Equal(t, jobID, update.meta["job_id"])
	assert.Equal(t, "http", update.meta["transport"])

	publisher.mu.Lock()
	body := publisher.messages[jobID]
	publisher.mu.Unlock()
	var sent timetable.GenerateRequest
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, 2, sent.Version)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.dispatchJobs.WithLabelValues("http", OutcomeOK)))
	assert.Zero(t, metrics.Snapshot().DispatchFailures)
}

func TestDispatchServiceMarksFailureAfterRetries(t *testing.T) {
	publisher := &publisherStub{err: errors.New("broker unavailable")}
	writer := &statusWriterStub{updates: make(chan statusUpdate, 1)}
	svc := NewDispatchService(publisher, writer, nil, DispatchConfig{Transport: "amqp", Workers: 1, Retries: 1, RetryDelay: time.Millisecond}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	_, err := svc.Dispatch(context.Background(), "snap-2", timetable.GenerateRequest{})
	require.NoError(t, err)

	update := waitForStatus(t, writer)
	assert.Equal(t, models.AllocationSnapshotStatusFailed, update.status)
	assert.Equal(t, "broker unavailable", update.meta["error"])
	assert.Equal(t, float64(2), update.meta["attempts"])
}

func TestDispatchServiceRejectsWhenStopped(t *testing.T) {
	svc := NewDispatchService(&publisherStub{}, &statusWriterStub{updates: make(chan statusUpdate, 1)}, nil, DispatchConfig{}, nil)

	_, err := svc.Dispatch(context.Background(), "snap-3", timetable.GenerateRequest{})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
}
