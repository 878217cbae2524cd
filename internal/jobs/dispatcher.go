// Package jobs provides post-processing work dispatch. The recorder enqueues
// transcription, compression, and analytics work here when a recording
// finishes; external workers drain the queue.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/meetrec/internal/models"
	"github.com/jmylchreest/meetrec/internal/repository"
)

// Payload describes the work attached to a dispatched job.
type Payload struct {
	RecordingID string `json:"recording_id"`
	MeetingID   string `json:"meeting_id"`
	FileKey     string `json:"file_key"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	AudioOnly   bool   `json:"audio_only,omitempty"`
}

// Dispatcher enqueues post-processing work. Implementations must be safe
// for concurrent use; Dispatch is fire-and-forget from the caller's
// perspective and must never block on the work itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType models.JobType, recordingID models.ULID, orgID string, payload Payload) (models.ULID, error)
}

// QueueDispatcher persists jobs as database rows for external workers.
type QueueDispatcher struct {
	repo   repository.JobRepository
	logger *slog.Logger
}

var _ Dispatcher = (*QueueDispatcher)(nil)

// NewQueueDispatcher creates a dispatcher backed by the job repository.
func NewQueueDispatcher(repo repository.JobRepository, logger *slog.Logger) *QueueDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDispatcher{repo: repo, logger: logger}
}

// Dispatch persists a pending job row and returns its ID.
func (d *QueueDispatcher) Dispatch(ctx context.Context, jobType models.JobType, recordingID models.ULID, orgID string, payload Payload) (models.ULID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.ULID{}, fmt.Errorf("encoding job payload: %w", err)
	}

	job := &models.Job{
		Type:           jobType,
		RecordingID:    recordingID,
		OrganizationID: orgID,
		Status:         models.JobStatusPending,
		Payload:        string(data),
	}
	if err := d.repo.Create(ctx, job); err != nil {
		return models.ULID{}, fmt.Errorf("enqueuing %s job: %w", jobType, err)
	}

	d.logger.Info("job dispatched",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(jobType)),
		slog.String("recording_id", recordingID.String()),
	)
	return job.ID, nil
}
