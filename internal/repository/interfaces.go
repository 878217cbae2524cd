// Package repository provides data access layers for meetrec models.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/meetrec/internal/models"
)

// RecordingRepository defines data access for recording records.
type RecordingRepository interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id models.ULID) (*models.Recording, error)
	GetActiveByMeeting(ctx context.Context, meetingID string) (*models.Recording, error)
	GetByOrganization(ctx context.Context, orgID string) ([]*models.Recording, error)
	GetStaleRecordings(ctx context.Context, olderThan time.Time) ([]*models.Recording, error)
	Update(ctx context.Context, rec *models.Recording) error
	Delete(ctx context.Context, id models.ULID) error
}

// JobRepository defines data access for post-processing jobs.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	GetByRecording(ctx context.Context, recordingID models.ULID) ([]*models.Job, error)
	GetPending(ctx context.Context) ([]*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	Delete(ctx context.Context, id models.ULID) error
}
