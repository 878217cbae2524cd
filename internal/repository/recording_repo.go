package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jmylchreest/meetrec/internal/models"
)

// recordingRepo implements RecordingRepository using GORM.
type recordingRepo struct {
	db *gorm.DB
}

var _ RecordingRepository = (*recordingRepo)(nil)

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) *recordingRepo {
	return &recordingRepo{db: db}
}

// Create creates a new recording record.
func (r *recordingRepo) Create(ctx context.Context, rec *models.Recording) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("creating recording: %w", err)
	}
	return nil
}

// GetByID retrieves a recording by ID. Returns nil when not found.
func (r *recordingRepo) GetByID(ctx context.Context, id models.ULID) (*models.Recording, error) {
	var rec models.Recording
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording by ID: %w", err)
	}
	return &rec, nil
}

// GetActiveByMeeting retrieves the active (recording or paused) record for a
// meeting. Returns nil when the meeting has no active recording.
func (r *recordingRepo) GetActiveByMeeting(ctx context.Context, meetingID string) (*models.Recording, error) {
	var rec models.Recording
	err := r.db.WithContext(ctx).
		Where("meeting_id = ? AND status IN ?", meetingID,
			[]models.RecordingStatus{models.RecordingStatusRecording, models.RecordingStatusPaused}).
		Order("started_at DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting active recording for meeting: %w", err)
	}
	return &rec, nil
}

// GetByOrganization retrieves all recordings for an organization, newest first.
func (r *recordingRepo) GetByOrganization(ctx context.Context, orgID string) ([]*models.Recording, error) {
	var recs []*models.Recording
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("started_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("getting recordings by organization: %w", err)
	}
	return recs, nil
}

// GetStaleRecordings retrieves records still marked recording or paused whose
// capture started before the given cutoff. Used by the orphan reaper.
func (r *recordingRepo) GetStaleRecordings(ctx context.Context, olderThan time.Time) ([]*models.Recording, error) {
	var recs []*models.Recording
	err := r.db.WithContext(ctx).
		Where("status IN ? AND started_at < ?",
			[]models.RecordingStatus{models.RecordingStatusRecording, models.RecordingStatusPaused},
			olderThan).
		Order("started_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("getting stale recordings: %w", err)
	}
	return recs, nil
}

// Update updates an existing recording record.
func (r *recordingRepo) Update(ctx context.Context, rec *models.Recording) error {
	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("updating recording: %w", err)
	}
	return nil
}

// Delete deletes a recording record by ID.
func (r *recordingRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Recording{}).Error; err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	return nil
}
