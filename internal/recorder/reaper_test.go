package recorder

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/meetrec/internal/models"
)

func seedRecording(t *testing.T, repo *memRecordingRepo, meetingID string, status models.RecordingStatus, age time.Duration) *models.Recording {
	t.Helper()
	rec := &models.Recording{
		MeetingID:      meetingID,
		OrganizationID: "org-1",
		Status:         status,
		StartedAt:      models.Time(time.Now().Add(-age)),
	}
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func newTestReaper(t *testing.T, repo *memRecordingRepo, isActive func(string) bool) *Reaper {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := NewReaper(repo, isActive, "0 0 * * * *", 24*time.Hour, logger)
	require.NoError(t, err)
	return r
}

func TestReaperMarksStaleRecordingsFailed(t *testing.T) {
	repo := newMemRecordingRepo()
	stale := seedRecording(t, repo, "meet-stale", models.RecordingStatusRecording, 25*time.Hour)
	fresh := seedRecording(t, repo, "meet-fresh", models.RecordingStatusRecording, time.Hour)

	r := newTestReaper(t, repo, func(string) bool { return false })
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusFailed, got.Status)
	assert.Contains(t, got.Error, "orphaned")
	assert.NotNil(t, got.StoppedAt)

	got, err = repo.GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusRecording, got.Status,
		"records inside the staleness window must be left alone")
}

func TestReaperSkipsLiveSessions(t *testing.T) {
	repo := newMemRecordingRepo()
	stale := seedRecording(t, repo, "meet-live", models.RecordingStatusPaused, 25*time.Hour)

	r := newTestReaper(t, repo, func(meetingID string) bool { return meetingID == "meet-live" })
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusPaused, got.Status)
}

func TestReaperIgnoresFinishedRecords(t *testing.T) {
	repo := newMemRecordingRepo()
	done := seedRecording(t, repo, "meet-done", models.RecordingStatusCompleted, 48*time.Hour)

	r := newTestReaper(t, repo, func(string) bool { return false })
	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.GetByID(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingStatusCompleted, got.Status)
}

func TestReaperRejectsBadSchedule(t *testing.T) {
	repo := newMemRecordingRepo()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewReaper(repo, func(string) bool { return false }, "not a cron", 24*time.Hour, logger)
	assert.Error(t, err)
}

func TestReaperStartStop(t *testing.T) {
	repo := newMemRecordingRepo()
	r := newTestReaper(t, repo, func(string) bool { return false })
	r.Start()
	r.Stop()
}
