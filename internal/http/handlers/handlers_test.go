package handlers

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/meetrec/internal/blobstore"
	"github.com/jmylchreest/meetrec/internal/jobs"
	"github.com/jmylchreest/meetrec/internal/models"
	"github.com/jmylchreest/meetrec/internal/recorder"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubRecordingRepo is a minimal in-memory recording repository.
type stubRecordingRepo struct {
	mu      sync.Mutex
	records map[string]*models.Recording
}

func newStubRecordingRepo() *stubRecordingRepo {
	return &stubRecordingRepo{records: make(map[string]*models.Recording)}
}

func (r *stubRecordingRepo) Create(_ context.Context, rec *models.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID.IsZero() {
		rec.ID = models.NewULID()
	}
	clone := *rec
	r.records[rec.ID.String()] = &clone
	return nil
}

func (r *stubRecordingRepo) GetByID(_ context.Context, id models.ULID) (*models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id.String()]
	if !ok {
		return nil, nil
	}
	clone := *rec
	return &clone, nil
}

func (r *stubRecordingRepo) GetActiveByMeeting(_ context.Context, meetingID string) (*models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.MeetingID == meetingID && rec.IsActive() {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *stubRecordingRepo) GetByOrganization(_ context.Context, _ string) ([]*models.Recording, error) {
	return nil, nil
}

func (r *stubRecordingRepo) GetStaleRecordings(_ context.Context, _ time.Time) ([]*models.Recording, error) {
	return nil, nil
}

func (r *stubRecordingRepo) Update(_ context.Context, rec *models.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *rec
	r.records[rec.ID.String()] = &clone
	return nil
}

func (r *stubRecordingRepo) Delete(_ context.Context, id models.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id.String())
	return nil
}

// stubDispatcher discards dispatched jobs.
type stubDispatcher struct{}

func (stubDispatcher) Dispatch(_ context.Context, _ models.JobType, _ models.ULID, _ string, _ jobs.Payload) (models.ULID, error) {
	return models.NewULID(), nil
}

func writeFakeEncoder(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\nfor out in \"$@\"; do :; done\nexec cat > \"$out\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestStore(t *testing.T) *blobstore.FilesystemStore {
	t.Helper()
	store, err := blobstore.NewFilesystemStore(t.TempDir(), "http://127.0.0.1:8080", []byte("test-secret"))
	require.NoError(t, err)
	return store
}

func newTestManager(t *testing.T) *recorder.Manager {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}

	m, err := recorder.NewManager(recorder.Config{
		MaxSessions:     10,
		EncoderGrace:    2 * time.Second,
		MaxChunkBytes:   1 << 20,
		StagingDir:      t.TempDir(),
		EncoderBinary:   writeFakeEncoder(t),
		EncoderLogLevel: "error",
		DownloadURLTTL:  7 * 24 * time.Hour,
	}, newTestStore(t), newStubRecordingRepo(), stubDispatcher{}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}
