package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/meetrec/internal/blobstore"
	"github.com/jmylchreest/meetrec/internal/encoder"
	"github.com/jmylchreest/meetrec/internal/jobs"
	"github.com/jmylchreest/meetrec/internal/models"
	"github.com/jmylchreest/meetrec/internal/repository"
)

// StagingPrefix is the filename prefix of in-flight staging files. The
// startup sweep uses it to recognize leftovers from earlier runs.
const StagingPrefix = "rec-"

// Config carries the tunables for the session manager.
type Config struct {
	MaxSessions     int
	EncoderGrace    time.Duration
	MaxChunkBytes   int64
	StagingDir      string
	EncoderBinary   string
	EncoderLogLevel string
	DownloadURLTTL  time.Duration
}

// Manager owns every active recording session. It enforces the
// one-recording-per-meeting rule, schedules max-duration auto-stops, and
// persists recording records as sessions move through their lifecycle.
type Manager struct {
	cfg        Config
	binary     string
	store      blobstore.Store
	recordings repository.RecordingRepository
	post       *PostProcessor
	bus        *Bus
	scheduler  *DeadlineScheduler
	logger     *slog.Logger

	mu           sync.RWMutex
	sessions     map[string]*Session
	meetingLocks map[string]*sync.Mutex
}

// NewManager resolves the encoder binary, prepares the staging directory,
// and starts the deadline scheduler.
func NewManager(cfg Config, store blobstore.Store, recordings repository.RecordingRepository, dispatcher jobs.Dispatcher, logger *slog.Logger) (*Manager, error) {
	binary, err := encoder.FindBinary(cfg.EncoderBinary)
	if err != nil {
		return nil, fmt.Errorf("resolving encoder binary: %w", err)
	}
	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	m := &Manager{
		cfg:          cfg,
		binary:       binary,
		store:        store,
		recordings:   recordings,
		post:         NewPostProcessor(dispatcher, logger),
		bus:          NewBus(),
		logger:       logger.With(slog.String("component", "recorder")),
		sessions:     make(map[string]*Session),
		meetingLocks: make(map[string]*sync.Mutex),
	}
	m.scheduler = NewDeadlineScheduler(m.autoStop)
	m.scheduler.Start()
	return m, nil
}

// Subscribe registers a listener for session lifecycle events.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.bus.Subscribe()
}

// meetingLock returns the mutex serializing start/stop for one meeting,
// creating it on first use. Locks are never removed; the set of meetings a
// deployment sees is small and stable.
func (m *Manager) meetingLock(meetingID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.meetingLocks[meetingID]
	if !ok {
		lock = &sync.Mutex{}
		m.meetingLocks[meetingID] = lock
	}
	return lock
}

func (m *Manager) lookup(meetingID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[meetingID]
	return sess, ok
}

func (m *Manager) remove(meetingID string, sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.sessions[meetingID]; ok && current == sess {
		delete(m.sessions, meetingID)
	}
}

// Start launches a new recording session for a meeting. A meeting can have
// at most one active session; a second start returns ErrAlreadyRecording.
func (m *Manager) Start(ctx context.Context, opts Options) (Status, error) {
	if opts.MeetingID == "" {
		return Status{}, models.ErrMeetingIDRequired
	}
	if opts.OrganizationID == "" {
		return Status{}, models.ErrOrganizationIDRequired
	}
	if opts.Quality == "" {
		opts.Quality = encoder.QualityMedium
	}

	lock := m.meetingLock(opts.MeetingID)
	lock.Lock()
	defer lock.Unlock()

	if _, exists := m.lookup(opts.MeetingID); exists {
		return Status{}, ErrAlreadyRecording
	}

	m.mu.RLock()
	active := len(m.sessions)
	m.mu.RUnlock()
	if m.cfg.MaxSessions > 0 && active >= m.cfg.MaxSessions {
		return Status{}, ErrMaxSessions
	}

	profile, err := encoder.ProfileFor(opts.Quality, opts.AudioOnly)
	if err != nil {
		return Status{}, err
	}

	sessionID := models.NewULID().String()
	stagingPath := filepath.Join(m.cfg.StagingDir, StagingPrefix+sessionID+"."+profile.Extension())

	logger := m.logger.With(
		slog.String("session_id", sessionID),
		slog.String("meeting_id", opts.MeetingID),
	)

	record := &models.Recording{
		MeetingID:           opts.MeetingID,
		OrganizationID:      opts.OrganizationID,
		Status:              models.RecordingStatusRecording,
		AudioOnly:           opts.AudioOnly,
		Quality:             models.VideoQuality(opts.Quality),
		StartedAt:           models.Now(),
		TranscriptionStatus: models.TranscriptionNotRequested,
	}
	if err := m.recordings.Create(ctx, record); err != nil {
		return Status{}, fmt.Errorf("persisting recording: %w", err)
	}

	enc := encoder.New(m.binary, profile, m.cfg.EncoderLogLevel, stagingPath, logger)
	sess := newSession(sessionID, record.ID, opts, enc, stagingPath, logger)
	enc.OnExit(func(exitErr error) { m.handleEncoderExit(sess, exitErr) })

	if err := enc.Start(); err != nil {
		sess.abort()
		record.MarkFailed(fmt.Sprintf("encoder launch: %v", err))
		if updateErr := m.recordings.Update(ctx, record); updateErr != nil {
			logger.Error("marking recording failed", slog.String("error", updateErr.Error()))
		}
		return Status{}, &EncoderLaunchError{Err: err}
	}
	sess.markRecording()

	m.mu.Lock()
	m.sessions[opts.MeetingID] = sess
	m.mu.Unlock()

	if opts.MaxDuration > 0 {
		m.scheduler.Schedule(opts.MeetingID, time.Now().Add(opts.MaxDuration))
	}

	logger.Info("recording started",
		slog.String("quality", string(opts.Quality)),
		slog.Bool("audio_only", opts.AudioOnly),
		slog.Duration("max_duration", opts.MaxDuration),
	)
	m.bus.Publish(Event{
		Type:      EventStarted,
		SessionID: sessionID,
		MeetingID: opts.MeetingID,
	})
	return sess.Status(), nil
}

// Stop ends the active recording for a meeting, uploads the artifact, and
// enqueues post-processing. On upload failure the session is removed but
// the staging file is retained for manual recovery.
func (m *Manager) Stop(ctx context.Context, meetingID string) (*Result, error) {
	lock := m.meetingLock(meetingID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := m.lookup(meetingID)
	if !ok {
		return nil, ErrNotRecording
	}
	if !sess.markStopping() {
		return nil, ErrNotRecording
	}
	m.scheduler.Cancel(meetingID)

	// The record shows processing while the artifact is flushed and
	// uploaded; finalization outcome overwrites it below.
	m.updateRecordStatus(ctx, sess, models.RecordingStatusProcessing)

	profile, err := encoder.ProfileFor(sess.Opts.Quality, sess.Opts.AudioOnly)
	if err != nil {
		return nil, err
	}
	fileKey := fmt.Sprintf("recordings/%s/%s.%s", sess.Opts.OrganizationID, sess.ID, profile.Extension())

	result, finErr := sess.finalize(ctx, m.store, m.cfg.EncoderGrace, m.cfg.DownloadURLTTL, profile.ContentType(), fileKey)
	m.remove(meetingID, sess)

	record, getErr := m.recordings.GetByID(ctx, sess.RecordID)
	if getErr != nil || record == nil {
		m.logger.Error("loading recording record on stop",
			slog.String("recording_id", sess.RecordID.String()),
		)
	}

	if finErr != nil {
		if record != nil {
			record.MarkFailed(fmt.Sprintf("upload: %v", finErr))
			if err := m.recordings.Update(ctx, record); err != nil {
				m.logger.Error("marking recording failed", slog.String("error", err.Error()))
			}
		}
		m.logger.Error("finalizing recording, staging file retained",
			slog.String("session_id", sess.ID),
			slog.String("staging_path", sess.StagingPath()),
			slog.String("error", finErr.Error()),
		)
		m.bus.Publish(Event{
			Type:      EventFailed,
			SessionID: sess.ID,
			MeetingID: meetingID,
			Error:     finErr.Error(),
		})
		return nil, finErr
	}

	if record != nil {
		record.MarkCompleted(result.FileKey, result.DownloadURL, result.URLExpires, result.SizeBytes)
		record.DurationMs = result.Duration.Milliseconds()
		if sess.Opts.AutoTranscribe {
			record.TranscriptionStatus = models.TranscriptionPending
		}
		if err := m.recordings.Update(ctx, record); err != nil {
			m.logger.Error("marking recording completed", slog.String("error", err.Error()))
		}
	}

	m.logger.Info("recording stopped",
		slog.String("session_id", sess.ID),
		slog.String("meeting_id", meetingID),
		slog.String("file_key", result.FileKey),
		slog.Int64("size_bytes", result.SizeBytes),
		slog.Duration("duration", result.Duration),
	)
	m.bus.Publish(Event{
		Type:      EventStopped,
		SessionID: sess.ID,
		MeetingID: meetingID,
	})

	m.post.DispatchAll(ctx, sess.RecordID, sess.Opts.OrganizationID, sess.Opts.AutoTranscribe, jobs.Payload{
		RecordingID: sess.RecordID.String(),
		MeetingID:   meetingID,
		FileKey:     result.FileKey,
		DurationMs:  result.Duration.Milliseconds(),
		SizeBytes:   result.SizeBytes,
		AudioOnly:   sess.Opts.AudioOnly,
	})
	return result, nil
}

// Pause suspends the active recording for a meeting.
func (m *Manager) Pause(ctx context.Context, meetingID string) error {
	sess, ok := m.lookup(meetingID)
	if !ok {
		return ErrNotRecording
	}
	if err := sess.Pause(); err != nil {
		return err
	}
	m.updateRecordStatus(ctx, sess, models.RecordingStatusPaused)
	m.bus.Publish(Event{Type: EventPaused, SessionID: sess.ID, MeetingID: meetingID})
	return nil
}

// Resume resumes a paused recording.
func (m *Manager) Resume(ctx context.Context, meetingID string) error {
	sess, ok := m.lookup(meetingID)
	if !ok {
		return ErrNotRecording
	}
	if err := sess.Resume(); err != nil {
		return err
	}
	m.updateRecordStatus(ctx, sess, models.RecordingStatusRecording)
	m.bus.Publish(Event{Type: EventResumed, SessionID: sess.ID, MeetingID: meetingID})
	return nil
}

// updateRecordStatus persists a status flip best-effort. The in-memory
// session is authoritative; a write failure only costs observability.
func (m *Manager) updateRecordStatus(ctx context.Context, sess *Session, status models.RecordingStatus) {
	record, err := m.recordings.GetByID(ctx, sess.RecordID)
	if err != nil || record == nil {
		return
	}
	record.Status = status
	if err := m.recordings.Update(ctx, record); err != nil {
		m.logger.Warn("updating recording status",
			slog.String("recording_id", sess.RecordID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Status returns a snapshot of the active session for a meeting. It never
// blocks on in-flight starts or stops. A meeting without a live session
// yields a snapshot with Recording false rather than an error, so callers
// polling after an auto-stop see a plain not-recording answer.
func (m *Manager) Status(meetingID string) Status {
	sess, ok := m.lookup(meetingID)
	if !ok {
		return Status{MeetingID: meetingID}
	}
	return sess.Status()
}

// Active returns snapshots of every active session.
func (m *Manager) Active() []Status {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	statuses := make([]Status, 0, len(sessions))
	for _, sess := range sessions {
		statuses = append(statuses, sess.Status())
	}
	return statuses
}

// HasSession reports whether a meeting currently has an in-memory session.
func (m *Manager) HasSession(meetingID string) bool {
	_, ok := m.lookup(meetingID)
	return ok
}

// RouteChunk delivers a media chunk to the session recording the meeting.
// Chunks for unknown meetings or oversized chunks are dropped with a
// warning; ingest is fire-and-forget and never returns an error to the
// sender.
func (m *Manager) RouteChunk(meetingID string, data []byte) {
	if m.cfg.MaxChunkBytes > 0 && int64(len(data)) > m.cfg.MaxChunkBytes {
		m.logger.Warn("dropping oversized chunk",
			slog.String("meeting_id", meetingID),
			slog.Int("size", len(data)),
			slog.Int64("limit", m.cfg.MaxChunkBytes),
		)
		return
	}
	sess, ok := m.lookup(meetingID)
	if !ok {
		m.logger.Warn("dropping chunk for unknown meeting",
			slog.String("meeting_id", meetingID),
		)
		return
	}
	sess.ProcessChunk(data)
}

// AddParticipant records a participant joining the recorded meeting.
func (m *Manager) AddParticipant(meetingID, participantID, name string) {
	if sess, ok := m.lookup(meetingID); ok {
		sess.AddParticipant(participantID, name)
	}
}

// MarkParticipantLeft records a participant leaving the recorded meeting.
func (m *Manager) MarkParticipantLeft(meetingID, participantID string) {
	if sess, ok := m.lookup(meetingID); ok {
		sess.MarkParticipantLeft(participantID)
	}
}

// AddStream records a negotiated media stream for the recorded meeting.
func (m *Manager) AddStream(meetingID string, desc StreamDescriptor) {
	if sess, ok := m.lookup(meetingID); ok {
		sess.AddStream(desc)
	}
}

// autoStop is fired by the deadline scheduler when a session reaches its
// maximum duration.
func (m *Manager) autoStop(meetingID string) {
	m.logger.Info("max duration reached, stopping recording",
		slog.String("meeting_id", meetingID),
	)
	if _, err := m.Stop(context.Background(), meetingID); err != nil {
		m.logger.Error("auto-stopping recording",
			slog.String("meeting_id", meetingID),
			slog.String("error", err.Error()),
		)
	}
}

// handleEncoderExit reacts to the encoder process dying underneath an
// active session. Exits observed after a deliberate stop are ignored.
func (m *Manager) handleEncoderExit(sess *Session, exitErr error) {
	if !sess.markFailed() {
		return
	}
	meetingID := sess.Opts.MeetingID
	m.remove(meetingID, sess)
	m.scheduler.Cancel(meetingID)

	reason := "encoder exited unexpectedly"
	if exitErr != nil {
		reason = fmt.Sprintf("encoder exited unexpectedly: %v", exitErr)
	}
	m.logger.Error("encoder died, failing session",
		slog.String("session_id", sess.ID),
		slog.String("meeting_id", meetingID),
		slog.String("staging_path", sess.StagingPath()),
		slog.Any("stderr_tail", sess.enc.StderrLines()),
	)

	ctx := context.Background()
	record, err := m.recordings.GetByID(ctx, sess.RecordID)
	if err == nil && record != nil {
		record.MarkFailed(reason)
		if err := m.recordings.Update(ctx, record); err != nil {
			m.logger.Error("marking crashed recording failed", slog.String("error", err.Error()))
		}
	}
	m.bus.Publish(Event{
		Type:      EventFailed,
		SessionID: sess.ID,
		MeetingID: meetingID,
		Error:     reason,
	})
}

// Close stops the scheduler and gracefully stops every active session.
func (m *Manager) Close(ctx context.Context) error {
	m.scheduler.Stop()

	m.mu.RLock()
	meetings := make([]string, 0, len(m.sessions))
	for meetingID := range m.sessions {
		meetings = append(meetings, meetingID)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, meetingID := range meetings {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := m.Stop(ctx, id); err != nil {
				m.logger.Warn("stopping session on shutdown",
					slog.String("meeting_id", id),
					slog.String("error", err.Error()),
				)
			}
		}(meetingID)
	}
	wg.Wait()
	m.bus.Close()
	return nil
}
