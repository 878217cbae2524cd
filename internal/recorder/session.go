package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/meetrec/internal/blobstore"
	"github.com/jmylchreest/meetrec/internal/encoder"
	"github.com/jmylchreest/meetrec/internal/models"
)

// State identifies the lifecycle state of a recording session.
type State string

const (
	StateInitializing State = "initializing"
	StateRecording    State = "recording"
	StatePaused       State = "paused"
	StateStopped      State = "stopped"
	StateFailed       State = "failed"
)

// Options are the immutable parameters a recording session is started with.
type Options struct {
	MeetingID      string          `json:"meeting_id"`
	OrganizationID string          `json:"organization_id"`
	AudioOnly      bool            `json:"audio_only"`
	Quality        encoder.Quality `json:"quality"`
	MaxDuration    time.Duration   `json:"max_duration"`
	AutoTranscribe bool            `json:"auto_transcribe"`
	CaptureChat    bool            `json:"capture_chat"`
	CaptureScreen  bool            `json:"capture_screen"`
}

// Participant is a meeting attendee observed during the recording.
type Participant struct {
	ID       string     `json:"id"`
	Name     string     `json:"name,omitempty"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// StreamDescriptor describes one negotiated media stream feeding the session.
type StreamDescriptor struct {
	Kind  string `json:"kind"` // audio, video, screen
	Codec string `json:"codec,omitempty"`
	Label string `json:"label,omitempty"`
}

// Status is a point-in-time snapshot of a session. A zero Status with
// Recording false describes a meeting that has no live session.
type Status struct {
	Recording     bool               `json:"recording"`
	SessionID     string             `json:"session_id,omitempty"`
	MeetingID     string             `json:"meeting_id"`
	State         State              `json:"state,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	Duration      time.Duration      `json:"duration"`
	AudioOnly     bool               `json:"audio_only"`
	Quality       encoder.Quality    `json:"quality,omitempty"`
	Participants  []Participant      `json:"participants,omitempty"`
	Streams       []StreamDescriptor `json:"streams,omitempty"`
	ChunksFed     uint64             `json:"chunks_fed"`
	ChunksDropped uint64             `json:"chunks_dropped"`
	BytesFed      uint64             `json:"bytes_fed"`
	EncoderPID    int                `json:"encoder_pid,omitempty"`
}

// Result holds the artifact metadata produced by a successful stop.
type Result struct {
	SessionID   string        `json:"session_id"`
	FileKey     string        `json:"file_key"`
	DownloadURL string        `json:"download_url"`
	URLExpires  time.Time     `json:"url_expires"`
	SizeBytes   int64         `json:"size_bytes"`
	Duration    time.Duration `json:"duration"`
}

// Session is one active recording. It is the single owner of its encoder
// process and staging file from start until the artifact is uploaded.
type Session struct {
	ID       string
	RecordID models.ULID
	Opts     Options

	enc         *encoder.Encoder
	stagingPath string
	startedAt   time.Time
	logger      *slog.Logger

	mu           sync.RWMutex
	state        State
	participants []Participant
	streams      []StreamDescriptor

	chunksFed     atomic.Uint64
	chunksDropped atomic.Uint64
	bytesFed      atomic.Uint64
}

// newSession constructs a session in Initializing. The manager moves it to
// Recording once the encoder process is confirmed running.
func newSession(id string, recordID models.ULID, opts Options, enc *encoder.Encoder, stagingPath string, logger *slog.Logger) *Session {
	return &Session{
		ID:          id,
		RecordID:    recordID,
		Opts:        opts,
		enc:         enc,
		stagingPath: stagingPath,
		startedAt:   time.Now(),
		state:       StateInitializing,
		logger:      logger,
	}
}

// markRecording transitions Initializing to Recording. It is a no-op for
// any other state so a launch-time crash cannot be overwritten.
func (s *Session) markRecording() {
	s.mu.Lock()
	if s.state == StateInitializing {
		s.state = StateRecording
	}
	s.mu.Unlock()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// StagingPath returns the path of the staging file.
func (s *Session) StagingPath() string {
	return s.stagingPath
}

// StartedAt returns when capture began. It never changes across
// pause/resume cycles.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Duration is the wall-clock time since the session started, including any
// time spent paused.
func (s *Session) Duration() time.Duration {
	return time.Since(s.startedAt)
}

// ProcessChunk feeds one media chunk to the encoder. Chunks arriving while
// the session is not in the Recording state are dropped and counted; the
// caller is never blocked on session state.
func (s *Session) ProcessChunk(data []byte) {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if state != StateRecording {
		s.chunksDropped.Add(1)
		return
	}

	if _, err := s.enc.Write(data); err != nil {
		s.chunksDropped.Add(1)
		if errors.Is(err, encoder.ErrInputStalled) {
			// Expected once the process stops draining; avoid log floods.
			s.logger.Debug("dropping chunk, encoder input backlogged")
		} else {
			s.logger.Warn("dropping chunk, encoder write failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	s.chunksFed.Add(1)
	s.bytesFed.Add(uint64(len(data)))
}

// Pause suspends the encoder. Pausing a paused session is an error.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePaused:
		return ErrAlreadyPaused
	case StateRecording:
	default:
		return ErrNotRecording
	}

	if err := s.enc.Pause(); err != nil {
		return fmt.Errorf("pausing session: %w", err)
	}
	s.state = StatePaused
	return nil
}

// Resume resumes a paused encoder. Resuming a session that is not paused
// is an error.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRecording:
		return ErrNotPaused
	case StatePaused:
	default:
		return ErrNotRecording
	}

	if err := s.enc.Resume(); err != nil {
		return fmt.Errorf("resuming session: %w", err)
	}
	s.state = StateRecording
	return nil
}

// markStopping moves an active session into the Stopped state, returning
// false if the session was not active. This is the linearization point for
// concurrent stops: exactly one caller wins.
func (s *Session) markStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording && s.state != StatePaused {
		return false
	}
	s.state = StateStopped
	return true
}

// markFailed transitions the session to Failed, returning false if it was
// already in a terminal state.
func (s *Session) markFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped || s.state == StateFailed {
		return false
	}
	s.state = StateFailed
	return true
}

// AddParticipant records a participant joining the meeting.
func (s *Session) AddParticipant(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants = append(s.participants, Participant{
		ID:       id,
		Name:     name,
		JoinedAt: time.Now(),
	})
}

// MarkParticipantLeft records the most recent unclosed entry for the
// participant as having left. The participant list is append-only.
func (s *Session) MarkParticipantLeft(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.participants) - 1; i >= 0; i-- {
		if s.participants[i].ID == id && s.participants[i].LeftAt == nil {
			now := time.Now()
			s.participants[i].LeftAt = &now
			return
		}
	}
}

// AddStream records a negotiated media stream descriptor.
func (s *Session) AddStream(desc StreamDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append(s.streams, desc)
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	state := s.state
	participants := append([]Participant(nil), s.participants...)
	streams := append([]StreamDescriptor(nil), s.streams...)
	s.mu.RUnlock()

	return Status{
		Recording:     true,
		SessionID:     s.ID,
		MeetingID:     s.Opts.MeetingID,
		State:         state,
		StartedAt:     s.startedAt,
		Duration:      s.Duration(),
		AudioOnly:     s.Opts.AudioOnly,
		Quality:       s.Opts.Quality,
		Participants:  participants,
		Streams:       streams,
		ChunksFed:     s.chunksFed.Load(),
		ChunksDropped: s.chunksDropped.Load(),
		BytesFed:      s.bytesFed.Load(),
		EncoderPID:    s.enc.PID(),
	}
}

// finalize drains the encoder, uploads the artifact, and deletes the
// staging file. On upload failure the staging file is retained and an
// UploadError is returned. The caller must have won markStopping first.
func (s *Session) finalize(ctx context.Context, store blobstore.Store, grace, urlTTL time.Duration, contentType, fileKey string) (*Result, error) {
	duration := s.Duration()

	if err := s.enc.Stop(grace); err != nil {
		s.logger.Warn("stopping encoder", slog.String("error", err.Error()))
	}

	f, err := os.Open(s.stagingPath)
	if err != nil {
		return nil, &UploadError{StagingPath: s.stagingPath, Err: fmt.Errorf("opening staging file: %w", err)}
	}
	defer f.Close()

	info, err := store.Upload(ctx, fileKey, f, contentType, map[string]string{
		"meeting_id":      s.Opts.MeetingID,
		"organization_id": s.Opts.OrganizationID,
		"session_id":      s.ID,
	})
	if err != nil {
		return nil, &UploadError{StagingPath: s.stagingPath, Err: err}
	}

	signedURL, expires, err := store.SignedURL(fileKey, urlTTL)
	if err != nil {
		return nil, &UploadError{StagingPath: s.stagingPath, Err: fmt.Errorf("signing download url: %w", err)}
	}

	if err := os.Remove(s.stagingPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing staging file",
			slog.String("path", s.stagingPath),
			slog.String("error", err.Error()),
		)
	}

	return &Result{
		SessionID:   s.ID,
		FileKey:     fileKey,
		DownloadURL: signedURL,
		URLExpires:  expires,
		SizeBytes:   info.Size,
		Duration:    duration,
	}, nil
}

// abort kills the encoder and removes the staging file. Used when a start
// fails partway or the process is shutting down uncleanly.
func (s *Session) abort() {
	_ = s.enc.Stop(0)
	if err := os.Remove(s.stagingPath); err != nil && !os.IsNotExist(err) {
		s.logger.Debug("removing staging file on abort",
			slog.String("path", filepath.Clean(s.stagingPath)),
			slog.String("error", err.Error()),
		)
	}
}
