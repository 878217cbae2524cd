// Package handlers provides HTTP API handlers for meetrec.
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/meetrec/internal/encoder"
	"github.com/jmylchreest/meetrec/internal/recorder"
)

// RecordingHandler handles recording session API endpoints.
type RecordingHandler struct {
	manager *recorder.Manager
}

// NewRecordingHandler creates a new recording handler.
func NewRecordingHandler(manager *recorder.Manager) *RecordingHandler {
	return &RecordingHandler{manager: manager}
}

// StartRecordingRequest is the request body for starting a recording.
type StartRecordingRequest struct {
	OrganizationID string `json:"organization_id" doc:"Organization that owns the recording" required:"true"`
	AudioOnly      bool   `json:"audio_only,omitempty" doc:"Capture audio only"`
	Quality        string `json:"quality,omitempty" enum:"low,medium,high,4k" doc:"Video quality tier (default medium)"`
	MaxDurationSec int64  `json:"max_duration_seconds,omitempty" minimum:"0" doc:"Automatically stop after this many seconds (0 disables)"`
	AutoTranscribe bool   `json:"auto_transcribe,omitempty" doc:"Enqueue transcription when the recording completes"`
	CaptureChat    bool   `json:"capture_chat,omitempty" doc:"Capture the meeting chat stream"`
	CaptureScreen  bool   `json:"capture_screen,omitempty" doc:"Capture shared screens"`
}

// SessionStatusBody is the API representation of a session snapshot.
type SessionStatusBody struct {
	Recording     bool                        `json:"recording"`
	SessionID     string                      `json:"session_id,omitempty"`
	MeetingID     string                      `json:"meeting_id"`
	State         string                      `json:"state"`
	StartedAt     time.Time                   `json:"started_at"`
	DurationMs    int64                       `json:"duration_ms"`
	AudioOnly     bool                        `json:"audio_only"`
	Quality       string                      `json:"quality,omitempty"`
	Participants  []recorder.Participant      `json:"participants,omitempty"`
	Streams       []recorder.StreamDescriptor `json:"streams,omitempty"`
	ChunksFed     uint64                      `json:"chunks_fed"`
	ChunksDropped uint64                      `json:"chunks_dropped"`
	BytesFed      uint64                      `json:"bytes_fed"`
}

func statusBody(st recorder.Status) SessionStatusBody {
	return SessionStatusBody{
		Recording:     st.Recording,
		SessionID:     st.SessionID,
		MeetingID:     st.MeetingID,
		State:         string(st.State),
		StartedAt:     st.StartedAt,
		DurationMs:    st.Duration.Milliseconds(),
		AudioOnly:     st.AudioOnly,
		Quality:       string(st.Quality),
		Participants:  st.Participants,
		Streams:       st.Streams,
		ChunksFed:     st.ChunksFed,
		ChunksDropped: st.ChunksDropped,
		BytesFed:      st.BytesFed,
	}
}

// StartRecordingInput is the input for the start operation.
type StartRecordingInput struct {
	MeetingID string                `path:"meetingID" doc:"Meeting identifier"`
	Body      StartRecordingRequest `required:"true"`
}

// SessionStatusOutput wraps a session snapshot response.
type SessionStatusOutput struct {
	Body SessionStatusBody
}

// StopRecordingInput is the input for the stop operation.
type StopRecordingInput struct {
	MeetingID string `path:"meetingID" doc:"Meeting identifier"`
}

// StopRecordingOutput is the artifact metadata returned by a stop.
type StopRecordingOutput struct {
	Body struct {
		SessionID   string    `json:"session_id"`
		FileKey     string    `json:"file_key"`
		DownloadURL string    `json:"download_url"`
		URLExpires  time.Time `json:"url_expires"`
		SizeBytes   int64     `json:"size_bytes"`
		DurationMs  int64     `json:"duration_ms"`
	}
}

// SessionControlInput addresses pause/resume/status operations.
type SessionControlInput struct {
	MeetingID string `path:"meetingID" doc:"Meeting identifier"`
}

// SessionControlOutput is an empty acknowledgement.
type SessionControlOutput struct{}

// ActiveSessionsOutput lists every active session.
type ActiveSessionsOutput struct {
	Body struct {
		Sessions []SessionStatusBody `json:"sessions"`
		Count    int                 `json:"count"`
	}
}

// Register registers the recording routes with the API.
func (h *RecordingHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "startRecording",
		Method:        "POST",
		Path:          "/api/v1/recordings/{meetingID}/start",
		Summary:       "Start recording",
		Description:   "Starts a recording session for a meeting. A meeting can have at most one active recording.",
		Tags:          []string{"Recordings"},
		DefaultStatus: 201,
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopRecording",
		Method:      "POST",
		Path:        "/api/v1/recordings/{meetingID}/stop",
		Summary:     "Stop recording",
		Description: "Stops the active recording, uploads the artifact, and returns its download URL.",
		Tags:        []string{"Recordings"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "pauseRecording",
		Method:      "POST",
		Path:        "/api/v1/recordings/{meetingID}/pause",
		Summary:     "Pause recording",
		Tags:        []string{"Recordings"},
	}, h.Pause)

	huma.Register(api, huma.Operation{
		OperationID: "resumeRecording",
		Method:      "POST",
		Path:        "/api/v1/recordings/{meetingID}/resume",
		Summary:     "Resume recording",
		Tags:        []string{"Recordings"},
	}, h.Resume)

	huma.Register(api, huma.Operation{
		OperationID: "getRecordingStatus",
		Method:      "GET",
		Path:        "/api/v1/recordings/{meetingID}",
		Summary:     "Get recording status",
		Tags:        []string{"Recordings"},
	}, h.Status)

	huma.Register(api, huma.Operation{
		OperationID: "listActiveRecordings",
		Method:      "GET",
		Path:        "/api/v1/recordings/active",
		Summary:     "List active recordings",
		Tags:        []string{"Recordings"},
	}, h.Active)
}

// Start starts a recording session.
func (h *RecordingHandler) Start(ctx context.Context, input *StartRecordingInput) (*SessionStatusOutput, error) {
	opts := recorder.Options{
		MeetingID:      input.MeetingID,
		OrganizationID: input.Body.OrganizationID,
		AudioOnly:      input.Body.AudioOnly,
		Quality:        encoder.Quality(input.Body.Quality),
		MaxDuration:    time.Duration(input.Body.MaxDurationSec) * time.Second,
		AutoTranscribe: input.Body.AutoTranscribe,
		CaptureChat:    input.Body.CaptureChat,
		CaptureScreen:  input.Body.CaptureScreen,
	}

	status, err := h.manager.Start(ctx, opts)
	if err != nil {
		var launchErr *recorder.EncoderLaunchError
		switch {
		case errors.Is(err, recorder.ErrAlreadyRecording):
			return nil, huma.Error409Conflict("meeting is already being recorded")
		case errors.Is(err, recorder.ErrMaxSessions):
			return nil, huma.Error503ServiceUnavailable("maximum concurrent recording sessions reached")
		case errors.As(err, &launchErr):
			return nil, huma.Error502BadGateway("failed to launch encoder", err)
		default:
			return nil, huma.Error400BadRequest("invalid recording options", err)
		}
	}
	return &SessionStatusOutput{Body: statusBody(status)}, nil
}

// Stop stops the active recording for a meeting.
func (h *RecordingHandler) Stop(ctx context.Context, input *StopRecordingInput) (*StopRecordingOutput, error) {
	result, err := h.manager.Stop(ctx, input.MeetingID)
	if err != nil {
		var uploadErr *recorder.UploadError
		switch {
		case errors.Is(err, recorder.ErrNotRecording):
			return nil, huma.Error404NotFound("no active recording for meeting")
		case errors.As(err, &uploadErr):
			return nil, huma.Error500InternalServerError("failed to upload recording artifact", err)
		default:
			return nil, huma.Error500InternalServerError("failed to stop recording", err)
		}
	}

	out := &StopRecordingOutput{}
	out.Body.SessionID = result.SessionID
	out.Body.FileKey = result.FileKey
	out.Body.DownloadURL = result.DownloadURL
	out.Body.URLExpires = result.URLExpires
	out.Body.SizeBytes = result.SizeBytes
	out.Body.DurationMs = result.Duration.Milliseconds()
	return out, nil
}

// Pause pauses the active recording for a meeting.
func (h *RecordingHandler) Pause(ctx context.Context, input *SessionControlInput) (*SessionControlOutput, error) {
	if err := h.manager.Pause(ctx, input.MeetingID); err != nil {
		switch {
		case errors.Is(err, recorder.ErrNotRecording):
			return nil, huma.Error404NotFound("no active recording for meeting")
		case errors.Is(err, recorder.ErrAlreadyPaused):
			return nil, huma.Error409Conflict("recording is already paused")
		}
		return nil, huma.Error500InternalServerError("failed to pause recording", err)
	}
	return &SessionControlOutput{}, nil
}

// Resume resumes a paused recording.
func (h *RecordingHandler) Resume(ctx context.Context, input *SessionControlInput) (*SessionControlOutput, error) {
	if err := h.manager.Resume(ctx, input.MeetingID); err != nil {
		switch {
		case errors.Is(err, recorder.ErrNotRecording):
			return nil, huma.Error404NotFound("no active recording for meeting")
		case errors.Is(err, recorder.ErrNotPaused):
			return nil, huma.Error409Conflict("recording is not paused")
		}
		return nil, huma.Error500InternalServerError("failed to resume recording", err)
	}
	return &SessionControlOutput{}, nil
}

// Status returns a snapshot of the recording state for a meeting. Meetings
// without a live session answer with recording set to false.
func (h *RecordingHandler) Status(_ context.Context, input *SessionControlInput) (*SessionStatusOutput, error) {
	return &SessionStatusOutput{Body: statusBody(h.manager.Status(input.MeetingID))}, nil
}

// Active lists every active recording session.
func (h *RecordingHandler) Active(_ context.Context, _ *struct{}) (*ActiveSessionsOutput, error) {
	active := h.manager.Active()
	bodies := make([]SessionStatusBody, 0, len(active))
	for _, st := range active {
		bodies = append(bodies, statusBody(st))
	}

	out := &ActiveSessionsOutput{}
	out.Body.Sessions = bodies
	out.Body.Count = len(bodies)
	return out, nil
}
