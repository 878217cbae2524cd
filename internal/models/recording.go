package models

import "gorm.io/gorm"

// RecordingStatus represents the lifecycle status of a persisted recording.
type RecordingStatus string

const (
	// RecordingStatusRecording indicates the session is actively capturing.
	RecordingStatusRecording RecordingStatus = "recording"
	// RecordingStatusPaused indicates the session is paused.
	RecordingStatusPaused RecordingStatus = "paused"
	// RecordingStatusProcessing indicates capture finished and the artifact
	// is being finalized (encoder drain, upload).
	RecordingStatusProcessing RecordingStatus = "processing"
	// RecordingStatusCompleted indicates the artifact was uploaded.
	RecordingStatusCompleted RecordingStatus = "completed"
	// RecordingStatusFailed indicates the recording failed.
	RecordingStatusFailed RecordingStatus = "failed"
)

// TranscriptionStatus represents the state of downstream transcription.
type TranscriptionStatus string

const (
	// TranscriptionNotRequested indicates transcription was not requested.
	TranscriptionNotRequested TranscriptionStatus = "not_requested"
	// TranscriptionPending indicates a transcription job was enqueued.
	TranscriptionPending TranscriptionStatus = "pending"
	// TranscriptionCompleted indicates transcription finished.
	TranscriptionCompleted TranscriptionStatus = "completed"
	// TranscriptionFailed indicates transcription failed.
	TranscriptionFailed TranscriptionStatus = "failed"
)

// VideoQuality identifies an encoder quality tier.
type VideoQuality string

const (
	VideoQualityLow    VideoQuality = "low"
	VideoQualityMedium VideoQuality = "medium"
	VideoQualityHigh   VideoQuality = "high"
	VideoQuality4K     VideoQuality = "4k"
)

// Valid reports whether q names a known quality tier.
func (q VideoQuality) Valid() bool {
	switch q {
	case VideoQualityLow, VideoQualityMedium, VideoQualityHigh, VideoQuality4K:
		return true
	}
	return false
}

// Recording is the durable record of a recording session. It is created
// when a session starts and finalized when the session stops or fails.
type Recording struct {
	BaseModel

	// MeetingID is the meeting this recording captured.
	MeetingID string `gorm:"not null;size:255;index" json:"meeting_id"`

	// OrganizationID is the owning organization.
	OrganizationID string `gorm:"not null;size:255;index" json:"organization_id"`

	// Status is the lifecycle status of the recording.
	Status RecordingStatus `gorm:"not null;default:'recording';size:20;index" json:"status"`

	// AudioOnly indicates the session captured audio without video.
	AudioOnly bool `gorm:"default:false" json:"audio_only"`

	// Quality is the requested video quality tier.
	Quality VideoQuality `gorm:"size:10" json:"quality,omitempty"`

	// StartedAt is when capture began.
	StartedAt Time `gorm:"not null;index" json:"started_at"`

	// StoppedAt is when capture ended (successfully or not).
	StoppedAt *Time `json:"stopped_at,omitempty"`

	// DurationMs is the wall-clock capture duration in milliseconds,
	// including time spent paused.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// FileKey is the blob store key of the uploaded artifact.
	FileKey string `gorm:"size:512" json:"file_key,omitempty"`

	// DownloadURL is a signed URL for fetching the artifact.
	DownloadURL string `gorm:"size:2048" json:"download_url,omitempty"`

	// DownloadURLExpiresAt is when the signed URL stops working.
	DownloadURLExpiresAt *Time `json:"download_url_expires_at,omitempty"`

	// SizeBytes is the uploaded artifact size.
	SizeBytes int64 `json:"size_bytes,omitempty"`

	// TranscriptionStatus tracks the downstream transcription job.
	TranscriptionStatus TranscriptionStatus `gorm:"not null;default:'not_requested';size:20" json:"transcription_status"`

	// Error holds the failure annotation when Status is failed.
	Error string `gorm:"size:4096" json:"error,omitempty"`
}

// TableName returns the table name for Recording.
func (Recording) TableName() string {
	return "recordings"
}

// IsActive returns true while the session is still capturing or paused.
func (r *Recording) IsActive() bool {
	return r.Status == RecordingStatusRecording || r.Status == RecordingStatusPaused
}

// IsFinished returns true once the recording reached a terminal status.
func (r *Recording) IsFinished() bool {
	return r.Status == RecordingStatusCompleted || r.Status == RecordingStatusFailed
}

// MarkCompleted finalizes the record after a successful upload.
func (r *Recording) MarkCompleted(fileKey, downloadURL string, urlExpiry Time, sizeBytes int64) {
	now := Now()
	r.Status = RecordingStatusCompleted
	r.StoppedAt = &now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
	r.FileKey = fileKey
	r.DownloadURL = downloadURL
	r.DownloadURLExpiresAt = &urlExpiry
	r.SizeBytes = sizeBytes
	r.Error = ""
}

// MarkFailed finalizes the record with a failure annotation.
func (r *Recording) MarkFailed(reason string) {
	now := Now()
	r.Status = RecordingStatusFailed
	if r.StoppedAt == nil {
		r.StoppedAt = &now
	}
	r.DurationMs = r.StoppedAt.Sub(r.StartedAt).Milliseconds()
	r.Error = reason
}

// Validate performs basic validation on the recording.
func (r *Recording) Validate() error {
	if r.MeetingID == "" {
		return ErrMeetingIDRequired
	}
	if r.OrganizationID == "" {
		return ErrOrganizationIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the recording and generates a ULID.
func (r *Recording) BeforeCreate(tx *gorm.DB) error {
	if err := r.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return r.Validate()
}

// BeforeUpdate is a GORM hook that validates the recording before update.
func (r *Recording) BeforeUpdate(tx *gorm.DB) error {
	return r.Validate()
}
