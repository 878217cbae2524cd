package models

import "gorm.io/gorm"

// JobType represents the type of post-processing job to execute.
type JobType string

const (
	// JobTypeTranscription transcribes a finished recording.
	JobTypeTranscription JobType = "transcription"
	// JobTypeCompression re-encodes a finished recording for storage.
	JobTypeCompression JobType = "compression"
	// JobTypeAnalytics extracts meeting analytics from a finished recording.
	JobTypeAnalytics JobType = "analytics"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be picked up.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// Job represents a post-processing task enqueued when a recording stops.
// Workers outside this service pick jobs up by type and status.
type Job struct {
	BaseModel

	// Type indicates what kind of job this is.
	Type JobType `gorm:"not null;size:50;index" json:"type"`

	// RecordingID is the recording this job operates on.
	RecordingID ULID `gorm:"type:varchar(26);not null;index" json:"recording_id"`

	// OrganizationID is the owning organization, for worker-side scoping.
	OrganizationID string `gorm:"not null;size:255;index" json:"organization_id"`

	// Status indicates the current status of the job.
	Status JobStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// Payload is a JSON document describing the work (file key, options).
	Payload string `gorm:"size:4096" json:"payload,omitempty"`

	// StartedAt is when a worker began executing the job.
	StartedAt *Time `json:"started_at,omitempty"`

	// CompletedAt is when the job finished (successfully or not).
	CompletedAt *Time `json:"completed_at,omitempty"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// LastError contains the error message from the last failed attempt.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsFinished returns true if the job has completed (successfully or not).
func (j *Job) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// MarkRunning marks the job as running.
func (j *Job) MarkRunning() {
	now := Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.LastError = ""
}

// MarkCompleted marks the job as completed successfully.
func (j *Job) MarkCompleted() {
	now := Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}

// MarkFailed marks the job as failed with an error message.
func (j *Job) MarkFailed(err error) {
	now := Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	if err != nil {
		j.LastError = err.Error()
	}
	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.Type == "" {
		return ErrJobTypeRequired
	}
	if j.RecordingID.IsZero() {
		return ErrJobRecordingRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the job and generates a ULID.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// BeforeUpdate is a GORM hook that validates the job before update.
func (j *Job) BeforeUpdate(tx *gorm.DB) error {
	return j.Validate()
}
