package models

import "errors"

// Common validation errors for models.
var (
	// ErrMeetingIDRequired indicates a required meeting ID field is empty.
	ErrMeetingIDRequired = errors.New("meeting_id is required")

	// ErrOrganizationIDRequired indicates a required organization ID field is empty.
	ErrOrganizationIDRequired = errors.New("organization_id is required")

	// ErrJobTypeRequired indicates a required job type field is empty.
	ErrJobTypeRequired = errors.New("job type is required")

	// ErrJobRecordingRequired indicates a required recording ID field is zero.
	ErrJobRecordingRequired = errors.New("recording_id is required")
)
