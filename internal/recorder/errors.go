// Package recorder implements recording session state and the session
// manager that owns all active recordings in the process.
package recorder

import (
	"errors"
	"fmt"
)

// ErrAlreadyRecording is returned when a meeting already has an active
// recording session.
var ErrAlreadyRecording = errors.New("meeting is already being recorded")

// ErrNotRecording is returned when an operation targets a meeting without
// an active recording session.
var ErrNotRecording = errors.New("no active recording for meeting")

// ErrAlreadyPaused is returned when pausing a session that is already paused.
var ErrAlreadyPaused = errors.New("recording is already paused")

// ErrNotPaused is returned when resuming a session that is not paused.
var ErrNotPaused = errors.New("recording is not paused")

// ErrMaxSessions is returned when the concurrent session limit is reached.
var ErrMaxSessions = errors.New("maximum concurrent recording sessions reached")

// EncoderLaunchError indicates the encoder subprocess failed to launch.
type EncoderLaunchError struct {
	Err error
}

func (e *EncoderLaunchError) Error() string {
	return fmt.Sprintf("launching encoder: %v", e.Err)
}

func (e *EncoderLaunchError) Unwrap() error {
	return e.Err
}

// UploadError indicates the finished artifact could not be uploaded. The
// staging file is retained for manual recovery.
type UploadError struct {
	StagingPath string
	Err         error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading recording artifact (staging file retained at %s): %v", e.StagingPath, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
