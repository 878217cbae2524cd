package handlers

import (
	"context"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startInput(meetingID string) *StartRecordingInput {
	input := &StartRecordingInput{MeetingID: meetingID}
	input.Body.OrganizationID = "org-1"
	return input
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se huma.StatusError
	require.ErrorAs(t, err, &se)
	return se.GetStatus()
}

func TestRecordingHandler_StartStop(t *testing.T) {
	h := NewRecordingHandler(newTestManager(t))
	ctx := context.Background()

	out, err := h.Start(ctx, startInput("meet-1"))
	require.NoError(t, err)
	assert.True(t, out.Body.Recording)
	assert.Equal(t, "meet-1", out.Body.MeetingID)
	assert.Equal(t, "recording", out.Body.State)
	assert.NotEmpty(t, out.Body.SessionID)

	stopOut, err := h.Stop(ctx, &StopRecordingInput{MeetingID: "meet-1"})
	require.NoError(t, err)
	assert.Contains(t, stopOut.Body.FileKey, "recordings/org-1/")
	assert.NotEmpty(t, stopOut.Body.DownloadURL)

	statusOut, err := h.Status(ctx, &SessionControlInput{MeetingID: "meet-1"})
	require.NoError(t, err)
	assert.False(t, statusOut.Body.Recording)
}

func TestRecordingHandler_StartConflict(t *testing.T) {
	h := NewRecordingHandler(newTestManager(t))
	ctx := context.Background()

	_, err := h.Start(ctx, startInput("meet-1"))
	require.NoError(t, err)

	_, err = h.Start(ctx, startInput("meet-1"))
	assert.Equal(t, 409, statusOf(t, err))
}

func TestRecordingHandler_StopUnknownMeeting(t *testing.T) {
	h := NewRecordingHandler(newTestManager(t))

	_, err := h.Stop(context.Background(), &StopRecordingInput{MeetingID: "nope"})
	assert.Equal(t, 404, statusOf(t, err))
}

func TestRecordingHandler_PauseResume(t *testing.T) {
	h := NewRecordingHandler(newTestManager(t))
	ctx := context.Background()

	_, err := h.Start(ctx, startInput("meet-1"))
	require.NoError(t, err)

	_, err = h.Pause(ctx, &SessionControlInput{MeetingID: "meet-1"})
	require.NoError(t, err)

	statusOut, err := h.Status(ctx, &SessionControlInput{MeetingID: "meet-1"})
	require.NoError(t, err)
	assert.Equal(t, "paused", statusOut.Body.State)

	_, err = h.Pause(ctx, &SessionControlInput{MeetingID: "meet-1"})
	assert.Equal(t, 409, statusOf(t, err))

	_, err = h.Resume(ctx, &SessionControlInput{MeetingID: "meet-1"})
	require.NoError(t, err)

	_, err = h.Resume(ctx, &SessionControlInput{MeetingID: "meet-1"})
	assert.Equal(t, 409, statusOf(t, err))

	statusOut, err = h.Status(ctx, &SessionControlInput{MeetingID: "meet-1"})
	require.NoError(t, err)
	assert.Equal(t, "recording", statusOut.Body.State)

	_, err = h.Pause(ctx, &SessionControlInput{MeetingID: "other"})
	assert.Equal(t, 404, statusOf(t, err))
}

func TestRecordingHandler_StatusUnknownMeeting(t *testing.T) {
	h := NewRecordingHandler(newTestManager(t))

	out, err := h.Status(context.Background(), &SessionControlInput{MeetingID: "gone"})
	require.NoError(t, err)
	assert.False(t, out.Body.Recording)
	assert.Empty(t, out.Body.SessionID)
	assert.Equal(t, "gone", out.Body.MeetingID)
}

func TestRecordingHandler_StartInvalidQuality(t *testing.T) {
	h := NewRecordingHandler(newTestManager(t))

	input := startInput("meet-1")
	input.Body.Quality = "ultra"
	_, err := h.Start(context.Background(), input)
	assert.Equal(t, 400, statusOf(t, err))
}

func TestRecordingHandler_Active(t *testing.T) {
	h := NewRecordingHandler(newTestManager(t))
	ctx := context.Background()

	out, err := h.Active(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, out.Body.Count)

	_, err = h.Start(ctx, startInput("meet-1"))
	require.NoError(t, err)
	_, err = h.Start(ctx, startInput("meet-2"))
	require.NoError(t, err)

	out, err = h.Active(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Body.Count)
	assert.Len(t, out.Body.Sessions, 2)
}
