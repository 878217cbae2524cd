package recorder

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jmylchreest/meetrec/internal/jobs"
	"github.com/jmylchreest/meetrec/internal/models"
)

func TestDispatchAllWithTranscription(t *testing.T) {
	d := newMemDispatcher()
	p := NewPostProcessor(d, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p.DispatchAll(context.Background(), models.NewULID(), "org-1", true, jobs.Payload{
		RecordingID: "rec-1",
		MeetingID:   "meet-1",
		FileKey:     "recordings/org-1/rec-1.mp4",
	})

	assert.ElementsMatch(t, []models.JobType{
		models.JobTypeTranscription,
		models.JobTypeCompression,
		models.JobTypeAnalytics,
	}, d.types())
}

func TestDispatchAllWithoutTranscription(t *testing.T) {
	d := newMemDispatcher()
	p := NewPostProcessor(d, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p.DispatchAll(context.Background(), models.NewULID(), "org-1", false, jobs.Payload{})

	assert.ElementsMatch(t, []models.JobType{
		models.JobTypeCompression,
		models.JobTypeAnalytics,
	}, d.types())
}

func TestDispatchAllToleratesPartialFailure(t *testing.T) {
	d := newMemDispatcher()
	d.failTypes[models.JobTypeTranscription] = true
	p := NewPostProcessor(d, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// One queue rejecting must not stop the other jobs from enqueueing.
	p.DispatchAll(context.Background(), models.NewULID(), "org-1", true, jobs.Payload{})

	assert.ElementsMatch(t, []models.JobType{
		models.JobTypeCompression,
		models.JobTypeAnalytics,
	}, d.types())
}
