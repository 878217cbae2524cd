package recorder

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jmylchreest/meetrec/internal/jobs"
	"github.com/jmylchreest/meetrec/internal/models"
)

// PostProcessor enqueues the post-processing pipeline for a finished
// recording. Each job is enqueued independently; one failing never blocks
// the others, and no failure propagates to the caller.
type PostProcessor struct {
	dispatcher jobs.Dispatcher
	logger     *slog.Logger
}

// NewPostProcessor wires the dispatcher used to persist jobs.
func NewPostProcessor(dispatcher jobs.Dispatcher, logger *slog.Logger) *PostProcessor {
	return &PostProcessor{
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("component", "postprocessor")),
	}
}

// DispatchAll enqueues compression and analytics jobs for every recording,
// plus a transcription job when the session asked for one. Jobs are
// dispatched concurrently and individual failures are logged only.
func (p *PostProcessor) DispatchAll(ctx context.Context, recordID models.ULID, orgID string, autoTranscribe bool, payload jobs.Payload) {
	types := []models.JobType{models.JobTypeCompression, models.JobTypeAnalytics}
	if autoTranscribe {
		types = append(types, models.JobTypeTranscription)
	}

	var wg sync.WaitGroup
	for _, jobType := range types {
		wg.Add(1)
		go func(jt models.JobType) {
			defer wg.Done()
			jobID, err := p.dispatcher.Dispatch(ctx, jt, recordID, orgID, payload)
			if err != nil {
				p.logger.Error("enqueueing post-processing job",
					slog.String("job_type", string(jt)),
					slog.String("recording_id", recordID.String()),
					slog.String("error", err.Error()),
				)
				return
			}
			p.logger.Info("post-processing job enqueued",
				slog.String("job_type", string(jt)),
				slog.String("job_id", jobID.String()),
				slog.String("recording_id", recordID.String()),
			)
		}(jobType)
	}
	wg.Wait()
}
