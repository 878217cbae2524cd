package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/meetrec/internal/repository"
)

// Reaper sweeps persisted recording records that claim to be active but
// whose sessions no longer exist in memory, as happens after an unclean
// process exit. Stale records are marked failed; in-memory sessions are
// never touched.
type Reaper struct {
	recordings repository.RecordingRepository
	isActive   func(meetingID string) bool
	staleness  time.Duration
	schedule   cron.Schedule
	logger     *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// NewReaper parses the cron expression (six fields, seconds first) and
// builds a reaper. isActive reports whether a meeting currently has a live
// in-memory session.
func NewReaper(recordings repository.RecordingRepository, isActive func(meetingID string) bool, cronExpr string, staleness time.Duration, logger *slog.Logger) (*Reaper, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parsing reaper schedule %q: %w", cronExpr, err)
	}
	return &Reaper{
		recordings: recordings,
		isActive:   isActive,
		staleness:  staleness,
		schedule:   schedule,
		logger:     logger.With(slog.String("component", "reaper")),
		done:       make(chan struct{}),
	}, nil
}

// Start launches the sweep loop.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.loop()
}

// Stop terminates the sweep loop and waits for an in-flight sweep.
func (r *Reaper) Stop() {
	close(r.done)
	r.wg.Wait()
}

func (r *Reaper) loop() {
	defer r.wg.Done()

	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-r.done:
			timer.Stop()
			return
		case <-timer.C:
			if n, err := r.RunOnce(context.Background()); err != nil {
				r.logger.Error("sweeping stale recordings", slog.String("error", err.Error()))
			} else if n > 0 {
				r.logger.Info("reaped orphaned recordings", slog.Int("count", n))
			}
		}
	}
}

// RunOnce marks every persisted recording that has been in an active state
// longer than the staleness window, and has no live session, as failed.
// It returns the number of records reaped.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.staleness)
	stale, err := r.recordings.GetStaleRecordings(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing stale recordings: %w", err)
	}

	reaped := 0
	for _, record := range stale {
		if r.isActive(record.MeetingID) {
			continue
		}
		age := time.Since(time.Time(record.StartedAt)).Round(time.Minute)
		record.MarkFailed(fmt.Sprintf("orphaned: no live session after %s", age))
		if err := r.recordings.Update(ctx, record); err != nil {
			r.logger.Error("marking orphaned recording failed",
				slog.String("recording_id", record.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.logger.Warn("orphaned recording marked failed",
			slog.String("recording_id", record.ID.String()),
			slog.String("meeting_id", record.MeetingID),
			slog.Duration("age", age),
		)
		reaped++
	}
	return reaped, nil
}
