package recorder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedSet struct {
	mu    sync.Mutex
	order []string
	ch    chan string
}

func newFiredSet() *firedSet {
	return &firedSet{ch: make(chan string, 16)}
}

func (f *firedSet) fire(meetingID string) {
	f.mu.Lock()
	f.order = append(f.order, meetingID)
	f.mu.Unlock()
	f.ch <- meetingID
}

func (f *firedSet) wait(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-f.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for %d deadline firings", n)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func TestDeadlineSchedulerFires(t *testing.T) {
	fired := newFiredSet()
	s := NewDeadlineScheduler(fired.fire)
	s.Start()
	defer s.Stop()

	s.Schedule("meet-1", time.Now().Add(50*time.Millisecond))
	got := fired.wait(t, 1)
	assert.Equal(t, []string{"meet-1"}, got)
	assert.Zero(t, s.Len())
}

func TestDeadlineSchedulerFiresInOrder(t *testing.T) {
	fired := newFiredSet()
	s := NewDeadlineScheduler(fired.fire)
	s.Start()
	defer s.Stop()

	now := time.Now()
	// Scheduled out of order; must fire in deadline order.
	s.Schedule("meet-c", now.Add(250*time.Millisecond))
	s.Schedule("meet-a", now.Add(50*time.Millisecond))
	s.Schedule("meet-b", now.Add(150*time.Millisecond))

	got := fired.wait(t, 3)
	assert.Equal(t, []string{"meet-a", "meet-b", "meet-c"}, got)
}

func TestDeadlineSchedulerCancel(t *testing.T) {
	fired := newFiredSet()
	s := NewDeadlineScheduler(fired.fire)
	s.Start()
	defer s.Stop()

	s.Schedule("meet-1", time.Now().Add(100*time.Millisecond))
	s.Schedule("meet-2", time.Now().Add(150*time.Millisecond))
	s.Cancel("meet-1")

	got := fired.wait(t, 1)
	assert.Equal(t, []string{"meet-2"}, got)
	assert.Zero(t, s.Len())

	// Cancelling an unknown meeting is a no-op.
	s.Cancel("meet-3")
}

func TestDeadlineSchedulerReschedule(t *testing.T) {
	fired := newFiredSet()
	s := NewDeadlineScheduler(fired.fire)
	s.Start()
	defer s.Stop()

	s.Schedule("meet-1", time.Now().Add(time.Hour))
	require.Equal(t, 1, s.Len())

	// Replacing moves the deadline; it does not add a second entry.
	s.Schedule("meet-1", time.Now().Add(50*time.Millisecond))
	require.Equal(t, 1, s.Len())

	got := fired.wait(t, 1)
	assert.Equal(t, []string{"meet-1"}, got)
}

func TestDeadlineSchedulerStopDropsPending(t *testing.T) {
	fired := newFiredSet()
	s := NewDeadlineScheduler(fired.fire)
	s.Start()

	s.Schedule("meet-1", time.Now().Add(100*time.Millisecond))
	s.Stop()

	select {
	case id := <-fired.ch:
		t.Fatalf("deadline for %s fired after Stop", id)
	case <-time.After(250 * time.Millisecond):
	}
}
