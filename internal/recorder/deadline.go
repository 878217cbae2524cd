package recorder

import (
	"container/heap"
	"sync"
	"time"
)

// deadlineItem is a pending auto-stop deadline for one meeting.
type deadlineItem struct {
	meetingID string
	at        time.Time
	index     int
}

// deadlineHeap is a min-heap ordered by deadline time.
type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	item := x.(*deadlineItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// DeadlineScheduler drives max-duration auto-stops for all sessions from a
// single goroutine over a deadline min-heap. One timer covers the earliest
// deadline; scheduling or cancelling wakes the loop to recompute it.
type DeadlineScheduler struct {
	mu    sync.Mutex
	heap  deadlineHeap
	items map[string]*deadlineItem

	fire func(meetingID string)
	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewDeadlineScheduler creates a scheduler that invokes fire for each
// expired deadline. Call Start to begin dispatching.
func NewDeadlineScheduler(fire func(meetingID string)) *DeadlineScheduler {
	return &DeadlineScheduler{
		items: make(map[string]*deadlineItem),
		fire:  fire,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Start launches the scheduler loop.
func (s *DeadlineScheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop terminates the scheduler loop. Pending deadlines do not fire.
func (s *DeadlineScheduler) Stop() {
	close(s.done)
	s.wg.Wait()
}

// Schedule registers (or replaces) the auto-stop deadline for a meeting.
func (s *DeadlineScheduler) Schedule(meetingID string, at time.Time) {
	s.mu.Lock()
	if existing, ok := s.items[meetingID]; ok {
		existing.at = at
		heap.Fix(&s.heap, existing.index)
	} else {
		item := &deadlineItem{meetingID: meetingID, at: at}
		heap.Push(&s.heap, item)
		s.items[meetingID] = item
	}
	s.mu.Unlock()
	s.poke()
}

// Cancel removes the pending deadline for a meeting, if any.
func (s *DeadlineScheduler) Cancel(meetingID string) {
	s.mu.Lock()
	if item, ok := s.items[meetingID]; ok {
		heap.Remove(&s.heap, item.index)
		delete(s.items, meetingID)
	}
	s.mu.Unlock()
	s.poke()
}

// Len returns the number of pending deadlines.
func (s *DeadlineScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *DeadlineScheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *DeadlineScheduler) loop() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		// Fire everything due, then arm the timer for the next deadline.
		next, ok := s.popDue()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if ok {
			timer.Reset(time.Until(next))
		} else {
			timer.Reset(time.Hour)
		}

		select {
		case <-s.done:
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// popDue fires all expired deadlines and returns the next pending deadline.
func (s *DeadlineScheduler) popDue() (time.Time, bool) {
	now := time.Now()

	var due []string
	s.mu.Lock()
	for s.heap.Len() > 0 && !s.heap[0].at.After(now) {
		item := heap.Pop(&s.heap).(*deadlineItem)
		delete(s.items, item.meetingID)
		due = append(due, item.meetingID)
	}
	var next time.Time
	hasNext := s.heap.Len() > 0
	if hasNext {
		next = s.heap[0].at
	}
	s.mu.Unlock()

	for _, meetingID := range due {
		// Fired outside the lock; fire may call Schedule or Cancel.
		go s.fire(meetingID)
	}
	return next, hasNext
}
