package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint64
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Scheduler is a sorted list of timers driven by an external clock.
// SimBackend runs its compare and wrap events on one.
type Scheduler struct {
	list *Timer
	now  uint64
}

// Now returns the time of the last dispatch.
func (s *Scheduler) Now() uint64 {
	return s.now
}

// Schedule adds a timer to the schedule
func (s *Scheduler) Schedule(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.insert(t)
}

// Cancel removes t from the schedule. It is a no-op for timers that are
// not scheduled.
func (s *Scheduler) Cancel(t *Timer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if s.list == t {
		s.list = t.Next
		t.Next = nil
		return
	}
	for cur := s.list; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return
		}
	}
}

// Peek returns the earliest timer without removing it.
func (s *Scheduler) Peek() *Timer {
	return s.list
}

// insert keeps the list sorted by WakeTime; equal times run in insertion order
func (s *Scheduler) insert(t *Timer) {
	if s.list == nil || t.WakeTime < s.list.WakeTime {
		t.Next = s.list
		s.list = t
		return
	}

	current := s.list
	for current.Next != nil && current.Next.WakeTime <= t.WakeTime {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// Dispatch runs every timer with WakeTime <= now
func (s *Scheduler) Dispatch(now uint64) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	s.now = now
	for s.list != nil && s.list.WakeTime <= now {
		timer := s.list
		s.list = timer.Next
		timer.Next = nil

		if timer.Handler(timer) == SF_RESCHEDULE {
			s.insert(timer)
		}
	}
}
