package core

import "sync/atomic"

// SimBackend is a software model of the playback timer and replay stream.
// It counts ticks only when Advance or Yield is called, so the caller owns
// the passage of time. It is not safe for concurrent use; drive it and the
// engine from one goroutine.
//
// The model follows an up-counting timer: the counter runs from 0 to
// period-1, a compare event fires when it reaches the compare value, and a
// wrap event fires when it rolls over. A compare value at or below the
// counter waits for the next cycle.
type SimBackend struct {
	sched   Scheduler
	handler EventHandler

	period     uint32
	compare    uint32
	length     int
	cycleStart uint64

	running bool
	oneShot bool
	stream  uint32

	compareTimer Timer
	wrapTimer    Timer

	// GateViolations counts register updates made while the stream was enabled.
	GateViolations int
	// Wraps counts completed cycles.
	Wraps int
}

// NewSimBackend returns a stopped backend at tick 0.
func NewSimBackend() *SimBackend {
	b := &SimBackend{}
	b.compareTimer.Handler = b.compareEvent
	b.wrapTimer.Handler = b.wrapEvent
	return b
}

func (b *SimBackend) Attach(h EventHandler) {
	b.handler = h
}

// Now returns the current tick.
func (b *SimBackend) Now() uint64 {
	return b.sched.Now()
}

// Counter returns the counter value within the current cycle.
func (b *SimBackend) Counter() uint32 {
	if !b.running {
		return 0
	}
	return uint32(b.sched.Now() - b.cycleStart)
}

func (b *SimBackend) EnableStream() {
	atomic.StoreUint32(&b.stream, 1)
}

func (b *SimBackend) DisableStream() {
	atomic.StoreUint32(&b.stream, 0)
}

func (b *SimBackend) StreamEnabled() bool {
	return atomic.LoadUint32(&b.stream) != 0
}

func (b *SimBackend) SetStreamLength(n int) {
	if b.StreamEnabled() {
		b.GateViolations++
	}
	b.length = n
}

// StreamLength returns the last length programmed.
func (b *SimBackend) StreamLength() int {
	return b.length
}

func (b *SimBackend) SetPeriod(ticks uint32) {
	if b.StreamEnabled() {
		b.GateViolations++
	}
	b.period = ticks
}

// Period returns the period register.
func (b *SimBackend) Period() uint32 {
	return b.period
}

func (b *SimBackend) SetCompare(ticks uint32) {
	b.compare = ticks
}

// Compare returns the compare register.
func (b *SimBackend) Compare() uint32 {
	return b.compare
}

func (b *SimBackend) StartTimer() {
	if b.running {
		return
	}
	b.running = true
	b.cycleStart = b.sched.Now()
	if b.period == 0 {
		return
	}
	b.wrapTimer.WakeTime = b.cycleStart + uint64(b.period)
	b.sched.Cancel(&b.wrapTimer)
	b.sched.Schedule(&b.wrapTimer)
	b.scheduleCompare()
}

func (b *SimBackend) StopTimer() {
	b.running = false
	b.sched.Cancel(&b.wrapTimer)
	b.sched.Cancel(&b.compareTimer)
}

func (b *SimBackend) TimerRunning() bool {
	return b.running
}

func (b *SimBackend) SetOneShot(enabled bool) {
	b.oneShot = enabled
}

// OneShot returns the one-shot flag.
func (b *SimBackend) OneShot() bool {
	return b.oneShot
}

// Yield runs the hardware up to its next event.
func (b *SimBackend) Yield() {
	if next := b.sched.Peek(); next != nil {
		b.AdvanceTo(next.WakeTime)
	}
}

// Advance moves time forward by ticks, firing every event on the way.
func (b *SimBackend) Advance(ticks uint64) {
	b.AdvanceTo(b.sched.Now() + ticks)
}

// AdvanceTo moves time forward to the absolute tick target.
func (b *SimBackend) AdvanceTo(target uint64) {
	for {
		next := b.sched.Peek()
		if next == nil || next.WakeTime > target {
			break
		}
		b.sched.Dispatch(next.WakeTime)
	}
	if target > b.sched.Now() {
		b.sched.Dispatch(target)
	}
}

// scheduleCompare arms the compare event for the current cycle if the
// compare value is still ahead of the counter.
func (b *SimBackend) scheduleCompare() {
	b.sched.Cancel(&b.compareTimer)
	if b.compare >= b.period {
		return
	}
	at := b.cycleStart + uint64(b.compare)
	if at < b.sched.Now() {
		return
	}
	b.compareTimer.WakeTime = at
	b.sched.Schedule(&b.compareTimer)
}

func (b *SimBackend) compareEvent(t *Timer) uint8 {
	count := uint32(t.WakeTime - b.cycleStart)
	if b.StreamEnabled() && b.handler != nil {
		b.handler.OnCompare()
	}
	if !b.running {
		return SF_DONE
	}
	if b.compare > count && b.compare < b.period {
		t.WakeTime = b.cycleStart + uint64(b.compare)
		return SF_RESCHEDULE
	}
	return SF_DONE
}

func (b *SimBackend) wrapEvent(t *Timer) uint8 {
	b.cycleStart = t.WakeTime
	b.Wraps++
	b.sched.Cancel(&b.compareTimer)
	if b.oneShot {
		b.running = false
	}
	if b.handler != nil {
		b.handler.OnWrap()
	}
	if !b.running || b.period == 0 {
		return SF_DONE
	}
	t.WakeTime = b.cycleStart + uint64(b.period)
	b.scheduleCompare()
	return SF_RESCHEDULE
}

// Transition is a change of output levels seen by a SimPort.
type Transition struct {
	At     uint64
	Levels uint16
}

// SimPort records the levels of 16 output pins.
type SimPort struct {
	levels  uint16
	clock   func() uint64
	history []Transition
	// Record enables the transition history.
	Record bool
}

// NewSimPort returns a port stamping transitions with clock.
func NewSimPort(clock func() uint64) *SimPort {
	return &SimPort{clock: clock, Record: true}
}

func (p *SimPort) Apply(mask uint32) {
	set := uint16(mask)
	reset := uint16(mask >> 16)
	next := (p.levels &^ reset) | set
	if next == p.levels {
		return
	}
	p.levels = next
	if p.Record {
		var at uint64
		if p.clock != nil {
			at = p.clock()
		}
		p.history = append(p.history, Transition{At: at, Levels: next})
	}
}

// Levels returns the current pin levels.
func (p *SimPort) Levels() uint16 {
	return p.levels
}

// Level returns the level of pin.
func (p *SimPort) Level(pin uint8) bool {
	return p.levels&(1<<pin) != 0
}

// History returns the recorded transitions.
func (p *SimPort) History() []Transition {
	return p.history
}

// ClearHistory drops the recorded transitions.
func (p *SimPort) ClearHistory() {
	p.history = p.history[:0]
}
