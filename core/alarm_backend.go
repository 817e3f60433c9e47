package core

import "sync/atomic"

// Alarm numbers of an AlarmTimer
const (
	CompareAlarm = 0
	WrapAlarm    = 1
)

// AlarmTimer is a free-running 32 bit counter with two one-shot alarms.
// Arm must fire an alarm whose time has already passed as soon as possible.
type AlarmTimer interface {
	Now() uint32
	Arm(alarm int, at uint32)
	Disarm(alarm int)
}

// AlarmBackend implements Backend on an AlarmTimer. A cycle starts at base;
// the wrap alarm fires at base+period and the compare alarm at
// base+compare. The owner calls OnCompareAlarm and OnWrapAlarm from the
// alarm interrupts.
//
// Cycle positions come from the scheduled alarm times, never from the
// counter at interrupt entry, so a late interrupt delays an entry but
// cannot drop it.
type AlarmBackend struct {
	timer   AlarmTimer
	handler EventHandler
	yield   func()

	period  uint32
	compare uint32
	length  int
	base    uint32
	armedAt uint32

	running bool
	oneShot bool
	stream  uint32
}

// NewAlarmBackend returns a stopped backend. yield runs while the command
// context waits on the engine and may be nil.
func NewAlarmBackend(timer AlarmTimer, yield func()) *AlarmBackend {
	return &AlarmBackend{timer: timer, yield: yield}
}

func (b *AlarmBackend) armCompare() {
	if b.compare >= b.period {
		return
	}
	b.armedAt = b.compare
	b.timer.Arm(CompareAlarm, b.base+b.compare)
}

// OnCompareAlarm handles the compare alarm.
func (b *AlarmBackend) OnCompareAlarm() {
	if !b.running {
		return
	}
	count := b.armedAt
	if b.StreamEnabled() && b.handler != nil {
		b.handler.OnCompare()
	}
	if b.running && b.compare > count {
		b.armCompare()
	}
}

// OnWrapAlarm handles the wrap alarm.
func (b *AlarmBackend) OnWrapAlarm() {
	if !b.running {
		return
	}
	b.base += b.period
	b.timer.Disarm(CompareAlarm)
	if b.oneShot {
		b.running = false
	}
	if b.handler != nil {
		b.handler.OnWrap()
	}
	if !b.running {
		return
	}
	b.timer.Arm(WrapAlarm, b.base+b.period)
	b.armCompare()
}

func (b *AlarmBackend) Attach(h EventHandler) {
	b.handler = h
}

func (b *AlarmBackend) EnableStream()       { atomic.StoreUint32(&b.stream, 1) }
func (b *AlarmBackend) DisableStream()      { atomic.StoreUint32(&b.stream, 0) }
func (b *AlarmBackend) StreamEnabled() bool { return atomic.LoadUint32(&b.stream) != 0 }

func (b *AlarmBackend) SetStreamLength(n int)   { b.length = n }
func (b *AlarmBackend) SetPeriod(ticks uint32)  { b.period = ticks }
func (b *AlarmBackend) SetCompare(ticks uint32) { b.compare = ticks }

func (b *AlarmBackend) StartTimer() {
	if b.running {
		return
	}
	b.running = true
	b.base = b.timer.Now()
	if b.period == 0 {
		return
	}
	b.timer.Arm(WrapAlarm, b.base+b.period)
	b.armCompare()
}

func (b *AlarmBackend) StopTimer() {
	b.running = false
	b.timer.Disarm(CompareAlarm)
	b.timer.Disarm(WrapAlarm)
}

func (b *AlarmBackend) TimerRunning() bool { return b.running }

func (b *AlarmBackend) SetOneShot(enabled bool) { b.oneShot = enabled }

func (b *AlarmBackend) Yield() {
	if b.yield != nil {
		b.yield()
	}
}
