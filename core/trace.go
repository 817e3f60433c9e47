package core

// TraceEvent captures an engine event for post-mortem analysis
type TraceEvent struct {
	Kind   uint8
	State  State
	Clock  uint32
	Value1 uint32
	Value2 uint32
}

// Event kinds
const (
	EvtCommit      = 1 // shadow table promoted to live
	EvtArm         = 2 // stream and timer enabled
	EvtStopRequest = 3 // stop accepted while running
	EvtOneShot     = 4 // wrap put the timer in one-shot mode
	EvtHalt        = 5 // outputs parked, engine idle
	EvtSkipCommit  = 6 // pending commit held back, stream still enabled
	EvtStartWait   = 7 // start waited for a stop in flight
)

const TraceRingSize = 32

// TraceRing keeps the last TraceRingSize events of one engine.
// Record is safe to call from event callbacks and the command context.
type TraceRing struct {
	events [TraceRingSize]TraceEvent
	head   uint8
	clock  func() uint32
}

// SetClock sets the time source stamped on every event.
func (r *TraceRing) SetClock(clock func() uint32) {
	r.clock = clock
}

// Record stores an event, overwriting the oldest one.
func (r *TraceRing) Record(kind uint8, state State, v1, v2 uint32) {
	var now uint32
	if r.clock != nil {
		now = r.clock()
	}
	irq := disableInterrupts()
	idx := r.head
	r.head = (idx + 1) % TraceRingSize
	r.events[idx] = TraceEvent{Kind: kind, State: state, Clock: now, Value1: v1, Value2: v2}
	restoreInterrupts(irq)
}

// Events appends the recorded events, oldest first.
func (r *TraceRing) Events(dst []TraceEvent) []TraceEvent {
	start := r.head
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := r.events[(start+i)%TraceRingSize]
		if evt.Kind == 0 {
			continue
		}
		dst = append(dst, evt)
	}
	return dst
}

// Clear drops every event.
func (r *TraceRing) Clear() {
	for i := range r.events {
		r.events[i] = TraceEvent{}
	}
	r.head = 0
}

// Dump writes the ring through w, oldest first.
func (r *TraceRing) Dump(w DebugWriter) {
	if w == nil {
		return
	}
	w("[TRACE] === Engine Trace ===")
	start := r.head
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := &r.events[(start+i)%TraceRingSize]
		if evt.Kind == 0 {
			continue
		}
		w("[TRACE] " + traceName(evt.Kind) +
			" state=" + evt.State.String() +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	w("[TRACE] === End ===")
}

func traceName(kind uint8) string {
	switch kind {
	case EvtCommit:
		return "COMMIT"
	case EvtArm:
		return "ARM"
	case EvtStopRequest:
		return "STOP_REQ"
	case EvtOneShot:
		return "ONE_SHOT"
	case EvtHalt:
		return "HALT"
	case EvtSkipCommit:
		return "SKIP_COMMIT"
	case EvtStartWait:
		return "START_WAIT"
	}
	return "UNKNOWN"
}
