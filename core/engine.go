package core

import "sync/atomic"

// State is the playback state of an Engine
type State uint32

const (
	StateIdle State = iota
	StateRunning
	StateStopRequested
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopRequested:
		return "STOP_REQUESTED"
	case StateStopping:
		return "STOPPING"
	}
	return "UNKNOWN"
}

const DefaultTickMultiplier = 4

// EngineConfig describes the hardware an Engine drives.
type EngineConfig struct {
	Channels       *ChannelMap
	TickMultiplier uint32 // timer ticks per microsecond
	MaxStates      int
}

// Engine owns the shadow and live event tables of one device and runs the
// playback state machine on top of a Backend.
//
// Configuration methods (SetPeriod, SetChannel, Start, Stop and the
// readbacks) belong to a single command context. OnCompare and OnWrap are
// called by the backend from interrupt context. The two sides share only
// the state word and the backend registers.
type Engine struct {
	channels   *ChannelMap
	multiplier uint32
	backend    Backend
	port       OutputPort

	shadow EventTable
	live   EventTable

	period     uint32 // staged period in microseconds
	livePeriod uint32

	freshSequence   bool // next SetChannel starts a new shadow table
	pendingCommit   bool // shadow or period changed since the last commit
	needsCorrecting bool // shadow still holds raw times

	state  uint32
	cursor int

	trace TraceRing
}

// NewEngine creates an engine and attaches it to backend.
func NewEngine(cfg EngineConfig, backend Backend, port OutputPort) *Engine {
	e := &Engine{
		channels:      cfg.Channels,
		multiplier:    cfg.TickMultiplier,
		backend:       backend,
		port:          port,
		freshSequence: true,
	}
	if e.channels == nil {
		e.channels = DefaultChannelMap()
	}
	if e.multiplier == 0 {
		e.multiplier = DefaultTickMultiplier
	}
	e.shadow.SetLimit(cfg.MaxStates)
	e.live.SetLimit(cfg.MaxStates)
	e.trace.SetClock(GetTime)

	backend.Attach(e)
	e.port.Apply(e.channels.IdleMask())
	return e
}

// State returns the current playback state.
func (e *Engine) State() State {
	return State(atomic.LoadUint32(&e.state))
}

func (e *Engine) setState(s State) {
	atomic.StoreUint32(&e.state, uint32(s))
}

// Channels returns the channel map.
func (e *Engine) Channels() *ChannelMap {
	return e.channels
}

// TickMultiplier returns the timer ticks per microsecond.
func (e *Engine) TickMultiplier() uint32 {
	return e.multiplier
}

// Trace returns the event ring of this engine.
func (e *Engine) Trace() *TraceRing {
	return &e.trace
}

// SetPeriod stages a new cycle length. Zero is ignored and reported as false.
func (e *Engine) SetPeriod(us uint32) bool {
	if us == 0 {
		return false
	}
	e.period = us
	e.pendingCommit = true
	return true
}

// Period returns the staged cycle length in microseconds.
func (e *Engine) Period() uint32 {
	return e.period
}

// SetChannel merges a channel's toggle list into the shadow table.
// Channels outside the map are rejected without touching the table.
// At most MaxTogglesPerChannel times are used.
func (e *Engine) SetChannel(ch int, times []uint32) bool {
	spec, ok := e.channels.Spec(ch)
	if !ok {
		return false
	}
	if e.freshSequence {
		e.shadow.Clear()
		e.needsCorrecting = true
		e.freshSequence = false
	}
	if len(times) > MaxTogglesPerChannel {
		times = times[:MaxTogglesPerChannel]
	}
	EncodeToggles(&e.shadow, spec, times)
	e.pendingCommit = true
	return true
}

// ChannelTimes appends the toggle times of channel ch in the units they
// were configured in. Staged settings are reported until they are
// committed, the live table afterwards.
func (e *Engine) ChannelTimes(ch int, dst []uint32) []uint32 {
	spec, ok := e.channels.Spec(ch)
	if !ok {
		return dst
	}
	if e.pendingCommit {
		return e.shadow.ToggleTimes(dst, spec.Bits(), !e.needsCorrecting, e.multiplier)
	}
	return e.live.ToggleTimes(dst, spec.Bits(), true, e.multiplier)
}

// ChannelSettings is one channel of a Settings snapshot.
type ChannelSettings struct {
	Channel int
	Times   []uint32
}

// Settings returns the period and the toggle list of every channel that has
// at least one toggle.
func (e *Engine) Settings() (uint32, []ChannelSettings) {
	var out []ChannelSettings
	for ch := 0; ch < e.channels.Count(); ch++ {
		times := e.ChannelTimes(ch, nil)
		if len(times) == 0 {
			continue
		}
		out = append(out, ChannelSettings{Channel: ch, Times: times})
	}
	return e.period, out
}

// Live copies the live table into dst.
func (e *Engine) Live(dst *EventTable) {
	dst.CopyFrom(&e.live)
}

// LivePeriod returns the period of the committed table.
func (e *Engine) LivePeriod() uint32 {
	return e.livePeriod
}

// Start commits pending settings and arms playback. A stop in flight is
// waited out first. It returns false when the engine was already running.
func (e *Engine) Start() bool {
	if e.stopInFlight() {
		e.trace.Record(EvtStartWait, e.State(), 0, 0)
		for e.stopInFlight() {
			e.backend.Yield()
		}
	}
	e.freshSequence = true

	if e.State() == StateRunning {
		return false
	}

	if e.pendingCommit {
		if e.backend.StreamEnabled() {
			e.trace.Record(EvtSkipCommit, e.State(), uint32(e.shadow.Len()), e.period)
		} else {
			e.commit()
		}
	}
	e.arm()
	return true
}

func (e *Engine) stopInFlight() bool {
	s := e.State()
	return s == StateStopRequested || s == StateStopping
}

// commit promotes the shadow table. Only called with the stream disabled.
func (e *Engine) commit() {
	if e.needsCorrecting {
		CorrectTimes(&e.shadow, e.multiplier)
		e.needsCorrecting = false
	}
	e.live.CopyFrom(&e.shadow)
	e.livePeriod = e.period

	e.backend.SetStreamLength(e.live.Len())
	e.backend.SetPeriod(e.livePeriod * e.multiplier)
	e.pendingCommit = false

	e.trace.Record(EvtCommit, e.State(), uint32(e.live.Len()), e.livePeriod)
	DebugPrintln("[ENGINE] commit entries=" + itoa(e.live.Len()) + " period=" + utoa(e.livePeriod))
}

func (e *Engine) arm() {
	e.cursor = 0
	if n := e.live.Len(); n > 0 {
		e.backend.SetCompare(e.live.times[n-1])
	}
	e.setState(StateRunning)
	e.backend.EnableStream()
	e.backend.StartTimer()
	e.trace.Record(EvtArm, StateRunning, uint32(e.live.Len()), e.livePeriod)
}

// Stop asks a running engine to halt at a cycle boundary. It returns false
// when there was nothing to stop. An engine whose period is zero never
// reaches a boundary and is halted at once.
func (e *Engine) Stop() bool {
	e.freshSequence = true

	state := disableInterrupts()
	defer restoreInterrupts(state)

	if !e.backend.TimerRunning() {
		return false
	}
	if e.livePeriod == 0 {
		e.halt()
		return true
	}
	if !atomic.CompareAndSwapUint32(&e.state, uint32(StateRunning), uint32(StateStopRequested)) {
		return false
	}
	e.trace.Record(EvtStopRequest, StateStopRequested, uint32(e.cursor), 0)
	return true
}

// Shutdown halts playback immediately, without waiting for a boundary.
// It is meant for resets, not for normal operation.
func (e *Engine) Shutdown() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	e.halt()
}

// OnCompare applies the next table entry and loads the compare register
// with the time of the entry after it.
func (e *Engine) OnCompare() {
	n := e.live.n
	if e.cursor >= n {
		return
	}
	e.port.Apply(e.live.masks[e.cursor])
	e.backend.SetCompare(e.live.times[e.cursor])
	e.cursor++
}

// OnWrap restarts the table and advances the stop sequence.
func (e *Engine) OnWrap() {
	e.cursor = 0
	switch e.State() {
	case StateStopping:
		e.halt()
	case StateStopRequested:
		e.backend.SetOneShot(true)
		e.setState(StateStopping)
		e.trace.Record(EvtOneShot, StateStopping, 0, 0)
	}
}

func (e *Engine) halt() {
	e.backend.StopTimer()
	e.backend.DisableStream()
	e.port.Apply(e.channels.IdleMask())
	e.backend.SetOneShot(false)
	e.cursor = 0
	e.setState(StateIdle)
	e.trace.Record(EvtHalt, StateIdle, 0, 0)
	DebugAsync("[ENGINE] idle")
}
