package core

// EventHandler receives the two hardware events of the playback timer.
// Both run in interrupt context and must not block.
type EventHandler interface {
	// OnCompare fires when the counter reaches the compare value.
	OnCompare()
	// OnWrap fires when the counter completes a period.
	OnWrap()
}

// Backend is the timer and replay hardware behind an Engine.
//
// The stream is the mechanism that moves table entries to the outputs on
// compare events. Its enable state must be read back from hardware, since
// the engine only touches the live table and the period while it is off.
type Backend interface {
	Attach(h EventHandler)

	EnableStream()
	DisableStream()
	StreamEnabled() bool
	SetStreamLength(n int)

	SetPeriod(ticks uint32)
	SetCompare(ticks uint32)
	StartTimer()
	StopTimer()
	TimerRunning() bool

	// SetOneShot makes the timer halt at its next wrap.
	SetOneShot(enabled bool)

	// Yield is called while the command context busy-waits on the engine.
	Yield()
}

// OutputPort applies a set/reset mask to the channel pins atomically.
// A pin named in both halves ends up high.
type OutputPort interface {
	Apply(mask uint32)
}
