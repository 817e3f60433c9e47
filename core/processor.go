package core

import (
	"sync/atomic"

	"pulsegen/protocol"
)

// AddressBook holds the bus address of the device
type AddressBook interface {
	Address() uint8
	SetAddress(addr uint8)
}

// AddressStore persists the bus address across resets
type AddressStore interface {
	LoadAddress() (uint8, bool)
	SaveAddress(addr uint8) error
}

// VersionInfo is reported by the VERSION command
type VersionInfo struct {
	Software      string
	Hardware      string
	Compatibility string
}

// Processor parses command messages and runs them against an Engine.
// It is not safe for concurrent use; feed it from one loop.
type Processor struct {
	engine   *Engine
	registry *CommandRegistry
	address  AddressBook
	store    AddressStore
	version  VersionInfo

	resetPending uint32
	resetHandler func()

	reply    protocol.ReplyBuffer
	times    [MaxTogglesPerChannel]uint32
	readback [TableCapacity]uint32
}

// ProcessorOptions configures a Processor. Nil fields get working defaults.
type ProcessorOptions struct {
	Address      AddressBook
	Store        AddressStore
	Version      VersionInfo
	ResetHandler func()
}

// NewProcessor creates a processor with every command registered.
func NewProcessor(engine *Engine, opts ProcessorOptions) *Processor {
	p := &Processor{
		engine:       engine,
		registry:     NewCommandRegistry(),
		address:      opts.Address,
		store:        opts.Store,
		version:      opts.Version,
		resetHandler: opts.ResetHandler,
	}
	if p.address == nil {
		p.address = protocol.NewAddress(0)
	}
	if p.version.Software == "" {
		p.version.Software = protocol.Version
	}
	if p.store != nil {
		if addr, ok := p.store.LoadAddress(); ok {
			p.address.SetAddress(addr)
		}
	}
	p.registerCommands()
	return p
}

// Engine returns the engine commands run against.
func (p *Processor) Engine() *Engine {
	return p.engine
}

// Registry returns the command registry.
func (p *Processor) Registry() *CommandRegistry {
	return p.registry
}

// Parse runs every command in msg in order. Unknown tokens are skipped and
// a token starting with "//" comments out the rest of its line.
func (p *Processor) Parse(msg []byte, w protocol.ReplyWriter) {
	tok := protocol.NewTokenizer(msg)
	for {
		word, ok := tok.Next()
		if !ok {
			return
		}
		if hasPrefix(word, "//") {
			tok.SkipLine()
			continue
		}
		p.registry.Dispatch(word, tok, w)
	}
}

// RequestReset marks a reset to be carried out by CheckPendingReset
func (p *Processor) RequestReset() {
	atomic.StoreUint32(&p.resetPending, 1)
}

// CheckPendingReset runs the reset handler if a reset was requested.
// Call it from the main loop after queued replies have been flushed.
func (p *Processor) CheckPendingReset() bool {
	if !atomic.CompareAndSwapUint32(&p.resetPending, 1, 0) {
		return false
	}
	if p.resetHandler != nil {
		p.resetHandler()
	}
	return true
}

func (p *Processor) send(w protocol.ReplyWriter) {
	if w != nil {
		w.WriteReply(p.reply.Result())
	}
}
