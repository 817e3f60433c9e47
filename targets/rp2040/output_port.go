//go:build rp2040

package main

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// The output program moves one 16 bit level word per FIFO entry to the
// channel pins:
//
//	pull block
//	out pins, 16
func buildOutputProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Pull(false, true).Encode(),
		asm.Out(rp2pio.OutDestPins, 16).Encode(),
	}
}

const outputPIOOrigin = 0

// pioPort drives 16 consecutive pins from a PIO state machine so every
// set/reset mask lands on all channels in the same cycle.
type pioPort struct {
	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	base   machine.Pin
	levels uint16
}

func newPIOPort(base machine.Pin) (*pioPort, error) {
	p := &pioPort{
		pio:  rp2pio.PIO0,
		base: base,
	}
	p.sm = p.pio.StateMachine(0)
	p.sm.TryClaim()

	program := buildOutputProgram()
	offset, err := p.pio.AddProgram(program, outputPIOOrigin)
	if err != nil {
		return nil, err
	}

	for i := machine.Pin(0); i < 16; i++ {
		(base + i).Configure(machine.PinConfig{Mode: p.pio.PinMode()})
	}

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetOutPins(base, 16)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(1, 0)

	p.sm.Init(offset, cfg)
	p.sm.SetPindirsConsecutive(base, 16, true)
	p.sm.SetPinsConsecutive(base, 16, false)
	p.sm.SetEnabled(true)
	return p, nil
}

// Apply implements core.OutputPort. Runs from the compare interrupt; the
// FIFO drains in a few system clocks so the wait is short.
func (p *pioPort) Apply(mask uint32) {
	set := uint16(mask)
	reset := uint16(mask >> 16)
	p.levels = (p.levels &^ reset) | set
	for p.sm.IsTxFIFOFull() {
	}
	p.sm.TxPut(uint32(p.levels))
}
