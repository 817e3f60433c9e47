//go:build rp2040

package main

import (
	"image/color"
	"machine"

	"tinygo.org/x/drivers/ws2812"

	"pulsegen/core"
)

var stateColors = [...]color.RGBA{
	core.StateIdle:          {R: 0, G: 0, B: 16},
	core.StateRunning:       {R: 0, G: 24, B: 0},
	core.StateStopRequested: {R: 24, G: 12, B: 0},
	core.StateStopping:      {R: 24, G: 12, B: 0},
}

// statusLED shows the engine state on a WS2812 pixel
type statusLED struct {
	led   ws2812.Device
	shown core.State
	valid bool
	buf   [1]color.RGBA
}

func newStatusLED(pin machine.Pin) *statusLED {
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &statusLED{led: ws2812.New(pin)}
}

// Show updates the pixel when the state changed since the last call
func (s *statusLED) Show(state core.State) {
	if s.valid && state == s.shown {
		return
	}
	if int(state) >= len(stateColors) {
		return
	}
	s.buf[0] = stateColors[state]
	if err := s.led.WriteColors(s.buf[:]); err != nil {
		return
	}
	s.shown = state
	s.valid = true
}
