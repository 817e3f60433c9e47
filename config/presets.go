package config

import (
	"sort"

	"pulsegen/protocol"
)

// Preset names
const (
	PresetUSBBench      = "usb-bench"
	PresetBusController = "bus-controller"
	PresetBusSensor     = "bus-sensor"
)

var presets = map[string]func() *Config{
	PresetUSBBench:      USBBench,
	PresetBusController: BusController,
	PresetBusSensor:     BusSensor,
}

// Preset returns a fresh copy of a named preset
func Preset(name string) (*Config, bool) {
	fn, ok := presets[name]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// PresetNames lists the presets in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// highInverted returns 16 channels on pins 0-15 with channels 11-15 inverted
func highInverted() []ChannelConfig {
	ch := make([]ChannelConfig, 16)
	for i := range ch {
		ch[i] = ChannelConfig{Pin: uint8(i), Inverted: i >= 11}
	}
	return ch
}

// USBBench is a bench unit scripted over USB only
func USBBench() *Config {
	cfg := &Config{
		Name:           PresetUSBBench,
		TickMultiplier: 4,
		MaxStates:      50,
		Channels:       highInverted(),
		AddressScheme:  "none",
		Framing:        "ascii",
		Version:        VersionConfig{Hardware: "1", Compatibility: "1"},
	}
	applyDefaults(cfg)
	return cfg
}

// BusController is a rack unit on the multidrop bus with plain ASCII framing
func BusController() *Config {
	cfg := &Config{
		Name:           PresetBusController,
		TickMultiplier: 4,
		MaxStates:      64,
		ChannelCount:   16,
		AddressScheme:  "own",
		Framing:        "ascii",
		Address:        1,
		Version:        VersionConfig{Hardware: "2", Compatibility: "2"},
	}
	applyDefaults(cfg)
	return cfg
}

// BusSensor is a sensor unit that also answers broadcasts and talks nibble
// framing on the bus
func BusSensor() *Config {
	cfg := &Config{
		Name:           PresetBusSensor,
		TickMultiplier: 4,
		MaxStates:      50,
		Channels:       highInverted(),
		AddressScheme:  "broadcast",
		Framing:        "nibble",
		Address:        protocol.MaxAddress - 1,
		Version:        VersionConfig{Hardware: "3", Compatibility: "2"},
	}
	applyDefaults(cfg)
	return cfg
}
