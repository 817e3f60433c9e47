// Package config describes a pulse generator build: its channels, timer
// resolution and bus settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"pulsegen/core"
	"pulsegen/protocol"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// ChannelConfig maps a logical channel to an output pin
type ChannelConfig struct {
	Pin      uint8 `json:"pin"`
	Inverted bool  `json:"inverted"`
}

// VersionConfig is reported by the VERSION command
type VersionConfig struct {
	Software      string `json:"software"`
	Hardware      string `json:"hardware"`
	Compatibility string `json:"compatibility"`
}

// Config is the device configuration
type Config struct {
	Name           string          `json:"name"`
	TickMultiplier uint32          `json:"tick_multiplier"` // timer ticks per microsecond
	MaxStates      int             `json:"max_states"`
	ChannelCount   int             `json:"channel_count"`
	Channels       []ChannelConfig `json:"channels"`
	AddressScheme  string          `json:"address_scheme"` // none, own or broadcast
	Framing        string          `json:"framing"`        // ascii or nibble
	Address        uint8           `json:"address"`        // bus address used until one is stored
	Baud           uint32          `json:"baud"`
	ReadGapMillis  int             `json:"read_gap_ms"`
	QueueDepth     int             `json:"queue_depth"`
	Version        VersionConfig   `json:"version"`
}

// Load parses a JSON configuration and fills in defaults
func Load(jsonData []byte) (*Config, error) {
	var cfg Config

	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads and parses a JSON configuration file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Load(data)
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = "custom"
	}
	if cfg.TickMultiplier == 0 {
		cfg.TickMultiplier = core.DefaultTickMultiplier
	}
	if cfg.MaxStates == 0 {
		cfg.MaxStates = core.TableCapacity
	}
	if cfg.ChannelCount == 0 {
		cfg.ChannelCount = len(cfg.Channels)
	}
	if cfg.ChannelCount == 0 {
		cfg.ChannelCount = core.MaxChannels
	}
	// channels not listed map to the pin of the same number
	for i := len(cfg.Channels); i < cfg.ChannelCount && i < core.MaxChannels; i++ {
		cfg.Channels = append(cfg.Channels, ChannelConfig{Pin: uint8(i)})
	}
	if cfg.AddressScheme == "" {
		cfg.AddressScheme = "none"
	}
	if cfg.Framing == "" {
		cfg.Framing = "ascii"
	}
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.ReadGapMillis == 0 {
		cfg.ReadGapMillis = int(protocol.DefaultReadGap / time.Millisecond)
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = core.DefaultQueueDepth
	}
	if cfg.Version.Software == "" {
		cfg.Version.Software = protocol.Version
	}
}

// Validate checks the configuration for values the firmware cannot honor
func (c *Config) Validate() error {
	if c.MaxStates < 1 || c.MaxStates > core.TableCapacity {
		return fmt.Errorf("%w: max_states %d outside 1..%d", ErrInvalidConfig, c.MaxStates, core.TableCapacity)
	}
	if c.ChannelCount < 1 || c.ChannelCount > core.MaxChannels {
		return fmt.Errorf("%w: channel_count %d outside 1..%d", ErrInvalidConfig, c.ChannelCount, core.MaxChannels)
	}
	if len(c.Channels) > c.ChannelCount {
		return fmt.Errorf("%w: %d channels listed for channel_count %d", ErrInvalidConfig, len(c.Channels), c.ChannelCount)
	}
	var used uint16
	for i, ch := range c.Channels {
		if ch.Pin > 15 {
			return fmt.Errorf("%w: channel %d pin %d outside 0..15", ErrInvalidConfig, i, ch.Pin)
		}
		if used&(1<<ch.Pin) != 0 {
			return fmt.Errorf("%w: pin %d used twice", ErrInvalidConfig, ch.Pin)
		}
		used |= 1 << ch.Pin
	}
	if _, err := ParseAddressScheme(c.AddressScheme); err != nil {
		return err
	}
	if _, err := ParseFraming(c.Framing); err != nil {
		return err
	}
	if c.Address > protocol.MaxAddress {
		return fmt.Errorf("%w: address %d above %d", ErrInvalidConfig, c.Address, protocol.MaxAddress)
	}
	return nil
}

// ParseAddressScheme converts a scheme name
func ParseAddressScheme(s string) (protocol.AddressScheme, error) {
	switch s {
	case "none":
		return protocol.AddressNone, nil
	case "own":
		return protocol.AddressOwn, nil
	case "broadcast":
		return protocol.AddressBroadcast, nil
	}
	return protocol.AddressNone, fmt.Errorf("%w: unknown address scheme %q", ErrInvalidConfig, s)
}

// ParseFraming converts a framing name
func ParseFraming(s string) (protocol.Framing, error) {
	switch s {
	case "ascii":
		return protocol.FramingASCII, nil
	case "nibble":
		return protocol.FramingNibble, nil
	}
	return protocol.FramingASCII, fmt.Errorf("%w: unknown framing %q", ErrInvalidConfig, s)
}

// ChannelMap builds the engine channel map
func (c *Config) ChannelMap() *core.ChannelMap {
	specs := make([]core.ChannelSpec, len(c.Channels))
	for i, ch := range c.Channels {
		specs[i] = core.ChannelSpec{Pin: ch.Pin, Inverted: ch.Inverted}
	}
	return core.NewChannelMap(specs)
}

// EngineConfig returns the engine settings of this configuration
func (c *Config) EngineConfig() core.EngineConfig {
	return core.EngineConfig{
		Channels:       c.ChannelMap(),
		TickMultiplier: c.TickMultiplier,
		MaxStates:      c.MaxStates,
	}
}

// BusSettings returns the parsed bus options. Validate must have passed.
func (c *Config) BusSettings() (protocol.AddressScheme, protocol.Framing) {
	scheme, _ := ParseAddressScheme(c.AddressScheme)
	framing, _ := ParseFraming(c.Framing)
	return scheme, framing
}

// ReadGap returns the USB quiet gap
func (c *Config) ReadGap() time.Duration {
	return time.Duration(c.ReadGapMillis) * time.Millisecond
}

// VersionInfo returns the VERSION reply fields
func (c *Config) VersionInfo() core.VersionInfo {
	return core.VersionInfo{
		Software:      c.Version.Software,
		Hardware:      c.Version.Hardware,
		Compatibility: c.Version.Compatibility,
	}
}
