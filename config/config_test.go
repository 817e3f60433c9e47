package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pulsegen/core"
	"pulsegen/protocol"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte(`{}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TickMultiplier != core.DefaultTickMultiplier {
		t.Errorf("Expected tick multiplier %d, got %d", core.DefaultTickMultiplier, cfg.TickMultiplier)
	}
	if cfg.MaxStates != core.TableCapacity {
		t.Errorf("Expected max states %d, got %d", core.TableCapacity, cfg.MaxStates)
	}
	if cfg.ChannelCount != 16 || len(cfg.Channels) != 16 {
		t.Errorf("Expected 16 channels, got %d/%d", cfg.ChannelCount, len(cfg.Channels))
	}
	if cfg.Baud != 115200 {
		t.Errorf("Expected baud 115200, got %d", cfg.Baud)
	}
	if cfg.ReadGap() != 10*time.Millisecond {
		t.Errorf("Expected 10ms read gap, got %v", cfg.ReadGap())
	}
	if cfg.Version.Software != protocol.Version {
		t.Errorf("Expected software version %s, got %s", protocol.Version, cfg.Version.Software)
	}
}

func TestLoadChannels(t *testing.T) {
	cfg, err := Load([]byte(`{
		"tick_multiplier": 1,
		"max_states": 32,
		"channel_count": 4,
		"channels": [{"pin": 8}, {"pin": 9, "inverted": true}],
		"address_scheme": "broadcast",
		"framing": "nibble",
		"address": 12
	}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	m := cfg.ChannelMap()
	if m.Count() != 4 {
		t.Fatalf("Expected 4 channels, got %d", m.Count())
	}
	spec, _ := m.Spec(1)
	if spec.Pin != 9 || !spec.Inverted {
		t.Errorf("Channel 1: unexpected %+v", spec)
	}
	spec, _ = m.Spec(3)
	if spec.Pin != 3 || spec.Inverted {
		t.Errorf("Channel 3 should default to pin 3, got %+v", spec)
	}

	scheme, framing := cfg.BusSettings()
	if scheme != protocol.AddressBroadcast || framing != protocol.FramingNibble {
		t.Errorf("Unexpected bus settings %s/%s", scheme, framing)
	}

	ec := cfg.EngineConfig()
	if ec.TickMultiplier != 1 || ec.MaxStates != 32 {
		t.Errorf("Unexpected engine config %+v", ec)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []string{
		`{"max_states": 65}`,
		`{"channel_count": 17}`,
		`{"channels": [{"pin": 16}]}`,
		`{"channels": [{"pin": 2}, {"pin": 2}]}`,
		`{"address_scheme": "ring"}`,
		`{"framing": "base64"}`,
		`{"address": 128}`,
		`{"channel_count": 1, "channels": [{"pin": 0}, {"pin": 1}]}`,
	}
	for _, data := range tests {
		_, err := Load([]byte(data))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Load(%s): expected ErrInvalidConfig, got %v", data, err)
		}
	}

	if _, err := Load([]byte(`{not json`)); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	if err := os.WriteFile(path, []byte(`{"name": "lab", "max_states": 50}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Name != "lab" || cfg.MaxStates != 50 {
		t.Errorf("Unexpected config %+v", cfg)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		cfg, ok := Preset(name)
		if !ok {
			t.Fatalf("Preset %s missing", name)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Preset %s invalid: %v", name, err)
		}
		if cfg.Name != name {
			t.Errorf("Preset %s reports name %s", name, cfg.Name)
		}
	}

	bench, _ := Preset(PresetUSBBench)
	m := bench.ChannelMap()
	for ch := 0; ch < 16; ch++ {
		spec, _ := m.Spec(ch)
		if spec.Inverted != (ch >= 11) {
			t.Errorf("usb-bench channel %d inverted=%v", ch, spec.Inverted)
		}
	}

	ctrl, _ := Preset(PresetBusController)
	if ctrl.MaxStates != 64 || ctrl.ChannelMap().IdleMask() != 0xFFFF0000 {
		t.Errorf("bus-controller: unexpected %+v", ctrl)
	}

	if _, ok := Preset("nope"); ok {
		t.Error("Unknown preset should not exist")
	}
}
