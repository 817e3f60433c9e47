package core

import "testing"

func TestChannelToggleBits(t *testing.T) {
	normal := ChannelSpec{Pin: 3}
	inverted := ChannelSpec{Pin: 11, Inverted: true}

	tests := []struct {
		name string
		spec ChannelSpec
		i    int
		want uint32
	}{
		{"normal first toggle sets", normal, 0, 1 << 3},
		{"normal second toggle resets", normal, 1, 1 << 19},
		{"normal third toggle sets", normal, 2, 1 << 3},
		{"inverted first toggle resets", inverted, 0, 1 << 27},
		{"inverted second toggle sets", inverted, 1, 1 << 11},
	}
	for _, tc := range tests {
		if got := tc.spec.ToggleBit(tc.i); got != tc.want {
			t.Errorf("%s: expected %#x, got %#x", tc.name, tc.want, got)
		}
	}
}

func TestChannelMapIdleMask(t *testing.T) {
	m := NewChannelMap([]ChannelSpec{
		{Pin: 0},
		{Pin: 1, Inverted: true},
		{Pin: 5},
	})

	if m.Count() != 3 {
		t.Fatalf("Expected 3 channels, got %d", m.Count())
	}
	want := uint32(1<<16 | 1<<1 | 1<<21)
	if got := m.IdleMask(); got != want {
		t.Errorf("Expected idle mask %#x, got %#x", want, got)
	}
	if got := m.PinMask(); got != 0x23 {
		t.Errorf("Expected pin mask 0x23, got %#x", got)
	}
	if _, ok := m.Spec(3); ok {
		t.Error("Channel 3 should not exist")
	}
	if _, ok := m.Spec(-1); ok {
		t.Error("Negative channel should not exist")
	}
}

func TestDefaultChannelMap(t *testing.T) {
	m := DefaultChannelMap()
	if m.Count() != MaxChannels {
		t.Fatalf("Expected %d channels, got %d", MaxChannels, m.Count())
	}
	for ch := 0; ch < MaxChannels; ch++ {
		spec, ok := m.Spec(ch)
		if !ok || int(spec.Pin) != ch || spec.Inverted {
			t.Errorf("Channel %d: unexpected spec %+v", ch, spec)
		}
	}
}

func TestEncodeTogglesMergesChannels(t *testing.T) {
	tb := NewEventTable(TableCapacity)
	a := ChannelSpec{Pin: 0}
	b := ChannelSpec{Pin: 5}

	EncodeToggles(tb, a, []uint32{100, 200})
	EncodeToggles(tb, b, []uint32{150, 200})

	want := []EventEntry{
		{Time: 100, Mask: a.SetBit()},
		{Time: 150, Mask: b.SetBit()},
		{Time: 200, Mask: a.ResetBit() | b.ResetBit()},
	}
	got := tb.Entries(nil)
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestEncodeTogglesReportsDropped(t *testing.T) {
	tb := NewEventTable(3)
	n := EncodeToggles(tb, ChannelSpec{Pin: 1}, []uint32{1, 2, 3, 4, 5})
	if n != 3 {
		t.Errorf("Expected 3 accepted toggles, got %d", n)
	}
}
