package core

// ChannelSpec binds a logical channel to an output pin.
// Pin is the bit position (0-15) inside the output port.
type ChannelSpec struct {
	Pin      uint8
	Inverted bool
}

// SetBit returns the mask bit that drives the pin high.
func (c ChannelSpec) SetBit() uint32 {
	return 1 << (c.Pin & 0x0F)
}

// ResetBit returns the mask bit that drives the pin low.
func (c ChannelSpec) ResetBit() uint32 {
	return 1 << ((c.Pin & 0x0F) + 16)
}

// Bits returns both the set and reset bits of the pin.
func (c ChannelSpec) Bits() uint32 {
	return c.SetBit() | c.ResetBit()
}

// ToggleBit returns the bit for the toggle at ordinal i of a channel's
// time list. Even toggles switch a normal channel on, odd ones off;
// inverted channels do the opposite.
func (c ChannelSpec) ToggleBit(i int) uint32 {
	if (i%2 == 0) != c.Inverted {
		return c.SetBit()
	}
	return c.ResetBit()
}

// IdleBit returns the bit that puts the pin at its idle level.
// Inverted channels idle high.
func (c ChannelSpec) IdleBit() uint32 {
	if c.Inverted {
		return c.SetBit()
	}
	return c.ResetBit()
}

// ChannelMap is the immutable channel-to-pin table of a device.
type ChannelMap struct {
	specs [MaxChannels]ChannelSpec
	count int
}

// NewChannelMap builds a map from specs. At most MaxChannels are used.
func NewChannelMap(specs []ChannelSpec) *ChannelMap {
	m := &ChannelMap{}
	for i, s := range specs {
		if i >= MaxChannels {
			break
		}
		m.specs[i] = s
		m.count++
	}
	return m
}

// DefaultChannelMap maps channel n to pin n with normal polarity.
func DefaultChannelMap() *ChannelMap {
	specs := make([]ChannelSpec, MaxChannels)
	for i := range specs {
		specs[i] = ChannelSpec{Pin: uint8(i)}
	}
	return NewChannelMap(specs)
}

// Count returns the number of configured channels.
func (m *ChannelMap) Count() int {
	return m.count
}

// Spec returns the spec of channel ch.
func (m *ChannelMap) Spec(ch int) (ChannelSpec, bool) {
	if ch < 0 || ch >= m.count {
		return ChannelSpec{}, false
	}
	return m.specs[ch], true
}

// IdleMask returns the output mask that parks every channel at its idle level.
func (m *ChannelMap) IdleMask() uint32 {
	var mask uint32
	for i := 0; i < m.count; i++ {
		mask |= m.specs[i].IdleBit()
	}
	return mask
}

// PinMask returns the low 16 bits covering every configured pin.
func (m *ChannelMap) PinMask() uint16 {
	var mask uint16
	for i := 0; i < m.count; i++ {
		mask |= uint16(m.specs[i].SetBit())
	}
	return mask
}

// EncodeToggles merges a channel's toggle list into table and returns how
// many values were accepted. Values are taken in order; entries that do not
// fit are dropped without error.
func EncodeToggles(table *EventTable, spec ChannelSpec, times []uint32) int {
	accepted := 0
	for i, t := range times {
		if table.Merge(t, spec.ToggleBit(i)) {
			accepted++
		}
	}
	return accepted
}
