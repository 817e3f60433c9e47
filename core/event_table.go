package core

const (
	// TableCapacity is the storage reserved for every event table.
	TableCapacity = 64

	// MaxChannels is the number of logical output channels.
	MaxChannels = 16

	// MaxTogglesPerChannel bounds a single channel-set command.
	MaxTogglesPerChannel = 20
)

// EventEntry is one point on the shared timeline.
// Mask bits 0-15 drive pins high, bits 16-31 drive pins low.
type EventEntry struct {
	Time uint32
	Mask uint32
}

// EventTable is a time-sorted, fixed-capacity list of events describing one
// cycle of the waveform. Times and masks live in separate columns because the
// playback side walks them independently.
//
// The zero value is an empty table with TableCapacity slots.
type EventTable struct {
	times [TableCapacity]uint32
	masks [TableCapacity]uint32
	n     int
	limit int
}

// NewEventTable returns an empty table holding at most maxStates entries.
func NewEventTable(maxStates int) *EventTable {
	t := &EventTable{}
	t.SetLimit(maxStates)
	return t
}

// SetLimit changes the usable capacity. Values outside 1..TableCapacity
// select TableCapacity. Entries past the new limit are discarded.
func (t *EventTable) SetLimit(maxStates int) {
	if maxStates <= 0 || maxStates > TableCapacity {
		maxStates = TableCapacity
	}
	t.limit = maxStates
	if t.n > maxStates {
		t.n = maxStates
	}
}

// Cap returns the usable capacity.
func (t *EventTable) Cap() int {
	if t.limit == 0 {
		return TableCapacity
	}
	return t.limit
}

// Len returns the number of entries.
func (t *EventTable) Len() int {
	return t.n
}

// Empty reports whether the table holds no entries.
func (t *EventTable) Empty() bool {
	return t.n == 0
}

// At returns entry i. i must be in [0, Len()).
func (t *EventTable) At(i int) EventEntry {
	return EventEntry{Time: t.times[i], Mask: t.masks[i]}
}

// Times returns the time column. The slice aliases the table.
func (t *EventTable) Times() []uint32 {
	return t.times[:t.n]
}

// Masks returns the mask column. The slice aliases the table.
func (t *EventTable) Masks() []uint32 {
	return t.masks[:t.n]
}

// Entries copies the table into dst and returns it.
func (t *EventTable) Entries(dst []EventEntry) []EventEntry {
	for i := 0; i < t.n; i++ {
		dst = append(dst, EventEntry{Time: t.times[i], Mask: t.masks[i]})
	}
	return dst
}

// Clear removes every entry.
func (t *EventTable) Clear() {
	for i := 0; i < t.n; i++ {
		t.times[i] = 0
		t.masks[i] = 0
	}
	t.n = 0
}

// CopyFrom replaces the contents of t with src. The capacity of t is kept;
// entries beyond it are dropped.
func (t *EventTable) CopyFrom(src *EventTable) {
	n := src.n
	if n > t.Cap() {
		n = t.Cap()
	}
	copy(t.times[:n], src.times[:n])
	copy(t.masks[:n], src.masks[:n])
	for i := n; i < t.n; i++ {
		t.times[i] = 0
		t.masks[i] = 0
	}
	t.n = n
}

// Insert places a new entry at idx, shifting later entries right.
// It returns false when the table is full or idx is out of range.
func (t *EventTable) Insert(idx int, time, mask uint32) bool {
	if t.n >= t.Cap() || idx < 0 || idx > t.n {
		return false
	}
	copy(t.times[idx+1:t.n+1], t.times[idx:t.n])
	copy(t.masks[idx+1:t.n+1], t.masks[idx:t.n])
	t.times[idx] = time
	t.masks[idx] = mask
	t.n++
	return true
}

// Merge adds bits to the entry at time, creating the entry in sorted
// position when no entry has that time yet. A full table drops new times
// but still merges into existing ones.
func (t *EventTable) Merge(time, bits uint32) bool {
	if t.n == 0 || time < t.times[0] {
		return t.Insert(0, time, bits)
	}
	if time > t.times[t.n-1] {
		return t.Insert(t.n, time, bits)
	}

	idx := 0
	for idx < t.n && t.times[idx] < time {
		idx++
	}
	if t.times[idx] == time {
		t.masks[idx] |= bits
		return true
	}
	return t.Insert(idx, time, bits)
}

// ToggleTimes appends the times of every entry whose mask touches pinBits.
// When corrected is set the table is assumed to have been through
// CorrectTimes and the values are un-rotated and divided by multiplier.
func (t *EventTable) ToggleTimes(dst []uint32, pinBits uint32, corrected bool, multiplier uint32) []uint32 {
	for i := 0; i < t.n; i++ {
		if t.masks[i]&pinBits == 0 {
			continue
		}
		v := t.times[i]
		if corrected {
			if i == 0 {
				v = t.times[t.n-1]
			} else {
				v = t.times[i-1]
			}
			if multiplier > 1 {
				v /= multiplier
			}
		}
		dst = append(dst, v)
	}
	return dst
}
