package core

// CorrectTimes rotates the time column of table left by one and scales every
// time by multiplier. Masks keep their positions.
//
// The playback side loads the compare register with the time of the entry it
// will apply next, one event ahead of the mask it writes, so the first
// logical time ends up in the last slot.
func CorrectTimes(table *EventTable, multiplier uint32) {
	n := table.n
	if n == 0 {
		return
	}
	if multiplier == 0 {
		multiplier = 1
	}
	first := table.times[0]
	copy(table.times[:n-1], table.times[1:n])
	table.times[n-1] = first
	for i := 0; i < n; i++ {
		table.times[i] *= multiplier
	}
}
