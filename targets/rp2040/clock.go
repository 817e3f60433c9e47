//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"pulsegen/core"
)

// RP2040 timer peripheral
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24 // raw timer high word
	timerTIMERAWL = timerBase + 0x28 // raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// GetHardwareTime returns the low 32 bits of the microsecond counter
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// GetHardwareUptime reads the full 64 bit counter
func GetHardwareUptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return uint64(high1)<<32 | uint64(low)
		}
	}
}

// UpdateSystemTime feeds the hardware counter to the core clock used for
// trace timestamps.
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}
