//go:build rp2040

package main

import (
	"device/rp"
	"runtime/interrupt"

	"pulsegen/core"
)

// The playback timer is built from two alarms of the 1 MHz system timer.
// The runtime keeps alarm 0 for sleeping.
const (
	compareHWAlarm = 2
	wrapHWAlarm    = 3
	alarmPriority  = 0x40 // ahead of the USB and UART interrupts
	minAlarmLead   = 2    // us
)

// hwAlarms implements core.AlarmTimer on TIMER alarms 2 and 3
type hwAlarms struct{}

var alarms *core.AlarmBackend

func initAlarms() *core.AlarmBackend {
	alarms = core.NewAlarmBackend(hwAlarms{}, UpdateSystemTime)

	cmp := interrupt.New(rp.IRQ_TIMER_IRQ_2, compareISR)
	cmp.SetPriority(alarmPriority)
	cmp.Enable()

	wrap := interrupt.New(rp.IRQ_TIMER_IRQ_3, wrapISR)
	wrap.SetPriority(alarmPriority)
	wrap.Enable()

	rp.TIMER.INTE.SetBits(1<<compareHWAlarm | 1<<wrapHWAlarm)
	return alarms
}

func hwAlarm(alarm int) uint32 {
	if alarm == core.CompareAlarm {
		return compareHWAlarm
	}
	return wrapHWAlarm
}

func (hwAlarms) Now() uint32 {
	return rp.TIMER.TIMERAWL.Get()
}

// Arm pulls alarms that are already due to minAlarmLead from now, since the
// hardware only fires on an exact match.
func (h hwAlarms) Arm(alarm int, at uint32) {
	if now := h.Now(); int32(at-now) < minAlarmLead {
		at = now + minAlarmLead
	}
	if hwAlarm(alarm) == compareHWAlarm {
		rp.TIMER.ALARM2.Set(at)
	} else {
		rp.TIMER.ALARM3.Set(at)
	}
}

func (hwAlarms) Disarm(alarm int) {
	n := hwAlarm(alarm)
	rp.TIMER.ARMED.Set(1 << n)
	rp.TIMER.INTR.Set(1 << n)
}

func compareISR(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(1 << compareHWAlarm)
	alarms.OnCompareAlarm()
}

func wrapISR(interrupt.Interrupt) {
	rp.TIMER.INTR.Set(1 << wrapHWAlarm)
	alarms.OnWrapAlarm()
}
