//go:build rp2040

package main

import (
	"machine"
	"time"

	"pulsegen/config"
	"pulsegen/core"
	"pulsegen/protocol"
	"pulsegen/storage"
)

// preset selects the device configuration; override at build time with
// -ldflags "-X main.preset=bus-sensor".
var preset = "usb-bench"

const (
	channelBase = machine.GPIO2 // channels 0-15 on GP2-GP17
	statusPin   = machine.GPIO22
)

var (
	messagesReceived uint32
	msgerrors        uint32
)

func main() {
	// Clear any watchdog state left by a RESET command
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	initUSB()
	initDebugUART()
	UpdateSystemTime()

	cfg, ok := config.Preset(preset)
	if !ok {
		cfg = config.USBBench()
	}
	// The alarm timer counts microseconds, so no tick scaling is needed.
	cfg.TickMultiplier = 1

	backend := initAlarms()
	port, err := newPIOPort(channelBase)
	if err != nil {
		core.DebugPrintln("[MAIN] PIO init failed: " + err.Error())
		return
	}
	engine := core.NewEngine(cfg.EngineConfig(), backend, port)

	addr := protocol.NewAddress(cfg.Address)
	proc := core.NewProcessor(engine, core.ProcessorOptions{
		Address:      addr,
		Store:        storage.NewRecordStore(storage.MachineFlash{}, 0),
		Version:      cfg.VersionInfo(),
		ResetHandler: watchdogReset,
	})
	disp := core.NewDispatcher(proc, cfg.QueueDepth)

	usb := protocol.NewUSBTransport(usbWriter{}, cfg.ReadGap())

	scheme, framing := cfg.BusSettings()
	var (
		bus     *protocol.BusTransport
		busUART *machine.UART
	)
	if scheme != protocol.AddressNone {
		busUART = initBusUART(cfg.Baud)
		bus = protocol.NewBusTransport(addr, scheme, framing, busUART)
		bus.SetHandler(disp.Handler())
	}

	status := newStatusLED(statusPin)
	core.DebugPrintln("[MAIN] ready, preset " + cfg.Name)

	var rx [64]byte
	for {
		// Recover from panics in the main loop to keep the outputs alive
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
				}
			}()

			UpdateSystemTime()
			now := time.Now()

			if n := readUSB(rx[:]); n > 0 {
				usb.Receive(rx[:n], now)
			}
			if msg, ok := usb.Poll(now); ok {
				disp.Submit(msg, usb)
			}
			if bus != nil {
				if n := readUART(busUART, rx[:]); n > 0 {
					bus.Receive(rx[:n])
				}
			}

			for disp.Poll() {
				messagesReceived++
			}

			if err := usb.Flush(); err != nil {
				msgerrors++
			}
			if bus != nil {
				if err := bus.Flush(); err != nil {
					msgerrors++
				}
			}

			// Replies are out; a RESET may run now
			proc.CheckPendingReset()

			status.Show(engine.State())
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// watchdogReset restarts the chip through the watchdog, which also
// re-enumerates USB cleanly.
func watchdogReset() {
	alarms.StopTimer()
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err != nil {
		return
	}
	if err := machine.Watchdog.Start(); err != nil {
		return
	}
	for {
		time.Sleep(time.Millisecond)
	}
}
