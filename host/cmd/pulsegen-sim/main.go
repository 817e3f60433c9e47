package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"pulsegen/config"
	"pulsegen/core"
	"pulsegen/host/serial"
	"pulsegen/protocol"
	"pulsegen/storage"
)

var (
	presetName = flag.String("preset", "usb-bench", "Device preset ("+strings.Join(config.PresetNames(), ", ")+")")
	configPath = flag.String("config", "", "JSON device configuration (overrides -preset)")
	portPath   = flag.String("port", "", "Serve on a serial device instead of stdin/stdout")
	baud       = flag.Int("baud", serial.DefaultBaud, "Baud rate for -port")
	flashPath  = flag.String("flash", "", "Flash image keeping the bus address across runs")
	storeKind  = flag.String("store", "record", "Address store layout: record (erase and rewrite) or append (write-once log)")
	wave       = flag.Bool("wave", false, "Print output transitions to stderr")
	debug      = flag.Bool("debug", false, "Print engine debug output to stderr")
)

// simDevice is one boot of the simulated firmware
type simDevice struct {
	sim    *core.SimBackend
	port   *core.SimPort
	engine *core.Engine
	proc   *core.Processor
	disp   *core.Dispatcher
}

func boot(cfg *config.Config, addr *protocol.Address, store core.AddressStore, reset func()) *simDevice {
	d := &simDevice{sim: core.NewSimBackend()}
	d.port = core.NewSimPort(d.sim.Now)
	d.port.Record = *wave
	d.engine = core.NewEngine(cfg.EngineConfig(), d.sim, d.port)
	d.proc = core.NewProcessor(d.engine, core.ProcessorOptions{
		Address:      addr,
		Store:        store,
		Version:      cfg.VersionInfo(),
		ResetHandler: reset,
	})
	d.disp = core.NewDispatcher(d.proc, cfg.QueueDepth)
	return d
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.LoadFile(*configPath)
	}
	cfg, ok := config.Preset(*presetName)
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", *presetName)
	}
	return cfg, nil
}

func newStore(f storage.Flash) (core.AddressStore, error) {
	switch *storeKind {
	case "record":
		return storage.NewRecordStore(f, 0), nil
	case "append":
		return storage.NewAppendStore(f, 0, f.EraseBlockBytes()), nil
	}
	return nil, fmt.Errorf("unknown address store %q", *storeKind)
}

func openStore() (core.AddressStore, func(), error) {
	if *flashPath == "" {
		store, err := newStore(storage.NewMemFlash(4096, 4096))
		return store, func() {}, err
	}
	f, err := storage.OpenFileFlash(*flashPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := newStore(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return store, func() { f.Close() }, nil
}

func openLink() (io.ReadWriteCloser, error) {
	if *portPath == "" {
		return struct {
			io.Reader
			io.Writer
			io.Closer
		}{os.Stdin, os.Stdout, io.NopCloser(nil)}, nil
	}
	cfg := serial.DefaultConfig(*portPath)
	cfg.Baud = *baud
	cfg.ReadTimeout = 0
	return serial.Open(cfg)
}

func main() {
	flag.Parse()

	if *debug {
		core.SetDebugWriter(func(s string) { fmt.Fprintln(os.Stderr, s) })
		core.SetDebugEnabled(true)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	store, closeStore, err := openStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	link, err := openLink()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer link.Close()

	scheme, framing := cfg.BusSettings()
	addr := protocol.NewAddress(cfg.Address)

	rebooting := false
	dev := boot(cfg, addr, store, func() { rebooting = true })

	var (
		bus *protocol.BusTransport
		usb *protocol.USBTransport
	)
	if scheme == protocol.AddressNone {
		usb = protocol.NewUSBTransport(link, cfg.ReadGap())
	} else {
		bus = protocol.NewBusTransport(addr, scheme, framing, link)
		bus.SetHandler(dev.disp.Handler())
	}
	fmt.Fprintf(os.Stderr, "pulsegen-sim %s: %d channels, x%d ticks, address %d (%s)\n",
		cfg.Name, dev.engine.Channels().Count(), dev.engine.TickMultiplier(), addr.Address(), scheme)

	// reader goroutine feeding the single device loop
	input := make(chan []byte, 8)
	go func() {
		defer close(input)
		buf := make([]byte, protocol.BufferSize)
		for {
			n, err := link.Read(buf)
			if n > 0 {
				input <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				return
			}
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	last := time.Now()

	flush := func() {
		var err error
		if bus != nil {
			err = bus.Flush()
		} else {
			err = usb.Flush()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: write reply: %v\n", err)
		}
	}

	for {
		select {
		case data, ok := <-input:
			if !ok {
				dev.engine.Shutdown()
				return
			}
			if bus != nil {
				bus.Receive(data)
			} else {
				usb.Receive(data, time.Now())
			}
		case msg := <-dev.disp.Queue():
			dev.disp.Process(msg)
			flush()
			if dev.proc.CheckPendingReset() && rebooting {
				rebooting = false
				dev.engine.Shutdown()
				dev = boot(cfg, addr, store, func() { rebooting = true })
				if bus != nil {
					bus.SetHandler(dev.disp.Handler())
				}
				fmt.Fprintln(os.Stderr, "pulsegen-sim: reset")
			}
		case now := <-ticker.C:
			if usb != nil {
				if msg, ok := usb.Poll(now); ok {
					dev.disp.Submit(msg, usb)
				}
				flush()
			}
			elapsed := uint64(now.Sub(last) / time.Microsecond)
			last = now
			dev.sim.Advance(elapsed * uint64(dev.engine.TickMultiplier()))
			if *wave {
				printTransitions(dev)
			}
		case <-sigs:
			dev.engine.Shutdown()
			return
		}
	}
}

func printTransitions(d *simDevice) {
	mult := uint64(d.engine.TickMultiplier())
	for _, tr := range d.port.History() {
		fmt.Fprintf(os.Stderr, "%10d us  %016b\n", tr.At/mult, tr.Levels)
	}
	d.port.ClearHistory()
}
