//go:build !tinygo

package serial

import (
	"errors"
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// ErrNilConfig is returned by Open without a configuration
var ErrNilConfig = errors.New("serial config cannot be nil")

// NativePort wraps a tarm/serial port
type NativePort struct {
	port *serial.Port
	cfg  *Config
}

// Open opens a native serial port
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	baud := cfg.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return &NativePort{port: port, cfg: cfg}, nil
}

func (p *NativePort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *NativePort) Write(b []byte) (int, error) { return p.port.Write(b) }

// Close closes the serial port
func (p *NativePort) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Flush drops unread input
func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// Device returns the configured device path
func (p *NativePort) Device() string {
	return p.cfg.Device
}
