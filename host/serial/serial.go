package serial

import (
	"io"
)

// DefaultBaud matches the firmware UART bus
const DefaultBaud = 115200

// Port is a byte stream to a pulse generator, either a real serial device
// or an in-process loopback.
type Port interface {
	io.ReadWriteCloser

	// Flush discards buffered input
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g. "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate; USB CDC ignores it
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the bus settings for device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 50,
	}
}
