//go:build rp2040

package main

import (
	"machine"
)

// initUSB configures machine.Serial, which is USB CDC on the RP2040
func initUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// readUSB drains the CDC receive buffer into buf
func readUSB(buf []byte) int {
	n := 0
	for n < len(buf) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// usbWriter adapts machine.Serial to io.Writer for the USB transport
type usbWriter struct{}

func (usbWriter) Write(p []byte) (int, error) {
	return machine.Serial.Write(p)
}
