//go:build rp2040

package main

import (
	"machine"
)

// initBusUART configures UART0 on GP0 (TX) / GP1 (RX) for the multidrop bus
func initBusUART(baud uint32) *machine.UART {
	uart := machine.UART0
	_ = uart.Configure(machine.UARTConfig{
		BaudRate: baud,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})
	return uart
}

// readUART drains the UART receive buffer into buf
func readUART(uart *machine.UART, buf []byte) int {
	n := 0
	for n < len(buf) && uart.Buffered() > 0 {
		b, err := uart.ReadByte()
		if err != nil {
			break
		}
		buf[n] = b
		n++
	}
	return n
}
