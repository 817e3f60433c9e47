//go:build rp2040

package main

import (
	"machine"

	"pulsegen/core"
)

// initDebugUART routes core debug output to UART1 on GP20 (TX) / GP21 (RX),
// 115200 baud, away from the command links.
func initDebugUART() {
	uart := machine.UART1
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP20,
		RX:       machine.GP21,
	})
	if err != nil {
		return
	}
	core.SetDebugWriter(func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()
	core.DebugPrintln("=== pulsegen debug UART ===")
}
