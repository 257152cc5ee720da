//go:build tinygo && msp432

package main

import (
	"runtime/volatile"
	"unsafe"
)

// eUSCI_A0 is wired to the LaunchPad backchannel UART on P1.2 (RXD) and
// P1.3 (TXD)
const (
	uartBase  = 0x40001000
	uartCTLW0 = uartBase + 0x00
	uartBRW   = uartBase + 0x06
	uartMCTLW = uartBase + 0x08
	uartRXBUF = uartBase + 0x0C
	uartTXBUF = uartBase + 0x0E
	uartIFG   = uartBase + 0x1C

	uartSWRST  = 0x0001
	uartSMCLK  = 0x0080 // UCSSEL = SMCLK
	uartRXIFG  = 0x0001
	uartTXIFG  = 0x0002
	uartPort   = 1
	uartPins   = 1<<2 | 1<<3
	uartBRW3M  = 1
	uartMCTL3M = 0x00A1 // 115200 from 3 MHz: UCOS16, BRF=10, BRS=0
)

func reg16(addr uintptr) *volatile.Register16 {
	return (*volatile.Register16)(unsafe.Pointer(addr))
}

// uart is the host link: 115200 8N1 from the 3 MHz reset SMCLK
type uart struct{}

func (uart) configure() {
	reg16(uartCTLW0).Set(uartSWRST)
	reg16(uartCTLW0).Set(uartSWRST | uartSMCLK)
	reg16(uartBRW).Set(uartBRW3M)
	reg16(uartMCTLW).Set(uartMCTL3M)
	_ = pins{}.SetPrimaryFunction(uartPort, uartPins)
	reg16(uartCTLW0).ClearBits(uartSWRST)
}

// readByte returns a received byte if one is waiting
func (uart) readByte() (byte, bool) {
	if reg16(uartIFG).Get()&uartRXIFG == 0 {
		return 0, false
	}
	return byte(reg16(uartRXBUF).Get()), true
}

// Write implements io.Writer, blocking until every byte is in the shifter
func (uart) Write(p []byte) (int, error) {
	for _, b := range p {
		for reg16(uartIFG).Get()&uartTXIFG == 0 {
		}
		reg16(uartTXBUF).Set(uint16(b))
	}
	return len(p), nil
}
