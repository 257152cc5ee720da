//go:build tinygo && msp432

// Firmware for the MSP432P401R LaunchPad. It bridges the backchannel UART
// to the EUSCI_B modules so a host can drive them with dspi-host.
package main

import (
	"errors"
	"runtime/interrupt"

	"github.com/DelfiSpace/DSPI/core"
	"github.com/DelfiSpace/DSPI/protocol"
)

var errInvalidPort = errors.New("no such GPIO port")

var (
	inputBuffer *protocol.FifoBuffer
	session     *core.Session

	// Debug counters
	framesDropped uint32
	msgerrors     uint32
)

func main() {
	core.SetPlatform(platform)
	installHandlers()

	link := uart{}
	link.configure()

	inputBuffer = protocol.NewFifoBuffer(2 * protocol.FrameMax)
	session = core.NewSession(core.Default(), link)

	for {
		// Recover from panics so a bad frame cannot take the bridge down
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
				}
			}()

			for inputBuffer.Free() > 0 {
				b, ok := link.readByte()
				if !ok {
					break
				}
				inputBuffer.PushByte(b)
			}
			if inputBuffer.Available() == 0 {
				return
			}
			if err := session.Receive(inputBuffer); err != nil {
				msgerrors++
			}
			framesDropped = session.Dropped()
		}()
	}
}

// installHandlers routes the four EUSCI_B vectors to the dispatcher
func installHandlers() {
	interrupt.New(core.IRQ_EUSCIB0, func(interrupt.Interrupt) { core.HandleInterrupt(core.EUSCIB0) })
	interrupt.New(core.IRQ_EUSCIB1, func(interrupt.Interrupt) { core.HandleInterrupt(core.EUSCIB1) })
	interrupt.New(core.IRQ_EUSCIB2, func(interrupt.Interrupt) { core.HandleInterrupt(core.EUSCIB2) })
	interrupt.New(core.IRQ_EUSCIB3, func(interrupt.Interrupt) { core.HandleInterrupt(core.EUSCIB3) })
}
