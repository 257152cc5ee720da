//go:build tinygo && msp432

package main

import (
	"device/arm"
	"runtime/volatile"
	"unsafe"

	"github.com/DelfiSpace/DSPI/core"
)

// MSP432P401R digital I/O: ports are paired into 16-bit blocks of 0x20
// bytes, odd ports on the low byte and even ports on the high byte
const (
	dioBase   = 0x40004C00
	dioStride = 0x20
	dioSEL0   = 0x0A
	dioSEL1   = 0x0C
	dioPorts  = 10
)

// registers implements core.RegisterDriver on the memory-mapped blocks
type registers struct{}

func (registers) Read16(addr uintptr) uint16 {
	return (*volatile.Register16)(unsafe.Pointer(addr)).Get()
}

func (registers) Write16(addr uintptr, value uint16) {
	(*volatile.Register16)(unsafe.Pointer(addr)).Set(value)
}

// pins implements core.PinDriver through PxSEL0/PxSEL1
type pins struct{}

func portRegister(port uint8, offset uintptr) *volatile.Register8 {
	p := uintptr(port - 1)
	addr := dioBase + (p/2)*dioStride + p%2 + offset
	return (*volatile.Register8)(unsafe.Pointer(addr))
}

// SetPrimaryFunction selects SEL1:SEL0 = 01 for the pins
func (pins) SetPrimaryFunction(port uint8, mask uint16) error {
	if port == 0 || port > dioPorts {
		return errInvalidPort
	}
	bits := uint8(mask)
	portRegister(port, dioSEL1).ClearBits(bits)
	portRegister(port, dioSEL0).SetBits(bits)
	return nil
}

func (pins) ReleasePins(port uint8, mask uint16) {
	if port == 0 || port > dioPorts {
		return
	}
	bits := uint8(mask)
	portRegister(port, dioSEL0).ClearBits(bits)
	portRegister(port, dioSEL1).ClearBits(bits)
}

// nvic implements core.InterruptDriver
type nvic struct{}

func (nvic) EnableIRQ(irq uint32)  { arm.EnableIRQ(irq) }
func (nvic) DisableIRQ(irq uint32) { arm.DisableIRQ(irq) }

// clock implements core.ClockDriver from the CS configuration
type clock struct{}

func (clock) SourceFrequency(src core.ClockSource) uint32 {
	cs := core.ClockSystem{
		CTL0:  csRegister(core.CS_CTL0).Get(),
		CTL1:  csRegister(core.CS_CTL1).Get(),
		CLKEN: csRegister(core.CS_CLKEN).Get(),
	}
	return cs.Frequency(src)
}

func csRegister(offset uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(core.CS_BASE) + offset))
}

// platform is the hardware access registered with core
var platform = core.Platform{
	Registers:  registers{},
	Pins:       pins{},
	Interrupts: nvic{},
	Clock:      clock{},
}
