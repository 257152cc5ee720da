package core

import "errors"

// ModuleID identifies one of the EUSCI_B blocks
type ModuleID uint8

const (
	EUSCIB0 ModuleID = iota
	EUSCIB1
	EUSCIB2
	EUSCIB3

	// ModuleCount is the number of EUSCI_B blocks on the MSP432P401R
	ModuleCount = 4
)

// DefaultModule is the block wired to the BoosterPack SPI header on the MSP432 LaunchPad
const DefaultModule = EUSCIB0

var ErrInvalidModule = errors.New("invalid EUSCI_B module")

// moduleInfo describes where a module lives and which pins it drives
type moduleInfo struct {
	name string
	base uintptr
	irq  uint32
	port uint8  // GPIO port carrying CLK, SIMO and SOMI
	pins uint16 // CLK | SIMO | SOMI
	ste  uint16 // STE pin on the same port, used in 4-pin mode
}

// Pin assignments follow the MSP432P401R datasheet (primary module function)
var modules = [ModuleCount]moduleInfo{
	{name: "EUSCI_B0", base: EUSCI_B0_BASE, irq: IRQ_EUSCIB0, port: 1, pins: 1<<5 | 1<<6 | 1<<7, ste: 1 << 4},
	{name: "EUSCI_B1", base: EUSCI_B1_BASE, irq: IRQ_EUSCIB1, port: 6, pins: 1<<3 | 1<<4 | 1<<5, ste: 1 << 2},
	{name: "EUSCI_B2", base: EUSCI_B2_BASE, irq: IRQ_EUSCIB2, port: 3, pins: 1<<5 | 1<<6 | 1<<7, ste: 1 << 4},
	{name: "EUSCI_B3", base: EUSCI_B3_BASE, irq: IRQ_EUSCIB3, port: 10, pins: 1<<1 | 1<<2 | 1<<3, ste: 1 << 0},
}

// Valid reports whether m names an existing block
func (m ModuleID) Valid() bool {
	return m < ModuleCount
}

func (m ModuleID) String() string {
	if !m.Valid() {
		return "EUSCI_B?"
	}
	return modules[m].name
}

// Base returns the register block base address
func (m ModuleID) Base() uintptr {
	return modules[m].base
}

// IRQ returns the NVIC interrupt number of the module
func (m ModuleID) IRQ() uint32 {
	return modules[m].irq
}

// Port returns the GPIO port and pin mask used for the module in the given pin mode
func (m ModuleID) Port(mode PinMode) (port uint8, pins uint16) {
	info := modules[m]
	pins = info.pins
	if mode != ThreePin {
		pins |= info.ste
	}
	return info.port, pins
}

// ModuleForBase maps a register address back to its module
func ModuleForBase(addr uintptr) (ModuleID, bool) {
	if addr < EUSCI_B0_BASE {
		return 0, false
	}
	m := ModuleID((addr - EUSCI_B0_BASE) / eusciBStride)
	if !m.Valid() {
		return 0, false
	}
	return m, true
}
