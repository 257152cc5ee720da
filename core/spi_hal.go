package core

// RegisterDriver gives access to the 16-bit EUSCI_B registers.
// Addresses are absolute (module base + register offset).
type RegisterDriver interface {
	Read16(addr uintptr) uint16
	Write16(addr uintptr, value uint16)
}

// PinDriver switches GPIO pins between the port and the peripheral function
type PinDriver interface {
	// SetPrimaryFunction routes the pins of a port to the primary module function
	SetPrimaryFunction(port uint8, pins uint16) error

	// ReleasePins returns the pins to plain GPIO inputs
	ReleasePins(port uint8, pins uint16)
}

// InterruptDriver controls the NVIC lines of the modules
type InterruptDriver interface {
	EnableIRQ(irq uint32)
	DisableIRQ(irq uint32)
}

// ClockDriver reports the frequency of the clock sources a module can use
type ClockDriver interface {
	SourceFrequency(src ClockSource) uint32
}

// Platform bundles the hardware access a Controller needs.
// Target-specific code builds one and registers it with SetPlatform.
type Platform struct {
	Registers  RegisterDriver
	Pins       PinDriver
	Interrupts InterruptDriver
	Clock      ClockDriver
}

func (p Platform) complete() bool {
	return p.Registers != nil && p.Pins != nil && p.Interrupts != nil && p.Clock != nil
}

func (p Platform) read(m ModuleID, reg uintptr) uint16 {
	return p.Registers.Read16(m.Base() + reg)
}

func (p Platform) write(m ModuleID, reg uintptr, value uint16) {
	p.Registers.Write16(m.Base()+reg, value)
}

func (p Platform) setBits(m ModuleID, reg uintptr, bits uint16) {
	p.write(m, reg, p.read(m, reg)|bits)
}

func (p Platform) clearBits(m ModuleID, reg uintptr, bits uint16) {
	p.write(m, reg, p.read(m, reg)&^bits)
}

// SetPlatform is called by target-specific code to register its hardware access
func SetPlatform(p Platform) {
	defaultController.SetPlatform(p)
}

// MustPlatform returns the configured platform or panics if missing
func MustPlatform() Platform {
	p := defaultController.platform
	if !p.complete() {
		panic("EUSCI_B platform not configured")
	}
	return p
}
