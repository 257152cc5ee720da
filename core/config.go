package core

import "errors"

// Role selects which side of the bus drives the clock
type Role uint8

const (
	RoleMaster Role = iota
	RoleSlave
)

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	default:
		return "unknown"
	}
}

// BitOrder selects which bit of a byte is shifted first
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type SPIMode uint8

const (
	Mode0 SPIMode = iota
	Mode1
	Mode2
	Mode3
)

// ClockSource selects the bit clock source in master mode
type ClockSource uint8

const (
	ClockSMCLK ClockSource = iota
	ClockACLK
)

// PinMode selects 3-pin or 4-pin operation
type PinMode uint8

const (
	ThreePin PinMode = iota
	FourPinActiveHigh
	FourPinActiveLow
)

var (
	ErrInvalidMode      = errors.New("invalid SPI mode")
	ErrInvalidRole      = errors.New("invalid SPI role")
	ErrInvalidBitOrder  = errors.New("invalid bit order")
	ErrInvalidClock     = errors.New("invalid clock source")
	ErrInvalidPinMode   = errors.New("invalid pin mode")
	ErrInvalidFrequency = errors.New("master mode requires a non-zero frequency")
	ErrNoClockSource    = errors.New("clock source frequency unknown")
)

// DefaultFrequency is the bit rate used by Begin in master mode
const DefaultFrequency = 1000000

// Config is the single configuration model for a module. The register
// values are derived from it by Registers.
type Config struct {
	Role      Role
	Order     BitOrder
	Mode      SPIMode
	Frequency uint32      // Bit rate in Hz, master only
	Clock     ClockSource // Master only
	Pins      PinMode
}

// DefaultConfig returns the configuration Begin applies for a role
func DefaultConfig(role Role) Config {
	cfg := Config{
		Role:  role,
		Order: MSBFirst,
		Mode:  Mode0,
		Pins:  ThreePin,
	}
	if role == RoleMaster {
		cfg.Frequency = DefaultFrequency
		cfg.Clock = ClockSMCLK
	}
	return cfg
}

// Validate checks every field against the values the hardware accepts
func (c Config) Validate() error {
	if c.Role > RoleSlave {
		return ErrInvalidRole
	}
	if c.Order > LSBFirst {
		return ErrInvalidBitOrder
	}
	if c.Mode > Mode3 {
		return ErrInvalidMode
	}
	if c.Pins > FourPinActiveLow {
		return ErrInvalidPinMode
	}
	if c.Role == RoleMaster {
		if c.Clock > ClockACLK {
			return ErrInvalidClock
		}
		if c.Frequency == 0 {
			return ErrInvalidFrequency
		}
	}
	return nil
}

// Polarity returns CPOL for the mode
func (m SPIMode) Polarity() bool {
	return m&2 != 0
}

// Phase returns CPHA for the mode
func (m SPIMode) Phase() bool {
	return m&1 != 0
}

// Registers derives CTLW0 and BRW from the configuration. srcHz is the
// frequency of the selected clock source and is ignored in slave mode.
// The returned CTLW0 keeps UCSWRST set; the caller releases reset.
func (c Config) Registers(srcHz uint32) (ctlw0 uint16, brw uint16, err error) {
	if err := c.Validate(); err != nil {
		return 0, 0, err
	}

	ctlw0 = UCSWRST | UCSYNC

	switch c.Pins {
	case FourPinActiveHigh:
		ctlw0 |= UCMODE_4PIN_STE
	case FourPinActiveLow:
		ctlw0 |= UCMODE_4PIN_STL
	}

	if c.Order == MSBFirst {
		ctlw0 |= UCMSB
	}

	// UCCKPH captures on the first edge, which is CPHA=0
	if c.Mode.Polarity() {
		ctlw0 |= UCCKPL
	}
	if !c.Mode.Phase() {
		ctlw0 |= UCCKPH
	}

	if c.Role == RoleSlave {
		return ctlw0, 0, nil
	}

	ctlw0 |= UCMST
	switch c.Clock {
	case ClockSMCLK:
		ctlw0 |= UCSSEL_SMCLK
	case ClockACLK:
		ctlw0 |= UCSSEL_ACLK
	}
	if c.Pins != ThreePin {
		ctlw0 |= UCSTEM
	}

	if srcHz == 0 {
		return 0, 0, ErrNoClockSource
	}
	return ctlw0, clockDivider(srcHz, c.Frequency), nil
}

// clockDivider returns the BRW prescaler for the closest bit rate not above hz
func clockDivider(srcHz, hz uint32) uint16 {
	div := srcHz / hz
	if srcHz%hz != 0 {
		div++
	}
	if div < 1 {
		div = 1
	}
	if div > 0xFFFF {
		div = 0xFFFF
	}
	return uint16(div)
}

// BitRate returns the bit rate the hardware produces for a divider
func BitRate(srcHz uint32, brw uint16) uint32 {
	if brw == 0 {
		return srcHz
	}
	return srcHz / uint32(brw)
}
