package core

import (
	"errors"

	"golang.org/x/exp/slog"
	"tinygo.org/x/drivers"
)

var (
	ErrNotConfigured   = errors.New("EUSCI_B module not configured")
	ErrCallbacksActive = errors.New("blocking transfer unavailable while interrupt callbacks are registered")
	ErrBufferLength    = errors.New("tx and rx buffer lengths must match")
	ErrClosed          = errors.New("EUSCI_B instance closed")
)

// DSPI drives one EUSCI_B module in SPI mode, either with blocking byte
// transfers or through interrupt callbacks.
type DSPI struct {
	ctrl   *Controller
	module ModuleID
	role   Role // Role applied by Begin

	config     Config
	configured bool
	closed     bool

	onTransmit TransmitHandler
	onReceive  ReceiveHandler
}

var _ drivers.SPI = (*DSPI)(nil)

// New claims a module on the default controller
func New(m ModuleID) (*DSPI, error) {
	return defaultController.New(m)
}

// Module returns the EUSCI_B block the instance drives
func (d *DSPI) Module() ModuleID {
	return d.module
}

// Config returns the last applied configuration
func (d *DSPI) Config() Config {
	return d.config
}

// Configured reports whether the module has been initialised and not closed
func (d *DSPI) Configured() bool {
	return d.configured
}

// SetMasterMode selects master operation for the next Begin
func (d *DSPI) SetMasterMode() {
	d.role = RoleMaster
}

// SetSlaveMode selects slave operation for the next Begin
func (d *DSPI) SetSlaveMode() {
	d.role = RoleSlave
}

// Begin initialises the module in the selected role with default parameters
func (d *DSPI) Begin() error {
	return d.Configure(DefaultConfig(d.role))
}

// InitMaster initialises the module as bus master
func (d *DSPI) InitMaster(mode SPIMode, order BitOrder, hz uint32) error {
	cfg := DefaultConfig(RoleMaster)
	cfg.Mode = mode
	cfg.Order = order
	cfg.Frequency = hz
	return d.Configure(cfg)
}

// InitSlave initialises the module as slave clocked by an external master
func (d *DSPI) InitSlave(mode SPIMode, order BitOrder) error {
	cfg := DefaultConfig(RoleSlave)
	cfg.Mode = mode
	cfg.Order = order
	return d.Configure(cfg)
}

// Configure holds the module in reset, routes its pins, programs CTLW0 and
// BRW from cfg, enables its NVIC line and releases reset. Interrupt enables
// for registered callbacks are re-armed, since reset clears them.
func (d *DSPI) Configure(cfg Config) error {
	if d.closed {
		return ErrClosed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c := d.ctrl
	p := c.platform
	if !p.complete() {
		return ErrNoPlatform
	}

	var srcHz uint32
	if cfg.Role == RoleMaster {
		srcHz = p.Clock.SourceFrequency(cfg.Clock)
	}
	ctlw0, brw, err := cfg.Registers(srcHz)
	if err != nil {
		return err
	}

	m := d.module
	port, pins := m.Port(cfg.Pins)

	state := disableInterrupts()

	// Disable operation while the configuration changes
	p.setBits(m, EUSCI_B_CTLW0, UCSWRST)

	if d.configured {
		if _, old := m.Port(d.config.Pins); old&^pins != 0 {
			p.Pins.ReleasePins(port, old&^pins)
		}
	}
	if err := p.Pins.SetPrimaryFunction(port, pins); err != nil {
		// Leave the module in reset and unusable until a Configure succeeds
		p.clearBits(m, EUSCI_B_IE, UCTXIE|UCRXIE)
		p.Interrupts.DisableIRQ(m.IRQ())
		if d.configured {
			_, old := m.Port(d.config.Pins)
			p.Pins.ReleasePins(port, old)
			d.configured = false
		}
		restoreInterrupts(state)
		return err
	}

	p.write(m, EUSCI_B_CTLW0, ctlw0)
	p.write(m, EUSCI_B_BRW, brw)
	p.Interrupts.EnableIRQ(m.IRQ())
	p.clearBits(m, EUSCI_B_CTLW0, UCSWRST)

	d.config = cfg
	d.role = cfg.Role
	d.configured = true
	d.armInterrupts()

	restoreInterrupts(state)

	attrs := []slog.Attr{
		slog.String("module", m.String()),
		slog.String("role", cfg.Role.String()),
		slog.Int("mode", int(cfg.Mode)),
		slog.Bool("msb_first", cfg.Order == MSBFirst),
	}
	if cfg.Role == RoleMaster {
		attrs = append(attrs, slog.Uint64("bit_rate", uint64(BitRate(srcHz, brw))))
	}
	c.info("module configured", attrs...)
	return nil
}

// armInterrupts enables the interrupt sources of the registered callbacks.
// Must be called with interrupts disabled.
func (d *DSPI) armInterrupts() {
	p := d.ctrl.platform
	m := d.module
	if d.onReceive != nil {
		p.clearBits(m, EUSCI_B_IFG, UCRXIFG)
		p.setBits(m, EUSCI_B_IE, UCRXIE)
	}
	if d.onTransmit != nil {
		p.setBits(m, EUSCI_B_IE, UCTXIE)
	}
}

// Transfer shifts one byte out and returns the byte shifted in. It busy
// waits on the transmit and receive flags and is unavailable while any
// interrupt callback is registered, in which case it returns 0.
func (d *DSPI) Transfer(b byte) (byte, error) {
	if !d.configured {
		return 0, ErrNotConfigured
	}
	if d.onTransmit != nil || d.onReceive != nil {
		return 0, ErrCallbacksActive
	}

	p := d.ctrl.platform
	m := d.module

	// Wait until the transmitter can take data
	for p.read(m, EUSCI_B_IFG)&UCTXIFG == 0 {
	}
	p.write(m, EUSCI_B_TXBUF, uint16(b))

	// Wait for the byte clocked in alongside it
	for p.read(m, EUSCI_B_IFG)&UCRXIFG == 0 {
	}
	return byte(p.read(m, EUSCI_B_RXBUF)), nil
}

// Tx exchanges len(w) bytes. A nil w sends zeros, a nil r discards what
// is received. Together with Transfer it satisfies drivers.SPI.
func (d *DSPI) Tx(w, r []byte) error {
	if w != nil && r != nil && len(w) != len(r) {
		return ErrBufferLength
	}
	n := len(w)
	if w == nil {
		n = len(r)
	}

	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		}
		in, err := d.Transfer(out)
		if err != nil {
			return err
		}
		if r != nil {
			r[i] = in
		}
	}
	return nil
}

// OnTransmit registers the handler feeding the transmit buffer from the
// TX interrupt. The flag is left set so the interrupt fires
// straight away and primes the buffer. Nil disables the TX interrupt.
func (d *DSPI) OnTransmit(h TransmitHandler) {
	h = transmitOrNil(h)

	state := disableInterrupts()
	defer restoreInterrupts(state)

	d.onTransmit = h
	if !d.configured {
		return
	}
	p := d.ctrl.platform
	if h != nil {
		p.setBits(d.module, EUSCI_B_IE, UCTXIE)
	} else {
		p.clearBits(d.module, EUSCI_B_IE, UCTXIE)
	}
}

// OnReceive registers the handler consuming bytes from the RX interrupt.
// A stale receive flag is cleared first to avoid a spurious first call.
// Nil disables the RX interrupt.
func (d *DSPI) OnReceive(h ReceiveHandler) {
	h = receiveOrNil(h)

	state := disableInterrupts()
	defer restoreInterrupts(state)

	d.onReceive = h
	if !d.configured {
		return
	}
	p := d.ctrl.platform
	if h != nil {
		p.clearBits(d.module, EUSCI_B_IFG, UCRXIFG)
		p.setBits(d.module, EUSCI_B_IE, UCRXIE)
	} else {
		p.clearBits(d.module, EUSCI_B_IE, UCRXIE)
	}
}

// Overrun reports whether a received byte was lost because RXBUF was not
// read in time. Reading RXBUF clears the condition.
func (d *DSPI) Overrun() bool {
	if !d.configured {
		return false
	}
	return d.ctrl.platform.read(d.module, EUSCI_B_STATW)&UCOE != 0
}

// Close disables the module, masks its interrupts, releases its pins and
// frees its slot in the instance table. Calling Close twice is harmless.
func (d *DSPI) Close() error {
	c := d.ctrl
	state := disableInterrupts()
	if d.closed {
		restoreInterrupts(state)
		return nil
	}

	if d.configured {
		p := c.platform
		m := d.module
		p.setBits(m, EUSCI_B_CTLW0, UCSWRST)
		p.clearBits(m, EUSCI_B_IE, UCTXIE|UCRXIE)
		p.Interrupts.DisableIRQ(m.IRQ())
		port, pins := m.Port(d.config.Pins)
		p.Pins.ReleasePins(port, pins)
	}

	c.release(d)
	d.closed = true
	d.configured = false
	d.onTransmit = nil
	d.onReceive = nil
	restoreInterrupts(state)

	c.debug("module released", slog.String("module", d.module.String()))
	return nil
}

// handleTransmit is called from the TX interrupt
func (d *DSPI) handleTransmit() byte {
	if h := d.onTransmit; h != nil {
		return h.OnTransmit()
	}
	return 0
}

// handleReceive is called from the RX interrupt
func (d *DSPI) handleReceive(b byte) {
	if h := d.onReceive; h != nil {
		h.OnReceive(b)
	}
}
