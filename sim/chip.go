// Package sim models the parts of an MSP432P401R a DSPI touches: the four
// EUSCI_B register blocks, the port function select, the NVIC enable lines
// and the clock sources. A Chip implements every core HAL interface, so the
// driver runs unchanged on a development host.
//
// A Chip is not safe for concurrent use; drive it from one goroutine, the
// same way a single-core MCU serialises code and interrupt handlers.
package sim

import (
	"errors"

	"github.com/DelfiSpace/DSPI/core"
)

// Default clock tree after reset: DCO at 3 MHz feeding SMCLK, REFO on ACLK
const (
	DefaultSMCLK = 3000000
	DefaultACLK  = 32768
)

var ErrInvalidPort = errors.New("sim: no such GPIO port")

// Peer is the device on the far end of a module's bus when the module is
// master. Exchange receives the byte clocked out and returns the byte
// clocked back in.
type Peer interface {
	Exchange(out byte) byte
}

// PeerFunc adapts a function to Peer
type PeerFunc func(out byte) byte

func (f PeerFunc) Exchange(out byte) byte { return f(out) }

// Loopback returns every byte it receives, as with SIMO wired to SOMI
type Loopback struct{}

func (Loopback) Exchange(out byte) byte { return out }

// block holds the register state of one EUSCI_B module
type block struct {
	ctlw0 uint16
	brw   uint16
	statw uint16
	rxbuf uint16
	txbuf uint16
	ie    uint16
	ifg   uint16

	txPending bool // slave: TXBUF loaded, waiting for the master's clock
	peer      Peer
	sent      []byte
}

// Chip is a simulated MSP432P401R
type Chip struct {
	blocks [core.ModuleCount]block
	ports  [11]uint16 // index 1..10, bits in primary function
	nvic   map[uint32]bool
	clocks [2]uint32
}

// NewChip returns a chip in its power-on state
func NewChip() *Chip {
	c := &Chip{
		nvic:   make(map[uint32]bool),
		clocks: [2]uint32{DefaultSMCLK, DefaultACLK},
	}
	for i := range c.blocks {
		c.blocks[i].reset()
		c.blocks[i].ctlw0 = core.UCSWRST
	}
	return c
}

// Platform returns the chip as core hardware access
func (c *Chip) Platform() core.Platform {
	return core.Platform{
		Registers:  c,
		Pins:       c,
		Interrupts: c,
		Clock:      c,
	}
}

// SetPeer attaches the device answering a master-mode module
func (c *Chip) SetPeer(m core.ModuleID, p Peer) {
	c.blocks[m].peer = p
}

// SetClock changes the frequency reported for a clock source
func (c *Chip) SetClock(src core.ClockSource, hz uint32) {
	c.clocks[src] = hz
}

// Sent returns every byte the module has shifted out so far
func (c *Chip) Sent(m core.ModuleID) []byte {
	out := make([]byte, len(c.blocks[m].sent))
	copy(out, c.blocks[m].sent)
	return out
}

// Register returns the raw value of a register without side effects
func (c *Chip) Register(m core.ModuleID, offset uintptr) uint16 {
	b := &c.blocks[m]
	switch offset {
	case core.EUSCI_B_CTLW0:
		return b.ctlw0
	case core.EUSCI_B_BRW:
		return b.brw
	case core.EUSCI_B_STATW:
		return b.statw
	case core.EUSCI_B_RXBUF:
		return b.rxbuf
	case core.EUSCI_B_TXBUF:
		return b.txbuf
	case core.EUSCI_B_IE:
		return b.ie
	case core.EUSCI_B_IFG:
		return b.ifg
	}
	return 0
}

func (b *block) reset() {
	b.ie = 0
	b.ifg = core.UCTXIFG
	b.statw = 0
	b.txPending = false
}

func (b *block) enabled() bool {
	return b.ctlw0&core.UCSWRST == 0
}

func (b *block) master() bool {
	return b.ctlw0&core.UCMST != 0
}

// receive latches a byte into RXBUF, flagging an overrun if the previous
// one was never read
func (b *block) receive(in byte) {
	if b.ifg&core.UCRXIFG != 0 {
		b.statw |= core.UCOE
	}
	b.rxbuf = uint16(in)
	b.ifg |= core.UCRXIFG
}

// shift performs one master-clocked exchange
func (b *block) shift() {
	out := byte(b.txbuf)
	b.sent = append(b.sent, out)

	var in byte
	switch {
	case b.statw&core.UCLISTEN != 0:
		in = out
	case b.peer != nil:
		in = b.peer.Exchange(out)
	default:
		in = 0xFF // SOMI pulled up, nobody driving
	}
	b.ifg |= core.UCTXIFG
	b.receive(in)
}

func (c *Chip) decode(addr uintptr) (*block, uintptr, bool) {
	m, ok := core.ModuleForBase(addr)
	if !ok {
		return nil, 0, false
	}
	return &c.blocks[m], addr - m.Base(), true
}

// Read16 implements core.RegisterDriver, including the read side effects of
// RXBUF and IV
func (c *Chip) Read16(addr uintptr) uint16 {
	b, off, ok := c.decode(addr)
	if !ok {
		return 0
	}
	switch off {
	case core.EUSCI_B_CTLW0:
		return b.ctlw0
	case core.EUSCI_B_BRW:
		return b.brw
	case core.EUSCI_B_STATW:
		return b.statw
	case core.EUSCI_B_RXBUF:
		b.ifg &^= core.UCRXIFG
		b.statw &^= core.UCOE
		return b.rxbuf
	case core.EUSCI_B_TXBUF:
		return b.txbuf
	case core.EUSCI_B_IE:
		return b.ie
	case core.EUSCI_B_IFG:
		return b.ifg
	case core.EUSCI_B_IV:
		pending := b.ifg & b.ie
		switch {
		case pending&core.UCRXIFG != 0:
			b.ifg &^= core.UCRXIFG
			return core.IVRXIFG
		case pending&core.UCTXIFG != 0:
			b.ifg &^= core.UCTXIFG
			return core.IVTXIFG
		}
		return core.IVNone
	}
	return 0
}

// Write16 implements core.RegisterDriver
func (c *Chip) Write16(addr uintptr, value uint16) {
	b, off, ok := c.decode(addr)
	if !ok {
		return
	}
	switch off {
	case core.EUSCI_B_CTLW0:
		b.ctlw0 = value
		if value&core.UCSWRST != 0 {
			b.reset()
		}
	case core.EUSCI_B_BRW:
		b.brw = value
	case core.EUSCI_B_STATW:
		// Only the loopback bit is writable
		b.statw = b.statw&^core.UCLISTEN | value&core.UCLISTEN
	case core.EUSCI_B_TXBUF:
		if !b.enabled() {
			return
		}
		b.txbuf = value & 0xFF
		b.ifg &^= core.UCTXIFG
		if b.master() {
			b.shift()
		} else {
			b.txPending = true
		}
	case core.EUSCI_B_IE:
		b.ie = value & (core.UCRXIE | core.UCTXIE)
	case core.EUSCI_B_IFG:
		b.ifg = value & (core.UCRXIFG | core.UCTXIFG)
	}
}

// ClockIn plays an external master clocking one byte into a slave-mode
// module. It returns the byte the module shifted out: the pending TXBUF,
// or the last one again if software did not reload it in time.
func (c *Chip) ClockIn(m core.ModuleID, in byte) byte {
	b := &c.blocks[m]
	if !b.enabled() || b.master() {
		return 0xFF
	}
	out := byte(b.txbuf)
	b.sent = append(b.sent, out)
	b.txPending = false
	b.ifg |= core.UCTXIFG
	b.receive(in)
	return out
}

// SetPrimaryFunction implements core.PinDriver
func (c *Chip) SetPrimaryFunction(port uint8, pins uint16) error {
	if port == 0 || int(port) >= len(c.ports) {
		return ErrInvalidPort
	}
	c.ports[port] |= pins
	return nil
}

// ReleasePins implements core.PinDriver
func (c *Chip) ReleasePins(port uint8, pins uint16) {
	if port == 0 || int(port) >= len(c.ports) {
		return
	}
	c.ports[port] &^= pins
}

// PeripheralPins returns the pins of a port routed to a module
func (c *Chip) PeripheralPins(port uint8) uint16 {
	if int(port) >= len(c.ports) {
		return 0
	}
	return c.ports[port]
}

// EnableIRQ implements core.InterruptDriver
func (c *Chip) EnableIRQ(irq uint32) {
	c.nvic[irq] = true
}

// DisableIRQ implements core.InterruptDriver
func (c *Chip) DisableIRQ(irq uint32) {
	delete(c.nvic, irq)
}

// IRQEnabled reports whether an NVIC line is enabled
func (c *Chip) IRQEnabled(irq uint32) bool {
	return c.nvic[irq]
}

// SourceFrequency implements core.ClockDriver
func (c *Chip) SourceFrequency(src core.ClockSource) uint32 {
	if int(src) >= len(c.clocks) {
		return 0
	}
	return c.clocks[src]
}

// Pending reports whether the module would currently raise its interrupt
func (c *Chip) Pending(m core.ModuleID) bool {
	b := &c.blocks[m]
	return c.nvic[m.IRQ()] && b.ifg&b.ie != 0
}

// Service runs the module's interrupt handler on ctrl while an interrupt is
// pending, at most limit times, and returns how often it ran. A master with
// the TX interrupt enabled never goes idle, hence the limit.
func (c *Chip) Service(ctrl *core.Controller, m core.ModuleID, limit int) int {
	n := 0
	for n < limit && c.Pending(m) {
		ctrl.HandleInterrupt(m)
		n++
	}
	return n
}
