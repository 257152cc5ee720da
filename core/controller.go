package core

import (
	"errors"

	"golang.org/x/exp/slog"
)

var (
	ErrModuleInUse = errors.New("EUSCI_B module already owned by another instance")
	ErrNoPlatform  = errors.New("EUSCI_B platform not configured")
)

// Controller owns the instance table of the EUSCI_B modules and routes
// their interrupt vectors to the owning DSPI. Each slot holds at most one
// instance; slots are filled by New and emptied by Close.
type Controller struct {
	platform  Platform
	instances [ModuleCount]*DSPI
	events    EventRing
	logger    *slog.Logger
}

// defaultController backs the package-level New and HandleInterrupt used by
// the interrupt vectors of a target
var defaultController = NewController(Platform{})

// NewController creates a controller over the given hardware access
func NewController(p Platform) *Controller {
	return &Controller{
		platform: p,
		logger:   discardLogger,
	}
}

// Default returns the controller used by the package-level functions
func Default() *Controller {
	return defaultController
}

// SetPlatform replaces the hardware access of the controller
func (c *Controller) SetPlatform(p Platform) {
	state := disableInterrupts()
	c.platform = p
	restoreInterrupts(state)
}

// SetLogger sets the logger; nil silences logging
func (c *Controller) SetLogger(l *slog.Logger) {
	if l == nil {
		l = discardLogger
	}
	c.logger = l
}

// Instance returns the DSPI owning a module, or nil
func (c *Controller) Instance(m ModuleID) *DSPI {
	if !m.Valid() {
		return nil
	}
	state := disableInterrupts()
	d := c.instances[m]
	restoreInterrupts(state)
	return d
}

// Active returns a bitmask of the modules that currently have an owner
func (c *Controller) Active() uint8 {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	var mask uint8
	for i, d := range c.instances {
		if d != nil {
			mask |= 1 << i
		}
	}
	return mask
}

// Events returns a copy of the recorded interrupt events, oldest first
func (c *Controller) Events() []Event {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	return c.events.Snapshot()
}

// New binds a DSPI instance to a module and claims its slot
func (c *Controller) New(m ModuleID) (*DSPI, error) {
	if !m.Valid() {
		return nil, ErrInvalidModule
	}

	d := &DSPI{
		ctrl:   c,
		module: m,
		role:   RoleMaster,
	}

	state := disableInterrupts()
	if c.instances[m] != nil {
		restoreInterrupts(state)
		return nil, ErrModuleInUse
	}
	c.instances[m] = d
	restoreInterrupts(state)

	c.debug("module claimed", slog.String("module", m.String()))
	return d, nil
}

// release empties the slot if d still owns it
func (c *Controller) release(d *DSPI) {
	if c.instances[d.module] == d {
		c.instances[d.module] = nil
	}
}

// HandleInterrupt services the pending events of a module. It is the body
// of the EUSCIBx_IRQHandler vectors and must not allocate.
func (c *Controller) HandleInterrupt(m ModuleID) {
	if !m.Valid() || c.platform.Registers == nil {
		return
	}
	p := c.platform

	status := p.read(m, EUSCI_B_IFG) & p.read(m, EUSCI_B_IE)
	if status == 0 {
		return
	}
	p.clearBits(m, EUSCI_B_IFG, status)

	d := c.instances[m]
	if d == nil {
		// Nobody owns the line; mask it so it cannot fire again
		p.clearBits(m, EUSCI_B_IE, UCTXIE|UCRXIE)
		c.events.Record(EvtOrphan, m, status)
		return
	}

	if status&UCTXIFG != 0 {
		b := d.handleTransmit()
		p.write(m, EUSCI_B_TXBUF, uint16(b))
		c.events.Record(EvtTransmit, m, uint16(b))
	}

	if status&UCRXIFG != 0 {
		if stat := p.read(m, EUSCI_B_STATW); stat&UCOE != 0 {
			c.events.Record(EvtOverrun, m, stat)
		}
		b := byte(p.read(m, EUSCI_B_RXBUF))
		d.handleReceive(b)
		c.events.Record(EvtReceive, m, uint16(b))
	}
}

// HandleInterrupt dispatches a module interrupt through the default controller
func HandleInterrupt(m ModuleID) {
	defaultController.HandleInterrupt(m)
}
