// Package remotespi exposes an EUSCI_B module behind the serial bridge as a
// periph.io SPI port, so periph device drivers can run against it from a
// development host.
package remotespi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/DelfiSpace/DSPI/core"
	"github.com/DelfiSpace/DSPI/host/client"
)

var (
	ErrAlreadyConnected = errors.New("remotespi: already connected")
	ErrUnsupportedMode  = errors.New("remotespi: only full duplex 8 bit transfers with hardware CS are supported")
	ErrNotConnected     = errors.New("remotespi: not connected")
)

// Port is a spi.PortCloser for one module on the bridge
type Port struct {
	client *client.Client
	module core.ModuleID

	mu        sync.Mutex
	limit     physic.Frequency
	conn      *Conn
	connected bool
}

// Conn is the spi.Conn returned by Port.Connect
type Conn struct {
	port *Port
	freq physic.Frequency
	mode spi.Mode
}

var (
	_ spi.PortCloser = (*Port)(nil)
	_ spi.Conn       = (*Conn)(nil)
)

// New returns the port of module m reached through c
func New(c *client.Client, m core.ModuleID) (*Port, error) {
	if !m.Valid() {
		return nil, core.ErrInvalidModule
	}
	return &Port{client: c, module: m}, nil
}

func (p *Port) String() string {
	return "remote " + p.module.String()
}

// LimitSpeed caps the frequency requested by Connect
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("remotespi: invalid speed %s", f)
	}
	p.mu.Lock()
	p.limit = f
	p.mu.Unlock()
	return nil
}

// Connect configures the module as bus master. It can be called once.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if bits != 8 {
		return nil, fmt.Errorf("%w: %d bits per word", ErrUnsupportedMode, bits)
	}
	if mode&(spi.HalfDuplex|spi.NoCS) != 0 {
		return nil, ErrUnsupportedMode
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil, ErrAlreadyConnected
	}
	// 0 means the device states no maximum
	if f == 0 || (p.limit != 0 && f > p.limit) {
		f = p.limit
	}
	if f == 0 {
		f = core.DefaultFrequency * physic.Hertz
	}
	if f < physic.Hertz {
		return nil, fmt.Errorf("remotespi: invalid speed %s", f)
	}

	cfg := core.DefaultConfig(core.RoleMaster)
	cfg.Mode = core.SPIMode(mode & 3)
	if mode&spi.LSBFirst != 0 {
		cfg.Order = core.LSBFirst
	}
	cfg.Frequency = uint32(f / physic.Hertz)

	if err := p.client.Configure(context.Background(), p.module, cfg); err != nil {
		return nil, fmt.Errorf("remotespi: configure %s: %w", p.module, err)
	}
	p.conn = &Conn{port: p, freq: f, mode: mode}
	p.connected = true
	return p.conn, nil
}

// Close releases the module on the device
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil
	}
	p.connected = false
	return p.client.CloseModule(context.Background(), p.module)
}

func (c *Conn) String() string {
	return fmt.Sprintf("%s %s mode %d", c.port, c.freq, c.mode&3)
}

// Duplex implements conn.Conn
func (c *Conn) Duplex() conn.Duplex {
	return conn.Full
}

// Tx implements conn.Conn. A nil r discards the received bytes.
func (c *Conn) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return fmt.Errorf("remotespi: write %d bytes but read %d", len(w), len(r))
	}
	if !c.port.isConnected() {
		return ErrNotConnected
	}

	ctx := context.Background()
	if r == nil {
		return c.port.client.Send(ctx, c.port.module, w)
	}
	got, err := c.port.client.Transfer(ctx, c.port.module, w)
	copy(r, got)
	return err
}

// TxPackets runs each packet in order. Chip select is driven by the module,
// so KeepCS has no effect; only 8 bit words are supported.
func (c *Conn) TxPackets(packets []spi.Packet) error {
	for i := range packets {
		pkt := &packets[i]
		if pkt.BitsPerWord != 0 && pkt.BitsPerWord != 8 {
			return fmt.Errorf("%w: %d bits per word", ErrUnsupportedMode, pkt.BitsPerWord)
		}
		w := pkt.W
		if w == nil {
			w = make([]byte, len(pkt.R))
		}
		if err := c.Tx(w, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

func (p *Port) isConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}
