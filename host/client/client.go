// Package client is the host side of the DSPI serial bridge. A Client sends
// one command at a time and waits for the reply frame carrying the same
// sequence number.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/DelfiSpace/DSPI/core"
	"github.com/DelfiSpace/DSPI/protocol"
)

var (
	ErrTimeout            = errors.New("timed out waiting for reply")
	ErrClosed             = errors.New("client closed")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// DefaultTimeout bounds the wait for a reply
const DefaultTimeout = 2 * time.Second

// MaxChunk is the largest data block carried by one spi_transfer or
// spi_send: the payload minus message ID, module and length prefix
const MaxChunk = protocol.PayloadMax - 3

// Status is the decoded spi_status_response
type Status struct {
	Active  uint8 // Bit n set when EUSCI_Bn has an owner
	Overrun uint8 // Bit n set when EUSCI_Bn lost a received byte
}

// Client talks to the bridge firmware over port
type Client struct {
	port    io.ReadWriteCloser
	timeout time.Duration
	logger  *slog.Logger

	mu  sync.Mutex // One request in flight
	seq uint8

	replies chan protocol.Frame
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets how long a request waits for its reply
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger for protocol tracing
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New starts a client on port. The client owns the port and closes it in
// Close.
func New(port io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		port:    port,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		seq:     protocol.SeqTag,
		replies: make(chan protocol.Frame, 4),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c
}

// Close stops the reader and closes the port
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stop)
		err = c.port.Close()
		<-c.done
	})
	return err
}

// Call sends one command and returns the payload of its reply. An
// error_response is returned as a protocol.ErrorCode error.
func (c *Client) Call(ctx context.Context, id uint32, args func(protocol.OutputBuffer)) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := c.seq
	c.seq = protocol.NextSeq(seq)

	frame := protocol.NewScratchOutput()
	err := protocol.EncodeFrame(frame, seq, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, id)
		if args != nil {
			args(o)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build command %d: %w", id, err)
	}

	c.logger.LogAttrs(ctx, slog.LevelDebug, "send",
		slog.Uint64("id", uint64(id)),
		slog.Int("seq", int(seq)),
		slog.Int("len", frame.CurPosition()))

	if _, err := c.port.Write(frame.Result()); err != nil {
		return nil, fmt.Errorf("failed to write command %d: %w", id, err)
	}

	payload, err := c.await(ctx, seq)
	if err != nil {
		return nil, fmt.Errorf("command %d: %w", id, err)
	}
	return payload, checkError(payload)
}

// await returns the reply for seq, skipping stale replies to earlier
// requests that timed out
func (c *Client) await(ctx context.Context, seq uint8) ([]byte, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case f := <-c.replies:
			if f.Seq != seq {
				c.logger.LogAttrs(ctx, slog.LevelDebug, "stale reply", slog.Int("seq", int(f.Seq)))
				continue
			}
			return f.Payload, nil
		case <-timer.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stop:
			return nil, ErrClosed
		case <-c.done:
			return nil, ErrClosed
		}
	}
}

func checkError(payload []byte) error {
	p := payload
	id, err := protocol.DecodeVLQUint(&p)
	if err != nil || id != protocol.RespError {
		return nil
	}
	code, err := protocol.DecodeVLQUint(&p)
	if err != nil {
		return fmt.Errorf("%w: truncated error_response", ErrUnexpectedResponse)
	}
	return protocol.ErrorCode(code)
}

func (c *Client) readLoop() {
	defer close(c.done)

	input := protocol.NewFifoBuffer(4 * protocol.FrameMax)
	decoder := protocol.NewDecoder()
	buf := make([]byte, protocol.FrameMax)

	for {
		n, err := c.port.Read(buf[:min(len(buf), input.Free())])
		input.Write(buf[:n])

		for {
			f, ok := decoder.Next(input)
			if !ok {
				break
			}
			reply := protocol.Frame{Seq: f.Seq, Payload: append([]byte(nil), f.Payload...)}
			select {
			case c.replies <- reply:
			case <-c.stop:
				return
			}
		}

		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			if err == io.EOF {
				// tarm/serial reports a read timeout as EOF
				time.Sleep(10 * time.Millisecond)
				continue
			}
			c.logger.Warn("serial read failed", slog.String("error", err.Error()))
			return
		}
	}
}

// Configure opens module m on the device, or reconfigures it, with cfg.
// Only role, mode, bit order and frequency travel over the bridge.
func (c *Client) Configure(ctx context.Context, m core.ModuleID, cfg core.Config) error {
	if !m.Valid() {
		return core.ErrInvalidModule
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := c.Call(ctx, protocol.CmdSPIConfig, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(m))
		protocol.EncodeVLQUint(o, uint32(cfg.Role))
		protocol.EncodeVLQUint(o, uint32(cfg.Mode))
		protocol.EncodeVLQUint(o, uint32(cfg.Order))
		protocol.EncodeVLQUint(o, cfg.Frequency)
	})
	if err != nil {
		return err
	}
	return expectAck(payload)
}

// Transfer clocks w out of module m and returns the bytes clocked in
func (c *Client) Transfer(ctx context.Context, m core.ModuleID, w []byte) ([]byte, error) {
	r := make([]byte, 0, len(w))
	for len(w) > 0 {
		n := min(len(w), MaxChunk)
		chunk, err := c.transferChunk(ctx, m, w[:n])
		if err != nil {
			return r, err
		}
		r = append(r, chunk...)
		w = w[n:]
	}
	return r, nil
}

func (c *Client) transferChunk(ctx context.Context, m core.ModuleID, w []byte) ([]byte, error) {
	payload, err := c.Call(ctx, protocol.CmdSPITransfer, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(m))
		protocol.EncodeVLQBytes(o, w)
	})
	if err != nil {
		return nil, err
	}

	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil || id != protocol.RespSPITransfer {
		return nil, fmt.Errorf("%w: id %d to spi_transfer", ErrUnexpectedResponse, id)
	}
	module, err := protocol.DecodeVLQUint(&payload)
	if err != nil || module != uint32(m) {
		return nil, fmt.Errorf("%w: reply for module %d", ErrUnexpectedResponse, module)
	}
	r, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if len(r) != len(w) {
		return nil, fmt.Errorf("%w: %d bytes back for %d sent", ErrUnexpectedResponse, len(r), len(w))
	}
	return r, nil
}

// Send clocks w out of module m and discards what comes back
func (c *Client) Send(ctx context.Context, m core.ModuleID, w []byte) error {
	for len(w) > 0 {
		n := min(len(w), MaxChunk)
		chunk := w[:n]
		payload, err := c.Call(ctx, protocol.CmdSPISend, func(o protocol.OutputBuffer) {
			protocol.EncodeVLQUint(o, uint32(m))
			protocol.EncodeVLQBytes(o, chunk)
		})
		if err != nil {
			return err
		}
		if err := expectAck(payload); err != nil {
			return err
		}
		w = w[n:]
	}
	return nil
}

// CloseModule releases module m on the device
func (c *Client) CloseModule(ctx context.Context, m core.ModuleID) error {
	payload, err := c.Call(ctx, protocol.CmdSPIClose, func(o protocol.OutputBuffer) {
		protocol.EncodeVLQUint(o, uint32(m))
	})
	if err != nil {
		return err
	}
	return expectAck(payload)
}

// Status reports which modules are open and which have overrun
func (c *Client) Status(ctx context.Context) (Status, error) {
	payload, err := c.Call(ctx, protocol.CmdSPIStatus, nil)
	if err != nil {
		return Status{}, err
	}

	id, err := protocol.DecodeVLQUint(&payload)
	if err != nil || id != protocol.RespSPIStatus {
		return Status{}, fmt.Errorf("%w: id %d to spi_status", ErrUnexpectedResponse, id)
	}
	active, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	overrun, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return Status{Active: uint8(active), Overrun: uint8(overrun)}, nil
}

func expectAck(payload []byte) error {
	if len(payload) != 0 {
		return fmt.Errorf("%w: % x instead of ack", ErrUnexpectedResponse, payload)
	}
	return nil
}
