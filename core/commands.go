package core

import (
	"errors"
	"io"

	"golang.org/x/exp/slog"

	"github.com/DelfiSpace/DSPI/protocol"
)

var (
	errMalformed = errors.New("malformed command arguments")

	// ErrSlaveRole rejects blocking transfers on a slave module, which would
	// wait for a clock the bridge never drives
	ErrSlaveRole = errors.New("blocking transfer needs a master-mode module")
)

// Session serves the bridge protocol for one host link. It owns the DSPI
// instances the host opened with spi_config and answers every frame it
// decodes with exactly one frame of the same sequence number.
type Session struct {
	ctrl     *Controller
	commands *CommandRegistry
	out      io.Writer

	owned   [ModuleCount]*DSPI
	decoder *protocol.Decoder
	reply   protocol.ScratchOutput
	frame   protocol.ScratchOutput
	rx      [protocol.PayloadMax]byte
}

// NewSession creates a session replying on out
func NewSession(ctrl *Controller, out io.Writer) *Session {
	s := &Session{
		ctrl:     ctrl,
		commands: NewCommandRegistry(),
		out:      out,
		decoder:  protocol.NewDecoder(),
	}
	s.commands.MustRegister(protocol.CmdSPIConfig, s.handleConfig)
	s.commands.MustRegister(protocol.CmdSPITransfer, s.handleTransfer)
	s.commands.MustRegister(protocol.CmdSPISend, s.handleSend)
	s.commands.MustRegister(protocol.CmdSPIClose, s.handleClose)
	s.commands.MustRegister(protocol.CmdSPIStatus, s.handleStatus)
	return s
}

// Commands returns the registry backing the session
func (s *Session) Commands() *CommandRegistry {
	return s.commands
}

// Dropped returns the number of corrupted frames discarded so far
func (s *Session) Dropped() uint32 {
	return s.decoder.Dropped
}

// Receive handles every complete frame in input and leaves a trailing
// partial frame in place for the next call
func (s *Session) Receive(input protocol.InputBuffer) error {
	for {
		f, ok := s.decoder.Next(input)
		if !ok {
			return nil
		}
		if err := s.handleFrame(f); err != nil {
			return err
		}
	}
}

// Serve reads from r and handles frames as they complete, until Read
// fails. The error of the failing Read is returned.
func (s *Session) Serve(r io.Reader) error {
	input := protocol.NewFifoBuffer(2 * protocol.FrameMax)
	var chunk [protocol.FrameMax]byte
	for {
		n, err := r.Read(chunk[:])
		input.Write(chunk[:n])
		if rerr := s.Receive(input); rerr != nil {
			return rerr
		}
		if err != nil {
			return err
		}
	}
}

// Close releases every module opened through the session
func (s *Session) Close() {
	for i, d := range s.owned {
		if d != nil {
			d.Close()
			s.owned[i] = nil
		}
	}
}

func (s *Session) handleFrame(f protocol.Frame) error {
	s.reply.Reset()

	args := f.Payload
	if len(args) > 0 {
		err := s.dispatch(&args)
		if err == nil && (s.reply.Overflowed() || s.reply.CurPosition() > protocol.PayloadMax) {
			err = protocol.CodeTooLong
		}
		if err != nil {
			code := errorCode(err)
			s.ctrl.debug("command failed", slog.String("error", err.Error()), slog.Int("code", int(code)))
			s.reply.Reset()
			protocol.EncodeVLQUint(&s.reply, protocol.RespError)
			protocol.EncodeVLQUint(&s.reply, uint32(code))
		}
	}

	s.frame.Reset()
	if err := protocol.EncodeFrame(&s.frame, f.Seq, func(o protocol.OutputBuffer) {
		o.Output(s.reply.Result())
	}); err != nil {
		return err
	}
	_, err := s.out.Write(s.frame.Result())
	return err
}

// dispatch runs the single command carried by a frame payload
func (s *Session) dispatch(args *[]byte) error {
	id, err := protocol.DecodeVLQUint(args)
	if err != nil {
		return errMalformed
	}
	if err := s.commands.Dispatch(id, args, &s.reply); err != nil {
		return err
	}
	if len(*args) != 0 {
		return errMalformed
	}
	return nil
}

func decodeArgs(args *[]byte, dst ...*uint32) error {
	for _, p := range dst {
		v, err := protocol.DecodeVLQUint(args)
		if err != nil {
			return errMalformed
		}
		*p = v
	}
	return nil
}

func decodeModule(args *[]byte) (ModuleID, error) {
	var m uint32
	if err := decodeArgs(args, &m); err != nil {
		return 0, err
	}
	if m >= ModuleCount {
		return 0, ErrInvalidModule
	}
	return ModuleID(m), nil
}

// master returns the configured master-mode DSPI the session owns for m
func (s *Session) master(m ModuleID) (*DSPI, error) {
	d := s.owned[m]
	if d == nil || !d.Configured() {
		return nil, ErrNotConfigured
	}
	if d.Config().Role != RoleMaster {
		return nil, ErrSlaveRole
	}
	return d, nil
}

// spi_config module=%c role=%c mode=%c order=%c rate=%u
func (s *Session) handleConfig(args *[]byte, reply protocol.OutputBuffer) error {
	m, err := decodeModule(args)
	if err != nil {
		return err
	}
	var role, mode, order, rate uint32
	if err := decodeArgs(args, &role, &mode, &order, &rate); err != nil {
		return err
	}
	if role > 0xFF || mode > 0xFF || order > 0xFF {
		return ErrInvalidMode
	}

	cfg := DefaultConfig(Role(role))
	cfg.Mode = SPIMode(mode)
	cfg.Order = BitOrder(order)
	cfg.Frequency = rate
	if err := cfg.Validate(); err != nil {
		return err
	}

	d := s.owned[m]
	fresh := d == nil
	if fresh {
		if d, err = s.ctrl.New(m); err != nil {
			return err
		}
	}
	if err := d.Configure(cfg); err != nil {
		if fresh {
			d.Close()
		}
		return err
	}
	s.owned[m] = d
	return nil
}

// spi_transfer module=%c data=%*s
func (s *Session) handleTransfer(args *[]byte, reply protocol.OutputBuffer) error {
	m, err := decodeModule(args)
	if err != nil {
		return err
	}
	data, err := protocol.DecodeVLQBytes(args)
	if err != nil {
		return errMalformed
	}
	d, err := s.master(m)
	if err != nil {
		return err
	}

	rx := s.rx[:len(data)]
	if err := d.Tx(data, rx); err != nil {
		return err
	}
	protocol.EncodeVLQUint(reply, protocol.RespSPITransfer)
	protocol.EncodeVLQUint(reply, uint32(m))
	protocol.EncodeVLQBytes(reply, rx)
	return nil
}

// spi_send module=%c data=%*s
func (s *Session) handleSend(args *[]byte, reply protocol.OutputBuffer) error {
	m, err := decodeModule(args)
	if err != nil {
		return err
	}
	data, err := protocol.DecodeVLQBytes(args)
	if err != nil {
		return errMalformed
	}
	d, err := s.master(m)
	if err != nil {
		return err
	}
	return d.Tx(data, nil)
}

// spi_close module=%c
func (s *Session) handleClose(args *[]byte, reply protocol.OutputBuffer) error {
	m, err := decodeModule(args)
	if err != nil {
		return err
	}
	if d := s.owned[m]; d != nil {
		d.Close()
		s.owned[m] = nil
	}
	return nil
}

// spi_status
func (s *Session) handleStatus(args *[]byte, reply protocol.OutputBuffer) error {
	var overrun uint32
	for i, d := range s.owned {
		if d != nil && d.Overrun() {
			overrun |= 1 << i
		}
	}
	protocol.EncodeVLQUint(reply, protocol.RespSPIStatus)
	protocol.EncodeVLQUint(reply, uint32(s.ctrl.Active()))
	protocol.EncodeVLQUint(reply, overrun)
	return nil
}

func errorCode(err error) protocol.ErrorCode {
	var code protocol.ErrorCode
	switch {
	case errors.As(err, &code):
		return code
	case errors.Is(err, ErrUnknownCommand):
		return protocol.CodeUnknownCommand
	case errors.Is(err, errMalformed):
		return protocol.CodeMalformed
	case errors.Is(err, ErrInvalidModule):
		return protocol.CodeInvalidModule
	case errors.Is(err, ErrModuleInUse):
		return protocol.CodeModuleInUse
	case errors.Is(err, ErrInvalidMode), errors.Is(err, ErrInvalidRole),
		errors.Is(err, ErrInvalidBitOrder), errors.Is(err, ErrInvalidFrequency),
		errors.Is(err, ErrInvalidClock), errors.Is(err, ErrInvalidPinMode),
		errors.Is(err, ErrNoClockSource):
		return protocol.CodeInvalidConfig
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrClosed):
		return protocol.CodeNotConfigured
	case errors.Is(err, ErrCallbacksActive):
		return protocol.CodeCallbacksActive
	case errors.Is(err, ErrNoPlatform):
		return protocol.CodeNoPlatform
	case errors.Is(err, ErrSlaveRole):
		return protocol.CodeSlaveRole
	default:
		return protocol.CodeInternal
	}
}
