package core_test

import (
	"errors"
	"testing"

	"github.com/DelfiSpace/DSPI/core"
	"github.com/DelfiSpace/DSPI/sim"
)

func newTestController(t *testing.T) (*core.Controller, *sim.Chip) {
	t.Helper()
	chip := sim.NewChip()
	return core.NewController(chip.Platform()), chip
}

func TestNewClaimsSlot(t *testing.T) {
	ctrl, _ := newTestController(t)

	d, err := ctrl.New(core.EUSCIB2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if ctrl.Instance(core.EUSCIB2) != d {
		t.Error("instance table does not point at the new DSPI")
	}
	if ctrl.Active() != 1<<2 {
		t.Errorf("active mask 0x%02x, expected 0x04", ctrl.Active())
	}

	if _, err := ctrl.New(core.EUSCIB2); err != core.ErrModuleInUse {
		t.Errorf("second owner: expected ErrModuleInUse, got %v", err)
	}
	if _, err := ctrl.New(core.ModuleID(7)); err != core.ErrInvalidModule {
		t.Errorf("expected ErrInvalidModule, got %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if ctrl.Instance(core.EUSCIB2) != nil {
		t.Error("slot not cleared by Close")
	}
	if _, err := ctrl.New(core.EUSCIB2); err != nil {
		t.Errorf("slot not reusable after Close: %v", err)
	}
}

func TestBeginMaster(t *testing.T) {
	ctrl, chip := newTestController(t)

	d, _ := ctrl.New(core.EUSCIB0)
	if err := d.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	ctlw0 := chip.Register(core.EUSCIB0, core.EUSCI_B_CTLW0)
	if ctlw0&core.UCSWRST != 0 {
		t.Error("module left in reset")
	}
	if ctlw0&core.UCMST == 0 {
		t.Error("Begin defaulted to slave mode")
	}
	if brw := chip.Register(core.EUSCIB0, core.EUSCI_B_BRW); brw != 3 {
		t.Errorf("BRW %d, expected 3 for 1 MHz from 3 MHz SMCLK", brw)
	}
	if pins := chip.PeripheralPins(1); pins != 0xE0 {
		t.Errorf("P1 function select 0x%02x, expected 0xE0", pins)
	}
	if !chip.IRQEnabled(core.IRQ_EUSCIB0) {
		t.Error("NVIC line not enabled")
	}
	if !d.Configured() {
		t.Error("Configured() false after Begin")
	}
}

func TestBeginSlave(t *testing.T) {
	ctrl, chip := newTestController(t)

	d, _ := ctrl.New(core.EUSCIB1)
	d.SetSlaveMode()
	if err := d.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if chip.Register(core.EUSCIB1, core.EUSCI_B_CTLW0)&core.UCMST != 0 {
		t.Error("slave mode programmed UCMST")
	}
	if d.Config().Role != core.RoleSlave {
		t.Errorf("role %s, expected slave", d.Config().Role)
	}

	d.SetMasterMode()
	if err := d.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if chip.Register(core.EUSCIB1, core.EUSCI_B_CTLW0)&core.UCMST == 0 {
		t.Error("SetMasterMode not applied by Begin")
	}
}

func TestConfigureWithoutPlatform(t *testing.T) {
	ctrl := core.NewController(core.Platform{})
	d, _ := ctrl.New(core.EUSCIB0)
	if err := d.Begin(); err != core.ErrNoPlatform {
		t.Errorf("expected ErrNoPlatform, got %v", err)
	}
}

func TestConfigureRejectsInvalid(t *testing.T) {
	ctrl, chip := newTestController(t)
	d, _ := ctrl.New(core.EUSCIB0)

	if err := d.InitMaster(core.SPIMode(5), core.MSBFirst, 1000000); err != core.ErrInvalidMode {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
	if err := d.InitMaster(core.Mode0, core.MSBFirst, 0); err != core.ErrInvalidFrequency {
		t.Errorf("expected ErrInvalidFrequency, got %v", err)
	}
	if d.Configured() {
		t.Error("invalid configuration marked the module configured")
	}
	if chip.Register(core.EUSCIB0, core.EUSCI_B_CTLW0)&core.UCSWRST == 0 {
		t.Error("invalid configuration released the module from reset")
	}
}

func TestTransferLoopback(t *testing.T) {
	ctrl, chip := newTestController(t)
	chip.SetPeer(core.EUSCIB0, sim.Loopback{})

	d, _ := ctrl.New(core.EUSCIB0)
	if err := d.InitMaster(core.Mode3, core.MSBFirst, 500000); err != nil {
		t.Fatalf("InitMaster failed: %v", err)
	}

	for _, b := range []byte{0x00, 0x5A, 0xA5, 0xFF} {
		got, err := d.Transfer(b)
		if err != nil {
			t.Fatalf("Transfer(0x%02x) failed: %v", b, err)
		}
		if got != b {
			t.Errorf("Transfer(0x%02x) = 0x%02x", b, got)
		}
	}
}

func TestTransferPeer(t *testing.T) {
	ctrl, chip := newTestController(t)

	// A register-read style device: answers each byte with its complement
	chip.SetPeer(core.EUSCIB3, sim.PeerFunc(func(out byte) byte { return ^out }))

	d, _ := ctrl.New(core.EUSCIB3)
	if err := d.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	w := []byte{0x01, 0x02, 0xF0}
	r := make([]byte, len(w))
	if err := d.Tx(w, r); err != nil {
		t.Fatalf("Tx failed: %v", err)
	}
	for i := range w {
		if r[i] != ^w[i] {
			t.Errorf("byte %d: got 0x%02x, expected 0x%02x", i, r[i], ^w[i])
		}
	}

	// Read-only: zeros are clocked out
	r = make([]byte, 2)
	if err := d.Tx(nil, r); err != nil {
		t.Fatalf("Tx(nil, r) failed: %v", err)
	}
	if r[0] != 0xFF || r[1] != 0xFF {
		t.Errorf("read-only Tx returned % x", r)
	}

	sent := chip.Sent(core.EUSCIB3)
	want := []byte{0x01, 0x02, 0xF0, 0x00, 0x00}
	if string(sent) != string(want) {
		t.Errorf("bytes on the wire % x, expected % x", sent, want)
	}

	if err := d.Tx([]byte{1, 2}, make([]byte, 3)); err != core.ErrBufferLength {
		t.Errorf("expected ErrBufferLength, got %v", err)
	}
}

func TestTransferNotConfigured(t *testing.T) {
	ctrl, _ := newTestController(t)
	d, _ := ctrl.New(core.EUSCIB0)

	if b, err := d.Transfer(0x42); err != core.ErrNotConfigured || b != 0 {
		t.Errorf("Transfer before Begin = 0x%02x, %v", b, err)
	}
}

func TestTransferWithCallbacksReturnsZero(t *testing.T) {
	ctrl, chip := newTestController(t)
	chip.SetPeer(core.EUSCIB0, sim.Loopback{})

	d, _ := ctrl.New(core.EUSCIB0)
	_ = d.Begin()
	d.OnReceive(core.ReceiveFunc(func(byte) {}))

	b, err := d.Transfer(0x42)
	if err != core.ErrCallbacksActive {
		t.Errorf("expected ErrCallbacksActive, got %v", err)
	}
	if b != 0 {
		t.Errorf("expected 0, got 0x%02x", b)
	}
	if len(chip.Sent(core.EUSCIB0)) != 0 {
		t.Error("Transfer touched the bus while callbacks were registered")
	}

	d.OnReceive(nil)
	if b, err := d.Transfer(0x42); err != nil || b != 0x42 {
		t.Errorf("Transfer after deregistering = 0x%02x, %v", b, err)
	}
}

func TestOnTransmitFiresImmediately(t *testing.T) {
	ctrl, chip := newTestController(t)
	chip.SetPeer(core.EUSCIB0, sim.Loopback{})

	d, _ := ctrl.New(core.EUSCIB0)
	_ = d.Begin()

	payload := []byte{0x10, 0x20, 0x30}
	next := 0
	d.OnTransmit(core.TransmitFunc(func() byte {
		b := payload[next]
		next++
		if next == len(payload) {
			d.OnTransmit(nil)
		}
		return b
	}))

	if chip.Register(core.EUSCIB0, core.EUSCI_B_IE)&core.UCTXIE == 0 {
		t.Fatal("UCTXIE not enabled")
	}
	if !chip.Pending(core.EUSCIB0) {
		t.Fatal("TX interrupt not pending right after registering the handler")
	}

	n := chip.Service(ctrl, core.EUSCIB0, 10)
	if n != len(payload) {
		t.Errorf("handler ran %d times, expected %d", n, len(payload))
	}
	if got := chip.Sent(core.EUSCIB0); string(got) != string(payload) {
		t.Errorf("bytes on the wire % x, expected % x", got, payload)
	}
	if chip.Register(core.EUSCIB0, core.EUSCI_B_IE)&core.UCTXIE != 0 {
		t.Error("UCTXIE still enabled after deregistering")
	}
}

func TestOnReceiveClearsStaleFlag(t *testing.T) {
	ctrl, chip := newTestController(t)
	chip.SetPeer(core.EUSCIB0, sim.Loopback{})

	d, _ := ctrl.New(core.EUSCIB0)
	_ = d.Begin()

	// Leave a byte sitting in RXBUF
	chip.Write16(core.EUSCIB0.Base()+core.EUSCI_B_TXBUF, 0x99)
	if chip.Register(core.EUSCIB0, core.EUSCI_B_IFG)&core.UCRXIFG == 0 {
		t.Fatal("setup: RXIFG not set")
	}

	var got []byte
	d.OnReceive(core.ReceiveFunc(func(b byte) { got = append(got, b) }))

	if chip.Pending(core.EUSCIB0) {
		t.Error("stale receive flag would trigger the new handler")
	}
	if chip.Service(ctrl, core.EUSCIB0, 5) != 0 || len(got) != 0 {
		t.Errorf("spurious receive: % x", got)
	}
}

func TestSlaveInterruptEcho(t *testing.T) {
	ctrl, chip := newTestController(t)

	d, _ := ctrl.New(core.EUSCIB1)
	if err := d.InitSlave(core.Mode1, core.MSBFirst); err != nil {
		t.Fatalf("InitSlave failed: %v", err)
	}

	// Echo every received byte back on the next exchange
	var last byte
	var received []byte
	d.OnReceive(core.ReceiveFunc(func(b byte) {
		received = append(received, b)
		last = b
	}))
	d.OnTransmit(core.TransmitFunc(func() byte { return last }))

	// Prime the transmit buffer before the master starts clocking
	chip.Service(ctrl, core.EUSCIB1, 1)

	var replies []byte
	for _, b := range []byte{0xA1, 0xB2, 0xC3} {
		replies = append(replies, chip.ClockIn(core.EUSCIB1, b))
		chip.Service(ctrl, core.EUSCIB1, 4)
	}

	if string(received) != "\xa1\xb2\xc3" {
		t.Errorf("slave received % x", received)
	}
	// TX is serviced before RX in the same interrupt, so the echo trails by two exchanges
	if want := []byte{0x00, 0x00, 0xA1}; string(replies) != string(want) {
		t.Errorf("master saw % x, expected % x", replies, want)
	}
	if d.Overrun() {
		t.Error("overrun reported although every byte was read")
	}
}

func TestSlaveOverrun(t *testing.T) {
	ctrl, chip := newTestController(t)

	d, _ := ctrl.New(core.EUSCIB2)
	_ = d.InitSlave(core.Mode0, core.LSBFirst)

	chip.ClockIn(core.EUSCIB2, 1)
	chip.ClockIn(core.EUSCIB2, 2)
	if !d.Overrun() {
		t.Error("overrun not reported after two unread bytes")
	}
}

func TestConfigureRearmsInterrupts(t *testing.T) {
	ctrl, chip := newTestController(t)

	d, _ := ctrl.New(core.EUSCIB0)
	d.OnReceive(core.ReceiveFunc(func(byte) {}))
	if chip.Register(core.EUSCIB0, core.EUSCI_B_IE) != 0 {
		t.Error("interrupt enabled before the module was configured")
	}

	_ = d.Begin()
	if chip.Register(core.EUSCIB0, core.EUSCI_B_IE) != core.UCRXIE {
		t.Errorf("IE 0x%04x after Begin, expected UCRXIE", chip.Register(core.EUSCIB0, core.EUSCI_B_IE))
	}

	// Reconfiguring passes through reset, which clears IE on the chip
	_ = d.InitMaster(core.Mode2, core.MSBFirst, 250000)
	if chip.Register(core.EUSCIB0, core.EUSCI_B_IE) != core.UCRXIE {
		t.Error("receive interrupt not re-armed after reconfiguration")
	}
}

func TestReconfigureReleasesSTE(t *testing.T) {
	ctrl, chip := newTestController(t)
	d, _ := ctrl.New(core.EUSCIB0)

	cfg := core.DefaultConfig(core.RoleMaster)
	cfg.Pins = core.FourPinActiveLow
	if err := d.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if chip.PeripheralPins(1) != 0xF0 {
		t.Errorf("4-pin P1 select 0x%02x, expected 0xF0", chip.PeripheralPins(1))
	}

	_ = d.Begin()
	if chip.PeripheralPins(1) != 0xE0 {
		t.Errorf("3-pin P1 select 0x%02x, expected 0xE0", chip.PeripheralPins(1))
	}
}

func TestCloseResetsModule(t *testing.T) {
	ctrl, chip := newTestController(t)
	d, _ := ctrl.New(core.EUSCIB3)
	_ = d.Begin()
	d.OnReceive(core.ReceiveFunc(func(byte) {}))

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if chip.Register(core.EUSCIB3, core.EUSCI_B_CTLW0)&core.UCSWRST == 0 {
		t.Error("module still enabled after Close")
	}
	if chip.Register(core.EUSCIB3, core.EUSCI_B_IE) != 0 {
		t.Error("interrupts still enabled after Close")
	}
	if chip.IRQEnabled(core.IRQ_EUSCIB3) {
		t.Error("NVIC line still enabled after Close")
	}
	if chip.PeripheralPins(10) != 0 {
		t.Errorf("pins still muxed: 0x%02x", chip.PeripheralPins(10))
	}

	if err := d.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := d.Begin(); err != core.ErrClosed {
		t.Errorf("Begin after Close: expected ErrClosed, got %v", err)
	}
}

func TestCloseKeepsNewOwner(t *testing.T) {
	ctrl, _ := newTestController(t)
	old, _ := ctrl.New(core.EUSCIB0)
	_ = old.Close()

	owner, _ := ctrl.New(core.EUSCIB0)
	_ = old.Close()
	if ctrl.Instance(core.EUSCIB0) != owner {
		t.Error("closing a stale instance evicted the current owner")
	}
}

var errPinConflict = errors.New("pin already in use")

// flakyPins fails pin routing on demand
type flakyPins struct {
	*sim.Chip
	fail bool
}

func (f *flakyPins) SetPrimaryFunction(port uint8, pins uint16) error {
	if f.fail {
		return errPinConflict
	}
	return f.Chip.SetPrimaryFunction(port, pins)
}

func TestConfigurePinFailureDisablesModule(t *testing.T) {
	chip := sim.NewChip()
	fp := &flakyPins{Chip: chip}
	ctrl := core.NewController(core.Platform{Registers: chip, Pins: fp, Interrupts: chip, Clock: chip})

	d, _ := ctrl.New(core.EUSCIB0)
	d.OnReceive(core.ReceiveFunc(func(byte) {}))
	if err := d.Begin(); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	fp.fail = true
	if err := d.InitMaster(core.Mode1, core.MSBFirst, 500000); err != errPinConflict {
		t.Fatalf("expected errPinConflict, got %v", err)
	}
	if d.Configured() {
		t.Error("module still reported configured")
	}
	if _, err := d.Transfer(0x55); err != core.ErrNotConfigured {
		t.Errorf("Transfer after failed Configure: expected ErrNotConfigured, got %v", err)
	}
	if chip.Register(core.EUSCIB0, core.EUSCI_B_CTLW0)&core.UCSWRST == 0 {
		t.Error("module released from reset")
	}
	if chip.Register(core.EUSCIB0, core.EUSCI_B_IE) != 0 || chip.IRQEnabled(core.IRQ_EUSCIB0) {
		t.Error("interrupts left enabled")
	}
	if chip.PeripheralPins(1) != 0 {
		t.Errorf("pins still muxed: 0x%02x", chip.PeripheralPins(1))
	}

	fp.fail = false
	d.OnReceive(nil)
	if err := d.Begin(); err != nil {
		t.Fatalf("Begin after recovery failed: %v", err)
	}
	if _, err := d.Transfer(0x55); err != nil {
		t.Errorf("Transfer after recovery failed: %v", err)
	}
}
