package core_test

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/exp/slog"

	"github.com/DelfiSpace/DSPI/core"
	"github.com/DelfiSpace/DSPI/sim"
)

func TestHandleInterruptOrphan(t *testing.T) {
	ctrl, chip := newTestController(t)

	d, _ := ctrl.New(core.EUSCIB1)
	_ = d.Begin()
	d.OnTransmit(core.TransmitFunc(func() byte { return 0x55 }))

	// Drop the instance from the table without going through Close, leaving
	// the hardware enabled the way a crashed owner would
	owned := chip.Register(core.EUSCIB1, core.EUSCI_B_IE)
	if owned&core.UCTXIE == 0 {
		t.Fatal("setup: TX interrupt not enabled")
	}
	_ = d.Close()
	chip.Write16(core.EUSCIB1.Base()+core.EUSCI_B_CTLW0, chip.Register(core.EUSCIB1, core.EUSCI_B_CTLW0)&^core.UCSWRST)
	chip.Write16(core.EUSCIB1.Base()+core.EUSCI_B_IE, owned)
	chip.EnableIRQ(core.IRQ_EUSCIB1)

	ctrl.HandleInterrupt(core.EUSCIB1)

	if chip.Register(core.EUSCIB1, core.EUSCI_B_IE) != 0 {
		t.Error("orphaned interrupt left enabled")
	}
	if chip.Pending(core.EUSCIB1) {
		t.Error("orphaned interrupt still pending")
	}

	events := ctrl.Events()
	if len(events) == 0 || events[len(events)-1].Type != core.EvtOrphan {
		t.Errorf("orphan not recorded: %+v", events)
	}
}

func TestHandleInterruptNothingPending(t *testing.T) {
	ctrl, chip := newTestController(t)
	d, _ := ctrl.New(core.EUSCIB0)
	_ = d.Begin()

	called := false
	d.OnReceive(core.ReceiveFunc(func(byte) { called = true }))

	// TXIFG is set but not enabled
	ctrl.HandleInterrupt(core.EUSCIB0)
	if called {
		t.Error("receive handler called without a received byte")
	}
	if chip.Register(core.EUSCIB0, core.EUSCI_B_IFG)&core.UCTXIFG == 0 {
		t.Error("dispatcher cleared a flag it does not own")
	}

	// Out-of-range modules are ignored
	ctrl.HandleInterrupt(core.ModuleID(9))
}

func TestHandleInterruptRecordsEvents(t *testing.T) {
	ctrl, chip := newTestController(t)

	d, _ := ctrl.New(core.EUSCIB2)
	_ = d.InitSlave(core.Mode0, core.MSBFirst)

	var got []byte
	d.OnReceive(core.ReceiveFunc(func(b byte) { got = append(got, b) }))
	count := 0
	d.OnTransmit(core.TransmitFunc(func() byte {
		count++
		if count == 2 {
			d.OnTransmit(nil)
		}
		return byte(count * 0x10)
	}))

	chip.Service(ctrl, core.EUSCIB2, 4)
	var replies []byte
	for _, in := range []byte{0xA0, 0xB0} {
		replies = append(replies, chip.ClockIn(core.EUSCIB2, in))
		chip.Service(ctrl, core.EUSCIB2, 4)
	}

	if string(got) != "\xa0\xb0" {
		t.Errorf("received % x, expected a0 b0", got)
	}
	if string(replies) != "\x10\x20" {
		t.Errorf("master saw % x, expected 10 20", replies)
	}

	var tx, rx int
	for _, evt := range ctrl.Events() {
		if evt.Module != core.EUSCIB2 {
			t.Errorf("event for unexpected module %s", evt.Module)
		}
		switch evt.Type {
		case core.EvtTransmit:
			tx++
		case core.EvtReceive:
			rx++
		}
	}
	if tx != 2 || rx != 2 {
		t.Errorf("recorded %d TX and %d RX events, expected 2 each", tx, rx)
	}
}

func TestDumpEventsLogs(t *testing.T) {
	ctrl, chip := newTestController(t)
	chip.SetPeer(core.EUSCIB0, sim.Loopback{})

	var buf bytes.Buffer
	ctrl.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	d, _ := ctrl.New(core.EUSCIB0)
	_ = d.Begin()
	d.OnTransmit(core.TransmitFunc(func() byte {
		d.OnTransmit(nil)
		return 0x7E
	}))
	chip.Service(ctrl, core.EUSCIB0, 2)

	ctrl.DumpEvents()

	out := buf.String()
	for _, want := range []string{"module configured", "EUSCI_B0", "event ring dump", "TX", "value=126"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestSetLoggerNilSilences(t *testing.T) {
	ctrl, _ := newTestController(t)
	ctrl.SetLogger(nil)

	d, _ := ctrl.New(core.EUSCIB0)
	if err := d.Begin(); err != nil {
		t.Fatalf("Begin with silenced logger failed: %v", err)
	}
	ctrl.DumpEvents()
}

func TestDefaultController(t *testing.T) {
	chip := sim.NewChip()
	chip.SetPeer(core.EUSCIB3, sim.Loopback{})
	core.SetPlatform(chip.Platform())
	defer core.SetPlatform(core.Platform{})

	if core.MustPlatform().Registers == nil {
		t.Fatal("MustPlatform returned an empty platform")
	}

	d, err := core.New(core.EUSCIB3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	if core.Default().Instance(core.EUSCIB3) != d {
		t.Error("default controller does not own the instance")
	}

	_ = d.Begin()
	var got byte
	d.OnReceive(core.ReceiveFunc(func(b byte) { got = b }))
	chip.Write16(core.EUSCIB3.Base()+core.EUSCI_B_TXBUF, 0x3C)
	core.HandleInterrupt(core.EUSCIB3)
	if got != 0x3C {
		t.Errorf("package-level dispatch delivered 0x%02x", got)
	}
}

func TestMustPlatformPanics(t *testing.T) {
	core.SetPlatform(core.Platform{})
	defer func() {
		if recover() == nil {
			t.Error("MustPlatform did not panic without a platform")
		}
	}()
	core.MustPlatform()
}

func TestHandleInterruptDoesNotAllocate(t *testing.T) {
	ctrl, chip := newTestController(t)

	d, _ := ctrl.New(core.EUSCIB1)
	_ = d.InitSlave(core.Mode0, core.MSBFirst)

	var last, next byte
	d.OnReceive(core.ReceiveFunc(func(b byte) { last = b }))
	d.OnTransmit(core.TransmitFunc(func() byte {
		next++
		return next
	}))
	chip.Service(ctrl, core.EUSCIB1, 4)

	allocs := testing.AllocsPerRun(100, func() {
		chip.ClockIn(core.EUSCIB1, next^0xFF)
		ctrl.HandleInterrupt(core.EUSCIB1)
	})
	if allocs != 0 {
		t.Errorf("%v allocations per interrupt, expected none", allocs)
	}
	if last != (next-1)^0xFF {
		t.Errorf("last received 0x%02x", last)
	}
}
