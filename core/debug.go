package core

import (
	"context"

	"golang.org/x/exp/slog"
)

// Event captures an interrupt-path event for post-mortem analysis.
// Recording never allocates, so it is safe inside an interrupt handler.
type Event struct {
	Type   uint8    // Event type code
	Module ModuleID // Module that raised the event
	Seq    uint32   // Monotonic event counter
	Value  uint16   // Context-dependent value (data byte, flags)
}

// Event type codes
const (
	EvtTransmit = 1 // TX interrupt serviced, Value = byte written
	EvtReceive  = 2 // RX interrupt serviced, Value = byte read
	EvtOrphan   = 3 // Interrupt on a module with no owner, Value = flags
	EvtOverrun  = 4 // UCOE observed, Value = STATW
)

const EventRingSize = 32 // Keep last 32 events

// EventRing is a fixed-size ring of the most recent events
type EventRing struct {
	events [EventRingSize]Event
	head   uint8
	seq    uint32
}

// Record stores an event, overwriting the oldest one
func (r *EventRing) Record(typ uint8, m ModuleID, value uint16) {
	r.seq++
	r.events[r.head] = Event{Type: typ, Module: m, Seq: r.seq, Value: value}
	r.head = (r.head + 1) % EventRingSize
}

// Snapshot returns the recorded events from oldest to newest
func (r *EventRing) Snapshot() []Event {
	out := make([]Event, 0, EventRingSize)
	for i := uint8(0); i < EventRingSize; i++ {
		evt := r.events[(r.head+i)%EventRingSize]
		if evt.Type == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

// Clear empties the ring
func (r *EventRing) Clear() {
	*r = EventRing{}
}

func eventName(typ uint8) string {
	switch typ {
	case EvtTransmit:
		return "TX"
	case EvtReceive:
		return "RX"
	case EvtOrphan:
		return "ORPHAN"
	case EvtOverrun:
		return "OVERRUN"
	default:
		return "UNKNOWN"
	}
}

// discardHandler drops every record; used until the platform supplies a sink
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

var discardLogger = slog.New(discardHandler{})

// SetLogger sets the logger of the default controller.
// Platforms redirect output to UART, USB, etc. Nil silences logging.
func SetLogger(l *slog.Logger) {
	defaultController.SetLogger(l)
}

// DumpEvents writes the default controller's event ring to its logger
func DumpEvents() {
	defaultController.DumpEvents()
}

// DumpEvents writes the event ring to the logger at debug level.
// Call it outside interrupt context.
func (c *Controller) DumpEvents() {
	ctx := context.Background()
	if !c.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}

	state := disableInterrupts()
	events := c.events.Snapshot()
	restoreInterrupts(state)

	c.logger.LogAttrs(ctx, slog.LevelDebug, "event ring dump", slog.Int("count", len(events)))
	for _, evt := range events {
		c.logger.LogAttrs(ctx, slog.LevelDebug, eventName(evt.Type),
			slog.String("module", evt.Module.String()),
			slog.Uint64("seq", uint64(evt.Seq)),
			slog.Uint64("value", uint64(evt.Value)))
	}
}

func (c *Controller) debug(msg string, attrs ...slog.Attr) {
	c.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

func (c *Controller) info(msg string, attrs ...slog.Attr) {
	c.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}
