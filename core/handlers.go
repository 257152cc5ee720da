package core

// TransmitHandler supplies the next byte to shift out when the transmit
// buffer empties. It runs in interrupt context and must not block.
type TransmitHandler interface {
	OnTransmit() byte
}

// ReceiveHandler consumes a byte as soon as it has been shifted in.
// It runs in interrupt context and must not block.
type ReceiveHandler interface {
	OnReceive(b byte)
}

// TransmitFunc adapts a plain function to TransmitHandler
type TransmitFunc func() byte

func (f TransmitFunc) OnTransmit() byte { return f() }

// ReceiveFunc adapts a plain function to ReceiveHandler
type ReceiveFunc func(b byte)

func (f ReceiveFunc) OnReceive(b byte) { f(b) }

// A nil function wrapped in its adapter counts as no handler
func transmitOrNil(h TransmitHandler) TransmitHandler {
	if f, ok := h.(TransmitFunc); ok && f == nil {
		return nil
	}
	return h
}

func receiveOrNil(h ReceiveHandler) ReceiveHandler {
	if f, ok := h.(ReceiveFunc); ok && f == nil {
		return nil
	}
	return h
}
