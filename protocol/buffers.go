package protocol

// InputBuffer is a source of received bytes that a decoder consumes from
// the front
type InputBuffer interface {
	// Data returns the bytes received so far, oldest first
	Data() []byte

	// Available returns len(Data())
	Available() int

	// Pop discards n bytes from the front
	Pop(n int)
}

// OutputBuffer is a sink for encoded bytes that supports patching the
// length byte of a frame once its payload is known
type OutputBuffer interface {
	// Output appends data
	Output(data []byte)

	// CurPosition returns the current write position
	CurPosition() int

	// Update overwrites the byte at pos
	Update(pos int, val byte)

	// DataSince returns the bytes written from pos up to now
	DataSince(pos int) []byte
}

// SliceInputBuffer serves a fixed byte slice
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput collects one frame in a fixed buffer. Bytes past FrameMax
// are dropped and reported by Overflowed.
type ScratchOutput struct {
	buf      [FrameMax]byte
	pos      int
	overflow bool
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.overflow = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns the bytes written since the last Reset
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Overflowed reports whether output was dropped since the last Reset
func (s *ScratchOutput) Overflowed() bool {
	return s.overflow
}

func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.overflow = false
}

// FifoBuffer accumulates received bytes for the frame decoder. Data is
// always contiguous: Pop moves the remainder to the front, so nothing is
// allocated after construction.
type FifoBuffer struct {
	buf []byte
	n   int
}

// NewFifoBuffer creates a buffer holding up to capacity bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count written
func (f *FifoBuffer) Write(data []byte) int {
	n := copy(f.buf[f.n:], data)
	f.n += n
	return n
}

// PushByte appends one byte, reporting false when full
func (f *FifoBuffer) PushByte(b byte) bool {
	if f.n == len(f.buf) {
		return false
	}
	f.buf[f.n] = b
	f.n++
	return true
}

func (f *FifoBuffer) Data() []byte   { return f.buf[:f.n] }
func (f *FifoBuffer) Available() int { return f.n }

// Free returns the room left for writing
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.n
}

func (f *FifoBuffer) Pop(n int) {
	if n >= f.n {
		f.n = 0
		return
	}
	copy(f.buf, f.buf[n:f.n])
	f.n -= n
}

func (f *FifoBuffer) IsEmpty() bool {
	return f.n == 0
}

func (f *FifoBuffer) Reset() {
	f.n = 0
}
