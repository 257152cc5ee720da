package protocol

import "errors"

var (
	ErrFrameTooLong = errors.New("frame exceeds maximum length")
	ErrBadSequence  = errors.New("sequence number lacks tag")
)

// Frame is one decoded frame
type Frame struct {
	Seq     uint8
	Payload []byte
}

// EncodeFrame writes a complete frame whose payload is produced by body.
// ErrFrameTooLong is returned, and the output left partially written, when
// the result would not fit in FrameMax.
func EncodeFrame(out OutputBuffer, seq uint8, body func(OutputBuffer)) error {
	if !ValidSeq(seq) {
		return ErrBadSequence
	}
	start := out.CurPosition()
	out.Output([]byte{0, seq})
	if body != nil {
		body(out)
	}

	length := len(out.DataSince(start)) + FrameTrailer
	if length > FrameMax {
		return ErrFrameTooLong
	}
	out.Update(start+PositionLen, uint8(length))

	crc := CRC16(out.DataSince(start))
	out.Output([]byte{uint8(crc >> 8), uint8(crc), SyncByte})
	return nil
}

// AppendFrame appends a frame carrying payload to dst
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	if !ValidSeq(seq) {
		return dst, ErrBadSequence
	}
	length := FrameMin + len(payload)
	if length > FrameMax {
		return dst, ErrFrameTooLong
	}
	start := len(dst)
	dst = append(dst, uint8(length), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), SyncByte), nil
}

// Decoder extracts frames from a byte stream. After a length, sequence,
// sync or CRC error it discards input up to the next sync byte and starts
// over, so a corrupted frame costs at most that frame.
type Decoder struct {
	payload [PayloadMax]byte
	synced  bool

	// Dropped counts frames rejected since creation
	Dropped uint32
}

// NewDecoder returns a decoder expecting a frame boundary
func NewDecoder() *Decoder {
	return &Decoder{synced: true}
}

// Next returns the next complete frame in input, consuming it. It returns
// false when input holds no complete frame yet; the partial frame stays in
// input. The returned payload is only valid until the following call.
func (d *Decoder) Next(input InputBuffer) (Frame, bool) {
	data := input.Data()
	consumed := 0
	defer func() { input.Pop(consumed) }()

	for consumed < len(data) {
		rest := data[consumed:]

		if !d.synced {
			i := indexSync(rest)
			if i < 0 {
				consumed = len(data)
				return Frame{}, false
			}
			consumed += i + 1
			d.synced = true
			continue
		}

		if rest[0] == SyncByte {
			consumed++
			continue
		}

		length := int(rest[PositionLen])
		if length < FrameMin || length > FrameMax {
			d.drop()
			continue
		}
		if len(rest) < FrameHeader {
			return Frame{}, false
		}
		seq := rest[PositionSeq]
		if !ValidSeq(seq) {
			d.drop()
			continue
		}
		if len(rest) < length {
			return Frame{}, false
		}
		if rest[length-1] != SyncByte {
			d.drop()
			continue
		}
		crc := uint16(rest[length-FrameTrailer])<<8 | uint16(rest[length-FrameTrailer+1])
		if crc != CRC16(rest[:length-FrameTrailer]) {
			d.drop()
			continue
		}

		n := copy(d.payload[:], rest[FrameHeader:length-FrameTrailer])
		consumed += length
		return Frame{Seq: seq, Payload: d.payload[:n]}, true
	}
	return Frame{}, false
}

// Reset drops any partial state so the next byte starts a frame
func (d *Decoder) Reset() {
	d.synced = true
}

func (d *Decoder) drop() {
	d.synced = false
	d.Dropped++
}

func indexSync(data []byte) int {
	for i, b := range data {
		if b == SyncByte {
			return i
		}
	}
	return -1
}
