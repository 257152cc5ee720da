// Package protocol implements the framing and argument encoding of the DSPI
// serial bridge.
//
// A frame is
//
//	len | seq | payload... | crc16 hi | crc16 lo | 0x7E
//
// where len counts the whole frame and the CRC covers len, seq and payload.
// The payload is a VLQ message ID followed by VLQ encoded arguments. The
// device answers every frame with exactly one frame carrying the same seq.
package protocol

// Version of the bridge protocol
const Version = "1.0.0"

// Frame layout
const (
	FrameHeader  = 2  // len, seq
	FrameTrailer = 3  // crc16, sync
	FrameMin     = FrameHeader + FrameTrailer
	FrameMax     = 64 // Bounded by the MCU receive buffer
	PayloadMax   = FrameMax - FrameMin

	PositionLen = 0
	PositionSeq = 1

	SyncByte = 0x7E

	// Every seq carries the tag in its high nibble and a counter in the low
	SeqTag  = 0x10
	SeqMask = 0x0F
)

// NextSeq returns the sequence number following seq
func NextSeq(seq uint8) uint8 {
	return (seq+1)&SeqMask | SeqTag
}

// ValidSeq reports whether seq carries the sequence tag
func ValidSeq(seq uint8) bool {
	return seq&^SeqMask == SeqTag
}
