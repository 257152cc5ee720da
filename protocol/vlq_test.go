package protocol

import "testing"

func TestVLQEncodeDecodeInt(t *testing.T) {
	testCases := []int32{
		0, 1, -1, 95, 96, -32, -33,
		127, -127, 128, -128,
		1000, -1000, 65535, -65535,
		1000000, -1000000,
		1<<31 - 1, -1 << 31,
	}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQInt(output, expected)
		encoded := output.Result()

		data := encoded
		decoded, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("Failed to decode VLQ for value %d: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("VLQ mismatch: expected %d, got %d (encoded as % x)", expected, decoded, encoded)
		}
		if len(data) != 0 {
			t.Errorf("VLQ decode left %d bytes for value %d", len(data), expected)
		}
	}
}

func TestVLQEncodedLength(t *testing.T) {
	testCases := []struct {
		v    uint32
		size int
	}{
		{0, 1},
		{95, 1},
		{96, 2},
		{1000000, 3},
		{4000000, 4},
		{0xFFFFFFFF, 1}, // -1
	}

	for _, tc := range testCases {
		output := NewScratchOutput()
		EncodeVLQUint(output, tc.v)
		if got := len(output.Result()); got != tc.size {
			t.Errorf("%d encoded in %d bytes, expected %d", tc.v, got, tc.size)
		}
	}
}

func TestVLQBytes(t *testing.T) {
	testCases := [][]byte{
		{},
		{0x01},
		{0xFF, 0xFE, 0xFD},
		make([]byte, PayloadMax-1),
	}

	for i, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQBytes(output, expected)

		data := output.Result()
		decoded, err := DecodeVLQBytes(&data)
		if err != nil {
			t.Errorf("case %d: decode failed: %v", i, err)
			continue
		}
		if string(decoded) != string(expected) {
			t.Errorf("case %d: got % x, expected % x", i, decoded, expected)
		}
	}
}

func TestVLQTruncated(t *testing.T) {
	data := []byte{0x80}
	if _, err := DecodeVLQInt(&data); err != ErrTruncated {
		t.Errorf("Expected ErrTruncated, got %v", err)
	}

	data = []byte{0x05, 1, 2}
	if _, err := DecodeVLQBytes(&data); err != ErrTruncated {
		t.Errorf("short byte string: expected ErrTruncated, got %v", err)
	}
}

func TestVLQTooLong(t *testing.T) {
	data := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&data); err != ErrInvalidVLQ {
		t.Errorf("Expected ErrInvalidVLQ, got %v", err)
	}
}
