// Package serial opens the UART link to a DSPI bridge
package serial

import (
	"io"
	"time"
)

// Port is a serial link to the bridge firmware
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not yet read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate of the LaunchPad backchannel UART
	Baud int

	// ReadTimeout bounds a single Read (0 = blocking)
	ReadTimeout time.Duration
}

// DefaultBaud matches the firmware's eUSCI_A0 setting
const DefaultBaud = 115200

// DefaultConfig returns the configuration used by the bridge firmware
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100 * time.Millisecond,
	}
}
