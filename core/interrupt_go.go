//go:build !tinygo

package core

// State stands in for the saved PRIMASK on regular Go
type State uintptr

// disableInterrupts is a no-op on regular Go, where the simulator raises
// interrupts synchronously from the caller's goroutine
func disableInterrupts() State {
	return 0
}

// restoreInterrupts is a no-op on regular Go
func restoreInterrupts(state State) {}
