//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks interrupts so the instance table and handler
// fields cannot change under a running EUSCI_B vector
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

// restoreInterrupts restores the saved interrupt mask
func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
