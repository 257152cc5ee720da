package core

// EUSCI_B SPI Register Definitions
// Based on MSP432P4xx Technical Reference Manual (SLAU356), chapter 25
// Texas Instruments

// EUSCI_B register offsets (relative to module base)
const (
	EUSCI_B_CTLW0 = 0x00 // Control word 0
	EUSCI_B_BRW   = 0x06 // Bit rate control word
	EUSCI_B_STATW = 0x08 // Status
	EUSCI_B_RXBUF = 0x0C // Receive buffer
	EUSCI_B_TXBUF = 0x0E // Transmit buffer
	EUSCI_B_IE    = 0x2A // Interrupt enable
	EUSCI_B_IFG   = 0x2C // Interrupt flag
	EUSCI_B_IV    = 0x2E // Interrupt vector
)

// Base addresses of the four EUSCI_B blocks
const (
	EUSCI_B0_BASE = 0x40002000
	EUSCI_B1_BASE = 0x40002400
	EUSCI_B2_BASE = 0x40002800
	EUSCI_B3_BASE = 0x40002C00

	eusciBStride = 0x400
)

// CTLW0 bit fields (SPI mode)
const (
	UCSWRST = 0x0001 // Software reset enable
	UCSTEM  = 0x0002 // STE mode select in master mode (1 = STE is chip enable output)

	UCSSEL_MASK  = 0x00C0 // Clock source select
	UCSSEL_UCLKI = 0x0000 // External UCLK (slave)
	UCSSEL_ACLK  = 0x0040
	UCSSEL_SMCLK = 0x0080

	UCSYNC = 0x0100 // Synchronous mode (always set for SPI)

	UCMODE_MASK     = 0x0600
	UCMODE_3PIN     = 0x0000 // 3-pin SPI
	UCMODE_4PIN_STE = 0x0200 // 4-pin SPI, STE active high
	UCMODE_4PIN_STL = 0x0400 // 4-pin SPI, STE active low

	UCMST  = 0x0800 // Master mode select
	UC7BIT = 0x1000 // Character length 7 bit
	UCMSB  = 0x2000 // MSB first select
	UCCKPL = 0x4000 // Clock polarity: inactive state high
	UCCKPH = 0x8000 // Clock phase: data captured on the first UCLK edge
)

// STATW bit fields
const (
	UCBUSY   = 0x0001 // Transmit or receive operation in progress
	UCOE     = 0x0020 // Overrun error
	UCFE     = 0x0040 // Framing error (4-pin master bus conflict)
	UCLISTEN = 0x0080 // Loopback
)

// IE / IFG bit fields
const (
	UCRXIE = 0x0001
	UCTXIE = 0x0002

	UCRXIFG = 0x0001
	UCTXIFG = 0x0002
)

// IV values
const (
	IVNone  = 0x0000
	IVRXIFG = 0x0002
	IVTXIFG = 0x0004
)

// NVIC interrupt numbers on MSP432P401R
const (
	IRQ_EUSCIB0 = 20
	IRQ_EUSCIB1 = 21
	IRQ_EUSCIB2 = 22
	IRQ_EUSCIB3 = 23
)
