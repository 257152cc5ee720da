package core

// Clock system (CS) registers, SLAU356 chapter 6
const (
	CS_BASE   = 0x40010400
	CS_CTL0   = 0x04
	CS_CTL1   = 0x08
	CS_CLKEN  = 0x30
	csFieldSz = 0x7

	DCORSEL_POS = 16 // CSCTL0 DCO frequency range
	SELS_POS    = 4  // CSCTL1 SMCLK source
	SELA_POS    = 8  // CSCTL1 ACLK source
	DIVA_POS    = 24
	DIVS_POS    = 28
	REFOFSEL    = 1 << 15 // CSCLKEN: REFO at 128 kHz
)

// Clock source selections shared by SELA and SELS
const (
	SelLFXT = iota
	SelVLO
	SelREFO
	SelDCO
	SelMOD
	SelHFXT
)

// Nominal oscillator frequencies on the MSP432P401R LaunchPad
const (
	LFXTFrequency   = 32768
	VLOFrequency    = 9400
	REFOFrequency   = 32768
	REFOFastFreq    = 128000
	MODOSCFrequency = 24000000
)

// Nominal DCO frequency per DCORSEL, with DCOTUNE left at zero
var dcoFrequency = [...]uint32{1500000, 3000000, 6000000, 12000000, 24000000, 48000000}

// ClockSystem holds the CS register values the EUSCI_B clock sources
// depend on
type ClockSystem struct {
	CTL0  uint32
	CTL1  uint32
	CLKEN uint32
}

// Frequency returns the nominal frequency of a clock source, or 0 when
// it is fed from an oscillator whose frequency is unknown (HFXT)
func (cs ClockSystem) Frequency(src ClockSource) uint32 {
	switch src {
	case ClockSMCLK:
		sel := (cs.CTL1 >> SELS_POS) & csFieldSz
		return cs.oscillator(sel) >> ((cs.CTL1 >> DIVS_POS) & csFieldSz)
	case ClockACLK:
		sel := (cs.CTL1 >> SELA_POS) & csFieldSz
		if sel > SelREFO {
			sel = SelREFO // reserved values select REFO
		}
		return cs.oscillator(sel) >> ((cs.CTL1 >> DIVA_POS) & csFieldSz)
	}
	return 0
}

func (cs ClockSystem) oscillator(sel uint32) uint32 {
	switch sel {
	case SelLFXT:
		return LFXTFrequency
	case SelVLO:
		return VLOFrequency
	case SelREFO:
		if cs.CLKEN&REFOFSEL != 0 {
			return REFOFastFreq
		}
		return REFOFrequency
	case SelDCO:
		rsel := (cs.CTL0 >> DCORSEL_POS) & csFieldSz
		if int(rsel) >= len(dcoFrequency) {
			return 0
		}
		return dcoFrequency[rsel]
	case SelMOD:
		return MODOSCFrequency
	}
	return 0
}
