// Package regs describes the baseband register map: logical register
// indices, packed sub-fields, enumerations and the bus wire encoding.
package regs

import (
	"errors"
	"fmt"
)

// Index is a logical register index. The register byte address on the bus
// is Index*4.
type Index uint8

// Logical register indices. Gaps in the numbering are reserved slots that
// still occupy a word in the shadow table.
const (
	VfoAHamBand Index = 0
	VfoAFreq    Index = 1
	VfoAAtt     Index = 2
	VfoAPre     Index = 3
	VfoAMode    Index = 4
	VfoAAGC     Index = 5

	VfoBHamBand Index = 6
	VfoBFreq    Index = 7
	VfoBAtt     Index = 8
	VfoBPre     Index = 9
	VfoBMode    Index = 10
	VfoBAGC     Index = 11

	SpleAtueTrx Index = 12
	VfoVm       Index = 13
	RxVol       Index = 14
	RfgTxPwr    Index = 15

	AtuNetwork Index = 17

	LineMicGain      Index = 20 // ling, loutg, imicg, hmicg
	MicSquelch       Index = 21 // micsel, pttmode, chge, spmode, auxiqgen, sqlthr
	Vox              Index = 22 // voxg, voxag, voxdly, voxe
	NoiseReduction   Index = 23 // nrthr, nbw, nbthr, nre, nbe
	Notch            Index = 24 // dnfcnt, dnfwidth, dnfe
	Compressor       Index = 25 // cmplevel, cmpe
	AgcKneeSlopeHang Index = 27
	AgcTime          Index = 28
	MonitorFFT       Index = 29 // monilevel, fftdec, fftzoomcw
	RxFilter         Index = 30

	Reg32      Index = 32
	Keyer      Index = 33 // ks, km, kimb, cwtone, cwvol, cwtrain
	QskRatio   Index = 34 // qsktime, kr
	RxEQ       Index = 35
	RxEQWFM    Index = 36
	MicEQ      Index = 37
	BiasDrive  Index = 41 // biasdrive, biasfinal
	RIT        Index = 42
	XIT        Index = 43
	FilterSSB  Index = 44
	FilterSSB2 Index = 45
	FilterCW   Index = 46
	FilterAM   Index = 47
	FilterNFM  Index = 48
	FilterWFM  Index = 49

	Last Index = 53
)

// Count is the number of 32-bit words in the register table.
const Count = int(Last) + 1

// Aliases used by the baseline seed. The older firmware map names the
// filter words by slot rather than by mode.
const (
	Filter1Low  = FilterSSB
	Filter1High = FilterSSB2
	Filter2Low  = FilterCW
	Filter2High = FilterAM
	PwrSync     = FilterWFM
)

// ErrInvalidRegisterIndex is returned for an index outside 0..Last.
var ErrInvalidRegisterIndex = errors.New("invalid register index")

// Valid reports whether i names a slot in the register table.
func (i Index) Valid() bool {
	return int(i) < Count
}

// Addr returns the byte address of the register on the bus.
func (i Index) Addr() uint16 {
	return uint16(i) * 4
}

// Check returns ErrInvalidRegisterIndex wrapped with the offending value.
func (i Index) Check() error {
	if !i.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidRegisterIndex, i)
	}
	return nil
}

var indexNames = map[Index]string{
	VfoAHamBand:      "vfoa_ham_band",
	VfoAFreq:         "vfoa_freq",
	VfoAAtt:          "vfoa_att",
	VfoAPre:          "vfoa_pre",
	VfoAMode:         "vfoa_mode",
	VfoAAGC:          "vfoa_agc",
	VfoBHamBand:      "vfob_ham_band",
	VfoBFreq:         "vfob_freq",
	VfoBAtt:          "vfob_att",
	VfoBPre:          "vfob_pre",
	VfoBMode:         "vfob_mode",
	VfoBAGC:          "vfob_agc",
	SpleAtueTrx:      "sple_atue_trx",
	VfoVm:            "vi_vm",
	RxVol:            "rxvol",
	RfgTxPwr:         "rfg_txpwr",
	AtuNetwork:       "atu_network",
	LineMicGain:      "ling_loutg_imicg_hmicg",
	MicSquelch:       "micsel_pttmode_chge_spmode_auxiqgen_sqlthr",
	Vox:              "voxg_voxag_voxdly_voxe",
	NoiseReduction:   "nrthr_nbw_nbthr_nre_nbe",
	Notch:            "dnfcnt_dnfwidth_dnfe",
	Compressor:       "cmplevel_cmpe",
	AgcKneeSlopeHang: "agcknee_agcslope_agchang",
	AgcTime:          "agctime",
	MonitorFFT:       "monilevel_fftdec_fftzoomcw",
	RxFilter:         "rxfilter",
	Reg32:            "reg_32",
	Keyer:            "ks_km_kimb_cwtone_cwvol_cwtrain",
	QskRatio:         "qsktime_kr",
	RxEQ:             "rxeq",
	RxEQWFM:          "rxeqwfm",
	MicEQ:            "miceq",
	BiasDrive:        "biasdrive_biasfinal",
	RIT:              "rit",
	XIT:              "xit",
	FilterSSB:        "filter_ssb",
	FilterSSB2:       "filter_ssb_2",
	FilterCW:         "filter_cw",
	FilterAM:         "filter_am",
	FilterNFM:        "filter_nfm",
	FilterWFM:        "filter_wfm",
	Last:             "last",
}

// String returns the device name of the register, or "reg_N" for
// reserved slots.
func (i Index) String() string {
	if name, ok := indexNames[i]; ok {
		return name
	}
	return fmt.Sprintf("reg_%d", uint8(i))
}

// VFO selects one of the two oscillator contexts.
type VFO uint8

const (
	VFOA VFO = 0
	VFOB VFO = 1
)

func (v VFO) String() string {
	if v == VFOB {
		return "B"
	}
	return "A"
}

// ParseVFO accepts "A"/"B" in either case.
func ParseVFO(s string) (VFO, error) {
	switch s {
	case "A", "a":
		return VFOA, nil
	case "B", "b":
		return VFOB, nil
	}
	return VFOA, fmt.Errorf("unknown VFO %q", s)
}

// FreqReg returns the frequency register of the VFO.
func (v VFO) FreqReg() Index {
	if v == VFOB {
		return VfoBFreq
	}
	return VfoAFreq
}

// ModeReg returns the mode register of the VFO.
func (v VFO) ModeReg() Index {
	if v == VFOB {
		return VfoBMode
	}
	return VfoAMode
}

// AGCReg returns the AGC register of the VFO.
func (v VFO) AGCReg() Index {
	if v == VFOB {
		return VfoBAGC
	}
	return VfoAAGC
}

// AttReg returns the attenuator register of the VFO.
func (v VFO) AttReg() Index {
	if v == VFOB {
		return VfoBAtt
	}
	return VfoAAtt
}

// PreReg returns the preamplifier register of the VFO.
func (v VFO) PreReg() Index {
	if v == VFOB {
		return VfoBPre
	}
	return VfoAPre
}

// Mode is the demodulator mode written to the VFO mode registers.
type Mode uint32

const (
	ModeLSB    Mode = 0
	ModeLSBDig Mode = 1
	ModeUSB    Mode = 2
	ModeUSBDig Mode = 3
	ModeCW     Mode = 4
	ModeCWR    Mode = 5
	ModeAM     Mode = 6
	ModeSAM    Mode = 7
	ModeNFM    Mode = 8
	ModeWFM    Mode = 9
)

var modeNames = []string{"LSB", "LSB-D", "USB", "USB-D", "CW", "CWR", "AM", "SAM", "NFM", "WFM"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("MODE(%d)", uint32(m))
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

// AGC is the per-VFO AGC setting.
type AGC uint32

const (
	AGCOff  AGC = 0
	AGCSlow AGC = 1
	AGCFast AGC = 2
	AGCAuto AGC = 3
)

// Keyer and microphone selections.
const (
	KeyManual    = 0
	KeyAutoLeft  = 1
	KeyAutoRight = 2

	IambicA = 0
	IambicB = 1

	MicBuiltin = 0
	MicHandle  = 1
	MicAuto    = 2

	CompOff = 0
	Comp1_2 = 1
	Comp1_4 = 2
	Comp1_8 = 3

	NotchOff    = 0
	NotchManual = 1
	NotchAuto   = 2
)

// Flag bits of the SpleAtueTrx register.
const (
	FlagSplit          uint32 = 0x00002
	FlagVoiceRec       uint32 = 0x00008
	FlagSWRScan        uint32 = 0x00010
	FlagTune           uint32 = 0x00020
	FlagATUEnable      uint32 = 0x01000
	FlagATUTune        uint32 = 0x02000
	FlagModem          uint32 = 0x04000
	FlagCalibration    uint32 = 0x08000
	FlagPowerOff       uint32 = 0x10000
	FlagPTT            uint32 = 0x40000
	FlagCalibrationTRX uint32 = 0x100000
	FlagBiasDriveOff   uint32 = 0x200000
	FlagBiasFinalOff   uint32 = 0x400000
)
