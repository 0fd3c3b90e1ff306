package regs

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
)

// Field is a packed sub-field of one register.
type Field struct {
	Reg   Index
	Shift uint8
	Width uint8
}

// ErrUnknownField is returned by Lookup for names not in Fields.
var ErrUnknownField = errors.New("unknown register field")

// Max returns the largest value the field can hold.
func (f Field) Max() uint32 {
	if f.Width >= 32 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << f.Width) - 1
}

// Mask returns the field bits in register position.
func (f Field) Mask() uint32 {
	return f.Max() << f.Shift
}

// Compose replaces the field inside prev with v. Bits of v above the field
// width are dropped.
func (f Field) Compose(prev, v uint32) uint32 {
	return (prev &^ f.Mask()) | ((v & f.Max()) << f.Shift)
}

// Extract returns the field value held in word.
func (f Field) Extract(word uint32) uint32 {
	return (word >> f.Shift) & f.Max()
}

// Fits reports whether v is representable without truncation.
func (f Field) Fits(v uint32) bool {
	return v&^f.Max() == 0
}

// Flag builds a one-bit field from a single-bit mask of reg.
func Flag(reg Index, mask uint32) Field {
	return Field{Reg: reg, Shift: uint8(bits.TrailingZeros32(mask)), Width: 1}
}

// Fields used directly by the control layer.
var (
	FieldVFO  = Field{Reg: VfoVm, Shift: 0, Width: 8}
	FieldBand = Field{Reg: VfoVm, Shift: 8, Width: 8}
	FieldVM   = Field{Reg: VfoVm, Shift: 16, Width: 1}

	FieldRFGain  = Field{Reg: RfgTxPwr, Shift: 0, Width: 8}
	FieldTxPower = Field{Reg: RfgTxPwr, Shift: 8, Width: 8}

	FieldSquelch       = Field{Reg: MicSquelch, Shift: 8, Width: 8}
	FieldSquelchFM     = Field{Reg: MicSquelch, Shift: 16, Width: 8}
	FieldSquelchEnable = Field{Reg: MicSquelch, Shift: 24, Width: 1}

	FieldKeyRatio = Field{Reg: QskRatio, Shift: 16, Width: 16}

	FieldRxFilterHigh = Field{Reg: RxFilter, Shift: 0, Width: 16}
	FieldRxFilterLow  = Field{Reg: RxFilter, Shift: 16, Width: 16}
)

// Fields maps API names to the sub-fields they control.
var Fields = map[string]Field{
	// VFO selection
	"vfo":         FieldVFO,
	"band":        FieldBand,
	"memory_mode": FieldVM,

	// radio
	"rf_gain":  FieldRFGain,
	"tx_power": FieldTxPower,
	"rx_vol":   {Reg: RxVol, Shift: 0, Width: 8},

	// operation flags
	"split":          Flag(SpleAtueTrx, FlagSplit),
	"voice_rec":      Flag(SpleAtueTrx, FlagVoiceRec),
	"swr_scan":       Flag(SpleAtueTrx, FlagSWRScan),
	"atu":            Flag(SpleAtueTrx, FlagATUEnable),
	"atu_tune":       Flag(SpleAtueTrx, FlagATUTune),
	"modem":          Flag(SpleAtueTrx, FlagModem),
	"power_off":      Flag(SpleAtueTrx, FlagPowerOff),
	"ptt":            Flag(SpleAtueTrx, FlagPTT),
	"calibration":    Flag(SpleAtueTrx, FlagCalibrationTRX),
	"bias_drive_off": Flag(SpleAtueTrx, FlagBiasDriveOff),
	"bias_final_off": Flag(SpleAtueTrx, FlagBiasFinalOff),

	// line and microphone gains
	"line_in":  {Reg: LineMicGain, Shift: 0, Width: 8},
	"line_out": {Reg: LineMicGain, Shift: 8, Width: 8},
	"imic":     {Reg: LineMicGain, Shift: 16, Width: 8},
	"hmic":     {Reg: LineMicGain, Shift: 24, Width: 8},

	"mic":            {Reg: MicSquelch, Shift: 0, Width: 2},
	"charger":        {Reg: MicSquelch, Shift: 4, Width: 1},
	"sp_mode":        {Reg: MicSquelch, Shift: 5, Width: 1},
	"iq_out":         {Reg: MicSquelch, Shift: 6, Width: 1},
	"squelch":        FieldSquelch,
	"squelch_fm":     FieldSquelchFM,
	"squelch_enable": FieldSquelchEnable,

	// VOX
	"vox_gain":  {Reg: Vox, Shift: 0, Width: 7},
	"vox_ag":    {Reg: Vox, Shift: 7, Width: 7},
	"vox_delay": {Reg: Vox, Shift: 14, Width: 12},
	"vox":       {Reg: Vox, Shift: 26, Width: 1},

	// DSP
	"nr_level": {Reg: NoiseReduction, Shift: 0, Width: 8},
	"nb_width": {Reg: NoiseReduction, Shift: 8, Width: 8},
	"nb_level": {Reg: NoiseReduction, Shift: 16, Width: 8},
	"nr":       {Reg: NoiseReduction, Shift: 24, Width: 1},
	"nb":       {Reg: NoiseReduction, Shift: 25, Width: 1},

	"dnf_center": {Reg: Notch, Shift: 0, Width: 12},
	"dnf_width":  {Reg: Notch, Shift: 12, Width: 12},
	"dnf":        {Reg: Notch, Shift: 24, Width: 2},

	"comp_level": {Reg: Compressor, Shift: 0, Width: 4},
	"comp":       {Reg: Compressor, Shift: 4, Width: 1},

	// AGC
	"agc_knee":  {Reg: AgcKneeSlopeHang, Shift: 0, Width: 8},
	"agc_slope": {Reg: AgcKneeSlopeHang, Shift: 8, Width: 4},
	"agc_hang":  {Reg: AgcKneeSlopeHang, Shift: 12, Width: 1},
	"agc_time":  {Reg: AgcTime, Shift: 0, Width: 16},

	// monitor and spectrum
	"monitor_level": {Reg: MonitorFFT, Shift: 0, Width: 8},
	"fft_dec":       {Reg: MonitorFFT, Shift: 8, Width: 4},
	"fft_zoom_cw":   {Reg: MonitorFFT, Shift: 12, Width: 4},

	"rx_filter_high": FieldRxFilterHigh,
	"rx_filter_low":  FieldRxFilterLow,

	// keyer
	"key_speed":  {Reg: Keyer, Shift: 0, Width: 8},
	"key_mode":   {Reg: Keyer, Shift: 8, Width: 2},
	"iambic":     {Reg: Keyer, Shift: 10, Width: 2},
	"key_tone":   {Reg: Keyer, Shift: 12, Width: 11},
	"key_vol":    {Reg: Keyer, Shift: 23, Width: 6},
	"key_train":  {Reg: Keyer, Shift: 29, Width: 1},
	"qsk_time":   {Reg: QskRatio, Shift: 0, Width: 16},
	"key_ratio":  FieldKeyRatio,
	"bias_drive": {Reg: BiasDrive, Shift: 0, Width: 16},
	"bias_final": {Reg: BiasDrive, Shift: 16, Width: 16},
}

func init() {
	for _, eq := range []struct {
		prefix string
		reg    Index
	}{
		{"rx_eq", RxEQ},
		{"rx_eq_wfm", RxEQWFM},
		{"mic_eq", MicEQ},
	} {
		for band := 0; band < 5; band++ {
			Fields[fmt.Sprintf("%s_p%d", eq.prefix, band+1)] = Field{Reg: eq.reg, Shift: uint8(band * 5), Width: 5}
		}
		Fields[eq.prefix] = Field{Reg: eq.reg, Shift: 25, Width: 1}
	}
}

// Lookup returns the named field.
func Lookup(name string) (Field, error) {
	f, ok := Fields[name]
	if !ok {
		return Field{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return f, nil
}

// FieldNames returns the names in Fields sorted by register then shift.
func FieldNames() []string {
	names := make([]string, 0, len(Fields))
	for name := range Fields {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := Fields[names[i]], Fields[names[j]]
		if a.Reg != b.Reg {
			return a.Reg < b.Reg
		}
		if a.Shift != b.Shift {
			return a.Shift < b.Shift
		}
		return names[i] < names[j]
	})
	return names
}
