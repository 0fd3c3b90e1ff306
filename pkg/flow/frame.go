package flow

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame layout constants
const (
	Magic       uint32 = 0xAA5555AA
	SampleCount        = 512
	FrameSize          = 2088
)

// crcOffset is where the checksum sits; it covers every byte before it
const crcOffset = FrameSize - 4

// Flag bits of Frame.Flags
const (
	FlagResync          uint32 = 1 << 0
	FlagTX              uint32 = 1 << 1
	FlagATUStatus       uint32 = 1 << 2
	FlagVExt            uint32 = 1 << 3
	FlagCharging        uint32 = 1 << 4
	FlagBatteryNotFound uint32 = 1 << 5
	FlagBatteryHighTemp uint32 = 1 << 6
	FlagPAHighTemp      uint32 = 1 << 7
	FlagPowerKey        uint32 = 1 << 11
	FlagSquelchMute     uint32 = 1 << 12
	FlagSquelchFMMute   uint32 = 1 << 13
	FlagDCInTooLow      uint32 = 1 << 14
	FlagBatteryLowTemp  uint32 = 1 << 16
)

// HKey is a front panel key code
type HKey uint32

var hkeyNames = map[HKey]string{
	0xC1: "SPCH",
	0xC2: "TUNER",
	0xC4: "XFC",
	0x84: "UP",
	0x04: "DOWN",
	0x81: "VM",
	0x82: "NW",
	0x48: "F1",
	0x44: "F2",
	0xE1: "1",
	0xE2: "2",
	0xE4: "3",
	0x61: "4",
	0x62: "5",
	0x64: "6",
	0xA1: "7",
	0xA2: "8",
	0xA4: "9",
	0x21: "DOT",
	0x22: "0",
	0x24: "CE",
	0xE8: "MODE",
	0x68: "FIL",
	0xA8: "GENE",
	0x28: "FINP",
}

// String returns the key label, "" for no key and hex for unknown codes
func (k HKey) String() string {
	if k == 0 {
		return ""
	}
	if name, ok := hkeyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint32(k))
}

// Frame is one telemetry packet from the baseband
type Frame struct {
	Magic     uint32
	Samples   [SampleCount]float32
	Flags     uint32
	DBm       uint8
	TxPower   uint8
	VSWR      uint8
	ALCLevel  uint8
	VExt      uint8
	VBat      uint8
	BatCap    uint8
	ATUParams uint32
	HKey      HKey
	CRC       uint32
}

// Decode parses a full frame and validates its magic and checksum
func Decode(buf []byte) (*Frame, error) {
	if len(buf) < FrameSize {
		return nil, fmt.Errorf("short frame: %d bytes", len(buf))
	}
	le := binary.LittleEndian

	f := &Frame{Magic: le.Uint32(buf[0:])}
	if f.Magic != Magic {
		return nil, fmt.Errorf("%w: magic 0x%08X", ErrNoSync, f.Magic)
	}

	off := 4
	for i := range f.Samples {
		f.Samples[i] = math.Float32frombits(le.Uint32(buf[off:]))
		off += 4
	}
	f.Flags = le.Uint32(buf[off:])
	off += 4
	f.DBm = buf[off]
	f.TxPower = buf[off+1]
	f.VSWR = buf[off+2]
	f.ALCLevel = buf[off+3]
	f.VExt = buf[off+4]
	f.VBat = buf[off+5]
	f.BatCap = buf[off+6]
	off += 8
	f.ATUParams = le.Uint32(buf[off:])
	off += 4 + 12
	f.HKey = HKey(le.Uint32(buf[off:]))
	f.CRC = le.Uint32(buf[crcOffset:])

	if sum := Checksum(buf[:crcOffset]); sum != f.CRC {
		return nil, fmt.Errorf("%w: got 0x%08X, want 0x%08X", ErrChecksum, f.CRC, sum)
	}
	return f, nil
}

// Encode serializes the frame and fills in the checksum
func (f *Frame) Encode() []byte {
	buf := make([]byte, FrameSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:], Magic)
	off := 4
	for _, s := range f.Samples {
		le.PutUint32(buf[off:], math.Float32bits(s))
		off += 4
	}
	le.PutUint32(buf[off:], f.Flags)
	off += 4
	buf[off] = f.DBm
	buf[off+1] = f.TxPower
	buf[off+2] = f.VSWR
	buf[off+3] = f.ALCLevel
	buf[off+4] = f.VExt
	buf[off+5] = f.VBat
	buf[off+6] = f.BatCap
	off += 8
	le.PutUint32(buf[off:], f.ATUParams)
	off += 4 + 12
	le.PutUint32(buf[off:], uint32(f.HKey))

	sum := Checksum(buf[:crcOffset])
	le.PutUint32(buf[crcOffset:], sum)
	return buf
}

func (f *Frame) has(flag uint32) bool { return f.Flags&flag != 0 }

// TX reports the transmitter keyed
func (f *Frame) TX() bool { return f.has(FlagTX) }

// Resync reports the baseband resynchronized its stream before this frame
func (f *Frame) Resync() bool { return f.has(FlagResync) }

// ATUStatus reports the tuner engaged
func (f *Frame) ATUStatus() bool { return f.has(FlagATUStatus) }

// ExternalPower reports a live external supply
func (f *Frame) ExternalPower() bool { return f.has(FlagVExt) }

// Charging reports the battery charging
func (f *Frame) Charging() bool { return f.has(FlagCharging) }

// BatteryMissing reports no battery detected
func (f *Frame) BatteryMissing() bool { return f.has(FlagBatteryNotFound) }

// BatteryHighTemp reports the battery over temperature
func (f *Frame) BatteryHighTemp() bool { return f.has(FlagBatteryHighTemp) }

// BatteryLowTemp reports the battery under temperature
func (f *Frame) BatteryLowTemp() bool { return f.has(FlagBatteryLowTemp) }

// PAHighTemp reports the power amplifier over temperature
func (f *Frame) PAHighTemp() bool { return f.has(FlagPAHighTemp) }

// PowerKey reports the power key held
func (f *Frame) PowerKey() bool { return f.has(FlagPowerKey) }

// SquelchMuted reports the squelch closed
func (f *Frame) SquelchMuted() bool { return f.has(FlagSquelchMute) }

// SquelchFMMuted reports the FM squelch closed
func (f *Frame) SquelchFMMuted() bool { return f.has(FlagSquelchFMMute) }

// DCInTooLow reports the external supply below its threshold
func (f *Frame) DCInTooLow() bool { return f.has(FlagDCInTooLow) }

// TxPowerW is the forward power in watts
func (f *Frame) TxPowerW() float64 { return float64(f.TxPower) * 0.1 }

// SWR is the standing wave ratio
func (f *Frame) SWR() float64 { return float64(f.VSWR) * 0.1 }

// ALC is the ALC level
func (f *Frame) ALC() float64 { return float64(f.ALCLevel) * 0.1 }

// VExtV is the external supply voltage
func (f *Frame) VExtV() float64 { return float64(f.VExt) * 0.1 }

// VBatV is the battery voltage
func (f *Frame) VBatV() float64 { return float64(f.VBat) * 0.1 }

// Summary is the scalar part of a frame, as served by the APIs
type Summary struct {
	TX            bool    `json:"tx"`
	ATU           bool    `json:"atu"`
	Charging      bool    `json:"charging"`
	ExternalPower bool    `json:"external_power"`
	DBm           uint8   `json:"dbm"`
	TxPower       float64 `json:"tx_power"`
	SWR           float64 `json:"swr"`
	ALC           float64 `json:"alc"`
	VExt          float64 `json:"vext"`
	VBat          float64 `json:"vbat"`
	BatCap        uint8   `json:"batcap"`
	ATUParams     uint32  `json:"atu_params"`
	Key           string  `json:"key,omitempty"`
	Flags         uint32  `json:"flags"`
}

// Summary extracts the scalar readings
func (f *Frame) Summary() Summary {
	return Summary{
		TX:            f.TX(),
		ATU:           f.ATUStatus(),
		Charging:      f.Charging(),
		ExternalPower: f.ExternalPower(),
		DBm:           f.DBm,
		TxPower:       f.TxPowerW(),
		SWR:           f.SWR(),
		ALC:           f.ALC(),
		VExt:          f.VExtV(),
		VBat:          f.VBatV(),
		BatCap:        f.BatCap,
		ATUParams:     f.ATUParams,
		Key:           f.HKey.String(),
		Flags:         f.Flags,
	}
}
