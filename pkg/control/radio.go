package control

import (
	"fmt"
	"sync"

	"github.com/dougsko/x6d/pkg/logging"
	"github.com/dougsko/x6d/pkg/regs"
)

// Radio is the setter surface over the cache. Every setter composes one
// sub-field into the cached word and writes the result.
type Radio struct {
	cache *Cache
	band  *BandTracker

	mutex    sync.Mutex
	powerOff func() error
}

// NewRadio creates the setter surface.
func NewRadio(cache *Cache, band *BandTracker) *Radio {
	return &Radio{cache: cache, band: band}
}

// Cache returns the backing cache.
func (r *Radio) Cache() *Cache {
	return r.cache
}

// Band returns the band tracker.
func (r *Radio) Band() *BandTracker {
	return r.band
}

// SetPowerOffHook sets what PowerOff runs after raising the power-off flag,
// typically a system halt.
func (r *Radio) SetPowerOffHook(fn func() error) {
	r.mutex.Lock()
	r.powerOff = fn
	r.mutex.Unlock()
}

// SetField composes v into f. Values wider than the field are truncated.
func (r *Radio) SetField(f regs.Field, v uint32) error {
	if !f.Fits(v) {
		logging.Debugf("control", "value %d truncated to %d bits for %s<<%d", v, f.Width, f.Reg, f.Shift)
	}
	return r.cache.Update(f.Reg, func(prev uint32) uint32 {
		return f.Compose(prev, v)
	})
}

// SetNamed sets a field from the regs.Fields table.
func (r *Radio) SetNamed(name string, v uint32) error {
	f, err := regs.Lookup(name)
	if err != nil {
		return err
	}
	return r.SetField(f, v)
}

// GetNamed extracts a field from the cache.
func (r *Radio) GetNamed(name string) (uint32, error) {
	f, err := regs.Lookup(name)
	if err != nil {
		return 0, err
	}
	return f.Extract(r.cache.Read(f.Reg)), nil
}

func (r *Radio) setFlag(mask uint32, on bool) error {
	return r.SetField(regs.Flag(regs.SpleAtueTrx, mask), boolWord(on))
}

// SetVFOFreq tracks the band, then writes the frequency register.
func (r *Radio) SetVFOFreq(vfo regs.VFO, freq uint32) error {
	if _, err := r.band.OnFrequencySet(vfo, freq); err != nil {
		logging.Warnf("control", "band update for %d Hz: %v", freq, err)
	}
	return r.cache.Write(vfo.FreqReg(), freq)
}

// SetVFOMode writes the demodulator mode.
func (r *Radio) SetVFOMode(vfo regs.VFO, mode regs.Mode) error {
	return r.cache.Write(vfo.ModeReg(), uint32(mode))
}

// SetVFOAGC writes the AGC mode.
func (r *Radio) SetVFOAGC(vfo regs.VFO, agc regs.AGC) error {
	return r.cache.Write(vfo.AGCReg(), uint32(agc))
}

// SetVFOAtt switches the attenuator.
func (r *Radio) SetVFOAtt(vfo regs.VFO, on bool) error {
	return r.cache.Write(vfo.AttReg(), boolWord(on))
}

// SetVFOPre switches the preamplifier.
func (r *Radio) SetVFOPre(vfo regs.VFO, on bool) error {
	return r.cache.Write(vfo.PreReg(), boolWord(on))
}

// SelectVFO makes vfo the foreground VFO.
func (r *Radio) SelectVFO(vfo regs.VFO) error {
	return r.band.Select(vfo)
}

// SetMemoryMode switches between VFO and memory operation.
func (r *Radio) SetMemoryMode(on bool) error {
	return r.SetField(regs.FieldVM, boolWord(on))
}

// SetRxVolume writes the receive audio volume.
func (r *Radio) SetRxVolume(v uint8) error {
	return r.cache.Write(regs.RxVol, uint32(v))
}

// SetRFGain writes the RF gain, sharing its register with TX power.
func (r *Radio) SetRFGain(v uint8) error {
	return r.SetField(regs.FieldRFGain, uint32(v))
}

// SetTxPower takes watts; the register holds tenths.
func (r *Radio) SetTxPower(watts float64) error {
	return r.SetField(regs.FieldTxPower, regs.EncodeTenths(watts))
}

// SetPTT keys or unkeys the transmitter.
func (r *Radio) SetPTT(on bool) error {
	return r.setFlag(regs.FlagPTT, on)
}

// SetSplit enables split operation.
func (r *Radio) SetSplit(on bool) error {
	return r.setFlag(regs.FlagSplit, on)
}

// SetATU enables the antenna tuner.
func (r *Radio) SetATU(on bool) error {
	return r.setFlag(regs.FlagATUEnable, on)
}

// SetATUTune raises or clears the tune flag. Starting a tune also sends
// the tune-start host command.
func (r *Radio) SetATUTune(start bool) error {
	if err := r.setFlag(regs.FlagATUTune, start); err != nil {
		return err
	}
	if start {
		return r.cache.HostCommand(regs.HostCmdATUTune)
	}
	return nil
}

// SetSquelch writes the level, then the enable bit, as two writes.
func (r *Radio) SetSquelch(level uint8, enable bool) error {
	if err := r.SetField(regs.FieldSquelch, uint32(level)); err != nil {
		return err
	}
	return r.SetField(regs.FieldSquelchEnable, boolWord(enable))
}

// SetKeyRatio takes the dash/dot ratio; the register holds tenths.
func (r *Radio) SetKeyRatio(ratio float64) error {
	return r.SetField(regs.FieldKeyRatio, regs.EncodeTenths(ratio))
}

// SetRxFilter writes both passband edges at once.
func (r *Radio) SetRxFilter(low, high int16) error {
	return r.cache.Update(regs.RxFilter, func(uint32) uint32 {
		return regs.FieldRxFilterHigh.Compose(regs.FieldRxFilterLow.Compose(0, uint32(uint16(low))), uint32(uint16(high)))
	})
}

// SetSSBFilter writes the SSB transmit passband.
func (r *Radio) SetSSBFilter(low, high int16) error {
	return r.cache.Write(regs.FilterSSB, regs.EncodeFilter(low, high))
}

// SetRIT writes the receive offset in Hz.
func (r *Radio) SetRIT(offset int16) error {
	return r.cache.Write(regs.RIT, regs.EncodeSigned16(offset))
}

// SetXIT writes the transmit offset in Hz.
func (r *Radio) SetXIT(offset int16) error {
	return r.cache.Write(regs.XIT, regs.EncodeSigned16(offset))
}

// PowerOff raises the power-off flag and then runs the hook.
func (r *Radio) PowerOff() error {
	if err := r.setFlag(regs.FlagPowerOff, true); err != nil {
		return fmt.Errorf("failed to raise power-off flag: %w", err)
	}

	r.mutex.Lock()
	hook := r.powerOff
	r.mutex.Unlock()

	if hook == nil {
		return nil
	}
	return hook()
}

// State is a decoded view of the registers most clients care about.
type State struct {
	Foreground string  `json:"foreground"`
	Band       string  `json:"band"`
	FreqA      uint32  `json:"freq_a"`
	FreqB      uint32  `json:"freq_b"`
	ModeA      string  `json:"mode_a"`
	ModeB      string  `json:"mode_b"`
	TxPower    float64 `json:"tx_power"`
	RFGain     uint32  `json:"rf_gain"`
	PTT        bool    `json:"ptt"`
	Split      bool    `json:"split"`
	ATU        bool    `json:"atu"`
}

// State decodes the cached registers.
func (r *Radio) State() State {
	table := r.cache.Snapshot()
	flags := table[regs.SpleAtueTrx]
	return State{
		Foreground: r.band.Foreground().String(),
		Band:       regs.Band(regs.FieldBand.Extract(table[regs.VfoVm])).String(),
		FreqA:      table[regs.VfoAFreq],
		FreqB:      table[regs.VfoBFreq],
		ModeA:      regs.Mode(table[regs.VfoAMode]).String(),
		ModeB:      regs.Mode(table[regs.VfoBMode]).String(),
		TxPower:    float64(regs.FieldTxPower.Extract(table[regs.RfgTxPwr])) / 10,
		RFGain:     regs.FieldRFGain.Extract(table[regs.RfgTxPwr]),
		PTT:        flags&regs.FlagPTT != 0,
		Split:      flags&regs.FlagSplit != 0,
		ATU:        flags&regs.FlagATUEnable != 0,
	}
}

func boolWord(on bool) uint32 {
	if on {
		return 1
	}
	return 0
}
