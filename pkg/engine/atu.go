package engine

import (
	"errors"
	"sync"

	"github.com/dougsko/x6d/pkg/flow"
	"github.com/dougsko/x6d/pkg/logging"
)

// ATUState is the phase of an antenna tuner cycle
type ATUState int

const (
	ATUIdle ATUState = iota
	ATUStart
	ATURun
	ATUDone
)

func (s ATUState) String() string {
	switch s {
	case ATUStart:
		return "start"
	case ATURun:
		return "run"
	case ATUDone:
		return "done"
	}
	return "idle"
}

// ErrATUBusy is returned when a tune is requested while one is running
var ErrATUBusy = errors.New("tune already in progress")

// tuneControl starts and stops a tuner cycle on the baseband
type tuneControl interface {
	SetATUTune(start bool) error
}

// lightControl drives the front panel light
type lightControl interface {
	SetLight(on bool) error
}

// ATUTuner runs tune cycles off the telemetry stream: arm the tuner and
// light the panel, wait for the baseband to key up, then disarm once it
// unkeys.
type ATUTuner struct {
	mutex   sync.Mutex
	radio   tuneControl
	light   lightControl
	state   ATUState
	pending bool
	cycles  int
}

// NewATUTuner creates an idle tuner
func NewATUTuner(radio tuneControl, light lightControl) *ATUTuner {
	return &ATUTuner{radio: radio, light: light}
}

// Request arms a tune cycle to start on the next frame
func (a *ATUTuner) Request() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.pending || a.state == ATUStart || a.state == ATURun {
		return ErrATUBusy
	}
	a.pending = true
	return nil
}

// State returns the current phase
func (a *ATUTuner) State() ATUState {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.state
}

// Cycles returns how many tune cycles completed
func (a *ATUTuner) Cycles() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.cycles
}

// OnFrame advances the state machine by one telemetry frame
func (a *ATUTuner) OnFrame(f *flow.Frame) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	switch a.state {
	case ATUIdle, ATUDone:
		if !a.pending {
			return
		}
		a.pending = false
		if err := a.radio.SetATUTune(true); err != nil {
			logging.Errorf("atu", "failed to start tune: %v", err)
			return
		}
		a.setLight(true)
		a.state = ATUStart
		logging.Info("atu", "tune started")

	case ATUStart:
		if f.TX() {
			a.state = ATURun
			logging.Debug("atu", "transmitter keyed")
		}

	case ATURun:
		if !f.TX() {
			if err := a.radio.SetATUTune(false); err != nil {
				logging.Errorf("atu", "failed to stop tune: %v", err)
			}
			a.setLight(false)
			a.state = ATUDone
			a.cycles++
			logging.Info("atu", "tune done", logging.Fields{
				"atu":        f.ATUStatus(),
				"swr":        f.SWR(),
				"atu_params": f.ATUParams,
			})
		}
	}
}

// Cancel stops a running cycle and drops a pending request
func (a *ATUTuner) Cancel() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.pending = false
	if a.state != ATUStart && a.state != ATURun {
		return nil
	}
	a.state = ATUIdle
	a.setLight(false)
	return a.radio.SetATUTune(false)
}

func (a *ATUTuner) setLight(on bool) {
	if a.light == nil {
		return
	}
	if err := a.light.SetLight(on); err != nil {
		logging.Warnf("atu", "failed to set light: %v", err)
	}
}
