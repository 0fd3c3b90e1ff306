package control

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/dougsko/x6d/pkg/logging"
	"github.com/dougsko/x6d/pkg/regs"
	"github.com/hashicorp/go-version"
)

// ErrInitAborted matches every fatal initialization failure.
var ErrInitAborted = errors.New("initialization aborted")

// Initialization steps, in order.
const (
	StepOpen        = "open"
	StepReady       = "ready"
	StepIdentity    = "identity"
	StepCalibration = "calibration"
	StepHostCommand = "host_command"
	StepCommit      = "commit"
)

// Block sizes read during initialization.
const (
	IdentitySize    = 0x80
	CalibrationSize = 0x100
	readySize       = 4
)

// InitError reports which step of the handshake failed.
type InitError struct {
	Step string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialization failed at %s: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Is makes every InitError match ErrInitAborted.
func (e *InitError) Is(target error) bool {
	return target == ErrInitAborted
}

// SequencerConfig holds the device-specific handshake constants.
type SequencerConfig struct {
	ReadyAddr       uint16
	IdentityAddr    uint16
	CalibrationAddr uint16
	HostCommands    []uint16
	ReadyInterval   time.Duration
	MinFirmware     string
}

// InitResult is what the device reported during the handshake.
type InitResult struct {
	Firmware    string
	Version     *version.Version
	Calibration []byte
	ReadyPolls  int
}

// Sequencer brings the device from power-on to operational state.
type Sequencer struct {
	cache *Cache
	cfg   SequencerConfig
}

// NewSequencer creates a sequencer writing through cache.
func NewSequencer(cache *Cache, cfg SequencerConfig) *Sequencer {
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = time.Second
	}
	return &Sequencer{cache: cache, cfg: cfg}
}

// Run executes the handshake. Only the readiness poll retries, and it
// retries until ctx is cancelled; every later failure aborts.
func (s *Sequencer) Run(ctx context.Context) (*InitResult, error) {
	result := &InitResult{}

	if err := s.cache.Transport().Open(); err != nil {
		return nil, &InitError{Step: StepOpen, Err: err}
	}

	polls, err := s.awaitReady(ctx)
	result.ReadyPolls = polls
	if err != nil {
		return nil, &InitError{Step: StepReady, Err: err}
	}
	logging.Infof("init", "device ready after %d polls", polls)

	identity, err := s.cache.ReadDevice(s.cfg.IdentityAddr, IdentitySize)
	if err != nil {
		return nil, &InitError{Step: StepIdentity, Err: err}
	}
	result.Firmware = parseIdentity(identity)
	result.Version = s.checkFirmware(result.Firmware)

	calibration, err := s.cache.ReadDevice(s.cfg.CalibrationAddr, CalibrationSize)
	if err != nil {
		return nil, &InitError{Step: StepCalibration, Err: err}
	}
	result.Calibration = calibration

	for _, cmd := range s.cfg.HostCommands {
		if err := s.cache.HostCommand(cmd); err != nil {
			return nil, &InitError{Step: StepHostCommand, Err: err}
		}
	}

	s.cache.Seed(Baseline())

	if err := s.cache.PushAll(); err != nil {
		return nil, &InitError{Step: StepCommit, Err: err}
	}

	logging.Infof("init", "baseband initialized, firmware %q", result.Firmware)
	return result, nil
}

func (s *Sequencer) awaitReady(ctx context.Context) (int, error) {
	polls := 0
	for {
		polls++
		data, err := s.cache.ReadDevice(s.cfg.ReadyAddr, readySize)
		if err == nil && binary.LittleEndian.Uint32(data) != 0 {
			return polls, nil
		}
		if err != nil {
			logging.Debugf("init", "ready poll %d: %v", polls, err)
		}

		timer := time.NewTimer(s.cfg.ReadyInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return polls, ctx.Err()
		case <-timer.C:
		}
	}
}

var versionPattern = regexp.MustCompile(`\d+(\.\d+)+`)

func parseIdentity(block []byte) string {
	if i := bytes.IndexByte(block, 0); i >= 0 {
		block = block[:i]
	}
	return string(bytes.TrimSpace(block))
}

// checkFirmware only warns: an old or unreadable version still boots.
func (s *Sequencer) checkFirmware(firmware string) *version.Version {
	match := versionPattern.FindString(firmware)
	if match == "" {
		logging.Warnf("init", "no version in firmware identity %q", firmware)
		return nil
	}
	v, err := version.NewVersion(match)
	if err != nil {
		logging.Warnf("init", "unparseable firmware version %q: %v", match, err)
		return nil
	}
	if s.cfg.MinFirmware == "" {
		return v
	}
	minimum, err := version.NewVersion(s.cfg.MinFirmware)
	if err != nil {
		logging.Warnf("init", "invalid minimum firmware %q: %v", s.cfg.MinFirmware, err)
		return v
	}
	if v.LessThan(minimum) {
		logging.Warnf("init", "firmware %s is older than %s", v, minimum)
	}
	return v
}

// Baseline returns the register defaults loaded before the first push.
func Baseline() map[regs.Index]uint32 {
	return map[regs.Index]uint32{
		regs.VfoAHamBand: 1,
		regs.VfoAFreq:    14_074_000,
		regs.VfoAMode:    uint32(regs.ModeUSB),
		regs.VfoAAGC:     uint32(regs.AGCAuto),

		regs.VfoBHamBand: 1,
		regs.VfoBFreq:    14_074_000,
		regs.VfoBMode:    uint32(regs.ModeUSB),
		regs.VfoBAGC:     uint32(regs.AGCAuto),

		regs.VfoVm:    0x00000100,
		regs.RxVol:    0,
		regs.RfgTxPwr: (10 << 8) | 64,

		regs.AgcKneeSlopeHang: 0x000006C4,
		regs.AgcTime:          500,

		regs.Filter1Low:  50,
		regs.Filter1High: 2950,
		regs.Filter2Low:  50,
		regs.Filter2High: 2950,

		regs.PwrSync: 2_000_000,
		regs.Last:    0x00100001,
	}
}
