package engine

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dougsko/x6d/pkg/bus"
	"github.com/dougsko/x6d/pkg/config"
	"github.com/dougsko/x6d/pkg/control"
	"github.com/dougsko/x6d/pkg/flow"
	"github.com/dougsko/x6d/pkg/hardware"
	"github.com/dougsko/x6d/pkg/logging"
	"github.com/dougsko/x6d/pkg/protocol"
	"github.com/dougsko/x6d/pkg/regs"
	"github.com/dougsko/x6d/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// Version is reported in status responses
const Version = "0.3.0"

// Options replaces hardware backed components, mainly for tests and
// bench setups. Nil fields are built from the configuration.
type Options struct {
	Transport bus.Transport
	GPIO      hardware.GPIOInterface
	Telemetry flow.Opener
	Store     *storage.TelemetryStore
}

// CoreEngine owns the baseband link and every loop that runs against it
type CoreEngine struct {
	config     *config.Config
	socketPath string
	listener   net.Listener
	running    bool
	mutex      sync.RWMutex
	startTime  time.Time

	cache      *control.Cache
	radio      *control.Radio
	supervisor *control.Supervisor
	sequencer  *control.Sequencer
	hardware   *hardware.HardwareManager
	reader     *flow.Reader
	telemetry  *TelemetryHub
	atu        *ATUTuner
	store      *storage.TelemetryStore
	ownStore   bool

	initResult *control.InitResult
}

// NewCoreEngine wires the components described by cfg
func NewCoreEngine(cfg *config.Config, opts Options) (*CoreEngine, error) {
	policy, err := control.ParseBandPolicy(cfg.Device.BandPolicy)
	if err != nil {
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport = bus.NewSysfsTransport(cfg.Bus.Number, cfg.Bus.Address)
	}

	hw := hardware.NewHardwareManager(hardware.HardwareConfig{
		Backend:   cfg.GPIO.Backend,
		SysfsRoot: cfg.GPIO.SysfsRoot,
	})
	if opts.GPIO != nil {
		hw = hardware.NewHardwareManagerWithGPIO(opts.GPIO)
	}

	cache := control.NewCache(transport)
	band := control.NewBandTracker(cache, policy)
	radio := control.NewRadio(cache, band)
	sequencer := control.NewSequencer(cache, control.SequencerConfig{
		ReadyAddr:       cfg.Bus.ReadyAddr,
		IdentityAddr:    cfg.Bus.IdentityAddr,
		CalibrationAddr: cfg.Bus.CalibrationAddr,
		HostCommands:    cfg.Bus.HostCommands,
		ReadyInterval:   cfg.ReadyInterval(),
		MinFirmware:     cfg.Device.MinFirmware,
	})

	e := &CoreEngine{
		config:     cfg,
		socketPath: cfg.API.UnixSocket,
		startTime:  time.Now(),
		cache:      cache,
		radio:      radio,
		supervisor: control.NewSupervisor(cache, cfg.ReopenDelay(), cfg.Supervisor.EscalateAfter),
		sequencer:  sequencer,
		hardware:   hw,
		telemetry:  NewTelemetryHub(),
		atu:        NewATUTuner(radio, hw),
		store:      opts.Store,
	}

	if cfg.Telemetry.Enabled {
		open := opts.Telemetry
		if open == nil {
			open = flow.SerialOpener(cfg.Telemetry.Device, cfg.Telemetry.BaudRate, cfg.TelemetryReadTimeout())
		}
		e.reader = flow.NewReader(open)
	}

	radio.SetPowerOffHook(e.powerOff)
	cache.OnWrite(func(idx regs.Index, v uint32) {
		logging.Debugf("control", "%s <- 0x%08X", idx, v)
	})

	return e, nil
}

// Start brings up GPIO, runs the baseband handshake and opens the socket.
// A handshake failure is returned as a *control.InitError.
func (e *CoreEngine) Start(ctx context.Context) error {
	if err := e.hardware.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize hardware manager: %w", err)
	}

	result, err := e.sequencer.Run(ctx)
	if err != nil {
		return err
	}
	e.mutex.Lock()
	e.initResult = result
	e.mutex.Unlock()

	if e.store == nil && e.config.Telemetry.StoreInterval > 0 {
		store, err := storage.NewTelemetryStore(e.config.Storage.DatabasePath, e.config.Storage.MaxSamples)
		if err != nil {
			return err
		}
		e.store = store
		e.ownStore = true
	}
	if e.store != nil {
		if _, err := e.store.StoreSnapshot(time.Now(), "init", e.cache.Snapshot()); err != nil {
			logging.Warnf("storage", "failed to store init snapshot: %v", err)
		}
	}

	if e.reader != nil {
		if err := e.reader.Open(); err != nil {
			// the loop keeps restarting it
			logging.Warnf("flow", "telemetry source unavailable: %v", err)
		}
	}

	if e.socketPath != "" {
		os.Remove(e.socketPath)

		listener, err := net.Listen("unix", e.socketPath)
		if err != nil {
			return fmt.Errorf("failed to create Unix socket: %w", err)
		}
		e.listener = listener

		if err := os.Chmod(e.socketPath, 0660); err != nil {
			logging.Warnf("engine", "failed to set socket permissions: %v", err)
		}
		logging.Infof("engine", "listening on %s", e.socketPath)
	}

	e.mutex.Lock()
	e.running = true
	e.mutex.Unlock()

	// Serve the socket from here so callers can reach it before Run
	if e.listener != nil {
		go e.acceptConnections()
	}
	return nil
}

// Run drives the idle supervisor, telemetry and sampling loops until ctx
// ends, then closes the socket
func (e *CoreEngine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.supervisor.Run(ctx, e.config.SupervisorInterval())
	})

	if e.reader != nil {
		g.Go(func() error {
			return e.telemetryLoop(ctx)
		})
		if e.store != nil && e.config.Telemetry.StoreInterval > 0 {
			g.Go(func() error {
				return e.sampleLoop(ctx, e.config.StoreInterval())
			})
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		e.shutdownIO()
		return nil
	})

	return g.Wait()
}

// shutdownIO unblocks the socket and telemetry loops
func (e *CoreEngine) shutdownIO() {
	e.mutex.Lock()
	e.running = false
	e.mutex.Unlock()

	if e.listener != nil {
		e.listener.Close()
	}
	if e.reader != nil {
		e.reader.Close()
	}
}

// Stop releases the bus, GPIO, store and socket
func (e *CoreEngine) Stop() error {
	e.shutdownIO()

	if err := e.atu.Cancel(); err != nil {
		logging.Warnf("atu", "failed to cancel tune: %v", err)
	}
	if err := e.hardware.Close(); err != nil {
		logging.Warnf("engine", "failed to close hardware: %v", err)
	}
	if err := e.cache.Transport().Close(); err != nil {
		logging.Warnf("engine", "failed to close bus: %v", err)
	}
	if e.ownStore && e.store != nil {
		e.store.Close()
	}
	if e.socketPath != "" {
		os.Remove(e.socketPath)
	}
	return nil
}

func (e *CoreEngine) isRunning() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	return e.running
}

// powerOff is the radio's power-off hook
func (e *CoreEngine) powerOff() error {
	logging.Warn("engine", "power off requested")
	if err := e.hardware.SetLight(false); err != nil {
		logging.Debugf("engine", "light off: %v", err)
	}
	return nil
}

// Radio returns the register setters
func (e *CoreEngine) Radio() *control.Radio {
	return e.radio
}

// Cache returns the register shadow table
func (e *CoreEngine) Cache() *control.Cache {
	return e.cache
}

// Telemetry returns the telemetry hub
func (e *CoreEngine) Telemetry() *TelemetryHub {
	return e.telemetry
}

// ATU returns the tuner state machine
func (e *CoreEngine) ATU() *ATUTuner {
	return e.atu
}

// Store returns the telemetry store, nil when storage is disabled
func (e *CoreEngine) Store() *storage.TelemetryStore {
	return e.store
}

// Supervisor returns the idle supervisor
func (e *CoreEngine) Supervisor() *control.Supervisor {
	return e.supervisor
}

// TelemetryEnabled reports whether a telemetry source is configured
func (e *CoreEngine) TelemetryEnabled() bool {
	return e.reader != nil
}

// Status summarizes the daemon
func (e *CoreEngine) Status() protocol.Status {
	e.mutex.RLock()
	firmware := ""
	if e.initResult != nil {
		firmware = e.initResult.Firmware
	}
	e.mutex.RUnlock()

	band := e.radio.Band()
	return protocol.Status{
		Variant:    e.config.Device.Variant,
		Firmware:   firmware,
		Connected:  e.cache.Transport().IsOpen(),
		Foreground: band.Foreground().String(),
		Band:       band.Current().String(),
		BandPolicy: band.Policy().String(),
		Telemetry:  e.reader != nil,
		ATUState:   e.atu.State().String(),
		Uptime:     time.Since(e.startTime).Round(time.Second).String(),
		StartTime:  e.startTime,
		Version:    Version,
	}
}

// RequestTune arms a tuner cycle
func (e *CoreEngine) RequestTune() error {
	if e.reader == nil {
		return fmt.Errorf("tuning needs the telemetry stream, which is disabled")
	}
	return e.atu.Request()
}

// Snapshot stores the register table
func (e *CoreEngine) Snapshot(reason string) (int64, error) {
	if e.store == nil {
		return 0, fmt.Errorf("storage is disabled")
	}
	return e.store.StoreSnapshot(time.Now(), reason, e.cache.Snapshot())
}
