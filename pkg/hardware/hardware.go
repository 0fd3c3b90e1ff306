package hardware

import (
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/x6d/pkg/logging"
)

// HardwareConfig represents hardware configuration
type HardwareConfig struct {
	Backend   string // line, sysfs or mock
	SysfsRoot string
	Consumer  string
	Pins      []PinSpec
}

// HardwareManager owns the GPIO backend and the named pins around the
// baseband
type HardwareManager struct {
	config HardwareConfig
	mutex  sync.RWMutex

	gpio  GPIOInterface
	light bool

	// State
	initialized bool
}

// GPIOInterface defines GPIO operations
type GPIOInterface interface {
	Initialize() error
	Close() error
	SetPin(pin Pin, value bool) error
	GetPin(pin Pin) (bool, error)
}

// NewHardwareManager creates a new hardware manager
func NewHardwareManager(config HardwareConfig) *HardwareManager {
	if len(config.Pins) == 0 {
		config.Pins = DefaultPins
	}
	if config.Consumer == "" {
		config.Consumer = "x6d"
	}
	return &HardwareManager{
		config: config,
	}
}

// NewHardwareManagerWithGPIO creates a manager around an existing backend
func NewHardwareManagerWithGPIO(gpio GPIOInterface) *HardwareManager {
	return &HardwareManager{
		config: HardwareConfig{Backend: "custom", Pins: DefaultPins},
		gpio:   gpio,
	}
}

// Initialize selects the GPIO backend once and requests every pin
func (h *HardwareManager) Initialize() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.initialized {
		return nil
	}

	if h.gpio == nil {
		gpio, err := NewGPIO(h.config)
		if err != nil {
			return err
		}
		h.gpio = gpio
	}

	if err := h.gpio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize GPIO: %w", err)
	}

	h.initialized = true
	logging.Infof("hardware", "GPIO initialized (%s backend, %d pins)", h.config.Backend, len(h.config.Pins))
	return nil
}

// Close turns the light off and releases the pins
func (h *HardwareManager) Close() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initialized {
		return nil
	}

	if h.light {
		if err := h.gpio.SetPin(PinLight, false); err != nil {
			logging.Warnf("hardware", "turning light off: %v", err)
		}
		h.light = false
	}

	if err := h.gpio.Close(); err != nil {
		logging.Warnf("hardware", "closing GPIO: %v", err)
	}

	h.initialized = false
	logging.Info("hardware", "GPIO closed")
	return nil
}

// SetPin drives a named pin
func (h *HardwareManager) SetPin(pin Pin, value bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if !h.initialized {
		return fmt.Errorf("hardware not initialized")
	}
	if err := h.gpio.SetPin(pin, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", pin, err)
	}
	if pin == PinLight {
		h.light = value
	}
	return nil
}

// SetLight controls the front panel indicator
func (h *HardwareManager) SetLight(on bool) error {
	return h.SetPin(PinLight, on)
}

// Light returns the last indicator state
func (h *HardwareManager) Light() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.light
}

// SetMorseKey drives the morse key line; the key is active low
func (h *HardwareManager) SetMorseKey(down bool) error {
	return h.SetPin(PinMorseKey, !down)
}

// ResetBaseband pulses the baseband reset line
func (h *HardwareManager) ResetBaseband(hold time.Duration) error {
	if err := h.SetPin(PinBasebandReset, true); err != nil {
		return err
	}
	time.Sleep(hold)
	if err := h.SetPin(PinBasebandReset, false); err != nil {
		return err
	}
	logging.Infof("hardware", "baseband reset pulsed for %v", hold)
	return nil
}

// IsInitialized returns whether the manager is initialized
func (h *HardwareManager) IsInitialized() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.initialized
}

// GetConfig returns the hardware configuration
func (h *HardwareManager) GetConfig() HardwareConfig {
	return h.config
}

// PinStates reads every configured pin
func (h *HardwareManager) PinStates() map[string]bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	states := make(map[string]bool, len(h.config.Pins))
	if !h.initialized {
		return states
	}
	for _, spec := range h.config.Pins {
		if v, err := h.gpio.GetPin(spec.Name); err == nil {
			states[string(spec.Name)] = v
		}
	}
	return states
}
