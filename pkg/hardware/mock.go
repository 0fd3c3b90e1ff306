package hardware

import (
	"sync"

	"github.com/dougsko/x6d/pkg/logging"
)

// MockGPIO implements GPIOInterface for testing and for hosts without GPIO
type MockGPIO struct {
	pins    map[Pin]bool
	history []PinChange
	mu      sync.RWMutex
}

// PinChange records one SetPin call
type PinChange struct {
	Pin   Pin
	Value bool
}

// NewMockGPIO creates a new mock GPIO interface
func NewMockGPIO() *MockGPIO {
	return &MockGPIO{
		pins: make(map[Pin]bool),
	}
}

// Initialize initializes the mock GPIO
func (g *MockGPIO) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, spec := range DefaultPins {
		g.pins[spec.Name] = spec.Initial
	}
	logging.Debug("gpio", "mock backend initialized")
	return nil
}

// Close closes the mock GPIO
func (g *MockGPIO) Close() error {
	logging.Debug("gpio", "mock backend closed")
	return nil
}

// SetPin sets a GPIO pin value
func (g *MockGPIO) SetPin(pin Pin, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pins[pin] = value
	g.history = append(g.history, PinChange{Pin: pin, Value: value})
	logging.Debugf("gpio", "mock pin %s set to %t", pin, value)
	return nil
}

// GetPin gets a GPIO pin value
func (g *MockGPIO) GetPin(pin Pin) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.pins[pin], nil
}

// History returns every SetPin call in order
func (g *MockGPIO) History() []PinChange {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]PinChange(nil), g.history...)
}
