package hardware

import (
	"fmt"
	"sync"

	"github.com/dougsko/x6d/pkg/logging"
	"github.com/warthog618/go-gpiocdev"
)

// LineGPIO implements GPIOInterface on the GPIO character devices
type LineGPIO struct {
	pins     []PinSpec
	consumer string
	lines    map[Pin]*gpiocdev.Line
	mutex    sync.RWMutex
}

// NewLineGPIO creates a character device GPIO interface
func NewLineGPIO(pins []PinSpec, consumer string) *LineGPIO {
	if consumer == "" {
		consumer = "x6d"
	}
	return &LineGPIO{
		pins:     pins,
		consumer: consumer,
		lines:    make(map[Pin]*gpiocdev.Line),
	}
}

// Initialize requests every pin as an output at its initial level
func (g *LineGPIO) Initialize() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, spec := range g.pins {
		initial := 0
		if spec.Initial {
			initial = 1
		}
		line, err := gpiocdev.RequestLine(spec.Chip, spec.Offset,
			gpiocdev.AsOutput(initial),
			gpiocdev.WithConsumer(fmt.Sprintf("%s_%s", g.consumer, spec.Name)))
		if err != nil {
			g.closeLocked()
			return fmt.Errorf("failed to request %s (%s:%d): %w", spec.Name, spec.Chip, spec.Offset, err)
		}
		g.lines[spec.Name] = line
	}

	logging.Infof("gpio", "line backend initialized, %d lines", len(g.lines))
	return nil
}

// Close releases every requested line
func (g *LineGPIO) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.closeLocked()
	return nil
}

func (g *LineGPIO) closeLocked() {
	for name, line := range g.lines {
		if err := line.Close(); err != nil {
			logging.Debugf("gpio", "closing %s: %v", name, err)
		}
		delete(g.lines, name)
	}
}

// SetPin sets a GPIO pin value
func (g *LineGPIO) SetPin(pin Pin, value bool) error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	line, ok := g.lines[pin]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPin, pin)
	}
	v := 0
	if value {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("failed to set pin %s value: %w", pin, err)
	}
	return nil
}

// GetPin gets a GPIO pin value
func (g *LineGPIO) GetPin(pin Pin) (bool, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	line, ok := g.lines[pin]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPin, pin)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read pin %s value: %w", pin, err)
	}
	return v == 1, nil
}
