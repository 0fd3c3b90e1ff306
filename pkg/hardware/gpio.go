package hardware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dougsko/x6d/pkg/logging"
)

// Pin is a logical pin name
type Pin string

// Known pins
const (
	PinLight         Pin = "light"
	PinMorseKey      Pin = "morse_key"
	PinBasebandReset Pin = "bb_reset"
	PinUSB           Pin = "usb"
	PinWiFi          Pin = "wifi"
)

// ErrUnknownPin is returned for a pin missing from the pin table
var ErrUnknownPin = errors.New("unknown pin")

// PinSpec locates a pin for both backends
type PinSpec struct {
	Name    Pin
	Chip    string // character device chip for the line backend
	Offset  int    // line offset on Chip
	Number  int    // global number for the sysfs backend
	Initial bool
}

// DefaultPins is the pin table of the radio's main board
var DefaultPins = []PinSpec{
	{Name: PinMorseKey, Chip: "gpiochip1", Offset: 203, Number: 203, Initial: true},
	{Name: PinBasebandReset, Chip: "gpiochip1", Offset: 204, Number: 204},
	{Name: PinUSB, Chip: "gpiochip1", Offset: 138, Number: 138},
	{Name: PinLight, Chip: "gpiochip1", Offset: 143, Number: 143},
	{Name: PinWiFi, Chip: "gpiochip0", Offset: 5, Number: 357},
}

func findPin(pins []PinSpec, name Pin) (PinSpec, error) {
	for _, spec := range pins {
		if spec.Name == name {
			return spec, nil
		}
	}
	return PinSpec{}, fmt.Errorf("%w: %s", ErrUnknownPin, name)
}

// NewGPIO selects a backend by name
func NewGPIO(config HardwareConfig) (GPIOInterface, error) {
	pins := config.Pins
	if len(pins) == 0 {
		pins = DefaultPins
	}
	switch config.Backend {
	case "line", "":
		return NewLineGPIO(pins, config.Consumer), nil
	case "sysfs":
		return NewLinuxGPIO(config.SysfsRoot, pins), nil
	case "mock":
		return NewMockGPIO(), nil
	}
	return nil, fmt.Errorf("unknown GPIO backend %q", config.Backend)
}

// LinuxGPIO implements GPIOInterface using Linux sysfs GPIO
type LinuxGPIO struct {
	root         string
	pins         []PinSpec
	exportedPins map[int]bool
	mutex        sync.RWMutex
}

// NewLinuxGPIO creates a sysfs GPIO interface rooted at root, normally
// /sys/class/gpio
func NewLinuxGPIO(root string, pins []PinSpec) *LinuxGPIO {
	if root == "" {
		root = "/sys/class/gpio"
	}
	return &LinuxGPIO{
		root:         root,
		pins:         pins,
		exportedPins: make(map[int]bool),
	}
}

// Initialize exports every pin as an output at its initial level
func (g *LinuxGPIO) Initialize() error {
	if _, err := os.Stat(g.root); os.IsNotExist(err) {
		return fmt.Errorf("GPIO not available on this system")
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, spec := range g.pins {
		if err := g.exportPin(spec.Number); err != nil {
			return fmt.Errorf("failed to export %s: %w", spec.Name, err)
		}
		direction := "low"
		if spec.Initial {
			direction = "high"
		}
		if err := g.setPinDirection(spec.Number, direction); err != nil {
			return fmt.Errorf("failed to set %s direction: %w", spec.Name, err)
		}
		g.exportedPins[spec.Number] = true
	}

	logging.Infof("gpio", "sysfs backend initialized under %s", g.root)
	return nil
}

// Close unexports all pins
func (g *LinuxGPIO) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for pin := range g.exportedPins {
		if err := g.unexportPin(pin); err != nil {
			logging.Debugf("gpio", "%v", err)
		}
		delete(g.exportedPins, pin)
	}

	logging.Debug("gpio", "sysfs backend closed")
	return nil
}

// SetPin sets a GPIO pin value
func (g *LinuxGPIO) SetPin(pin Pin, value bool) error {
	spec, err := findPin(g.pins, pin)
	if err != nil {
		return err
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if !g.exportedPins[spec.Number] {
		return fmt.Errorf("pin %s not exported", pin)
	}

	valueStr := "0"
	if value {
		valueStr = "1"
	}
	if err := os.WriteFile(g.pinPath(spec.Number, "value"), []byte(valueStr), 0644); err != nil {
		return fmt.Errorf("failed to set pin %s value: %w", pin, err)
	}
	return nil
}

// GetPin gets a GPIO pin value
func (g *LinuxGPIO) GetPin(pin Pin) (bool, error) {
	spec, err := findPin(g.pins, pin)
	if err != nil {
		return false, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	data, err := os.ReadFile(g.pinPath(spec.Number, "value"))
	if err != nil {
		return false, fmt.Errorf("failed to read pin %s value: %w", pin, err)
	}
	return strings.TrimSpace(string(data)) == "1", nil
}

func (g *LinuxGPIO) pinPath(number int, file string) string {
	return filepath.Join(g.root, fmt.Sprintf("gpio%d", number), file)
}

// exportPin exports a GPIO pin to userspace
func (g *LinuxGPIO) exportPin(number int) error {
	pinDir := filepath.Join(g.root, fmt.Sprintf("gpio%d", number))
	if _, err := os.Stat(pinDir); err == nil {
		return nil // Already exported
	}

	if err := os.WriteFile(filepath.Join(g.root, "export"), []byte(strconv.Itoa(number)), 0644); err != nil {
		return fmt.Errorf("failed to export GPIO %d: %w", number, err)
	}

	// Wait for the kernel to create the pin directory
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(pinDir); err == nil {
			logging.Debugf("gpio", "exported GPIO %d", number)
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}

	return fmt.Errorf("GPIO %d directory did not appear after export", number)
}

// unexportPin unexports a GPIO pin from userspace
func (g *LinuxGPIO) unexportPin(number int) error {
	if err := os.WriteFile(filepath.Join(g.root, "unexport"), []byte(strconv.Itoa(number)), 0644); err != nil {
		return fmt.Errorf("failed to unexport GPIO %d: %w", number, err)
	}
	return nil
}

// setPinDirection sets the direction of a GPIO pin; "high" and "low"
// configure an output with an initial level
func (g *LinuxGPIO) setPinDirection(number int, direction string) error {
	if err := os.WriteFile(g.pinPath(number, "direction"), []byte(direction), 0644); err != nil {
		return fmt.Errorf("failed to set GPIO %d direction to %s: %w", number, direction, err)
	}
	return nil
}
