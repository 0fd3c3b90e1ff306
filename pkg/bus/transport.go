// Package bus carries register transactions to the baseband over I2C.
package bus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dougsko/x6d/pkg/logging"
	"github.com/dougsko/x6d/pkg/regs"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/host/v3/sysfs"
)

var (
	// ErrBusNotOpen is returned when a transaction is attempted without a
	// device handle.
	ErrBusNotOpen = errors.New("bus not open")
	// ErrBusIO wraps a failed bus transaction.
	ErrBusIO = errors.New("bus i/o error")
)

// DefaultAddress is the baseband device address.
const DefaultAddress uint16 = 0x72

// Transport moves encoded transactions to the device.
type Transport interface {
	Open() error
	Close() error
	Write(p []byte) error
	Read(addr uint16, n int) ([]byte, error)
	IsOpen() bool
}

// Opener returns a fresh bus handle.
type Opener func() (i2c.BusCloser, error)

// SysfsOpener opens /dev/i2c-<number> through the kernel I2C_RDWR ioctl.
func SysfsOpener(number int) Opener {
	return func() (i2c.BusCloser, error) {
		return sysfs.NewI2C(number)
	}
}

// I2CTransport talks to one device on an I2C bus. Every call is a single
// attempt; retry policy belongs to the caller.
type I2CTransport struct {
	mutex  sync.Mutex
	open   Opener
	addr   uint16
	handle i2c.BusCloser
	name   string
}

// NewI2CTransport creates a transport for the device at addr. The bus is
// not opened until Open is called.
func NewI2CTransport(open Opener, addr uint16, name string) *I2CTransport {
	return &I2CTransport{
		open: open,
		addr: addr,
		name: name,
	}
}

// NewSysfsTransport creates a transport on /dev/i2c-<number>.
func NewSysfsTransport(number int, addr uint16) *I2CTransport {
	return NewI2CTransport(SysfsOpener(number), addr, fmt.Sprintf("/dev/i2c-%d", number))
}

// Open acquires the bus handle, dropping any stale one first.
func (t *I2CTransport) Open() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.handle != nil {
		if err := t.handle.Close(); err != nil {
			logging.Debugf("bus", "closing stale handle on %s: %v", t.name, err)
		}
		t.handle = nil
	}

	handle, err := t.open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w: %v", t.name, ErrBusIO, err)
	}
	t.handle = handle
	logging.Debugf("bus", "opened %s, device %#02x", t.name, t.addr)
	return nil
}

// Close releases the handle. Closing a closed transport is a no-op.
func (t *I2CTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.handle == nil {
		return nil
	}
	err := t.handle.Close()
	t.handle = nil
	if err != nil {
		return fmt.Errorf("failed to close %s: %w: %v", t.name, ErrBusIO, err)
	}
	return nil
}

// IsOpen reports whether a handle is held.
func (t *I2CTransport) IsOpen() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.handle != nil
}

// Write sends p as one write message.
func (t *I2CTransport) Write(p []byte) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.handle == nil {
		return ErrBusNotOpen
	}
	if err := t.handle.Tx(t.addr, p, nil); err != nil {
		return fmt.Errorf("%w: write %d bytes: %v", ErrBusIO, len(p), err)
	}
	return nil
}

// Read sends the big-endian register address, then reads n bytes in a
// separate transaction.
func (t *I2CTransport) Read(addr uint16, n int) ([]byte, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.handle == nil {
		return nil, ErrBusNotOpen
	}
	if err := t.handle.Tx(t.addr, regs.EncodeAddr(addr), nil); err != nil {
		return nil, fmt.Errorf("%w: address %#04x: %v", ErrBusIO, addr, err)
	}
	buf := make([]byte, n)
	if err := t.handle.Tx(t.addr, nil, buf); err != nil {
		return nil, fmt.Errorf("%w: read %d bytes at %#04x: %v", ErrBusIO, n, addr, err)
	}
	return buf, nil
}

func (t *I2CTransport) String() string {
	return fmt.Sprintf("%s@%#02x", t.name, t.addr)
}
