// Package control owns the register shadow table and everything that
// writes through it: the link supervisor, the initialization sequencer,
// the band tracker and the field setters.
package control

import (
	"fmt"
	"sync"

	"github.com/dougsko/x6d/pkg/bus"
	"github.com/dougsko/x6d/pkg/regs"
)

// Cache mirrors the last value handed to the transport for every register.
// The device is never read back in steady state, so setters compose new
// words from the cache.
type Cache struct {
	mutex     sync.Mutex
	transport bus.Transport
	table     [regs.Count]uint32
	observers []func(idx regs.Index, v uint32)
}

// NewCache creates a zeroed cache writing to t.
func NewCache(t bus.Transport) *Cache {
	return &Cache{transport: t}
}

// Transport returns the underlying transport.
func (c *Cache) Transport() bus.Transport {
	return c.transport
}

// OnWrite registers fn to be called after every single-register write.
// It runs with the cache unlocked.
func (c *Cache) OnWrite(fn func(idx regs.Index, v uint32)) {
	c.mutex.Lock()
	c.observers = append(c.observers, fn)
	c.mutex.Unlock()
}

// Write stores v and sends it to the device. The table keeps v even when
// the transport fails.
func (c *Cache) Write(idx regs.Index, v uint32) error {
	if err := idx.Check(); err != nil {
		return err
	}

	c.mutex.Lock()
	err := c.writeLocked(idx, v)
	observers := c.observers
	c.mutex.Unlock()

	c.notify(observers, idx, v)
	return err
}

// Update recomputes a register from its cached value under the cache lock
// and writes the result.
func (c *Cache) Update(idx regs.Index, fn func(prev uint32) uint32) error {
	if err := idx.Check(); err != nil {
		return err
	}

	c.mutex.Lock()
	next := fn(c.table[idx])
	err := c.writeLocked(idx, next)
	observers := c.observers
	c.mutex.Unlock()

	c.notify(observers, idx, next)
	return err
}

func (c *Cache) writeLocked(idx regs.Index, v uint32) error {
	c.table[idx] = v
	if err := c.transport.Write(regs.EncodeWrite(idx, v)); err != nil {
		return fmt.Errorf("failed to write %s: %w", idx, err)
	}
	return nil
}

func (c *Cache) notify(observers []func(regs.Index, uint32), idx regs.Index, v uint32) {
	for _, fn := range observers {
		fn(idx, v)
	}
}

// Read returns the cached value. An invalid index is a programming error
// and panics.
func (c *Cache) Read(idx regs.Index) uint32 {
	if !idx.Valid() {
		panic(fmt.Sprintf("control: register index %d out of range", idx))
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.table[idx]
}

// PushAll writes the whole table in one transaction.
func (c *Cache) PushAll() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.pushAllLocked()
}

func (c *Cache) pushAllLocked() error {
	if err := c.transport.Write(regs.EncodeBulk(&c.table)); err != nil {
		return fmt.Errorf("failed to push register table: %w", err)
	}
	return nil
}

// HostCommand sends a host command. It shares the cache lock so it never
// interleaves with a register write.
func (c *Cache) HostCommand(cmd uint16) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.transport.Write(regs.EncodeHostCmd(cmd)); err != nil {
		return fmt.Errorf("failed to send host command %#04x: %w", cmd, err)
	}
	return nil
}

// ReadDevice performs a bus-level read, bypassing the table.
func (c *Cache) ReadDevice(addr uint16, n int) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.transport.Read(addr, n)
}

// Snapshot returns a copy of the table.
func (c *Cache) Snapshot() [regs.Count]uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.table
}

// Seed zeroes the table and loads values without touching the bus.
func (c *Cache) Seed(values map[regs.Index]uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.table = [regs.Count]uint32{}
	for idx, v := range values {
		if idx.Valid() {
			c.table[idx] = v
		}
	}
}

// reconnect runs fn with the cache locked so no writer sees the transport
// between close and reopen.
func (c *Cache) reconnect(fn func(t bus.Transport) error) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return fn(c.transport)
}
