package bus

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Transport. Writes are recorded; failures and read
// replies are scripted.
type Fake struct {
	mutex sync.Mutex

	open   bool
	Writes [][]byte
	Reads  []uint16
	Opens  int
	Closes int

	// FailWrites makes the next N writes fail with ErrBusIO.
	FailWrites int
	// FailOpens makes the next N opens fail with ErrBusIO.
	FailOpens int
	// ReadReplies are consumed in order per address and the last one
	// repeats. An entry with Err set fails that read.
	ReadReplies map[uint16][]FakeReply
}

// FakeReply is one scripted response to Read.
type FakeReply struct {
	Data []byte
	Err  error
}

// NewFake returns an opened fake.
func NewFake() *Fake {
	return &Fake{open: true, ReadReplies: make(map[uint16][]FakeReply)}
}

// Reply queues a response for addr.
func (f *Fake) Reply(addr uint16, data []byte, err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.ReadReplies[addr] = append(f.ReadReplies[addr], FakeReply{Data: data, Err: err})
}

func (f *Fake) Open() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.Opens++
	if f.FailOpens > 0 {
		f.FailOpens--
		f.open = false
		return fmt.Errorf("fake open: %w", ErrBusIO)
	}
	f.open = true
	return nil
}

func (f *Fake) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.Closes++
	f.open = false
	return nil
}

func (f *Fake) IsOpen() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.open
}

func (f *Fake) Write(p []byte) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if !f.open {
		return ErrBusNotOpen
	}
	if f.FailWrites > 0 {
		f.FailWrites--
		return fmt.Errorf("fake write: %w", ErrBusIO)
	}
	f.Writes = append(f.Writes, append([]byte(nil), p...))
	return nil
}

func (f *Fake) Read(addr uint16, n int) ([]byte, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.Reads = append(f.Reads, addr)
	if !f.open {
		return nil, ErrBusNotOpen
	}
	queue := f.ReadReplies[addr]
	if len(queue) == 0 {
		return make([]byte, n), nil
	}
	reply := queue[0]
	if len(queue) > 1 {
		f.ReadReplies[addr] = queue[1:]
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	buf := make([]byte, n)
	copy(buf, reply.Data)
	return buf, nil
}

// WriteCount returns the number of successful writes.
func (f *Fake) WriteCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.Writes)
}

// LastWrite returns a copy of the most recent successful write.
func (f *Fake) LastWrite() []byte {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if len(f.Writes) == 0 {
		return nil
	}
	return append([]byte(nil), f.Writes[len(f.Writes)-1]...)
}

// ReadCount returns how many reads were attempted at addr.
func (f *Fake) ReadCount(addr uint16) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	count := 0
	for _, a := range f.Reads {
		if a == addr {
			count++
		}
	}
	return count
}
