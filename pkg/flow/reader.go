package flow

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dougsko/x6d/pkg/logging"
)

var (
	// ErrChecksum is returned for a frame whose CRC does not match
	ErrChecksum = errors.New("telemetry checksum mismatch")
	// ErrNoSync is returned when no magic word shows up in the scan window
	ErrNoSync = errors.New("telemetry stream out of sync")
	// ErrClosed is returned when reading with no source open
	ErrClosed = errors.New("telemetry source closed")
)

// maxSkip bounds the resync scan to two frames worth of bytes
const maxSkip = 2 * FrameSize

// Opener opens the byte stream frames arrive on
type Opener func() (io.ReadCloser, error)

// Reader pulls frames off a telemetry stream. ReadFrame is meant for a
// single goroutine; Close and Restart may be called from any other one and
// make a blocked ReadFrame return.
type Reader struct {
	mutex   sync.Mutex
	open    Opener
	src     io.ReadCloser
	buf     *bufio.Reader
	skipped uint64
	pool    *FramePool
}

// NewReader creates a reader; the source is opened by Open
func NewReader(open Opener) *Reader {
	return &Reader{open: open, pool: NewFramePool()}
}

// Open opens the source if it is not already open
func (r *Reader) Open() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.openLocked()
}

func (r *Reader) openLocked() error {
	if r.src != nil {
		return nil
	}
	src, err := r.open()
	if err != nil {
		return fmt.Errorf("failed to open telemetry source: %w", err)
	}
	r.src = src
	r.buf = bufio.NewReaderSize(src, FrameSize*2)
	return nil
}

// Close closes the source
func (r *Reader) Close() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.closeLocked()
}

func (r *Reader) closeLocked() error {
	if r.src == nil {
		return nil
	}
	err := r.src.Close()
	r.src = nil
	r.buf = nil
	return err
}

// Restart closes and reopens the source
func (r *Reader) Restart() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.closeLocked(); err != nil {
		logging.Debugf("flow", "closing source: %v", err)
	}
	logging.Info("flow", "restarting telemetry source")
	return r.openLocked()
}

// Skipped returns how many bytes were discarded while resyncing
func (r *Reader) Skipped() uint64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.skipped
}

// ReadFrame scans to the next magic word and decodes the frame behind it
func (r *Reader) ReadFrame() (*Frame, error) {
	r.mutex.Lock()
	buf := r.buf
	r.mutex.Unlock()

	if buf == nil {
		return nil, ErrClosed
	}

	skipped, err := syncStream(buf)
	if skipped > 0 {
		r.mutex.Lock()
		r.skipped += uint64(skipped)
		r.mutex.Unlock()
		logging.Debugf("flow", "skipped %d bytes looking for a frame", skipped)
	}
	if err != nil {
		return nil, err
	}

	fb := r.pool.Get()
	defer fb.Release()

	frame := fb.Data
	frame[0], frame[1], frame[2], frame[3] = 0xAA, 0x55, 0x55, 0xAA
	if _, err := io.ReadFull(buf, frame[4:]); err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
	return Decode(frame)
}

// BufferStats reports frame buffer reuse
func (r *Reader) BufferStats() map[string]int64 {
	return r.pool.Statistics()
}

// syncStream consumes bytes up to and including the magic word and
// reports how many bytes came before it
func syncStream(buf *bufio.Reader) (int, error) {
	var window uint32
	for n := 0; n < maxSkip+4; n++ {
		b, err := buf.ReadByte()
		if err != nil {
			return max(n-3, 0), fmt.Errorf("failed to read telemetry: %w", err)
		}
		// little endian on the wire, so each byte enters at the top
		window = window>>8 | uint32(b)<<24
		if n >= 3 && window == Magic {
			return n - 3, nil
		}
	}
	return maxSkip + 1, ErrNoSync
}
