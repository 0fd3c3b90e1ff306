package engine

import (
	"context"
	"sync"
	"time"

	"github.com/dougsko/x6d/pkg/flow"
	"github.com/dougsko/x6d/pkg/logging"
)

// Reading is a decoded frame with its arrival time
type Reading struct {
	Time time.Time `json:"time"`
	flow.Summary
}

// TelemetryHub keeps the latest reading and fans frames out to subscribers
type TelemetryHub struct {
	mutex       sync.RWMutex
	latest      *Reading
	frames      uint64
	errors      uint64
	restarts    uint64
	subscribers map[chan Reading]struct{}
}

// TelemetryStats counts stream outcomes
type TelemetryStats struct {
	Frames   uint64 `json:"frames"`
	Errors   uint64 `json:"errors"`
	Restarts uint64 `json:"restarts"`
}

// NewTelemetryHub creates an empty hub
func NewTelemetryHub() *TelemetryHub {
	return &TelemetryHub{subscribers: make(map[chan Reading]struct{})}
}

// Subscribe returns a channel of readings and a function to release it.
// Slow subscribers miss readings rather than stall the stream.
func (h *TelemetryHub) Subscribe(buffer int) (<-chan Reading, func()) {
	ch := make(chan Reading, buffer)

	h.mutex.Lock()
	h.subscribers[ch] = struct{}{}
	h.mutex.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mutex.Lock()
			delete(h.subscribers, ch)
			h.mutex.Unlock()
			close(ch)
		})
	}
}

// Publish records a reading and hands it to every subscriber
func (h *TelemetryHub) Publish(r Reading) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.latest = &r
	h.frames++
	for ch := range h.subscribers {
		select {
		case ch <- r:
		default:
		}
	}
}

// Latest returns the newest reading, or nil before the first frame
func (h *TelemetryHub) Latest() *Reading {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.latest == nil {
		return nil
	}
	r := *h.latest
	return &r
}

// Stats returns the stream counters
func (h *TelemetryHub) Stats() TelemetryStats {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return TelemetryStats{Frames: h.frames, Errors: h.errors, Restarts: h.restarts}
}

func (h *TelemetryHub) countError() {
	h.mutex.Lock()
	h.errors++
	h.mutex.Unlock()
}

func (h *TelemetryHub) countRestart() {
	h.mutex.Lock()
	h.restarts++
	h.mutex.Unlock()
}

// telemetryLoop reads frames until ctx ends. A failed read waits
// retryDelay; restartAfter consecutive failures reopen the source.
func (e *CoreEngine) telemetryLoop(ctx context.Context) error {
	retryDelay := e.config.TelemetryRetryDelay()
	restartAfter := e.config.Telemetry.RestartAfter
	failures := 0

	for ctx.Err() == nil {
		frame, err := e.reader.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			e.telemetry.countError()
			failures++
			logging.Debugf("flow", "read failed (%d in a row): %v", failures, err)

			if failures >= restartAfter {
				failures = 0
				e.telemetry.countRestart()
				if err := e.reader.Restart(); err != nil {
					logging.Warnf("flow", "telemetry restart failed: %v", err)
				}
			}

			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}

		failures = 0
		e.handleFrame(frame)
	}
	return nil
}

// handleFrame publishes a frame and feeds the tuner
func (e *CoreEngine) handleFrame(frame *flow.Frame) {
	e.telemetry.Publish(Reading{Time: time.Now(), Summary: frame.Summary()})
	e.atu.OnFrame(frame)

	if frame.HKey != 0 {
		logging.Debugf("flow", "key %s", frame.HKey)
	}
}

// sampleLoop stores the latest reading every interval
func (e *CoreEngine) sampleLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reading := e.telemetry.Latest()
			if reading == nil || !reading.Time.After(last) {
				continue
			}
			last = reading.Time
			if _, err := e.store.StoreSample(reading.Time, reading.Summary); err != nil {
				logging.Warnf("storage", "failed to store sample: %v", err)
			}
		}
	}
}
