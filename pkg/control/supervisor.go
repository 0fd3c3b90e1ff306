package control

import (
	"context"
	"sync"
	"time"

	"github.com/dougsko/x6d/pkg/bus"
	"github.com/dougsko/x6d/pkg/logging"
)

// Supervisor defaults.
const (
	DefaultIdleInterval  = time.Second
	DefaultReopenDelay   = time.Millisecond
	DefaultEscalateAfter = 10
)

// SupervisorStats counts idle tick outcomes.
type SupervisorStats struct {
	Ticks               uint64    `json:"ticks"`
	Failures            uint64    `json:"failures"`
	Reopens             uint64    `json:"reopens"`
	Unrecovered         uint64    `json:"unrecovered"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success"`
}

// Supervisor re-pushes the whole table on a cadence and reopens the bus
// when a push fails. It never returns an error from a tick; a tick that
// cannot heal leaves the device possibly stale until the next one.
type Supervisor struct {
	cache         *Cache
	reopenDelay   time.Duration
	escalateAfter int
	sleep         func(time.Duration)

	mutex sync.Mutex
	stats SupervisorStats
}

// NewSupervisor creates a supervisor for cache. Zero arguments select the
// defaults.
func NewSupervisor(cache *Cache, reopenDelay time.Duration, escalateAfter int) *Supervisor {
	if reopenDelay <= 0 {
		reopenDelay = DefaultReopenDelay
	}
	if escalateAfter <= 0 {
		escalateAfter = DefaultEscalateAfter
	}
	return &Supervisor{
		cache:         cache,
		reopenDelay:   reopenDelay,
		escalateAfter: escalateAfter,
		sleep:         time.Sleep,
	}
}

// IdleTick pushes the table, healing the link once on failure.
func (s *Supervisor) IdleTick() {
	reopened := false
	err := s.cache.reconnect(func(t bus.Transport) error {
		err := s.cache.pushAllLocked()
		if err == nil {
			return nil
		}
		logging.Debugf("supervisor", "idle push failed, reopening bus: %v", err)

		s.recordFailure()
		if cerr := t.Close(); cerr != nil {
			logging.Debugf("supervisor", "close before reopen: %v", cerr)
		}
		s.sleep(s.reopenDelay)
		reopened = true
		if oerr := t.Open(); oerr != nil {
			logging.Debugf("supervisor", "reopen: %v", oerr)
		}
		return s.cache.pushAllLocked()
	})

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.stats.Ticks++
	if reopened {
		s.stats.Reopens++
	}
	if err == nil {
		if s.stats.ConsecutiveFailures > 0 {
			logging.Infof("supervisor", "bus recovered after %d failed ticks", s.stats.ConsecutiveFailures)
		}
		s.stats.ConsecutiveFailures = 0
		s.stats.LastSuccess = time.Now()
		return
	}

	s.stats.Unrecovered++
	s.stats.ConsecutiveFailures++
	if s.stats.ConsecutiveFailures%s.escalateAfter == 0 {
		logging.Errorf("supervisor", "healing failed repeatedly (%d ticks): %v", s.stats.ConsecutiveFailures, err)
	} else {
		logging.Warnf("supervisor", "idle push failed after reopen: %v", err)
	}
}

func (s *Supervisor) recordFailure() {
	s.mutex.Lock()
	s.stats.Failures++
	s.mutex.Unlock()
}

// Run ticks every interval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultIdleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.IdleTick()
		}
	}
}

// Stats returns a copy of the counters.
func (s *Supervisor) Stats() SupervisorStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stats
}
