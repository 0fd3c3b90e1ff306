package control

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dougsko/x6d/pkg/regs"
)

// BandPolicy selects how a band change is propagated to the device. The
// two device generations disagree, so it is configured per variant.
type BandPolicy int

const (
	// BandPolicyReselect writes the band and re-asserts the foreground
	// VFO, which the device resets to A on a band change.
	BandPolicyReselect BandPolicy = iota
	// BandPolicyDisabled performs no band tracking at all.
	BandPolicyDisabled
)

// ParseBandPolicy accepts "reselect" or "disabled".
func ParseBandPolicy(s string) (BandPolicy, error) {
	switch strings.ToLower(s) {
	case "reselect":
		return BandPolicyReselect, nil
	case "disabled":
		return BandPolicyDisabled, nil
	}
	return BandPolicyReselect, fmt.Errorf("unknown band policy %q", s)
}

func (p BandPolicy) String() string {
	if p == BandPolicyDisabled {
		return "disabled"
	}
	return "reselect"
}

// BandTracker remembers the current band and the foreground VFO.
type BandTracker struct {
	mutex      sync.Mutex
	cache      *Cache
	policy     BandPolicy
	current    regs.Band
	foreground regs.VFO
}

// NewBandTracker creates a tracker starting at band 0 with VFO A in the
// foreground.
func NewBandTracker(cache *Cache, policy BandPolicy) *BandTracker {
	return &BandTracker{cache: cache, policy: policy}
}

// OnFrequencySet updates the band for a frequency about to be written to
// vfo. It reports whether the band changed. The VFO frequency register
// itself is written by the caller regardless.
func (b *BandTracker) OnFrequencySet(vfo regs.VFO, freq uint32) (bool, error) {
	if b.policy == BandPolicyDisabled {
		return false, nil
	}

	band := regs.BandIndex(freq)

	// Held across the cache writes so the tracked band and the cached
	// band field change in the same order.
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if band == b.current {
		return false, nil
	}
	b.current = band

	if err := b.cache.Update(regs.VfoVm, func(prev uint32) uint32 {
		return regs.FieldBand.Compose(prev, uint32(band))
	}); err != nil {
		return true, fmt.Errorf("failed to write band %s: %w", band, err)
	}

	if vfo != b.foreground {
		return true, nil
	}
	if err := b.writeVFO(b.foreground); err != nil {
		return true, fmt.Errorf("failed to reselect VFO %s: %w", b.foreground, err)
	}
	return true, nil
}

// Select makes vfo the foreground VFO and writes the selection.
func (b *BandTracker) Select(vfo regs.VFO) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.foreground = vfo
	return b.writeVFO(vfo)
}

func (b *BandTracker) writeVFO(vfo regs.VFO) error {
	return b.cache.Update(regs.VfoVm, func(prev uint32) uint32 {
		return regs.FieldVFO.Compose(prev, uint32(vfo))
	})
}

// Foreground returns the foreground VFO.
func (b *BandTracker) Foreground() regs.VFO {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.foreground
}

// Current returns the last tracked band.
func (b *BandTracker) Current() regs.Band {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.current
}

// Policy returns the configured policy.
func (b *BandTracker) Policy() BandPolicy {
	return b.policy
}
