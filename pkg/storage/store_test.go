package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dougsko/x6d/pkg/flow"
	"github.com/dougsko/x6d/pkg/regs"
)

func newTestStore(t *testing.T, maxSamples int) *TelemetryStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "x6d-storage-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := NewTelemetryStore(filepath.Join(tempDir, "test.db"), maxSamples)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewTelemetryStore(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "x6d-storage-new-test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	t.Run("Nested Directory", func(t *testing.T) {
		dbPath := filepath.Join(tempDir, "nested", "dir", "test.db")
		store, err := NewTelemetryStore(dbPath, 100)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		defer store.Close()

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			t.Error("Expected database file to be created")
		}
		if store.maxSamples != 100 {
			t.Errorf("Expected maxSamples 100, got %d", store.maxSamples)
		}
	})

	t.Run("Reopen Keeps Data", func(t *testing.T) {
		dbPath := filepath.Join(tempDir, "reopen.db")
		store, err := NewTelemetryStore(dbPath, 0)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if _, err := store.StoreSample(time.Now(), flow.Summary{DBm: 40}); err != nil {
			t.Fatalf("Failed to store sample: %v", err)
		}
		store.Close()

		store, err = NewTelemetryStore(dbPath, 0)
		if err != nil {
			t.Fatalf("Expected no error on reopen, got: %v", err)
		}
		defer store.Close()

		count, err := store.GetSampleCount()
		if err != nil || count != 1 {
			t.Errorf("Expected 1 sample after reopen, got %d (%v)", count, err)
		}
	})
}

func TestSamples(t *testing.T) {
	store := newTestStore(t, 0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s := flow.Summary{
			TX:      i%2 == 0,
			DBm:     uint8(60 + i),
			TxPower: float64(i) * 1.5,
			SWR:     1.2,
			VBat:    12.1,
			Key:     "TUNER",
			Flags:   0x12,
		}
		if _, err := store.StoreSample(base.Add(time.Duration(i)*time.Second), s); err != nil {
			t.Fatalf("Failed to store sample %d: %v", i, err)
		}
	}

	t.Run("Recent Newest First", func(t *testing.T) {
		samples, err := store.GetRecentSamples(2)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(samples) != 2 {
			t.Fatalf("Expected 2 samples, got %d", len(samples))
		}
		if samples[0].DBm != 64 || samples[1].DBm != 63 {
			t.Errorf("Expected dbm 64 then 63, got %d then %d", samples[0].DBm, samples[1].DBm)
		}
		if !samples[0].Timestamp.Equal(base.Add(4 * time.Second)) {
			t.Errorf("Unexpected timestamp %v", samples[0].Timestamp)
		}
		if samples[0].Key != "TUNER" || samples[0].Flags != 0x12 {
			t.Errorf("Unexpected sample %+v", samples[0])
		}
	})

	t.Run("TX Only", func(t *testing.T) {
		samples, err := store.GetSamples(SampleQuery{TXOnly: true})
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(samples) != 3 {
			t.Errorf("Expected 3 TX samples, got %d", len(samples))
		}
	})

	t.Run("Time Range", func(t *testing.T) {
		since := base.Add(time.Second)
		until := base.Add(3 * time.Second)
		samples, err := store.GetSamples(SampleQuery{Since: &since, Until: &until})
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(samples) != 3 {
			t.Errorf("Expected 3 samples in range, got %d", len(samples))
		}
	})

	t.Run("Offset", func(t *testing.T) {
		samples, err := store.GetSamples(SampleQuery{Limit: 2, Offset: 4})
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if len(samples) != 1 || samples[0].DBm != 60 {
			t.Errorf("Expected the oldest sample only, got %+v", samples)
		}
	})
}

func TestSampleCleanup(t *testing.T) {
	store := newTestStore(t, 3)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 6; i++ {
		if _, err := store.StoreSample(base.Add(time.Duration(i)*time.Second), flow.Summary{DBm: uint8(i)}); err != nil {
			t.Fatalf("Failed to store sample: %v", err)
		}
	}

	count, err := store.GetSampleCount()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 samples after cleanup, got %d", count)
	}

	samples, _ := store.GetRecentSamples(0)
	if samples[len(samples)-1].DBm != 3 {
		t.Errorf("Expected oldest kept sample dbm 3, got %d", samples[len(samples)-1].DBm)
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if stats.TotalSamples != 6 || stats.StoredSamples != 3 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if stats.LastCleanup.IsZero() {
		t.Error("Expected last cleanup to be set")
	}
}

func TestSnapshots(t *testing.T) {
	store := newTestStore(t, 0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var table [regs.Count]uint32
	table[regs.VfoAFreq] = 14074000
	table[regs.Last] = 0x00100001

	t.Run("Empty", func(t *testing.T) {
		if _, err := store.LatestSnapshot(); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Store And Load", func(t *testing.T) {
		id, err := store.StoreSnapshot(base, "init", table)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		snap, err := store.GetSnapshot(id)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if snap.Registers != table {
			t.Error("Expected stored table to round trip")
		}
		if snap.Reason != "init" {
			t.Errorf("Expected reason init, got %q", snap.Reason)
		}
	})

	t.Run("Latest", func(t *testing.T) {
		table[regs.VfoAFreq] = 7074000
		if _, err := store.StoreSnapshot(base.Add(time.Minute), "manual", table); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}

		snap, err := store.LatestSnapshot()
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if snap.Registers[regs.VfoAFreq] != 7074000 {
			t.Errorf("Expected newest snapshot, got freq %d", snap.Registers[regs.VfoAFreq])
		}

		all, err := store.ListSnapshots(0)
		if err != nil || len(all) != 2 {
			t.Errorf("Expected 2 snapshots, got %d (%v)", len(all), err)
		}
	})

	t.Run("Missing ID", func(t *testing.T) {
		if _, err := store.GetSnapshot(999); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}
