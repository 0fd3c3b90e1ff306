package control

import (
	"encoding/binary"
	"testing"

	"github.com/dougsko/x6d/pkg/bus"
	"github.com/dougsko/x6d/pkg/regs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheWrite(t *testing.T) {
	t.Run("Read Returns Last Written Value", func(t *testing.T) {
		fake := bus.NewFake()
		cache := NewCache(fake)

		for i := 0; i < regs.Count; i++ {
			idx := regs.Index(i)
			v := uint32(i)*0x01010101 + 7
			require.NoError(t, cache.Write(idx, v))
			assert.Equal(t, v, cache.Read(idx), "register %s", idx)
		}
		assert.Equal(t, regs.Count, fake.WriteCount())
	})

	t.Run("Table Updated When Transport Fails", func(t *testing.T) {
		fake := bus.NewFake()
		fake.FailWrites = 1
		cache := NewCache(fake)

		err := cache.Write(regs.RxVol, 42)
		assert.ErrorIs(t, err, bus.ErrBusIO)
		assert.Equal(t, uint32(42), cache.Read(regs.RxVol))
	})

	t.Run("Table Updated When Bus Closed", func(t *testing.T) {
		fake := bus.NewFake()
		require.NoError(t, fake.Close())
		cache := NewCache(fake)

		err := cache.Write(regs.AgcTime, 300)
		assert.ErrorIs(t, err, bus.ErrBusNotOpen)
		assert.Equal(t, uint32(300), cache.Read(regs.AgcTime))
	})

	t.Run("Wire Encoding", func(t *testing.T) {
		fake := bus.NewFake()
		cache := NewCache(fake)

		require.NoError(t, cache.Write(regs.VfoBFreq, 0x01020304))
		assert.Equal(t, []byte{0x00, 0x1C, 0x04, 0x03, 0x02, 0x01}, fake.LastWrite())
	})

	t.Run("Invalid Index", func(t *testing.T) {
		fake := bus.NewFake()
		cache := NewCache(fake)

		err := cache.Write(regs.Index(regs.Count), 1)
		assert.ErrorIs(t, err, regs.ErrInvalidRegisterIndex)
		assert.Equal(t, 0, fake.WriteCount())
		assert.Panics(t, func() { cache.Read(regs.Index(200)) })
	})

	t.Run("Observers See Writes", func(t *testing.T) {
		cache := NewCache(bus.NewFake())
		var seen []regs.Index
		cache.OnWrite(func(idx regs.Index, v uint32) { seen = append(seen, idx) })

		require.NoError(t, cache.Write(regs.RIT, 1))
		require.NoError(t, cache.Update(regs.XIT, func(prev uint32) uint32 { return prev + 1 }))
		assert.Equal(t, []regs.Index{regs.RIT, regs.XIT}, seen)
	})
}

func TestCachePushAll(t *testing.T) {
	fake := bus.NewFake()
	cache := NewCache(fake)
	cache.Seed(map[regs.Index]uint32{regs.VfoAFreq: 7_074_000, regs.Last: 0x00100001})

	require.NoError(t, cache.PushAll())
	require.Equal(t, 1, fake.WriteCount())

	frame := fake.LastWrite()
	require.Len(t, frame, regs.BulkLen)
	assert.Equal(t, []byte{0, 0}, frame[:2])
	assert.Equal(t, uint32(7_074_000), binary.LittleEndian.Uint32(frame[2+4*int(regs.VfoAFreq):]))
	assert.Equal(t, uint32(0x00100001), binary.LittleEndian.Uint32(frame[2+4*int(regs.Last):]))
}

func TestCacheSeed(t *testing.T) {
	fake := bus.NewFake()
	cache := NewCache(fake)
	require.NoError(t, cache.Write(regs.Reg32, 99))

	cache.Seed(Baseline())

	assert.Equal(t, uint32(0), cache.Read(regs.Reg32), "seed clears previous values")
	assert.Equal(t, uint32(14_074_000), cache.Read(regs.VfoAFreq))
	assert.Equal(t, 1, fake.WriteCount(), "seed does not touch the bus")
}

func TestCacheHostCommand(t *testing.T) {
	fake := bus.NewFake()
	cache := NewCache(fake)

	require.NoError(t, cache.HostCommand(regs.HostCmdATUTune))
	assert.Equal(t, []byte{0xFF, 0xFE, 0x80, 0x04}, fake.LastWrite())
}
