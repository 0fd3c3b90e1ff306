package bus

import (
	"errors"
	"testing"

	"github.com/dougsko/x6d/pkg/regs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func playbackTransport(ops ...i2ctest.IO) (*I2CTransport, *i2ctest.Playback) {
	pb := &i2ctest.Playback{Ops: ops, DontPanic: true}
	opener := func() (i2c.BusCloser, error) { return pb, nil }
	return NewI2CTransport(opener, DefaultAddress, "playback"), pb
}

func TestI2CTransport(t *testing.T) {
	t.Run("Write Sends One Message", func(t *testing.T) {
		frame := regs.EncodeWrite(regs.VfoAFreq, 7_074_000)
		tr, pb := playbackTransport(i2ctest.IO{Addr: DefaultAddress, W: frame})

		require.NoError(t, tr.Open())
		require.NoError(t, tr.Write(frame))
		assert.Equal(t, 1, pb.Count)
	})

	t.Run("Read Sends Address Then Reads", func(t *testing.T) {
		tr, pb := playbackTransport(
			i2ctest.IO{Addr: DefaultAddress, W: []byte{0x02, 0x00}},
			i2ctest.IO{Addr: DefaultAddress, R: []byte{1, 0, 0, 0}},
		)

		require.NoError(t, tr.Open())
		data, err := tr.Read(0x0200, 4)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 0, 0, 0}, data)
		assert.Equal(t, 2, pb.Count)
	})

	t.Run("Not Open", func(t *testing.T) {
		tr, _ := playbackTransport()

		assert.False(t, tr.IsOpen())
		assert.ErrorIs(t, tr.Write([]byte{0, 0}), ErrBusNotOpen)
		_, err := tr.Read(0, 4)
		assert.ErrorIs(t, err, ErrBusNotOpen)
	})

	t.Run("Unexpected Transaction Is IO Error", func(t *testing.T) {
		tr, _ := playbackTransport()

		require.NoError(t, tr.Open())
		err := tr.Write([]byte{0x00, 0x04, 1, 2, 3, 4})
		assert.ErrorIs(t, err, ErrBusIO)
	})

	t.Run("Open Failure", func(t *testing.T) {
		tr := NewI2CTransport(func() (i2c.BusCloser, error) {
			return nil, errors.New("no such device")
		}, DefaultAddress, "missing")

		err := tr.Open()
		assert.ErrorIs(t, err, ErrBusIO)
		assert.False(t, tr.IsOpen())
	})

	t.Run("Reopen Replaces Handle", func(t *testing.T) {
		opens := 0
		tr := NewI2CTransport(func() (i2c.BusCloser, error) {
			opens++
			return &i2ctest.Playback{DontPanic: true}, nil
		}, DefaultAddress, "reopen")

		require.NoError(t, tr.Open())
		require.NoError(t, tr.Open())
		assert.Equal(t, 2, opens)
		assert.True(t, tr.IsOpen())

		require.NoError(t, tr.Close())
		assert.False(t, tr.IsOpen())
		require.NoError(t, tr.Close())
	})
}

func TestFake(t *testing.T) {
	t.Run("Scripted Failures", func(t *testing.T) {
		f := NewFake()
		f.FailWrites = 1

		assert.ErrorIs(t, f.Write([]byte{1}), ErrBusIO)
		assert.NoError(t, f.Write([]byte{2}))
		assert.Equal(t, 1, f.WriteCount())
		assert.Equal(t, []byte{2}, f.LastWrite())
	})

	t.Run("Replies In Order", func(t *testing.T) {
		f := NewFake()
		f.Reply(0x10, nil, ErrBusIO)
		f.Reply(0x10, []byte{7}, nil)

		_, err := f.Read(0x10, 2)
		assert.ErrorIs(t, err, ErrBusIO)

		data, err := f.Read(0x10, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte{7, 0}, data)

		data, err = f.Read(0x10, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte{7}, data)
		assert.Equal(t, 3, f.ReadCount(0x10))
	})
}
