package engine

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memEngine builds a MemCapture engine with one 2-byte channel. With a
// 64-byte cap the channel gets two 32-byte buffers and a threshold of
// 32/2/4 = 4 samples.
func memEngine(t *testing.T, m *fakeMedium, rl uint32) (*Engine, []byte) {
	t.Helper()
	e := New(WithBufferCap(64), WithMedium(m), WithTimeBase(500))
	require.NoError(t, e.SetOpMode(MemCapture))
	src := []byte{0, 0}
	mustRegister(t, e, 1, 0xA1, 1, rl, src, 2)
	require.NoError(t, e.InitLogger(true))
	return e, src
}

func TestMem_InitLoggerLayout(t *testing.T) {
	m := newFakeMedium(256)
	e, _ := memEngine(t, m, 10)

	assert.Equal(t, StateFormatMemory, e.State())
	info, err := e.ChannelInfo(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(HeaderSize), info.Offset)
	assert.Equal(t, uint32(4), info.Threshold)

	h := e.Header()
	assert.Equal(t, uint32(500), h.TimeBase)
	assert.Equal(t, uint32(HeaderSize+20-1), h.LastAddress)
	assert.Equal(t, Descriptor{ID: 0xA1, Divider: 1, Offset: HeaderSize, ByteWidth: 2}, h.Channels[0])
}

func TestMem_FormatWritesHeader(t *testing.T) {
	m := newFakeMedium(256)
	e, _ := memEngine(t, m, 10)

	m.busy = true
	e.Tick()
	assert.Equal(t, StateFormatMemory, e.State(), "waits for an idle medium")
	assert.Empty(t, m.writes)

	m.busy = false
	e.Tick()
	assert.Equal(t, StateInitialized, e.State())
	require.Len(t, m.writes, 1)
	assert.Equal(t, uint32(0), m.writes[0].addr)
	assert.Len(t, m.writes[0].data, HeaderSize)

	var h Header
	require.NoError(t, h.UnmarshalBinary(m.mem))
	assert.Equal(t, e.Header(), h)
}

func TestMem_InitLoggerNeedsMedium(t *testing.T) {
	e := New()
	require.NoError(t, e.SetOpMode(MemCapture))
	mustRegister(t, e, 1, 1, 1, 4, []byte{1}, 1)

	assert.ErrorIs(t, e.InitLogger(false), ErrWrongOpMode)
	assert.Equal(t, StateUninitialized, e.State())
	info, err := e.ChannelInfo(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), info.Threshold, "nothing laid out")
}

func TestMem_ResetLeavesFormatMemory(t *testing.T) {
	m := newFakeMedium(256)
	e, _ := memEngine(t, m, 10)
	m.busy = true

	for i := 0; i < 1000; i++ {
		e.Tick()
	}
	require.Equal(t, StateFormatMemory, e.State(), "the medium never went idle")

	// Configuration stays locked while formatting.
	assert.ErrorIs(t, e.RegisterLog(2, 2, 1, 1, []byte{1}, 1), ErrWrongState)
	assert.ErrorIs(t, e.Start(), ErrWrongState)

	require.NoError(t, e.Reset())
	assert.Equal(t, StateUninitialized, e.State())
	assert.True(t, e.Active().Empty())
	e.Tick()
	assert.Equal(t, StateUninitialized, e.State())
	assert.Empty(t, m.writes)
}

func TestMem_ClearMemoryLeavesFormatMemory(t *testing.T) {
	m := newFakeMedium(256)
	e, _ := memEngine(t, m, 10)
	m.busy = true
	e.Tick()
	require.Equal(t, StateFormatMemory, e.State())

	require.NoError(t, e.ClearMemory())
	assert.Equal(t, StateUninitialized, e.State())
	assert.Equal(t, MemCapture, e.OpMode())

	m.busy = false
	require.NoError(t, e.InitLogger(false))
	e.Tick()
	assert.Equal(t, StateInitialized, e.State())
}

func TestMem_CaptureDrainsToMedium(t *testing.T) {
	m := newFakeMedium(256)
	e, src := memEngine(t, m, 10)
	e.Tick()
	require.Equal(t, StateInitialized, e.State())
	require.NoError(t, e.Start())

	for k := 1; k <= 10; k++ {
		src[0] = byte(k)
		e.Service()
		e.Tick()
	}
	require.Equal(t, StateAborting, e.State())
	e.Tick()
	assert.Equal(t, StateDataReady, e.State())

	var addrs []uint32
	var sizes []int
	for _, w := range m.writes[1:] {
		addrs = append(addrs, w.addr)
		sizes = append(sizes, len(w.data))
	}
	assert.Equal(t, []uint32{96, 104, 112}, addrs)
	assert.Equal(t, []int{8, 8, 4}, sizes)

	want := make([]byte, 0, 20)
	for k := 1; k <= 10; k++ {
		want = append(want, 0, byte(k))
	}
	assert.Equal(t, want, m.mem[HeaderSize:HeaderSize+20])
}

func TestMem_BusyMediumDefersDrain(t *testing.T) {
	m := newFakeMedium(256)
	e, src := memEngine(t, m, 10)
	e.Tick()
	require.NoError(t, e.Start())

	m.busy = true
	for k := 1; k <= 4; k++ {
		src[0] = byte(k)
		e.Service()
		e.Tick()
	}
	assert.Equal(t, []int{1}, e.Serializer().Queue, "queued while the medium is busy")
	assert.Len(t, m.writes, 1)

	m.busy = false
	e.Tick()
	assert.Empty(t, e.Serializer().Queue)
	require.Len(t, m.writes, 2)
	assert.Equal(t, []byte{0, 1, 0, 2, 0, 3, 0, 4}, m.writes[1].data)

	info, err := e.ChannelInfo(1)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), info.Buffer)
	assert.Equal(t, uint32(0), info.FillIndex)
	assert.Equal(t, uint32(HeaderSize+8), info.MemPos)
}

func TestMem_OverrunStopsCapture(t *testing.T) {
	m := newFakeMedium(256)
	stopped := 0
	e := New(WithBufferCap(64), WithMedium(m), WithStopCallback(func() { stopped++ }))
	require.NoError(t, e.SetOpMode(MemCapture))
	src := []byte{0, 0}
	mustRegister(t, e, 1, 1, 1, 10, src, 2)
	require.NoError(t, e.InitLogger(true))
	e.Tick()
	require.NoError(t, e.Start())

	for k := 1; k <= 8; k++ {
		src[0] = byte(k)
		e.Service()
	}
	assert.Equal(t, StateAborting, e.State())
	assert.True(t, e.Overrun())
	assert.Equal(t, 1, stopped)

	info, err := e.ChannelInfo(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), info.Count)
	assert.True(t, info.Running, "the channel itself never finished")

	e.Tick()
	e.Tick()
	assert.Equal(t, StateDataReady, e.State())
	require.Len(t, m.writes, 2)
	assert.Equal(t, uint32(HeaderSize), m.writes[1].addr)
	assert.Len(t, m.writes[1].data, 16)
}

func TestMem_WriteFailureEntersError(t *testing.T) {
	m := newFakeMedium(256)
	e, _ := memEngine(t, m, 10)
	m.err = errors.New("bus fault")

	e.Tick()
	assert.Equal(t, StateError, e.State())
	assert.EqualError(t, e.Err(), "bus fault")

	assert.ErrorIs(t, e.Start(), ErrWrongState)
	require.NoError(t, e.Reset())
	assert.Equal(t, StateUninitialized, e.State())
	assert.NoError(t, e.Err())
}

func TestMem_MediumTooSmall(t *testing.T) {
	m := newFakeMedium(100)
	e := New(WithBufferCap(64), WithMedium(m))
	require.NoError(t, e.SetOpMode(MemCapture))
	mustRegister(t, e, 1, 1, 1, 10, []byte{0, 0}, 2)

	assert.ErrorIs(t, e.InitLogger(true), ErrOutOfMemory)
	assert.Equal(t, StateUninitialized, e.State())
	info, err := e.ChannelInfo(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), info.Threshold)
}

func TestMem_BufferCapTooSmallForWidth(t *testing.T) {
	e := New(WithBufferCap(16), WithMedium(newFakeMedium(4096)))
	require.NoError(t, e.SetOpMode(MemCapture))
	src := make([]byte, 4)
	mustRegister(t, e, 1, 1, 1, 10, src, 4)
	mustRegister(t, e, 2, 2, 1, 10, src, 4)

	// 16/(2*2) = 4 bytes per buffer holds one sample; a quarter of that is zero.
	assert.ErrorIs(t, e.InitLogger(true), ErrOutOfMemory)
}

func TestMem_ArbitrationRoundRobin(t *testing.T) {
	m := newFakeMedium(512)
	e := New(WithBufferCap(64), WithMedium(m))
	require.NoError(t, e.SetOpMode(MemCapture))
	src := []byte{0}
	// Two 1-byte channels: 16-byte buffers, threshold 4.
	mustRegister(t, e, 3, 3, 1, 40, src, 1)
	mustRegister(t, e, 6, 6, 1, 40, src, 1)
	require.NoError(t, e.InitLogger(true))
	e.Tick()
	require.NoError(t, e.Start())

	m.busy = true
	for i := 0; i < 4; i++ {
		e.Service()
	}
	// Both channels flagged; each Tick examines one channel.
	e.Tick()
	assert.Equal(t, []int{3}, e.Serializer().Queue)
	e.Tick()
	assert.Equal(t, []int{3, 6}, e.Serializer().Queue)
	assert.Equal(t, 0, e.Serializer().ArbitrationCount)

	m.busy = false
	e.Tick()
	e.Tick()
	assert.Empty(t, e.Serializer().Queue)
	require.Len(t, m.writes, 3)
	assert.Equal(t, uint32(HeaderSize), m.writes[1].addr)
	assert.Equal(t, uint32(HeaderSize+40), m.writes[2].addr)
}

func TestHeader_Golden(t *testing.T) {
	h := Header{TimeBase: 1000, LastAddress: 0x01020304}
	h.Channels[0] = Descriptor{ID: 1, Divider: 1, Offset: HeaderSize, ByteWidth: 1}
	h.Channels[1] = Descriptor{ID: 0xCAFE, Divider: 2, Offset: HeaderSize + 4, ByteWidth: 2}

	b, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, HeaderSize)

	var back Header
	require.NoError(t, back.UnmarshalBinary(b))
	assert.Equal(t, h, back)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "header", []byte(hex.EncodeToString(b)+"\n"))
}

func TestHeader_UnmarshalShort(t *testing.T) {
	var h Header
	assert.Error(t, h.UnmarshalBinary(make([]byte, HeaderSize-1)))
}

func TestHeader_Regions(t *testing.T) {
	e := New(WithBufferCap(256), WithMedium(newFakeMedium(4096)))
	require.NoError(t, e.SetOpMode(MemCapture))
	src := make([]byte, 4)
	mustRegister(t, e, 2, 1, 1, 5, src, 4)
	mustRegister(t, e, 7, 2, 1, 3, src, 2)
	require.NoError(t, e.InitLogger(false))

	h := e.Header()
	assert.Equal(t, []Region{
		{Slot: 2, Start: HeaderSize, End: HeaderSize + 20},
		{Slot: 7, Start: HeaderSize + 20, End: HeaderSize + 26},
	}, h.Regions())
}
