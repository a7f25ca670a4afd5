package engine

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
)

// Header precedes the channel data on the medium in MemCapture mode.
//
// Wire layout, big-endian, no padding:
//
//	time_base    u32
//	last_address u32
//	descriptor   [8]{ id u32, divider u16, offset u32, byte_width u8 }
type Header struct {
	TimeBase    uint32                  `json:"time_base"`
	LastAddress uint32                  `json:"last_address"`
	Channels    [MaxChannels]Descriptor `json:"channels"`
}

// Descriptor describes one channel's region on the medium.
type Descriptor struct {
	ID        uint32 `json:"id"`
	Divider   uint16 `json:"divider"`
	Offset    uint32 `json:"offset"`
	ByteWidth uint8  `json:"byte_width"`
}

const descriptorSize = 4 + 2 + 4 + 1

// HeaderSize is the encoded size of Header and the offset of the first
// channel's data on the medium.
const HeaderSize = 4 + 4 + MaxChannels*descriptorSize

// MarshalBinary encodes the header in its on-medium layout.
func (h *Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, HeaderSize)
	b = binary.BigEndian.AppendUint32(b, h.TimeBase)
	b = binary.BigEndian.AppendUint32(b, h.LastAddress)
	for _, d := range h.Channels {
		b = binary.BigEndian.AppendUint32(b, d.ID)
		b = binary.BigEndian.AppendUint16(b, d.Divider)
		b = binary.BigEndian.AppendUint32(b, d.Offset)
		b = append(b, d.ByteWidth)
	}
	return b, nil
}

// UnmarshalBinary decodes a header written by MarshalBinary.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("header: need %d bytes, got %d", HeaderSize, len(b))
	}
	h.TimeBase = binary.BigEndian.Uint32(b[0:])
	h.LastAddress = binary.BigEndian.Uint32(b[4:])
	p := b[8:]
	for i := range h.Channels {
		h.Channels[i] = Descriptor{
			ID:        binary.BigEndian.Uint32(p[0:]),
			Divider:   binary.BigEndian.Uint16(p[4:]),
			Offset:    binary.BigEndian.Uint32(p[6:]),
			ByteWidth: p[10],
		}
		p = p[descriptorSize:]
	}
	return nil
}

// layout assigns cumulative offsets to the active channels in ascending slot
// order and returns the number of data bytes they occupy. The first channel
// starts at 0 in RAM mode and right after the header in Mem mode.
// Caller must hold e.mu.
func (e *Engine) layout() (uint64, error) {
	var base uint64
	if e.opMode == MemCapture {
		base = HeaderSize
	}

	pos := base
	for _, slot := range e.active.Slots() {
		ch := &e.channels[slot-1]
		off, err := safecast.Conv[uint32](pos)
		if err != nil {
			return 0, newError(CodeOutOfMemory, "InitLogger", slot, e.state,
				"offset %d exceeds address space", pos)
		}
		ch.Offset = off
		e.header.Channels[slot-1].Offset = off
		pos += ch.regionSize()
	}
	return pos - base, nil
}

// allocRAM gives every active channel its slice of one shared, zeroed buffer.
// Caller must hold e.mu.
func (e *Engine) allocRAM(total uint64) error {
	if total > uint64(e.bufferCap) {
		return newError(CodeOutOfMemory, "InitLogger", 0, e.state,
			"need %d bytes, cap is %d", total, e.bufferCap)
	}
	n, err := safecast.Conv[int](total)
	if err != nil {
		return newError(CodeOutOfMemory, "InitLogger", 0, e.state, "%v", err)
	}
	e.data = make([]byte, n)
	return nil
}

// allocMem gives every active channel two equal halves of the buffer cap and
// fills in the medium header. Caller must hold e.mu.
func (e *Engine) allocMem(total uint64) error {
	slots := e.active.Slots()
	size := e.bufferCap / (2 * len(slots))

	for _, slot := range slots {
		ch := &e.channels[slot-1]
		threshold := size / int(ch.Width) / 4
		if threshold == 0 {
			return newError(CodeOutOfMemory, "InitLogger", slot, e.state,
				"%d-byte buffer too small for %d-byte samples", size, ch.Width)
		}
		th, err := safecast.Conv[uint32](threshold)
		if err != nil {
			return newError(CodeOutOfMemory, "InitLogger", slot, e.state, "%v", err)
		}
		ch.Threshold = th
	}

	last := &e.channels[slots[len(slots)-1]-1]
	end := uint64(last.Offset) + last.regionSize() - 1
	lastAddr, err := safecast.Conv[uint32](end)
	if err != nil {
		return newError(CodeOutOfMemory, "InitLogger", 0, e.state, "%v", err)
	}
	if e.medium != nil && uint64(lastAddr) >= uint64(e.medium.Capacity()) {
		return newError(CodeOutOfMemory, "InitLogger", 0, e.state,
			"capture ends at %d, medium holds %d bytes", lastAddr, e.medium.Capacity())
	}

	// Allocate only after every check passed so a failure leaves nothing behind.
	for _, slot := range slots {
		ch := &e.channels[slot-1]
		ch.bufs = [2][]byte{make([]byte, size), make([]byte, size)}
	}
	e.header.LastAddress = lastAddr
	e.header.TimeBase = e.timeBase
	e.memLen = total
	return nil
}

// Region is the byte range [Start, End) a channel occupies on the medium.
type Region struct {
	Slot  int
	Start uint32
	End   uint32
}

// Regions recovers the channel regions from a header: each registered
// channel ends where the next one starts, the last one at LastAddress.
func (h *Header) Regions() []Region {
	var out []Region
	for i, d := range h.Channels {
		if d.ByteWidth == 0 {
			continue
		}
		if n := len(out); n > 0 {
			out[n-1].End = d.Offset
		}
		out = append(out, Region{Slot: i + 1, Start: d.Offset})
	}
	if n := len(out); n > 0 {
		out[n-1].End = h.LastAddress + 1
	}
	return out
}
