package engine

// Channel is one logged variable: its configuration plus the runtime state
// of the capture in progress.
type Channel struct {
	// Configuration, set by RegisterLog.
	ID           uint32
	Divider      uint16
	RecordLength uint32
	Width        uint8
	src          []byte

	// Layout, set by InitLogger.
	Offset    uint32 // first byte of the channel's region (RAM buffer or medium)
	Threshold uint32 // Mem mode: fill level that requests a drain

	// Mem mode ping-pong buffers. The sampler fills bufs[sel]; the drain
	// consumer flips sel and writes out the other one.
	bufs [2][]byte
	sel  uint8

	// Runtime counters, reset by Start.
	valIdx    uint32 // samples in bufs[sel]
	memPos    uint32 // next medium address for this channel
	count     uint32 // samples taken in this capture
	countdown uint16 // ticks until the next sample
}

// ChannelInfo is a read-only snapshot of a channel.
type ChannelInfo struct {
	Slot         int    `json:"slot"`
	ID           uint32 `json:"id"`
	Divider      uint16 `json:"divider"`
	RecordLength uint32 `json:"record_length"`
	Width        uint8  `json:"width"`
	Offset       uint32 `json:"offset"`
	Threshold    uint32 `json:"threshold,omitempty"`
	Count        uint32 `json:"count"`
	FillIndex    uint32 `json:"fill_index,omitempty"`
	Buffer       uint8  `json:"buffer,omitempty"`
	MemPos       uint32 `json:"mem_pos,omitempty"`
	Running      bool   `json:"running"`
}

// regionSize is the number of bytes the channel occupies in the layout.
func (c *Channel) regionSize() uint64 {
	return uint64(c.RecordLength) * uint64(c.Width)
}

// reset prepares the run counters for a new capture. The countdown starts at
// the divider so the first sample lands one full period after Start.
func (c *Channel) reset() {
	c.sel = 0
	c.valIdx = 0
	c.count = 0
	c.countdown = c.Divider
	c.memPos = c.Offset
}

// release drops the channel's buffers.
func (c *Channel) release() {
	c.bufs = [2][]byte{}
	c.Threshold = 0
}

// copyReversed stores the current source value into dst, last byte first.
// The on-storage format is big-endian on little-endian hosts.
func (c *Channel) copyReversed(dst []byte) {
	w := int(c.Width)
	for j := 0; j < w; j++ {
		dst[j] = c.src[w-1-j]
	}
}

func (c *Channel) info(slot int, running bool) ChannelInfo {
	return ChannelInfo{
		Slot:         slot,
		ID:           c.ID,
		Divider:      c.Divider,
		RecordLength: c.RecordLength,
		Width:        c.Width,
		Offset:       c.Offset,
		Threshold:    c.Threshold,
		Count:        c.count,
		FillIndex:    c.valIdx,
		Buffer:       c.sel,
		MemPos:       c.memPos,
		Running:      running,
	}
}
