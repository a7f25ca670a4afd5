package engine

// ArbitrationBufferSize is the capacity of the drain request ring.
const ArbitrationBufferSize = 20

// serializer decides which channel's half-buffer is written to the medium
// next. The sampler raises a channel's flag when its fill level reaches the
// retrieve threshold; arbitration moves flagged channels into a FIFO ring in
// round-robin order; the drain consumer pops the ring.
//
// All fields are guarded by the owning Engine's mutex.
type serializer struct {
	ring     [ArbitrationBufferSize]uint8
	fill     uint8
	retrieve uint8
	arb      uint8
	flags    ChannelSet
}

// SerializerState is a snapshot of the arbitration bookkeeping.
type SerializerState struct {
	Queue            []int      `json:"queue"`
	FillIndex        int        `json:"fill_index"`
	RetrieveIndex    int        `json:"retrieve_index"`
	ArbitrationCount int        `json:"arbitration_count"`
	Flags            ChannelSet `json:"flags"`
}

func (s *serializer) reset() {
	*s = serializer{}
}

func (s *serializer) raise(slot int) {
	s.flags = s.flags.With(slot)
}

func (s *serializer) empty() bool {
	return s.fill == s.retrieve
}

func (s *serializer) full() bool {
	return (s.fill+1)%ArbitrationBufferSize == s.retrieve
}

func (s *serializer) len() int {
	return (int(s.fill) - int(s.retrieve) + ArbitrationBufferSize) % ArbitrationBufferSize
}

// arbitrate examines the channel selected by the round-robin counter and, if
// it asked for a drain, queues it. The counter walks the active channels in
// slot order independently of whether anything was queued.
func (s *serializer) arbitrate(active ChannelSet) {
	n := active.Len()
	if n == 0 {
		s.arb = 0
		return
	}
	if int(s.arb) >= n {
		s.arb = 0
	}

	slot, _ := active.Nth(int(s.arb))
	if s.flags.Has(slot) && !s.full() {
		s.ring[s.fill] = uint8(slot)
		s.fill = (s.fill + 1) % ArbitrationBufferSize
		s.flags = s.flags.Without(slot)
	}

	s.arb++
	if int(s.arb) >= n {
		s.arb = 0
	}
}

// peek returns the slot at the retrieve position.
func (s *serializer) peek() (int, bool) {
	if s.empty() {
		return 0, false
	}
	return int(s.ring[s.retrieve]), true
}

// advance consumes the slot at the retrieve position.
func (s *serializer) advance() {
	if s.empty() {
		return
	}
	s.retrieve = (s.retrieve + 1) % ArbitrationBufferSize
}

func (s *serializer) snapshot() SerializerState {
	q := make([]int, 0, s.len())
	for i := s.retrieve; i != s.fill; i = (i + 1) % ArbitrationBufferSize {
		q = append(q, int(s.ring[i]))
	}
	return SerializerState{
		Queue:            q,
		FillIndex:        int(s.fill),
		RetrieveIndex:    int(s.retrieve),
		ArbitrationCount: int(s.arb),
		Flags:            s.flags,
	}
}
