package engine

// Medium is the non-volatile store MemCapture drains into. The engine only
// decides what to write and when; implementations own the I/O.
type Medium interface {
	// Idle reports whether the medium can accept a write now.
	Idle() bool
	// Write stores p at byte address addr.
	Write(addr uint32, p []byte) error
	// Capacity is the number of addressable bytes.
	Capacity() uint32
}

type jobKind string

const (
	jobHeader jobKind = "header"
	jobDrain  jobKind = "drain"
	jobFlush  jobKind = "flush"
)

// writeJob is a medium write prepared under the engine lock and issued
// after it is released.
type writeJob struct {
	kind jobKind
	slot int
	addr uint32
	data []byte
}

func (e *Engine) mediumReady() bool {
	return e.medium != nil && e.medium.Idle()
}

// headerJob prepares the header write that leaves FormatMemory.
// Caller must hold e.mu.
func (e *Engine) headerJob() *writeJob {
	if !e.mediumReady() {
		return nil
	}
	b, _ := e.header.MarshalBinary()
	return &writeJob{kind: jobHeader, addr: 0, data: b}
}

// drainJob pops the next drain request and switches that channel to its
// other buffer. The returned data aliases the buffer just retired; the
// sampler does not touch it again until the next switch, which can only
// happen after this write was issued.
// Caller must hold e.mu.
func (e *Engine) drainJob() *writeJob {
	if !e.mediumReady() {
		return nil
	}
	slot, ok := e.ser.peek()
	if !ok {
		return nil
	}
	e.ser.advance()
	if !e.active.Has(slot) {
		return nil
	}
	ch := &e.channels[slot-1]
	job := e.retire(ch, slot, jobDrain)
	ch.sel ^= 1
	return job
}

// flushJob drains what is left once sampling stopped: queued requests first,
// then each channel's partial fill in round-robin order. done is true once
// every channel is empty.
// Caller must hold e.mu.
func (e *Engine) flushJob() (job *writeJob, done bool) {
	if !e.ser.empty() {
		return e.drainJob(), false
	}
	if !e.mediumReady() {
		return nil, false
	}

	slots := e.active.Slots()
	for int(e.ser.arb) < len(slots) {
		slot := slots[e.ser.arb]
		e.ser.arb++
		ch := &e.channels[slot-1]
		if ch.valIdx > 0 {
			return e.retire(ch, slot, jobFlush), false
		}
	}
	e.ser.flags = 0
	return nil, true
}

// retire turns the filled part of the channel's active buffer into a write
// at the channel's current medium position and advances the bookkeeping.
func (e *Engine) retire(ch *Channel, slot int, kind jobKind) *writeJob {
	n := ch.valIdx * uint32(ch.Width)
	job := &writeJob{
		kind: kind,
		slot: slot,
		addr: ch.memPos,
		data: ch.bufs[ch.sel][:n],
	}
	ch.memPos += n
	ch.valIdx = 0
	return job
}

// fail records a medium error and parks the engine in the error state.
// Caller must hold e.mu.
func (e *Engine) fail(job *writeJob, err error) {
	e.logger.Error("medium write failed",
		"kind", job.kind,
		"slot", job.slot,
		"addr", job.addr,
		"error", err,
	)
	e.err = err
	e.forceState(StateError)
}
