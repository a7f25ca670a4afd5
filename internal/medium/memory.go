// Package medium provides a RAM-backed stand-in for the non-volatile store
// the engine drains MemCapture data into.
package medium

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/datalogger/internal/engine"
)

// ErrOutOfRange is returned for writes that do not fit the medium.
var ErrOutOfRange = errors.New("write outside medium")

// WriteRecord describes one completed write.
type WriteRecord struct {
	Addr uint32 `json:"addr" yaml:"addr"`
	Len  int    `json:"len" yaml:"len"`
}

// Memory emulates a byte-addressable store with a fixed busy period after
// every write.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	buf     []byte
	latency int
	busy    int
	writes  []WriteRecord
	failErr error
}

var _ engine.Medium = (*Memory)(nil)

// Option configures a Memory.
type Option func(*Memory)

// WithLatency makes Idle report false for n polls after each write.
func WithLatency(n int) Option {
	return func(m *Memory) {
		m.latency = n
	}
}

// NewMemory creates an erased medium of the given capacity. Erased bytes
// read as 0xFF.
func NewMemory(capacity uint32, opts ...Option) *Memory {
	m := &Memory{buf: make([]byte, capacity)}
	for i := range m.buf {
		m.buf[i] = 0xFF
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Idle implements engine.Medium. Each poll while busy counts down the busy
// period.
func (m *Memory) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy > 0 {
		m.busy--
		return false
	}
	return true
}

// Write implements engine.Medium.
func (m *Memory) Write(addr uint32, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr; err != nil {
		m.failErr = nil
		return err
	}
	end := uint64(addr) + uint64(len(p))
	if end > uint64(len(m.buf)) {
		return fmt.Errorf("%w: [%d, %d) beyond %d bytes", ErrOutOfRange, addr, end, len(m.buf))
	}
	copy(m.buf[addr:], p)
	m.busy = m.latency
	m.writes = append(m.writes, WriteRecord{Addr: addr, Len: len(p)})
	return nil
}

// Capacity implements engine.Medium.
func (m *Memory) Capacity() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(len(m.buf))
}

// FailNext makes the next Write return err without storing anything.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// ReadAt returns a copy of n bytes starting at addr.
func (m *Memory) ReadAt(addr uint32, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := uint64(addr) + uint64(n)
	if end > uint64(len(m.buf)) {
		return nil, fmt.Errorf("%w: [%d, %d) beyond %d bytes", ErrOutOfRange, addr, end, len(m.buf))
	}
	out := make([]byte, n)
	copy(out, m.buf[addr:])
	return out, nil
}

// Writes returns the completed writes in order.
func (m *Memory) Writes() []WriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteRecord, len(m.writes))
	copy(out, m.writes)
	return out
}

// Header decodes the capture header at address 0.
func (m *Memory) Header() (engine.Header, error) {
	var h engine.Header
	b, err := m.ReadAt(0, engine.HeaderSize)
	if err != nil {
		return h, err
	}
	if err := h.UnmarshalBinary(b); err != nil {
		return h, err
	}
	return h, nil
}

// Image returns the header and every channel's region, keyed by slot.
func (m *Memory) Image() (engine.Header, map[int][]byte, error) {
	h, err := m.Header()
	if err != nil {
		return h, nil, fmt.Errorf("read header: %w", err)
	}
	out := make(map[int][]byte)
	for _, r := range h.Regions() {
		if r.End < r.Start {
			return h, nil, fmt.Errorf("slot %d: corrupt region [%d, %d)", r.Slot, r.Start, r.End)
		}
		b, err := m.ReadAt(r.Start, int(r.End-r.Start))
		if err != nil {
			return h, nil, fmt.Errorf("slot %d: %w", r.Slot, err)
		}
		out[r.Slot] = b
	}
	return h, out, nil
}
