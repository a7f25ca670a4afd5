package engine

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/datalogger/internal/varsrc"
)

// DefaultBufferCap is the default byte budget for capture buffers.
const DefaultBufferCap = 2048

// Version identifies the engine release.
type Version struct {
	Major    uint8 `json:"major"`
	Minor    uint8 `json:"minor"`
	Revision uint8 `json:"revision"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Revision)
}

// CurrentVersion is reported by Engine.Version.
var CurrentVersion = Version{Major: 0, Minor: 5, Revision: 0}

// Engine samples registered channels into capture buffers.
//
// Thread-safety model:
//   - Service: called from one high-priority periodic goroutine
//   - Tick: called from one low-priority periodic goroutine
//   - everything else: safe from any goroutine
//
// All state is guarded by mu. Tick releases mu around medium writes; tickMu
// keeps concurrent Tick calls from interleaving their jobs.
//
// INVARIANTS:
//   - running is a subset of active
//   - a slot's active bit is set iff RegisterLog filled it and RemoveLog did not clear it
//   - buffers change only in InitLogger, ClearMemory and Reset
type Engine struct {
	mu     sync.Mutex
	tickMu sync.Mutex

	state   State
	pending State
	opMode  OpMode

	channels [MaxChannels]Channel
	active   ChannelSet
	running  ChannelSet

	// RAM mode capture buffer.
	data []byte
	// Mem mode bytes of channel data following the header.
	memLen uint64

	header   Header
	ser      serializer
	overrun  bool
	timeBase uint32

	bufferCap int
	medium    Medium
	onStart   func()
	onStop    func()
	logger    *slog.Logger
	err       error
}

// Option configures an Engine.
type Option func(*Engine)

// WithBufferCap sets the capture buffer budget in bytes.
//
// Default: 2048 (DefaultBufferCap)
func WithBufferCap(n int) Option {
	return func(e *Engine) {
		e.bufferCap = n
	}
}

// WithMedium attaches the non-volatile store used in MemCapture mode.
func WithMedium(m Medium) Option {
	return func(e *Engine) {
		e.medium = m
	}
}

// WithLogger sets the logger. Default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTimeBase sets the sampling frequency recorded in the medium header.
func WithTimeBase(hz uint32) Option {
	return func(e *Engine) {
		e.timeBase = hz
	}
}

// WithStartCallback registers fn to run after every successful Start.
func WithStartCallback(fn func()) Option {
	return func(e *Engine) {
		e.onStart = fn
	}
}

// WithStopCallback registers fn to run after every Stop, including the
// automatic one at the end of a capture.
func WithStopCallback(fn func()) Option {
	return func(e *Engine) {
		e.onStop = fn
	}
}

// New creates an Engine in the Uninitialized state with RamCapture selected.
func New(opts ...Option) *Engine {
	e := &Engine{
		bufferCap: DefaultBufferCap,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Init stores the sampling frequency. It takes effect at the next InitLogger.
func (e *Engine) Init(timeBaseHz uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timeBase = timeBaseHz
}

// TimeBase returns the configured sampling frequency.
func (e *Engine) TimeBase() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timeBase
}

// Reset discards every channel, buffer and error. The time base, callbacks,
// medium, logger and buffer cap survive.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.capturing() {
		return wrongState("Reset", e.state)
	}
	e.state = StateUninitialized
	e.pending = StateUninitialized
	e.opMode = RamCapture
	e.channels = [MaxChannels]Channel{}
	e.active = 0
	e.running = 0
	e.data = nil
	e.memLen = 0
	e.header = Header{}
	e.ser.reset()
	e.overrun = false
	e.err = nil
	e.logger.Info("engine reset")
	return nil
}

// ClearMemory releases every capture buffer. Channel registrations remain.
func (e *Engine) ClearMemory() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.capturing() {
		return wrongState("ClearMemory", e.state)
	}
	e.releaseBuffers()
	e.forceState(StateUninitialized)
	return nil
}

// releaseBuffers drops all capture memory. Caller must hold e.mu.
func (e *Engine) releaseBuffers() {
	e.data = nil
	e.memLen = 0
	for i := range e.channels {
		e.channels[i].release()
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PendingState returns the state computed by the last Tick that has not
// been committed.
func (e *Engine) PendingState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

func (e *Engine) OpMode() OpMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opMode
}

// SetOpMode selects the capture mode. Any prior layout becomes invalid.
func (e *Engine) SetOpMode(m OpMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "SetOpMode"
	if e.state.busy() {
		return wrongState(op, e.state)
	}
	switch m {
	case RamCapture, MemCapture:
	case Live:
		return newError(CodeNotImplemented, op, 0, e.state, "live mode")
	default:
		return newError(CodeWrongOpMode, op, 0, e.state, "unknown mode %d", uint8(m))
	}
	e.opMode = m
	e.forceState(StateUninitialized)
	return nil
}

// Data returns the RAM capture buffer. The caller must not modify it while
// the engine is reused; the next InitLogger replaces it.
func (e *Engine) Data() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "Data"
	if e.opMode != RamCapture {
		return nil, newError(CodeWrongOpMode, op, 0, e.state, "data lives on the medium in %s mode", e.opMode)
	}
	if e.state != StateDataReady {
		return nil, wrongState(op, e.state)
	}
	return e.data, nil
}

// ChannelInfo returns a snapshot of the channel in slot.
func (e *Engine) ChannelInfo(slot int) (ChannelInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !validSlot(slot) {
		return ChannelInfo{}, invalidSlot("ChannelInfo", slot, e.state)
	}
	if !e.active.Has(slot) {
		return ChannelInfo{}, newError(CodeChannelNotActive, "ChannelInfo", slot, e.state, "")
	}
	return e.channels[slot-1].info(slot, e.running.Has(slot)), nil
}

// Active returns the registered slots.
func (e *Engine) Active() ChannelSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Running returns the slots still sampling.
func (e *Engine) Running() ChannelSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// CaptureSize returns the number of data bytes laid out by the last
// InitLogger, excluding the MemCapture header.
func (e *Engine) CaptureSize() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opMode == MemCapture {
		return e.memLen
	}
	return uint64(len(e.data))
}

// Header returns a copy of the medium header.
func (e *Engine) Header() Header {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.header
}

// Serializer returns a snapshot of the drain arbitration state.
func (e *Engine) Serializer() SerializerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ser.snapshot()
}

func (e *Engine) Version() Version {
	return CurrentVersion
}

// Err returns the medium error that put the engine into StateError.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func invalidSlot(op string, slot int, s State) *Error {
	if slot > 0 {
		// Error prints the slot already.
		return newError(CodeInvalidLogNumber, op, slot, s, "outside 1..%d", MaxChannels)
	}
	return newError(CodeInvalidLogNumber, op, slot, s, "slot %d outside 1..%d", slot, MaxChannels)
}

// RegisterLog fills slot with a channel sampling src every divider ticks
// until recordLength samples are taken. The first width bytes of src are
// read at every sample, so src must stay valid while the engine runs.
func (e *Engine) RegisterLog(slot int, id uint32, divider uint16, recordLength uint32, src []byte, width uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "RegisterLog"

	if !validSlot(slot) {
		return invalidSlot(op, slot, e.state)
	}
	if e.state.busy() {
		return wrongState(op, e.state)
	}
	switch {
	case divider == 0:
		return newError(CodeInvalidConfig, op, slot, e.state, "divider must be at least 1")
	case recordLength == 0:
		return newError(CodeInvalidConfig, op, slot, e.state, "record length must be at least 1")
	case width == 0 || width > 8:
		return newError(CodeInvalidConfig, op, slot, e.state, "width %d outside 1..8", width)
	case len(src) < int(width):
		return newError(CodeInvalidConfig, op, slot, e.state, "source holds %d bytes, width is %d", len(src), width)
	}

	ch := &e.channels[slot-1]
	ch.release()
	*ch = Channel{
		ID:           id,
		Divider:      divider,
		RecordLength: recordLength,
		Width:        width,
		src:          src,
	}
	e.header.Channels[slot-1] = Descriptor{ID: id, Divider: divider, ByteWidth: width}
	e.active = e.active.With(slot)
	e.forceState(StateUninitialized)

	e.logger.Debug("channel registered",
		"slot", slot,
		"id", id,
		"divider", divider,
		"record_length", recordLength,
		"width", width,
	)
	return nil
}

// RegisterVariable registers the variable id from src in slot. The channel
// takes the variable's id and byte width.
func (e *Engine) RegisterVariable(slot int, divider uint16, recordLength uint32, src varsrc.Source, id uint32) error {
	b, width, err := src.Resolve(id)
	if err != nil {
		return fmt.Errorf("resolve variable %d: %w", id, err)
	}
	return e.RegisterLog(slot, id, divider, recordLength, b, width)
}

// RemoveLog clears slot.
func (e *Engine) RemoveLog(slot int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "RemoveLog"

	if !validSlot(slot) {
		return invalidSlot(op, slot, e.state)
	}
	if e.state.busy() {
		return wrongState(op, e.state)
	}
	if !e.active.Has(slot) {
		return newError(CodeChannelNotActive, op, slot, e.state, "")
	}
	e.channels[slot-1].release()
	e.channels[slot-1] = Channel{}
	e.header.Channels[slot-1] = Descriptor{}
	e.active = e.active.Without(slot)
	e.forceState(StateUninitialized)

	e.logger.Debug("channel removed", "slot", slot)
	return nil
}

// InitLogger lays out the active channels and allocates their buffers.
//
// RamCapture: one shared buffer of sum(record_length*width) bytes, channels
// packed in slot order from offset 0. The engine is Initialized on return.
//
// MemCapture: two buffers of cap/(2n) bytes per channel, channel regions on
// the medium packed in slot order after the header. A medium is required.
// The engine is in FormatMemory on return and reaches Initialized once Tick
// has written the header.
//
// On failure nothing stays allocated and the state is unchanged.
func (e *Engine) InitLogger(freeExisting bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	const op = "InitLogger"

	if e.state != StateUninitialized {
		return wrongState(op, e.state)
	}
	if e.active.Empty() {
		return newError(CodeNoData, op, 0, e.state, "no channel registered")
	}
	if e.opMode == MemCapture && e.medium == nil {
		return newError(CodeWrongOpMode, op, 0, e.state, "mem mode needs a medium")
	}
	if freeExisting {
		e.releaseBuffers()
	}

	total, err := e.layout()
	if err == nil {
		// SetOpMode only ever stores RamCapture or MemCapture.
		switch e.opMode {
		case RamCapture:
			err = e.allocRAM(total)
		case MemCapture:
			err = e.allocMem(total)
		}
	}
	if err != nil {
		e.releaseBuffers()
		e.logger.Info("layout rejected", "mode", e.opMode, "error", err)
		return err
	}

	if e.opMode == MemCapture {
		e.data = nil
		e.pending = StateFormatMemory
	} else {
		for i := range e.channels {
			e.channels[i].release()
		}
		e.memLen = 0
		e.pending = StateInitialized
	}
	e.setState()

	e.logger.Info("logger initialized",
		"mode", e.opMode,
		"channels", e.active.Len(),
		"bytes", total,
		"state", e.state,
	)
	return nil
}

// Start begins a capture.
func (e *Engine) Start() error {
	e.mu.Lock()
	if e.state != StateInitialized {
		s := e.state
		e.mu.Unlock()
		return wrongState("Start", s)
	}
	for _, slot := range e.active.Slots() {
		e.channels[slot-1].reset()
	}
	e.running = e.active
	e.ser.reset()
	e.overrun = false
	e.err = nil
	e.forceState(StateRunning)
	cb := e.onStart
	e.mu.Unlock()

	e.logger.Info("capture started")
	if cb != nil {
		cb()
	}
	return nil
}

// Stop ends the capture. Channels keep whatever they sampled so far.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if err := e.stopLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	cb := e.onStop
	e.mu.Unlock()

	e.logger.Info("capture stopped")
	if cb != nil {
		cb()
	}
	return nil
}

// stopLocked moves Running to Aborting. Caller must hold e.mu.
func (e *Engine) stopLocked() error {
	if e.state != StateRunning {
		return wrongState("Stop", e.state)
	}
	e.forceState(StateAborting)
	e.ser.arb = 0
	return nil
}
