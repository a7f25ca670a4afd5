// Package session runs one capture plan end to end: it builds the variable
// table, the engine and (in mem mode) the emulated medium, drives the
// sample and state-machine loops, and packages the result for the archive.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/datalogger/internal/engine"
	"github.com/roach88/datalogger/internal/ir"
	"github.com/roach88/datalogger/internal/medium"
	"github.com/roach88/datalogger/internal/varsrc"
)

// settleLimit bounds how many state-machine ticks a session waits for the
// engine outside Running before giving up.
const settleLimit = 1 << 20

// ErrStalled is returned when the engine never reaches the state a session
// waits for.
var ErrStalled = errors.New("engine stalled")

// Session owns the collaborators of one capture.
type Session struct {
	Plan   *ir.CapturePlan
	Engine *engine.Engine
	Table  *varsrc.Table
	Medium *medium.Memory // nil in ram mode

	logger  *slog.Logger
	samples uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger handed to the engine.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// New builds a session for plan and lays out the capture. The plan is
// expected to have passed compiler.ValidatePlan.
func New(plan *ir.CapturePlan, opts ...Option) (*Session, error) {
	s := &Session{
		Plan:   plan,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	table, err := varsrc.FromPlan(plan)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", plan.Name, err)
	}
	s.Table = table

	mode, err := engine.ParseOpMode(plan.Mode)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", plan.Name, err)
	}

	engineOpts := []engine.Option{
		engine.WithLogger(s.logger),
		engine.WithTimeBase(plan.TimeBase),
		engine.WithStartCallback(func() {
			s.logger.Info("capture started", "plan", plan.Name)
		}),
		engine.WithStopCallback(func() {
			s.logger.Info("capture stopped", "plan", plan.Name)
		}),
	}
	if plan.BufferCap > 0 {
		engineOpts = append(engineOpts, engine.WithBufferCap(plan.BufferCap))
	}
	if plan.Medium != nil {
		s.Medium = medium.NewMemory(plan.Medium.Capacity, medium.WithLatency(plan.Medium.Latency))
		engineOpts = append(engineOpts, engine.WithMedium(s.Medium))
	}
	s.Engine = engine.New(engineOpts...)

	if err := s.Engine.SetOpMode(mode); err != nil {
		return nil, fmt.Errorf("session %q: %w", plan.Name, err)
	}
	for _, ch := range plan.Channels {
		v, ok := plan.Variable(ch.Variable)
		if !ok {
			return nil, fmt.Errorf("session %q: slot %d: undeclared variable %q", plan.Name, ch.Slot, ch.Variable)
		}
		if err := s.Engine.RegisterVariable(ch.Slot, ch.Divider, ch.RecordLength, s.Table, v.ID); err != nil {
			return nil, fmt.Errorf("session %q: %w", plan.Name, err)
		}
	}
	if err := s.Engine.InitLogger(true); err != nil {
		return nil, fmt.Errorf("session %q: %w", plan.Name, err)
	}
	return s, nil
}

// Samples returns how many sample periods the session has run.
func (s *Session) Samples() uint64 {
	return s.samples
}

// sample advances the simulated variables and takes one engine sample.
func (s *Session) sample() {
	s.Table.Step(s.samples)
	s.samples++
	s.Engine.Service()
}

// limitReached reports whether the plan's tick budget is spent.
func (s *Session) limitReached() bool {
	return s.Plan.Ticks > 0 && s.samples >= s.Plan.Ticks
}

// prepare ticks the engine until the capture can start, then starts it.
func (s *Session) prepare() error {
	for i := 0; s.Engine.State() != engine.StateInitialized; i++ {
		if i >= settleLimit {
			return fmt.Errorf("prepare: %w in %v", ErrStalled, s.Engine.State())
		}
		if s.Engine.State() == engine.StateError {
			return fmt.Errorf("prepare: %w", s.Engine.Err())
		}
		s.Engine.Tick()
	}
	return s.Engine.Start()
}

// terminal reports whether the engine has nothing left to do.
func terminal(st engine.State) bool {
	return st == engine.StateDataReady || st == engine.StateError
}

// stop ends a running capture early. Losing the race with the engine's own
// stop is fine.
func (s *Session) stop() error {
	if err := s.Engine.Stop(); err != nil && !errors.Is(err, engine.ErrWrongState) {
		return err
	}
	return nil
}

// RunSync runs the capture to completion on the calling goroutine, one
// Service and one Tick per sample period. The result is fully determined
// by the plan.
//
// Cancelling ctx stops the capture; the data taken so far is still
// flushed.
func (s *Session) RunSync(ctx context.Context) error {
	if err := s.prepare(); err != nil {
		return err
	}

	idle := 0
	for !terminal(s.Engine.State()) {
		if s.Engine.State() == engine.StateRunning {
			if ctx.Err() != nil || s.limitReached() {
				if err := s.stop(); err != nil {
					return err
				}
			} else {
				s.sample()
			}
		} else {
			idle++
			if idle > settleLimit {
				return fmt.Errorf("run: %w in %v", ErrStalled, s.Engine.State())
			}
		}
		s.Engine.Tick()
	}
	return s.finish()
}

// Run runs the capture in real time: a sampler goroutine calls Service
// once per time-base period while a second goroutine drives the state
// machine at the same rate.
func (s *Session) Run(ctx context.Context) error {
	if s.Plan.TimeBase == 0 {
		return fmt.Errorf("run: plan %q has no time base", s.Plan.Name)
	}
	period := time.Second / time.Duration(s.Plan.TimeBase)
	if period <= 0 {
		return fmt.Errorf("run: time base %d Hz is above the 1 GHz timer resolution", s.Plan.TimeBase)
	}

	if err := s.prepare(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for s.Engine.State() == engine.StateRunning {
			select {
			case <-gctx.Done():
				return s.stop()
			case <-ticker.C:
			}
			if s.limitReached() {
				return s.stop()
			}
			s.sample()
		}
		return nil
	})

	// The state machine ignores cancellation: once the sampler has stopped
	// the capture, the flush still has to reach the medium.
	g.Go(func() error {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		idle := 0
		for {
			<-ticker.C
			s.Engine.Tick()
			st := s.Engine.State()
			if terminal(st) {
				return nil
			}
			if st != engine.StateRunning {
				idle++
				if idle > settleLimit {
					return fmt.Errorf("run: %w in %v", ErrStalled, st)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return s.finish()
}

func (s *Session) finish() error {
	s.logger.Info("capture finished",
		"plan", s.Plan.Name,
		"state", s.Engine.State(),
		"samples", s.samples,
		"overrun", s.Engine.Overrun(),
	)
	if s.Engine.State() == engine.StateError {
		return fmt.Errorf("capture %q: %w", s.Plan.Name, s.Engine.Err())
	}
	return nil
}

// Capture packages the finished capture for the archive. In mem mode the
// header and every channel region are read back from the medium; the header
// found there must match the engine's layout.
func (s *Session) Capture() (ir.Capture, error) {
	c := ir.Capture{
		PlanName:      s.Plan.Name,
		Plan:          *s.Plan,
		Mode:          s.Engine.OpMode().String(),
		FinalState:    s.Engine.State().String(),
		Overrun:       s.Engine.Overrun(),
		Ticks:         s.samples,
		TimeBase:      s.Engine.TimeBase(),
		EngineVersion: s.Engine.Version().String(),
		PlanVersion:   ir.PlanVersion,
		Data:          []byte{},
	}

	var base uint32
	switch s.Engine.OpMode() {
	case engine.MemCapture:
		if s.Medium == nil {
			return c, fmt.Errorf("capture %q: mem mode without a medium", s.Plan.Name)
		}
		base = engine.HeaderSize
		h, regions, err := s.Medium.Image()
		if err != nil {
			return c, fmt.Errorf("read medium: %w", err)
		}
		if h != s.Engine.Header() {
			return c, fmt.Errorf("capture %q: medium header does not match the engine layout", s.Plan.Name)
		}
		header, err := h.MarshalBinary()
		if err != nil {
			return c, err
		}
		c.Header = header
		for _, r := range h.Regions() {
			c.Data = append(c.Data, regions[r.Slot]...)
		}
	default:
		if s.Engine.State() == engine.StateDataReady {
			data, err := s.Engine.Data()
			if err != nil {
				return c, err
			}
			c.Data = append([]byte(nil), data...)
		}
	}

	for _, ch := range s.Plan.Channels {
		info, err := s.Engine.ChannelInfo(ch.Slot)
		if err != nil {
			return c, err
		}
		c.Channels = append(c.Channels, ir.CaptureChannel{
			Slot:         ch.Slot,
			ChannelID:    info.ID,
			Variable:     ch.Variable,
			Width:        info.Width,
			Divider:      info.Divider,
			RecordLength: info.RecordLength,
			Offset:       info.Offset - base,
			Samples:      info.Count,
		})
	}
	sort.Slice(c.Channels, func(i, j int) bool { return c.Channels[i].Slot < c.Channels[j].Slot })
	return c, nil
}
