package engine

// Service takes one time-base tick. Every running channel counts down its
// divider and samples its source when the countdown expires. The capture
// stops on its own once every channel has its record length, or at once when
// a MemCapture channel fills twice its threshold before being drained.
//
// Service does nothing unless the engine is Running.
func (e *Engine) Service() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}

	for pending := e.running; !pending.Empty(); {
		slot := pending.lowest()
		pending = pending.Without(slot)

		ch := &e.channels[slot-1]
		ch.countdown--
		if ch.countdown > 0 {
			continue
		}
		ch.countdown = ch.Divider

		w := uint32(ch.Width)
		switch e.opMode {
		case RamCapture:
			at := ch.Offset + ch.count*w
			ch.copyReversed(e.data[at : at+w])
		case MemCapture:
			at := ch.valIdx * w
			ch.copyReversed(ch.bufs[ch.sel][at : at+w])
			ch.valIdx++
			switch ch.valIdx {
			case ch.Threshold:
				e.ser.raise(slot)
			case 2 * ch.Threshold:
				e.overrun = true
				e.logger.Error("drain overrun", "slot", slot, "fill", ch.valIdx)
			}
		}

		ch.count++
		if ch.count >= ch.RecordLength {
			e.running = e.running.Without(slot)
		}
	}

	if !e.running.SubsetOf(e.active) {
		e.logger.Error("running channels outside the active set",
			"running", e.running.Slots(),
			"active", e.active.Slots(),
		)
	}

	if !e.overrun && !e.running.Empty() {
		e.mu.Unlock()
		return
	}
	_ = e.stopLocked()
	cb := e.onStop
	overrun := e.overrun
	e.mu.Unlock()

	e.logger.Info("capture complete", "overrun", overrun)
	if cb != nil {
		cb()
	}
}

// Overrun reports whether the last capture stopped because a drain came too
// late.
func (e *Engine) Overrun() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overrun
}
