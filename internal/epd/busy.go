package epd

import (
	"context"
	"fmt"
	"time"
)

// waitIdle polls the busy line every PollInterval until it leaves the busy
// level, then waits IdleSettle. It fails with ErrBusyTimeout once BusyTimeout
// has elapsed and never retries. Cancelling ctx aborts the wait.
func (d *Driver) waitIdle(ctx context.Context) error {
	t := d.opts.Timing
	start := d.now()
	polls := 0
	for d.busy.Read() == d.busyLevel {
		if elapsed := d.now().Sub(start); elapsed >= t.BusyTimeout {
			return fmt.Errorf("%w: still busy after %s (%d polls)", ErrBusyTimeout, elapsed.Round(time.Millisecond), polls)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("epd: busy wait aborted: %w", err)
		}
		d.delay(t.PollInterval)
		polls++
	}
	d.delay(t.IdleSettle)
	return nil
}

// seq runs a sequence of bus operations and keeps the first error. Once an
// error is recorded every later step is skipped.
type seq struct {
	d   *Driver
	ctx context.Context
	err error
}

func (d *Driver) newSeq(ctx context.Context) *seq {
	return &seq{d: d, ctx: ctx}
}

// command sends op followed by an optional data payload.
func (s *seq) command(op byte, data ...byte) {
	if s.err != nil {
		return
	}
	if s.err = s.d.bus.sendCommand(op); s.err != nil {
		return
	}
	if len(data) > 0 {
		s.err = s.d.bus.sendData(data)
	}
}

// data sends a payload that is not part of a command literal.
func (s *seq) data(p []byte) {
	if s.err != nil {
		return
	}
	s.err = s.d.bus.sendData(p)
}

func (s *seq) waitIdle() {
	if s.err != nil {
		return
	}
	s.err = s.d.waitIdle(s.ctx)
}
