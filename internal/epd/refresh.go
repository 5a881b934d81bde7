package epd

import (
	"context"
	"fmt"
	"image"

	appLog "epdctl/internal/log"
)

// RequestRefresh redraws the panel from its RAM using mode and blocks until
// the busy line reports idle. Differential modes first hand the controller
// the previous image so only transitioning pixels are driven. On success the
// "old" frame slot becomes a copy of the "new" one.
//
// A failure before the refresh trigger leaves the session idle. A failure at
// or after the trigger marks the session degraded; only Initialize clears
// that.
func (d *Driver) RequestRefresh(ctx context.Context, mode RefreshMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refresh(ctx, mode)
}

func (d *Driver) refresh(ctx context.Context, mode RefreshMode) error {
	if err := d.ready(); err != nil {
		return fmt.Errorf("epd: refresh %s: %w", mode, err)
	}
	if !d.opts.Variant.supports(mode) {
		return fmt.Errorf("epd: refresh: %w: %s on %s", ErrUnsupportedMode, mode, d.opts.Variant)
	}
	if mode.Depth() != d.mode.Depth() {
		return fmt.Errorf("epd: refresh: %w: %s needs a %d-bit session, initialized for %s",
			ErrUnsupportedMode, mode, mode.Depth(), d.mode)
	}

	d.setState(StateRefreshing)
	defer d.setState(StateIdle)

	v := d.opts.Variant
	s := d.newSeq(ctx)
	switch v {
	case FourWireFlashLUT:
		if mode.Differential() {
			d.setWindow(s, d.opts.Geometry.Bounds())
			s.command(cmdWriteRAMPlaneB)
			s.data(d.prev)
		}
		d.loadFlashLUT(s, mode)
	case NoFlashRegisterLUT:
		if mode.Differential() {
			d.loadRegisterLUTs(s)
		}
		s.command(ucTransmission1)
		s.data(d.prev)
	}
	step := v.updateStep(mode)
	s.command(step.cmd, step.flag)
	if s.err != nil {
		appLog.Error("epd refresh setup failed", s.err, "mode", mode)
		return fmt.Errorf("epd: refresh %s: %w", mode, s.err)
	}

	// From here on the panel may already be changing.
	s.command(v.triggerCmd())
	s.waitIdle()
	if s.err != nil {
		d.degraded.Store(true)
		appLog.Error("epd refresh failed, session degraded", s.err, "mode", mode)
		return fmt.Errorf("epd: refresh %s: %w", mode, s.err)
	}

	copy(d.prev, d.next)
	n := d.refreshes.Add(1)
	appLog.Debug("epd refreshed", "mode", mode, "count", n)
	return nil
}

// Sleep puts the panel into deep sleep. Every later operation fails with
// ErrDriverAsleep until Wake or Initialize. Sleep is allowed on a degraded
// session so shutdown can still park the panel.
func (d *Driver) Sleep(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.State() {
	case StateSleeping:
		return fmt.Errorf("epd: sleep: %w", ErrDriverAsleep)
	case StateUninitialized:
		return fmt.Errorf("epd: sleep: %w", ErrNotInitialized)
	}

	s := d.newSeq(ctx)
	switch d.opts.Variant {
	case FourWireFlashLUT:
		s.command(cmdDeepSleep, deepSleepFlash)
	case NoFlashRegisterLUT:
		s.command(ucPowerOff)
		s.waitIdle()
		s.command(ucDeepSleep, deepSleepCheck)
	}
	if s.err != nil {
		d.degraded.Store(true)
		appLog.Error("epd sleep failed, session degraded", s.err)
		return fmt.Errorf("epd: sleep: %w", s.err)
	}

	// Deep sleep drops controller registers.
	d.lutLoaded = false
	d.regLUTLoaded = false
	d.setState(StateSleeping)
	appLog.Info("epd asleep")
	return nil
}

// Clear writes an all-white frame and refreshes with mode.
func (d *Driver) Clear(ctx context.Context, mode RefreshMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// All ones is white at both depths (2-bit level 3).
	white := filledFrame(d.opts.Geometry.FrameSize(d.mode.Depth()), 0xFF)
	if err := d.transferFrame(white); err != nil {
		return err
	}
	return d.refresh(ctx, mode)
}

// Display transfers a full frame and refreshes it in one locked step.
func (d *Driver) Display(ctx context.Context, buf []byte, mode RefreshMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.transferFrame(buf); err != nil {
		return err
	}
	return d.refresh(ctx, mode)
}

// DisplayWindow transfers a 1-bit window and refreshes with mode in one
// locked step.
func (d *Driver) DisplayWindow(ctx context.Context, r image.Rectangle, buf []byte, mode RefreshMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.transferWindow(r, buf); err != nil {
		return err
	}
	return d.refresh(ctx, mode)
}

// MaintenanceRefresh runs a flashing full refresh of what the panel RAM
// already holds, clearing ghosting left by differential updates.
func (d *Driver) MaintenanceRefresh(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	mode := FullRefresh1Bit
	if d.mode.Depth() == Depth2Bit {
		mode = FullRefreshGrayscale
	}
	appLog.Info("epd maintenance refresh", "mode", mode)
	return d.refresh(ctx, mode)
}
