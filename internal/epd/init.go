package epd

import (
	"context"
	"fmt"
	"image"

	appLog "epdctl/internal/log"
)

// Initialize resets the panel and runs the controller power-up sequence for
// mode. It may be called at any time; it discards the previous session state,
// clears the degraded flag and is the only way out of StateSleeping. If it
// fails the session stays uninitialized.
func (d *Driver) Initialize(ctx context.Context, mode RefreshMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialize(ctx, mode)
}

// Wake re-runs Initialize with the mode of the last initialization.
func (d *Driver) Wake(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialize(ctx, d.mode)
}

func (d *Driver) initialize(ctx context.Context, mode RefreshMode) error {
	if !d.opts.Variant.supports(mode) {
		return fmt.Errorf("%w: %s on %s", ErrUnsupportedMode, mode, d.opts.Variant)
	}

	d.setState(StateUninitialized)
	d.degraded.Store(false)
	d.lutLoaded = false
	d.regLUTLoaded = false

	if err := d.reset(); err != nil {
		appLog.Error("epd reset failed", err)
		return fmt.Errorf("epd: initialize %s: %w", mode, err)
	}

	s := d.newSeq(ctx)
	switch d.opts.Variant {
	case FourWireFlashLUT:
		d.initFlash(s, mode)
	case NoFlashRegisterLUT:
		d.initNoFlash(s)
	}
	if s.err != nil {
		appLog.Error("epd initialize failed", s.err, "mode", mode, "variant", d.opts.Variant)
		return fmt.Errorf("epd: initialize %s: %w", mode, s.err)
	}

	if d.opts.Variant == FourWireFlashLUT {
		// Both RAM planes were auto-filled white.
		fill(d.prev, 0xFF)
		fill(d.next, 0xFF)
	}
	d.mode = mode
	d.modeSnap.Store(int32(mode))
	d.setState(StateIdle)
	appLog.Info("epd initialized", "mode", mode, "variant", d.opts.Variant, "geometry", d.opts.Geometry)
	return nil
}

func (d *Driver) initFlash(s *seq, mode RefreshMode) {
	g := d.opts.Geometry

	// Wake from deep sleep, then soft reset.
	s.command(cmdPowerOn)
	s.waitIdle()
	s.command(cmdSoftReset)
	s.waitIdle()

	// Fill both RAM planes so no stale image survives the reset.
	s.command(cmdAutoWriteRed, autoWriteFill)
	s.waitIdle()
	s.command(cmdAutoWriteBW, autoWriteFill)
	s.waitIdle()

	s.command(cmdGateSetting, lo(g.Height-1), hi(g.Height-1), 0x00)
	s.command(cmdGateVoltage, 0x00)
	s.command(cmdSourceVoltage, 0x41, 0xA8, 0x32)
	s.command(cmdDataEntryMode, 0x03) // X then Y increment
	s.command(cmdBorder, 0x03)
	s.command(cmdBoosterStrength, 0xAE, 0xC7, 0xC3, 0xC0, 0xC0)
	s.command(cmdSensorEnable, 0x80)
	s.command(cmdVCOM, 0x44)
	s.command(cmdDisplayOption, displayOption(mode.Depth())...)
	d.setWindow(s, g.Bounds())
	s.command(cmdUpdateControl, updateFlagsInit)

	d.loadFlashLUT(s, mode)
}

func (d *Driver) initNoFlash(s *seq) {
	g := d.opts.Geometry

	s.command(ucPowerSetting, 0x03, 0x10, 0x3F, 0x3F, 0x0D)
	s.command(ucPanelSetting, panelSettingOTP)
	s.command(ucResolution, hi(g.Width), lo(g.Width), hi(g.Height), lo(g.Height))
	s.command(ucVCOMInterval, 0x97)
	s.command(ucPowerOn)
	s.waitIdle()
}

// setWindow points the flash controller's RAM window and write cursor at r.
// X addresses are in pixels.
func (d *Driver) setWindow(s *seq, r image.Rectangle) {
	s.command(cmdXWindow, lo(r.Min.X), hi(r.Min.X), lo(r.Max.X-1), hi(r.Max.X-1))
	s.command(cmdYWindow, lo(r.Min.Y), hi(r.Min.Y), lo(r.Max.Y-1), hi(r.Max.Y-1))
	s.command(cmdXCursor, lo(r.Min.X), hi(r.Min.X))
	s.command(cmdYCursor, lo(r.Min.Y), hi(r.Min.Y))
}

// loadFlashLUT uploads the waveform for mode unless it is already active.
func (d *Driver) loadFlashLUT(s *seq, mode RefreshMode) {
	if s.err != nil || (d.lutLoaded && d.lutMode == mode) {
		return
	}
	d.lutLoaded = false
	s.command(cmdWriteLUT)
	s.data(flashLUTFor(mode))
	s.waitIdle()
	if s.err == nil {
		d.lutLoaded = true
		d.lutMode = mode
		appLog.Debug("epd lut loaded", "mode", mode)
	}
}

// loadRegisterLUTs writes the five differential sub-tables once per session.
func (d *Driver) loadRegisterLUTs(s *seq) {
	if s.err != nil || d.regLUTLoaded {
		return
	}
	for _, t := range noFlashLUTs {
		s.command(t.reg)
		s.data(t.data)
	}
	if s.err == nil {
		d.regLUTLoaded = true
		appLog.Debug("epd register luts loaded", "tables", len(noFlashLUTs))
	}
}

func lo(v int) byte { return byte(v) }
func hi(v int) byte { return byte(v >> 8) }
