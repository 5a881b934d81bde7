package epd

import (
	"context"
	"fmt"
	"image"

	"epdctl/internal/convert"
	appLog "epdctl/internal/log"
)

// TransferFrame writes a full packed frame into panel RAM without redrawing.
// The frame depth follows the mode the session was initialized with: 1-bit
// frames are ceil(w/8)*h bytes, MSB first; 2-bit frames are ceil(w/4)*h
// bytes, four pixels per byte starting at the low bits. Any other length is
// rejected with ErrInvalidBufferSize.
func (d *Driver) TransferFrame(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transferFrame(buf)
}

// TransferWindow writes a packed 1-bit sub-rectangle. r must lie inside the
// panel with byte-aligned horizontal edges; buf holds ceil(r.Dx()/8) bytes
// per row for r.Dy() rows.
func (d *Driver) TransferWindow(r image.Rectangle, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transferWindow(r, buf)
}

func (d *Driver) transferFrame(buf []byte) error {
	depth := d.mode.Depth()
	if want := d.opts.Geometry.FrameSize(depth); len(buf) != want {
		return fmt.Errorf("epd: transfer: %w: got %d bytes, want %d for %s at %d bpp",
			ErrInvalidBufferSize, len(buf), want, d.opts.Geometry, depth)
	}
	if err := d.ready(); err != nil {
		return fmt.Errorf("epd: transfer: %w", err)
	}

	d.setState(StateTransferring)
	defer d.setState(StateIdle)

	s := d.newSeq(context.Background())
	switch {
	case depth == Depth2Bit:
		g := d.opts.Geometry
		if err := convert.PackGray2Into(d.scratch, d.planeB, buf, g.Width, g.Height); err != nil {
			return fmt.Errorf("epd: transfer: %w", err)
		}
		d.setWindow(s, g.Bounds())
		s.command(cmdWriteRAMPlaneA)
		s.data(d.scratch)
		d.setWindow(s, g.Bounds())
		s.command(cmdWriteRAMPlaneB)
		s.data(d.planeB)
		buf = d.scratch
	case d.opts.Variant == FourWireFlashLUT:
		d.setWindow(s, d.opts.Geometry.Bounds())
		s.command(cmdWriteRAMPlaneA)
		s.data(buf)
	default:
		s.command(ucTransmission2)
		s.data(buf)
	}
	if s.err != nil {
		appLog.Error("epd transfer failed", s.err, "bytes", len(buf))
		return fmt.Errorf("epd: transfer: %w", s.err)
	}

	copy(d.next, buf)
	appLog.Debug("epd frame transferred", "bytes", len(buf), "depth", depth)
	return nil
}

func (d *Driver) transferWindow(r image.Rectangle, buf []byte) error {
	g := d.opts.Geometry
	if err := g.checkWindow(r); err != nil {
		return fmt.Errorf("epd: transfer window: %w", err)
	}
	if d.mode.Depth() != Depth1Bit {
		return fmt.Errorf("epd: transfer window: %w: windows need a 1-bit session", ErrUnsupportedMode)
	}
	rowBytes := windowBytesPerRow(r)
	if want := rowBytes * r.Dy(); len(buf) != want {
		return fmt.Errorf("epd: transfer window: %w: got %d bytes, want %d for %v",
			ErrInvalidBufferSize, len(buf), want, r)
	}
	if err := d.ready(); err != nil {
		return fmt.Errorf("epd: transfer window: %w", err)
	}

	d.setState(StateTransferring)
	defer d.setState(StateIdle)

	// Compose the resulting full frame in scratch; it becomes the new slot
	// only once the bus accepted it.
	copy(d.scratch, d.next)
	blit(d.scratch, g.BytesPerRow(Depth1Bit), r, buf, rowBytes)

	s := d.newSeq(context.Background())
	if d.opts.Variant == FourWireFlashLUT {
		d.setWindow(s, r)
		s.command(cmdWriteRAMPlaneA)
		s.data(buf)
	} else {
		// No RAM window on this controller: send the composed frame.
		s.command(ucTransmission2)
		s.data(d.scratch)
	}
	if s.err != nil {
		appLog.Error("epd window transfer failed", s.err, "window", r)
		return fmt.Errorf("epd: transfer window: %w", s.err)
	}

	copy(d.next, d.scratch)
	appLog.Debug("epd window transferred", "window", r, "bytes", len(buf))
	return nil
}

// blit copies a packed window into a packed frame of stride frameRow.
func blit(frame []byte, frameRow int, r image.Rectangle, win []byte, winRow int) {
	x0 := r.Min.X / 8
	for y := 0; y < r.Dy(); y++ {
		dst := (r.Min.Y+y)*frameRow + x0
		copy(frame[dst:dst+winRow], win[y*winRow:(y+1)*winRow])
	}
}
