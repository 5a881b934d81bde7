package epd

import (
	"fmt"
	"image"
)

// Depth is the number of bits per pixel of a packed frame.
type Depth int

const (
	Depth1Bit Depth = 1
	Depth2Bit Depth = 2
)

// Geometry is the fixed pixel size of a panel. All buffer sizes derive from
// it and it is never mutated after the driver is built.
type Geometry struct {
	Width  int
	Height int
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Bounds returns the panel rectangle anchored at the origin.
func (g Geometry) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}

// BytesPerRow is ceil(width/8) at 1 bit per pixel and ceil(width/4) at
// 2 bits per pixel.
func (g Geometry) BytesPerRow(d Depth) int {
	switch d {
	case Depth2Bit:
		return (g.Width + 3) / 4
	default:
		return (g.Width + 7) / 8
	}
}

// FrameSize is the exact byte length of a full frame at depth d.
func (g Geometry) FrameSize(d Depth) int {
	return g.BytesPerRow(d) * g.Height
}

func (g Geometry) validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: geometry %s", ErrInvalidOpts, g)
	}
	// RAM window and gate registers carry 16-bit addresses.
	if g.Width > 0xFFFF || g.Height > 0xFFFF {
		return fmt.Errorf("%w: geometry %s exceeds address range", ErrInvalidOpts, g)
	}
	return nil
}

// NewWhiteFrame returns a freshly allocated all-white 1-bit frame.
func NewWhiteFrame(g Geometry) []byte {
	return filledFrame(g.FrameSize(Depth1Bit), 0xFF)
}

// NewBlackFrame returns a freshly allocated all-black 1-bit frame.
func NewBlackFrame(g Geometry) []byte {
	return filledFrame(g.FrameSize(Depth1Bit), 0x00)
}

// TestPattern returns a 1-bit frame of alternating 8-byte black and white
// runs, handy for checking wiring and bit order.
func TestPattern(g Geometry) []byte {
	buf := make([]byte, g.FrameSize(Depth1Bit))
	for i := range buf {
		if (i/8)%2 == 1 {
			buf[i] = 0xFF
		}
	}
	return buf
}

func filledFrame(n int, v byte) []byte {
	buf := make([]byte, n)
	fill(buf, v)
	return buf
}

func fill(buf []byte, v byte) {
	for i := range buf {
		buf[i] = v
	}
}

// checkWindow validates a transfer window. The horizontal edges must fall on
// byte boundaries (multiples of 8) unless the right edge is the panel edge.
func (g Geometry) checkWindow(r image.Rectangle) error {
	if r.Empty() || !r.In(g.Bounds()) {
		return fmt.Errorf("%w: %v not inside %v", ErrInvalidWindow, r, g.Bounds())
	}
	if r.Min.X%8 != 0 {
		return fmt.Errorf("%w: x=%d is not byte aligned", ErrInvalidWindow, r.Min.X)
	}
	if r.Max.X%8 != 0 && r.Max.X != g.Width {
		return fmt.Errorf("%w: right edge %d is not byte aligned", ErrInvalidWindow, r.Max.X)
	}
	return nil
}

// windowBytesPerRow is the packed row length of a 1-bit window.
func windowBytesPerRow(r image.Rectangle) int {
	return (r.Dx() + 7) / 8
}
