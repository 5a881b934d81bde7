package epd

import (
	"context"
	"image/color"
	"math"

	"tinygo.org/x/drivers"
)

var _ drivers.Displayer = (*Canvas)(nil)

// Canvas is a 1-bit drawing surface for a panel. It implements
// drivers.Displayer so tinyfont and the tinygo drawing helpers can render
// into it; Display sends the result to the panel.
type Canvas struct {
	d    *Driver
	ctx  context.Context
	mode RefreshMode
	buf  []byte
	row  int
}

// NewCanvas returns an all-white canvas the size of the panel. Display
// refreshes with mode.
func NewCanvas(ctx context.Context, d *Driver, mode RefreshMode) *Canvas {
	g := d.Geometry()
	return &Canvas{
		d:    d,
		ctx:  ctx,
		mode: mode,
		buf:  NewWhiteFrame(g),
		row:  g.BytesPerRow(Depth1Bit),
	}
}

// Size reports the panel size, clamped to what int16 coordinates can
// address.
func (c *Canvas) Size() (x, y int16) {
	g := c.d.Geometry()
	return int16(min(g.Width, math.MaxInt16)), int16(min(g.Height, math.MaxInt16))
}

// SetPixel sets a pixel black when c is dark and white otherwise. Pixels
// outside the panel are ignored.
func (c *Canvas) SetPixel(x, y int16, col color.RGBA) {
	g := c.d.Geometry()
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= g.Width || iy < 0 || iy >= g.Height {
		return
	}
	i := iy*c.row + ix>>3
	mask := byte(0x80 >> (ix & 7))
	if isDark(col) {
		c.buf[i] &^= mask
	} else {
		c.buf[i] |= mask
	}
}

// Display transfers the canvas and refreshes the panel. With a 2-bit mode
// the canvas is expanded to black and white gray levels first.
func (c *Canvas) Display() error {
	if c.mode.Depth() == Depth2Bit {
		return c.d.Display(c.ctx, c.gray2(), c.mode)
	}
	return c.d.Display(c.ctx, c.buf, c.mode)
}

// gray2 expands the 1-bit canvas to a 2-bit frame: white is level 3, black
// level 0, first pixel in the low bits.
func (c *Canvas) gray2() []byte {
	g := c.d.Geometry()
	stride := g.BytesPerRow(Depth2Bit)
	out := make([]byte, g.FrameSize(Depth2Bit))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if c.buf[y*c.row+x>>3]&(0x80>>(x&7)) != 0 {
				out[y*stride+x>>2] |= 0x03 << (2 * (x & 3))
			}
		}
	}
	return out
}

// Fill sets every pixel to col.
func (c *Canvas) Fill(col color.RGBA) {
	v := byte(0xFF)
	if isDark(col) {
		v = 0x00
	}
	for i := range c.buf {
		c.buf[i] = v
	}
}

// Bytes returns the packed 1-bit frame. It aliases the canvas.
func (c *Canvas) Bytes() []byte {
	return c.buf
}

func isDark(c color.RGBA) bool {
	if c.A < 0x80 {
		return false
	}
	return 299*int(c.R)+587*int(c.G)+114*int(c.B) < 128*1000
}
