// Package convert turns images into the packed frame formats the panel
// driver consumes, and back.
//
// 1-bit frames are row-major, ceil(w/8) bytes per row, MSB first, 1 = white.
// 2-bit frames are row-major, ceil(w/4) bytes per row, four pixels per byte
// with the first pixel in the low two bits; level 0 is black and 3 is white.
package convert

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

// ErrSize means a source or destination buffer does not match the geometry.
var ErrSize = errors.New("convert: buffer size mismatch")

// Stride1 is the packed row length of a 1-bit frame.
func Stride1(w int) int { return (w + 7) / 8 }

// Stride2 is the packed row length of a 2-bit frame.
func Stride2(w int) int { return (w + 3) / 4 }

// PackGray2Planes splits a 2-bit frame into the two 1-bit RAM planes a
// four-level waveform expects.
func PackGray2Planes(src []byte, w, h int) (a, b []byte, err error) {
	a = make([]byte, Stride1(w)*h)
	b = make([]byte, Stride1(w)*h)
	if err := PackGray2Into(a, b, src, w, h); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// PackGray2Into is PackGray2Planes writing into caller-owned planes.
//
// Each level maps to one bit per plane:
//
//	level  A  B
//	  3    1  1   white
//	  2    1  0   light gray
//	  1    0  1   dark gray
//	  0    0  0   black
func PackGray2Into(dstA, dstB, src []byte, w, h int) error {
	s1, s2 := Stride1(w), Stride2(w)
	if len(src) != s2*h {
		return fmt.Errorf("%w: 2-bit source is %d bytes, want %d for %dx%d", ErrSize, len(src), s2*h, w, h)
	}
	if len(dstA) != s1*h || len(dstB) != s1*h {
		return fmt.Errorf("%w: planes are %d/%d bytes, want %d", ErrSize, len(dstA), len(dstB), s1*h)
	}
	fill(dstA, 0xFF)
	fill(dstB, 0xFF)

	for y := 0; y < h; y++ {
		in := src[y*s2 : (y+1)*s2]
		row := y * s1
		for x := 0; x < w; x++ {
			level := in[x>>2] >> ((x & 3) * 2) & 0x03
			a, b := grayPlaneBits(level)
			i := row + x>>3
			mask := byte(0x80 >> (x & 7))
			if !a {
				dstA[i] &^= mask
			}
			if !b {
				dstB[i] &^= mask
			}
		}
	}
	return nil
}

func grayPlaneBits(level byte) (a, b bool) {
	switch level {
	case 3:
		return true, true
	case 2:
		return true, false
	case 1:
		return false, true
	default:
		return false, false
	}
}

// PackImage1Bit renders img onto a white w x h canvas, centred and cropped
// if it does not fit, and thresholds it to a 1-bit frame.
func PackImage1Bit(img image.Image, w, h int) []byte {
	canvas := place(img, w, h)
	s := Stride1(w)
	out := make([]byte, s*h)
	fill(out, 0xFF)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if gray8(canvas.NRGBAAt(x, y)) < 128 {
				out[y*s+x>>3] &^= byte(0x80 >> (x & 7))
			}
		}
	}
	return out
}

// PackImageGray2 renders img like PackImage1Bit and quantizes it to four
// gray levels.
func PackImageGray2(img image.Image, w, h int) []byte {
	canvas := place(img, w, h)
	s := Stride2(w)
	out := make([]byte, s*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			level := gray8(canvas.NRGBAAt(x, y)) >> 6
			out[y*s+x>>2] |= level << ((x & 3) * 2)
		}
	}
	return out
}

// Image1Bit unpacks a 1-bit frame into a grayscale image for previews.
func Image1Bit(buf []byte, w, h int) (*image.Gray, error) {
	s := Stride1(w)
	if len(buf) != s*h {
		return nil, fmt.Errorf("%w: 1-bit frame is %d bytes, want %d for %dx%d", ErrSize, len(buf), s*h, w, h)
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if buf[y*s+x>>3]&(0x80>>(x&7)) != 0 {
				img.Pix[y*img.Stride+x] = 0xFF
			}
		}
	}
	return img, nil
}

// place draws img centred on an opaque white canvas. Transparent source
// pixels end up white.
func place(img image.Image, w, h int) *image.NRGBA {
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	b := img.Bounds()
	off := image.Pt((w-b.Dx())/2, (h-b.Dy())/2)
	dst := b.Sub(b.Min).Add(off)
	draw.Draw(canvas, dst, img, b.Min, draw.Over)
	return canvas
}

// gray8 is the perceptual brightness 0.299R + 0.587G + 0.114B.
func gray8(c color.NRGBA) byte {
	y := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	if y >= 255 {
		return 255
	}
	return byte(y)
}

func fill(p []byte, v byte) {
	for i := range p {
		p[i] = v
	}
}
