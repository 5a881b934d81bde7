package convert

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestPackGray2IntoLevels(t *testing.T) {
	// 16 pixels: levels 3,0,2,1 in every source byte, first pixel in the low
	// bits. Byte 0b01_10_00_11 = 0x63 holds 3,0,2,1.
	src := []byte{0x63, 0x63, 0x63, 0x63}
	a, b, err := PackGray2Planes(src, 16, 1)
	if err != nil {
		t.Fatalf("PackGray2Planes: %v", err)
	}
	// Plane A: 1,0,1,0 per group of four -> 0xAA.
	if want := []byte{0xAA, 0xAA}; !bytes.Equal(a, want) {
		t.Errorf("plane A = % X, want % X", a, want)
	}
	// Plane B: 1,0,0,1 per group of four -> 0x99.
	if want := []byte{0x99, 0x99}; !bytes.Equal(b, want) {
		t.Errorf("plane B = % X, want % X", b, want)
	}
}

func TestPackGray2IntoLiteralBytes(t *testing.T) {
	// One pixel per source byte in the low bits, padded row of 4 pixels.
	src := []byte{0x03 | 0x00<<2 | 0x02<<4 | 0x01<<6}
	a, b, err := PackGray2Planes(src, 4, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Pixels 4..7 of the packed byte are padding and stay set.
	if a[0] != 0xAF {
		t.Errorf("plane A = %08b, want 10101111", a[0])
	}
	if b[0] != 0x9F {
		t.Errorf("plane B = %08b, want 10011111", b[0])
	}
}

func TestPackGray2IntoSizes(t *testing.T) {
	tests := []struct {
		name      string
		src, a, b int
		w, h      int
	}{
		{"short source", 3, 2, 2, 16, 1},
		{"long source", 5, 2, 2, 16, 1},
		{"short plane", 4, 1, 2, 16, 1},
		{"odd width source", 1, 1, 1, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PackGray2Into(make([]byte, tt.a), make([]byte, tt.b), make([]byte, tt.src), tt.w, tt.h)
			if !errors.Is(err, ErrSize) {
				t.Fatalf("err = %v, want ErrSize", err)
			}
		})
	}
}

func TestStride(t *testing.T) {
	tests := []struct{ w, s1, s2 int }{
		{416, 52, 104},
		{1, 1, 1},
		{9, 2, 3},
		{280, 35, 70},
	}
	for _, tt := range tests {
		if got := Stride1(tt.w); got != tt.s1 {
			t.Errorf("Stride1(%d) = %d, want %d", tt.w, got, tt.s1)
		}
		if got := Stride2(tt.w); got != tt.s2 {
			t.Errorf("Stride2(%d) = %d, want %d", tt.w, got, tt.s2)
		}
	}
}

func TestPackImage1Bit(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 16; x++ {
			c := color.NRGBA{0xFF, 0xFF, 0xFF, 0xFF}
			if x < 4 {
				c = color.NRGBA{0x10, 0x10, 0x10, 0xFF}
			}
			if x == 15 {
				c = color.NRGBA{0, 0, 0, 0} // transparent reads as white
			}
			img.SetNRGBA(x, y, c)
		}
	}
	got := PackImage1Bit(img, 16, 2)
	want := []byte{0x0F, 0xFF, 0x0F, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("PackImage1Bit = % X, want % X", got, want)
	}
}

func TestPackImage1BitCentres(t *testing.T) {
	// A 8x1 black image on a 24x1 canvas lands in the middle byte.
	img := image.NewGray(image.Rect(0, 0, 8, 1))
	got := PackImage1Bit(img, 24, 1)
	if want := []byte{0xFF, 0x00, 0xFF}; !bytes.Equal(got, want) {
		t.Errorf("PackImage1Bit = % X, want % X", got, want)
	}
}

func TestPackImageGray2(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	img.Pix = []byte{0xFF, 0x00, 0xA0, 0x60}
	got := PackImageGray2(img, 4, 1)
	// Levels 3,0,2,1 packed low bits first.
	if want := []byte{0x63}; !bytes.Equal(got, want) {
		t.Errorf("PackImageGray2 = % X, want % X", got, want)
	}
}

func TestImage1BitRoundTrip(t *testing.T) {
	buf := []byte{0xF0, 0x0F}
	img, err := Image1Bit(buf, 8, 2)
	if err != nil {
		t.Fatal(err)
	}
	if img.GrayAt(0, 0).Y != 0xFF || img.GrayAt(4, 0).Y != 0 {
		t.Errorf("row 0 unpacked wrong: %v", img.Pix[:8])
	}
	if got := PackImage1Bit(img, 8, 2); !bytes.Equal(got, buf) {
		t.Errorf("repack = % X, want % X", got, buf)
	}
	if _, err := Image1Bit(buf, 9, 2); !errors.Is(err, ErrSize) {
		t.Errorf("err = %v, want ErrSize", err)
	}
}
