package epd

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
)

func TestFrameSize(t *testing.T) {
	tests := []struct {
		g     Geometry
		d     Depth
		row   int
		frame int
	}{
		{Geometry{416, 240}, Depth1Bit, 52, 12480},
		{Geometry{416, 240}, Depth2Bit, 104, 24960},
		{Geometry{250, 122}, Depth1Bit, 32, 3904},
		{Geometry{250, 122}, Depth2Bit, 63, 7686},
		{Geometry{1, 1}, Depth1Bit, 1, 1},
	}
	for _, tt := range tests {
		if got := tt.g.BytesPerRow(tt.d); got != tt.row {
			t.Errorf("%s@%d BytesPerRow = %d, want %d", tt.g, tt.d, got, tt.row)
		}
		if got := tt.g.FrameSize(tt.d); got != tt.frame {
			t.Errorf("%s@%d FrameSize = %d, want %d", tt.g, tt.d, got, tt.frame)
		}
	}
}

func TestCheckWindow(t *testing.T) {
	g := Geometry{250, 122}
	tests := []struct {
		r  image.Rectangle
		ok bool
	}{
		{image.Rect(0, 0, 250, 122), true},
		{image.Rect(8, 10, 16, 11), true},
		{image.Rect(248, 0, 250, 1), true},
		{image.Rect(4, 0, 16, 1), false},
		{image.Rect(8, 0, 12, 1), false},
		{image.Rect(0, 0, 256, 1), false},
		{image.Rect(0, 120, 8, 123), false},
		{image.Rect(8, 8, 8, 16), false},
	}
	for _, tt := range tests {
		err := g.checkWindow(tt.r)
		if tt.ok && err != nil {
			t.Errorf("%v: %v", tt.r, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("%v: err = %v, want ErrInvalidWindow", tt.r, err)
		}
	}
}

func TestTestPattern(t *testing.T) {
	p := TestPattern(Geometry{128, 2})
	if len(p) != 32 {
		t.Fatalf("len = %d", len(p))
	}
	for i, b := range p {
		want := byte(0x00)
		if (i/8)%2 == 1 {
			want = 0xFF
		}
		if b != want {
			t.Fatalf("byte %d = %02X, want %02X", i, b, want)
		}
	}
}

func TestParseNames(t *testing.T) {
	for m, name := range modeNames {
		got, err := ParseRefreshMode(name)
		if err != nil || got != m {
			t.Errorf("ParseRefreshMode(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseRefreshMode("sparkle"); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("unknown mode err = %v", err)
	}
	for _, v := range []ControllerVariant{FourWireFlashLUT, NoFlashRegisterLUT} {
		if got, err := ParseVariant(v.String()); err != nil || got != v {
			t.Errorf("ParseVariant(%q) = %v, %v", v, got, err)
		}
	}
	if _, err := ParseVariant(""); !errors.Is(err, ErrInvalidOpts) {
		t.Errorf("empty variant err = %v", err)
	}
	if p, err := ParseBusyPolarity(" LOW "); err != nil || p != BusyActiveLow {
		t.Errorf("ParseBusyPolarity = %v, %v", p, err)
	}
}

func TestModeProperties(t *testing.T) {
	tests := []struct {
		m     RefreshMode
		diff  bool
		depth Depth
	}{
		{FullRefreshGrayscale, false, Depth2Bit},
		{FullRefresh1Bit, false, Depth1Bit},
		{PartialUpdate, true, Depth1Bit},
		{UltraFastUpdate, true, Depth1Bit},
	}
	for _, tt := range tests {
		if got := tt.m.Differential(); got != tt.diff {
			t.Errorf("%s.Differential() = %v", tt.m, got)
		}
		if got := tt.m.Depth(); got != tt.depth {
			t.Errorf("%s.Depth() = %d", tt.m, got)
		}
	}
}

func TestFlashLUTs(t *testing.T) {
	seen := map[string]RefreshMode{}
	for m := range modeNames {
		l := FlashLUT(m)
		if len(l) != flashLUTSize {
			t.Errorf("%s LUT is %d bytes", m, len(l))
		}
		if !bytes.Equal(l[100:], []byte{0x22, 0x22, 0x22, 0x22, 0x22}) {
			t.Errorf("%s LUT tail = % X", m, l[100:])
		}
		if other, dup := seen[string(l)]; dup {
			t.Errorf("%s and %s share a LUT", m, other)
		}
		seen[string(l)] = m
	}
	l := FlashLUT(FullRefresh1Bit)
	l[0] ^= 0xFF
	if bytes.Equal(l, lut1GrayGC) {
		t.Error("FlashLUT returned the package table")
	}
	if FlashLUT(RefreshMode(9)) != nil {
		t.Error("unknown mode has a LUT")
	}

	if len(noFlashLUTs) != 5 {
		t.Fatalf("%d register LUTs", len(noFlashLUTs))
	}
	for i, r := range noFlashLUTs {
		if len(r.data) != registerLUTSize {
			t.Errorf("register LUT %s is %d bytes", r.name, len(r.data))
		}
		if r.reg != regLUTVCOM+byte(i) {
			t.Errorf("register LUT %s at %02X", r.name, r.reg)
		}
	}
}

func TestCanvas(t *testing.T) {
	r := newRig(t, flashOpts(64, 16))
	r.init(t, FullRefresh1Bit)

	c := NewCanvas(testContext(t), r.d, FullRefresh1Bit)
	if x, y := c.Size(); x != 64 || y != 16 {
		t.Fatalf("Size = %d,%d", x, y)
	}
	black := color.RGBA{A: 0xFF}
	c.SetPixel(0, 0, black)
	c.SetPixel(9, 1, black)
	c.SetPixel(-1, 0, black)
	c.SetPixel(64, 0, black)
	if c.Bytes()[0] != 0x7F || c.Bytes()[9] != 0xBF {
		t.Errorf("pixels landed wrong: % X", c.Bytes()[:10])
	}
	c.SetPixel(0, 0, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF})
	if c.Bytes()[0] != 0xFF {
		t.Error("white pixel not cleared")
	}

	tinyfont.WriteLine(c, &proggy.TinySZ8pt7b, 2, 10, "HI", black)
	if bytes.Equal(c.Bytes(), NewWhiteFrame(r.d.Geometry())) {
		t.Fatal("text drew nothing")
	}
	if err := c.Display(); err != nil {
		t.Fatalf("Display: %v", err)
	}
	a := findOps(r.c.ops(), cmdWriteRAMPlaneA)
	if len(a) != 1 || !bytes.Equal(a[0].data, c.Bytes()) {
		t.Error("canvas not transferred")
	}
	if !bytes.Equal(r.d.Frame(), c.Bytes()) {
		t.Error("canvas not in the new slot")
	}
}

func TestCanvasGraySession(t *testing.T) {
	r := newRig(t, flashOpts(8, 2))
	r.init(t, FullRefreshGrayscale)

	c := NewCanvas(testContext(t), r.d, FullRefreshGrayscale)
	c.Fill(color.RGBA{A: 0xFF})
	if !bytes.Equal(c.Bytes(), NewBlackFrame(r.d.Geometry())) {
		t.Fatalf("black fill = % X", c.Bytes())
	}
	c.Fill(color.RGBA{0xFF, 0xFF, 0xFF, 0xFF})
	c.SetPixel(0, 0, color.RGBA{A: 0xFF})
	c.SetPixel(5, 1, color.RGBA{A: 0xFF})

	// Pixel 0 is level 0 in the low bits of byte 0; pixel 5 sits in bits
	// 2-3 of the second byte of row 1.
	want := []byte{0xFC, 0xFF, 0xFF, 0xF3}
	if got := c.gray2(); !bytes.Equal(got, want) {
		t.Fatalf("gray2 = % X, want % X", got, want)
	}
	if err := c.Display(); err != nil {
		t.Fatalf("Display: %v", err)
	}
	ops := r.c.ops()
	a := findOps(ops, cmdWriteRAMPlaneA)
	b := findOps(ops, cmdWriteRAMPlaneB)
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("plane writes a=%d b=%d", len(a), len(b))
	}
	if !bytes.Equal(a[0].data, c.Bytes()) || !bytes.Equal(b[0].data, c.Bytes()) {
		t.Errorf("planes = % X / % X, want the canvas % X", a[0].data, b[0].data, c.Bytes())
	}
}

func TestCanvasSizeClamped(t *testing.T) {
	r := newRig(t, flashOpts(40000, 1))
	c := NewCanvas(testContext(t), r.d, FullRefresh1Bit)
	if x, y := c.Size(); x != math.MaxInt16 || y != 1 {
		t.Errorf("Size = %d,%d", x, y)
	}
}
