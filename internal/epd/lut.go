package epd

// LUT is an opaque controller waveform table. Tables are constant data owned
// by the driver; callers only ever receive copies.
type LUT []byte

const (
	// flashLUTSize is four 10-byte phase groups padded to ten rows plus five
	// 0x22 end markers.
	flashLUTSize = 105
	// registerLUTSize is one no-flash sub-table.
	registerLUTSize = 30
)

// Flash LUT profiles, uploaded with writeLUT (0x32).
var (
	lut4GrayGC = LUT{
		0x2A, 0x06, 0x15, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x28, 0x06, 0x14, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x20, 0x06, 0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x14, 0x06, 0x28, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x02, 0x02, 0x0A, 0x00, 0x00, 0x00, 0x08, 0x08, 0x02,
		0x00, 0x02, 0x02, 0x0A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x22, 0x22, 0x22, 0x22, 0x22,
	}

	lut1GrayGC = LUT{
		0x2A, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x05, 0x2A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x2A, 0x15, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x05, 0x0A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x02, 0x03, 0x0A, 0x00, 0x02, 0x06, 0x0A, 0x05, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x22, 0x22, 0x22, 0x22, 0x22,
	}

	lut1GrayDU = LUT{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x01, 0x2A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x0A, 0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x05, 0x05, 0x00, 0x05, 0x03, 0x05, 0x05, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x22, 0x22, 0x22, 0x22, 0x22,
	}

	lut1GrayA2 = LUT{
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x0A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x03, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x22, 0x22, 0x22, 0x22, 0x22,
	}
)

// FlashLUT returns a copy of the flash waveform profile used for mode.
func FlashLUT(mode RefreshMode) LUT {
	src := flashLUTFor(mode)
	if src == nil {
		return nil
	}
	out := make(LUT, len(src))
	copy(out, src)
	return out
}

func flashLUTFor(mode RefreshMode) LUT {
	switch mode {
	case FullRefreshGrayscale:
		return lut4GrayGC
	case FullRefresh1Bit:
		return lut1GrayGC
	case PartialUpdate:
		return lut1GrayDU
	case UltraFastUpdate:
		return lut1GrayA2
	default:
		return nil
	}
}

// registerLUT is one no-flash sub-table and the register it is written to.
type registerLUT struct {
	name string
	reg  byte
	data LUT
}

// Register commands of the no-flash controller LUT bank.
const (
	regLUTVCOM byte = 0x20
	regLUTWW   byte = 0x21
	regLUTBW   byte = 0x22
	regLUTWB   byte = 0x23
	regLUTBB   byte = 0x24
)

// noFlashLUTs is the differential waveform set: five 6-byte phase rows per
// transition (level select, four frame counts, repeat).
var noFlashLUTs = []registerLUT{
	{"vcom", regLUTVCOM, LUT{
		0x00, 0x10, 0x10, 0x01, 0x08, 0x01,
		0x00, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x00, 0x08, 0x01, 0x08, 0x01, 0x06,
		0x00, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x00, 0x05, 0x01, 0x1E, 0x0F, 0x06,
	}},
	{"ww", regLUTWW, LUT{
		0x91, 0x10, 0x10, 0x01, 0x08, 0x01,
		0x04, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x84, 0x08, 0x01, 0x08, 0x01, 0x06,
		0x80, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x00, 0x05, 0x01, 0x1E, 0x0F, 0x06,
	}},
	{"bw", regLUTBW, LUT{
		0xA8, 0x10, 0x10, 0x01, 0x08, 0x01,
		0x84, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x84, 0x08, 0x01, 0x08, 0x01, 0x06,
		0x86, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x8C, 0x05, 0x01, 0x1E, 0x0F, 0x06,
	}},
	{"wb", regLUTWB, LUT{
		0x91, 0x10, 0x10, 0x01, 0x08, 0x01,
		0x04, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x84, 0x08, 0x01, 0x08, 0x01, 0x06,
		0x80, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x00, 0x05, 0x01, 0x1E, 0x0F, 0x06,
	}},
	{"bb", regLUTBB, LUT{
		0x92, 0x10, 0x10, 0x01, 0x08, 0x01,
		0x80, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x84, 0x08, 0x01, 0x08, 0x01, 0x06,
		0x04, 0x06, 0x01, 0x06, 0x01, 0x05,
		0x00, 0x05, 0x01, 0x1E, 0x0F, 0x06,
	}},
}
