package epd

import (
	"fmt"
	"strings"
)

// RefreshMode selects the waveform and update flags used for a refresh.
type RefreshMode int

const (
	// FullRefreshGrayscale is a flashing full refresh of a 4-level frame.
	FullRefreshGrayscale RefreshMode = iota
	// FullRefresh1Bit is a flashing full refresh of a black/white frame.
	FullRefresh1Bit
	// PartialUpdate drives only changed pixels, no flash.
	PartialUpdate
	// UltraFastUpdate is the fastest 2-level differential update.
	UltraFastUpdate
)

var modeNames = map[RefreshMode]string{
	FullRefreshGrayscale: "full_gray",
	FullRefresh1Bit:      "full_1bit",
	PartialUpdate:        "partial",
	UltraFastUpdate:      "ultrafast",
}

func (m RefreshMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("RefreshMode(%d)", int(m))
}

// ParseRefreshMode accepts the names produced by String.
func ParseRefreshMode(s string) (RefreshMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
}

// Differential reports whether the mode compares the old and new frame
// slots and drives only transitioning pixels.
func (m RefreshMode) Differential() bool {
	return m == PartialUpdate || m == UltraFastUpdate
}

// Depth is the frame depth the mode consumes.
func (m RefreshMode) Depth() Depth {
	if m == FullRefreshGrayscale {
		return Depth2Bit
	}
	return Depth1Bit
}

func (m RefreshMode) valid() bool {
	_, ok := modeNames[m]
	return ok
}
