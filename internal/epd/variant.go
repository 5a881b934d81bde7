package epd

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/gpio"
)

// ControllerVariant selects one of the two controller families the driver
// speaks to. The zero value is invalid so that the variant is always chosen
// explicitly.
type ControllerVariant int

const (
	// FourWireFlashLUT is the SSD-style controller: RAM windows, two RAM
	// planes (0x24/0x26) and 105-byte LUTs uploaded with 0x32.
	FourWireFlashLUT ControllerVariant = iota + 1
	// NoFlashRegisterLUT is the UC-style dual-buffer controller: two data
	// transmissions (0x10/0x13), refresh 0x12 and five register LUTs.
	NoFlashRegisterLUT
)

func (v ControllerVariant) String() string {
	switch v {
	case FourWireFlashLUT:
		return "flash_lut"
	case NoFlashRegisterLUT:
		return "no_flash_register_lut"
	default:
		return fmt.Sprintf("ControllerVariant(%d)", int(v))
	}
}

// ParseVariant accepts the names produced by String.
func ParseVariant(s string) (ControllerVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flash_lut":
		return FourWireFlashLUT, nil
	case "no_flash_register_lut":
		return NoFlashRegisterLUT, nil
	default:
		return 0, fmt.Errorf("%w: unknown controller variant %q", ErrInvalidOpts, s)
	}
}

// supports reports whether the variant can drive mode.
func (v ControllerVariant) supports(mode RefreshMode) bool {
	if !mode.valid() {
		return false
	}
	// The dual-buffer controller has no gray plane.
	return !(v == NoFlashRegisterLUT && mode == FullRefreshGrayscale)
}

// BusyPolarity is the level at which the busy line means "busy". The two
// controller families use opposite conventions, so it has no default.
type BusyPolarity int

const (
	BusyActiveHigh BusyPolarity = iota + 1
	BusyActiveLow
)

func (p BusyPolarity) String() string {
	switch p {
	case BusyActiveHigh:
		return "high"
	case BusyActiveLow:
		return "low"
	default:
		return fmt.Sprintf("BusyPolarity(%d)", int(p))
	}
}

// ParseBusyPolarity accepts "high" or "low".
func ParseBusyPolarity(s string) (BusyPolarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return BusyActiveHigh, nil
	case "low":
		return BusyActiveLow, nil
	default:
		return 0, fmt.Errorf("%w: unknown busy polarity %q", ErrInvalidOpts, s)
	}
}

func (p BusyPolarity) busyLevel() gpio.Level {
	return p == BusyActiveHigh
}

// Commands of the flash LUT controller.
const (
	cmdGateSetting     byte = 0x01
	cmdGateVoltage     byte = 0x03
	cmdPowerOn         byte = 0x04
	cmdSourceVoltage   byte = 0x04 // same opcode as power-on, meaning depends on the data that follows
	cmdBoosterStrength byte = 0x0C
	cmdDeepSleep       byte = 0x10
	cmdDataEntryMode   byte = 0x11
	cmdSoftReset       byte = 0x12
	cmdSensorEnable    byte = 0x18
	cmdRefreshTrigger  byte = 0x20
	cmdUpdateControl   byte = 0x22
	cmdWriteRAMPlaneA  byte = 0x24
	cmdWriteRAMPlaneB  byte = 0x26
	cmdVCOM            byte = 0x2C
	cmdWriteLUT        byte = 0x32
	cmdDisplayOption   byte = 0x37
	cmdBorder          byte = 0x3C
	cmdXWindow         byte = 0x44
	cmdYWindow         byte = 0x45
	cmdAutoWriteRed    byte = 0x46
	cmdAutoWriteBW     byte = 0x47
	cmdXCursor         byte = 0x4E
	cmdYCursor         byte = 0x4F
)

// Commands of the no-flash register LUT controller.
const (
	ucPanelSetting  byte = 0x00
	ucPowerSetting  byte = 0x01
	ucPowerOff      byte = 0x02
	ucPowerOn       byte = 0x04
	ucDeepSleep     byte = 0x07
	ucTransmission1 byte = 0x10
	ucRefresh       byte = 0x12
	ucTransmission2 byte = 0x13
	ucVCOMInterval  byte = 0x50
	ucResolution    byte = 0x61
)

// Register values.
const (
	updateFlagsDisplay byte = 0xC7 // clock+analog on, display with loaded LUT, off
	updateFlagsInit    byte = 0xCF

	panelSettingOTP      byte = 0x1F // LUT from OTP
	panelSettingRegister byte = 0x3F // LUT from registers 0x20..0x24

	deepSleepFlash byte = 0x03
	deepSleepCheck byte = 0xA5
	autoWriteFill  byte = 0xF7
)

// updateStep is the variant-specific "display update control" pair that
// precedes the refresh trigger.
type updateStep struct {
	cmd  byte
	flag byte
}

func (v ControllerVariant) updateStep(mode RefreshMode) updateStep {
	if v == NoFlashRegisterLUT {
		if mode.Differential() {
			return updateStep{ucPanelSetting, panelSettingRegister}
		}
		return updateStep{ucPanelSetting, panelSettingOTP}
	}
	return updateStep{cmdUpdateControl, updateFlagsDisplay}
}

func (v ControllerVariant) triggerCmd() byte {
	if v == NoFlashRegisterLUT {
		return ucRefresh
	}
	return cmdRefreshTrigger
}

// displayOption is the 0x37 payload; 1-bit modes enable the ping-pong
// features the differential waveforms depend on.
func displayOption(d Depth) []byte {
	if d == Depth2Bit {
		return make([]byte, 10)
	}
	return []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0x4F, 0xFF, 0xFF, 0xFF, 0xFF}
}
