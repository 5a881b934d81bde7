package epd

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// HostConfig names the host resources a panel is wired to. Pin names are
// anything gpioreg understands ("GPIO17", "17", "P1_11").
type HostConfig struct {
	// SPIPort is the spireg port name; empty opens the first port.
	SPIPort string
	MaxHz   physic.Frequency

	Reset string
	DC    string
	CS    string
	Busy  string
}

// Open initializes the periph host drivers, connects to the SPI port and
// resolves the control pins, then builds a Driver over them. The returned
// close function releases the SPI port.
func Open(hc HostConfig, opts *Opts) (*Driver, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("epd: periph host init failed: %w", err)
	}

	port, err := spireg.Open(hc.SPIPort)
	if err != nil {
		return nil, nil, fmt.Errorf("epd: failed to open SPI port %q: %w", hc.SPIPort, err)
	}

	maxHz := hc.MaxHz
	if maxHz <= 0 {
		maxHz = 2 * physic.MegaHertz
	}
	c, err := port.Connect(maxHz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, nil, fmt.Errorf("epd: failed to connect SPI at %s: %w", maxHz, err)
	}

	pins := make(map[string]gpio.PinIO, 4)
	for _, p := range []struct{ role, name string }{
		{"reset", hc.Reset},
		{"dc", hc.DC},
		{"cs", hc.CS},
		{"busy", hc.Busy},
	} {
		if p.name == "" {
			_ = port.Close()
			return nil, nil, fmt.Errorf("%w: %s pin is not configured", ErrInvalidOpts, p.role)
		}
		pin := gpioreg.ByName(p.name)
		if pin == nil {
			_ = port.Close()
			return nil, nil, fmt.Errorf("%w: %s pin %q not found", ErrInvalidOpts, p.role, p.name)
		}
		pins[p.role] = pin
	}

	d, err := New(c, pins["dc"], pins["cs"], pins["reset"], pins["busy"], opts)
	if err != nil {
		_ = port.Close()
		return nil, nil, err
	}
	return d, port.Close, nil
}
