package epd

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// defaultMaxChunk bounds a single SPI transfer when neither the options nor
// the connection say otherwise.
const defaultMaxChunk = 512

// bus is the byte-oriented command/data transport: a SPI connection framed by
// the chip-select and data/command lines.
type bus struct {
	c  conn.Conn
	dc gpio.PinOut
	cs gpio.PinOut

	maxChunk int
	settle   time.Duration
	delay    func(time.Duration)

	cmd [1]byte
}

func newBus(c conn.Conn, dc, cs gpio.PinOut, maxChunk int, settle time.Duration, delay func(time.Duration)) *bus {
	if maxChunk <= 0 {
		maxChunk = defaultMaxChunk
	}
	// Respect the driver's own transfer limit (spidev defaults to 4096).
	if l, ok := c.(conn.Limits); ok {
		if m := l.MaxTxSize(); m > 0 && m < maxChunk {
			maxChunk = m
		}
	}
	return &bus{c: c, dc: dc, cs: cs, maxChunk: maxChunk, settle: settle, delay: delay}
}

// sendCommand transmits one opcode with D/C low, then waits the command
// settle time.
func (b *bus) sendCommand(op byte) error {
	if err := b.dc.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: dc low before 0x%02X: %w", ErrTransport, op, err)
	}
	if err := b.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: cs low before 0x%02X: %w", ErrTransport, op, err)
	}
	b.cmd[0] = op
	err := b.c.Tx(b.cmd[:], nil)
	if csErr := b.cs.Out(gpio.High); err == nil {
		err = csErr
	}
	if err != nil {
		return fmt.Errorf("%w: command 0x%02X: %w", ErrTransport, op, err)
	}
	b.delay(b.settle)
	return nil
}

// sendData transmits the payload with D/C high inside a single chip-select
// assertion, split into maxChunk-sized transfers.
func (b *bus) sendData(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if err := b.dc.Out(gpio.High); err != nil {
		return fmt.Errorf("%w: dc high: %w", ErrTransport, err)
	}
	if err := b.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("%w: cs low: %w", ErrTransport, err)
	}
	var err error
	for off := 0; off < len(p) && err == nil; off += b.maxChunk {
		end := min(off+b.maxChunk, len(p))
		if txErr := b.c.Tx(p[off:end], nil); txErr != nil {
			err = fmt.Errorf("%w: data at offset %d of %d: %w", ErrTransport, off, len(p), txErr)
		}
	}
	if csErr := b.cs.Out(gpio.High); err == nil && csErr != nil {
		err = fmt.Errorf("%w: cs high: %w", ErrTransport, csErr)
	}
	return err
}
