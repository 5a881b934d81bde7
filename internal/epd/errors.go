package epd

import "errors"

// Error kinds surfaced by the driver. Callers match them with errors.Is; the
// returned errors wrap these with operation context.
var (
	// ErrBusyTimeout means the busy line never reported idle within the
	// configured bound. The core never retries.
	ErrBusyTimeout = errors.New("epd: busy timeout")

	// ErrInvalidBufferSize means a frame buffer length does not match the
	// panel geometry (or the window) exactly.
	ErrInvalidBufferSize = errors.New("epd: invalid buffer size")

	// ErrNotInitialized means an operation was issued before Initialize
	// completed successfully.
	ErrNotInitialized = errors.New("epd: not initialized")

	// ErrDriverAsleep means the panel is in deep sleep; Wake or Initialize
	// must run first.
	ErrDriverAsleep = errors.New("epd: driver asleep")

	// ErrTransport wraps failures of the underlying SPI transfer or GPIO
	// writes.
	ErrTransport = errors.New("epd: transport failure")

	// ErrDegraded means a previous failure happened after the panel had
	// already started changing; only Initialize clears it.
	ErrDegraded = errors.New("epd: session degraded")

	ErrUnsupportedMode = errors.New("epd: unsupported refresh mode")
	ErrInvalidWindow   = errors.New("epd: invalid window")
	ErrInvalidOpts     = errors.New("epd: invalid options")
)
