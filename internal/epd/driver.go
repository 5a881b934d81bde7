// Package epd drives SPI e-paper panels: it initializes the panel
// controller, streams packed frames into panel RAM and runs the refresh
// cycle, gated on the controller's busy line.
//
// One Driver is one session. Every exported operation takes the session lock
// for its whole duration, so a transfer followed by a refresh never
// interleaves with another caller's commands.
package epd

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"

	appLog "epdctl/internal/log"
)

// Timing groups the protocol delays. Zero fields take the defaults below.
type Timing struct {
	// CommandSettle is waited after every command byte.
	CommandSettle time.Duration
	// PollInterval is the delay between two reads of the busy line.
	PollInterval time.Duration
	// IdleSettle is waited after the busy line reports idle; panels report
	// idle slightly before their internal state has settled.
	IdleSettle time.Duration
	// BusyTimeout bounds every busy wait.
	BusyTimeout time.Duration
	// ResetHold is how long each level of the reset pulse is held. Values
	// under 200ms are raised to 200ms.
	ResetHold time.Duration
}

const (
	defaultCommandSettle = time.Millisecond
	defaultPollInterval  = 10 * time.Millisecond
	defaultIdleSettle    = 200 * time.Millisecond
	defaultBusyTimeout   = 5 * time.Second
	minResetHold         = 200 * time.Millisecond
)

func (t Timing) withDefaults() Timing {
	if t.CommandSettle <= 0 {
		t.CommandSettle = defaultCommandSettle
	}
	if t.PollInterval <= 0 {
		t.PollInterval = defaultPollInterval
	}
	if t.IdleSettle <= 0 {
		t.IdleSettle = defaultIdleSettle
	}
	if t.BusyTimeout <= 0 {
		t.BusyTimeout = defaultBusyTimeout
	}
	if t.ResetHold < minResetHold {
		t.ResetHold = minResetHold
	}
	return t
}

// Opts describes the attached panel.
type Opts struct {
	Variant    ControllerVariant
	Geometry   Geometry
	BusyActive BusyPolarity
	Timing     Timing
	// MaxChunk caps the bytes per SPI transfer. 0 means 512.
	MaxChunk int
}

func (o *Opts) validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil options", ErrInvalidOpts)
	}
	if o.Variant != FourWireFlashLUT && o.Variant != NoFlashRegisterLUT {
		return fmt.Errorf("%w: controller variant not set", ErrInvalidOpts)
	}
	if o.BusyActive != BusyActiveHigh && o.BusyActive != BusyActiveLow {
		return fmt.Errorf("%w: busy polarity not set", ErrInvalidOpts)
	}
	return o.Geometry.validate()
}

// State is the position of the session in its refresh state machine.
type State int32

const (
	StateUninitialized State = iota
	StateIdle
	StateTransferring
	StateRefreshing
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateIdle:
		return "idle"
	case StateTransferring:
		return "transferring"
	case StateRefreshing:
		return "refreshing"
	case StateSleeping:
		return "sleeping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Status is a point-in-time view of the session. It can be read while
// another goroutine holds the session.
type Status struct {
	State     State
	Degraded  bool
	Mode      RefreshMode
	Variant   ControllerVariant
	Geometry  Geometry
	Refreshes uint64
}

// Driver is a single panel session.
type Driver struct {
	mu sync.Mutex

	opts      Opts
	bus       *bus
	rst       gpio.PinOut
	busy      gpio.PinIn
	busyLevel gpio.Level

	state     atomic.Int32
	degraded  atomic.Bool
	refreshes atomic.Uint64
	modeSnap  atomic.Int32 // copy of mode for Status

	// Fields below are guarded by mu.
	mode         RefreshMode
	lutLoaded    bool
	lutMode      RefreshMode
	regLUTLoaded bool

	// Dual frame slot. prev is what the panel shows, next is what the last
	// transfer wrote. Both are allocated once and reused in place.
	prev []byte
	next []byte
	// scratch composes a frame before it is sent; planeB holds the second
	// plane of a 2-bit frame.
	scratch []byte
	planeB  []byte

	now   func() time.Time
	delay func(time.Duration)
}

// New builds a session over an SPI connection and four control lines. The
// panel is not touched beyond putting the control lines into their idle
// levels; call Initialize before anything else.
func New(c conn.Conn, dc, cs, rst gpio.PinOut, busy gpio.PinIn, opts *Opts) (*Driver, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if c == nil || dc == nil || cs == nil || rst == nil || busy == nil {
		return nil, fmt.Errorf("%w: spi connection and reset, dc, cs, busy pins are required", ErrInvalidOpts)
	}

	o := *opts
	o.Timing = o.Timing.withDefaults()

	d := &Driver{
		opts:      o,
		rst:       rst,
		busy:      busy,
		busyLevel: o.BusyActive.busyLevel(),
		mode:      FullRefresh1Bit,
		prev:      NewWhiteFrame(o.Geometry),
		next:      NewWhiteFrame(o.Geometry),
		scratch:   make([]byte, o.Geometry.FrameSize(Depth1Bit)),
		planeB:    make([]byte, o.Geometry.FrameSize(Depth1Bit)),
		now:       time.Now,
		delay:     time.Sleep,
	}
	d.modeSnap.Store(int32(d.mode))
	d.bus = newBus(c, dc, cs, o.MaxChunk, o.Timing.CommandSettle, func(t time.Duration) { d.delay(t) })

	if err := cs.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("%w: cs idle: %w", ErrTransport, err)
	}
	if err := dc.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("%w: dc idle: %w", ErrTransport, err)
	}
	if err := rst.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("%w: reset idle: %w", ErrTransport, err)
	}
	if err := busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("%w: busy input: %w", ErrTransport, err)
	}

	appLog.Debug("epd session created",
		"variant", o.Variant,
		"geometry", o.Geometry,
		"busy_active", o.BusyActive,
		"max_chunk", d.bus.maxChunk,
	)
	return d, nil
}

// Status reports the current state without waiting for a running operation.
func (d *Driver) Status() Status {
	return Status{
		State:     d.State(),
		Degraded:  d.degraded.Load(),
		Mode:      RefreshMode(d.modeSnap.Load()),
		Variant:   d.opts.Variant,
		Geometry:  d.opts.Geometry,
		Refreshes: d.refreshes.Load(),
	}
}

// State returns the current state machine position.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Geometry returns the panel geometry.
func (d *Driver) Geometry() Geometry {
	return d.opts.Geometry
}

// Frame returns a copy of the "new" frame slot.
func (d *Driver) Frame() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.next))
	copy(out, d.next)
	return out
}

// String implements fmt.Stringer.
func (d *Driver) String() string {
	return fmt.Sprintf("epd.Driver{%s, %s, busy=%s}", d.opts.Variant, d.opts.Geometry, d.opts.BusyActive)
}

func (d *Driver) setState(s State) {
	old := State(d.state.Swap(int32(s)))
	if old != s {
		appLog.Debug("epd state", "from", old, "to", s)
	}
}

// ready checks that a transfer, refresh or sleep may start. Caller holds mu.
func (d *Driver) ready() error {
	switch d.State() {
	case StateSleeping:
		return ErrDriverAsleep
	case StateUninitialized:
		return ErrNotInitialized
	}
	if d.degraded.Load() {
		return ErrDegraded
	}
	return nil
}

// Reset pulses the reset line: high, low, high, each held for ResetHold.
// The line is left high (out of reset).
func (d *Driver) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

func (d *Driver) reset() error {
	hold := d.opts.Timing.ResetHold
	for _, l := range []gpio.Level{gpio.High, gpio.Low, gpio.High} {
		if err := d.rst.Out(l); err != nil {
			return fmt.Errorf("%w: reset pin: %w", ErrTransport, err)
		}
		d.delay(hold)
	}
	return nil
}
