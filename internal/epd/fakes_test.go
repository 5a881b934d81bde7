package epd

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// tx is one recorded SPI transfer with the control line levels at the time.
type tx struct {
	dc   gpio.Level
	cs   gpio.Level
	data []byte
}

// recordConn is a conn.Conn that records every write.
type recordConn struct {
	mu    sync.Mutex
	dc    gpio.PinIn
	cs    gpio.PinIn
	txs   []tx
	maxTx int
	// hook runs before a transfer is recorded; a non-nil error fails it.
	hook func(t tx) error
}

var _ conn.Conn = (*recordConn)(nil)
var _ conn.Limits = (*recordConn)(nil)

func (r *recordConn) String() string      { return "recordConn" }
func (r *recordConn) Duplex() conn.Duplex { return conn.Half }
func (r *recordConn) MaxTxSize() int      { return r.maxTx }

func (r *recordConn) Tx(w, _ []byte) error {
	t := tx{dc: r.dc.Read(), cs: r.cs.Read(), data: bytes.Clone(w)}
	if r.hook != nil {
		if err := r.hook(t); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.txs = append(r.txs, t)
	r.mu.Unlock()
	return nil
}

func (r *recordConn) reset() {
	r.mu.Lock()
	r.txs = nil
	r.mu.Unlock()
}

// op is a command byte followed by all data bytes sent before the next
// command.
type op struct {
	cmd    byte
	data   []byte
	chunks int
}

func (r *recordConn) ops() []op {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []op
	for _, t := range r.txs {
		if t.dc == gpio.Low {
			out = append(out, op{cmd: t.data[0]})
			continue
		}
		if len(out) == 0 {
			out = append(out, op{cmd: 0xFF})
		}
		last := &out[len(out)-1]
		last.data = append(last.data, t.data...)
		last.chunks++
	}
	return out
}

func (r *recordConn) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

// isCmd reports whether the transfer is the single command byte b.
func isCmd(t tx, b byte) bool {
	return t.dc == gpio.Low && len(t.data) == 1 && t.data[0] == b
}

func findOps(ops []op, cmd byte) []op {
	var out []op
	for _, o := range ops {
		if o.cmd == cmd {
			out = append(out, o)
		}
	}
	return out
}

func cmds(ops []op) []byte {
	out := make([]byte, len(ops))
	for i, o := range ops {
		out[i] = o.cmd
	}
	return out
}

// levelAt is one output level change of a recorded pin.
type levelAt struct {
	l  gpio.Level
	at time.Duration
}

// recPin records every output level with the fake clock offset.
type recPin struct {
	*gpiotest.Pin
	clk *fakeClock
	log []levelAt
}

func (p *recPin) Out(l gpio.Level) error {
	p.log = append(p.log, levelAt{l, p.clk.elapsed()})
	return p.Pin.Out(l)
}

// fakeClock advances only when the driver sleeps.
type fakeClock struct {
	mu      sync.Mutex
	start   time.Time
	t       time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration)
}

func newFakeClock() *fakeClock {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeClock{start: t0, t: t0}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	fn := c.onSleep
	c.mu.Unlock()
	if fn != nil {
		fn(d)
	}
}

func (c *fakeClock) elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t.Sub(c.start)
}

// rig is a driver wired to fakes.
type rig struct {
	d    *Driver
	c    *recordConn
	dc   *gpiotest.Pin
	cs   *gpiotest.Pin
	rst  *recPin
	busy *gpiotest.Pin
	clk  *fakeClock
	pol  BusyPolarity
}

func flashOpts(w, h int) Opts {
	return Opts{Variant: FourWireFlashLUT, Geometry: Geometry{w, h}, BusyActive: BusyActiveHigh}
}

func noFlashOpts(w, h int) Opts {
	return Opts{Variant: NoFlashRegisterLUT, Geometry: Geometry{w, h}, BusyActive: BusyActiveLow}
}

func newRig(t *testing.T, opts Opts) *rig {
	t.Helper()
	clk := newFakeClock()
	r := &rig{
		dc:   &gpiotest.Pin{N: "dc"},
		cs:   &gpiotest.Pin{N: "cs"},
		busy: &gpiotest.Pin{N: "busy"},
		clk:  clk,
		pol:  opts.BusyActive,
	}
	r.rst = &recPin{Pin: &gpiotest.Pin{N: "rst"}, clk: clk}
	r.c = &recordConn{dc: r.dc, cs: r.cs}
	r.setBusy(false)

	d, err := New(r.c, r.dc, r.cs, r.rst, r.busy, &opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.now = clk.now
	d.delay = clk.sleep
	r.d = d
	return r
}

// setBusy drives the fake busy line to the busy or idle level of the
// configured polarity.
func (r *rig) setBusy(busy bool) {
	level := gpio.Level(busy)
	if r.pol == BusyActiveLow {
		level = !level
	}
	_ = r.busy.Out(level)
}

func (r *rig) init(t *testing.T, mode RefreshMode) {
	t.Helper()
	r.setBusy(false)
	if err := r.d.Initialize(testContext(t), mode); err != nil {
		t.Fatalf("Initialize(%s): %v", mode, err)
	}
	r.c.reset()
}
