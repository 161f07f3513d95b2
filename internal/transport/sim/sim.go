// Package sim provides an in-memory sleeve controller. It backs dry runs
// (transport.driver: sim) and the transport and console tests.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
)

// Write is one byte received by the simulated device.
type Write struct {
	Channel transport.Channel
	Payload byte
}

// Device is the simulated controller. All methods are safe for concurrent use.
type Device struct {
	name string

	mu       sync.Mutex
	offered  map[transport.Channel]bool
	values   map[transport.Channel]byte
	writes   []Write
	failNext map[transport.Channel]error
	dialErr  error
	hold     chan struct{}
	dials    int
	gen      int
	open     bool
	lost     bool
}

func NewDevice(name string) *Device {
	d := &Device{
		name:     name,
		offered:  make(map[transport.Channel]bool),
		values:   make(map[transport.Channel]byte),
		failNext: make(map[transport.Channel]error),
	}
	for _, ch := range transport.Channels() {
		d.offered[ch] = true
	}
	return d
}

// Offer restricts the channels the device exposes on the next dial.
func (d *Device) Offer(channels ...transport.Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offered = make(map[transport.Channel]bool, len(channels))
	for _, ch := range channels {
		d.offered[ch] = true
	}
}

// SetValue sets the byte returned by reads on ch.
func (d *Device) SetValue(ch transport.Channel, b byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[ch] = b
}

// FailDial makes every dial fail with err until cleared with nil.
func (d *Device) FailDial(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

// FailNext makes the next I/O on ch fail with err.
func (d *Device) FailNext(ch transport.Channel, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext[ch] = err
}

// DropLink simulates the radio going away: every I/O on the current link
// fails with transport.ErrLinkLost.
func (d *Device) DropLink() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
}

// HoldDial blocks dials until the returned release func is called.
func (d *Device) HoldDial() (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.hold = ch
	var once sync.Once
	return func() {
		once.Do(func() { close(ch) })
	}
}

func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

// Payloads returns the bytes written on ch in arrival order.
func (d *Device) Payloads(ch transport.Channel) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []byte
	for _, w := range d.writes {
		if w.Channel == ch {
			out = append(out, w.Payload)
		}
	}
	return out
}

func (d *Device) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Open reports whether a link is currently open.
func (d *Device) Open() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Driver dials a simulated Device.
type Driver struct {
	dev *Device
}

func NewDriver(dev *Device) *Driver {
	return &Driver{dev: dev}
}

func (dr *Driver) Name() string { return "sim" }

func (dr *Driver) Dial(ctx context.Context) (transport.Link, error) {
	d := dr.dev

	d.mu.Lock()
	d.dials++
	hold := d.hold
	d.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dialErr != nil {
		return nil, d.dialErr
	}
	d.gen++
	d.open = true
	d.lost = false

	offered := make(map[transport.Channel]bool, len(d.offered))
	for ch, ok := range d.offered {
		offered[ch] = ok
	}
	return &link{dev: d, gen: d.gen, offered: offered}, nil
}

type link struct {
	dev     *Device
	gen     int
	offered map[transport.Channel]bool
}

func (l *link) Endpoint(ch transport.Channel) (transport.Endpoint, bool) {
	if !l.offered[ch] {
		return nil, false
	}
	return &endpoint{link: l, ch: ch}, true
}

func (l *link) DeviceName() string { return l.dev.name }

func (l *link) Close() error {
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen == l.gen {
		d.open = false
	}
	return nil
}

type endpoint struct {
	link *link
	ch   transport.Channel
}

// check must be called with the device lock held.
func (e *endpoint) check(ctx context.Context) error {
	d := e.link.dev
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.gen != e.link.gen || !d.open || d.lost {
		return fmt.Errorf("%w: %s", transport.ErrLinkLost, d.name)
	}
	if err, ok := d.failNext[e.ch]; ok {
		delete(d.failNext, e.ch)
		return err
	}
	return nil
}

func (e *endpoint) Send(ctx context.Context, b byte) error {
	d := e.link.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return err
	}
	d.writes = append(d.writes, Write{Channel: e.ch, Payload: b})
	return nil
}

func (e *endpoint) Receive(ctx context.Context) (byte, error) {
	d := e.link.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := e.check(ctx); err != nil {
		return 0, err
	}
	return d.values[e.ch], nil
}
