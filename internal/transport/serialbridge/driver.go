// Package serialbridge reaches the sleeve through a USB bridge board that
// relays framed single-byte commands onto the radio link.
package serialbridge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"github.com/tarm/serial"
)

// Opener opens the port. Tests replace it with an in-memory pipe.
type Opener func(cfg config.SerialConfig) (io.ReadWriteCloser, error)

func openNative(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}

type Driver struct {
	cfg  config.SerialConfig
	open Opener
}

func NewDriver(cfg config.SerialConfig) *Driver {
	return &Driver{cfg: cfg, open: openNative}
}

// WithOpener swaps the port implementation.
func (d *Driver) WithOpener(open Opener) *Driver {
	d.open = open
	return d
}

func (d *Driver) Name() string { return "serial" }

func (d *Driver) Dial(ctx context.Context) (transport.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port, err := d.open(d.cfg)
	if err != nil {
		return nil, err
	}
	return &link{port: port, device: d.cfg.Device, timeout: d.cfg.ReadTimeout}, nil
}

// link owns the port. The bridge answers requests strictly in order, so
// every exchange holds mu from request to response.
type link struct {
	device  string
	timeout time.Duration

	mu     sync.Mutex
	port   io.ReadWriteCloser
	closed bool
}

// Endpoint: the bridge relays every channel, it has no discovery of its own.
func (l *link) Endpoint(ch transport.Channel) (transport.Endpoint, bool) {
	return &endpoint{link: l, channel: uint8(ch)}, true
}

func (l *link) DeviceName() string { return l.device }

func (l *link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}

func (l *link) exchange(ctx context.Context, req Frame, wantReply bool) (Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if l.closed {
		return Frame{}, fmt.Errorf("%w: %s closed", transport.ErrLinkLost, l.device)
	}

	if _, err := l.port.Write(req.Encode()); err != nil {
		return Frame{}, fmt.Errorf("%w: write failed: %w", transport.ErrLinkLost, err)
	}
	if !wantReply {
		return Frame{}, nil
	}

	buf := make([]byte, FrameSize)
	if _, err := io.ReadFull(l.port, buf); err != nil {
		return Frame{}, fmt.Errorf("%w: read failed: %w", transport.ErrLinkLost, err)
	}

	// The stream cannot be realigned after a bad reply, so the link is
	// dropped and the next connect starts clean.
	resp, err := DecodeFrame(buf)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", transport.ErrLinkLost, err)
	}
	if resp.Op != req.Op || resp.Channel != req.Channel {
		return Frame{}, fmt.Errorf("%w: %w: reply op 0x%02X channel %d for request op 0x%02X channel %d",
			transport.ErrLinkLost, ErrBadFrame, resp.Op, resp.Channel, req.Op, req.Channel)
	}
	return resp, nil
}

type endpoint struct {
	link    *link
	channel uint8
}

func (e *endpoint) Send(ctx context.Context, b byte) error {
	_, err := e.link.exchange(ctx, WriteRequest(e.channel, b), false)
	return err
}

func (e *endpoint) Receive(ctx context.Context) (byte, error) {
	resp, err := e.link.exchange(ctx, ReadRequest(e.channel), true)
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}
