// Package ble dials the sleeve controller over Bluetooth Low Energy GATT.
package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// maxConsecutiveFailures GATT errors in a row are treated as a lost link.
const maxConsecutiveFailures = 3

var errDeviceNotFound = errors.New("no matching device advertised")

type Driver struct {
	adapter *bluetooth.Adapter
	profile Profile
	timeout time.Duration
	logger  *zap.Logger

	enableOnce sync.Once
	enableErr  error
}

func NewDriver(profile Profile, timeout time.Duration, logger *zap.Logger) *Driver {
	return &Driver{
		adapter: bluetooth.DefaultAdapter,
		profile: profile,
		timeout: timeout,
		logger:  logger,
	}
}

func (d *Driver) Name() string { return "ble" }

func (d *Driver) Dial(ctx context.Context) (transport.Link, error) {
	d.enableOnce.Do(func() {
		d.enableErr = d.adapter.Enable()
	})
	if d.enableErr != nil {
		return nil, fmt.Errorf("failed to enable adapter: %w", d.enableErr)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	result, err := d.scan(ctx)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Device found",
		zap.String("name", result.LocalName()),
		zap.String("address", result.Address.String()),
		zap.Int16("rssi", result.RSSI))

	device, err := d.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("gatt connect %s: %w", result.Address.String(), err)
	}

	l := &link{
		name:       result.LocalName(),
		disconnect: func() error { return device.Disconnect() },
		endpoints:  make(map[transport.Channel]*endpoint),
	}
	if l.name == "" {
		l.name = result.Address.String()
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{d.profile.Service})
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("service discovery: %w", err)
	}
	if len(services) == 0 {
		_ = l.Close()
		return nil, fmt.Errorf("service %s not offered by %s", d.profile.Service.String(), l.name)
	}

	chars, err := services[0].DiscoverCharacteristics(nil)
	if err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("characteristic discovery: %w", err)
	}

	for i := range chars {
		c := chars[i]
		ch, ok := d.profile.channelFor(c.UUID())
		if !ok {
			continue
		}
		l.endpoints[ch] = &endpoint{
			link: l,
			write: func(b []byte) error {
				_, err := c.WriteWithoutResponse(b)
				return err
			},
			read: func(buf []byte) (int, error) {
				return c.Read(buf)
			},
		}
	}
	return l, nil
}

// scan blocks until a matching advertisement arrives or ctx ends.
func (d *Driver) scan(ctx context.Context) (bluetooth.ScanResult, error) {
	found := make(chan bluetooth.ScanResult, 1)
	done := make(chan error, 1)

	go func() {
		done <- d.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
			if !d.profile.matches(r.Address.String(), r.LocalName()) {
				return
			}
			select {
			case found <- r:
			default:
			}
			_ = a.StopScan()
		})
	}()

	select {
	case r := <-found:
		<-done
		return r, nil
	case err := <-done:
		if err != nil {
			return bluetooth.ScanResult{}, fmt.Errorf("scan failed: %w", err)
		}
		select {
		case r := <-found:
			return r, nil
		default:
			return bluetooth.ScanResult{}, errDeviceNotFound
		}
	case <-ctx.Done():
		_ = d.adapter.StopScan()
		<-done
		return bluetooth.ScanResult{}, fmt.Errorf("%w: %w", errDeviceNotFound, ctx.Err())
	}
}

type link struct {
	name       string
	disconnect func() error

	// Written once during Dial, read-only afterwards.
	endpoints map[transport.Channel]*endpoint

	// GATT operations on one connection are not pipelined.
	mu       sync.Mutex
	failures int
	closed   bool
}

func (l *link) Endpoint(ch transport.Channel) (transport.Endpoint, bool) {
	ep, ok := l.endpoints[ch]
	if !ok {
		return nil, false
	}
	return ep, true
}

func (l *link) DeviceName() string { return l.name }

func (l *link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.disconnect()
}

// do runs one GATT operation and tracks consecutive failures.
func (l *link) do(ctx context.Context, op func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if l.closed {
		return fmt.Errorf("%w: %s closed", transport.ErrLinkLost, l.name)
	}

	if err := op(); err != nil {
		l.failures++
		if l.failures >= maxConsecutiveFailures {
			return fmt.Errorf("%w: %d consecutive gatt failures: %w", transport.ErrLinkLost, l.failures, err)
		}
		return err
	}
	l.failures = 0
	return nil
}

type endpoint struct {
	link  *link
	write func([]byte) error
	read  func([]byte) (int, error)
}

func (e *endpoint) Send(ctx context.Context, b byte) error {
	return e.link.do(ctx, func() error {
		return e.write([]byte{b})
	})
}

func (e *endpoint) Receive(ctx context.Context) (byte, error) {
	var value byte
	err := e.link.do(ctx, func() error {
		buf := make([]byte, 1)
		n, err := e.read(buf)
		if err != nil {
			return err
		}
		if n < 1 {
			return errors.New("empty characteristic value")
		}
		value = buf[0]
		return nil
	})
	return value, err
}
