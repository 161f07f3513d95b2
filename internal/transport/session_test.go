package transport_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport/sim"
	"go.uber.org/zap"
)

func newSession(t *testing.T) (*transport.Session, *sim.Device) {
	t.Helper()
	dev := sim.NewDevice("HaptiKnit")
	return transport.NewSession(sim.NewDriver(dev), zap.NewNop()), dev
}

func TestWriteWhileDisconnected(t *testing.T) {
	s, dev := newSession(t)

	err := s.Write(context.Background(), transport.ChannelCommand, 5)
	if !errors.Is(err, transport.ErrTransport) {
		t.Fatalf("Write error = %v, want ErrTransport", err)
	}
	if s.State() != transport.StateDisconnected {
		t.Fatalf("state = %s, want disconnected", s.State())
	}
	if len(dev.Writes()) != 0 {
		t.Fatalf("device received %d writes", len(dev.Writes()))
	}
}

func TestConnectWriteDisconnect(t *testing.T) {
	s, dev := newSession(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []transport.State
	s.OnStateChange(func(_, current transport.State) {
		mu.Lock()
		seen = append(seen, current)
		mu.Unlock()
	})

	info, err := s.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if info.Device != "HaptiKnit" || info.Driver != "sim" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if len(info.Channels) != 5 {
		t.Fatalf("resolved %d channels, want 5", len(info.Channels))
	}

	if err := s.Write(ctx, transport.ChannelCommand, 7); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := dev.Payloads(transport.ChannelCommand); len(got) != 1 || got[0] != 7 {
		t.Fatalf("payloads = %v, want [7]", got)
	}

	s.Disconnect()
	if s.State() != transport.StateDisconnected || dev.Open() {
		t.Fatalf("still connected after Disconnect")
	}
	// Second disconnect is a no-op.
	s.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	want := []transport.State{transport.StateConnecting, transport.StateConnected, transport.StateDisconnected}
	if len(seen) != len(want) {
		t.Fatalf("state changes = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("state changes = %v, want %v", seen, want)
		}
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	s, dev := newSession(t)
	ctx := context.Background()

	first, err := s.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	second, err := s.Connect(ctx)
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if first.SessionID != second.SessionID {
		t.Fatalf("second Connect opened a new session")
	}
	if dev.Dials() != 1 {
		t.Fatalf("dials = %d, want 1", dev.Dials())
	}
}

func TestConnectWhileConnecting(t *testing.T) {
	s, dev := newSession(t)
	release := dev.HoldDial()

	done := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != transport.StateConnecting {
		if time.Now().After(deadline) {
			t.Fatalf("session never entered connecting")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Connect(context.Background()); !errors.Is(err, transport.ErrConnectInProgress) {
		t.Fatalf("concurrent Connect error = %v, want ErrConnectInProgress", err)
	}
	if !errors.Is(transport.ErrConnectInProgress, transport.ErrConnection) {
		t.Fatalf("ErrConnectInProgress must be a ConnectionError")
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if dev.Dials() != 1 {
		t.Fatalf("dials = %d, want 1", dev.Dials())
	}
}

func TestConnectFailure(t *testing.T) {
	s, dev := newSession(t)
	dev.FailDial(errors.New("user cancelled chooser"))

	_, err := s.Connect(context.Background())
	if !errors.Is(err, transport.ErrConnection) {
		t.Fatalf("Connect error = %v, want ErrConnection", err)
	}
	if s.State() != transport.StateDisconnected {
		t.Fatalf("state = %s, want disconnected", s.State())
	}

	dev.FailDial(nil)
	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("retry Connect: %v", err)
	}
}

func TestConnectMissingRequiredChannel(t *testing.T) {
	s, dev := newSession(t)
	dev.Offer(transport.ChannelCommand)

	_, err := s.Connect(context.Background())
	if !errors.Is(err, transport.ErrConnection) {
		t.Fatalf("Connect error = %v, want ErrConnection", err)
	}
	if dev.Open() {
		t.Fatalf("incomplete link left open")
	}
}

func TestOptionalChannelNotFound(t *testing.T) {
	s, dev := newSession(t)
	dev.Offer(transport.ChannelCommand, transport.ChannelBattery)
	ctx := context.Background()

	if _, err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	err := s.Write(ctx, transport.ChannelPressure, 40)
	if !errors.Is(err, transport.ErrChannelNotFound) {
		t.Fatalf("Write error = %v, want ErrChannelNotFound", err)
	}
	if s.State() != transport.StateConnected {
		t.Fatalf("state = %s, want connected", s.State())
	}
}

func TestTransientWriteFailureKeepsState(t *testing.T) {
	s, dev := newSession(t)
	ctx := context.Background()
	if _, err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	dev.FailNext(transport.ChannelCommand, errors.New("gatt nack"))
	if err := s.Write(ctx, transport.ChannelCommand, 1); !errors.Is(err, transport.ErrTransport) {
		t.Fatalf("Write error = %v, want ErrTransport", err)
	}
	if s.State() != transport.StateConnected {
		t.Fatalf("state = %s, want connected", s.State())
	}
	if err := s.Write(ctx, transport.ChannelCommand, 2); err != nil {
		t.Fatalf("Write after transient failure: %v", err)
	}
}

func TestLinkLossDisconnects(t *testing.T) {
	s, dev := newSession(t)
	ctx := context.Background()
	if _, err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	dev.DropLink()
	err := s.Write(ctx, transport.ChannelCommand, 1)
	if !errors.Is(err, transport.ErrLinkLost) || !errors.Is(err, transport.ErrTransport) {
		t.Fatalf("Write error = %v, want ErrLinkLost", err)
	}
	if s.State() != transport.StateDisconnected {
		t.Fatalf("state = %s, want disconnected", s.State())
	}
	if _, ok := s.Info(); ok {
		t.Fatalf("Info still reported after link loss")
	}
}

func TestReadReturnsValue(t *testing.T) {
	s, dev := newSession(t)
	ctx := context.Background()
	dev.SetValue(transport.ChannelBattery, 87)

	if _, err := s.Read(ctx, transport.ChannelBattery); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("Read while disconnected error = %v, want ErrNotConnected", err)
	}

	if _, err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	got, err := s.Read(ctx, transport.ChannelBattery)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != 87 {
		t.Fatalf("Read = %d, want 87", got)
	}
}

func TestWritesAreSerialized(t *testing.T) {
	s, dev := newSession(t)
	ctx := context.Background()
	if _, err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v byte) {
			defer wg.Done()
			if err := s.Write(ctx, transport.ChannelCommand, v); err != nil {
				t.Errorf("Write(%d): %v", v, err)
			}
		}(byte(i))
	}
	wg.Wait()

	if got := len(dev.Payloads(transport.ChannelCommand)); got != 50 {
		t.Fatalf("device received %d writes, want 50", got)
	}
}
