package serialbridge

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"go.uber.org/zap"
)

// bridge plays the board side of a pipe.
type bridge struct {
	conn net.Conn

	mu     sync.Mutex
	writes []Frame
	values map[uint8]uint8
	// mangle, when set, rewrites every read reply before it is sent.
	mangle func([]byte) []byte
}

func (b *bridge) serve() {
	buf := make([]byte, FrameSize)
	for {
		if _, err := io.ReadFull(b.conn, buf); err != nil {
			return
		}
		f, err := DecodeFrame(buf)
		if err != nil {
			return
		}

		b.mu.Lock()
		switch f.Op {
		case OpWrite:
			b.writes = append(b.writes, f)
			b.mu.Unlock()
		case OpRead:
			reply := Frame{Op: OpRead, Channel: f.Channel, Value: b.values[f.Channel]}.Encode()
			if b.mangle != nil {
				reply = b.mangle(reply)
			}
			b.mu.Unlock()
			if _, err := b.conn.Write(reply); err != nil {
				return
			}
		default:
			b.mu.Unlock()
		}
	}
}

func (b *bridge) written() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Frame(nil), b.writes...)
}

func newBridgeSession(t *testing.T) (*transport.Session, *bridge) {
	t.Helper()
	host, board := net.Pipe()
	b := &bridge{conn: board, values: map[uint8]uint8{uint8(transport.ChannelBattery): 64}}
	go b.serve()
	t.Cleanup(func() {
		_ = host.Close()
		_ = board.Close()
	})

	drv := NewDriver(config.SerialConfig{Device: "/dev/ttyTEST0", Baud: 115200}).
		WithOpener(func(config.SerialConfig) (io.ReadWriteCloser, error) { return host, nil })
	return transport.NewSession(drv, zap.NewNop()), b
}

func TestSessionOverBridge(t *testing.T) {
	s, b := newBridgeSession(t)
	ctx := context.Background()

	info, err := s.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if info.Device != "/dev/ttyTEST0" || info.Driver != "serial" {
		t.Fatalf("info = %+v", info)
	}

	for _, v := range []byte{20, 30, 100} {
		if err := s.Write(ctx, transport.ChannelCommand, v); err != nil {
			t.Fatalf("Write(%d): %v", v, err)
		}
	}

	level, err := s.Read(ctx, transport.ChannelBattery)
	if err != nil || level != 64 {
		t.Fatalf("Read battery = %d, %v", level, err)
	}

	// The read round-trip orders it after every earlier write.
	got := b.written()
	if len(got) != 3 || got[0].Value != 20 || got[2].Value != 100 || got[1].Channel != uint8(transport.ChannelCommand) {
		t.Fatalf("bridge writes = %+v", got)
	}
}

func TestBridgeGoneDisconnects(t *testing.T) {
	s, b := newBridgeSession(t)
	ctx := context.Background()

	if _, err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = b.conn.Close()

	err := s.Write(ctx, transport.ChannelCommand, 1)
	if !errors.Is(err, transport.ErrLinkLost) {
		t.Fatalf("Write error = %v, want ErrLinkLost", err)
	}
	if s.State() != transport.StateDisconnected {
		t.Fatalf("state = %s, want disconnected", s.State())
	}
}

func TestBadReplyDropsLink(t *testing.T) {
	tests := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"checksum", func(b []byte) []byte {
			b[FrameSize-1] ^= 0xFF
			return b
		}},
		{"start byte", func(b []byte) []byte {
			b[0] = 0x00
			return b
		}},
		{"wrong channel", func([]byte) []byte {
			return Frame{Op: OpRead, Channel: uint8(transport.ChannelCommand), Value: 1}.Encode()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, b := newBridgeSession(t)
			ctx := context.Background()
			if _, err := s.Connect(ctx); err != nil {
				t.Fatalf("Connect: %v", err)
			}
			b.mu.Lock()
			b.mangle = tt.mangle
			b.mu.Unlock()

			_, err := s.Read(ctx, transport.ChannelBattery)
			if !errors.Is(err, transport.ErrLinkLost) || !errors.Is(err, ErrBadFrame) {
				t.Fatalf("Read error = %v, want ErrLinkLost and ErrBadFrame", err)
			}
			if s.State() != transport.StateDisconnected {
				t.Fatalf("state = %s, want disconnected", s.State())
			}
		})
	}
}

func TestOpenFailure(t *testing.T) {
	drv := NewDriver(config.SerialConfig{Device: "/dev/missing"}).
		WithOpener(func(config.SerialConfig) (io.ReadWriteCloser, error) {
			return nil, errors.New("no such device")
		})
	s := transport.NewSession(drv, zap.NewNop())

	if _, err := s.Connect(context.Background()); !errors.Is(err, transport.ErrConnection) {
		t.Fatalf("Connect error = %v, want ErrConnection", err)
	}
}
