package ble

import (
	"context"
	"errors"
	"testing"

	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"tinygo.org/x/bluetooth"
)

func defaultBLEConfig() config.BLEConfig {
	return config.BLEConfig{
		DeviceName:  "PortFlow8",
		ServiceUUID: "00002a6a-0000-1000-8000-00805f9b34fb",
		Characteristics: map[string]string{
			"command":      "00002a6b-0000-1000-8000-00805f9b34fb",
			"battery":      "00002a6f-0000-1000-8000-00805f9b34fb",
			"min_pressure": "00002a6c-0000-1000-8000-00805f9b34fb",
		},
	}
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile(defaultBLEConfig())
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	if len(p.Characteristics) != 3 {
		t.Fatalf("characteristics = %d, want 3", len(p.Characteristics))
	}

	cmd, _ := bluetooth.ParseUUID("00002a6b-0000-1000-8000-00805f9b34fb")
	if ch, ok := p.channelFor(cmd); !ok || ch != transport.ChannelCommand {
		t.Fatalf("channelFor(command uuid) = %v, %v", ch, ok)
	}
	other, _ := bluetooth.ParseUUID("00002a6d-0000-1000-8000-00805f9b34fb")
	if _, ok := p.channelFor(other); ok {
		t.Fatalf("unconfigured uuid resolved to a channel")
	}
}

func TestParseProfileErrors(t *testing.T) {
	tests := map[string]func(*config.BLEConfig){
		"no target":       func(c *config.BLEConfig) { c.DeviceName = "" },
		"bad service":     func(c *config.BLEConfig) { c.ServiceUUID = "2a6a" },
		"unknown channel": func(c *config.BLEConfig) { c.Characteristics["humidity"] = c.ServiceUUID },
		"bad char uuid":   func(c *config.BLEConfig) { c.Characteristics["battery"] = "nope" },
		"missing battery": func(c *config.BLEConfig) { delete(c.Characteristics, "battery") },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := defaultBLEConfig()
			mutate(&cfg)
			if _, err := ParseProfile(cfg); err == nil {
				t.Fatalf("ParseProfile succeeded")
			}
		})
	}
}

func TestMatches(t *testing.T) {
	byName := Profile{DeviceName: "PortFlow8"}
	if !byName.matches("AA:BB:CC:DD:EE:FF", "PortFlow8") || byName.matches("AA:BB:CC:DD:EE:FF", "Other") {
		t.Fatalf("name matching broken")
	}

	byAddr := Profile{DeviceName: "PortFlow8", Address: "AA:BB:CC:DD:EE:FF"}
	if !byAddr.matches("aa:bb:cc:dd:ee:ff", "") || byAddr.matches("11:22:33:44:55:66", "PortFlow8") {
		t.Fatalf("address matching broken")
	}
}

func TestLinkFailuresBecomeLinkLoss(t *testing.T) {
	closed := false
	l := &link{
		name:       "PortFlow8",
		disconnect: func() error { closed = true; return nil },
		endpoints:  make(map[transport.Channel]*endpoint),
	}
	gattErr := errors.New("gatt: busy")
	fail := true
	l.endpoints[transport.ChannelCommand] = &endpoint{
		link: l,
		write: func([]byte) error {
			if fail {
				return gattErr
			}
			return nil
		},
	}

	ep, ok := l.Endpoint(transport.ChannelCommand)
	if !ok {
		t.Fatalf("command endpoint missing")
	}
	if _, ok := l.Endpoint(transport.ChannelBattery); ok {
		t.Fatalf("battery endpoint present")
	}

	ctx := context.Background()
	for i := 1; i < maxConsecutiveFailures; i++ {
		if err := ep.Send(ctx, 1); !errors.Is(err, gattErr) || errors.Is(err, transport.ErrLinkLost) {
			t.Fatalf("failure %d = %v, want transient", i, err)
		}
	}

	fail = false
	if err := ep.Send(ctx, 1); err != nil {
		t.Fatalf("Send: %v", err)
	}

	fail = true
	var err error
	for i := 0; i < maxConsecutiveFailures; i++ {
		err = ep.Send(ctx, 1)
	}
	if !errors.Is(err, transport.ErrLinkLost) {
		t.Fatalf("error after %d failures = %v, want ErrLinkLost", maxConsecutiveFailures, err)
	}

	_ = l.Close()
	if !closed {
		t.Fatalf("Close did not disconnect")
	}
	if err := ep.Send(ctx, 1); !errors.Is(err, transport.ErrLinkLost) {
		t.Fatalf("Send after Close = %v", err)
	}
}
