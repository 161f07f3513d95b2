package transport

import (
	"errors"
	"testing"
)

func TestParseChannel(t *testing.T) {
	for _, ch := range Channels() {
		got, err := ParseChannel(ch.String())
		if err != nil {
			t.Fatalf("ParseChannel(%q): %v", ch.String(), err)
		}
		if got != ch {
			t.Fatalf("ParseChannel(%q) = %v, want %v", ch.String(), got, ch)
		}
	}

	if _, err := ParseChannel("led"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("ParseChannel(led) error = %v, want ErrUnknownChannel", err)
	}
}

func TestRequiredChannels(t *testing.T) {
	required := map[Channel]bool{ChannelCommand: true, ChannelBattery: true}
	for _, ch := range Channels() {
		if ch.Required() != required[ch] {
			t.Fatalf("%s.Required() = %v", ch, ch.Required())
		}
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateDisconnected, true},
		{StateConnected, StateDisconnected, true},
		{StateDisconnected, StateConnected, false},
		{StateConnected, StateConnecting, false},
		{State("pairing"), StateConnected, false},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if (err == nil) != tt.ok {
			t.Fatalf("ValidateTransition(%s, %s) = %v, want ok=%v", tt.from, tt.to, err, tt.ok)
		}
	}
}
