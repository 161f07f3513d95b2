package encoder

import (
	"errors"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		value   int
		want    byte
		wantErr error
	}{
		{name: "direct zero", mode: ModeDirect, value: 0, want: 0},
		{name: "direct max", mode: ModeDirect, value: 255, want: 255},
		{name: "direct stop", mode: ModeDirect, value: DefaultStopAllCommand, want: 100},
		{name: "offset actuator id", mode: ModeOffset, value: 0, want: 1},
		{name: "offset inflate", mode: ModeOffset, value: DefaultInflateAllCommand, want: 12},
		{name: "offset overflow", mode: ModeOffset, value: 255, wantErr: ErrEncodingRange},
		{name: "direct overflow", mode: ModeDirect, value: 256, wantErr: ErrEncodingRange},
		{name: "direct negative", mode: ModeDirect, value: -1, wantErr: ErrEncodingRange},
		{name: "offset negative one", mode: ModeOffset, value: -1, want: 0},
		{name: "unknown mode", mode: Mode("xor"), value: 1, wantErr: ErrUnknownMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.mode, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Encode(%s, %d) error = %v, want %v", tt.mode, tt.value, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Encode(%s, %d): %v", tt.mode, tt.value, err)
			}
			if got != tt.want {
				t.Fatalf("Encode(%s, %d) = %d, want %d", tt.mode, tt.value, got, tt.want)
			}
		})
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	for v := 0; v < 255; v++ {
		a, errA := Encode(ModeOffset, v)
		b, errB := Encode(ModeOffset, v)
		if a != b || (errA == nil) != (errB == nil) {
			t.Fatalf("Encode(offset, %d) not stable: %d/%v vs %d/%v", v, a, errA, b, errB)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("offset"); err != nil || m != ModeOffset {
		t.Fatalf("ParseMode(offset) = %q, %v", m, err)
	}
	if _, err := ParseMode("plus-one"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("ParseMode(plus-one) error = %v, want ErrUnknownMode", err)
	}
}
