// Package encoder turns logical command values into the single-byte payloads
// the sleeve firmware expects.
package encoder

import (
	"errors"
	"fmt"
)

// Mode selects how a logical value maps onto the wire.
type Mode string

const (
	// ModeDirect sends the value unmodified.
	ModeDirect Mode = "direct"
	// ModeOffset sends value+1 so that 0 stays free as a sentinel on the wire.
	ModeOffset Mode = "offset"
)

var (
	ErrEncodingRange = errors.New("payload outside byte range")
	ErrUnknownMode   = errors.New("unknown encoding mode")
)

// Protocol command values understood by the firmware.
const (
	DefaultStopAllCommand    = 100
	DefaultInflateAllCommand = 11
)

// ParseMode validates a mode name from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDirect, ModeOffset:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Encode maps value to its payload byte under mode.
func Encode(mode Mode, value int) (byte, error) {
	payload := value
	switch mode {
	case ModeDirect:
	case ModeOffset:
		payload = value + 1
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
	}

	if payload < 0 || payload > 255 {
		return 0, fmt.Errorf("%w: value %d encodes to %d in %s mode", ErrEncodingRange, value, payload, mode)
	}
	return byte(payload), nil
}
