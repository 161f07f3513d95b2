package serialbridge

import (
	"errors"
	"fmt"
)

// Frame layout: start | op | channel | value | checksum. The checksum is the
// XOR of op, channel and value.
const (
	FrameStart = 0x7E
	FrameSize  = 5
)

// Bridge operations
const (
	OpRead  = 0x03
	OpWrite = 0x06
)

var ErrBadFrame = errors.New("bad bridge frame")

type Frame struct {
	Op      uint8
	Channel uint8
	Value   uint8
}

func (f Frame) checksum() uint8 {
	return f.Op ^ f.Channel ^ f.Value
}

// Encode erstellt das komplette Frame
func (f Frame) Encode() []byte {
	return []byte{FrameStart, f.Op, f.Channel, f.Value, f.checksum()}
}

// DecodeFrame parses one frame as sent by the bridge.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < FrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(data))
	}
	if data[0] != FrameStart {
		return Frame{}, fmt.Errorf("%w: start byte 0x%02X", ErrBadFrame, data[0])
	}

	f := Frame{Op: data[1], Channel: data[2], Value: data[3]}
	if sum := f.checksum(); sum != data[4] {
		return Frame{}, fmt.Errorf("%w: checksum 0x%02X, want 0x%02X", ErrBadFrame, data[4], sum)
	}
	return f, nil
}

func WriteRequest(channel, value uint8) Frame {
	return Frame{Op: OpWrite, Channel: channel, Value: value}
}

func ReadRequest(channel uint8) Frame {
	return Frame{Op: OpRead, Channel: channel}
}
