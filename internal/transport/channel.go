package transport

import "fmt"

// Channel is a named wire endpoint on the sleeve controller. The set is
// closed; drivers resolve each value into an Endpoint at connect time.
type Channel uint8

const (
	ChannelCommand Channel = iota
	ChannelBattery
	ChannelMinPressure
	ChannelMaxPressure
	ChannelPressure

	channelCount
)

var channelNames = [channelCount]string{
	ChannelCommand:     "command",
	ChannelBattery:     "battery",
	ChannelMinPressure: "min_pressure",
	ChannelMaxPressure: "max_pressure",
	ChannelPressure:    "pressure",
}

func (c Channel) String() string {
	if c >= channelCount {
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
	return channelNames[c]
}

// Required reports whether a connect must fail when the device does not
// offer c. The pressure channels are placeholders the firmware may omit.
func (c Channel) Required() bool {
	return c == ChannelCommand || c == ChannelBattery
}

func (c Channel) MarshalText() ([]byte, error) {
	if c >= channelCount {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, uint8(c))
	}
	return []byte(channelNames[c]), nil
}

// Channels lists every channel in declaration order.
func Channels() []Channel {
	out := make([]Channel, 0, channelCount)
	for c := Channel(0); c < channelCount; c++ {
		out = append(out, c)
	}
	return out
}

// ParseChannel resolves a configuration or API name.
func ParseChannel(name string) (Channel, error) {
	for c, n := range channelNames {
		if n == name {
			return Channel(c), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}
