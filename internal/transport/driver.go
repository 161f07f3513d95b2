package transport

import "context"

// Endpoint is one resolved channel on an open link.
type Endpoint interface {
	Send(ctx context.Context, b byte) error
	Receive(ctx context.Context) (byte, error)
}

// Link is an open connection to one device. Endpoint reports false for
// channels the device does not offer.
type Link interface {
	Endpoint(ch Channel) (Endpoint, bool)
	DeviceName() string
	Close() error
}

// Driver selects a device and opens a Link to it. The discovery details
// (GATT UUIDs, serial device path) belong to the driver's configuration.
type Driver interface {
	Name() string
	Dial(ctx context.Context) (Link, error)
}
