package ble

import (
	"fmt"
	"strings"

	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
	"github.com/KevinKickass/HaptiKnitConsole/internal/transport"
	"tinygo.org/x/bluetooth"
)

// Profile is the GATT layout of the sleeve controller.
type Profile struct {
	DeviceName      string
	Address         string
	Service         bluetooth.UUID
	Characteristics map[transport.Channel]bluetooth.UUID
}

// ParseProfile resolves the configured UUID strings. Unknown channel names
// and malformed UUIDs are configuration errors.
func ParseProfile(cfg config.BLEConfig) (Profile, error) {
	if cfg.DeviceName == "" && cfg.Address == "" {
		return Profile{}, fmt.Errorf("ble: device_name or address is required")
	}

	service, err := bluetooth.ParseUUID(cfg.ServiceUUID)
	if err != nil {
		return Profile{}, fmt.Errorf("ble: service uuid %q: %w", cfg.ServiceUUID, err)
	}

	p := Profile{
		DeviceName:      cfg.DeviceName,
		Address:         strings.ToUpper(cfg.Address),
		Service:         service,
		Characteristics: make(map[transport.Channel]bluetooth.UUID, len(cfg.Characteristics)),
	}
	for name, raw := range cfg.Characteristics {
		ch, err := transport.ParseChannel(name)
		if err != nil {
			return Profile{}, fmt.Errorf("ble: characteristics: %w", err)
		}
		id, err := bluetooth.ParseUUID(raw)
		if err != nil {
			return Profile{}, fmt.Errorf("ble: characteristic %s uuid %q: %w", name, raw, err)
		}
		p.Characteristics[ch] = id
	}

	for _, ch := range transport.Channels() {
		if _, ok := p.Characteristics[ch]; ch.Required() && !ok {
			return Profile{}, fmt.Errorf("ble: no characteristic configured for required channel %s", ch)
		}
	}
	return p, nil
}

// matches reports whether an advertisement belongs to the configured device.
func (p Profile) matches(address, localName string) bool {
	if p.Address != "" {
		return strings.EqualFold(address, p.Address)
	}
	return localName == p.DeviceName
}

// channelFor maps a discovered characteristic back to its channel.
func (p Profile) channelFor(id bluetooth.UUID) (transport.Channel, bool) {
	for ch, want := range p.Characteristics {
		if want == id {
			return ch, true
		}
	}
	return 0, false
}
