package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Info describes the currently open link.
type Info struct {
	SessionID   uuid.UUID `json:"session_id"`
	Driver      string    `json:"driver"`
	Device      string    `json:"device"`
	Channels    []Channel `json:"channels"`
	ConnectedAt time.Time `json:"connected_at"`
}

// StateListener is called after every state change, outside the session lock.
type StateListener func(previous, current State)

// Session owns the connection lifecycle to one device and serializes all
// wire I/O on it.
type Session struct {
	driver Driver
	logger *zap.Logger

	// ioMu is held for the duration of a write or read so that requests
	// reach the device one at a time. Always taken before mu.
	ioMu sync.Mutex

	mu        sync.Mutex
	state     State
	link      Link
	endpoints [channelCount]Endpoint
	info      Info
	listeners []StateListener
}

func NewSession(driver Driver, logger *zap.Logger) *Session {
	return &Session{
		driver: driver,
		logger: logger,
		state:  StateDisconnected,
	}
}

// OnStateChange registers a listener for connection state changes.
func (s *Session) OnStateChange(fn StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns the link description while connected.
func (s *Session) Info() (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return Info{}, false
	}
	return s.info, true
}

// Connect opens the link and resolves every channel. Calling it while
// connected returns the current link without dialing again.
func (s *Session) Connect(ctx context.Context) (Info, error) {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		info := s.info
		s.mu.Unlock()
		return info, nil
	case StateConnecting:
		s.mu.Unlock()
		return Info{}, ErrConnectInProgress
	}
	s.setStateLocked(StateConnecting)
	listeners := s.listeners
	s.mu.Unlock()
	notify(listeners, StateDisconnected, StateConnecting)

	s.logger.Info("Connecting to device", zap.String("driver", s.driver.Name()))

	link, err := s.driver.Dial(ctx)
	if err != nil {
		s.abortConnect()
		s.logger.Warn("Device connection failed",
			zap.String("driver", s.driver.Name()),
			zap.Error(err))
		return Info{}, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	var endpoints [channelCount]Endpoint
	resolved := make([]Channel, 0, channelCount)
	for _, ch := range Channels() {
		ep, ok := link.Endpoint(ch)
		if !ok {
			if ch.Required() {
				if cerr := link.Close(); cerr != nil {
					s.logger.Warn("Failed to close incomplete link", zap.Error(cerr))
				}
				s.abortConnect()
				return Info{}, fmt.Errorf("%w: device %q does not offer channel %s",
					ErrConnection, link.DeviceName(), ch)
			}
			s.logger.Debug("Optional channel not offered", zap.Stringer("channel", ch))
			continue
		}
		endpoints[ch] = ep
		resolved = append(resolved, ch)
	}

	info := Info{
		SessionID:   uuid.New(),
		Driver:      s.driver.Name(),
		Device:      link.DeviceName(),
		Channels:    resolved,
		ConnectedAt: time.Now(),
	}

	s.mu.Lock()
	s.link = link
	s.endpoints = endpoints
	s.info = info
	s.setStateLocked(StateConnected)
	listeners = s.listeners
	s.mu.Unlock()
	notify(listeners, StateConnecting, StateConnected)

	s.logger.Info("Connected to device",
		zap.String("device", info.Device),
		zap.String("session_id", info.SessionID.String()),
		zap.Int("channels", len(resolved)))

	return info, nil
}

func (s *Session) abortConnect() {
	s.mu.Lock()
	s.setStateLocked(StateDisconnected)
	listeners := s.listeners
	s.mu.Unlock()
	notify(listeners, StateConnecting, StateDisconnected)
}

// Disconnect closes the link if one is open. It never fails; close errors
// are logged.
func (s *Session) Disconnect() {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		s.logger.Debug("Disconnect ignored, no device connected")
		return
	}
	link, device := s.link, s.info.Device
	s.dropLinkLocked()
	listeners := s.listeners
	s.mu.Unlock()

	if err := link.Close(); err != nil {
		s.logger.Warn("Error while closing link", zap.String("device", device), zap.Error(err))
	}
	notify(listeners, StateConnected, StateDisconnected)

	s.logger.Info("Disconnected from device", zap.String("device", device))
}

// Write sends exactly one byte on ch.
func (s *Session) Write(ctx context.Context, ch Channel, b byte) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	ep, err := s.endpoint(ch)
	if err != nil {
		return err
	}

	if err := ep.Send(ctx, b); err != nil {
		return s.fail("write", ch, err)
	}

	s.logger.Debug("Wrote byte", zap.Stringer("channel", ch), zap.Uint8("payload", b))
	return nil
}

// Read fetches one byte from ch. The value is returned to the caller and
// not retained by the session.
func (s *Session) Read(ctx context.Context, ch Channel) (byte, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	ep, err := s.endpoint(ch)
	if err != nil {
		return 0, err
	}

	b, err := ep.Receive(ctx)
	if err != nil {
		return 0, s.fail("read", ch, err)
	}
	return b, nil
}

func (s *Session) endpoint(ch Channel) (Endpoint, error) {
	if ch >= channelCount {
		return nil, fmt.Errorf("%w: %w: %d", ErrChannelNotFound, ErrUnknownChannel, uint8(ch))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected {
		return nil, fmt.Errorf("%w: channel %s unavailable while %s", ErrNotConnected, ch, s.state)
	}
	ep := s.endpoints[ch]
	if ep == nil {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, ch)
	}
	return ep, nil
}

// fail classifies a driver error. Link loss tears the link down before the
// error is returned; anything else leaves the state alone.
func (s *Session) fail(op string, ch Channel, err error) error {
	if !errors.Is(err, ErrLinkLost) {
		if errors.Is(err, ErrTransport) {
			return fmt.Errorf("%s %s: %w", op, ch, err)
		}
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, op, ch, err)
	}

	s.mu.Lock()
	link, device := s.link, s.info.Device
	wasConnected := s.state == StateConnected
	if wasConnected {
		s.dropLinkLocked()
	}
	listeners := s.listeners
	s.mu.Unlock()

	if wasConnected {
		if cerr := link.Close(); cerr != nil {
			s.logger.Debug("Close after link loss failed", zap.Error(cerr))
		}
		notify(listeners, StateConnected, StateDisconnected)
		s.logger.Warn("Link lost",
			zap.String("device", device),
			zap.String("op", op),
			zap.Stringer("channel", ch),
			zap.Error(err))
	}

	return fmt.Errorf("%s %s: %w", op, ch, err)
}

func (s *Session) dropLinkLocked() {
	s.link = nil
	s.endpoints = [channelCount]Endpoint{}
	s.info = Info{}
	s.setStateLocked(StateDisconnected)
}

func (s *Session) setStateLocked(next State) {
	if err := ValidateTransition(s.state, next); err != nil {
		s.logger.Error("Unexpected connection state change", zap.Error(err))
	}
	s.state = next
}

func notify(listeners []StateListener, previous, current State) {
	for _, fn := range listeners {
		fn(previous, current)
	}
}
