package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection covers device selection and link setup failures.
	ErrConnection = errors.New("connection failed")
	// ErrChannelNotFound means the open link has no endpoint for a channel.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrTransport covers every failed write or read.
	ErrTransport = errors.New("transport error")
	// ErrUnknownChannel rejects channel names outside the protocol.
	ErrUnknownChannel = errors.New("unknown channel")

	ErrConnectInProgress = fmt.Errorf("%w: connect already in progress", ErrConnection)
	ErrNotConnected      = fmt.Errorf("%w: not connected", ErrTransport)
	// ErrLinkLost is returned by drivers when the link is gone for good.
	// The session disconnects before handing it to the caller.
	ErrLinkLost = fmt.Errorf("%w: link lost", ErrTransport)
)
