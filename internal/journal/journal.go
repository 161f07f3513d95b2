// Package journal records every byte the console puts on the wire.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind is the dispatch call site that produced a write.
type Kind string

const (
	KindActuator   Kind = "actuator"
	KindPressure   Kind = "pressure"
	KindStopAll    Kind = "stop_all"
	KindInflateAll Kind = "inflate_all"
)

type Entry struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Kind      Kind      `json:"kind"`
	Channel   string    `json:"channel"`
	Value     int       `json:"value"`
	Payload   int       `json:"payload"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal stores dispatch entries.
type Journal interface {
	Record(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

func (Nop) Recent(context.Context, int) ([]Entry, error) { return []Entry{}, nil }

func (Nop) Close() error { return nil }
