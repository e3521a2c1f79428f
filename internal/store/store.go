package store

import (
	"context"
	"time"
)

// Transition is one recorded lifecycle state change of a supervised process.
// Reason carries the exit error, readiness failure, or control command that
// caused the change; empty for plain progress transitions.
type Transition struct {
	ID     int64     `json:"id"`
	Name   string    `json:"name"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	PID    int       `json:"pid,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Store journals lifecycle transitions on the persisted state volume so the
// history of a container survives restarts. Writes are best-effort from the
// supervisor's point of view; a journal failure never affects supervision.
type Store interface {
	EnsureSchema(ctx context.Context) error
	RecordTransition(ctx context.Context, t Transition) error
	Recent(ctx context.Context, name string, limit int) ([]Transition, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
