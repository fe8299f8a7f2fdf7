package store

import (
	"context"
)

// State is the persisted client state. Empty fields are absent.
type State struct {
	Token      string
	ActiveRole string
}

// Store defines persistence of the client state that survives restarts.
type Store interface {
	LoadState(ctx context.Context) (State, error)
	SaveState(ctx context.Context, state State) error
	SaveToken(ctx context.Context, token string) error
	SaveActiveRole(ctx context.Context, role string) error
	ClearToken(ctx context.Context) error
	ClearState(ctx context.Context) error
	Close() error
}
