package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by a ledger store used after Close.
var ErrClosed = errors.New("ledger store closed")

// LedgerStore persists the ids of trigger items that were dispatched. Entries are
// append-only: never updated, never deleted.
type LedgerStore interface {
	// Load returns every id appended so far.
	Load(ctx context.Context) ([]string, error)

	// Append durably records id. Appending an id twice is not an error.
	Append(ctx context.Context, id string) error

	Close() error
}
