// Package ledger tracks which trigger items were already dispatched so a notification
// never starts the workflow twice for the same instruction.
//
// A process crash between Claim and Commit loses the claim, and the item may be
// dispatched again after restart. That duplicate is accepted.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"basegraph.app/courier/internal/store"
)

type Ledger struct {
	mu        sync.Mutex
	inFlight  map[string]struct{}
	committed map[string]struct{}
	store     store.LedgerStore
}

// New seeds a Ledger from everything s has persisted.
func New(ctx context.Context, s store.LedgerStore) (*Ledger, error) {
	ids, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}

	committed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		committed[id] = struct{}{}
	}

	return &Ledger{
		inFlight:  make(map[string]struct{}),
		committed: committed,
		store:     s,
	}, nil
}

// Claim marks id in flight. It returns false if id is already in flight or committed.
func (l *Ledger) Claim(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.committed[id]; ok {
		return false
	}
	if _, ok := l.inFlight[id]; ok {
		return false
	}
	l.inFlight[id] = struct{}{}
	return true
}

// Commit records a successful dispatch of id. The id counts as committed in memory even
// when persisting fails, so this process never dispatches it again; the returned error
// means a restart could.
func (l *Ledger) Commit(ctx context.Context, id string) error {
	l.mu.Lock()
	delete(l.inFlight, id)
	l.committed[id] = struct{}{}
	l.mu.Unlock()

	if err := l.store.Append(ctx, id); err != nil {
		return fmt.Errorf("persisting ledger entry %s: %w", id, err)
	}
	return nil
}

// Release drops an in-flight claim whose dispatch did not happen, so a later poll can
// retry it. Committed ids stay committed.
func (l *Ledger) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.inFlight, id)
}

// Committed reports whether id was dispatched, by this process or a previous one.
func (l *Ledger) Committed(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.committed[id]
	return ok
}

// Len returns the number of committed ids.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.committed)
}
