package txlog

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an index outside the chain.
var ErrNotFound = errors.New("entry not found")

// Log is the interface for the append-only call journal.
type Log interface {
	// Append adds a new entry chained to the previous one.
	// payload is JSON-marshalled and stored verbatim alongside its hash.
	Append(ctx context.Context, method, caller string, payload any) (*Entry, error)

	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Len returns the total number of entries (including the genesis entry).
	Len(ctx context.Context) (int, error)

	// Scan calls fn for every entry with Index >= from, in index order.
	// It stops at the first error returned by fn and returns it.
	Scan(ctx context.Context, from int, fn func(*Entry) error) error

	// Verify walks the entire chain and checks hash consistency.
	// Returns nil if the chain is intact.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent entry (the chain tip).
	Root(ctx context.Context) (string, error)

	// Close releases any resources held by the log.
	Close() error
}

// verifyChain validates a sequence of entries fed to it one at a time.
type verifyChain struct {
	prev *Entry
}

func (v *verifyChain) next(curr *Entry) error {
	if v.prev == nil {
		if curr.Index != 0 || curr.Hash != GenesisHash {
			return errGenesis(curr)
		}
		v.prev = curr
		return nil
	}
	if curr.Index != v.prev.Index+1 {
		return errGap(v.prev.Index, curr.Index)
	}
	if curr.PrevHash != v.prev.Hash {
		return errBroken(curr.Index)
	}
	if curr.DataHash != hashPayload(curr.Payload) {
		return errPayload(curr.Index)
	}
	if curr.Hash != hashEntry(curr) {
		return errHash(curr.Index)
	}
	v.prev = curr
	return nil
}
