package txlog

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLog is an in-memory, thread-safe Log implementation.
// It is primarily useful for testing and for single-process deployments
// that do not require durable persistence across restarts.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemory creates a MemoryLog initialised with the canonical genesis entry.
func NewMemory() *MemoryLog {
	return &MemoryLog{entries: []*Entry{newGenesis(stamp())}}
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, method, caller string, payload any) (*Entry, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := newEntry(l.entries[len(l.entries)-1], stamp(), method, caller, body)
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Get implements Log.
func (l *MemoryLog) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	cp := *l.entries[index]
	return &cp, nil
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Scan implements Log.
func (l *MemoryLog) Scan(ctx context.Context, from int, fn func(*Entry) error) error {
	l.mu.RLock()
	snapshot := l.entries
	l.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	for i := from; i < len(snapshot); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cp := *snapshot[i]
		if err := fn(&cp); err != nil {
			return err
		}
	}
	return nil
}

// Verify implements Log.
func (l *MemoryLog) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var v verifyChain
	for _, e := range l.entries {
		if err := v.next(e); err != nil {
			return err
		}
	}
	return nil
}

// Root implements Log.
func (l *MemoryLog) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}

// Close implements Log. It is a no-op.
func (l *MemoryLog) Close() error { return nil }

// tamper overwrites the caller of entry idx; used by tests to simulate
// corruption.
func (l *MemoryLog) tamper(idx int, caller string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[idx].Caller = caller
}
