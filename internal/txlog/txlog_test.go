package txlog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"
)

var ctx = context.Background()

type regPayload struct {
	Username string `json:"username"`
}

// backends returns a fresh instance of every embeddable Log implementation.
func backends(t *testing.T) map[string]Log {
	t.Helper()
	bl, err := OpenBadger(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { bl.Close() })
	return map[string]Log{
		"memory": NewMemory(),
		"badger": bl,
	}
}

func TestNew_genesisEntry(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			n, err := l.Len(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if n != 1 {
				t.Errorf("expected 1 genesis entry, got %d", n)
			}

			entry, err := l.Get(ctx, 0)
			if err != nil {
				t.Fatal(err)
			}
			if entry.Method != "genesis" || !entry.IsGenesis() {
				t.Errorf("expected genesis entry, got method %q", entry.Method)
			}
			if entry.Hash != GenesisHash {
				t.Errorf("genesis hash: got %q, want GenesisHash", entry.Hash)
			}
		})
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			e1, err := l.Append(ctx, "register", "0xA", regPayload{Username: "alice"})
			if err != nil {
				t.Fatal(err)
			}
			e2, err := l.Append(ctx, "register", "0xB", regPayload{Username: "bob"})
			if err != nil {
				t.Fatal(err)
			}

			if e1.Index != 1 || e2.Index != 2 {
				t.Errorf("indices: got %d, %d", e1.Index, e2.Index)
			}
			if e2.PrevHash != e1.Hash {
				t.Errorf("chain broken: e2.PrevHash=%q, want e1.Hash=%q", e2.PrevHash, e1.Hash)
			}

			n, _ := l.Len(ctx)
			if n != 3 { // genesis + 2
				t.Errorf("expected 3 entries, got %d", n)
			}

			got, err := l.Get(ctx, 1)
			if err != nil {
				t.Fatal(err)
			}
			var p regPayload
			if err := json.Unmarshal(got.Payload, &p); err != nil {
				t.Fatal(err)
			}
			if p.Username != "alice" {
				t.Errorf("payload round trip: got %q", p.Username)
			}
		})
	}
}

func TestVerify_valid(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, _ = l.Append(ctx, "register", "0xA", regPayload{Username: "alice"})
			_, _ = l.Append(ctx, "like_post", "0xA", map[string]uint64{"post_id": 0})

			if err := l.Verify(ctx); err != nil {
				t.Errorf("Verify() failed on valid chain: %v", err)
			}
		})
	}
}

func TestVerify_genesisOnlyChain(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := l.Verify(ctx); err != nil {
				t.Errorf("Verify() on genesis-only chain should pass: %v", err)
			}
		})
	}
}

func TestVerify_detectsTampering(t *testing.T) {
	l := NewMemory()
	_, _ = l.Append(ctx, "register", "0xA", regPayload{Username: "alice"})
	_, _ = l.Append(ctx, "register", "0xB", regPayload{Username: "bob"})

	l.tamper(1, "0xEVIL")
	if err := l.Verify(ctx); err == nil {
		t.Fatal("Verify() should fail after tampering")
	}
}

func TestRoot_returnsLastHash(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			root, err := l.Root(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if root != GenesisHash {
				t.Errorf("Root() on genesis-only: got %q, want GenesisHash", root)
			}

			e, _ := l.Append(ctx, "register", "0xA", nil)
			root, err = l.Root(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if root != e.Hash {
				t.Errorf("Root(): got %q, want %q", root, e.Hash)
			}
		})
	}
}

func TestGet_outOfRange(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, idx := range []int{-1, 1, 99} {
				if _, err := l.Get(ctx, idx); !errors.Is(err, ErrNotFound) {
					t.Errorf("Get(%d): expected ErrNotFound, got %v", idx, err)
				}
			}
		})
	}
}

func TestScan_fromIndex(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 4; i++ {
				if _, err := l.Append(ctx, "like_post", "0xA", i); err != nil {
					t.Fatal(err)
				}
			}

			var seen []int
			if err := l.Scan(ctx, 2, func(e *Entry) error {
				seen = append(seen, e.Index)
				return nil
			}); err != nil {
				t.Fatal(err)
			}
			if len(seen) != 3 || seen[0] != 2 || seen[2] != 4 {
				t.Errorf("Scan(from=2): got %v, want [2 3 4]", seen)
			}

			stop := errors.New("stop")
			calls := 0
			err := l.Scan(ctx, 0, func(*Entry) error {
				calls++
				return stop
			})
			if !errors.Is(err, stop) || calls != 1 {
				t.Errorf("Scan should stop at first error: err=%v calls=%d", err, calls)
			}
		})
	}
}

func TestBadger_reopenKeepsChain(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenBadger(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	e, err := l.Append(ctx, "register", "0xA", regPayload{Username: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	l, err = OpenBadger(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	n, _ := l.Len(ctx)
	if n != 2 {
		t.Fatalf("expected 2 entries after reopen, got %d", n)
	}
	root, _ := l.Root(ctx)
	if root != e.Hash {
		t.Errorf("Root after reopen: got %q, want %q", root, e.Hash)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify after reopen: %v", err)
	}

	next, err := l.Append(ctx, "register", "0xB", regPayload{Username: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if next.Index != 2 || next.PrevHash != e.Hash {
		t.Errorf("append after reopen did not chain: idx=%d prev=%q", next.Index, next.PrevHash)
	}
}
