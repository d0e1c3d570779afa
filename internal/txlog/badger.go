package txlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const badgerPrefix = "tx:"

func badgerKey(idx int) []byte {
	return []byte(fmt.Sprintf("%s%020d", badgerPrefix, idx))
}

// BadgerLog persists the call journal in an embedded BadgerDB directory.
// Appends are serialised in-process; the directory must not be shared
// between processes.
type BadgerLog struct {
	db     *badger.DB
	logger *zap.Logger

	mu  sync.Mutex // guards tip
	tip *Entry
}

// OpenBadger opens (or creates) a BadgerLog in dir. A new directory is
// initialised with the genesis entry.
func OpenBadger(dir string, logger *zap.Logger) (*BadgerLog, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", dir, err)
	}

	l := &BadgerLog{db: db, logger: logger}
	tip, err := l.readTip()
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	if tip == nil {
		tip = newGenesis(stamp())
		if err := l.put(tip); err != nil {
			db.Close() //nolint:errcheck
			return nil, fmt.Errorf("write genesis: %w", err)
		}
	}
	l.tip = tip
	return l, nil
}

// readTip returns the entry with the highest index, or nil for an empty store.
func (l *BadgerLog) readTip() (*Entry, error) {
	var tip *Entry
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration must seek past the last possible key.
		it.Seek(append([]byte(badgerPrefix), 0xFF))
		if !it.ValidForPrefix([]byte(badgerPrefix)) {
			return nil
		}
		e, err := decodeItem(it.Item())
		if err != nil {
			return err
		}
		tip = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read log tail: %w", err)
	}
	return tip, nil
}

func (l *BadgerLog) put(e *Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(e.Index), val)
	})
}

func decodeItem(item *badger.Item) (*Entry, error) {
	e := &Entry{}
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, e)
	})
	if err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", item.Key(), err)
	}
	return e, nil
}

// Append implements Log.
func (l *BadgerLog) Append(_ context.Context, method, caller string, payload any) (*Entry, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := newEntry(l.tip, stamp(), method, caller, body)
	if err := l.put(entry); err != nil {
		return nil, fmt.Errorf("persist log entry: %w", err)
	}
	l.tip = entry

	l.logger.Debug("tx log entry appended",
		zap.Int("idx", entry.Index),
		zap.String("method", entry.Method),
	)
	return entry, nil
}

// Get implements Log.
func (l *BadgerLog) Get(_ context.Context, index int) (*Entry, error) {
	if index < 0 {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	var e *Entry
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(index))
		if err != nil {
			return err
		}
		e, err = decodeItem(item)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get log entry %d: %w", index, err)
	}
	return e, nil
}

// Len implements Log.
func (l *BadgerLog) Len(_ context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tip.Index + 1, nil
}

// Scan implements Log.
func (l *BadgerLog) Scan(ctx context.Context, from int, fn func(*Entry) error) error {
	if from < 0 {
		from = 0
	}
	return l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(badgerKey(from)); it.ValidForPrefix([]byte(badgerPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Verify implements Log.
func (l *BadgerLog) Verify(ctx context.Context) error {
	var v verifyChain
	return l.Scan(ctx, 0, v.next)
}

// Root implements Log.
func (l *BadgerLog) Root(_ context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tip.Hash, nil
}

// Close implements Log.
func (l *BadgerLog) Close() error {
	return l.db.Close()
}
