package node

import (
	"context"
	"fmt"

	"github.com/jmerrifield20/socialmedia/internal/social"
	"github.com/jmerrifield20/socialmedia/internal/txlog"
	"go.uber.org/zap"
)

// Replay rebuilds the ledger from the journal. It must run before the
// executor serves calls. Notifications are suppressed while replaying, so
// observers only see new calls. It returns the number of calls re-applied.
//
// A journaled call that no longer applies means the journal and the ledger
// rules disagree; Replay stops with an error rather than skip it.
func (e *Executor) Replay(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh := social.New(e.ledger.Owner())
	applied := 0
	err := e.log.Scan(ctx, 1, func(entry *txlog.Entry) error {
		tx, err := decodeTx(entry.Payload)
		if err != nil {
			return fmt.Errorf("entry %d: %w", entry.Index, err)
		}
		if string(tx.Method) != entry.Method || tx.Caller.String() != entry.Caller {
			return fmt.Errorf("entry %d: payload does not match entry header", entry.Index)
		}
		var r Receipt
		if err := apply(fresh, tx, &r); err != nil {
			return fmt.Errorf("replay entry %d (%s): %w", entry.Index, entry.Method, err)
		}
		applied++
		return nil
	})
	if err != nil {
		return applied, err
	}

	fresh.SetNotifier(e.notifier)
	e.ledger = fresh

	e.logger.Info("ledger replayed from journal",
		zap.Int("calls", applied),
		zap.Uint64("posts", fresh.PostCount()),
		zap.Int("users", fresh.UserCount()),
	)
	return applied, nil
}
