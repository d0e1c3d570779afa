package txlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryLockKey is a stable PostgreSQL advisory lock key used to serialise
// concurrent Append calls. The value is arbitrary but must be consistent
// across all node instances sharing the database.
const advisoryLockKey = int64(2_024_031_501)

const selectColumns = `idx, timestamp, method, caller, payload, data_hash, prev_hash, hash`

// PostgresLog persists the call journal to a PostgreSQL database.
// It implements the Log interface. The schema lives in migrations/001_tx_log.up.sql.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgresLog backed by the given connection pool and
// inserts the genesis entry if the table is empty.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (*PostgresLog, error) {
	l := &PostgresLog{pool: pool, logger: logger}
	g := newGenesis(stamp())
	if _, err := pool.Exec(ctx,
		`INSERT INTO tx_log (`+selectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (idx) DO NOTHING`,
		g.Index, g.Timestamp, g.Method, g.Caller, []byte(g.Payload), g.DataHash, g.PrevHash, g.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert genesis: %w", err)
	}
	return l, nil
}

// Append implements Log.
// It acquires a PostgreSQL advisory lock, reads the chain tail, computes the
// new entry hash, and inserts it, all within a single transaction.
func (l *PostgresLog) Append(ctx context.Context, method, caller string, payload any) (*Entry, error) {
	body, err := marshalPayload(payload)
	if err != nil {
		return nil, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The lock is released automatically when the transaction ends.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	prev := &Entry{}
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM tx_log ORDER BY idx DESC LIMIT 1",
	).Scan(&prev.Index, &prev.Hash); err != nil {
		return nil, fmt.Errorf("read log tail: %w", err)
	}

	entry := newEntry(prev, stamp(), method, caller, body)
	if _, err := tx.Exec(ctx,
		`INSERT INTO tx_log (`+selectColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.Index, entry.Timestamp, entry.Method, entry.Caller,
		[]byte(entry.Payload), entry.DataHash, entry.PrevHash, entry.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert log entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit log tx: %w", err)
	}

	l.logger.Debug("tx log entry appended",
		zap.Int("idx", entry.Index),
		zap.String("method", entry.Method),
		zap.String("caller", entry.Caller),
	)
	return entry, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	var payload []byte
	if err := row.Scan(
		&e.Index, &e.Timestamp, &e.Method, &e.Caller,
		&payload, &e.DataHash, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	if len(payload) > 0 {
		e.Payload = payload
	}
	return e, nil
}

// Get implements Log.
func (l *PostgresLog) Get(ctx context.Context, index int) (*Entry, error) {
	e, err := scanEntry(l.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM tx_log WHERE idx = $1`, index,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("index %d: %w", index, ErrNotFound)
		}
		return nil, fmt.Errorf("get log entry %d: %w", index, err)
	}
	return e, nil
}

// Len implements Log.
func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tx_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count log entries: %w", err)
	}
	return n, nil
}

// Scan implements Log. Rows are streamed, so the whole chain is never held
// in memory at once.
func (l *PostgresLog) Scan(ctx context.Context, from int, fn func(*Entry) error) error {
	rows, err := l.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM tx_log WHERE idx >= $1 ORDER BY idx ASC`, from,
	)
	if err != nil {
		return fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan log row: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Verify implements Log. O(n) in chain length; may be slow for very large logs.
func (l *PostgresLog) Verify(ctx context.Context) error {
	var v verifyChain
	return l.Scan(ctx, 0, v.next)
}

// Root implements Log.
func (l *PostgresLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM tx_log ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get log root: %w", err)
	}
	return hash, nil
}

// Close implements Log. The pool is owned by the caller and left open.
func (l *PostgresLog) Close() error { return nil }
