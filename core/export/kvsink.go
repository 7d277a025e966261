package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DefaultBatchSize is the number of puts per KVSink transaction.
const DefaultBatchSize = 1000

const kvSchema = `
CREATE TABLE IF NOT EXISTS samples (
	key TEXT PRIMARY KEY,
	product_id INTEGER NOT NULL,
	img_idx INTEGER NOT NULL,
	label INTEGER,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

// ErrSinkClosed is returned by Put after Close.
var ErrSinkClosed = errors.New("export: sink closed")

// KVSink stores samples in a SQLite table keyed by sample key.
//
// Puts are grouped into transactions of BatchSize samples; Close commits the
// final partial batch.
type KVSink struct {
	db        *sql.DB
	tx        *sql.Tx
	stmt      *sql.Stmt
	batchSize int
	pending   int
	commits   int
	logger    *slog.Logger
	mu        sync.Mutex
}

// KVSinkOption configures a KVSink.
type KVSinkOption func(*KVSink)

// WithBatchSize sets the number of puts per transaction.
func WithBatchSize(n int) KVSinkOption {
	return func(s *KVSink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithKVLogger sets the logger for the sink.
func WithKVLogger(logger *slog.Logger) KVSinkOption {
	return func(s *KVSink) {
		s.logger = logger
	}
}

// OpenKVSink opens or creates the store at path.
func OpenKVSink(path string, opts ...KVSinkOption) (*KVSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Get reads through the open batch, which owns the only connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA synchronous = OFF", "PRAGMA journal_mode = MEMORY"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close() //nolint:errcheck // best-effort cleanup
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(kvSchema); err != nil {
		_ = db.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &KVSink{db: db, batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *KVSink) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// ShouldProcess always returns true; existing keys are replaced.
func (s *KVSink) ShouldProcess(int, Row) bool {
	return true
}

// Put adds the sample to the current batch, committing it when full.
func (s *KVSink) Put(ctx context.Context, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrSinkClosed
	}
	if s.tx == nil {
		if err := s.begin(); err != nil {
			return err
		}
	}
	var label sql.NullInt64
	if sample.HasLabel {
		label = sql.NullInt64{Int64: int64(sample.Label), Valid: true}
	}
	if _, err := s.stmt.ExecContext(ctx, sample.Key, int64(sample.EntityID), sample.ItemIndex, label, sample.Image); err != nil { //nolint:gosec // product ids fit in int64
		return fmt.Errorf("insert %s: %w", sample.Key, err)
	}
	s.pending++
	if s.pending >= s.batchSize {
		return s.commit()
	}
	return nil
}

// begin opens a batch. The transaction outlives any single Put, so it is not
// bound to a caller's context.
func (s *KVSink) begin() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO samples (key, product_id, img_idx, label, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("prepare insert: %w", err)
	}
	s.tx, s.stmt = tx, stmt
	return nil
}

func (s *KVSink) commit() error {
	_ = s.stmt.Close() //nolint:errcheck // closed with the transaction
	err := s.tx.Commit()
	s.tx, s.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	s.commits++
	s.log().Debug("committed batch", "samples", s.pending, "commits", s.commits)
	s.pending = 0
	return nil
}

// Commits returns the number of transactions committed so far.
func (s *KVSink) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Get returns the stored value and label of key.
func (s *KVSink) Get(ctx context.Context, key string) (value []byte, label int, hasLabel bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, 0, false, ErrSinkClosed
	}
	var l sql.NullInt64
	q := s.db.QueryRowContext
	if s.tx != nil {
		q = s.tx.QueryRowContext
	}
	if err := q(ctx, `SELECT value, label FROM samples WHERE key = ?`, key).Scan(&value, &l); err != nil {
		return nil, 0, false, err
	}
	return value, int(l.Int64), l.Valid, nil
}

// Close commits any partial batch and closes the store.
func (s *KVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	var err error
	if s.tx != nil {
		err = s.commit()
	}
	err = errors.Join(err, s.db.Close())
	s.db = nil
	return err
}
