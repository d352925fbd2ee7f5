// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/parley-cli/internal/conversation"
)

// DBPool is the subset of pgxpool.Pool the store needs. pgxmock satisfies it in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
        CREATE TABLE IF NOT EXISTS transcript_turns (
            session_id  TEXT        NOT NULL,
            seq         INTEGER     NOT NULL,
            role        TEXT        NOT NULL,
            content     TEXT        NOT NULL,
            recorded_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (session_id, seq)
        );
    `

var turnColumns = []string{"session_id", "seq", "role", "content", "recorded_at"}

// Store persists conversation transcripts to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

// Connect opens a pgx pool for url and wraps it in a Store. The returned
// close function releases the pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// New verifies the pool is reachable before returning a Store.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store"), now: time.Now}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create transcript_turns table: %w", err)
	}
	return nil
}

// SaveTranscript writes every turn of a session in a single transaction.
// seq preserves the log order starting at 0.
func (s *Store) SaveTranscript(ctx context.Context, sessionID string, turns []conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(context.Background()); rerr != nil && !errors.Is(rerr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rerr))
		}
	}()

	recordedAt := s.now().UTC()
	rows := make([][]any, len(turns))
	for i, turn := range turns {
		rows[i] = []any{sessionID, i, turn.Role.String(), turn.Content, recordedAt}
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"transcript_turns"}, turnColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy transcript turns: %w", err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("mismatch in copied turn count: expected %d, got %d", len(rows), copied)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Transcript persisted.", zap.String("session_id", sessionID), zap.Int("turns", len(rows)))
	return nil
}
