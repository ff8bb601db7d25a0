package database

import (
	"context"
	"fmt"
	"phicontext/internal/models"
	"time"
)

// SnapshotStore persists sanitized context entries
type SnapshotStore interface {
	SaveEntries(ctx context.Context, entries []models.ContextEntry) error
	LoadEntries(ctx context.Context) ([]models.ContextEntry, error)
	Ping(ctx context.Context) error
	Close() error
}

// SQLSnapshotStore keeps the snapshot in the context_entries table.
// Each save replaces the table contents in one transaction.
type SQLSnapshotStore struct {
	db    *DB
	codec recordCodec
}

// NewSQLSnapshotStore opens dsn and prepares the snapshot table
func NewSQLSnapshotStore(ctx context.Context, dsn string, opts ...StoreOption) (*SQLSnapshotStore, error) {
	db, err := New(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLSnapshotStore{db: db, codec: newRecordCodec(opts)}, nil
}

// SaveEntries replaces the stored snapshot with entries, keeping their order
func (s *SQLSnapshotStore) SaveEntries(ctx context.Context, entries []models.ContextEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM context_entries"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO context_entries (id, position, subject_id, context_type, record, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i := range entries {
		e := &entries[i]
		record, err := s.codec.encode(e)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, e.ID, i, e.SubjectID, string(e.Type), record, now); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// LoadEntries returns the stored snapshot in save order
func (s *SQLSnapshotStore) LoadEntries(ctx context.Context) ([]models.ContextEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, record FROM context_entries ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var entries []models.ContextEntry
	for rows.Next() {
		var id, record string
		if err := rows.Scan(&id, &record); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		e, err := s.codec.decode(id, record)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return entries, nil
}

// Ping verifies the database is reachable
func (s *SQLSnapshotStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database
func (s *SQLSnapshotStore) Close() error {
	return s.db.Close()
}
