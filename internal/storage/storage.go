// Package storage provides SQLite-backed persistence for crawler cursors.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"
	_ "modernc.org/sqlite"
)

// Cursor is the newest transaction the crawler has finished for a program.
type Cursor struct {
	ProgramID solana.PublicKey
	Signature solana.Signature
	Slot      uint64
	UpdatedAt time.Time
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/lpwatch/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "lpwatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS crawler_cursor (
		program_id TEXT PRIMARY KEY,
		signature  TEXT NOT NULL,
		slot       INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	return err
}

// LoadCursor returns the saved cursor for programID, or nil if the crawler
// has never completed a batch for it.
func (s *Storage) LoadCursor(programID solana.PublicKey) (*Cursor, error) {
	var (
		sig       string
		slot      int64
		updatedAt int64
	)
	err := s.db.QueryRow(
		`SELECT signature, slot, updated_at FROM crawler_cursor WHERE program_id = ?`,
		programID.String(),
	).Scan(&sig, &slot, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}

	signature, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return nil, fmt.Errorf("stored cursor signature %q is invalid: %w", sig, err)
	}
	return &Cursor{
		ProgramID: programID,
		Signature: signature,
		Slot:      uint64(slot),
		UpdatedAt: time.Unix(0, updatedAt),
	}, nil
}

// SaveCursor inserts or replaces the cursor for c.ProgramID. A zero
// UpdatedAt is stamped with the current time.
func (s *Storage) SaveCursor(c *Cursor) error {
	if c == nil || c.Signature.IsZero() {
		return errors.New("cursor signature must not be empty")
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO crawler_cursor (program_id, signature, slot, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(program_id) DO UPDATE SET
			signature  = excluded.signature,
			slot       = excluded.slot,
			updated_at = excluded.updated_at`,
		c.ProgramID.String(), c.Signature.String(), int64(c.Slot), c.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}
