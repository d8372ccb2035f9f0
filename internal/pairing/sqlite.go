package pairing

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps paired devices in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("pairing: open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pairing: migrate: %w", err)
	}
	log.Debug().Str("component", "pairing").Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS paired_devices (
		identity TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		paired_at INTEGER NOT NULL
	)`)
	return err
}

func (s *SQLiteStore) Pair(identity, displayName string) (Device, bool, error) {
	if err := validIdentity(identity); err != nil {
		return Device{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT OR IGNORE INTO paired_devices (identity, display_name, paired_at) VALUES (?, ?, ?)`,
		identity, displayName, now.UnixMilli())
	if err != nil {
		return Device{}, false, fmt.Errorf("pairing: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Device{}, false, err
	}
	if n == 0 {
		dev, _, err := s.lookup(identity)
		return dev, false, err
	}

	log.Info().Str("component", "pairing").Str("identity", identity).Str("name", displayName).Msg("device paired")
	return Device{Identity: identity, DisplayName: displayName, PairedAt: time.UnixMilli(now.UnixMilli()).UTC()}, true, nil
}

func (s *SQLiteStore) Lookup(identity string) (Device, bool, error) {
	return s.lookup(identity)
}

func (s *SQLiteStore) lookup(identity string) (Device, bool, error) {
	var (
		dev      Device
		pairedAt int64
	)
	err := s.db.QueryRow(`SELECT identity, display_name, paired_at FROM paired_devices WHERE identity = ?`, identity).
		Scan(&dev.Identity, &dev.DisplayName, &pairedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, false, nil
	}
	if err != nil {
		return Device{}, false, fmt.Errorf("pairing: lookup: %w", err)
	}
	dev.PairedAt = time.UnixMilli(pairedAt).UTC()
	return dev, true, nil
}

func (s *SQLiteStore) List() ([]Device, error) {
	rows, err := s.db.Query(`SELECT identity, display_name, paired_at FROM paired_devices ORDER BY paired_at, identity`)
	if err != nil {
		return nil, fmt.Errorf("pairing: list: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var (
			dev      Device
			pairedAt int64
		)
		if err := rows.Scan(&dev.Identity, &dev.DisplayName, &pairedAt); err != nil {
			return nil, err
		}
		dev.PairedAt = time.UnixMilli(pairedAt).UTC()
		out = append(out, dev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Remove(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM paired_devices WHERE identity = ?`, identity)
	if err != nil {
		return fmt.Errorf("pairing: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pairing: device not found: %s", identity)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
