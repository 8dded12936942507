package store

import (
	"database/sql"
	"time"
)

// GetImportedFileHash returns the SHA-256 recorded for a file previously
// imported into the unit, or an empty string if it never was.
func (s *Store) GetImportedFileHash(name string, unitID int64) (string, error) {
	var hash string
	err := s.db.QueryRow(
		`SELECT sha256 FROM imported_files WHERE name = ? AND unit_id = ?`, name, unitID,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of a file imported into the unit.
func (s *Store) SetImportedFileHash(name string, unitID int64, hash string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO imported_files (name, unit_id, sha256, imported_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name, unit_id) DO UPDATE SET sha256 = ?, imported_at = ?`,
		name, unitID, hash, now, hash, now,
	)
	return err
}
