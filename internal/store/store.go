package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed question bank.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS login_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		username TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subjects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		FOREIGN KEY (course_id) REFERENCES courses(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		FOREIGN KEY (subject_id) REFERENCES subjects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS exam_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS blueprints (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id INTEGER NOT NULL,
		exam_type_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		total_marks INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		is_custom BOOLEAN NOT NULL DEFAULT 0,
		FOREIGN KEY (subject_id) REFERENCES subjects(id) ON DELETE CASCADE,
		FOREIGN KEY (exam_type_id) REFERENCES exam_types(id)
	);

	CREATE TABLE IF NOT EXISTS blueprint_sections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		blueprint_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL,
		FOREIGN KEY (blueprint_id) REFERENCES blueprints(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS blueprint_criteria (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		section_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		question_type TEXT NOT NULL,
		number_of_questions INTEGER NOT NULL CHECK (number_of_questions > 0),
		marks_per_question INTEGER NOT NULL CHECK (marks_per_question > 0),
		difficulty TEXT NOT NULL,
		bloom_level TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (section_id) REFERENCES blueprint_sections(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		unit_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		question_type TEXT NOT NULL,
		marks INTEGER NOT NULL,
		difficulty TEXT NOT NULL,
		bloom_level TEXT NOT NULL DEFAULT '',
		keywords TEXT NOT NULL DEFAULT '',
		created_by INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (unit_id) REFERENCES units(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_questions_pick ON questions (unit_id, marks, difficulty, bloom_level);

	CREATE TABLE IF NOT EXISTS imported_files (
		name TEXT NOT NULL,
		unit_id INTEGER NOT NULL,
		sha256 TEXT NOT NULL,
		imported_at DATETIME NOT NULL,
		PRIMARY KEY (name, unit_id)
	);
	`
	if err := s.dropLegacyImportedFiles(); err != nil {
		return err
	}
	_, err := s.db.Exec(schema)
	return err
}

// dropLegacyImportedFiles removes an imported_files table keyed by name
// alone. It only caches hashes, so the worst case is one re-import.
func (s *Store) dropLegacyImportedFiles() error {
	var tables, unitCols int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'imported_files'`,
	).Scan(&tables)
	if err != nil || tables == 0 {
		return err
	}
	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('imported_files') WHERE name = 'unit_id'`,
	).Scan(&unitCols)
	if err != nil || unitCols > 0 {
		return err
	}
	_, err = s.db.Exec(`DROP TABLE imported_files`)
	return err
}
