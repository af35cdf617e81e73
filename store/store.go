// MODUL: store
// ZWECK: Lauf-Protokoll (Run Ledger) fuer Bildgenerierungen in SQLite
// INPUT: Datenbankpfad, Run-Datensaetze
// OUTPUT: gespeicherte und gelesene Runs
// NEBENEFFEKTE: legt Datenbankdatei und Verzeichnis an, schreibt WAL
// ABHAENGIGKEITEN: github.com/mattn/go-sqlite3, github.com/google/uuid
// HINWEISE: SQLite serialisiert Schreiber selbst, kein Application-Level-Lock noetig

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren
)

// currentSchemaVersion wird bei Schema-Aenderungen erhoeht
const currentSchemaVersion = 2

// ErrNotFound wird zurueckgegeben wenn kein Run mit der ID existiert
var ErrNotFound = errors.New("run nicht gefunden")

// Store umhuellt die SQLite-Verbindung des Lauf-Protokolls
type Store struct {
	conn *sql.DB
	path string
}

// Open oeffnet (oder erstellt) die Datenbank unter path
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verbindung testen
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return s, nil
}

// Path gibt den Datenbankpfad zurueck
func (s *Store) Path() string {
	return s.path
}

// Close schliesst die Datenbankverbindung
func (s *Store) Close() error {
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return s.conn.Close()
}

// init initialisiert das Datenbankschema
func (s *Store) init() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		prompt TEXT NOT NULL,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		guidance REAL NOT NULL,
		temperature REAL NOT NULL DEFAULT 1,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		batch INTEGER NOT NULL DEFAULT 1,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		output TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`, currentSchemaVersion)

	if _, err := s.conn.Exec(schema); err != nil {
		return err
	}

	// Schema-Version pruefen und bei Bedarf migrieren
	if err := s.migrate(); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// migrate fuehrt Schema-Migrationen durch
func (s *Store) migrate() error {
	version, err := s.schemaVersion()
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for version < currentSchemaVersion {
		switch version {
		case 1:
			// Version 1 kannte keine Batch-Groesse
			if err := s.addColumnIfMissing("runs", "batch", "INTEGER NOT NULL DEFAULT 1"); err != nil {
				return fmt.Errorf("migrate v1 to v2: %w", err)
			}
			version = 2
		default:
			// Unbekannte Version: auf aktuell setzen
			version = currentSchemaVersion
		}
	}

	_, err = s.conn.Exec("UPDATE meta SET schema_version = ?", currentSchemaVersion)
	return err
}

func (s *Store) schemaVersion() (int, error) {
	var version int
	err := s.conn.QueryRow("SELECT schema_version FROM meta WHERE id = 1").Scan(&version)
	return version, err
}

// addColumnIfMissing fuegt eine Spalte hinzu falls sie noch nicht existiert
func (s *Store) addColumnIfMissing(table, column, definition string) error {
	var count int
	err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check column %s: %w", column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = s.conn.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}
