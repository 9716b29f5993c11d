// Package store journals host activity to SQLite: one row per user turn and
// one per dispatched tool call. The journal is diagnostic; the host runs fine
// without it and callers treat every write as best-effort.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite connection for the host journal.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at dbPath and runs all pending
// migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// runMigrations applies any SQL files not yet recorded in schema_migrations.
func (s *Store) runMigrations() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	_ = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current)

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		description := strings.TrimSuffix(parts[1], ".sql")

		content, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", e.Name(), err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			version, description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", e.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", e.Name(), err)
		}
		slog.Info("applied migration", "version", version, "description", description)
	}
	return nil
}

// LogTurn inserts a new row into turn_log and returns the inserted ID.
func (s *Store) LogTurn(traceID, sessionID, message string) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO turn_log (trace_id, session_id, message)
		VALUES (?, ?, ?)`,
		traceID, sessionID, message,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishTurn updates an existing turn_log row with the outcome.
func (s *Store) FinishTurn(id int64, toolCalls int, result, errMsg string) error {
	_, err := s.db.Exec(`
		UPDATE turn_log SET tool_calls = ?, result = ?, error_msg = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		toolCalls, result, nullableString(errMsg), id,
	)
	return err
}

// LogToolCall records one tool dispatch under a turn.
func (s *Store) LogToolCall(turnID int64, serverName, toolName, argsJSON, result, errMsg string) error {
	_, err := s.db.Exec(`
		INSERT INTO tool_call_log (turn_id, server_name, tool_name, args_json, result, error_msg)
		VALUES (?, ?, ?, ?, ?, ?)`,
		turnID, serverName, toolName, argsJSON, result, nullableString(errMsg),
	)
	return err
}

// ClearSession removes every journal row belonging to one session.
func (s *Store) ClearSession(sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`
		DELETE FROM tool_call_log
		WHERE turn_id IN (SELECT id FROM turn_log WHERE session_id = ?)`,
		sessionID,
	); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec("DELETE FROM turn_log WHERE session_id = ?", sessionID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// TurnCount returns the number of journaled turns for a session.
func (s *Store) TurnCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM turn_log WHERE session_id = ?", sessionID,
	).Scan(&n)
	return n, err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
