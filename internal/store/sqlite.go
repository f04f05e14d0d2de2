// Package store provides session and menu-state storage backends for TeleGem.
//
// This file implements an SQLite-backed store for sessions and user states.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/telegem/telegem/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions and user states in a local SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	maxTurns int
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := Opts{MaxHistoryTurns: DefaultMaxHistoryTurns}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "", "maxHistoryTurns", cfg.MaxHistoryTurns)

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, maxTurns: cfg.MaxHistoryTurns}, nil
}

// GetHistory returns the ordered turn sequence for a user.
func (s *SQLiteStore) GetHistory(userID string) ([]models.Turn, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	rows, err := s.db.Query(`SELECT role, parts FROM turns WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		slog.Error("SQLiteStore GetHistory query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// AppendTurn appends a turn and trims the oldest rows beyond the history cap.
func (s *SQLiteStore) AppendTurn(userID string, turn models.Turn) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	partsJSON, err := json.Marshal(turn.Parts)
	if err != nil {
		return fmt.Errorf("failed to marshal parts: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO turns (user_id, role, parts) VALUES (?, ?, ?)`,
		userID, string(turn.Role), string(partsJSON)); err != nil {
		slog.Error("SQLiteStore AppendTurn failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	if s.maxTurns > 0 {
		if _, err := s.db.Exec(`DELETE FROM turns WHERE user_id = ? AND id NOT IN (
			SELECT id FROM turns WHERE user_id = ? ORDER BY id DESC LIMIT ?)`,
			userID, userID, s.maxTurns); err != nil {
			slog.Error("SQLiteStore history trim failed", "error", err, "userID", userID)
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}
	return nil
}

// RemoveLastTurn removes the most recently inserted turn for a user.
func (s *SQLiteStore) RemoveLastTurn(userID string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	_, err := s.db.Exec(`DELETE FROM turns WHERE id = (
		SELECT id FROM turns WHERE user_id = ? ORDER BY id DESC LIMIT 1)`, userID)
	if err != nil {
		slog.Error("SQLiteStore RemoveLastTurn failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to remove last turn: %w", err)
	}
	return nil
}

// ResetSession removes all turns for a user.
func (s *SQLiteStore) ResetSession(userID string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	if _, err := s.db.Exec(`DELETE FROM turns WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore ResetSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

// GetState returns the user's menu state, "" if never set.
func (s *SQLiteStore) GetState(userID string) (models.StateType, error) {
	if userID == "" {
		return "", models.ErrEmptyUserID
	}
	var state string
	err := s.db.QueryRow(`SELECT state FROM user_states WHERE user_id = ?`, userID).Scan(&state)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetState failed", "error", err, "userID", userID)
		return "", fmt.Errorf("failed to query state: %w", err)
	}
	return models.StateType(state), nil
}

// SetState overwrites the user's menu state.
func (s *SQLiteStore) SetState(userID string, state models.StateType) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	_, err := s.db.Exec(`INSERT INTO user_states (user_id, state) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET state = excluded.state, updated_at = CURRENT_TIMESTAMP`,
		userID, string(state))
	if err != nil {
		slog.Error("SQLiteStore SetState failed", "error", err, "userID", userID, "state", state)
		return fmt.Errorf("failed to set state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
