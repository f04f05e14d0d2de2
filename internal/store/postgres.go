// Package store provides session and menu-state storage backends for TeleGem.
//
// This file implements a PostgreSQL-backed store for sessions and user states.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/telegem/telegem/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions and user states in PostgreSQL.
type PostgresStore struct {
	db       *sql.DB
	maxTurns int
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := Opts{MaxHistoryTurns: DefaultMaxHistoryTurns}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "", "maxHistoryTurns", cfg.MaxHistoryTurns)

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db, maxTurns: cfg.MaxHistoryTurns}, nil
}

// GetHistory returns the ordered turn sequence for a user.
func (s *PostgresStore) GetHistory(userID string) ([]models.Turn, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	rows, err := s.db.Query(`SELECT role, parts FROM turns WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		slog.Error("PostgresStore GetHistory query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// AppendTurn appends a turn and trims the oldest rows beyond the history cap.
func (s *PostgresStore) AppendTurn(userID string, turn models.Turn) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	partsJSON, err := json.Marshal(turn.Parts)
	if err != nil {
		return fmt.Errorf("failed to marshal parts: %w", err)
	}
	if _, err := s.db.Exec(`INSERT INTO turns (user_id, role, parts) VALUES ($1, $2, $3)`,
		userID, string(turn.Role), string(partsJSON)); err != nil {
		slog.Error("PostgresStore AppendTurn failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	if s.maxTurns > 0 {
		if _, err := s.db.Exec(`DELETE FROM turns WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM turns WHERE user_id = $2 ORDER BY id DESC LIMIT $3)`,
			userID, userID, s.maxTurns); err != nil {
			slog.Error("PostgresStore history trim failed", "error", err, "userID", userID)
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}
	return nil
}

// RemoveLastTurn removes the most recently inserted turn for a user.
func (s *PostgresStore) RemoveLastTurn(userID string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	_, err := s.db.Exec(`DELETE FROM turns WHERE id = (
		SELECT id FROM turns WHERE user_id = $1 ORDER BY id DESC LIMIT 1)`, userID)
	if err != nil {
		slog.Error("PostgresStore RemoveLastTurn failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to remove last turn: %w", err)
	}
	return nil
}

// ResetSession removes all turns for a user.
func (s *PostgresStore) ResetSession(userID string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	if _, err := s.db.Exec(`DELETE FROM turns WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore ResetSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to reset session: %w", err)
	}
	return nil
}

// GetState returns the user's menu state, "" if never set.
func (s *PostgresStore) GetState(userID string) (models.StateType, error) {
	if userID == "" {
		return "", models.ErrEmptyUserID
	}
	var state string
	err := s.db.QueryRow(`SELECT state FROM user_states WHERE user_id = $1`, userID).Scan(&state)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		slog.Error("PostgresStore GetState failed", "error", err, "userID", userID)
		return "", fmt.Errorf("failed to query state: %w", err)
	}
	return models.StateType(state), nil
}

// SetState overwrites the user's menu state.
func (s *PostgresStore) SetState(userID string, state models.StateType) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	_, err := s.db.Exec(`INSERT INTO user_states (user_id, state) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		userID, string(state))
	if err != nil {
		slog.Error("PostgresStore SetState failed", "error", err, "userID", userID, "state", state)
		return fmt.Errorf("failed to set state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
