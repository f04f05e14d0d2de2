// Package store provides session and menu-state storage backends for TeleGem.
//
// It includes an in-memory store used by default and persistent SQLite and
// PostgreSQL backends behind the same interface.
package store

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/telegem/telegem/internal/models"
)

// DefaultMaxHistoryTurns is the default cap on stored turns per user.
// Oldest turns are dropped first once the cap is exceeded.
const DefaultMaxHistoryTurns = 64

// Store abstracts per-user conversation history and menu state.
//
// Sessions are created lazily: reading history or state for an unknown user
// returns empty values, never an error.
type Store interface {
	// GetHistory returns the ordered turn sequence for a user.
	GetHistory(userID string) ([]models.Turn, error)

	// AppendTurn appends a turn to the user's session, dropping the oldest
	// turns if the configured history cap is exceeded.
	AppendTurn(userID string, turn models.Turn) error

	// RemoveLastTurn removes the most recently appended turn. Removing from
	// an empty session is a no-op.
	RemoveLastTurn(userID string) error

	// ResetSession removes the user's session entirely. Idempotent.
	ResetSession(userID string) error

	// GetState returns the user's menu state, or "" if none was ever set.
	GetState(userID string) (models.StateType, error)

	// SetState overwrites the user's menu state.
	SetState(userID string, state models.StateType) error

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN             string // database connection string for persistent backends
	MaxHistoryTurns int    // cap on stored turns per user; 0 means unlimited
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithMaxHistoryTurns sets the per-user history cap. Zero disables the cap.
func WithMaxHistoryTurns(n int) Option {
	return func(o *Opts) {
		o.MaxHistoryTurns = n
	}
}

// DetectDSNType classifies a DSN as "postgres", "sqlite", or "" (empty DSN).
func DetectDSNType(dsn string) string {
	switch {
	case dsn == "":
		return ""
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"),
		strings.Contains(dsn, "host="), strings.Contains(dsn, "dbname="):
		return "postgres"
	default:
		return "sqlite"
	}
}

// InMemoryStore is a mutex-guarded in-memory Store. Sessions and states live
// for the process lifetime only.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.Turn
	states   map[string]models.StateType
	maxTurns int
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := Opts{MaxHistoryTurns: DefaultMaxHistoryTurns}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewInMemoryStore created", "maxHistoryTurns", cfg.MaxHistoryTurns)
	return &InMemoryStore{
		sessions: make(map[string][]models.Turn),
		states:   make(map[string]models.StateType),
		maxTurns: cfg.MaxHistoryTurns,
	}
}

// GetHistory returns a copy of the user's turn sequence.
func (s *InMemoryStore) GetHistory(userID string) ([]models.Turn, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[userID]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// AppendTurn appends a turn, enforcing the history cap (drop-oldest).
func (s *InMemoryStore) AppendTurn(userID string, turn models.Turn) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := append(s.sessions[userID], turn)
	if s.maxTurns > 0 && len(turns) > s.maxTurns {
		dropped := len(turns) - s.maxTurns
		turns = turns[dropped:]
		slog.Debug("InMemoryStore history cap applied", "userID", userID, "dropped", dropped)
	}
	s.sessions[userID] = turns
	return nil
}

// RemoveLastTurn removes the most recent turn, if any.
func (s *InMemoryStore) RemoveLastTurn(userID string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.sessions[userID]
	if len(turns) == 0 {
		return nil
	}
	s.sessions[userID] = turns[:len(turns)-1]
	return nil
}

// ResetSession removes the user's session entirely.
func (s *InMemoryStore) ResetSession(userID string) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// GetState returns the user's menu state, "" if never set.
func (s *InMemoryStore) GetState(userID string) (models.StateType, error) {
	if userID == "" {
		return "", models.ErrEmptyUserID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[userID], nil
}

// SetState overwrites the user's menu state.
func (s *InMemoryStore) SetState(userID string, state models.StateType) error {
	if userID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = state
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
