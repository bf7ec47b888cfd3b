// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/161043261/ai-agent-go/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Repository defines the interface for persisting users, sessions and messages.
// Messages are append-only: there is no update or delete, and replaying the
// same write produces a duplicate row by design.
type Repository interface {
	// CreateUser inserts a new user record.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUserByUserName retrieves a user by username. Returns ErrNotFound if
	// no such user exists.
	GetUserByUserName(ctx context.Context, userName string) (*domain.User, error)

	// CreateSession inserts a new session record.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by id. Returns ErrNotFound if no such
	// session exists.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// SessionsByUserName retrieves all sessions belonging to a user, oldest first.
	SessionsByUserName(ctx context.Context, userName string) ([]domain.Session, error)

	// CreateMessage appends a message row and fills in its assigned id.
	CreateMessage(ctx context.Context, message *domain.Message) error

	// MessagesBySession retrieves all messages for a session in creation order.
	MessagesBySession(ctx context.Context, sessionID string) ([]domain.Message, error)

	// AllMessages retrieves every stored message in creation order. Used by
	// the startup bootstrap to rehydrate in-memory conversation state.
	AllMessages(ctx context.Context) ([]domain.Message, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
