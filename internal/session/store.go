// Package session persists in-progress lunch dialogues between messages.
package session

import (
	"context"
	"time"

	"github.com/ashureev/lunch-picker/internal/domain"
)

// DefaultTTL bounds how long an untouched session stays valid.
const DefaultTTL = 10 * time.Minute

// Store holds at most one session per user. Get must treat an expired
// session as absent.
type Store interface {
	Get(ctx context.Context, userID string) (*domain.Session, error)
	Put(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, userID string) error
	// Sweep evicts expired sessions and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
}
