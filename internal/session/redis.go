package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis so several webhook replicas share them.
// Keys expire on their own; Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) RedisOption {
	return func(r *RedisStore) { r.logger = l }
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration, opts ...RedisOption) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &RedisStore{
		client: client,
		prefix: "lunch:session:",
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) key(userID string) string {
	return r.prefix + userID
}

// Get returns the user's session, or nil when absent or expired.
func (r *RedisStore) Get(ctx context.Context, userID string) (*domain.Session, error) {
	val, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", userID, err)
	}

	var s domain.Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	// Key expiry is measured from the write; TouchedAt may be older.
	if s.Expired(r.now(), r.ttl) {
		if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
			r.logger.Debug("Failed to delete expired session", "user_id", userID, "error", err)
		}
		return nil, nil
	}
	return &s, nil
}

// Put writes s with an expiry of the remaining TTL.
func (r *RedisStore) Put(ctx context.Context, s *domain.Session) error {
	if s.UserID == "" {
		return fmt.Errorf("session: missing user_id")
	}

	remaining := r.ttl - r.now().Sub(s.TouchedAt)
	if remaining <= 0 {
		return r.client.Del(ctx, r.key(s.UserID)).Err()
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	return r.client.Set(ctx, r.key(s.UserID), data, remaining).Err()
}

// Delete removes the user's session.
func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, r.key(userID)).Err()
}

// Sweep is a no-op; Redis evicts expired keys.
func (r *RedisStore) Sweep(context.Context) (int, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
