// Package verify tracks short-lived face-verification sessions. A mark
// authorizes exactly one attendance scan and expires on its own after the
// configured window; there is no background timer, expiry is checked on read.
package verify

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sessions is the abstraction over different backends.
type Sessions interface {
	// Mark flags the user as face-verified for the window. Re-marking resets
	// the window.
	Mark(ctx context.Context, userID string) error
	// Verified reports whether the user holds an unexpired mark.
	Verified(ctx context.Context, userID string) (bool, error)
	// Clear drops the mark immediately.
	Clear(ctx context.Context, userID string) error
}

// Memory is a map-backed session store for dev/testing. Each entry carries an
// explicit expiry timestamp compared lazily against the clock.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

// NewMemory creates an in-memory session store.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		expires: make(map[string]time.Time),
	}
}

// Mark flags userID until now+ttl.
func (m *Memory) Mark(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[userID] = m.now().Add(m.ttl)
	return nil
}

// Verified checks the stored expiry against the clock and prunes stale marks.
func (m *Memory) Verified(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[userID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.expires, userID)
		return false, nil
	}
	return true, nil
}

// Clear drops the mark.
func (m *Memory) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expires, userID)
	return nil
}

// RedisSessions stores marks as redis keys with a TTL, so expiry survives a
// process restart and needs no in-process state.
type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a redis-backed session store.
func NewRedis(client *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{client: client, ttl: ttl}
}

func sessionKey(userID string) string {
	return "absensi:verify:" + userID
}

// Mark sets the key with the window as TTL.
func (r *RedisSessions) Mark(ctx context.Context, userID string) error {
	return r.client.Set(ctx, sessionKey(userID), "1", r.ttl).Err()
}

// Verified checks key existence; redis handles expiry.
func (r *RedisSessions) Verified(ctx context.Context, userID string) (bool, error) {
	_, err := r.client.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clear deletes the key.
func (r *RedisSessions) Clear(ctx context.Context, userID string) error {
	return r.client.Del(ctx, sessionKey(userID)).Err()
}
