package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jw6ventures/roomwatch/internal/auth"
)

const sessionKeyPrefix = "roomwatch:credentials:"

// SessionBackend stores opaque blobs by key with an expiry. Get returns
// ErrNotFound for missing or expired keys.
type SessionBackend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SessionStore keeps one bundle per web session. The session id is read from
// the request context (see auth.SessionManager.Middleware).
type SessionStore struct {
	Backend SessionBackend
	TTL     time.Duration
}

func NewSessionStore(backend SessionBackend, ttl time.Duration) *SessionStore {
	return &SessionStore{Backend: backend, TTL: ttl}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func (s *SessionStore) Load(ctx context.Context) (Credentials, error) {
	sid := auth.SessionIDFromContext(ctx)
	if sid == "" {
		return nil, ErrNotFound
	}
	data, err := s.Backend.Get(ctx, sessionKey(sid))
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *SessionStore) Save(ctx context.Context, creds Credentials) error {
	sid := auth.SessionIDFromContext(ctx)
	if sid == "" {
		return ErrNoSession
	}
	data, err := encode(creds)
	if err != nil {
		return err
	}
	return s.Backend.Set(ctx, sessionKey(sid), data, s.TTL)
}

func (s *SessionStore) Delete(ctx context.Context) error {
	sid := auth.SessionIDFromContext(ctx)
	if sid == "" {
		return nil
	}
	return s.Backend.Delete(ctx, sessionKey(sid))
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process SessionBackend. Expired entries are dropped
// lazily on Get and periodically by a cleanup goroutine.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryBackend starts a cleanup goroutine running every cleanupInterval.
// Call Close to stop it.
func NewMemoryBackend(cleanupInterval time.Duration) *MemoryBackend {
	b := &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go b.cleanup(cleanupInterval)
	}
	return b
}

func (b *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !b.now().Before(entry.expiresAt) {
		delete(b.entries, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (b *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if ttl > 0 {
		entry.expiresAt = b.now().Add(ttl)
	}
	b.entries[key] = entry
	return nil
}

func (b *MemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Close stops the cleanup goroutine.
func (b *MemoryBackend) Close() {
	b.once.Do(func() { close(b.stop) })
}

func (b *MemoryBackend) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.evictExpired()
		case <-b.stop:
			return
		}
	}
}

func (b *MemoryBackend) evictExpired() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	for key, entry := range b.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(b.entries, key)
		}
	}
}

// RedisBackend stores session blobs in Redis.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.client == nil {
		return nil, errors.New("redis not configured")
	}
	value, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if b.client == nil {
		return errors.New("redis not configured")
	}
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if b.client == nil {
		return errors.New("redis not configured")
	}
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
