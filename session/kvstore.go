package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix matches db_storage.cpp's "sessions" table naming, translated to
// a Redis key namespace.
const keyPrefix = "session:"

// kvRecord is the JSON envelope stored under each session key, mirroring
// db_storage.cpp's store() (attributes dumped to JSON, expiry as a Unix
// timestamp) but carried over Redis instead of a SQL table.
type kvRecord struct {
	Attributes map[string]string `json:"attributes"`
	ExpiresAt  int64             `json:"expires_at"`
}

// KVStore is the Redis-backed Store implementation of §6, using SETEX so
// Redis itself expires stale keys rather than relying solely on
// ClearExpired's sweep.
type KVStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewKVStore returns a KVStore talking to client; sessions it loads get the
// given timeout (DefaultTimeout if zero or negative) for later refreshes.
func NewKVStore(client *redis.Client, timeout time.Duration) *KVStore {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &KVStore{client: client, timeout: timeout}
}

var _ Store = (*KVStore)(nil)

func (k *KVStore) key(id string) string {
	return keyPrefix + id
}

// Store serializes the session's attributes and expiry into JSON and writes
// it with a Redis TTL equal to the session's remaining lifetime. A session
// that has already expired is deleted instead of written.
func (k *KVStore) Store(s *Session) error {
	ttl := time.Until(s.ExpiresAt())
	if ttl <= 0 {
		return k.Remove(s.ID())
	}
	rec := kvRecord{
		Attributes: s.Attributes(),
		ExpiresAt:  s.ExpiresAt().Unix(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal attributes: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := k.client.Set(ctx, k.key(s.ID()), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis store: %w", err)
	}
	return nil
}

// Load reads and deserializes a session, or returns (nil, nil) if the key is
// absent or Redis has already expired it.
func (k *KVStore) Load(id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := k.client.Get(ctx, k.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis load: %w", err)
	}

	var rec kvRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("session: unmarshal attributes: %w", err)
	}

	s := New(id, k.timeout)
	for key, value := range rec.Attributes {
		s.SetAttribute(key, value)
	}
	s.SetExpiresAt(time.Unix(rec.ExpiresAt, 0))
	return s, nil
}

// Remove deletes the session key; removing an absent key is not an error.
func (k *KVStore) Remove(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := k.client.Del(ctx, k.key(id)).Err(); err != nil {
		return fmt.Errorf("session: redis remove: %w", err)
	}
	return nil
}

// ClearExpired is a no-op: Redis's own TTL (set via SETEX in Store) already
// expires stale keys, unlike db_storage.cpp's SQL backend which needed an
// explicit sweep query.
func (k *KVStore) ClearExpired() error {
	return nil
}
