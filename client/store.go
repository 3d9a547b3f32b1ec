package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// Persisted keys.
const (
	KeyUserInfo        = "userInfo"
	KeyTokenExpiration = "tokenExpiration"
	KeyCartItems       = "cartItems"
)

// KV is the persistent key-value backend behind a Store. Get returns nil
// and no error for a missing key, and a non-nil slice for a present one,
// even when it is empty. Put writes all entries atomically.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Store is the only reader and writer of the persisted session. It keeps
// the session blob and the expiry marker consistent: both are written
// together and removed together.
type Store struct {
	kv KV
}

// NewStore wraps a KV backend.
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Save persists the session and its expiry marker (epoch millis).
func (s *Store) Save(ctx context.Context, sess Session, marker time.Time) error {
	blob, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return s.kv.Put(ctx, map[string][]byte{
		KeyUserInfo:        blob,
		KeyTokenExpiration: []byte(strconv.FormatInt(marker.UnixMilli(), 10)),
	})
}

// SaveSession rewrites the session blob and leaves the marker alone.
func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	blob, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return s.kv.Put(ctx, map[string][]byte{KeyUserInfo: blob})
}

// Load returns the persisted session, if any.
func (s *Store) Load(ctx context.Context) (Session, bool, error) {
	blob, err := s.kv.Get(ctx, KeyUserInfo)
	if err != nil {
		return Session{}, false, fmt.Errorf("reading session: %w", err)
	}
	if blob == nil {
		return Session{}, false, nil
	}
	var sess Session
	if err := json.Unmarshal(blob, &sess); err != nil {
		return Session{}, false, fmt.Errorf("decoding session: %w", err)
	}
	return sess, true, nil
}

// Marker returns the persisted expiry marker, if any.
func (s *Store) Marker(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.kv.Get(ctx, KeyTokenExpiration)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading expiry marker: %w", err)
	}
	if raw == nil {
		return time.Time{}, false, nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("parsing expiry marker %q: %w", raw, err)
	}
	return time.UnixMilli(ms), true, nil
}

// Cart returns the cached cart state.
func (s *Store) Cart(ctx context.Context) ([]byte, error) {
	return s.kv.Get(ctx, KeyCartItems)
}

// SaveCart caches cart state. It is tied to the identity and removed by Clear.
func (s *Store) SaveCart(ctx context.Context, items []byte) error {
	return s.kv.Put(ctx, map[string][]byte{KeyCartItems: items})
}

// Clear removes the session, the expiry marker and the cart.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyUserInfo, KeyTokenExpiration, KeyCartItems); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// MemoryStore is an in-process KV. Several managers sharing one
// MemoryStore behave like browser tabs sharing local storage.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (m *MemoryStore) Put(_ context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.data[k] = append([]byte{}, v...)
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}
