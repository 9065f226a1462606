package utils

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Draft is the flat field set captured by the editor's autosave calls.
type Draft map[string]string

// DraftStore keeps the most recent autosaved draft per caller. Writes are
// last-write-wins per key; there is no merging and no validation.
type DraftStore interface {
	Save(ctx context.Context, key string, d Draft) error
	Load(ctx context.Context, key string) (Draft, bool)
}

// NewDraftStore prefers a Redis backed store when the server is reachable and
// falls back to a process-local store otherwise.
func NewDraftStore(ttl time.Duration) DraftStore {
	if RedisAvailable() {
		return &RedisDraftStore{ttl: ttl}
	}
	if Sugar != nil {
		Sugar.Warn("redis unreachable, autosaved drafts are kept in memory only")
	}
	return NewMemoryDraftStore()
}

// RedisDraftStore persists drafts as JSON values with a TTL.
type RedisDraftStore struct {
	ttl time.Duration
}

func (s *RedisDraftStore) Save(ctx context.Context, key string, d Draft) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	ttl := s.ttl
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return GetRedis().Set(ctx, "draft:"+key, b, ttl).Err()
}

func (s *RedisDraftStore) Load(ctx context.Context, key string) (Draft, bool) {
	b, err := GetRedis().Get(ctx, "draft:"+key).Bytes()
	if err != nil {
		return nil, false
	}
	var d Draft
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, false
	}
	return d, true
}

// MemoryDraftStore is the single-instance fallback, also used by tests.
type MemoryDraftStore struct {
	mu     sync.RWMutex
	drafts map[string]Draft
}

func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{drafts: map[string]Draft{}}
}

func (s *MemoryDraftStore) Save(ctx context.Context, key string, d Draft) error {
	s.mu.Lock()
	s.drafts[key] = d
	s.mu.Unlock()
	return nil
}

func (s *MemoryDraftStore) Load(ctx context.Context, key string) (Draft, bool) {
	s.mu.RLock()
	d, ok := s.drafts[key]
	s.mu.RUnlock()
	return d, ok
}
