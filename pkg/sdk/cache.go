package sdk

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Param is one typed argument of a cached call. Flags that do not change the result, such as a
// cache bypass, must not be passed as a Param.
type Param struct {
	Name  string
	value string
}

// IntParam builds an integer key parameter.
func IntParam(name string, v int) Param {
	return Param{Name: name, value: "i:" + strconv.Itoa(v)}
}

// StringParam builds a string key parameter.
func StringParam(name, v string) Param {
	return Param{Name: name, value: "s:" + url.QueryEscape(v)}
}

// CacheKey identifies a cached result: who asked, which operation, and with which arguments.
type CacheKey struct {
	Account   string
	Operation string
	Params    []Param
}

// NewCacheKey builds a key. Params are kept in the given order.
func NewCacheKey(account, operation string, params ...Param) CacheKey {
	return CacheKey{Account: account, Operation: operation, Params: params}
}

// String renders the key deterministically. Components are escaped so that distinct keys never
// render to the same string.
func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString(url.QueryEscape(k.Account))
	b.WriteByte('|')
	b.WriteString(url.QueryEscape(k.Operation))
	for _, p := range k.Params {
		b.WriteByte('|')
		b.WriteString(url.QueryEscape(p.Name))
		b.WriteByte('=')
		b.WriteString(p.value)
	}
	return b.String()
}

// CacheEntry is a stored result. Value holds the JSON encoding of the result.
type CacheEntry struct {
	Value     []byte    `json:"value"`
	WrittenAt time.Time `json:"written_at"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e CacheEntry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.WrittenAt) < ttl
}

// CacheStore persists cache entries. Implementations do not apply TTLs; expired entries are
// returned and the caller decides.
type CacheStore interface {
	Get(ctx context.Context, key CacheKey) (CacheEntry, bool, error)
	Put(ctx context.Context, key CacheKey, entry CacheEntry) error
}

// MemoryCache is the default CacheStore. Its contents travel with the session file.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

var _ CacheStore = (*MemoryCache)(nil)

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]CacheEntry)}
}

func (m *MemoryCache) Get(_ context.Context, key CacheKey) (CacheEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[key.String()]
	return entry, ok, nil
}

func (m *MemoryCache) Put(_ context.Context, key CacheKey, entry CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.String()] = entry
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Keys returns the rendered keys in sorted order.
func (m *MemoryCache) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemoryCache) export() map[string]CacheEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CacheEntry, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}

func (m *MemoryCache) load(entries map[string]CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]CacheEntry, len(entries))
	for k, v := range entries {
		m.entries[k] = v
	}
}

// cached returns the stored result for key when it is younger than ttl, otherwise it runs compute
// and stores the result. Failures of compute are returned without touching the cache. Results
// are decoded from their stored encoding on every hit, so callers never share memory with the cache.
// The caller must hold s.mu.
func cached[T any](ctx context.Context, s *Session, key CacheKey, ttl time.Duration, bypass bool, compute func(context.Context) (T, error)) (T, error) {
	if !bypass {
		if value, ok := s.readCache(ctx, key, ttl); ok {
			var out T
			err := json.Unmarshal(value, &out)
			if err == nil {
				s.logger.Debug("cache hit", "operation", key.Operation, "key", key.String())
				return out, nil
			}
			s.logger.Warn("discarding undecodable cache entry", "key", key.String(), "error", err)
		}
	}

	s.logger.Debug("computing", "operation", key.Operation, "bypass", bypass)
	result, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	now := s.now()
	s.lastRefreshedAt = now
	data, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("result not cached", "key", key.String(), "error", err)
		return result, nil
	}
	if err := s.store.Put(ctx, key, CacheEntry{Value: data, WrittenAt: now}); err != nil {
		s.logger.Warn("result not cached", "key", key.String(), "error", err)
	}
	return result, nil
}

func (s *Session) readCache(ctx context.Context, key CacheKey, ttl time.Duration) ([]byte, bool) {
	entry, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key.String(), "error", err)
		return nil, false
	}
	if !ok || !entry.Fresh(s.now(), ttl) {
		return nil, false
	}
	return entry.Value, true
}
