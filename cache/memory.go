// Package cache provides caching implementations for Aegis decisions.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xraph/aegis"
)

// Compile-time interface check.
var _ aegis.Cache = (*Memory)(nil)

// Memory is an in-memory decision cache with TTL-based expiration.
// Entries are sharded per tenant so tenant invalidation drops a whole
// shard instead of scanning every key.
type Memory struct {
	mu      sync.RWMutex
	tenants map[string]map[string]entry
	size    int
	ttl     time.Duration
	maxSize int
}

type entry struct {
	dec       aegis.Decision
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries across all tenants.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		tenants: make(map[string]map[string]entry),
		ttl:     5 * time.Minute,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a cached decision.
func (m *Memory) Get(_ context.Context, tenantID string, req *aegis.EvaluateRequest) (*aegis.Decision, bool) {
	key := requestKey(req)
	m.mu.RLock()
	e, ok := m.tenants[tenantID][key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		m.remove(tenantID, key)
		m.mu.Unlock()
		return nil, false
	}
	dec := e.dec
	return &dec, true
}

// Set stores a decision in the cache.
func (m *Memory) Set(_ context.Context, tenantID string, req *aegis.EvaluateRequest, dec *aegis.Decision) {
	key := requestKey(req)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.size >= m.maxSize {
		m.sweepExpired()
		if m.size >= m.maxSize {
			m.evictSoonest()
		}
	}

	shard, ok := m.tenants[tenantID]
	if !ok {
		shard = make(map[string]entry)
		m.tenants[tenantID] = shard
	}
	if _, exists := shard[key]; !exists {
		m.size++
	}
	shard[key] = entry{dec: *dec, expiresAt: time.Now().Add(m.ttl)}
}

// InvalidateTenant removes all cached decisions for a tenant.
func (m *Memory) InvalidateTenant(_ context.Context, tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size -= len(m.tenants[tenantID])
	delete(m.tenants, tenantID)
}

// InvalidateSubject removes all cached decisions for a subject within a tenant.
func (m *Memory) InvalidateSubject(_ context.Context, tenantID, subjectID string) {
	prefix := subjectID + sep
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.tenants[tenantID] {
		if strings.HasPrefix(k, prefix) {
			m.remove(tenantID, k)
		}
	}
}

// Len reports the number of live entries across all tenants.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

const sep = "\x1f"

func requestKey(req *aegis.EvaluateRequest) string {
	return strings.Join([]string{req.SubjectID, req.Permission, req.ResourceType, req.ResourceID}, sep)
}

// remove deletes one entry and drops the shard when it empties. Must hold write lock.
func (m *Memory) remove(tenantID, key string) {
	shard, ok := m.tenants[tenantID]
	if !ok {
		return
	}
	if _, exists := shard[key]; !exists {
		return
	}
	delete(shard, key)
	m.size--
	if len(shard) == 0 {
		delete(m.tenants, tenantID)
	}
}

// sweepExpired removes all expired entries. Must hold write lock.
func (m *Memory) sweepExpired() {
	now := time.Now()
	for tenantID, shard := range m.tenants {
		for k, e := range shard {
			if now.After(e.expiresAt) {
				m.remove(tenantID, k)
			}
		}
	}
}

// evictSoonest removes the entry closest to expiry. Must hold write lock.
func (m *Memory) evictSoonest() {
	var (
		victimTenant, victimKey string
		soonest                 time.Time
		found                   bool
	)
	for tenantID, shard := range m.tenants {
		for k, e := range shard {
			if !found || e.expiresAt.Before(soonest) {
				victimTenant, victimKey, soonest, found = tenantID, k, e.expiresAt, true
			}
		}
	}
	if found {
		m.remove(victimTenant, victimKey)
	}
}
