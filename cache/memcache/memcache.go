// Package memcache is an in-process PlaygroundCache for single-node runs and
// tests.
package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/spectra-gallery/spectra-playground/models"
)

type expiring[T any] struct {
	value    T
	deadline time.Time
}

type subscriber struct {
	ctx     context.Context
	handler func([]byte)
}

type MemoryCache struct {
	// Now is the clock used for expiry; tests may replace it.
	Now func() time.Time

	mu       sync.Mutex
	subs     map[string][]*subscriber
	shares   map[string]expiring[models.ShareEntry]
	attempts map[string]expiring[int64]
}

func New() *MemoryCache {
	return &MemoryCache{
		Now:      time.Now,
		subs:     make(map[string][]*subscriber),
		shares:   make(map[string]expiring[models.ShareEntry]),
		attempts: make(map[string]expiring[int64]),
	}
}

func (m *MemoryCache) Publish(ctx context.Context, channel string, message []byte) error {
	m.mu.Lock()
	live := m.subs[channel][:0]
	for _, s := range m.subs[channel] {
		if s.ctx.Err() == nil {
			live = append(live, s)
		}
	}
	m.subs[channel] = live
	targets := append([]*subscriber(nil), live...)
	m.mu.Unlock()

	for _, s := range targets {
		msg := append([]byte(nil), message...)
		go s.handler(msg)
	}
	return nil
}

func (m *MemoryCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], &subscriber{ctx: ctx, handler: handler})
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) SetShare(ctx context.Context, share models.ShareEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shares[share.Token] = expiring[models.ShareEntry]{value: share, deadline: m.Now().Add(ttl)}
	return nil
}

func (m *MemoryCache) GetShare(ctx context.Context, token string) (models.ShareEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.shares[token]
	if !ok {
		return models.ShareEntry{}, false, nil
	}
	if !m.Now().Before(e.deadline) {
		delete(m.shares, token)
		return models.ShareEntry{}, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCache) InvalidateShares(ctx context.Context, tokens []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		delete(m.shares, t)
	}
	return nil
}

func (m *MemoryCache) IncrementAttempts(ctx context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	e, ok := m.attempts[key]
	if !ok || !now.Before(e.deadline) {
		e = expiring[int64]{deadline: now.Add(window)}
	}
	e.value++
	m.attempts[key] = e
	return e.value, nil
}

func (m *MemoryCache) ResetAttempts(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, key)
	return nil
}
