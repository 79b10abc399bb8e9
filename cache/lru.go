package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/brunobiangulo/clausegraph/analysis"
)

// LRU keeps recently used envelopes in memory in front of a backing Store.
// Entries are held encoded so every Load hands out a fresh copy.
type LRU struct {
	next  Store
	cache *lru.Cache[string, []byte]
}

// NewLRU wraps next. next may be nil for a memory-only cache.
func NewLRU(size int, next Store) (*LRU, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &LRU{next: next, cache: c}, nil
}

// Load implements Store.
func (l *LRU) Load(ctx context.Context, id string) (*analysis.Envelope, error) {
	if _, err := Key(id); err != nil {
		return nil, err
	}
	if data, ok := l.cache.Get(id); ok {
		return decode(data)
	}
	if l.next == nil {
		return nil, ErrNotFound
	}

	env, err := l.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := encode(env); err == nil {
		l.cache.Add(id, data)
	}
	return env, nil
}

// Save writes through to the backing store before caching.
func (l *LRU) Save(ctx context.Context, id string, env *analysis.Envelope) error {
	if _, err := Key(id); err != nil {
		return err
	}
	if l.next != nil {
		if err := l.next.Save(ctx, id, env); err != nil {
			return err
		}
	}
	data, err := encode(env)
	if err != nil {
		return err
	}
	l.cache.Add(id, data)
	return nil
}

// Len returns the number of envelopes held in memory.
func (l *LRU) Len() int {
	return l.cache.Len()
}
