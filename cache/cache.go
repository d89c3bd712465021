// Package cache provides pluggable caches for compiled layout plans.
//
// Plans depend only on the read-only type catalog, so they can be shared
// across decode calls and goroutines. Decoded values are never cached: the
// target may change between inspections.
package cache

import (
	"github.com/dgraph-io/ristretto/v2"
)

// Cache stores values by type id.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Provider acquires and releases caches for decode operations.
//
// Providers may return a shared thread-safe Cache or a per-decode exclusive
// Cache. Release is called after decoding.
type Provider interface {
	Acquire() Cache
	Release(Cache)
}

// Options configure built-in cache providers.
type Options struct {
	// MaxEntries bounds the number of cached plans.
	MaxEntries int64
	// NumCounters sizes the admission policy; ristretto recommends ten
	// times the expected number of entries.
	NumCounters int64
}

// DefaultOptions returns the built-in cache defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries:  1 << 14,
		NumCounters: 1 << 18,
	}
}

func (o Options) normalized() Options {
	def := DefaultOptions()
	out := o
	if out.MaxEntries <= 0 {
		out.MaxEntries = def.MaxEntries
	}
	if out.NumCounters <= 0 {
		out.NumCounters = 10 * out.MaxEntries
	}
	return out
}

type ristrettoCache struct {
	c *ristretto.Cache[string, any]
}

func (r *ristrettoCache) Get(key string) (any, bool) {
	return r.c.Get(key)
}

func (r *ristrettoCache) Set(key string, value any) {
	r.c.Set(key, value, 1)
}

type sharedProvider struct {
	cache *ristrettoCache
}

func (p *sharedProvider) Acquire() Cache {
	return p.cache
}

func (*sharedProvider) Release(Cache) {}

// Close releases the ristretto goroutines of a provider created by
// NewSharedProvider. Other providers are left alone.
func Close(p Provider) {
	if sp, ok := p.(*sharedProvider); ok {
		sp.cache.c.Close()
	}
}

// Wait blocks until pending writes of a shared provider are visible.
func Wait(p Provider) {
	if sp, ok := p.(*sharedProvider); ok {
		sp.cache.c.Wait()
	}
}

// NewSharedProvider creates a provider backed by one ristretto cache shared
// by every decode call.
func NewSharedProvider(opts Options) (Provider, error) {
	opts = opts.normalized()
	c, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: opts.NumCounters,
		MaxCost:     opts.MaxEntries,
		BufferItems: 64,
		// Entries are counted, not weighed.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &sharedProvider{cache: &ristrettoCache{c: c}}, nil
}

type noCache struct{}

func (noCache) Get(string) (any, bool) { return nil, false }

func (noCache) Set(string, any) {}

type noCacheProvider struct {
	cache noCache
}

func (p *noCacheProvider) Acquire() Cache {
	return p.cache
}

func (*noCacheProvider) Release(Cache) {}

// NewNoCacheProvider creates a provider that disables caching.
func NewNoCacheProvider() Provider {
	return &noCacheProvider{}
}
