package rustval

import "github.com/dbgvis/rustval/cache"

// CacheProvider acquires and releases layout plan caches for decode
// operations.
type CacheProvider = cache.Provider

// CacheOptions configure built-in cache providers.
type CacheOptions = cache.Options

// DefaultCacheOptions returns default options for built-in cache providers.
func DefaultCacheOptions() CacheOptions {
	return cache.DefaultOptions()
}

// NewSharedCacheProvider creates a provider backed by one ristretto cache.
// Share it between Inspectors over the same catalog only: plans are keyed
// by type id.
func NewSharedCacheProvider(opts CacheOptions) (CacheProvider, error) {
	return cache.NewSharedProvider(opts)
}

// NewNoCacheProvider creates a provider that compiles every plan afresh.
func NewNoCacheProvider() CacheProvider {
	return cache.NewNoCacheProvider()
}
