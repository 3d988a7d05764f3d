package pool

import (
	"math"
	"time"
)

// DefaultExpirationDelay is how long a resource may stay unused before the
// expiration timer evicts it.
const DefaultExpirationDelay = time.Second

// Option configures a ResourcePool during creation.
//
// Example:
//
//	p := pool.New(provider, loop,
//	    pool.WithLimits(64<<20, 512),
//	    pool.WithExpirationDelay(500*time.Millisecond))
type Option func(*options)

// options holds optional configuration for ResourcePool creation.
type options struct {
	maxMemoryBytes   int
	maxResourceCount int
	expirationDelay  time.Duration
}

// defaultOptions returns unlimited usage and DefaultExpirationDelay.
func defaultOptions() options {
	return options{
		maxMemoryBytes:   math.MaxInt,
		maxResourceCount: math.MaxInt,
		expirationDelay:  DefaultExpirationDelay,
	}
}

// WithLimits sets the initial byte and resource count limits.
// See ResourcePool.SetResourceUsageLimits.
func WithLimits(maxBytes, maxCount int) Option {
	return func(o *options) {
		o.maxMemoryBytes = maxBytes
		o.maxResourceCount = maxCount
	}
}

// WithExpirationDelay sets how long unused resources are kept.
func WithExpirationDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expirationDelay = d
		}
	}
}
