package shared

import (
	"context"
	"encoding/json"
	"time"
)

// ResultCache is a TTL-keyed byte cache placed in front of expensive reads.
// Implementations must treat an entry as absent once its TTL has elapsed.
//
// Keys are built with CacheKey so that every entry of a service shares the
// "<service>:" prefix, which is what InvalidateByPrefix operates on.
type ResultCache interface {
	// Get returns the cached value and true on a hit.
	// A miss is reported as (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero ttl means the implementation default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes a single key.
	Invalidate(ctx context.Context, key string) error

	// InvalidateByPrefix removes every key starting with prefix.
	InvalidateByPrefix(ctx context.Context, prefix string) error

	// Close releases any resources held by the cache.
	Close() error
}

// TTLReader is implemented by caches that can report how long an entry has
// left to live. Tiered caches use it so a local copy never outlives its
// source entry.
type TTLReader interface {
	// GetWithTTL is Get plus the remaining lifetime of the entry.
	// A negative remaining lifetime means the entry does not expire.
	GetWithTTL(ctx context.Context, key string) (value []byte, remaining time.Duration, ok bool, err error)
}

// CacheEntry is a stored value with its creation time and lifetime.
type CacheEntry struct {
	Key       string
	Value     []byte
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is past its TTL at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Remaining returns how long the entry stays valid after now.
func (e CacheEntry) Remaining(now time.Time) time.Duration {
	return e.TTL - now.Sub(e.CreatedAt)
}

// Cache service namespaces
const (
	CacheServicePolicyTables    = "policy_tables"
	CacheServicePolicyRecords   = "policy_records"
	CacheServiceReports         = "reports"
	CacheServiceContactPolicies = "contact_policies"
)

// CacheKey builds a key from the service name and a stable serialization of
// params. encoding/json sorts map keys, so equal params give equal keys.
func CacheKey(service string, params map[string]any) string {
	if len(params) == 0 {
		return service + ":{}"
	}
	b, err := json.Marshal(params)
	if err != nil {
		// params are plain scalars in practice; fall back to the namespace
		return service + ":{}"
	}
	return service + ":" + string(b)
}

// CachePrefix returns the prefix shared by all keys of service.
func CachePrefix(service string) string {
	return service + ":"
}

// CacheUpdateAction represents the type of cache invalidation notification
type CacheUpdateAction string

const (
	CacheUpdateActionKey    CacheUpdateAction = "key"
	CacheUpdateActionPrefix CacheUpdateAction = "prefix"
)

// CacheUpdateMessage is broadcast to peer instances so they can drop
// entries from their local tier.
type CacheUpdateMessage struct {
	Action    CacheUpdateAction `json:"action"`
	Target    string            `json:"target"`
	Source    string            `json:"source,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// CacheInvalidator publishes and receives invalidation notifications.
type CacheInvalidator interface {
	Publish(ctx context.Context, msg CacheUpdateMessage) error
	// Subscribe blocks until ctx is cancelled or the invalidator is closed.
	Subscribe(ctx context.Context, callback func(msg CacheUpdateMessage)) error
	Close() error
}
