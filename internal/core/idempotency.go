package core

import (
	"fmt"

	"SealedAuction/internal/observability"

	lru "github.com/hashicorp/golang-lru/v2"
)

// IdempotencyChecker implements two-tier deduplication: an in-memory LRU in
// front of a durable lookup.
type IdempotencyChecker struct {
	lru       *IdempotencyLRU
	dbChecker DBIdempotencyChecker
	metrics   *observability.Metrics

	tier2Errors int64
}

// DBIdempotencyChecker is the interface for the durable dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(eventType string, idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
	}
}

func compositeKey(eventType, idempotencyKey string) string {
	return fmt.Sprintf("%s:%s", eventType, idempotencyKey)
}

// IsDuplicate checks if the operation was already applied
func (ic *IdempotencyChecker) IsDuplicate(eventType string, idempotencyKey string) bool {
	key := compositeKey(eventType, idempotencyKey)

	if ic.lru.Contains(key) {
		ic.recordDuplicate(eventType, "lru")
		return true
	}

	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(eventType, idempotencyKey)
		if err != nil {
			// A failing durable tier must not block the engine; the LRU and
			// the round table still guard the hot path.
			ic.tier2Errors++
			return false
		}

		if isDup {
			ic.recordDuplicate(eventType, "postgres")
			ic.lru.Add(key)
			return true
		}
	}

	return false
}

// MarkProcessed adds key to LRU after successful processing
func (ic *IdempotencyChecker) MarkProcessed(eventType string, idempotencyKey string) {
	ic.lru.Add(compositeKey(eventType, idempotencyKey))
}

// Tier2Errors returns how many durable lookups failed.
func (ic *IdempotencyChecker) Tier2Errors() int64 {
	return ic.tier2Errors
}

func (ic *IdempotencyChecker) recordDuplicate(eventType, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(eventType, tier).Inc()
	}
}

// --- LRU ---

// IdempotencyLRU is the in-memory dedup tier. Lookups promote a key, so the
// keys evicted first are the ones not seen for longest.
type IdempotencyLRU struct {
	cache     *lru.Cache[string, struct{}]
	evictions int64
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	cache, err := lru.New[string, struct{}](max(capacity, 1))
	if err != nil {
		panic(fmt.Sprintf("idempotency lru: %v", err))
	}
	return &IdempotencyLRU{cache: cache}
}

// Contains checks if key exists (promotes to front)
func (l *IdempotencyLRU) Contains(key string) bool {
	_, ok := l.cache.Get(key)
	return ok
}

// Add inserts a key (or promotes if exists)
func (l *IdempotencyLRU) Add(key string) {
	if l.cache.Add(key, struct{}{}) {
		l.evictions++
	}
}

// WarmFromKeys loads composite keys oldest first, so the last key ends up
// most recently used.
func (l *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		l.Add(key)
	}
}

// Keys returns all keys from least to most recently used.
func (l *IdempotencyLRU) Keys() []string {
	return l.cache.Keys()
}

// Size returns current number of entries
func (l *IdempotencyLRU) Size() int {
	return l.cache.Len()
}

// Evictions returns total evictions
func (l *IdempotencyLRU) Evictions() int64 {
	return l.evictions
}
