package cache

import (
	"log/slog"
	"strings"
	"time"
)

// Data categories recognized by the store cache. The TTL table keys off
// these names; unknown categories fall back to DefaultTTL.
const (
	CategoryCharacter = "character"
	CategoryWorld     = "world"
	CategoryStyle     = "style"
	CategoryRules     = "rules"
	CategoryFact      = "fact"
	CategoryTimeline  = "timeline"
	CategoryState     = "state"
	CategoryDraft     = "draft"
	CategorySummary   = "summary"
	CategoryProject   = "project"
)

// DefaultTTL applies to categories without an explicit table entry.
const DefaultTTL = 300 * time.Second

// ttlTable maps each category to how long its entries stay fresh.
// Slow-changing card data keeps longer TTLs than canon and drafts,
// which churn during a writing session.
var ttlTable = map[string]time.Duration{
	CategoryCharacter: 300 * time.Second,
	CategoryWorld:     300 * time.Second,
	CategoryStyle:     600 * time.Second,
	CategoryRules:     600 * time.Second,
	CategoryFact:      120 * time.Second,
	CategoryTimeline:  120 * time.Second,
	CategoryState:     120 * time.Second,
	CategoryDraft:     60 * time.Second,
	CategorySummary:   300 * time.Second,
	CategoryProject:   300 * time.Second,
}

// TTLFor returns the freshness window for a category.
func TTLFor(category string) time.Duration {
	if ttl, ok := ttlTable[category]; ok {
		return ttl
	}
	return DefaultTTL
}

// StoreCache is a read-through cache shared by the persistence stores.
// Keys are namespaced "category:project[:args...]" so a whole category
// of a project can be invalidated after a write.
type StoreCache struct {
	lru    *LRU[any]
	logger *slog.Logger
}

// NewStoreCache creates a store cache bounded to capacity entries.
func NewStoreCache(capacity int) *StoreCache {
	return &StoreCache{
		lru:    NewLRU[any](capacity),
		logger: slog.Default().With("component", "cache"),
	}
}

// Key builds a namespaced cache key.
func Key(category, project string, args ...string) string {
	parts := append([]string{category, project}, args...)
	return strings.Join(parts, ":")
}

// GetOrLoad returns the cached value for the key, or calls load, caches
// the result under the category's TTL, and returns it. Load errors are
// not cached.
func (s *StoreCache) GetOrLoad(category, project string, args []string, load func() (any, error)) (any, error) {
	key := Key(category, project, args...)
	if v, ok := s.lru.Get(key); ok {
		s.logger.Debug("cache hit", "key", key)
		return v, nil
	}
	v, err := load()
	if err != nil {
		return nil, err
	}
	s.lru.Set(key, v, TTLFor(category))
	s.logger.Debug("cache fill", "key", key)
	return v, nil
}

// Invalidate removes a single cached entry.
func (s *StoreCache) Invalidate(category, project string, args ...string) {
	s.lru.Delete(Key(category, project, args...))
}

// InvalidateCategory removes every cached entry for one category of one
// project. The key prefix is closed with the separator so projects with
// a common name prefix do not invalidate each other.
func (s *StoreCache) InvalidateCategory(category, project string) {
	base := Key(category, project)
	s.lru.Delete(base)
	n := s.lru.DeletePrefix(base + ":")
	if n > 0 {
		s.logger.Debug("cache invalidated", "category", category, "project", project, "entries", n)
	}
}

// InvalidateProject removes all cached entries of a project across
// every category.
func (s *StoreCache) InvalidateProject(project string) {
	for category := range ttlTable {
		s.InvalidateCategory(category, project)
	}
}

// Stats reports cumulative hit and miss counts.
func (s *StoreCache) Stats() (hits, misses uint64) {
	return s.lru.Stats()
}
