// Package search hosts the tracking lookup and the cached option lookups
// that populate select fields across the console.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cargolog/console/internal/entity"
	"github.com/cargolog/console/internal/listing"
	"github.com/cargolog/console/model"
)

// Option is one selectable value for a record field.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LookupProvider resolves entity collections into option lists with a
// per-company TTL cache.
type LookupProvider struct {
	registry   *entity.Registry
	lister     listing.Lister
	defaultTTL time.Duration
	maxEntries int

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	options   []Option
	expiresAt time.Time
}

// NewLookupProvider creates a LookupProvider over the loaded entities.
func NewLookupProvider(registry *entity.Registry, lister listing.Lister, defaultTTL time.Duration, maxEntries int) *LookupProvider {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &LookupProvider{
		registry:   registry,
		lister:     lister,
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		cache:      make(map[string]cacheEntry),
	}
}

// Options resolves the option list for an entity, labeled by labelField and
// valued by the entity's identifier. Cached per company; the optional query
// narrows by label, case-insensitively.
func (lp *LookupProvider) Options(ctx context.Context, rctx *model.RequestContext, entityName, labelField, query string) ([]Option, bool, error) {
	def, ok := lp.registry.Get(entityName)
	if !ok {
		return nil, false, model.NewNotFoundError(fmt.Sprintf("entidade %q não existe", entityName))
	}

	cacheKey := fmt.Sprintf("lookup:%s:%s", def.Entity, rctx.CompanyID)
	if options, hit := lp.getFromCache(cacheKey); hit {
		return filterOptions(options, query), true, nil
	}

	rows, err := lp.lister.List(ctx, rctx, def.BaseRoute, nil)
	if err != nil {
		return nil, false, err
	}

	options := make([]Option, 0, len(rows))
	for _, row := range rows {
		value := row.ID(def.Identifier())
		label := row.StringField(labelField)
		if label == "" && value == "" {
			continue
		}
		if label == "" {
			label = value
		}
		options = append(options, Option{Label: label, Value: value})
	}

	lp.putInCache(cacheKey, options)
	return filterOptions(options, query), false, nil
}

// Invalidate removes the cached options for an entity, all companies.
func (lp *LookupProvider) Invalidate(entityName string) {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	for k := range lp.cache {
		if strings.HasPrefix(k, "lookup:"+entityName+":") {
			delete(lp.cache, k)
		}
	}
}

// CacheLen returns the number of cache entries. For testing.
func (lp *LookupProvider) CacheLen() int {
	lp.mu.RLock()
	defer lp.mu.RUnlock()
	return len(lp.cache)
}

func (lp *LookupProvider) getFromCache(key string) ([]Option, bool) {
	lp.mu.RLock()
	defer lp.mu.RUnlock()

	entry, exists := lp.cache[key]
	if !exists || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.options, true
}

func (lp *LookupProvider) putInCache(key string, options []Option) {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if len(lp.cache) >= lp.maxEntries {
		lp.evictExpired()
	}
	lp.cache[key] = cacheEntry{
		options:   options,
		expiresAt: time.Now().Add(lp.defaultTTL),
	}
}

// evictExpired removes expired entries. Must be called with mu held.
func (lp *LookupProvider) evictExpired() {
	now := time.Now()
	for k, v := range lp.cache {
		if now.After(v.expiresAt) {
			delete(lp.cache, k)
		}
	}
}

// filterOptions narrows options by a case-insensitive label match.
func filterOptions(options []Option, query string) []Option {
	if query == "" {
		return options
	}
	q := strings.ToLower(query)
	var filtered []Option
	for _, opt := range options {
		if strings.Contains(strings.ToLower(opt.Label), q) {
			filtered = append(filtered, opt)
		}
	}
	return filtered
}
