package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
	"github.com/iago/contact-distributor/internal/repository"
	"golang.org/x/sync/singleflight"
)

type Entry struct {
	Distribution domain.Distribution
	Contacts     []domain.Contact
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type Config struct {
	TTL        time.Duration
	MaxEntries int
}

// DistributionCache wraps a store and caches distribution lookups.
// Distributions never change once written, so entries only expire to bound
// memory. Listings pass straight through since they grow with every upload.
type DistributionCache struct {
	repository.DistributionStore

	mu         sync.RWMutex
	entries    map[string]Entry
	ttl        time.Duration
	maxEntries int
	loads      singleflight.Group
	now        func() time.Time
}

func NewDistributionCache(store repository.DistributionStore, config Config) *DistributionCache {
	if config.TTL <= 0 {
		config.TTL = 15 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 256
	}
	return &DistributionCache{
		DistributionStore: store,
		entries:           make(map[string]Entry),
		ttl:               config.TTL,
		maxEntries:        config.MaxEntries,
		now:               time.Now,
	}
}

func (c *DistributionCache) GetDistribution(
	ctx context.Context,
	distributionID string,
) (domain.Distribution, []domain.Contact, error) {
	if entry, ok := c.get(distributionID); ok {
		return entry.Distribution, entry.Contacts, nil
	}

	// the shared load outlives any single waiter; each caller stops waiting on its own ctx
	loadCtx := context.WithoutCancel(ctx)
	loaded := c.loads.DoChan(distributionID, func() (any, error) {
		distribution, contacts, err := c.DistributionStore.GetDistribution(loadCtx, distributionID)
		if err != nil {
			return nil, err
		}
		entry := Entry{Distribution: distribution, Contacts: contacts}
		c.set(distributionID, entry)
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return domain.Distribution{}, nil, ctx.Err()
	case result := <-loaded:
		if result.Err != nil {
			return domain.Distribution{}, nil, result.Err
		}
		entry := result.Val.(Entry)
		return entry.Distribution, cloneContacts(entry.Contacts), nil
	}
}

// Len reports the number of cached entries, expired ones included.
func (c *DistributionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *DistributionCache) get(distributionID string) (Entry, bool) {
	c.mu.RLock()
	entry, exists := c.entries[distributionID]
	c.mu.RUnlock()

	if !exists {
		return Entry{}, false
	}
	if c.now().UTC().After(entry.ExpiresAt) {
		c.mu.Lock()
		delete(c.entries, distributionID)
		c.mu.Unlock()
		return Entry{}, false
	}
	entry.Contacts = cloneContacts(entry.Contacts)
	return entry, true
}

func (c *DistributionCache) set(distributionID string, entry Entry) {
	now := c.now().UTC()
	entry.CreatedAt = now
	entry.ExpiresAt = now.Add(c.ttl)
	entry.Contacts = cloneContacts(entry.Contacts)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[distributionID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[distributionID] = entry
}

func (c *DistributionCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		value Entry
	}
	pairs := make([]pair, 0, len(c.entries))
	for key, value := range c.entries {
		pairs = append(pairs, pair{key: key, value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].value.CreatedAt.Before(pairs[j].value.CreatedAt)
	})
	delete(c.entries, pairs[0].key)
}

func cloneContacts(contacts []domain.Contact) []domain.Contact {
	clone := make([]domain.Contact, len(contacts))
	copy(clone, contacts)
	return clone
}
