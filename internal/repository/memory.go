package repository

import (
	"context"
	"sync"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
)

// MemoryDistributionStore keeps distributions in memory for local development
// and tests. Contacts live in one append-only slice indexed by distribution
// and by agent.
type MemoryDistributionStore struct {
	mu sync.RWMutex

	distributions []domain.Distribution
	byID          map[string]int

	contacts       []domain.Contact
	byDistribution map[string][]int
	byAgent        map[string][]int

	now func() time.Time
}

func NewMemoryDistributionStore() *MemoryDistributionStore {
	return &MemoryDistributionStore{
		distributions:  make([]domain.Distribution, 0),
		byID:           make(map[string]int),
		contacts:       make([]domain.Contact, 0),
		byDistribution: make(map[string][]int),
		byAgent:        make(map[string][]int),
		now:            time.Now,
	}
}

func (s *MemoryDistributionStore) CreateDistribution(
	_ context.Context,
	request CreateRequest,
) (domain.Distribution, error) {
	// contacts are built before taking the lock; nothing is visible until
	// the whole draft is appended below
	d, err := newDraft(request, s.now())
	if err != nil {
		failed := d.failed()
		s.mu.Lock()
		s.appendDistribution(failed)
		s.mu.Unlock()
		return failed, commitFailed(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendDistribution(d.distribution)
	for _, contact := range d.contacts {
		index := len(s.contacts)
		s.contacts = append(s.contacts, contact)
		s.byDistribution[contact.DistributionID] = append(s.byDistribution[contact.DistributionID], index)
		s.byAgent[contact.AgentID] = append(s.byAgent[contact.AgentID], index)
	}
	return d.distribution, nil
}

func (s *MemoryDistributionStore) GetDistribution(
	_ context.Context,
	distributionID string,
) (domain.Distribution, []domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	index, ok := s.byID[distributionID]
	if !ok {
		return domain.Distribution{}, nil, notFound(distributionID)
	}
	return s.distributions[index], s.collect(s.byDistribution[distributionID]), nil
}

func (s *MemoryDistributionStore) ListDistributions(_ context.Context) ([]domain.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Distribution(nil), s.distributions...), nil
}

func (s *MemoryDistributionStore) ListContactsByAgent(_ context.Context, agentID string) ([]domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(s.byAgent[agentID]), nil
}

func (s *MemoryDistributionStore) appendDistribution(distribution domain.Distribution) {
	s.byID[distribution.ID] = len(s.distributions)
	s.distributions = append(s.distributions, distribution)
}

func (s *MemoryDistributionStore) collect(indexes []int) []domain.Contact {
	contacts := make([]domain.Contact, 0, len(indexes))
	for _, index := range indexes {
		contacts = append(contacts, s.contacts[index])
	}
	return contacts
}
