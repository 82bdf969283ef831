package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iago/contact-distributor/internal/domain"
	"github.com/oklog/ulid/v2"
)

const opStore = "store"

var (
	ErrNotFound = domain.ErrNotFound

	errInvalidAssignment = errors.New("invalid assignment")
)

// DistributionStore persists distributions and their contacts. Records are
// write-once: there is no update or delete.
type DistributionStore interface {
	// CreateDistribution stores the distribution and all of its contacts
	// atomically. On failure nothing from the attempt is visible except a
	// failed-status distribution with zero contacts, which is returned
	// alongside the error when it could be recorded.
	CreateDistribution(ctx context.Context, request CreateRequest) (domain.Distribution, error)
	GetDistribution(ctx context.Context, distributionID string) (domain.Distribution, []domain.Contact, error)
	// ListDistributions returns distributions in creation order.
	ListDistributions(ctx context.Context) ([]domain.Distribution, error)
	// ListContactsByAgent returns the agent's contacts across all
	// distributions in creation order.
	ListContactsByAgent(ctx context.Context, agentID string) ([]domain.Contact, error)
}

type CreateRequest struct {
	Name        string
	Assignments []domain.Assignment
	RowErrors   []domain.RowError
	// Agents is the roster snapshot the assignments were computed from.
	Agents []domain.AgentRef
}

// draft is a distribution and its contacts before they are stored.
type draft struct {
	distribution domain.Distribution
	contacts     []domain.Contact
}

func newDraft(request CreateRequest, now time.Time) (draft, error) {
	createdAt := now.UTC().Truncate(time.Microsecond)
	name := strings.TrimSpace(request.Name)
	if name == "" {
		name = domain.DefaultDistributionName(createdAt)
	}

	result := draft{
		distribution: domain.Distribution{
			ID:            uuid.NewString(),
			Name:          name,
			CreatedAt:     createdAt,
			TotalAgents:   len(request.Agents),
			Status:        domain.DistributionStatusCompleted,
			RowErrorCount: len(request.RowErrors),
		},
		contacts: make([]domain.Contact, 0, len(request.Assignments)),
	}

	for index, assignment := range request.Assignments {
		if strings.TrimSpace(assignment.Agent.ID) == "" {
			return result, fmt.Errorf("%w: contact %d has no agent", errInvalidAssignment, index)
		}
		result.contacts = append(result.contacts, domain.Contact{
			ID:             ulid.Make().String(),
			FirstName:      assignment.Candidate.FirstName,
			Phone:          assignment.Candidate.Phone,
			Notes:          assignment.Candidate.Notes,
			AgentID:        assignment.Agent.ID,
			AgentName:      assignment.Agent.Name,
			DistributionID: result.distribution.ID,
		})
	}
	result.distribution.TotalContacts = len(result.contacts)
	return result, nil
}

func (d draft) failed() domain.Distribution {
	failed := d.distribution
	failed.Status = domain.DistributionStatusFailed
	failed.TotalContacts = 0
	return failed
}

func notFound(distributionID string) error {
	return domain.NewError(domain.KindNotFound, opStore, fmt.Errorf("distribution %q not found", distributionID))
}

func commitFailed(err error) error {
	return domain.NewError(domain.KindInternal, opStore, err)
}
