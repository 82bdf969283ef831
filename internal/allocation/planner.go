// Package allocation assigns parsed contacts to agents.
package allocation

import (
	"fmt"

	"github.com/iago/contact-distributor/internal/domain"
)

const opAllocate = "allocate"

// Allocate assigns the i-th candidate to agents[i mod len(agents)].
//
// Agents are used in the order given; duplicate agent ids are a caller error
// and skew the counts. Zero candidates with zero agents is a valid, empty
// allocation.
func Allocate(candidates []domain.ContactCandidate, agents []domain.AgentRef) ([]domain.Assignment, error) {
	assignments := make([]domain.Assignment, 0, len(candidates))
	if len(candidates) == 0 {
		return assignments, nil
	}
	if len(agents) == 0 {
		return nil, domain.NewError(domain.KindNoAgents, opAllocate,
			fmt.Errorf("%d contacts but no active agents", len(candidates)))
	}

	for index, candidate := range candidates {
		assignments = append(assignments, domain.Assignment{
			Candidate: candidate,
			Agent:     agents[index%len(agents)],
		})
	}
	return assignments, nil
}

// CountByAgent tallies assignments per agent id.
func CountByAgent(assignments []domain.Assignment) map[string]int {
	counts := make(map[string]int)
	for _, assignment := range assignments {
		counts[assignment.Agent.ID]++
	}
	return counts
}
