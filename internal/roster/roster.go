// Package roster supplies the set of agents that receive contacts.
package roster

import (
	"context"
	"fmt"
	"strings"

	"github.com/iago/contact-distributor/internal/domain"
)

// Roster lists the agents eligible for allocation, in a stable order.
type Roster interface {
	ListActiveAgents(ctx context.Context) ([]domain.AgentRef, error)
}

// StaticRoster serves a fixed list of agents.
type StaticRoster struct {
	agents []domain.AgentRef
}

func NewStaticRoster(agents []domain.AgentRef) (*StaticRoster, error) {
	if err := validate(agents); err != nil {
		return nil, err
	}
	return &StaticRoster{agents: cloneAgents(agents)}, nil
}

func (r *StaticRoster) ListActiveAgents(_ context.Context) ([]domain.AgentRef, error) {
	return cloneAgents(r.agents), nil
}

// ParseAgentList reads "id:name,id:name". A bare id uses the id as name.
func ParseAgentList(raw string) ([]domain.AgentRef, error) {
	agents := make([]domain.AgentRef, 0)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, name, found := strings.Cut(item, ":")
		id = strings.TrimSpace(id)
		name = strings.TrimSpace(name)
		if !found || name == "" {
			name = id
		}
		agents = append(agents, domain.AgentRef{ID: id, Name: name})
	}
	if err := validate(agents); err != nil {
		return nil, err
	}
	return agents, nil
}

func validate(agents []domain.AgentRef) error {
	seen := make(map[string]struct{}, len(agents))
	for index, agent := range agents {
		if strings.TrimSpace(agent.ID) == "" {
			return fmt.Errorf("agent %d has no id", index)
		}
		if _, exists := seen[agent.ID]; exists {
			return fmt.Errorf("duplicate agent id %q", agent.ID)
		}
		seen[agent.ID] = struct{}{}
	}
	return nil
}

func cloneAgents(agents []domain.AgentRef) []domain.AgentRef {
	clone := make([]domain.AgentRef, len(agents))
	copy(clone, agents)
	return clone
}
