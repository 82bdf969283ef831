package handlers

import (
	"net/http"
	"strings"
)

func (api *API) Agents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}

	agents, err := api.distributions.ListAgents(r.Context())
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// AgentContacts serves GET /v1/agents/{id}/contacts.
func (api *API) AgentContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, http.MethodGet)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/agents/")
	agentID, found := strings.CutSuffix(rest, "/contacts")
	agentID = strings.TrimSpace(agentID)
	if !found || agentID == "" || strings.Contains(agentID, "/") {
		writeError(w, r, http.StatusNotFound, "not_found", "route not found")
		return
	}

	contacts, err := api.distributions.ListContactsByAgent(r.Context(), agentID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": agentID,
		"contacts": contacts,
	})
}
