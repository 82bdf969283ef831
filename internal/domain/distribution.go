package domain

import "time"

type DistributionStatus string

const (
	DistributionStatusCompleted DistributionStatus = "completed"
	DistributionStatusFailed    DistributionStatus = "failed"
)

type RowErrorReason string

const (
	RowErrorMissingFirstName RowErrorReason = "missing_first_name"
	RowErrorInvalidPhone     RowErrorReason = "invalid_phone"
	RowErrorMalformedRow     RowErrorReason = "malformed_row"
	RowErrorEncoding         RowErrorReason = "encoding_error"
)

// ContactCandidate is a parsed row that has not been allocated yet.
// SourceRow is 1-based and excludes the header.
type ContactCandidate struct {
	FirstName string `json:"first_name"`
	Phone     string `json:"phone"`
	Notes     string `json:"notes"`
	SourceRow int    `json:"source_row"`
}

type RowError struct {
	SourceRow int            `json:"source_row"`
	Reason    RowErrorReason `json:"reason"`
}

// AgentRef is a read-only snapshot of a roster entry.
type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Assignment struct {
	Candidate ContactCandidate
	Agent     AgentRef
}

// Contact is an allocated candidate. It is never modified after the
// distribution that created it is stored.
type Contact struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	Phone          string `json:"phone"`
	Notes          string `json:"notes"`
	AgentID        string `json:"agent_id"`
	AgentName      string `json:"agent_name"`
	DistributionID string `json:"distribution_id"`
}

// Distribution is the immutable audit record of one upload.
type Distribution struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	CreatedAt     time.Time          `json:"created_at"`
	TotalContacts int                `json:"total_contacts"`
	TotalAgents   int                `json:"total_agents"`
	Status        DistributionStatus `json:"status"`
	RowErrorCount int                `json:"row_error_count"`
}

// DefaultDistributionName derives a name from the creation time.
func DefaultDistributionName(createdAt time.Time) string {
	return "Distribution " + createdAt.UTC().Format("2006-01-02 15:04:05")
}
