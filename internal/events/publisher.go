// Package events announces committed distributions to other systems.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
)

// DistributionEvent is emitted once per committed or failed distribution.
type DistributionEvent struct {
	DistributionID string                    `json:"distribution_id"`
	Name           string                    `json:"name"`
	Status         domain.DistributionStatus `json:"status"`
	TotalContacts  int                       `json:"total_contacts"`
	TotalAgents    int                       `json:"total_agents"`
	RowErrorCount  int                       `json:"row_error_count"`
	CreatedAt      time.Time                 `json:"created_at"`
}

func NewDistributionEvent(distribution domain.Distribution) DistributionEvent {
	return DistributionEvent{
		DistributionID: distribution.ID,
		Name:           distribution.Name,
		Status:         distribution.Status,
		TotalContacts:  distribution.TotalContacts,
		TotalAgents:    distribution.TotalAgents,
		RowErrorCount:  distribution.RowErrorCount,
		CreatedAt:      distribution.CreatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event DistributionEvent) error
}

// LogPublisher is the fallback when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event DistributionEvent) error {
	p.logger.InfoContext(ctx, "distribution event",
		"distribution_id", event.DistributionID,
		"status", event.Status,
		"total_contacts", event.TotalContacts,
		"total_agents", event.TotalAgents,
		"row_error_count", event.RowErrorCount,
	)
	return nil
}
