package events

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamEvent(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	event, err := ParseStreamEvent(redis.XMessage{
		ID: "1-0",
		Values: map[string]any{
			"distribution_id": "d-1",
			"name":            "March leads",
			"status":          "completed",
			"total_contacts":  "7",
			"total_agents":    "3",
			"row_error_count": "1",
			"created_at":      createdAt.Format(time.RFC3339Nano),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, DistributionEvent{
		DistributionID: "d-1",
		Name:           "March leads",
		Status:         domain.DistributionStatusCompleted,
		TotalContacts:  7,
		TotalAgents:    3,
		RowErrorCount:  1,
		CreatedAt:      createdAt,
	}, event)
}

func TestParseStreamEventRejectsBrokenEntries(t *testing.T) {
	_, err := ParseStreamEvent(redis.XMessage{Values: map[string]any{"distribution_id": "d-1"}})
	assert.ErrorContains(t, err, "missing field name")

	_, err = ParseStreamEvent(redis.XMessage{Values: map[string]any{
		"distribution_id": "d-1",
		"name":            "x",
		"status":          "completed",
		"total_contacts":  "many",
	}})
	assert.ErrorContains(t, err, "invalid total_contacts")
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	publisher := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)))

	err := publisher.Publish(context.Background(), NewDistributionEvent(domain.Distribution{
		ID:            "d-9",
		Status:        domain.DistributionStatusFailed,
		TotalAgents:   2,
		RowErrorCount: 4,
	}))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "distribution_id=d-9")
	assert.Contains(t, buf.String(), "status=failed")
}

func TestNewStreamsPublisherRequiresClient(t *testing.T) {
	_, err := NewStreamsPublisher(nil, StreamsConfig{})
	assert.Error(t, err)
}
