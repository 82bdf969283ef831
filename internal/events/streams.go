package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
	"github.com/redis/go-redis/v9"
)

type StreamsConfig struct {
	Stream string
	// MaxLen caps the stream length approximately; zero keeps everything.
	MaxLen int64
}

// StreamsPublisher appends distribution events to a Redis stream.
type StreamsPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewStreamsPublisher(client redis.UniversalClient, cfg StreamsConfig) (*StreamsPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Stream == "" {
		cfg.Stream = "distribution_events"
	}
	return &StreamsPublisher{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

func (p *StreamsPublisher) Publish(ctx context.Context, event DistributionEvent) error {
	if _, err := p.client.XAdd(ctx, p.xaddArgs(event)).Result(); err != nil {
		return fmt.Errorf("publish to stream: %w", err)
	}
	return nil
}

// PublishBatch writes events in one pipelined round trip.
func (p *StreamsPublisher) PublishBatch(ctx context.Context, batch []DistributionEvent) error {
	pipe := p.client.Pipeline()
	for _, event := range batch {
		pipe.XAdd(ctx, p.xaddArgs(event))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish batch to stream: %w", err)
	}
	return nil
}

func (p *StreamsPublisher) xaddArgs(event DistributionEvent) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"distribution_id": event.DistributionID,
			"name":            event.Name,
			"status":          string(event.Status),
			"total_contacts":  event.TotalContacts,
			"total_agents":    event.TotalAgents,
			"row_error_count": event.RowErrorCount,
			"created_at":      event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	return args
}

// ParseStreamEvent decodes an entry written by Publish.
func ParseStreamEvent(item redis.XMessage) (DistributionEvent, error) {
	getString := func(key string) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}
	getInt := func(key string) (int, error) {
		raw, err := getString(key)
		if err != nil {
			return 0, err
		}
		value, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return value, nil
	}

	var (
		event DistributionEvent
		err   error
	)
	if event.DistributionID, err = getString("distribution_id"); err != nil {
		return DistributionEvent{}, err
	}
	if event.Name, err = getString("name"); err != nil {
		return DistributionEvent{}, err
	}
	status, err := getString("status")
	if err != nil {
		return DistributionEvent{}, err
	}
	event.Status = domain.DistributionStatus(status)
	if event.TotalContacts, err = getInt("total_contacts"); err != nil {
		return DistributionEvent{}, err
	}
	if event.TotalAgents, err = getInt("total_agents"); err != nil {
		return DistributionEvent{}, err
	}
	if event.RowErrorCount, err = getInt("row_error_count"); err != nil {
		return DistributionEvent{}, err
	}
	createdAt, err := getString("created_at")
	if err != nil {
		return DistributionEvent{}, err
	}
	if event.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return DistributionEvent{}, fmt.Errorf("invalid created_at: %w", err)
	}
	return event, nil
}
