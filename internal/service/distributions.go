package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iago/contact-distributor/internal/allocation"
	"github.com/iago/contact-distributor/internal/domain"
	"github.com/iago/contact-distributor/internal/events"
	"github.com/iago/contact-distributor/internal/gate"
	"github.com/iago/contact-distributor/internal/ingest"
	"github.com/iago/contact-distributor/internal/repository"
	"github.com/iago/contact-distributor/internal/roster"
)

const (
	opParse  = "parse"
	opRoster = "roster"
	opQuery  = "query"

	defaultParseTimeout = 30 * time.Second
	defaultGateWait     = 15 * time.Second
)

// GatePolicy decides what a second concurrent upload does.
type GatePolicy string

const (
	GatePolicyReject GatePolicy = "reject"
	GatePolicyWait   GatePolicy = "wait"
)

func ParseGatePolicy(raw string) (GatePolicy, error) {
	switch GatePolicy(raw) {
	case "", GatePolicyReject:
		return GatePolicyReject, nil
	case GatePolicyWait:
		return GatePolicyWait, nil
	default:
		return "", fmt.Errorf("unknown gate policy %q", raw)
	}
}

type UploadParser interface {
	Parse(ctx context.Context, input ingest.Input) (ingest.Result, error)
}

type DistributionDependencies struct {
	Parser    UploadParser
	Roster    roster.Roster
	Store     repository.DistributionStore
	Gate      gate.Gate
	Publisher events.Publisher
	Logger    *slog.Logger

	ParseTimeout time.Duration
	GatePolicy   GatePolicy
	// GateWait bounds how long GatePolicyWait queues behind another upload.
	GateWait time.Duration
}

// DistributionService runs uploads end to end and answers queries. Parsing
// happens outside the gate; roster snapshot, allocation and the store write
// happen inside it.
type DistributionService struct {
	parser    UploadParser
	roster    roster.Roster
	store     repository.DistributionStore
	gate      gate.Gate
	publisher events.Publisher
	logger    *slog.Logger

	parseTimeout time.Duration
	gatePolicy   GatePolicy
	gateWait     time.Duration
}

func NewDistributionService(deps DistributionDependencies) *DistributionService {
	if deps.Parser == nil {
		deps.Parser = ingest.NewParser(ingest.DefaultMaxBytes)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gate == nil {
		deps.Gate = gate.NewLocalGate()
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewLogPublisher(deps.Logger)
	}
	if deps.ParseTimeout <= 0 {
		deps.ParseTimeout = defaultParseTimeout
	}
	if deps.GatePolicy == "" {
		deps.GatePolicy = GatePolicyReject
	}
	if deps.GateWait <= 0 {
		deps.GateWait = defaultGateWait
	}

	return &DistributionService{
		parser:       deps.Parser,
		roster:       deps.Roster,
		store:        deps.Store,
		gate:         deps.Gate,
		publisher:    deps.Publisher,
		logger:       deps.Logger,
		parseTimeout: deps.ParseTimeout,
		gatePolicy:   deps.GatePolicy,
		gateWait:     deps.GateWait,
	}
}

type UploadRequest struct {
	Data        []byte
	ContentType string
	Filename    string
	Name        string
}

// UploadResult is returned for every committed upload, including uploads
// whose rows all failed validation.
type UploadResult struct {
	Distribution domain.Distribution `json:"distribution"`
	RowErrors    []domain.RowError   `json:"row_errors"`
}

func (r UploadResult) Summary() string {
	rows := r.Distribution.TotalContacts + len(r.RowErrors)
	return fmt.Sprintf("distributed %d of %d contacts; %d rows skipped",
		r.Distribution.TotalContacts, rows, len(r.RowErrors))
}

func (s *DistributionService) SubmitUpload(ctx context.Context, request UploadRequest) (UploadResult, error) {
	started := time.Now()

	parsed, err := s.parse(ctx, request)
	if err != nil {
		s.logger.WarnContext(ctx, "upload rejected",
			"filename", request.Filename,
			"kind", domain.KindOf(err),
			"error", err,
		)
		return UploadResult{}, err
	}

	release, err := s.acquireGate(ctx)
	if err != nil {
		return UploadResult{}, err
	}
	defer release()

	// the commit runs to completion even if the caller goes away
	commitCtx := context.WithoutCancel(ctx)
	distribution, err := s.commit(commitCtx, request.Name, parsed)
	// the gate covers the write only; publishing happens after release
	release()
	if distribution.ID != "" {
		s.publish(commitCtx, distribution)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "upload commit failed",
			"distribution_id", distribution.ID,
			"kind", domain.KindOf(err),
			"error", err,
		)
		// a failed audit record, when one was written, is still returned
		return UploadResult{Distribution: distribution}, err
	}

	s.logger.InfoContext(ctx, "upload distributed",
		"distribution_id", distribution.ID,
		"rows", parsed.Rows(),
		"contacts", distribution.TotalContacts,
		"agents", distribution.TotalAgents,
		"row_errors", distribution.RowErrorCount,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	rowErrors := parsed.RowErrors
	if rowErrors == nil {
		rowErrors = make([]domain.RowError, 0)
	}
	return UploadResult{Distribution: distribution, RowErrors: rowErrors}, nil
}

func (s *DistributionService) parse(ctx context.Context, request UploadRequest) (ingest.Result, error) {
	parseCtx, cancel := context.WithTimeout(ctx, s.parseTimeout)
	defer cancel()

	type outcome struct {
		result ingest.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := s.parser.Parse(parseCtx, ingest.Input{
			Data:        request.Data,
			ContentType: request.ContentType,
			Filename:    request.Filename,
		})
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-parseCtx.Done():
		err := parseCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return ingest.Result{}, domain.NewError(domain.KindTimeout, opParse,
				fmt.Errorf("parse exceeded %s: %w", s.parseTimeout, err))
		}
		return ingest.Result{}, fmt.Errorf("parse upload: %w", err)
	}
}

func (s *DistributionService) acquireGate(ctx context.Context) (gate.Release, error) {
	if s.gatePolicy == GatePolicyWait {
		waitCtx, cancel := context.WithTimeout(ctx, s.gateWait)
		defer cancel()
		return s.gate.Acquire(waitCtx)
	}
	return s.gate.TryAcquire(ctx)
}

func (s *DistributionService) commit(
	ctx context.Context,
	name string,
	parsed ingest.Result,
) (domain.Distribution, error) {
	agents, err := s.roster.ListActiveAgents(ctx)
	if err != nil {
		return domain.Distribution{}, domain.NewError(domain.KindInternal, opRoster,
			fmt.Errorf("list active agents: %w", err))
	}

	assignments, err := allocation.Allocate(parsed.Candidates, agents)
	if err != nil {
		return domain.Distribution{}, err
	}
	s.logger.DebugContext(ctx, "contacts allocated", "per_agent", allocation.CountByAgent(assignments))

	return s.store.CreateDistribution(ctx, repository.CreateRequest{
		Name:        name,
		Assignments: assignments,
		RowErrors:   parsed.RowErrors,
		Agents:      agents,
	})
}

func (s *DistributionService) publish(ctx context.Context, distribution domain.Distribution) {
	if err := s.publisher.Publish(ctx, events.NewDistributionEvent(distribution)); err != nil {
		s.logger.WarnContext(ctx, "publish distribution event failed",
			"distribution_id", distribution.ID,
			"error", err,
		)
	}
}

func (s *DistributionService) ListDistributions(ctx context.Context) ([]domain.Distribution, error) {
	return s.store.ListDistributions(ctx)
}

func (s *DistributionService) GetDistribution(
	ctx context.Context,
	distributionID string,
) (domain.Distribution, []domain.Contact, error) {
	return s.store.GetDistribution(ctx, distributionID)
}

// ListContactsByAgent returns NotFound only for ids that are neither in the
// current roster nor owners of historical contacts.
func (s *DistributionService) ListContactsByAgent(ctx context.Context, agentID string) ([]domain.Contact, error) {
	contacts, err := s.store.ListContactsByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if len(contacts) > 0 {
		return contacts, nil
	}

	agents, err := s.roster.ListActiveAgents(ctx)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, opRoster, fmt.Errorf("list active agents: %w", err))
	}
	for _, agent := range agents {
		if agent.ID == agentID {
			return contacts, nil
		}
	}
	return nil, domain.NewError(domain.KindNotFound, opQuery, fmt.Errorf("agent %q not found", agentID))
}

func (s *DistributionService) ListAgents(ctx context.Context) ([]domain.AgentRef, error) {
	agents, err := s.roster.ListActiveAgents(ctx)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, opRoster, fmt.Errorf("list active agents: %w", err))
	}
	return agents, nil
}
