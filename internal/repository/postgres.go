package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS distributions (
	seq BIGINT GENERATED ALWAYS AS IDENTITY,
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	total_contacts INTEGER NOT NULL,
	total_agents INTEGER NOT NULL,
	status TEXT NOT NULL,
	row_error_count INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_distributions_seq ON distributions(seq);

CREATE TABLE IF NOT EXISTS distribution_contacts (
	seq BIGINT GENERATED ALWAYS AS IDENTITY,
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	phone TEXT NOT NULL,
	notes TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	distribution_id TEXT NOT NULL REFERENCES distributions(id)
);

CREATE INDEX IF NOT EXISTS idx_distribution_contacts_agent ON distribution_contacts(agent_id, seq);
CREATE INDEX IF NOT EXISTS idx_distribution_contacts_distribution ON distribution_contacts(distribution_id, seq);
`

var contactColumns = []string{"id", "first_name", "phone", "notes", "agent_id", "agent_name", "distribution_id"}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type PostgresDistributionStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresDistributionStore(ctx context.Context, databaseURL string) (*PostgresDistributionStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure pg schema: %w", err)
	}
	return &PostgresDistributionStore{pool: pool, now: time.Now}, nil
}

func (s *PostgresDistributionStore) Close() {
	s.pool.Close()
}

func (s *PostgresDistributionStore) CreateDistribution(
	ctx context.Context,
	request CreateRequest,
) (domain.Distribution, error) {
	d, err := newDraft(request, s.now())
	if err == nil {
		err = s.commit(ctx, d)
	}
	if err != nil {
		return s.recordFailure(ctx, d, err)
	}
	return d.distribution, nil
}

func (s *PostgresDistributionStore) commit(ctx context.Context, d draft) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertPostgresDistribution(ctx, tx, d.distribution); err != nil {
		return err
	}

	rows := make([][]any, 0, len(d.contacts))
	for _, contact := range d.contacts {
		rows = append(rows, []any{
			contact.ID,
			contact.FirstName,
			contact.Phone,
			contact.Notes,
			contact.AgentID,
			contact.AgentName,
			contact.DistributionID,
		})
	}
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"distribution_contacts"}, contactColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy contacts: %w", err)
	}
	if int(copied) != len(d.contacts) {
		return fmt.Errorf("copy contacts: wrote %d of %d rows", copied, len(d.contacts))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit distribution: %w", err)
	}
	return nil
}

func (s *PostgresDistributionStore) recordFailure(
	ctx context.Context,
	d draft,
	cause error,
) (domain.Distribution, error) {
	failed := d.failed()
	if err := insertPostgresDistribution(ctx, s.pool, failed); err != nil {
		return domain.Distribution{}, commitFailed(errors.Join(cause, fmt.Errorf("record failed distribution: %w", err)))
	}
	return failed, commitFailed(cause)
}

func insertPostgresDistribution(ctx context.Context, db execer, distribution domain.Distribution) error {
	_, err := db.Exec(ctx, `
		INSERT INTO distributions (
			id,
			name,
			created_at,
			total_contacts,
			total_agents,
			status,
			row_error_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		distribution.ID,
		distribution.Name,
		distribution.CreatedAt,
		distribution.TotalContacts,
		distribution.TotalAgents,
		string(distribution.Status),
		distribution.RowErrorCount,
	)
	if err != nil {
		return fmt.Errorf("insert distribution: %w", err)
	}
	return nil
}

func (s *PostgresDistributionStore) GetDistribution(
	ctx context.Context,
	distributionID string,
) (domain.Distribution, []domain.Contact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at, total_contacts, total_agents, status, row_error_count
		FROM distributions
		WHERE id = $1
	`, distributionID)
	if err != nil {
		return domain.Distribution{}, nil, fmt.Errorf("query distribution: %w", err)
	}
	distribution, err := pgx.CollectExactlyOneRow(rows, scanPostgresDistribution)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Distribution{}, nil, notFound(distributionID)
		}
		return domain.Distribution{}, nil, fmt.Errorf("scan distribution: %w", err)
	}

	contacts, err := s.queryContacts(ctx, `
		SELECT id, first_name, phone, notes, agent_id, agent_name, distribution_id
		FROM distribution_contacts
		WHERE distribution_id = $1
		ORDER BY seq
	`, distributionID)
	if err != nil {
		return domain.Distribution{}, nil, err
	}
	return distribution, contacts, nil
}

func (s *PostgresDistributionStore) ListDistributions(ctx context.Context) ([]domain.Distribution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at, total_contacts, total_agents, status, row_error_count
		FROM distributions
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	distributions, err := pgx.CollectRows(rows, scanPostgresDistribution)
	if err != nil {
		return nil, fmt.Errorf("scan distributions: %w", err)
	}
	return distributions, nil
}

func (s *PostgresDistributionStore) ListContactsByAgent(ctx context.Context, agentID string) ([]domain.Contact, error) {
	return s.queryContacts(ctx, `
		SELECT id, first_name, phone, notes, agent_id, agent_name, distribution_id
		FROM distribution_contacts
		WHERE agent_id = $1
		ORDER BY seq
	`, agentID)
}

func (s *PostgresDistributionStore) queryContacts(ctx context.Context, query string, arg string) ([]domain.Contact, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	contacts, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Contact])
	if err != nil {
		return nil, fmt.Errorf("scan contacts: %w", err)
	}
	return contacts, nil
}

func scanPostgresDistribution(row pgx.CollectableRow) (domain.Distribution, error) {
	var (
		distribution domain.Distribution
		status       string
	)
	err := row.Scan(
		&distribution.ID,
		&distribution.Name,
		&distribution.CreatedAt,
		&distribution.TotalContacts,
		&distribution.TotalAgents,
		&status,
		&distribution.RowErrorCount,
	)
	if err != nil {
		return domain.Distribution{}, err
	}
	distribution.Status = domain.DistributionStatus(status)
	distribution.CreatedAt = distribution.CreatedAt.UTC()
	return distribution, nil
}
