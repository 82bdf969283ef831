package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iago/contact-distributor/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS distributions (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	total_contacts INTEGER NOT NULL,
	total_agents INTEGER NOT NULL,
	status TEXT NOT NULL,
	row_error_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS distribution_contacts (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
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

// SQLiteDistributionStore is the single-node durable store. One connection
// serializes writers, so readers never observe a half-written distribution.
type SQLiteDistributionStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteDistributionStore(path string) (*SQLiteDistributionStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return &SQLiteDistributionStore{db: db, now: time.Now}, nil
}

func (s *SQLiteDistributionStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteDistributionStore) CreateDistribution(
	ctx context.Context,
	request CreateRequest,
) (domain.Distribution, error) {
	d, err := newDraft(request, s.now())
	if err == nil {
		err = s.commit(ctx, d)
	}
	if err != nil {
		failed := d.failed()
		if insertErr := insertSQLiteDistribution(ctx, s.db, failed); insertErr != nil {
			return domain.Distribution{}, commitFailed(errors.Join(err, fmt.Errorf("record failed distribution: %w", insertErr)))
		}
		return failed, commitFailed(err)
	}
	return d.distribution, nil
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteDistributionStore) commit(ctx context.Context, d draft) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertSQLiteDistribution(ctx, tx, d.distribution); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO distribution_contacts (id, first_name, phone, notes, agent_id, agent_name, distribution_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare contact insert: %w", err)
	}
	defer stmt.Close()

	for _, contact := range d.contacts {
		if _, err := stmt.ExecContext(ctx,
			contact.ID,
			contact.FirstName,
			contact.Phone,
			contact.Notes,
			contact.AgentID,
			contact.AgentName,
			contact.DistributionID,
		); err != nil {
			return fmt.Errorf("insert contact: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit distribution: %w", err)
	}
	return nil
}

func insertSQLiteDistribution(ctx context.Context, db sqlExecer, distribution domain.Distribution) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO distributions (id, name, created_at, total_contacts, total_agents, status, row_error_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
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

func (s *SQLiteDistributionStore) GetDistribution(
	ctx context.Context,
	distributionID string,
) (domain.Distribution, []domain.Contact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, total_contacts, total_agents, status, row_error_count
		FROM distributions
		WHERE id = ?
	`, distributionID)
	distribution, err := scanSQLiteDistribution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Distribution{}, nil, notFound(distributionID)
		}
		return domain.Distribution{}, nil, fmt.Errorf("scan distribution: %w", err)
	}

	contacts, err := s.queryContacts(ctx, `
		SELECT id, first_name, phone, notes, agent_id, agent_name, distribution_id
		FROM distribution_contacts
		WHERE distribution_id = ?
		ORDER BY seq
	`, distributionID)
	if err != nil {
		return domain.Distribution{}, nil, err
	}
	return distribution, contacts, nil
}

func (s *SQLiteDistributionStore) ListDistributions(ctx context.Context) ([]domain.Distribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, total_contacts, total_agents, status, row_error_count
		FROM distributions
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	distributions := make([]domain.Distribution, 0)
	for rows.Next() {
		distribution, err := scanSQLiteDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		distributions = append(distributions, distribution)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distributions: %w", err)
	}
	return distributions, nil
}

func (s *SQLiteDistributionStore) ListContactsByAgent(ctx context.Context, agentID string) ([]domain.Contact, error) {
	return s.queryContacts(ctx, `
		SELECT id, first_name, phone, notes, agent_id, agent_name, distribution_id
		FROM distribution_contacts
		WHERE agent_id = ?
		ORDER BY seq
	`, agentID)
}

func (s *SQLiteDistributionStore) queryContacts(ctx context.Context, query string, arg string) ([]domain.Contact, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]domain.Contact, 0)
	for rows.Next() {
		var contact domain.Contact
		if err := rows.Scan(
			&contact.ID,
			&contact.FirstName,
			&contact.Phone,
			&contact.Notes,
			&contact.AgentID,
			&contact.AgentName,
			&contact.DistributionID,
		); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDistribution(row rowScanner) (domain.Distribution, error) {
	var (
		distribution domain.Distribution
		status       string
	)
	if err := row.Scan(
		&distribution.ID,
		&distribution.Name,
		&distribution.CreatedAt,
		&distribution.TotalContacts,
		&distribution.TotalAgents,
		&status,
		&distribution.RowErrorCount,
	); err != nil {
		return domain.Distribution{}, err
	}
	distribution.Status = domain.DistributionStatus(status)
	distribution.CreatedAt = distribution.CreatedAt.UTC()
	return distribution, nil
}
