package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS crawl_results (
	id             UUID PRIMARY KEY,
	fingerprint    TEXT NOT NULL,
	payload        BYTEA NOT NULL,
	decoded        BOOLEAN NOT NULL,
	total_pages    INTEGER NOT NULL DEFAULT 0,
	domain_count   INTEGER NOT NULL DEFAULT 0,
	failed_domains INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crawl_results_fingerprint ON crawl_results(fingerprint);
CREATE TABLE IF NOT EXISTS crawl_result_domains (
	result_id     UUID NOT NULL REFERENCES crawl_results(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	url           TEXT NOT NULL,
	status        TEXT NOT NULL,
	budget        TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	pages_crawled INTEGER NOT NULL DEFAULT 0,
	match_count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (result_id, position)
);`

// PostgresStore handles interactions with the PostgreSQL database.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Migrate creates the result tables if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Save stores the result and its domain rows within a single transaction.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO crawl_results (id, fingerprint, payload, decoded, total_pages, domain_count, failed_domains, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Fingerprint, rec.Payload, rec.Decoded,
		rec.TotalPages, rec.DomainCount, rec.FailedDomains, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if len(rec.Domains) > 0 {
		batch := &pgx.Batch{}
		for _, d := range rec.Domains {
			batch.Queue(`INSERT INTO crawl_result_domains (result_id, position, url, status, budget, error, pages_crawled, match_count)
			             VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				rec.ID, d.Position, d.URL, d.Status, d.Budget, d.Error, d.PagesCrawled, d.MatchCount)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert domain rows: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec := &Record{ID: id}
	err := s.db.QueryRow(ctx,
		`SELECT fingerprint, payload, decoded, total_pages, domain_count, failed_domains, created_at
		 FROM crawl_results WHERE id = $1`, id,
	).Scan(&rec.Fingerprint, &rec.Payload, &rec.Decoded, &rec.TotalPages, &rec.DomainCount, &rec.FailedDomains, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT position, url, status, budget, error, pages_crawled, match_count
		 FROM crawl_result_domains WHERE result_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	rec.Domains, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (DomainRecord, error) {
		var d DomainRecord
		err := row.Scan(&d.Position, &d.URL, &d.Status, &d.Budget, &d.Error, &d.PagesCrawled, &d.MatchCount)
		return d, err
	})
	return rec, err
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
