package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS crawl_results (
	id             TEXT PRIMARY KEY,
	fingerprint    TEXT NOT NULL,
	payload        BLOB NOT NULL,
	decoded        INTEGER NOT NULL,
	total_pages    INTEGER NOT NULL DEFAULT 0,
	domain_count   INTEGER NOT NULL DEFAULT 0,
	failed_domains INTEGER NOT NULL DEFAULT 0,
	created_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crawl_results_fingerprint ON crawl_results(fingerprint);
CREATE TABLE IF NOT EXISTS crawl_result_domains (
	result_id     TEXT NOT NULL REFERENCES crawl_results(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	url           TEXT NOT NULL,
	status        TEXT NOT NULL,
	budget        TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	pages_crawled INTEGER NOT NULL DEFAULT 0,
	match_count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (result_id, position)
);`

// SQLiteStore keeps results in a local SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare database: %w", err)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO crawl_results (id, fingerprint, payload, decoded, total_pages, domain_count, failed_domains, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Fingerprint, rec.Payload, rec.Decoded,
		rec.TotalPages, rec.DomainCount, rec.FailedDomains, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}

	if len(rec.Domains) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO crawl_result_domains (result_id, position, url, status, budget, error, pages_crawled, match_count)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, d := range rec.Domains {
			if _, err := stmt.ExecContext(ctx, rec.ID.String(), d.Position, d.URL, d.Status, d.Budget, d.Error, d.PagesCrawled, d.MatchCount); err != nil {
				return fmt.Errorf("insert domain row: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec := &Record{ID: id}
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, payload, decoded, total_pages, domain_count, failed_domains, created_at
		 FROM crawl_results WHERE id = ?`, id.String(),
	).Scan(&rec.Fingerprint, &rec.Payload, &rec.Decoded, &rec.TotalPages, &rec.DomainCount, &rec.FailedDomains, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, url, status, budget, error, pages_crawled, match_count
		 FROM crawl_result_domains WHERE result_id = ? ORDER BY position`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d DomainRecord
		if err := rows.Scan(&d.Position, &d.URL, &d.Status, &d.Budget, &d.Error, &d.PagesCrawled, &d.MatchCount); err != nil {
			return nil, err
		}
		rec.Domains = append(rec.Domains, d)
	}
	return rec, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
