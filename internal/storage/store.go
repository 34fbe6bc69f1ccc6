package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no result has the requested id.
var ErrNotFound = errors.New("result not found")

// Record is one crawl result as it is persisted. Payload is kept verbatim;
// the summary columns are only filled when the payload could be decoded.
type Record struct {
	ID            uuid.UUID
	Fingerprint   string
	Payload       []byte
	Decoded       bool
	TotalPages    int
	DomainCount   int
	FailedDomains int
	CreatedAt     time.Time
	Domains       []DomainRecord
}

// DomainRecord is the per-domain summary row of a Record.
type DomainRecord struct {
	Position     int
	URL          string
	Status       string
	Budget       string
	Error        string
	PagesCrawled int
	MatchCount   int
}

// ResultStore persists crawl results.
type ResultStore interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	Close() error
}

const appName = "keyword-crawler"

// DefaultSQLitePath returns the results database location under the XDG data
// directory, creating parent directories as needed.
func DefaultSQLitePath() (string, error) {
	return xdg.DataFile(filepath.Join(appName, "results.db"))
}

// Open returns the store selected by driver.
func Open(ctx context.Context, driver, postgresURL, sqlitePath string) (ResultStore, error) {
	switch driver {
	case "postgres":
		s, err := NewPostgresStore(ctx, postgresURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case "sqlite", "":
		if sqlitePath == "" {
			p, err := DefaultSQLitePath()
			if err != nil {
				return nil, fmt.Errorf("resolve sqlite path: %w", err)
			}
			sqlitePath = p
		}
		return OpenSQLite(ctx, sqlitePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
