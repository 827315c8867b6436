// Package store owns the persistent license records in PostgreSQL.
//
// Two connection pools back every deployment: a read pool connected with a
// SELECT-only role, used by the verification path and the clock sources, and
// a write pool connected with the elevated role used by all mutating
// operations. The split mirrors the row-level access policy enforced by the
// database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"keygate/internal/config"
)

// ErrNotFound is returned when no license row matches the query.
var ErrNotFound = errors.New("license not found")

// DBTX is the common surface of *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Pools holds the two database handles.
type Pools struct {
	Read  *sql.DB
	Write *sql.DB
}

// Open connects both pools and verifies each with a ping.
func Open(ctx context.Context, cfg config.StoreConfig) (*Pools, error) {
	read, err := openPool(ctx, cfg.ReadDSN, cfg)
	if err != nil {
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	write, err := openPool(ctx, cfg.WriteDSN, cfg)
	if err != nil {
		read.Close()
		return nil, fmt.Errorf("open write pool: %w", err)
	}
	return &Pools{Read: read, Write: write}, nil
}

func openPool(ctx context.Context, dsn string, cfg config.StoreConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases both pools.
func (p *Pools) Close() error {
	var errs []error
	if err := p.Read.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.Write.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DateOnly truncates t to a calendar date in UTC. All expiration arithmetic
// operates on dates, never on instants.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
