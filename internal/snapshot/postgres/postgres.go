// Package postgres persists snapshots in a Postgres table keyed by URL.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pagewatch/internal/snapshot"
)

const defaultTable = "pagewatch_snapshots"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for snapshot rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Backend stores one row per URL.
type Backend struct {
	pool  pool
	table string
}

// New connects to Postgres and makes sure the snapshot table exists.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b, err := NewWithPool(ctx, p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return b, nil
}

// NewWithPool constructs a backend from an existing pool (primarily for testing).
func NewWithPool(ctx context.Context, p pool, table string) (*Backend, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	b := &Backend{pool: p, table: table}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY,
	markup TEXT NOT NULL
)`, table)
	if _, err := p.Exec(ctx, query); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return b, nil
}

// Close releases the underlying pool resources.
func (b *Backend) Close() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.Close()
}

// Load reads every snapshot row.
func (b *Backend) Load(ctx context.Context) (map[string]string, error) {
	rows, err := b.pool.Query(ctx, fmt.Sprintf("SELECT url, markup FROM %s", b.table))
	if err != nil {
		return nil, fmt.Errorf("select snapshots: %w", err)
	}
	defer rows.Close()

	entries := map[string]string{}
	for rows.Next() {
		var url, markup string
		if err := rows.Scan(&url, &markup); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		entries[url] = markup
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return entries, nil
}

// Save replaces every row in a single transaction.
func (b *Backend) Save(ctx context.Context, entries map[string]string) (err error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", b.table)); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (url, markup) VALUES ($1, $2)", b.table)
	for _, url := range snapshot.SortedKeys(entries) {
		if _, err = tx.Exec(ctx, insert, url, entries[url]); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", url, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}
	return nil
}
