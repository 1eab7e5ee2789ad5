// Package sqlite persists snapshots in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/pagewatch/internal/snapshot"
)

const defaultTable = "pagewatch_snapshots"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Backend stores one row per URL.
type Backend struct {
	db    *sql.DB
	table string
}

// Open opens (creating if needed) the database at path and its snapshot table.
func Open(ctx context.Context, path, table string) (*Backend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	url TEXT PRIMARY KEY,
	markup TEXT NOT NULL
)`, table)
	if _, err := db.ExecContext(ctx, query); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return &Backend{db: db, table: table}, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Load reads every snapshot row.
func (b *Backend) Load(ctx context.Context) (map[string]string, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("SELECT url, markup FROM %s", b.table))
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
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", b.table)); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (url, markup) VALUES (?, ?)", b.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, url := range snapshot.SortedKeys(entries) {
		if _, err = stmt.ExecContext(ctx, url, entries[url]); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", url, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshots: %w", err)
	}
	return nil
}
