// Package catalog records which documents have a persisted index, so the
// CLI can list and clear them without scanning index files.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/sqldb"
)

// Entry is one persisted index.
type Entry struct {
	DocumentKey   string    `json:"documentKey"`
	SourcePath    string    `json:"sourcePath"`
	IndexFile     string    `json:"indexFile"`
	PageCount     int       `json:"pageCount"`
	TermCount     int       `json:"termCount"`
	FormatVersion string    `json:"formatVersion"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Catalog struct {
	client *sqldb.Client
	logger *slog.Logger
}

func New(client *sqldb.Client) *Catalog {
	return &Catalog{
		client: client,
		logger: slog.Default().With("component", "catalog"),
	}
}

// Migrate creates the schema if it does not exist. The DDL is portable
// between SQLite and PostgreSQL.
func (c *Catalog) Migrate(ctx context.Context) error {
	_, err := c.client.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS document_indices (
			document_key   TEXT PRIMARY KEY,
			source_path    TEXT NOT NULL DEFAULT '',
			index_file     TEXT NOT NULL DEFAULT '',
			page_count     INTEGER NOT NULL DEFAULT 0,
			term_count     INTEGER NOT NULL DEFAULT 0,
			format_version TEXT NOT NULL DEFAULT '',
			created_at     BIGINT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating document_indices: %w", err)
	}
	return nil
}

// Record inserts or replaces the entry for e.DocumentKey.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	query := c.client.Rebind(`
		INSERT INTO document_indices
			(document_key, source_path, index_file, page_count, term_count, format_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_key) DO UPDATE SET
			source_path = excluded.source_path,
			index_file = excluded.index_file,
			page_count = excluded.page_count,
			term_count = excluded.term_count,
			format_version = excluded.format_version,
			created_at = excluded.created_at`)
	_, err := c.client.DB.ExecContext(ctx, query,
		e.DocumentKey, e.SourcePath, e.IndexFile, e.PageCount, e.TermCount, e.FormatVersion, e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("recording index %s: %w", e.DocumentKey, err)
	}
	c.logger.Debug("index recorded", "doc_key", e.DocumentKey, "pages", e.PageCount)
	return nil
}

// Get returns the entry for documentKey and whether it exists.
func (c *Catalog) Get(ctx context.Context, documentKey string) (Entry, bool, error) {
	row := c.client.DB.QueryRowContext(ctx, c.client.Rebind(`
		SELECT document_key, source_path, index_file, page_count, term_count, format_version, created_at
		FROM document_indices WHERE document_key = ?`), documentKey)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading index %s: %w", documentKey, err)
	}
	return e, true, nil
}

// List returns every entry, newest first.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	rows, err := c.client.DB.QueryContext(ctx, `
		SELECT document_key, source_path, index_file, page_count, term_count, format_version, created_at
		FROM document_indices ORDER BY created_at DESC, document_key`)
	if err != nil {
		return nil, fmt.Errorf("listing indices: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning index row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes the entry for documentKey. Deleting a missing entry is not
// an error.
func (c *Catalog) Delete(ctx context.Context, documentKey string) error {
	if _, err := c.client.DB.ExecContext(ctx, c.client.Rebind(`DELETE FROM document_indices WHERE document_key = ?`), documentKey); err != nil {
		return fmt.Errorf("deleting index %s: %w", documentKey, err)
	}
	return nil
}

// DeleteAll removes every entry and returns how many were removed.
func (c *Catalog) DeleteAll(ctx context.Context) (int64, error) {
	res, err := c.client.DB.ExecContext(ctx, `DELETE FROM document_indices`)
	if err != nil {
		return 0, fmt.Errorf("clearing catalog: %w", err)
	}
	n, _ := res.RowsAffected()
	c.logger.Info("catalog cleared", "removed", n)
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var created int64
	if err := s.Scan(&e.DocumentKey, &e.SourcePath, &e.IndexFile, &e.PageCount, &e.TermCount, &e.FormatVersion, &created); err != nil {
		return Entry{}, err
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	return e, nil
}
