package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/danmu-platform/services/danmu/internal/domain"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS video (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		douban_id  TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS playlink (
		id       INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id INTEGER NOT NULL REFERENCES video (id) ON DELETE CASCADE,
		episode  TEXT NOT NULL,
		link     TEXT NOT NULL,
		UNIQUE (video_id, episode)
	)`,
}

// SQLite persists videos in a local SQLite file.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "sqlite://"), "file:")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: migrate: %w", err)
		}
	}
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Get(ctx context.Context, catalogID string) (Video, error) {
	var (
		id               int64
		created, updated string
	)
	v := Video{CatalogID: catalogID}
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at, updated_at FROM video WHERE douban_id = ?`, catalogID).
		Scan(&id, &v.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, err
	}
	if v.CreatedAt, err = parseTime(created); err != nil {
		return Video{}, err
	}
	if v.UpdatedAt, err = parseTime(updated); err != nil {
		return Video{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT episode, link FROM playlink WHERE video_id = ? ORDER BY id`, id)
	if err != nil {
		return Video{}, err
	}
	defer rows.Close()

	links := map[string]string{}
	for rows.Next() {
		var ep, link string
		if err := rows.Scan(&ep, &link); err != nil {
			return Video{}, err
		}
		links[ep] = link
	}
	if err := rows.Err(); err != nil {
		return Video{}, err
	}
	v.Links = toMapping(links)
	return v, nil
}

func (s *SQLite) Replace(ctx context.Context, catalogID, name string, links domain.Mapping, now time.Time) (Video, error) {
	if name == "" {
		name = DefaultName(catalogID)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Video{}, err
	}
	defer func() { _ = tx.Rollback() }()

	stamp := now.UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO video (douban_id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (douban_id) DO UPDATE SET updated_at = excluded.updated_at`,
		catalogID, name, stamp, stamp); err != nil {
		return Video{}, fmt.Errorf("store: upsert video %s: %w", catalogID, err)
	}

	var (
		id      int64
		created string
	)
	v := Video{CatalogID: catalogID, UpdatedAt: now.UTC()}
	if err := tx.QueryRowContext(ctx, `SELECT id, name, created_at FROM video WHERE douban_id = ?`, catalogID).
		Scan(&id, &v.Name, &created); err != nil {
		return Video{}, err
	}
	if v.CreatedAt, err = parseTime(created); err != nil {
		return Video{}, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM playlink WHERE video_id = ?`, id); err != nil {
		return Video{}, fmt.Errorf("store: clear links %s: %w", catalogID, err)
	}
	first := firstLinks(links)
	for ep, link := range first {
		if _, err := tx.ExecContext(ctx, `INSERT INTO playlink (video_id, episode, link) VALUES (?, ?, ?)`, id, ep, link); err != nil {
			return Video{}, fmt.Errorf("store: insert links %s: %w", catalogID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Video{}, err
	}
	v.Links = toMapping(first)
	return v, nil
}

func (s *SQLite) Delete(ctx context.Context, catalogID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM video WHERE douban_id = ?`, catalogID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM video`).Scan(&n)
	return n, err
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse timestamp %q: %w", s, err)
	}
	return t, nil
}
