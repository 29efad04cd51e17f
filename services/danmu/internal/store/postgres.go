package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/danmu-platform/services/danmu/internal/domain"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS video (
		id         BIGSERIAL PRIMARY KEY,
		douban_id  TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS playlink (
		id       BIGSERIAL PRIMARY KEY,
		video_id BIGINT NOT NULL REFERENCES video (id) ON DELETE CASCADE,
		episode  TEXT NOT NULL,
		link     TEXT NOT NULL,
		UNIQUE (video_id, episode)
	)`,
}

// Postgres persists videos in Postgres.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the tables when they do not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, catalogID string) (Video, error) {
	const q = `SELECT id, name, created_at, updated_at FROM video WHERE douban_id = $1`
	var id int64
	v := Video{CatalogID: catalogID}
	err := s.pool.QueryRow(ctx, q, catalogID).Scan(&id, &v.Name, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, err
	}

	rows, err := s.pool.Query(ctx, `SELECT episode, link FROM playlink WHERE video_id = $1 ORDER BY id`, id)
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

func (s *Postgres) Replace(ctx context.Context, catalogID, name string, links domain.Mapping, now time.Time) (Video, error) {
	if name == "" {
		name = DefaultName(catalogID)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Video{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsert = `INSERT INTO video (douban_id, name, created_at, updated_at)
	                VALUES ($1, $2, $3, $3)
	                ON CONFLICT (douban_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
	                RETURNING id, name, created_at, updated_at`
	var id int64
	v := Video{CatalogID: catalogID}
	if err := tx.QueryRow(ctx, upsert, catalogID, name, now.UTC()).Scan(&id, &v.Name, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return Video{}, fmt.Errorf("store: upsert video %s: %w", catalogID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM playlink WHERE video_id = $1`, id); err != nil {
		return Video{}, fmt.Errorf("store: clear links %s: %w", catalogID, err)
	}

	first := firstLinks(links)
	b := &pgx.Batch{}
	for ep, link := range first {
		b.Queue(`INSERT INTO playlink (video_id, episode, link) VALUES ($1, $2, $3)`, id, ep, link)
	}
	if b.Len() > 0 {
		br := tx.SendBatch(ctx, b)
		for i, n := 0, b.Len(); i < n; i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return Video{}, fmt.Errorf("store: insert links %s: %w", catalogID, err)
			}
		}
		if err := br.Close(); err != nil {
			return Video{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Video{}, err
	}
	v.Links = toMapping(first)
	return v, nil
}

func (s *Postgres) Delete(ctx context.Context, catalogID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM video WHERE douban_id = $1`, catalogID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM video`).Scan(&n)
	return n, err
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}
