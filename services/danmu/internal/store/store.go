// Package store persists resolved episode tables per catalog id. Entries are
// replaced wholesale, never merged.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/db"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
)

var ErrNotFound = errors.New("store: video not found")

// Video is a persisted resolution: one link per episode.
type Video struct {
	CatalogID string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Links     domain.Mapping
}

// Fresh reports whether v was updated no more than staleAfter before now.
func (v Video) Fresh(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(v.UpdatedAt) <= staleAfter
}

// DefaultName is the display name of a video persisted without a title.
func DefaultName(catalogID string) string {
	return "豆瓣_" + catalogID
}

// Store defines the contract for the persisted resolution tier.
type Store interface {
	Get(ctx context.Context, catalogID string) (Video, error)
	// Replace creates the entry or drops its links, then stores the first
	// URL of every episode in links and stamps UpdatedAt with now. An
	// existing entry keeps its name and CreatedAt.
	Replace(ctx context.Context, catalogID, name string, links domain.Mapping, now time.Time) (Video, error)
	Delete(ctx context.Context, catalogID string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open selects a backend from dsn: empty keeps everything in memory, a
// postgres URL uses Postgres, anything else is a SQLite file path.
func Open(ctx context.Context, dsn string, log *zap.Logger) (Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		log.Info("store: using in-memory backend")
		return NewMemory(), nil
	case db.IsPostgresDSN(dsn):
		pool, err := db.Open(ctx, dsn, db.PoolOptions{})
		if err != nil {
			return nil, err
		}
		s := NewPostgres(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("store: using postgres backend")
		return s, nil
	default:
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		log.Info("store: using sqlite backend", zap.String("path", s.path))
		return s, nil
	}
}

// firstLinks keeps the first non-empty URL of every episode.
func firstLinks(links domain.Mapping) map[string]string {
	out := make(map[string]string, len(links))
	for ep, urls := range links {
		for _, u := range urls {
			if ep != "" && u != "" {
				out[ep] = u
				break
			}
		}
	}
	return out
}

func toMapping(links map[string]string) domain.Mapping {
	m := domain.Mapping{}
	for ep, u := range links {
		m.Add(ep, u)
	}
	return m
}
