// Package provider wraps the per-platform scrapers behind one dispatch table
// and a uniform retry policy. Scraper failures never cross this boundary: an
// exhausted call is reported as "no result".
package provider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/retry"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
)

// Scraper is a platform-specific collaborator.
type Scraper interface {
	// Episodes lists episode index -> page URL for the title behind pageURL.
	// An empty map means the page is not this platform's or has no episodes.
	Episodes(ctx context.Context, pageURL string) (map[string]string, error)
	// Comments fetches the raw comments of one episode page.
	Comments(ctx context.Context, pageURL string) ([]RawComment, error)
}

type Set struct {
	scrapers map[Platform]Scraper
	policy   retry.Policy
	log      *zap.Logger
}

type Option func(*Set)

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Set) { s.policy = p }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Set) { s.log = log }
}

func NewSet(scrapers map[Platform]Scraper, opts ...Option) *Set {
	s := &Set{
		scrapers: make(map[Platform]Scraper, len(scrapers)),
		policy:   retry.Default,
		log:      zap.NewNop(),
	}
	for p, sc := range scrapers {
		if sc != nil {
			s.scrapers[p] = sc
		}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ListEpisodes asks each platform in EpisodeOrder for the episodes behind
// pageURL and returns the first non-empty answer. Answers are never merged.
func (s *Set) ListEpisodes(ctx context.Context, pageURL string) map[string]string {
	for _, p := range EpisodeOrder {
		sc, ok := s.scrapers[p]
		if !ok {
			continue
		}
		eps, err := retry.Do(ctx, s.policy, func(ctx context.Context) (map[string]string, error) {
			return guard(p, func() (map[string]string, error) { return sc.Episodes(ctx, pageURL) })
		})
		if err != nil {
			s.log.Debug("provider: episodes unavailable", zap.Stringer("platform", p), zap.String("url", pageURL), zap.Error(err))
			continue
		}
		if len(eps) > 0 {
			s.log.Debug("provider: episodes found", zap.Stringer("platform", p), zap.Int("episodes", len(eps)))
			return eps
		}
	}
	return nil
}

// Comments fetches and normalizes the comments of pageURL from the platform
// that hosts it. Unknown hosts and exhausted retries yield nil.
func (s *Set) Comments(ctx context.Context, pageURL string) []domain.CommentEvent {
	p, ok := PlatformForURL(pageURL)
	if !ok {
		s.log.Debug("provider: no platform for url", zap.String("url", pageURL))
		return nil
	}
	sc, ok := s.scrapers[p]
	if !ok {
		return nil
	}
	raws, err := retry.Do(ctx, s.policy, func(ctx context.Context) ([]RawComment, error) {
		return guard(p, func() ([]RawComment, error) { return sc.Comments(ctx, pageURL) })
	})
	if err != nil {
		s.log.Warn("provider: comments unavailable", zap.Stringer("platform", p), zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	return NormalizeAll(raws)
}

// Platforms lists the configured platforms in EpisodeOrder.
func (s *Set) Platforms() []Platform {
	var out []Platform
	for _, p := range EpisodeOrder {
		if _, ok := s.scrapers[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// guard turns a scraper panic into an error so it is retried like any failure.
func guard[T any](p Platform, fn func() (T, error)) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s scraper panicked: %v", p, rec)
		}
	}()
	return fn()
}
