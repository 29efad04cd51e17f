// Package comments fetches the comment stream of an episode page: a fast
// path over public mirrors first, then the platform adapter. Results are
// sorted and deduplicated regardless of where they came from.
package comments

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/memo"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
)

// Source fetches comments for an episode page, returning nil when it has none.
type Source interface {
	Comments(ctx context.Context, pageURL string) []domain.CommentEvent
}

// SharedTier is a cache shared across replicas.
type SharedTier interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

type Aggregator struct {
	fast     Source
	adapters Source
	memo     *memo.Cache[[]domain.CommentEvent]
	shared   SharedTier
	log      *zap.Logger
}

type Option func(*Aggregator)

// WithMemo memoizes fetches in process.
func WithMemo(c *memo.Cache[[]domain.CommentEvent]) Option {
	return func(a *Aggregator) { a.memo = c }
}

// WithSharedTier consults t after the memo and before any upstream call.
func WithSharedTier(t SharedTier) Option {
	return func(a *Aggregator) { a.shared = t }
}

func WithLogger(log *zap.Logger) Option {
	return func(a *Aggregator) { a.log = log }
}

// New builds an aggregator; fast may be nil to go straight to the adapters.
func New(fast, adapters Source, opts ...Option) *Aggregator {
	a := &Aggregator{fast: fast, adapters: adapters, log: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Fetch returns the sorted, deduplicated comments of pageURL. It never fails:
// an unavailable upstream yields an empty result. The fetch ignores ctx
// cancellation since its result is memoized for every caller; upstream
// timeouts bound it.
func (a *Aggregator) Fetch(ctx context.Context, pageURL string) []domain.CommentEvent {
	work := context.WithoutCancel(ctx)
	if a.memo == nil {
		return a.fetch(work, pageURL)
	}
	out, _ := a.memo.Do(memo.Key("comments", pageURL), func() ([]domain.CommentEvent, error) {
		return a.fetch(work, pageURL), nil
	})
	return out
}

// Forget drops the cached comments of pageURLs from the memo and the shared
// tier.
func (a *Aggregator) Forget(ctx context.Context, pageURLs ...string) error {
	if len(pageURLs) == 0 {
		return nil
	}
	memoKeys := make([]string, len(pageURLs))
	sharedKeys := make([]string, len(pageURLs))
	for i, u := range pageURLs {
		memoKeys[i] = memo.Key("comments", u)
		sharedKeys[i] = sharedKey(u)
	}
	if a.memo != nil {
		a.memo.Invalidate(memoKeys...)
	}
	if a.shared == nil {
		return nil
	}
	return a.shared.Delete(ctx, sharedKeys...)
}

func sharedKey(pageURL string) string { return "comments:" + pageURL }

func (a *Aggregator) fetch(ctx context.Context, pageURL string) []domain.CommentEvent {
	key := sharedKey(pageURL)
	if a.shared != nil {
		var cached []domain.CommentEvent
		ok, err := a.shared.Get(ctx, key, &cached)
		if err != nil {
			a.log.Warn("comments: shared tier get failed", zap.Error(err))
		} else if ok {
			return cached
		}
	}

	var events []domain.CommentEvent
	if a.fast != nil {
		events = a.fast.Comments(ctx, pageURL)
	}
	if len(events) == 0 && a.adapters != nil {
		a.log.Debug("comments: fast path empty, dispatching to adapter", zap.String("url", pageURL))
		events = a.adapters.Comments(ctx, pageURL)
	}
	events = Dedup(events)

	if a.shared != nil && len(events) > 0 {
		if err := a.shared.Set(ctx, key, events); err != nil {
			a.log.Warn("comments: shared tier set failed", zap.Error(err))
		}
	}
	return events
}
