// Package resolver turns a loose video identity into per-episode page URLs.
//
// Strategies run in a fixed order and the first non-empty mapping wins:
//
//  1. the persisted table for the catalog id, while fresh
//  2. catalog vendor hints, expanded by the platform adapters
//  3. search engine deep links for the title, expanded the same way
//  4. play links embedded in the catalog subject page
//  5. catalog records reconciled with aggregator records
//  6. for titles alone, a catalog id found by title search, run through 2, 4 and 5
//  7. for titles alone, the aggregator's best title match
//
// Every failure degrades to the next strategy; exhausting them all yields an
// empty mapping, never an error.
package resolver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/analytics"
	"github.com/example/danmu-platform/internal/platform/fanout"
	"github.com/example/danmu-platform/internal/platform/httpserver"
	"github.com/example/danmu-platform/internal/platform/memo"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/matcher"
	"github.com/example/danmu-platform/services/danmu/internal/store"
	"github.com/example/danmu-platform/services/danmu/internal/urlnorm"
)

// DefaultStaleAfter is the age past which a persisted table is re-resolved.
const DefaultStaleAfter = 6 * time.Hour

// Strategy names the step that produced a mapping.
type Strategy string

const (
	StrategyNone            Strategy = ""
	StrategyPersisted       Strategy = "persisted"
	StrategyVendorHints     Strategy = "vendor_hints"
	StrategySearch          Strategy = "search"
	StrategyPageLinks       Strategy = "page_links"
	StrategyMatched         Strategy = "matched"
	StrategyAggregatorTitle Strategy = "aggregator_title"
)

// Catalog is the catalog service.
type Catalog interface {
	Subject(ctx context.Context, id string, vt domain.VideoType) (domain.Subject, error)
	SubjectLinks(ctx context.Context, id string) (domain.Mapping, error)
	FindByTitle(ctx context.Context, title, seasonNumber string) (string, error)
	Records(ctx context.Context, s domain.Subject) []domain.VideoRecord
}

// SearchEngine returns provider deep links for a title.
type SearchEngine interface {
	Search(ctx context.Context, title, seasonNumber string, isSeries bool) ([]string, error)
}

// Aggregator is the vod aggregator.
type Aggregator interface {
	Search(ctx context.Context, title string) ([]domain.VideoRecord, error)
	FindByTitle(ctx context.Context, title string, vt domain.VideoType) (domain.VideoRecord, bool, error)
}

// EpisodeLister expands a provider page into its episode pages.
type EpisodeLister interface {
	ListEpisodes(ctx context.Context, pageURL string) map[string]string
}

// Publisher receives resolution events.
type Publisher interface {
	Publish(subject, eventName, requestID string, props map[string]any)
}

type Resolver struct {
	catalog    Catalog
	search     SearchEngine
	aggregator Aggregator
	episodes   EpisodeLister
	store      store.Store
	memo       *memo.Cache[Result]
	events     Publisher
	now        func() time.Time
	staleAfter time.Duration
	log        *zap.Logger
}

type Option func(*Resolver)

func WithStore(s store.Store) Option { return func(r *Resolver) { r.store = s } }

func WithMemo(c *memo.Cache[Result]) Option { return func(r *Resolver) { r.memo = c } }

func WithPublisher(p Publisher) Option { return func(r *Resolver) { r.events = p } }

func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

func WithStaleAfter(d time.Duration) Option { return func(r *Resolver) { r.staleAfter = d } }

func WithLogger(log *zap.Logger) Option { return func(r *Resolver) { r.log = log } }

// New wires a resolver. Any collaborator may be nil, which disables the
// strategies that need it.
func New(catalog Catalog, search SearchEngine, aggregator Aggregator, episodes EpisodeLister, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:    catalog,
		search:     search,
		aggregator: aggregator,
		episodes:   episodes,
		now:        time.Now,
		staleAfter: DefaultStaleAfter,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CacheKey is the memo key of an identity. Catalog id identities are keyed
// by id and type alone so they can be invalidated by id.
func CacheKey(id domain.Identity) string {
	if id.HasCatalogID() {
		return catalogKey(id.CatalogID, id.VideoType)
	}
	return memo.Key("title", id.Title, id.SeasonNumber, id.IsSeries, id.VideoType)
}

// CacheKeys lists every memo key a catalog id can occupy.
func CacheKeys(catalogID string) []string {
	return []string{catalogKey(catalogID, domain.VideoTV), catalogKey(catalogID, domain.VideoMovie)}
}

func catalogKey(catalogID string, vt domain.VideoType) string {
	if vt == "" {
		vt = domain.VideoTV
	}
	return "id:" + catalogID + ":" + string(vt)
}

// Invalidate drops the memoized resolutions of catalogID.
func (r *Resolver) Invalidate(catalogID string) {
	if r.memo != nil {
		r.memo.Invalidate(CacheKeys(catalogID)...)
	}
}

// Result is a resolution and the strategy that produced it.
type Result struct {
	Mapping  domain.Mapping
	Strategy Strategy
}

// Resolve returns the episode index -> URLs mapping for id, empty when
// nothing could be found.
func (r *Resolver) Resolve(ctx context.Context, id domain.Identity) domain.Mapping {
	return r.Trace(ctx, id).Mapping
}

// Trace is Resolve that also reports which strategy answered. Memoized
// answers carry the strategy of the run that produced them.
//
// The resolution is detached from ctx cancellation: its result is shared
// with concurrent and later callers, so it runs to completion bounded only by
// the upstream timeouts. Request-scoped values such as the request id are kept.
func (r *Resolver) Trace(ctx context.Context, id domain.Identity) Result {
	if id.VideoType == "" {
		id.VideoType = domain.VideoTV
	}
	work := context.WithoutCancel(ctx)
	if r.memo == nil {
		return r.resolve(work, id)
	}
	res, _ := r.memo.Do(CacheKey(id), func() (Result, error) {
		return r.resolve(work, id), nil
	})
	if res.Mapping == nil {
		res.Mapping = domain.Mapping{}
	}
	return res
}

// run holds per-resolution state so the subject is fetched and the search
// engine queried at most once.
type run struct {
	id        domain.Identity
	catalogID string
	subject   *domain.Subject
	searched  bool
}

func (r *Resolver) resolve(ctx context.Context, id domain.Identity) Result {
	started := r.now()
	res := r.cascade(ctx, &run{id: id, catalogID: id.CatalogID})
	if res.Mapping == nil {
		res.Mapping = domain.Mapping{}
	}

	fields := []zap.Field{
		zap.String("catalog_id", id.CatalogID),
		zap.String("title", id.Title),
		zap.String("strategy", string(res.Strategy)),
		zap.Int("episodes", len(res.Mapping)),
		zap.Duration("took", r.now().Sub(started)),
	}
	if res.Mapping.Empty() {
		r.log.Info("resolver: nothing found", fields...)
		return res
	}
	r.log.Debug("resolver: resolved", fields...)
	if r.events != nil {
		r.events.Publish(analytics.SubjectDanmuResolved, "danmu_resolved", httpserver.RequestIDFromContext(ctx), map[string]any{
			"catalog_id": id.CatalogID,
			"title":      id.Title,
			"strategy":   string(res.Strategy),
			"episodes":   len(res.Mapping),
		})
	}
	return res
}

func (r *Resolver) cascade(ctx context.Context, st *run) Result {
	id := st.id
	if id.HasCatalogID() {
		if m, ok := r.persisted(ctx, id.CatalogID); ok {
			return Result{Mapping: m, Strategy: StrategyPersisted}
		}
		if res := r.catalogSteps(ctx, st, true); !res.Mapping.Empty() {
			return res
		}
		return Result{}
	}

	if !id.HasTitle() {
		return Result{}
	}
	if m := r.fromSearch(ctx, st); !m.Empty() {
		return Result{Mapping: m, Strategy: StrategySearch}
	}
	if r.catalog != nil {
		derived, err := r.catalog.FindByTitle(ctx, id.Title, id.SeasonNumber)
		if err != nil {
			r.log.Warn("resolver: catalog title search failed", zap.String("title", id.Title), zap.Error(err))
		}
		if derived != "" {
			r.log.Debug("resolver: title mapped to catalog id", zap.String("title", id.Title), zap.String("catalog_id", derived))
			st.catalogID = derived
			if res := r.catalogSteps(ctx, st, false); !res.Mapping.Empty() {
				return res
			}
		}
	}
	if m := r.fromAggregatorTitle(ctx, id); !m.Empty() {
		return Result{Mapping: m, Strategy: StrategyAggregatorTitle}
	}
	return Result{}
}

// catalogSteps runs the catalog id strategies for st.catalogID. The search
// engine slots in between when the identity also has a title. Successful
// results are persisted when persist is set.
func (r *Resolver) catalogSteps(ctx context.Context, st *run, persist bool) Result {
	steps := []struct {
		strategy Strategy
		fn       func() domain.Mapping
	}{
		{StrategyVendorHints, func() domain.Mapping { return r.fromVendorHints(ctx, st) }},
		{StrategySearch, func() domain.Mapping { return r.fromSearch(ctx, st) }},
		{StrategyPageLinks, func() domain.Mapping { return r.fromPageLinks(ctx, st.catalogID) }},
		{StrategyMatched, func() domain.Mapping { return r.fromMatched(ctx, st) }},
	}
	for _, s := range steps {
		m := s.fn()
		if m.Empty() {
			continue
		}
		if persist {
			r.persist(ctx, st, m)
		}
		return Result{Mapping: m, Strategy: s.strategy}
	}
	return Result{}
}

func (r *Resolver) persisted(ctx context.Context, catalogID string) (domain.Mapping, bool) {
	if r.store == nil {
		return nil, false
	}
	v, err := r.store.Get(ctx, catalogID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Warn("resolver: store lookup failed", zap.String("catalog_id", catalogID), zap.Error(err))
		}
		return nil, false
	}
	if !v.Fresh(r.now(), r.staleAfter) {
		r.log.Debug("resolver: persisted table is stale", zap.String("catalog_id", catalogID), zap.Time("updated_at", v.UpdatedAt))
		return nil, false
	}
	if v.Links.Empty() {
		return nil, false
	}
	return v.Links, true
}

func (r *Resolver) persist(ctx context.Context, st *run, m domain.Mapping) {
	if r.store == nil {
		return
	}
	name := ""
	if st.subject != nil {
		name = st.subject.Title
	}
	if _, err := r.store.Replace(ctx, st.catalogID, name, m, r.now()); err != nil {
		r.log.Warn("resolver: persist failed", zap.String("catalog_id", st.catalogID), zap.Error(err))
	}
}

// subjectFor fetches the catalog subject once per run.
func (r *Resolver) subjectFor(ctx context.Context, st *run) (domain.Subject, bool) {
	if st.subject != nil {
		return *st.subject, true
	}
	if r.catalog == nil {
		return domain.Subject{}, false
	}
	s, err := r.catalog.Subject(ctx, st.catalogID, st.id.VideoType)
	if err != nil {
		r.log.Warn("resolver: catalog subject unavailable", zap.String("catalog_id", st.catalogID), zap.Error(err))
		return domain.Subject{}, false
	}
	st.subject = &s
	return s, true
}

func (r *Resolver) fromVendorHints(ctx context.Context, st *run) domain.Mapping {
	s, ok := r.subjectFor(ctx, st)
	if !ok {
		return nil
	}
	return r.expand(ctx, urlnorm.ToHTTPAll(s.HintURLs()))
}

func (r *Resolver) fromSearch(ctx context.Context, st *run) domain.Mapping {
	id := st.id
	if r.search == nil || st.searched || !id.HasTitle() {
		return nil
	}
	st.searched = true
	links, err := r.search.Search(ctx, id.Title, id.SeasonNumber, id.IsSeries)
	if err != nil {
		r.log.Warn("resolver: search engine failed", zap.String("title", id.Title), zap.Error(err))
		return nil
	}
	return r.expand(ctx, urlnorm.ToHTTPAll(links))
}

// expand asks the adapters for the episodes behind each candidate page and
// keeps the first non-empty answer.
func (r *Resolver) expand(ctx context.Context, candidates []string) domain.Mapping {
	if r.episodes == nil {
		return nil
	}
	for _, u := range candidates {
		eps := r.episodes.ListEpisodes(ctx, u)
		if len(eps) == 0 {
			continue
		}
		m := domain.Mapping{}
		for idx, link := range eps {
			m.Add(idx, link)
		}
		if !m.Empty() {
			return m
		}
	}
	return nil
}

func (r *Resolver) fromPageLinks(ctx context.Context, catalogID string) domain.Mapping {
	if r.catalog == nil {
		return nil
	}
	m, err := r.catalog.SubjectLinks(ctx, catalogID)
	if err != nil {
		r.log.Warn("resolver: catalog page links failed", zap.String("catalog_id", catalogID), zap.Error(err))
		return nil
	}
	return m
}

func (r *Resolver) fromMatched(ctx context.Context, st *run) domain.Mapping {
	if r.aggregator == nil {
		return nil
	}
	s, ok := r.subjectFor(ctx, st)
	if !ok || s.Title == "" {
		return nil
	}
	sides := fanout.Join(ctx,
		func(ctx context.Context) ([]domain.VideoRecord, error) { return r.catalog.Records(ctx, s), nil },
		func(ctx context.Context) ([]domain.VideoRecord, error) { return r.aggregator.Search(ctx, s.Title) },
	)
	if sides[1].Err != nil {
		r.log.Warn("resolver: aggregator search failed", zap.String("title", s.Title), zap.Error(sides[1].Err))
	}
	matched := matcher.Match(sides[0].Value, sides[1].Value)
	if len(matched) == 0 {
		return nil
	}
	r.log.Debug("resolver: records matched", zap.Int("matches", len(matched)), zap.String("source", matched[0].Source))
	return domain.MappingFromEpisodes(matched[0].Episodes)
}

func (r *Resolver) fromAggregatorTitle(ctx context.Context, id domain.Identity) domain.Mapping {
	if r.aggregator == nil {
		return nil
	}
	rec, ok, err := r.aggregator.FindByTitle(ctx, id.Title, id.VideoType)
	if err != nil {
		r.log.Warn("resolver: aggregator title search failed", zap.String("title", id.Title), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return domain.MappingFromEpisodes(rec.Episodes)
}
