// Package service turns an identity or a provider URL into the danmu envelope
// returned by every HTTP route and the CLI.
package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/analytics"
	"github.com/example/danmu-platform/internal/platform/httpserver"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/store"
)

const (
	CodeOK       = 0
	CodeNotFound = 1
)

const (
	NameNoVideo   = "No video found"
	NameNoEpisode = "No episode found"
	NameNoDanmu   = "No danmu found"
)

// Response is the danmu envelope. Danum and Danmu both carry the comment count.
type Response struct {
	Code    int     `json:"code"`
	Name    string  `json:"name"`
	Danum   int     `json:"danum"`
	Danmu   int     `json:"danmu"`
	Danmuku [][]any `json:"danmuku"`
}

func miss(name string) Response {
	return Response{Code: CodeNotFound, Name: name, Danmuku: [][]any{}}
}

// Found reports whether the response carries comments.
func (r Response) Found() bool { return r.Code == CodeOK }

type Resolver interface {
	Resolve(ctx context.Context, id domain.Identity) domain.Mapping
}

type Comments interface {
	Fetch(ctx context.Context, url string) []domain.CommentEvent
}

type Publisher interface {
	Publish(subject, eventName, requestID string, props map[string]any)
}

// Store is the part of the persisted tier the service administers.
type Store interface {
	Get(ctx context.Context, catalogID string) (store.Video, error)
	Delete(ctx context.Context, catalogID string) error
	Count(ctx context.Context) (int, error)
}

// Invalidator drops memoized resolutions of a catalog id on this replica and
// tells the other replicas to do the same.
type Invalidator interface {
	Invalidate(catalogID string)
}

// Forgetter drops cached comment streams of episode pages.
type Forgetter interface {
	Forget(ctx context.Context, pageURLs ...string) error
}

// Broadcaster fans cache keys out to the other replicas.
type Broadcaster func(keys []string) error

// ErrMissingStore is returned by the admin operations when no persisted tier
// is configured.
var ErrMissingStore = errors.New("service: no persisted store configured")

type Service struct {
	resolver  Resolver
	comments  Comments
	store     Store
	events    Publisher
	broadcast Broadcaster
	keys      func(catalogID string) []string
	log       *zap.Logger
}

type Option func(*Service)

func WithStore(s Store) Option { return func(svc *Service) { svc.store = s } }

func WithPublisher(p Publisher) Option { return func(svc *Service) { svc.events = p } }

// WithBroadcast publishes the memo keys of purged catalog ids; keys maps a
// catalog id to those keys.
func WithBroadcast(b Broadcaster, keys func(catalogID string) []string) Option {
	return func(svc *Service) {
		svc.broadcast = b
		svc.keys = keys
	}
}

func WithLogger(log *zap.Logger) Option { return func(svc *Service) { svc.log = log } }

func New(resolver Resolver, comments Comments, opts ...Option) *Service {
	s := &Service{resolver: resolver, comments: comments}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// ByURL fetches the comments of a literal provider URL.
func (s *Service) ByURL(ctx context.Context, url string) Response {
	url = strings.TrimSpace(url)
	resp := s.fetch(ctx, url)
	s.served(ctx, "url", map[string]any{"url": url}, resp)
	return resp
}

// ByCatalogID resolves catalogID and fetches the comments of episode.
func (s *Service) ByCatalogID(ctx context.Context, catalogID string, vt domain.VideoType, episode string) Response {
	id := domain.Identity{CatalogID: strings.TrimSpace(catalogID), VideoType: vt}
	resp := s.byIdentity(ctx, id, episode)
	s.served(ctx, "catalog_id", map[string]any{"catalog_id": id.CatalogID, "episode": episode}, resp)
	return resp
}

// TitleQuery is a title-only lookup.
type TitleQuery struct {
	Title        string
	SeasonNumber string
	IsSeries     bool
	VideoType    domain.VideoType
	Episode      string
}

// ByTitle resolves a title-only identity and fetches the comments of q.Episode.
func (s *Service) ByTitle(ctx context.Context, q TitleQuery) Response {
	id := domain.Identity{
		Title:        strings.TrimSpace(q.Title),
		SeasonNumber: strings.TrimSpace(q.SeasonNumber),
		IsSeries:     q.IsSeries,
		VideoType:    q.VideoType,
	}
	resp := s.byIdentity(ctx, id, q.Episode)
	s.served(ctx, "title", map[string]any{"title": id.Title, "season_number": id.SeasonNumber, "episode": q.Episode}, resp)
	return resp
}

// Episode picks the URL serving episode from the resolution of id.
func (s *Service) Episode(ctx context.Context, id domain.Identity, episode string) (string, domain.Mapping, bool) {
	m := s.resolver.Resolve(ctx, id)
	if m.Empty() {
		return "", m, false
	}
	u, ok := m.Select(EpisodeNumber(episode))
	return u, m, ok
}

func (s *Service) byIdentity(ctx context.Context, id domain.Identity, episode string) Response {
	u, m, ok := s.Episode(ctx, id, episode)
	if m.Empty() {
		return miss(NameNoVideo)
	}
	if !ok {
		s.log.Debug("service: episode not in mapping",
			zap.String("episode", episode),
			zap.Strings("indexes", m.Indexes()),
		)
		return miss(NameNoEpisode)
	}
	return s.fetch(ctx, u)
}

func (s *Service) fetch(ctx context.Context, url string) Response {
	if url == "" {
		return miss(NameNoDanmu)
	}
	events := s.comments.Fetch(ctx, url)
	if len(events) == 0 {
		return miss(NameNoDanmu)
	}
	tuples := make([][]any, len(events))
	for i, e := range events {
		tuples[i] = e.Tuple()
	}
	return Response{Code: CodeOK, Name: url, Danum: len(tuples), Danmu: len(tuples), Danmuku: tuples}
}

func (s *Service) served(ctx context.Context, route string, props map[string]any, resp Response) {
	if s.events == nil {
		return
	}
	props["route"] = route
	props["code"] = resp.Code
	props["comments"] = resp.Danum
	s.events.Publish(analytics.SubjectDanmuServed, "danmu_served", httpserver.RequestIDFromContext(ctx), props)
}

// Stats returns the number of persisted videos.
func (s *Service) Stats(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, ErrMissingStore
	}
	return s.store.Count(ctx)
}

// Purge deletes the persisted table of catalogID and drops its memoized
// resolutions here and, through the broadcaster, on every other replica.
// The cached comments of its episode pages are dropped too. A missing table
// is reported with the store's not-found error after the memo has been cleared.
func (s *Service) Purge(ctx context.Context, catalogID string) error {
	if s.store == nil {
		return ErrMissingStore
	}
	if v, gerr := s.store.Get(ctx, catalogID); gerr == nil {
		s.forgetComments(ctx, catalogID, v.Links)
	}
	err := s.store.Delete(ctx, catalogID)
	if inv, ok := s.resolver.(Invalidator); ok {
		inv.Invalidate(catalogID)
	}
	if s.broadcast != nil && s.keys != nil {
		if berr := s.broadcast(s.keys(catalogID)); berr != nil {
			s.log.Warn("service: invalidation broadcast failed", zap.String("catalog_id", catalogID), zap.Error(berr))
		}
	}
	return err
}

func (s *Service) forgetComments(ctx context.Context, catalogID string, links domain.Mapping) {
	f, ok := s.comments.(Forgetter)
	if !ok || links.Empty() {
		return
	}
	var urls []string
	for _, idx := range links.Indexes() {
		urls = append(urls, links[idx]...)
	}
	if err := f.Forget(ctx, urls...); err != nil {
		s.log.Warn("service: dropping cached comments failed", zap.String("catalog_id", catalogID), zap.Error(err))
	}
}

// EpisodeNumber strips zero padding from numeric episode tokens; other tokens
// pass through trimmed.
func EpisodeNumber(raw string) string {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return strconv.Itoa(n)
	}
	return raw
}
