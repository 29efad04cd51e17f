// Package app assembles the danmu engine from configuration. The HTTP server
// and the operator CLI both build their engine here.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/analytics"
	"github.com/example/danmu-platform/internal/platform/auth"
	"github.com/example/danmu-platform/internal/platform/httpserver"
	"github.com/example/danmu-platform/internal/platform/memo"
	"github.com/example/danmu-platform/internal/platform/natsconn"
	"github.com/example/danmu-platform/internal/platform/retry"
	"github.com/example/danmu-platform/services/danmu/internal/cache"
	"github.com/example/danmu-platform/services/danmu/internal/comments"
	"github.com/example/danmu-platform/services/danmu/internal/config"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/handlers"
	"github.com/example/danmu-platform/services/danmu/internal/provider"
	"github.com/example/danmu-platform/services/danmu/internal/resolver"
	"github.com/example/danmu-platform/services/danmu/internal/service"
	"github.com/example/danmu-platform/services/danmu/internal/store"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/caiji"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/dmku"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/douban"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/httpx"
	"github.com/example/danmu-platform/services/danmu/internal/upstream/so360"
)

const (
	// Mirror payloads for long series run well past the default body cap.
	commentBodyLimit = 32 << 20
	scraperUserAgent = "danmu-platform/1.0"
)

type App struct {
	Config   config.Config
	Log      *zap.Logger
	Store    store.Store
	Resolver *resolver.Resolver
	Comments *comments.Aggregator
	Service  *service.Service
	NATS     *nats.Conn

	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// Options selects the optional infrastructure Build connects to.
type Options struct {
	// Messaging connects to NATS for memo invalidation and analytics.
	Messaging bool
	// SharedCache connects to Redis for the cross-replica comment tier.
	SharedCache bool
}

// Build wires the engine. Only the persisted store is mandatory; Redis and
// NATS failures are logged and the engine runs without them.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log}

	st, err := store.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	a.onClose("store", st.Close)

	bc := httpx.BreakerConfig{
		MaxRequests:      cfg.CBMaxRequests,
		Interval:         cfg.CBInterval,
		Timeout:          cfg.CBTimeout,
		FailureThreshold: cfg.CBFailureThreshold,
	}
	client := func(name string, timeout time.Duration, extra ...httpx.Option) *httpx.Client {
		return httpx.New(append([]httpx.Option{
			httpx.WithCircuitBreaker(httpx.NewBreaker(name, bc, log)),
			httpx.WithLogger(log.With(zap.String("upstream", name))),
			httpx.WithTimeout(timeout),
		}, extra...)...)
	}
	policy := retry.Policy{Attempts: cfg.RetryAttempts, Step: cfg.RetryStep}

	var scrapers map[provider.Platform]provider.Scraper
	if cfg.ScraperBaseURL != "" {
		scrapers = provider.RemoteSet(cfg.ScraperBaseURL, client("scrapers", cfg.CatalogTimeout,
			httpx.WithUserAgent(scraperUserAgent)))
	} else {
		log.Warn("SCRAPER_BASE_URL not set, provider adapters disabled")
	}
	adapters := provider.NewSet(scrapers, provider.WithRetryPolicy(policy), provider.WithLogger(log))

	catalog := douban.New(client("douban", cfg.CatalogTimeout), douban.Config{
		APIBase:  cfg.DoubanAPIBase,
		PageBase: cfg.DoubanPageBase,
		APIKey:   cfg.DoubanAPIKey,
		Timeout:  cfg.CatalogTimeout,
	}, douban.WithLogger(log), douban.WithRetryPolicy(policy))
	search := so360.New(client("so360", cfg.SearchTimeout), cfg.So360Base, cfg.SearchTimeout, log)
	aggregator := caiji.New(client("caiji", cfg.CatalogTimeout), cfg.CaijiBase, cfg.CatalogTimeout, log)
	fast := dmku.New(client("dmku", cfg.CatalogTimeout, httpx.WithMaxBody(commentBodyLimit)), cfg.DanmuMirrors, log)

	resolveMemo := memo.New[resolver.Result]("resolve", cfg.ResolveCacheSize, cfg.ResolveCacheTTL, log)
	commentMemo := memo.New[[]domain.CommentEvent]("comments", cfg.CommentCacheSize, cfg.CommentCacheTTL, log)

	var js nats.JetStreamContext
	if opts.Messaging && cfg.NATSURL != "" {
		js = a.connectNATS(resolveMemo)
	}
	events := analytics.New(js, log)

	a.Resolver = resolver.New(catalog, search, aggregator, adapters,
		resolver.WithStore(st),
		resolver.WithMemo(resolveMemo),
		resolver.WithPublisher(events),
		resolver.WithStaleAfter(cfg.StaleAfter),
		resolver.WithLogger(log),
	)

	commentOpts := []comments.Option{comments.WithMemo(commentMemo), comments.WithLogger(log)}
	if opts.SharedCache && cfg.RedisURL != "" {
		if shared := a.connectRedis(ctx); shared != nil {
			commentOpts = append(commentOpts, comments.WithSharedTier(shared))
		}
	}
	a.Comments = comments.New(fast, adapters, commentOpts...)

	svcOpts := []service.Option{service.WithStore(st), service.WithPublisher(events), service.WithLogger(log)}
	if a.NATS != nil {
		svcOpts = append(svcOpts, service.WithBroadcast(a.broadcast, resolver.CacheKeys))
	}
	a.Service = service.New(a.Resolver, a.Comments, svcOpts...)

	log.Info("danmu engine ready",
		zap.String("mode", string(cfg.Mode)),
		zap.Stringers("platforms", adapters.Platforms()),
		zap.Bool("nats", a.NATS != nil),
	)
	return a, nil
}

func (a *App) connectNATS(resolveMemo *memo.Cache[resolver.Result]) nats.JetStreamContext {
	nc, err := natsconn.Connect(natsconn.Options{URL: a.Config.NATSURL, Name: "danmu", Logger: a.Log})
	if err != nil {
		a.Log.Warn("nats unavailable, memo invalidation and analytics disabled", zap.Error(err))
		return nil
	}
	a.NATS = nc
	a.onClose("nats", func() error { nc.Close(); return nil })

	if _, err := resolveMemo.Subscribe(nc, a.Config.InvalidationSubject); err != nil {
		a.Log.Warn("memo invalidation subscribe failed", zap.String("subject", a.Config.InvalidationSubject), zap.Error(err))
	}
	js, err := natsconn.JetStream(nc)
	if err != nil {
		a.Log.Warn("jetstream unavailable, analytics disabled", zap.Error(err))
		return nil
	}
	return js
}

func (a *App) connectRedis(ctx context.Context) *cache.RedisCache {
	rc, err := cache.NewRedisCache(a.Config.RedisURL, a.Config.CommentSharedTTL)
	if err != nil {
		a.Log.Warn("redis url invalid, shared comment tier disabled", zap.Error(err))
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		a.Log.Warn("redis unavailable, shared comment tier disabled", zap.Error(err))
		_ = rc.Close()
		return nil
	}
	a.onClose("redis", rc.Close)
	return rc
}

// broadcast asks every replica to drop keys from its resolution memo.
func (a *App) broadcast(keys []string) error {
	var errs []error
	for _, k := range keys {
		if err := a.NATS.Publish(a.Config.InvalidationSubject, []byte(k)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Router mounts the danmu routes behind the shared middleware stack. The
// admin route is only served when a JWT secret is configured.
func (a *App) Router(corsOrigins string) chi.Router {
	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc:   a.Ready,
		Logger:      a.Log,
		CORSOrigins: corsOrigins,
	})

	var admin func(http.Handler) http.Handler
	if a.Config.JWTSecret != "" {
		admin = auth.RequireRole(auth.Verifier{Secret: []byte(a.Config.JWTSecret)}, auth.RoleAdmin)
	} else {
		a.Log.Warn("JWT_SECRET not set, admin routes disabled")
	}
	handlers.Mount(r, a.Service, admin, a.Log)
	return r
}

// Ready reports whether the persisted tier answers.
func (a *App) Ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := a.Store.Count(ctx)
	return err
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
