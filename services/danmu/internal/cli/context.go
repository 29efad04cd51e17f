// Package cli implements danmuctl, which drives the danmu engine in-process.
package cli

import (
	"context"
	"errors"
	"fmt"

	platformconfig "github.com/example/danmu-platform/internal/platform/config"
	"github.com/example/danmu-platform/internal/platform/logging"
	"github.com/example/danmu-platform/services/danmu/internal/app"
	"github.com/example/danmu-platform/services/danmu/internal/config"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/resolver"
	"github.com/example/danmu-platform/services/danmu/internal/service"
)

// Engine is what the commands need from the wired application.
type Engine interface {
	ByURL(ctx context.Context, url string) service.Response
	ByCatalogID(ctx context.Context, catalogID string, vt domain.VideoType, episode string) service.Response
	ByTitle(ctx context.Context, q service.TitleQuery) service.Response
	Episode(ctx context.Context, id domain.Identity, episode string) (string, domain.Mapping, bool)
	Stats(ctx context.Context) (int, error)
	Purge(ctx context.Context, catalogID string) error
	Trace(ctx context.Context, id domain.Identity) resolver.Result
}

// Opener builds an Engine from a config file path (empty uses DANMU_CONFIG)
// and a log level. The returned func releases it.
type Opener func(ctx context.Context, configPath, logLevel string) (Engine, func() error, error)

type engine struct {
	*service.Service
	*resolver.Resolver
}

// OpenApp builds the full application the way the server does.
func OpenApp(ctx context.Context, configPath, logLevel string) (Engine, func() error, error) {
	pcfg, err := platformconfig.LoadFor("danmuctl")
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(logLevel, "console", pcfg.ServiceName)
	if err != nil {
		return nil, nil, err
	}
	load := config.Load
	if configPath != "" {
		load = func() (config.Config, error) { return config.LoadFrom(configPath) }
	}
	cfg, err := load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	a, err := app.Build(ctx, cfg, log, app.Options{Messaging: true, SharedCache: true})
	if err != nil {
		return nil, nil, err
	}
	closeAll := func() error {
		err := a.Close()
		_ = log.Sync()
		return err
	}
	return engine{Service: a.Service, Resolver: a.Resolver}, closeAll, nil
}

type commandContext struct {
	open       Opener
	configPath *string
	logLevel   *string
}

// withEngine runs fn against a freshly opened engine and always releases it.
func (c *commandContext) withEngine(ctx context.Context, fn func(Engine) error) (err error) {
	e, closeFn, err := c.open(ctx, *c.configPath, *c.logLevel)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, closeFn())
	}()
	return fn(e)
}
