package main

import (
	"context"

	"go.uber.org/zap"

	platformconfig "github.com/example/danmu-platform/internal/platform/config"
	"github.com/example/danmu-platform/internal/platform/httpserver"
	"github.com/example/danmu-platform/internal/platform/logging"
	"github.com/example/danmu-platform/internal/platform/run"
	"github.com/example/danmu-platform/services/danmu/internal/app"
	"github.com/example/danmu-platform/services/danmu/internal/config"
)

func main() {
	pcfg, err := platformconfig.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(pcfg.LogLevel, pcfg.LogEncoding, pcfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Error("config", zap.Error(err))
		run.Exit(1)
	}

	engine, err := app.Build(context.Background(), cfg, log, app.Options{Messaging: true, SharedCache: true})
	if err != nil {
		log.Error("build engine", zap.Error(err))
		run.Exit(1)
	}

	srv := httpserver.New(httpserver.Options{
		Addr:        pcfg.HTTP.Addr,
		ServiceName: pcfg.ServiceName,
		Logger:      log,
		Router:      engine.Router(pcfg.HTTP.CORSOrigins),
	})

	runner := run.New(log)
	runner.ShutdownTimeout = pcfg.HTTP.ShutdownTimeout
	runner.OnShutdown("engine", func(context.Context) error { return engine.Close() })
	runner.OnShutdown("http", srv.Shutdown)

	code := runner.WithSignals(func(context.Context) error {
		return srv.Start()
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
