package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/sliink/eventd/internal/api"
	"github.com/sliink/eventd/internal/core"
	"github.com/sliink/eventd/internal/logging"
	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
	"github.com/sliink/eventd/internal/plugin/hooks"
	"github.com/sliink/eventd/internal/plugin/inputs"
	"github.com/sliink/eventd/internal/plugin/outputs"
	"github.com/sliink/eventd/internal/plugin/processors"
	"github.com/sliink/eventd/internal/telemetry"
)

type appOptions struct {
	Version string
	Console io.Writer
}

// app is everything built during STARTING. Nothing in it is rebuilt while
// the daemon runs.
type app struct {
	cfg       *core.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	metrics   *core.Metrics
	bus       *core.EventBus
	health    *core.HealthMonitor
	plugins   *core.PluginRegistry
	api       *api.API
	daemon    *core.Daemon
}

// newApp performs STARTING. Any error here is fatal to the process.
func newApp(ctx context.Context, cfg *core.Config, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.cleanup(context.Background())
		}
	}()

	// OTel before the logger so the otelslog bridge sees the provider
	a.telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, opts.Version)
	if err != nil {
		return a, fmt.Errorf("telemetry: %w", err)
	}

	logOpts := logging.Options{Log: cfg.Log, Console: opts.Console}
	if a.telemetry != nil && a.telemetry.ExportsLogs() {
		logOpts.ServiceName = cfg.Telemetry.ServiceName
	}
	a.logger, err = logging.New(logOpts)
	if err != nil {
		return a, fmt.Errorf("logging: %w", err)
	}
	logger := a.logger.Logger

	version := cfg.Identity.Version
	if version == "" {
		version = opts.Version
	}
	identity := core.NewIdentity(cfg.Identity.Namespace, version)
	logger = logger.With("instance", identity.ShortID())
	logger.InfoContext(ctx, "eventd starting",
		"config", cfg.Path(),
		"namespace", identity.Namespace,
		"version", identity.Version,
		"instance_id", identity.InstanceID,
		"signature", identity.Signature)

	a.metrics = core.NewMetrics()
	a.bus = core.NewEventBus()
	a.bus.Start()
	a.health = core.NewHealthMonitor()
	a.health.Start()

	created, err := plugin.CreatePlugins(newPluginFactory(logger), pluginSpecs(cfg))
	if err != nil {
		return a, err
	}
	a.plugins = core.NewPluginRegistry()
	for _, p := range created {
		a.plugins.RegisterPlugin(p)
		a.health.RegisterComponent(p)
	}
	if err := a.plugins.StartAll(); err != nil {
		return a, err
	}

	var sources []model.Source
	for _, s := range a.plugins.Sources() {
		sources = append(sources, s)
	}
	watcher := core.NewWatcher(sources, a.metrics, a.bus, logger)
	watcher.Start()

	var notifiers []model.Notifier
	for _, n := range a.plugins.Notifiers() {
		notifiers = append(notifiers, n)
	}
	var tracer trace.Tracer
	if a.telemetry != nil {
		tracer = a.telemetry.Tracer("github.com/sliink/eventd")
	}
	pipelineOpts := core.PipelineOptions{
		SyncDelay:    cfg.SyncDelay,
		TriggerDelay: cfg.TriggerDelay,
		Notifiers:    notifiers,
		Recorder:     a.metrics,
		Tracer:       tracer,
	}
	if syncer := a.plugins.Syncer(); syncer != nil {
		pipelineOpts.Syncer = syncer
	}
	pipeline := core.NewPipeline(pipelineOpts)
	pipeline.Start()

	hookRegistry := core.LoadHookRegistry(cfg.Plugins.Path, cfg.Plugins.Enabled,
		hooks.NewLuaLoader(logger.With("component", "lua")),
		core.HookRegistryOptions{Logger: logger, Recorder: a.metrics, Bus: a.bus})

	a.daemon, err = core.NewDaemon(core.DaemonOptions{
		Config:   cfg,
		Identity: identity,
		Hooks:    hookRegistry,
		Scanner:  watcher,
		Pipeline: pipeline,
		Metrics:  a.metrics,
		Bus:      a.bus,
		Health:   a.health,
		Logger:   logger,
	})
	if err != nil {
		return a, err
	}
	a.health.RegisterComponent(watcher)
	a.health.RegisterComponent(pipeline)
	a.health.RegisterComponent(a.daemon)

	a.api = api.NewAPI(api.Deps{
		Daemon:      a.daemon,
		Metrics:     a.metrics.Handler(),
		Health:      a.health,
		Plugins:     a.plugins,
		Bus:         a.bus,
		ServiceName: cfg.Telemetry.ServiceName,
		Tracing:     a.telemetry != nil,
		Logger:      logger,
	}, cfg.Metrics.Host, cfg.Metrics.Port)
	if err := a.api.Start(); err != nil {
		return a, fmt.Errorf("metrics endpoint: %w", err)
	}

	return a, nil
}

// run blocks in the daemon loop until ctx is cancelled, then releases
// everything newApp acquired
func (a *app) run(ctx context.Context) error {
	err := a.daemon.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	a.cleanup(shutdownCtx)
	return err
}

func (a *app) cleanup(ctx context.Context) {
	logger := slog.New(slog.DiscardHandler)
	if a.logger != nil {
		logger = a.logger.Logger
	}

	if a.api != nil {
		if err := a.api.Stop(ctx); err != nil {
			logger.ErrorContext(ctx, "metrics endpoint shutdown error", "error", err)
		}
	}
	if a.plugins != nil {
		a.plugins.Stop()
	}
	if a.bus != nil {
		a.bus.Stop()
	}
	if a.health != nil {
		a.health.Stop()
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "otel shutdown error", "error", err)
		}
	}

	logger.InfoContext(ctx, "shutdown complete")
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func pluginSpecs(cfg *core.Config) plugin.Specs {
	return plugin.Specs{
		Sources:   cfg.Sources,
		Sync:      cfg.Sync,
		Notifiers: cfg.Notifiers,
	}
}

// newPluginFactory registers every built-in plugin type under the name
// used in the configuration file
func newPluginFactory(logger *slog.Logger) *plugin.PluginFactory {
	factory := plugin.NewPluginFactory(logger)

	factory.RegisterSourcePlugin("file", func(id string) model.SourcePlugin { return inputs.NewFileInput(id) })
	factory.RegisterSourcePlugin("socket", func(id string) model.SourcePlugin { return inputs.NewSocketInput(id) })
	factory.RegisterSourcePlugin("http", func(id string) model.SourcePlugin { return inputs.NewHTTPInput(id) })
	factory.RegisterSourcePlugin("redis", func(id string) model.SourcePlugin { return inputs.NewRedisInput(id) })
	factory.RegisterSourcePlugin("command", func(id string) model.SourcePlugin { return inputs.NewCommandInput(id) })

	factory.RegisterSyncPlugin("sqlite", func(id string) model.SyncPlugin { return processors.NewSQLiteSync(id) })
	factory.RegisterSyncPlugin("postgres", func(id string) model.SyncPlugin { return processors.NewPostgresSync(id) })
	factory.RegisterSyncPlugin("redis", func(id string) model.SyncPlugin { return processors.NewRedisSync(id) })

	factory.RegisterNotifyPlugin("stdout", func(id string) model.NotifyPlugin { return outputs.NewStdoutOutput(id) })
	factory.RegisterNotifyPlugin("webhook", func(id string) model.NotifyPlugin { return outputs.NewWebhookOutput(id) })
	factory.RegisterNotifyPlugin("redis", func(id string) model.NotifyPlugin { return outputs.NewRedisOutput(id) })

	return factory
}
