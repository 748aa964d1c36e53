// Package spanzfx wires a spanz tracer into an Uber fx application.
package spanzfx

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/spanz"
	"github.com/zoobzio/spanz/config"
	"github.com/zoobzio/spanz/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FXModule provides the logger, the assembled listener chain and the
// *spanz.Tracer built from a config.Config, and ties them to the fx
// lifecycle. A config.Config must be in the container; ConfigModule
// provides one from files and the environment.
//
// Usage:
//
//	app := fx.New(
//	    spanzfx.ConfigModule,
//	    spanzfx.FXModule,
//	    fx.Supply(spanzfx.Source{Options: []config.Option{config.WithConfigFile("spanz.yaml")}, Watch: true}),
//	)
var FXModule = fx.Module("spanz",
	fx.Provide(
		NewLogger,
		NewAssembly,
		NewTracer,
	),
	fx.Invoke(RegisterLifecycle),
)

// ConfigModule provides config.Config read from a Source.
var ConfigModule = fx.Module("spanz-config",
	fx.Provide(ReadConfig),
)

// Source says where configuration comes from and whether the file is
// watched for listener changes.
type Source struct {
	Options []config.Option
	Watch   bool
}

// ReadConfig loads configuration from src.
func ReadConfig(src Source) (config.Config, error) {
	return config.Read(src.Options...)
}

// NewLogger builds the zap logger described by cfg.Log.
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	return logger.New(cfg.Log)
}

// AssemblyParams are the inputs of NewAssembly.
type AssemblyParams struct {
	fx.In

	Config     config.Config
	Logger     *zap.Logger
	Registerer prometheus.Registerer `optional:"true"`
}

// NewAssembly builds the sampler, listeners and collector.
func NewAssembly(p AssemblyParams) (*config.Assembly, error) {
	return config.Build(p.Config, config.Deps{
		Logger:     p.Logger,
		Registerer: p.Registerer,
	})
}

// NewTracer creates the tracer from the assembly.
func NewTracer(a *config.Assembly) *spanz.Tracer {
	return a.NewTracer()
}

// LifecycleParams are the inputs of RegisterLifecycle.
type LifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Tracer    *spanz.Tracer
	Assembly  *config.Assembly
	Logger    *zap.Logger
	Source    Source `optional:"true"`
}

// RegisterLifecycle starts the config watcher, when requested, and tears the
// tracer down on stop: the watcher stops first, then the tracer's spans and
// id pool are released and the collector is closed.
func RegisterLifecycle(p LifecycleParams) {
	var watcher *config.Watcher

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !p.Source.Watch {
				return nil
			}
			w, err := config.NewWatcher(config.WithWatcherLogger(p.Logger))
			if err != nil {
				return err
			}
			if err := config.ReloadOnChange(w, p.Assembly, p.Tracer.Recorder(), p.Logger, p.Source.Options...); err != nil {
				_ = w.Stop()
				return err
			}
			watcher = w
			watcher.StartAsync()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if watcher != nil {
				if err := watcher.Stop(); err != nil {
					p.Logger.Warn("failed to stop config watcher", zap.Error(err))
				}
			}
			p.Tracer.Destroy()
			p.Assembly.Close()
			p.Logger.Info("spanz tracer stopped")
			// Sync reports EINVAL for stderr on some platforms.
			_ = p.Logger.Sync()
			return nil
		},
	})
}
