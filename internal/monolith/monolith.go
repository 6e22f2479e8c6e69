// Package monolith wires the bounded-context modules into one process:
// shared infrastructure, a DI container, and ordered start and stop.
package monolith

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fd1az/arbitrage-detector/internal/asset"
	"github.com/fd1az/arbitrage-detector/internal/config"
	"github.com/fd1az/arbitrage-detector/internal/di"
	"github.com/fd1az/arbitrage-detector/internal/logger"
)

// Monolith is what a module sees of the process during Startup.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	AssetRegistry() *asset.Registry
	Services() di.ServiceRegistry
}

// Module is a bounded context.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Stopper is implemented by modules holding resources past Startup.
type Stopper interface {
	Shutdown(context.Context, Monolith) error
}

type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	assetRegistry *asset.Registry
	container     di.Container

	mu      sync.Mutex
	started []Module
}

// New creates the process container. The config, logger and asset registry
// are registered under "config", "logger" and "assetRegistry".
func New(cfg *config.Config, log logger.LoggerInterface) *app {
	if log == nil {
		log = logger.Nop()
	}
	registry := asset.DefaultRegistry()

	container := di.NewContainer()
	container.Register("config", cfg)
	container.Register("logger", log)
	container.Register("assetRegistry", registry)

	return &app{
		config:        cfg,
		logger:        log,
		assetRegistry: registry,
		container:     container,
	}
}

func (a *app) Config() *config.Config         { return a.config }
func (a *app) Logger() logger.LoggerInterface { return a.logger }
func (a *app) AssetRegistry() *asset.Registry { return a.assetRegistry }
func (a *app) Services() di.ServiceRegistry   { return a.container }

// RegisterModules registers every module's services before any starts.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return fmt.Errorf("register %s: %w", moduleName(m), err)
		}
	}
	return nil
}

// StartModules starts modules in order and stops at the first failure.
// Modules that did start are remembered for StopModules.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return fmt.Errorf("start %s: %w", moduleName(m), err)
		}
		a.mu.Lock()
		a.started = append(a.started, m)
		a.mu.Unlock()
		a.logger.Debug(ctx, "module started", "module", moduleName(m))
	}
	return nil
}

// StopModules shuts the started modules down in reverse order and forgets
// them, so a second call is a no-op.
func (a *app) StopModules(ctx context.Context) error {
	a.mu.Lock()
	started := a.started
	a.started = nil
	a.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		s, ok := started[i].(Stopper)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", moduleName(started[i]), err))
		}
	}
	return errors.Join(errs...)
}

// moduleName uses Name() when a module has one.
func moduleName(m Module) string {
	if n, ok := m.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", m)
}
