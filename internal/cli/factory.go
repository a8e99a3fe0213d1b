// Package cli wires configuration into a ready engine for the canopy command.
package cli

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/canopy"
	"github.com/aretw0/canopy/internal/config"
	"github.com/aretw0/canopy/internal/logging"
	"github.com/aretw0/canopy/pkg/adapters/file"
	"github.com/aretw0/canopy/pkg/adapters/inproc"
	"github.com/aretw0/canopy/pkg/adapters/memory"
	"github.com/aretw0/canopy/pkg/adapters/process"
	"github.com/aretw0/canopy/pkg/adapters/redis"
	"github.com/aretw0/canopy/pkg/adapters/sqlite"
	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/persistence/middleware"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/aretw0/canopy/pkg/registry"
)

//go:embed species.json
var sampleCatalog []byte

// SampleCatalog returns the built-in demo species, used for catalog type "memory".
func SampleCatalog() ([]domain.Candidate, error) {
	return file.ParseCatalog(sampleCatalog)
}

// Stack is an engine together with the resources it holds open.
type Stack struct {
	Engine *canopy.Engine
	Store  ports.SessionStore
	Logger *slog.Logger

	closers []func() error
}

// Close releases databases and connections in reverse order of opening.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

type buildOptions struct {
	logger *slog.Logger
	hooks  domain.LifecycleHooks
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

// WithLogger overrides the logger derived from cfg.Log.Level.
func WithLogger(logger *slog.Logger) BuildOption {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithHooks attaches lifecycle hooks (metrics, debug logging).
func WithHooks(hooks domain.LifecycleHooks) BuildOption {
	return func(o *buildOptions) {
		o.hooks = hooks
	}
}

// Build assembles the engine described by cfg.
func Build(cfg *config.Config, opts ...BuildOption) (*Stack, error) {
	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.New(logging.ParseLevel(cfg.Log.Level))
	}

	stack := &Stack{Logger: o.logger}
	ok := false
	defer func() {
		if !ok {
			_ = stack.Close()
		}
	}()

	reg, err := registry.LoadFile(cfg.Pipeline.StagesFile)
	if err != nil {
		return nil, err
	}

	store, locker, closeStore, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	stack.Store = store
	stack.closers = append(stack.closers, closeStore)

	catalog, closeCatalog, err := OpenCatalog(cfg)
	if err != nil {
		return nil, err
	}
	stack.closers = append(stack.closers, closeCatalog)

	evaluators, err := Evaluators(cfg, reg.Stages(), o.logger)
	if err != nil {
		return nil, err
	}

	engineOpts := []canopy.Option{
		canopy.WithStages(reg.Stages()),
		canopy.WithStore(store),
		canopy.WithCatalog(catalog),
		canopy.WithEvaluators(evaluators),
		canopy.WithLogger(o.logger),
		canopy.WithLifecycleHooks(o.hooks),
		canopy.WithEvaluatorTimeout(cfg.Evaluators.Timeout),
		canopy.WithStrictEvaluators(cfg.Pipeline.StrictEvaluators),
		canopy.WithReplayOnRevise(cfg.Pipeline.ReplayOnRevise),
	}
	if locker != nil {
		engineOpts = append(engineOpts, canopy.WithLocker(locker))
	}

	stack.Engine, err = canopy.New(engineOpts...)
	if err != nil {
		return nil, err
	}
	ok = true
	return stack, nil
}

func nopClose() error { return nil }

// OpenStore builds the session store named by cfg.Store.Type, wrapped in the
// encryption middleware when a key is configured. Redis also yields a
// distributed locker.
func OpenStore(cfg *config.Config) (ports.SessionStore, ports.DistributedLocker, func() error, error) {
	var (
		store  ports.SessionStore
		locker ports.DistributedLocker
		closer = nopClose
	)

	switch cfg.Store.Type {
	case "memory":
		store = memory.NewStore()
	case "file":
		store = file.New(cfg.Store.Dir)
	case "redis":
		rc := cfg.Store.Redis
		rs := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithTTL(rc.TTL), redis.WithPrefix(rc.Prefix))
		store = rs
		locker = redis.NewLocker(rs.Client(), rs.Prefix())
		closer = rs.Close
	default:
		return nil, nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}

	if cfg.Store.EncryptionKey != "" {
		key, err := middleware.ParseKey(cfg.Store.EncryptionKey)
		if err != nil {
			_ = closer()
			return nil, nil, nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		store = middleware.Chain(store, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return store, locker, closer, nil
}

// OpenCatalog builds the catalog source named by cfg.Catalog.Type.
func OpenCatalog(cfg *config.Config) (ports.CatalogSource, func() error, error) {
	switch cfg.Catalog.Type {
	case "memory":
		species, err := SampleCatalog()
		if err != nil {
			return nil, nil, fmt.Errorf("built-in catalog: %w", err)
		}
		return memory.NewCatalog(species), nopClose, nil
	case "json":
		return file.NewCatalog(cfg.Catalog.Path), nopClose, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Catalog.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog type %q", cfg.Catalog.Type)
	}
}

// Evaluators returns the process runner when evaluator scripts are configured
// and the built-in attribute filter otherwise.
func Evaluators(cfg *config.Config, stages []domain.Stage, logger *slog.Logger) (ports.EvaluatorResolver, error) {
	ec := cfg.Evaluators
	if ec.Config == "" && ec.Dir == "" {
		return inproc.ForStages(stages), nil
	}

	allowed := make(map[string]process.EvaluatorConfig)
	var baseDir string
	if ec.Dir != "" {
		// Scripts run with the evaluator dir as working directory, so their paths must not be relative to it.
		abs, err := filepath.Abs(ec.Dir)
		if err != nil {
			return nil, err
		}
		baseDir = abs
		discovered, err := process.DiscoverScripts(baseDir, "")
		if err != nil {
			return nil, err
		}
		for name, ev := range discovered {
			allowed[name] = ev
		}
	}
	if ec.Config != "" {
		configured, err := process.LoadEvaluators(ec.Config)
		if err != nil {
			return nil, err
		}
		// Explicit entries win over discovered scripts.
		for name, ev := range configured {
			if ev.Script != "" && !filepath.IsAbs(ev.Script) {
				if ev.Script, err = filepath.Abs(ev.Script); err != nil {
					return nil, err
				}
			}
			allowed[name] = ev
		}
	}

	for _, st := range stages {
		if st.EvaluatorRef == "" {
			continue
		}
		if _, ok := allowed[st.EvaluatorRef]; !ok {
			logger.Warn("No evaluator configured for stage; it will pass candidates through",
				"stage", st.Index, "evaluator", st.EvaluatorRef)
		}
	}

	return process.NewRunner(
		process.WithRegistry(allowed),
		process.WithBaseDir(baseDir),
		process.WithArgvPayload(ec.ArgvPayload),
		process.WithLogger(logger),
	), nil
}
