package flowforge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/flowforge/internal/automation"
	"github.com/aretw0/flowforge/internal/compiler"
	"github.com/aretw0/flowforge/internal/config"
	"github.com/aretw0/flowforge/internal/deploy"
	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/internal/metrics"
	"github.com/aretw0/flowforge/internal/pipeline"
	"github.com/aretw0/flowforge/internal/worker"
	"github.com/aretw0/flowforge/pkg/adapters/ads"
	ffhttp "github.com/aretw0/flowforge/pkg/adapters/http"
	"github.com/aretw0/flowforge/pkg/adapters/memory"
	"github.com/aretw0/flowforge/pkg/adapters/process"
	ffredis "github.com/aretw0/flowforge/pkg/adapters/redis"
	"github.com/aretw0/flowforge/pkg/adapters/xaehost"
	"github.com/aretw0/flowforge/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
)

// Engine wires the stores, adapters and services described by a Config.
// The server and the worker commands both start from one.
type Engine struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	redis    *backend.Client

	queue   ports.JobQueue
	deploys ports.DeployRecordStore
	targets *memory.Targets
	locker  ports.DistributedLocker

	claimer   ports.JobClaimer
	toolchain ports.ToolchainFactory
	dialer    ports.ControllerDialer
	repo      ports.Repository
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets the structured logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithToolchain replaces the automation host client.
func WithToolchain(f ports.ToolchainFactory) Option {
	return func(e *Engine) { e.toolchain = f }
}

// WithDialer replaces the ADS dialer.
func WithDialer(d ports.ControllerDialer) Option {
	return func(e *Engine) { e.dialer = d }
}

// WithRepository replaces the git adapter.
func WithRepository(r ports.Repository) Option {
	return func(e *Engine) { e.repo = r }
}

// WithClaimer makes the worker claim from c instead of the configured
// store or build server.
func WithClaimer(c ports.JobClaimer) Option {
	return func(e *Engine) { e.claimer = c }
}

// New builds an Engine from cfg.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	e := &Engine{cfg: cfg, registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	e.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.metrics = metrics.New(e.registry)
	e.targets = memory.NewTargets(cfg.Targets...)

	switch cfg.Server.Store {
	case config.StoreRedis:
		e.redis = ffredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		ropts := []ffredis.Option{ffredis.WithPrefix(cfg.Redis.Prefix), ffredis.WithRetention(cfg.Redis.Retention)}
		e.queue = ffredis.NewQueue(e.redis, ropts...)
		e.deploys = ffredis.NewDeployStore(e.redis, ropts...)
		e.locker = ffredis.NewLocker(e.redis, ropts...)
	default:
		e.queue = memory.NewQueue()
		e.deploys = memory.NewDeployStore()
		e.locker = memory.NewLocker()
	}

	if e.claimer == nil {
		e.claimer = deploy.NewRecords(e.queue, e.deploys, e.targets, e.logger, deploy.ObserveResults(e.metrics.ObserveResult))
		if cfg.Worker.APIURL != "" {
			e.claimer = ffhttp.NewClient(cfg.Worker.APIURL)
		}
	}
	if e.toolchain == nil {
		e.toolchain = xaehost.New(cfg.Toolchain.HostURL, xaehost.WithLogger(e.logger))
	}
	if e.dialer == nil {
		dopts := []ads.Option{ads.WithTimeout(cfg.ADS.Timeout), ads.WithLogger(e.logger)}
		if cfg.ADS.SourceNetID != "" {
			id, err := ads.ParseNetID(cfg.ADS.SourceNetID)
			if err != nil {
				return nil, fmt.Errorf("ads.source_net_id: %w", err)
			}
			dopts = append(dopts, ads.WithSource(id, uint16(cfg.ADS.SourcePort)))
		}
		e.dialer = ads.NewDialer(dopts...)
	}
	if e.repo == nil {
		runner := process.NewRunner(process.WithRegistry(cfg.Programs), process.WithLogger(e.logger))
		var gopts []process.GitOption
		if !cfg.Worker.Push {
			gopts = append(gopts, process.WithoutPush())
		}
		e.repo = process.NewGit(runner, gopts...)
	}
	return e, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() config.Config { return e.cfg }

// Queue returns the job store.
func (e *Engine) Queue() ports.JobQueue { return e.queue }

// Deploys returns the deploy record store.
func (e *Engine) Deploys() ports.DeployRecordStore { return e.deploys }

// Targets returns the target registry loaded from the configuration.
func (e *Engine) Targets() *memory.Targets { return e.targets }

// Metrics returns the collectors registered by the engine.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// MetricsHandler serves everything the engine registered.
func (e *Engine) MetricsHandler() http.Handler { return metrics.Handler(e.registry) }

// Compiler returns a flow compiler using the engine logger.
func (e *Engine) Compiler() *compiler.Compiler {
	return compiler.New(compiler.WithLogger(e.logger))
}

// Server returns the build API over the engine stores.
func (e *Engine) Server() *ffhttp.Server {
	opts := []ffhttp.Option{
		ffhttp.WithLogger(e.logger),
		ffhttp.WithResultObserver(e.metrics.ObserveResult),
		ffhttp.WithHealthCheck(e.health),
	}
	if e.cfg.Metrics.Enabled {
		opts = append(opts, ffhttp.WithMetricsHandler(e.MetricsHandler()))
	}
	return ffhttp.NewServer(e.queue, e.deploys, e.targets, opts...)
}

func (e *Engine) health(ctx context.Context) error {
	if e.redis == nil {
		return nil
	}
	return e.redis.Ping(ctx).Err()
}

// Pipeline returns the standard build pipeline and the workspace manager its
// jobs run in.
func (e *Engine) Pipeline() (*pipeline.Orchestrator, *pipeline.WorkspaceManager) {
	policy := e.cfg.RetryPolicy()
	policy.OnRetry = e.metrics.OnRetry

	bridgeOpts := []automation.Option{automation.WithPolicy(policy), automation.WithLogger(e.logger)}
	if len(e.cfg.Toolchain.Layout) > 0 {
		bridgeOpts = append(bridgeOpts, automation.WithLayout(e.cfg.Toolchain.Layout))
	}
	ws := pipeline.NewWorkspaceManager(e.cfg.Worker.WorkspaceDir)
	var templates *pipeline.TemplateManager
	if e.cfg.Worker.TemplateDir != "" {
		templates = pipeline.NewTemplateManager(e.cfg.Worker.TemplateDir)
	}

	steps := pipeline.DefaultSteps(pipeline.Deps{
		Repository:    e.repo,
		Compiler:      e.Compiler(),
		Toolchain:     e.toolchain,
		BridgeOptions: bridgeOpts,
		Templates:     templates,
		Workspaces:    ws,
		Machine: deploy.NewMachine(e.dialer,
			deploy.WithLogger(e.logger),
			deploy.WithSettle(e.cfg.ADS.SettleInterval, e.cfg.ADS.SettleReads)),
		Locker:   e.locker,
		LockTTL:  e.cfg.Worker.LockTTL,
		FlowFile: e.cfg.Worker.FlowFile,
		Logger:   e.logger,
		Tasks:    pipeline.TaskConfig{CycleTime: e.cfg.Worker.CycleTime, Priority: e.cfg.Worker.TaskPriority},
	})
	return pipeline.New(steps,
		pipeline.WithHooks(e.metrics.Hooks(e.logger)),
		pipeline.WithLogger(e.logger),
	), ws
}

// Worker returns a worker running the standard pipeline.
func (e *Engine) Worker() *worker.Worker {
	orch, ws := e.Pipeline()
	opts := []worker.Option{
		worker.WithPollInterval(e.cfg.Worker.PollInterval),
		worker.WithJobTimeout(e.cfg.Worker.JobTimeout),
		worker.WithWorkspaces(ws),
		worker.WithMetrics(e.metrics),
		worker.WithLogger(e.logger),
	}
	if e.cfg.Worker.ID != "" {
		opts = append(opts, worker.WithID(e.cfg.Worker.ID))
	}
	return worker.New(e.claimer, orch, e.cfg.Worker.ToolchainVersion, opts...)
}

// Close releases the store connections.
func (e *Engine) Close() error {
	if e.redis != nil {
		return e.redis.Close()
	}
	return nil
}
