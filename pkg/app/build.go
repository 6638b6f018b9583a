package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/toolpipe/internal/approval"
	"github.com/flemzord/toolpipe/internal/classify"
	"github.com/flemzord/toolpipe/internal/config"
	"github.com/flemzord/toolpipe/internal/conversation"
	"github.com/flemzord/toolpipe/internal/core"
	"github.com/flemzord/toolpipe/internal/cron"
	"github.com/flemzord/toolpipe/internal/gateway"
	"github.com/flemzord/toolpipe/internal/hook"
	"github.com/flemzord/toolpipe/internal/observability"
	"github.com/flemzord/toolpipe/internal/provider"
	"github.com/flemzord/toolpipe/internal/provider/openaicompat"
	"github.com/flemzord/toolpipe/internal/security"
	"github.com/flemzord/toolpipe/internal/session"
	"github.com/flemzord/toolpipe/internal/subagent"
	"github.com/flemzord/toolpipe/internal/tool"
	"github.com/flemzord/toolpipe/internal/tool/builtin"
	"github.com/flemzord/toolpipe/modules/store/sqlite"
)

// Options are the process-level inputs Build does not read from config.
type Options struct {
	Version string

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Requester answers approvals inline, e.g. a terminal prompt. Nil leaves
	// calls pending for the HTTP API.
	Requester approval.Requester

	// ToolTrace, if set, receives a JSON line per tool execution.
	ToolTrace io.Writer
}

// Runtime is the assembled object graph. Components are registered on App
// in dependency order.
type Runtime struct {
	Config   *config.Config
	Logger   *slog.Logger
	Redactor *security.Redactor
	Audit    *security.AuditLogger

	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Tracer   trace.Tracer

	Classifier *classify.Classifier
	Provider   provider.Provider
	Health     map[string]provider.HealthChecker

	Tools       *tool.Registry
	RateLimiter *security.RateLimiter
	Policy      *approval.Policy
	Store       conversation.Store
	Sessions    *session.Manager
	SubAgents   *subagent.Manager
	Hub         *gateway.Hub
	Scheduler   *cron.Scheduler

	App *core.App
}

// Build assembles every component described by cfg. Nothing listens or
// schedules until App.Start. On error, resources opened so far are closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (rt *Runtime, err error) {
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	rt = &Runtime{Config: cfg, Hub: gateway.NewHub(), Health: make(map[string]provider.HealthChecker)}
	rt.Redactor = NewRedactor(cfg)
	rt.Logger = NewLogger(opts.LogOutput, level, rt.Redactor)
	rt.App = core.NewApp(rt.Logger)
	app := rt.App
	defer func() {
		if err != nil {
			// Components registered so far only release resources on Stop;
			// starting them is a no-op that makes Stop reach them.
			if startErr := app.Start(ctx); startErr == nil {
				_ = app.Stop(context.WithoutCancel(ctx))
			}
		}
	}()

	if err := rt.buildTelemetry(ctx, opts.Version); err != nil {
		return nil, err
	}
	if err := rt.buildAudit(); err != nil {
		return nil, err
	}
	if err := rt.buildModels(); err != nil {
		return nil, err
	}
	if err := rt.buildStore(ctx); err != nil {
		return nil, err
	}

	mode, err := cfg.ApprovalMode()
	if err != nil {
		return nil, err
	}
	rt.Policy = approval.NewPolicy(approval.PolicyConfig{
		Mode:    mode,
		Store:   approval.NewTrustStore(approval.TrustStoreConfig{TTL: cfg.Approval.TrustTTL}),
		Audit:   rt.Audit,
		Metrics: rt.Metrics,
		Logger:  rt.Logger,
	})

	if err := rt.buildTools(); err != nil {
		return nil, err
	}
	if err := rt.buildSessions(opts.Requester, opts.ToolTrace); err != nil {
		return nil, err
	}
	if err := rt.buildScheduler(); err != nil {
		return nil, err
	}
	// Everything opened so far is registered; mark it started so a later
	// Stop releases it even when the caller never calls Start.
	if err := rt.App.Start(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) buildTelemetry(ctx context.Context, version string) error {
	cfg := rt.Config.Telemetry
	if cfg.Metrics {
		rt.Registry = prometheus.NewRegistry()
		rt.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.Metrics = observability.NewMetrics(rt.Registry)
	}

	tracing := cfg.Tracing
	tracing.ServiceVersion = version
	tp, shutdown, err := observability.NewTracerProvider(ctx, tracing)
	if err != nil {
		return err
	}
	rt.Tracer = tp.Tracer(observability.TracerName)
	rt.App.Add(core.Hook{ID: "tracing", OnStop: shutdown})
	return nil
}

func (rt *Runtime) buildAudit() error {
	cfg := rt.Config.Audit
	auditCfg := security.AuditLoggerConfig{Redactor: rt.Redactor}
	if cfg.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return fmt.Errorf("creating audit directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		auditCfg.Writer = f
		rt.App.Add(core.Closer("audit", f.Close))
	}
	rt.Audit = security.NewAuditLogger(auditCfg)
	return nil
}

func (rt *Runtime) buildModels() error {
	cfg := rt.Config

	var model classify.Inferencer
	if cfg.Classifier.ModelEnabled() {
		p, err := openaicompat.New(cfg.Classifier.Model, rt.Logger.With("component", "classifier_model"))
		if err != nil {
			return fmt.Errorf("classifier model: %w", err)
		}
		model = p
		rt.Health["classifier_model"] = p
	}
	rt.Classifier = classify.New(classify.Config{
		MaxRuleRunes:  cfg.Classifier.MaxRuleRunes,
		Model:         model,
		ModelTimeout:  cfg.Classifier.ModelTimeout,
		MinConfidence: cfg.Classifier.MinConfidence,
		Logger:        rt.Logger.With("component", "classifier"),
		Metrics:       rt.Metrics,
		Tracer:        rt.Tracer,
	})

	if cfg.Provider.Enabled() {
		p, err := openaicompat.New(cfg.Provider.Config, rt.Logger.With("component", "provider"))
		if err != nil {
			return fmt.Errorf("provider: %w", err)
		}
		rt.Provider = p
		rt.Health["provider"] = p
	}
	return nil
}

func (rt *Runtime) buildStore(ctx context.Context) error {
	switch rt.Config.Storage.Driver {
	case config.StorageSQLite:
		st, err := sqlite.Open(ctx, rt.Config.Storage.SQLite, rt.Logger.With("component", "store"))
		if err != nil {
			return err
		}
		rt.Store = st
		rt.App.Add(core.Closer("store", st.Close))
	default:
		rt.Store = conversation.NewMemoryStore()
	}
	return nil
}

func (rt *Runtime) buildTools() error {
	cfg := rt.Config
	rt.Tools = tool.NewRegistry()
	rt.Tools.SetAuditLogger(rt.Audit)
	rt.RateLimiter = security.NewRateLimiter(cfg.Tools.RateLimit)
	rt.Tools.SetRateLimiter(rt.RateLimiter)

	builtinCfg := cfg.Tools.Builtin
	builtinCfg.Secrets = secrets(cfg)
	if err := builtin.Register(rt.Tools, builtinCfg); err != nil {
		return err
	}
	return nil
}

func (rt *Runtime) hooks(toolTrace io.Writer) *hook.Pipeline {
	p := hook.NewPipeline()
	if len(rt.Config.Tools.Deny) > 0 {
		p.Register(hook.NewDenyHook(rt.Config.Tools.Deny...))
	}
	if toolTrace != nil {
		p.Register(hook.NewAuditHook(toolTrace).WithRedactor(rt.Redactor))
	}
	return p
}

func (rt *Runtime) buildSessions(requester approval.Requester, toolTrace io.Writer) error {
	cfg := rt.Config

	// Sub-agents report back through the session manager, which does not
	// exist yet when the agent manager is built.
	var sessions *session.Manager
	if cfg.Tools.SubAgents {
		if rt.Provider == nil {
			return errors.New("sub-agents need a provider")
		}
		rt.SubAgents = subagent.NewManager(subagent.ManagerConfig{
			Launcher: subagent.NewLoopLauncher(subagent.LoopLauncherConfig{
				Provider: rt.Provider,
				Registry: rt.Tools,
				Policy:   rt.Policy,
				Loop:     cfg.Agent.LoopConfig,
				Timeout:  cfg.Agent.SubAgentTimeout,
				Logger:   rt.Logger.With("component", "subagent"),
			}),
			MaxConcurrent: cfg.Agent.MaxSubAgents,
			Supervise: func(sessionID, callID string, res tool.Result) {
				sessions.Supervise(sessionID, callID, res)
			},
			OnStatus: rt.Hub.PublishAgent,
			Audit:    rt.Audit,
			Metrics:  rt.Metrics,
			Logger:   rt.Logger.With("component", "subagent"),
		})
		if err := subagent.RegisterTools(rt.Tools, rt.SubAgents); err != nil {
			return err
		}
		rt.App.Add(core.Hook{ID: "subagents", OnStop: rt.SubAgents.Shutdown})
	}

	m, err := session.NewManager(session.Config{
		Classifier:      rt.Classifier,
		Registry:        rt.Tools,
		Provider:        rt.Provider,
		Policy:          rt.Policy,
		Hooks:           rt.hooks(toolTrace),
		Store:           rt.Store,
		Requester:       requester,
		ApprovalTimeout: cfg.Approval.Timeout,
		Loop:            cfg.Agent.LoopConfig,
		SystemPrompt:    cfg.Agent.SystemPrompt,
		RootPath:        cfg.RootPath,
		OnCallEvent:     rt.Hub.PublishCall,
		Logger:          rt.Logger.With("component", "session"),
		Metrics:         rt.Metrics,
		Tracer:          rt.Tracer,
	})
	if err != nil {
		return err
	}
	sessions = m
	rt.Sessions = m
	rt.App.Add(core.Hook{ID: "sessions", OnStop: m.Close})
	return nil
}

func (rt *Runtime) buildScheduler() error {
	cfg := rt.Config.Maintenance
	logger := rt.Logger.With("component", "cron")
	s := cron.NewScheduler(logger)

	jobs := []cron.Job{
		&cron.PruneJob{JobName: "trust_prune", Target: rt.Policy.Store(), Logger: logger, ScheduleExpr: cfg.Schedule},
		&cron.PruneJob{JobName: "rate_limit_prune", Target: rt.RateLimiter, Logger: logger, ScheduleExpr: cfg.Schedule},
		&cron.SessionCleanupJob{Sessions: rt.Sessions, MaxIdle: cfg.SessionIdleTTL, Logger: logger, ScheduleExpr: cfg.Schedule},
	}
	if rt.SubAgents != nil {
		jobs = append(jobs, &cron.EventBufferJob{Buffer: rt.SubAgents, MaxAge: cfg.EventMaxAge, Logger: logger, ScheduleExpr: cfg.Schedule})
	}
	for _, j := range jobs {
		if err := s.RegisterJob(j); err != nil {
			return err
		}
	}
	rt.Scheduler = s
	return nil
}

// Close stops every started component.
func (rt *Runtime) Close(ctx context.Context) error {
	return rt.App.Stop(ctx)
}
