// Package app wires all voxgate subsystems into a running service.
//
// The App struct owns the full lifecycle: New connects the subsystems and
// binds the listeners, Run serves until its context ends, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithDirectory,
// WithRecorder). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxgate/voxgate/internal/audit"
	"github.com/voxgate/voxgate/internal/auth"
	"github.com/voxgate/voxgate/internal/binding"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/gateway"
	"github.com/voxgate/voxgate/internal/health"
	"github.com/voxgate/voxgate/internal/identity"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/session"
	"github.com/voxgate/voxgate/internal/welcome"
)

// drainTimeout bounds how long the HTTP servers wait for in-flight
// requests once Run's context is cancelled.
const drainTimeout = 10 * time.Second

// App owns all subsystem lifetimes and serves the voxgate voice-login
// pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics *observe.Metrics
	store   *session.Store
	engine  *auth.Engine
	dir     identity.Directory
	trail   audit.Recorder
	flow    *binding.Flow
	greeter *welcome.Greeter

	// pinger is the directory connection pool, nil without a database.
	pinger health.Pinger

	gatewaySrv *http.Server
	gatewayLn  net.Listener
	opsSrv     *http.Server
	opsLn      net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDirectory injects an identity directory instead of creating one from
// config.
func WithDirectory(d identity.Directory) Option {
	return func(a *App) { a.dir = d }
}

// WithRecorder injects an audit recorder instead of creating one from
// config.
func WithRecorder(rec audit.Recorder) Option {
	return func(a *App) { a.trail = rec }
}

// WithMetrics injects a metrics sink instead of the process-wide default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together and binding the
// gateway and operations listeners, so address conflicts surface before
// Run. The providers struct comes from [BuildProviders] (or a test's
// mocks); Speaker must be set.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Speaker == nil {
		return nil, errors.New("app: a speaker provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Identity directory + audit trail ──────────────────────────────
	if err := a.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("app: init database: %w", err)
	}

	// ── 2. Capture store + decision engine ───────────────────────────────
	if err := a.initEngine(); err != nil {
		return nil, fmt.Errorf("app: init engine: %w", err)
	}

	// ── 3. Binding flow ──────────────────────────────────────────────────
	if err := a.initBinding(); err != nil {
		return nil, fmt.Errorf("app: init binding: %w", err)
	}

	// ── 4. Greeter ───────────────────────────────────────────────────────
	if err := a.initGreeter(); err != nil {
		return nil, fmt.Errorf("app: init greeter: %w", err)
	}

	// ── 5. Gateway + operations servers ──────────────────────────────────
	if err := a.initServers(); err != nil {
		return nil, fmt.Errorf("app: init servers: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initDatabase sets up the Postgres-backed directory and audit trail, or
// falls back to an in-memory directory when no DSN is configured.
func (a *App) initDatabase(ctx context.Context) error {
	if a.dir != nil {
		return nil // injected
	}

	dsn := a.cfg.Database.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured; identities are in-memory and the audit trail is off")
		a.dir = identity.NewMemDirectory()
		return nil
	}

	store, err := audit.NewStore(ctx, dsn, a.cfg.Database.VoiceprintDimensions)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	if a.trail == nil {
		a.trail = audit.NewGuard(store)
	}

	dir := identity.NewPostgresDirectory(store.Pool())
	if err := dir.Migrate(ctx); err != nil {
		return err
	}
	a.dir = dir
	a.pinger = store.Pool()
	return nil
}

// initEngine creates the capture store and the decision engine over it.
func (a *App) initEngine() error {
	engineCfg := a.cfg.Engine.ToAuth()
	a.store = session.NewStore(engineCfg.SampleRate,
		session.WithMaxBufferBytes(a.cfg.Session.MaxBufferBytes))

	opts := []auth.Option{
		auth.WithConfig(engineCfg),
		auth.WithMetrics(a.metrics),
	}
	if a.providers.Emotion != nil {
		opts = append(opts, auth.WithEmotion(a.providers.Emotion))
	}

	eng, err := auth.New(a.store, a.providers.Speaker, opts...)
	if err != nil {
		return err
	}
	a.engine = eng
	return nil
}

// initBinding creates the enrollment flow; the speaker backend supplies the
// enrolled-label list.
func (a *App) initBinding() error {
	var mopts []binding.MatcherOption
	if t := a.cfg.Binding.PhoneticThreshold; t > 0 {
		mopts = append(mopts, binding.WithPhoneticThreshold(t))
	}
	if t := a.cfg.Binding.FuzzyThreshold; t > 0 {
		mopts = append(mopts, binding.WithFuzzyThreshold(t))
	}

	fopts := []binding.FlowOption{
		binding.WithMatcher(binding.NewMatcher(mopts...)),
		binding.WithMetrics(a.metrics),
	}
	if d := a.cfg.Binding.Expiry(); d > 0 {
		fopts = append(fopts, binding.WithExpiry(d))
	}

	flow, err := binding.NewFlow(a.dir, a.providers.Speaker, fopts...)
	if err != nil {
		return err
	}
	a.flow = flow
	return nil
}

// initGreeter builds the post-login greeter unless greetings are disabled.
func (a *App) initGreeter() error {
	if !a.cfg.Greeting.Enabled {
		return nil
	}

	loc, err := a.cfg.Greeting.Location()
	if err != nil {
		return fmt.Errorf("resolve greeting timezone: %w", err)
	}

	opts := []welcome.Option{
		welcome.WithLocation(loc),
		welcome.WithMetrics(a.metrics),
	}
	if a.providers.TTS != nil {
		opts = append(opts, welcome.WithTTS(a.providers.TTS))
		if a.cfg.Greeting.Voice != "" {
			opts = append(opts, welcome.WithVoice(a.cfg.Greeting.Voice))
		}
	}
	a.greeter = welcome.New(opts...)
	return nil
}

// initServers mounts the gateway behind the HTTP middleware and, when an
// ops address is configured, the metrics and health endpoints.
func (a *App) initServers() error {
	gwOpts := []gateway.Option{gateway.WithMetrics(a.metrics)}
	if a.greeter != nil {
		gwOpts = append(gwOpts, gateway.WithGreeter(a.greeter))
	}
	if a.trail != nil {
		gwOpts = append(gwOpts, gateway.WithAudit(a.trail))
	}
	gw, err := gateway.New(a.engine, a.dir, a.flow, gwOpts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	gw.Register(mux)

	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}
	a.gatewayLn = ln
	a.gatewaySrv = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if a.cfg.Server.OpsAddr == "" {
		return nil
	}

	opsMux := http.NewServeMux()
	opsMux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.healthCheckers()...).Register(opsMux)

	oln, err := net.Listen("tcp", a.cfg.Server.OpsAddr)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.OpsAddr, err)
	}
	a.opsLn = oln
	a.opsSrv = &http.Server{
		Handler:           opsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// healthCheckers returns the readiness checks for the hard dependencies.
func (a *App) healthCheckers() []health.Checker {
	checks := []health.Checker{health.Speaker(a.providers.Speaker)}
	if a.pinger != nil {
		checks = append(checks, health.Database(a.pinger))
	}
	return checks
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Addr returns the bound gateway address.
func (a *App) Addr() string {
	return a.gatewayLn.Addr().String()
}

// OpsAddr returns the bound operations address, or "" when the operations
// server is disabled.
func (a *App) OpsAddr() string {
	if a.opsLn == nil {
		return ""
	}
	return a.opsLn.Addr().String()
}

// Run serves the gateway and operations listeners and blocks until ctx is
// cancelled or a server fails. On cancellation both servers drain in-flight
// requests before Run returns ctx's error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("gateway listening", "addr", a.Addr(), "tls", a.cfg.Server.TLS != nil)
		if err := a.serveGateway(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: gateway server: %w", err)
		}
		return nil
	})

	if a.opsSrv != nil {
		g.Go(func() error {
			slog.Info("operations server listening", "addr", a.OpsAddr())
			if err := a.opsSrv.Serve(a.opsLn); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: operations server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		a.janitor(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		drain, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := a.gatewaySrv.Shutdown(drain); err != nil {
			slog.Warn("gateway drain", "err", err)
		}
		if a.opsSrv != nil {
			if err := a.opsSrv.Shutdown(drain); err != nil {
				slog.Warn("operations drain", "err", err)
			}
		}
		return gctx.Err()
	})

	return g.Wait()
}

func (a *App) serveGateway() error {
	if t := a.cfg.Server.TLS; t != nil {
		return a.gatewaySrv.ServeTLS(a.gatewayLn, t.CertFile, t.KeyFile)
	}
	return a.gatewaySrv.Serve(a.gatewayLn)
}

// janitor periodically prunes idle capture sessions and refreshes the
// active-session gauge.
func (a *App) janitor(ctx context.Context) {
	interval := a.cfg.Session.PruneInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if maxIdle := a.cfg.Session.IdleTimeout(); maxIdle > 0 {
				if n := a.store.PruneIdle(maxIdle); n > 0 {
					slog.Info("pruned idle capture sessions", "count", n)
				}
			}
			a.metrics.RecordActiveSessions(ctx, a.store.Active())
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. Cancel Run's context
// first; Run drains the HTTP servers on its way out. Shutdown respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Unbind the listeners. Run's drain already closed them when it
		// served; a second close is a no-op.
		if a.gatewayLn != nil {
			_ = a.gatewayLn.Close()
		}
		if a.opsLn != nil {
			_ = a.opsLn.Close()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
