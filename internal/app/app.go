// Package app wires the voxcap subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates the clip log, the
// transcription chain and the [Listener] from the config; Handler exposes
// them over HTTP and MCP; Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithClipLog,
// WithMetrics, WithClock). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxcap/internal/cliplog"
	"github.com/MrWong99/voxcap/internal/config"
	"github.com/MrWong99/voxcap/internal/health"
	"github.com/MrWong99/voxcap/internal/observe"
	"github.com/MrWong99/voxcap/internal/resilience"
	"github.com/MrWong99/voxcap/internal/transcript"
	"github.com/MrWong99/voxcap/pkg/audio/wav"
	"github.com/MrWong99/voxcap/pkg/clock"
	"github.com/MrWong99/voxcap/pkg/device"
	"github.com/MrWong99/voxcap/pkg/provider/stt"
)

// Providers holds the constructed device and transcription backends.
// Populated by main.go via the config registry.
type Providers struct {
	// Device is the input device. Required.
	Device device.Device

	// STT lists the transcription backends in failover order; the first is
	// the primary. Empty disables transcription.
	STT []stt.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	version   string

	metrics     *observe.Metrics
	clipLog     cliplog.Store
	clk         clock.Clock
	sessionIDs  func() string
	transcriber *resilience.STTFallback
	listener    *Listener
	health      *health.Handler
	mcpServer   *mcpsdk.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithClipLog injects a clip log instead of creating one from config.
func WithClipLog(s cliplog.Store) Option {
	return func(a *App) { a.clipLog = s }
}

// WithMetrics injects the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithClock sets the clock captures and retries run on.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clk = c }
}

// WithSessionIDs overrides capture session id generation.
func WithSessionIDs(fn func() string) Option {
	return func(a *App) { a.sessionIDs = fn }
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// New creates an App by wiring all subsystems together. The providers come
// from main.go (populated via the config registry). The App takes ownership
// of them: Shutdown closes the device and any closable backend.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Device == nil {
		return nil, fmt.Errorf("app: an input device is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.clk == nil {
		a.clk = clock.Real{}
	}

	a.closers = append(a.closers, providers.Device.Close)
	for _, p := range providers.STT {
		if c, ok := p.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	// ── 1. Clip log ──────────────────────────────────────────────────────
	if err := a.initClipLog(ctx); err != nil {
		return nil, fmt.Errorf("app: init clip log: %w", err)
	}

	// ── 2. Transcription chain ───────────────────────────────────────────
	a.transcriber = newTranscriber(providers.STT, cfg.Transcription.CircuitBreaker, a.metrics)

	// ── 3. Listener ──────────────────────────────────────────────────────
	if err := a.initListener(); err != nil {
		return nil, fmt.Errorf("app: init listener: %w", err)
	}

	// ── 4. Health + MCP ──────────────────────────────────────────────────
	checkers := []health.Checker{health.DeviceChecker(providers.Device)}
	if a.transcriber != nil {
		checkers = append(checkers, health.TranscriberChecker(a.transcriber.States))
	}
	a.health = health.New(checkers...)
	a.mcpServer = NewMCPServer(a.listener, a.version)

	return a, nil
}

// initClipLog creates the configured clip log unless one was injected.
func (a *App) initClipLog(ctx context.Context) error {
	if a.clipLog != nil {
		return nil
	}
	st := a.cfg.Storage
	switch st.ClipLog {
	case config.ClipLogFile:
		a.clipLog = cliplog.NewFileStore(st.LogPath)
	case config.ClipLogPostgres:
		pool, err := pgxpool.New(ctx, st.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		store := cliplog.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return err
		}
		a.clipLog = store
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
	default:
		a.clipLog = cliplog.NewMemStore(st.MemoryCapacity)
	}
	slog.Info("clip log ready", "kind", st.ClipLog)
	return nil
}

func (a *App) initListener() error {
	cc, err := a.cfg.Capture.Resolve()
	if err != nil {
		return err
	}
	tc := a.cfg.Transcription
	lcfg := ListenerConfig{
		Capture:  cc,
		Input:    a.providers.Device,
		Store:    a.clipLog,
		ClipDir:  a.cfg.Storage.ClipDir,
		Language: tc.Language,
		Upload: wav.ValidateOptions{
			MinBytes:    tc.MinUploadBytes,
			MinDuration: tc.MinUploadDuration,
		},
		Retry: resilience.RetryConfig{
			MaxAttempts: tc.Retry.MaxAttempts,
			BaseDelay:   tc.Retry.BaseDelay,
			MaxDelay:    tc.Retry.MaxDelay,
			Clock:       a.clk,
		},
		Metrics:    a.metrics,
		Clock:      a.clk,
		SessionIDs: a.sessionIDs,
	}
	words := make([]string, 0, len(tc.Keywords))
	for _, kw := range tc.Keywords {
		lcfg.Keywords = append(lcfg.Keywords, stt.KeywordBoost{Keyword: kw.Keyword, Boost: kw.Boost})
		words = append(words, kw.Keyword)
	}
	if tc.CorrectKeywords && len(words) > 0 {
		lcfg.Corrector = transcript.New(words)
	}
	// A nil *STTFallback must not become a non-nil interface.
	if a.transcriber != nil {
		lcfg.Transcriber = a.transcriber
	}
	a.listener, err = NewListener(lcfg)
	return err
}

// Listener returns the capture listener.
func (a *App) Listener() *Listener { return a.listener }

// MCPServer returns the MCP tool server, e.g. to serve it over stdio.
func (a *App) MCPServer() *mcpsdk.Server { return a.mcpServer }

// Handler returns the HTTP handler serving the capture API, the health
// probes and, when enabled, the MCP endpoint at /mcp. Every route runs
// behind the tracing and metrics middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	RegisterAPI(mux, a.listener)
	a.health.Register(mux)
	if a.cfg.Server.MCP {
		mux.Handle("/mcp", MCPHandler(a.mcpServer))
	}
	return observe.Middleware(a.metrics)(mux)
}

// ApplyConfig applies the hot-reloadable part of a changed configuration.
// Capture parameters take effect with the next capture request; sections
// listed in d.RestartRequired are only logged.
func (a *App) ApplyConfig(newCfg *config.Config, d config.ConfigDiff) error {
	if d.CaptureChanged {
		cc, err := newCfg.Capture.Resolve()
		if err != nil {
			return fmt.Errorf("app: apply capture config: %w", err)
		}
		if err := a.listener.UpdateCaptureConfig(cc); err != nil {
			return err
		}
		slog.Info("capture config updated", "preset", newCfg.Capture.Preset)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
	return nil
}

// Shutdown tears down all subsystems in init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

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
