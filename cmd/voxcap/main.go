// Command voxcap is the main entry point for the voxcap capture server.
//
// By default it serves the HTTP capture API. The -once flag runs a single
// capture request and prints the result as JSON, -mcp-stdio serves the MCP
// tools over stdin/stdout, and -process runs the post-processing pipeline
// over existing WAV files.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxcap/internal/app"
	"github.com/MrWong99/voxcap/internal/capture"
	"github.com/MrWong99/voxcap/internal/config"
	"github.com/MrWong99/voxcap/internal/observe"
	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/audio/dsp"
	"github.com/MrWong99/voxcap/pkg/audio/wav"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	once := flag.Bool("once", false, "run a single capture request, print the result as JSON and exit")
	process := flag.Bool("process", false, "post-process the WAV files given as arguments and exit")
	mcpStdio := flag.Bool("mcp-stdio", false, "serve the MCP tools over stdin/stdout instead of HTTP")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Offline processing ────────────────────────────────────────────────────
	if *process {
		return runProcess(ctx, *configPath, flag.Args())
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxcap: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxcap: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("voxcap starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion:   version,
		TraceSampleRatio: cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithVersion(version))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		closeProviders(providers)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(sctx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	switch {
	case *once:
		return runOnce(ctx, application)
	case *mcpStdio:
		slog.Info("serving MCP over stdio")
		if err := application.MCPServer().Run(ctx, &mcpsdk.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp server error", "err", err)
			return 1
		}
		return 0
	}

	printStartupSummary(os.Stderr, cfg)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, newCfg *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if err := application.ApplyConfig(newCfg, d); err != nil {
			slog.Error("failed to apply config change", "err", err)
		}
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	if err := serve(ctx, cfg.Server, application.Handler()); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// serve runs the HTTP server until ctx is cancelled, then drains it.
func serve(ctx context.Context, sc config.ServerConfig, h http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              sc.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready, press Ctrl+C to shut down", "addr", sc.ListenAddr, "tls", sc.TLS != nil)
		var err error
		if sc.TLS != nil {
			err = srv.ListenAndServeTLS(sc.TLS.CertFile, sc.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func runOnce(ctx context.Context, a *app.App) int {
	res, err := a.Listener().Listen(ctx)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(res); encErr != nil {
		slog.Error("failed to write result", "err", encErr)
		return 1
	}
	if err != nil || res.Error != "" {
		return 1
	}
	return 0
}

// runProcess post-processes WAV files with the configured capture
// parameters, falling back to the defaults when there is no config file.
// Thresholds are the configured floors since there is no calibration.
func runProcess(ctx context.Context, configPath string, paths []string) int {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "voxcap: -process needs at least one WAV file")
		return 2
	}
	cc := capture.DefaultConfig()
	cfg, err := config.Load(configPath)
	switch {
	case err == nil:
		if cc, err = cfg.Capture.Resolve(); err != nil {
			fmt.Fprintf(os.Stderr, "voxcap: %v\n", err)
			return 1
		}
	case errors.Is(err, os.ErrNotExist):
		slog.Debug("no config file, processing with defaults", "config", configPath)
	default:
		fmt.Fprintf(os.Stderr, "voxcap: %v\n", err)
		return 1
	}

	bufs := make([]audio.Buffer, len(paths))
	for i, p := range paths {
		if bufs[i], err = wav.ReadFile(p); err != nil {
			fmt.Fprintf(os.Stderr, "voxcap: %v\n", err)
			return 1
		}
	}

	pipe := cc.Pipeline(capture.Thresholds{Start: cc.StartFloor, Keep: cc.KeepFloor})
	results, err := dsp.ProcessBatch(ctx, pipe, bufs, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxcap: %v\n", err)
		return 1
	}
	for i, res := range results {
		out := processedPath(paths[i])
		if err := wav.WriteFile(out, res.Buffer); err != nil {
			fmt.Fprintf(os.Stderr, "voxcap: %v\n", err)
			return 1
		}
		fmt.Printf("%s -> %s (applied: %s)\n", paths[i], out, strings.Join(res.Applied, ", "))
	}
	return 0
}

// processedPath maps "take.wav" to "take.processed.wav".
func processedPath(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + ".processed.wav"
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         voxcap — startup summary      ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "Device", cfg.Device.Name, "")
	printProvider(w, "STT", cfg.Transcription.Primary.Name, cfg.Transcription.Primary.Model)
	fmt.Fprintf(w, "║  Fallbacks       : %-19d ║\n", len(cfg.Transcription.Fallbacks))
	preset := cfg.Capture.Preset
	if preset == "" {
		preset = capture.PresetDefault
	}
	fmt.Fprintf(w, "║  Preset          : %-19s ║\n", preset)
	fmt.Fprintf(w, "║  Clip log        : %-19s ║\n", cfg.Storage.ClipLog)
	mcp := "(disabled)"
	if cfg.Server.MCP {
		mcp = "/mcp"
	}
	fmt.Fprintf(w, "║  MCP             : %-19s ║\n", mcp)
	fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
