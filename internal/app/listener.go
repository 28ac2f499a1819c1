package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/MrWong99/voxcap/internal/capture"
	"github.com/MrWong99/voxcap/internal/cliplog"
	"github.com/MrWong99/voxcap/internal/observe"
	"github.com/MrWong99/voxcap/internal/resilience"
	"github.com/MrWong99/voxcap/internal/transcript"
	"github.com/MrWong99/voxcap/pkg/audio/wav"
	"github.com/MrWong99/voxcap/pkg/clock"
	"github.com/MrWong99/voxcap/pkg/device"
	"github.com/MrWong99/voxcap/pkg/provider/stt"
)

// ErrCaptureActive is returned by [Listener.Listen] while another capture
// request is running on the same device.
var ErrCaptureActive = errors.New("app: a capture is already active")

// Result summarises one capture request. It is the response body of
// POST /v1/listen and the output of the listen MCP tool.
type Result struct {
	SessionID  string   `json:"session_id"`
	StopReason string   `json:"stop_reason"`
	DurationMS int64    `json:"duration_ms"`
	Stages     []string `json:"stages"`
	Path       string   `json:"path,omitempty"`
	Transcript string   `json:"transcript,omitempty"`
	Provider   string   `json:"provider,omitempty"`

	// Corrections lists keyword substitutions applied to Transcript.
	Corrections []transcript.Correction `json:"corrections,omitempty"`

	// Error holds the upload or transcription failure. The clip itself was
	// still captured and logged.
	Error string `json:"error,omitempty"`
}

// ListenerConfig holds the dependencies of a [Listener].
type ListenerConfig struct {
	// Capture is the initial capture configuration.
	Capture capture.Config

	// Input is the device captures run against. Required.
	Input device.Input

	// Transcriber turns finished clips into text. Nil disables
	// transcription.
	Transcriber stt.Provider

	// Store receives one provenance entry per capture. Required.
	Store cliplog.Store

	// ClipDir is where processed clips are written. Empty disables writing.
	ClipDir string

	Language string
	Keywords []stt.KeywordBoost

	// Corrector, if set, fixes misheard keywords in transcripts.
	Corrector *transcript.Corrector

	// Upload gates clips before transcription.
	Upload wav.ValidateOptions

	// Retry configures transcription retries.
	Retry resilience.RetryConfig

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Clock defaults to the system clock.
	Clock clock.Clock

	Indicator capture.Indicator

	// SessionIDs overrides session id generation; tests use it for stable
	// file names.
	SessionIDs func() string
}

// Listener runs capture requests against one device, one at a time, and
// carries each finished clip through persistence and transcription.
// All exported methods are safe for concurrent use.
type Listener struct {
	cfg     ListenerConfig
	metrics *observe.Metrics

	mu       sync.RWMutex
	capturer *capture.Capturer

	// busy guards the device across capturer swaps.
	busy sync.Mutex
}

// NewListener validates cfg and returns a ready [Listener].
func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Input == nil {
		return nil, errors.New("app: listener requires an input device")
	}
	if cfg.Store == nil {
		return nil, errors.New("app: listener requires a clip log")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.ClipDir != "" {
		if err := os.MkdirAll(cfg.ClipDir, 0o755); err != nil {
			return nil, fmt.Errorf("app: create clip dir: %w", err)
		}
	}
	l := &Listener{cfg: cfg, metrics: cfg.Metrics}
	c, err := l.newCapturer(cfg.Capture)
	if err != nil {
		return nil, err
	}
	l.capturer = c
	return l, nil
}

func (l *Listener) newCapturer(cfg capture.Config) (*capture.Capturer, error) {
	opts := []capture.Option{
		capture.WithClock(l.cfg.Clock),
		capture.WithStageObserver(func(stage string, changed bool) {
			l.metrics.RecordStage(context.Background(), stage, changed)
		}),
	}
	if l.cfg.Indicator != nil {
		opts = append(opts, capture.WithIndicator(l.cfg.Indicator))
	}
	if l.cfg.SessionIDs != nil {
		opts = append(opts, capture.WithSessionIDs(l.cfg.SessionIDs))
	}
	c, err := capture.NewCapturer(cfg, l.cfg.Input, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: capture config: %w", err)
	}
	return c, nil
}

// CaptureConfig returns the configuration the next capture will use.
func (l *Listener) CaptureConfig() capture.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.capturer.Config()
}

// UpdateCaptureConfig replaces the capture configuration. A running capture
// finishes with the configuration it started with.
func (l *Listener) UpdateCaptureConfig(cfg capture.Config) error {
	c, err := l.newCapturer(cfg)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.capturer = c
	l.mu.Unlock()
	return nil
}

// Recent returns up to limit clip log entries, newest first.
func (l *Listener) Recent(ctx context.Context, limit int) ([]cliplog.Entry, error) {
	return l.cfg.Store.Recent(ctx, limit)
}

// Listen runs one capture request: capture, write the clip, validate and
// transcribe it, and record its provenance. It returns [ErrCaptureActive]
// without touching the device if a capture is already running. A cancelled
// ctx returns the partial result together with the context error.
func (l *Listener) Listen(ctx context.Context) (res *Result, err error) {
	if !l.busy.TryLock() {
		return nil, ErrCaptureActive
	}
	defer l.busy.Unlock()

	l.metrics.ActiveCaptures.Add(ctx, 1)
	defer l.metrics.ActiveCaptures.Add(ctx, -1)

	ctx, span := observe.StartSpan(ctx, "voxcap.listen")
	defer func() { observe.EndSpan(span, err) }()

	l.mu.RLock()
	c := l.capturer
	l.mu.RUnlock()

	clip, capErr := c.Capture(ctx)
	if errors.Is(capErr, capture.ErrBusy) {
		return nil, ErrCaptureActive
	}
	if clip == nil {
		return nil, capErr
	}
	l.metrics.RecordCapture(ctx, observe.CaptureRecord{
		StopReason: clip.StopReason.String(),
		Captured:   clip.Captured,
		OnsetAfter: clip.OnsetAfter,
		ReadErrors: clip.ReadErrors,
	})

	log := observe.Logger(ctx).With("session_id", clip.SessionID)
	entry := newEntry(clip)
	entry.TraceID = observe.CorrelationID(ctx)

	var fixes []transcript.Correction
	if capErr == nil && !clip.Empty() {
		var perr error
		if fixes, perr = l.process(ctx, clip, &entry, log); perr != nil {
			entry.Error = perr.Error()
		}
	}
	if capErr != nil && entry.Error == "" {
		entry.Error = capErr.Error()
	}

	// The provenance entry outlives a cancelled request.
	if err := l.cfg.Store.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn("app: clip log append failed", "error", err)
	}
	res = newResult(entry)
	res.Corrections = fixes
	return res, capErr
}

// process writes the clip to disk and transcribes it, returning any keyword
// corrections. A returned error is recorded on the entry; the capture itself
// still succeeded.
func (l *Listener) process(ctx context.Context, clip *capture.Clip, entry *cliplog.Entry, log *slog.Logger) ([]transcript.Correction, error) {
	if l.cfg.ClipDir != "" {
		path := filepath.Join(l.cfg.ClipDir, clipFileName(clip))
		if err := wav.WriteFile(path, clip.Buffer); err != nil {
			log.Error("app: write clip", "path", path, "error", err)
			return nil, fmt.Errorf("write clip: %w", err)
		}
		entry.Path = path
	}

	if l.cfg.Transcriber == nil {
		return nil, nil
	}
	if clip.StopReason == capture.StopNoSpeech {
		log.Debug("app: no speech, skipping transcription")
		return nil, nil
	}

	if _, err := wav.Validate(wav.Encode(clip.Buffer), l.cfg.Upload); err != nil {
		reason := "invalid"
		if errors.Is(err, wav.ErrTooShort) {
			reason = "too_short"
		}
		l.metrics.RecordUploadRejected(ctx, reason)
		log.Info("app: clip rejected for upload", "reason", reason, "error", err)
		return nil, fmt.Errorf("upload rejected: %w", err)
	}

	tr, err := l.transcribe(ctx, clip, log)
	if err != nil {
		return nil, err
	}
	var fixes []transcript.Correction
	if l.cfg.Corrector != nil {
		tr.Text, fixes = l.cfg.Corrector.Correct(tr.Text)
		if len(fixes) > 0 {
			log.Debug("app: keywords corrected", "corrections", len(fixes))
		}
	}
	entry.Transcript = tr.Text
	entry.Provider = tr.Provider
	return fixes, nil
}

func (l *Listener) transcribe(ctx context.Context, clip *capture.Clip, log *slog.Logger) (tr stt.Transcript, err error) {
	ctx, span := observe.StartSpan(ctx, "voxcap.transcribe")
	defer func() { observe.EndSpan(span, err) }()

	req := stt.Request{
		Audio:    clip.Buffer,
		Language: l.cfg.Language,
		Keywords: l.cfg.Keywords,
	}
	retry := l.cfg.Retry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("app: transcription failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	start := time.Now()
	tr, err = resilience.Retry(ctx, retry, func(ctx context.Context) (stt.Transcript, error) {
		return l.cfg.Transcriber.Transcribe(ctx, req)
	})
	l.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		log.Error("app: transcription failed", "error", err)
		return stt.Transcript{}, fmt.Errorf("transcribe: %w", err)
	}
	if tr.Provider == "" {
		tr.Provider = l.cfg.Transcriber.Name()
	}
	log.Info("app: clip transcribed", "provider", tr.Provider, "chars", len(tr.Text))
	return tr, nil
}

func clipFileName(clip *capture.Clip) string {
	if clip.Destination != "" {
		return filepath.Base(clip.Destination)
	}
	return clip.SessionID + ".wav"
}

func newEntry(clip *capture.Clip) cliplog.Entry {
	return cliplog.Entry{
		SessionID:      clip.SessionID,
		Destination:    clip.Destination,
		StopReason:     clip.StopReason.String(),
		Duration:       clip.Duration(),
		Captured:       clip.Captured,
		OnsetAfter:     clip.OnsetAfter,
		Padded:         clip.Padded,
		StartThreshold: clip.Thresholds.Start,
		KeepThreshold:  clip.Thresholds.Keep,
		Baseline:       clip.Thresholds.Baseline,
		Calibrated:     clip.Thresholds.Calibrated,
		Stages:         clip.Stages,
	}
}

func newResult(e cliplog.Entry) *Result {
	stages := e.Stages
	if stages == nil {
		stages = []string{}
	}
	return &Result{
		SessionID:  e.SessionID,
		StopReason: e.StopReason,
		DurationMS: e.Duration.Milliseconds(),
		Stages:     stages,
		Path:       e.Path,
		Transcript: e.Transcript,
		Provider:   e.Provider,
		Error:      e.Error,
	}
}
