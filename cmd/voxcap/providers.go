package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/voxcap/internal/app"
	"github.com/MrWong99/voxcap/internal/config"
	"github.com/MrWong99/voxcap/pkg/clock"
	"github.com/MrWong99/voxcap/pkg/device"
	devicemock "github.com/MrWong99/voxcap/pkg/device/mock"
	"github.com/MrWong99/voxcap/pkg/device/replay"
	"github.com/MrWong99/voxcap/pkg/provider/stt"
	"github.com/MrWong99/voxcap/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxcap/pkg/provider/stt/openai"
	"github.com/MrWong99/voxcap/pkg/provider/stt/whisper"
)

// registerBuiltinProviders wires all built-in factories into reg. Each
// factory receives a config.ProviderEntry and constructs the implementation.
// Build-tagged devices add themselves via extraDevices.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Devices ───────────────────────────────────────────────────────────────

	reg.RegisterDevice("replay", func(entry config.ProviderEntry) (device.Device, error) {
		path := config.OptString(entry.Options, "path")
		if path == "" {
			return nil, errors.New("replay: options.path is required")
		}
		return replay.Open(path, replay.WithLoop(config.OptBool(entry.Options, "loop", false)))
	})

	// mock plays a scripted energy trace; useful for demos without a
	// microphone.
	reg.RegisterDevice("mock", func(entry config.ProviderEntry) (device.Device, error) {
		trace, err := optFloats(entry.Options, "trace")
		if err != nil {
			return nil, err
		}
		step := time.Duration(config.OptInt(entry.Options, "step_ms", 100)) * time.Millisecond
		return &devicemock.Device{Clock: clock.Real{}, Step: step, Trace: trace}, nil
	})

	for name, factory := range extraDevices {
		reg.RegisterDevice(name, factory)
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rate := config.OptInt(entry.Options, "sample_rate", 0); rate > 0 {
			opts = append(opts, whisper.WithSampleRate(rate))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = config.OptString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := config.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, openai.WithLanguage(lang))
		}
		if secs := config.OptInt(entry.Options, "timeout_seconds", 0); secs > 0 {
			opts = append(opts, openai.WithTimeout(time.Duration(secs)*time.Second))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := config.OptInt(entry.Options, "sample_rate", 0); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	devices, stts := reg.Names()
	slog.Debug("registered providers", "devices", devices, "stt", stts)
}

// extraDevices holds device factories contributed by build-tagged files.
var extraDevices = map[string]func(config.ProviderEntry) (device.Device, error){}

// buildProviders instantiates the device and transcription backends named in
// cfg. Backends are returned in failover order, primary first. On error,
// anything already created is closed.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	dev, err := reg.CreateDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("create device %q: %w", cfg.Device.Name, err)
	}
	ps.Device = dev
	slog.Info("provider created", "kind", "device", "name", cfg.Device.Name)

	tc := cfg.Transcription
	if tc.Primary.Name == "" {
		return ps, nil
	}
	for _, entry := range append([]config.ProviderEntry{tc.Primary}, tc.Fallbacks...) {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			closeProviders(ps)
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		ps.STT = append(ps.STT, p)
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}
	return ps, nil
}

func closeProviders(ps *app.Providers) {
	if ps.Device != nil {
		_ = ps.Device.Close()
	}
	for _, p := range ps.STT {
		if c, ok := p.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

// optFloats extracts a list of numbers from an Options map. YAML numbers
// decode as int or float64.
func optFloats(opts map[string]any, key string) ([]float64, error) {
	raw, ok := opts[key]
	if !ok {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("options.%s must be a list of numbers", key)
	}
	out := make([]float64, len(list))
	for i, v := range list {
		switch n := v.(type) {
		case int:
			out[i] = float64(n)
		case float64:
			out[i] = n
		default:
			return nil, fmt.Errorf("options.%s[%d] is %T, want a number", key, i, v)
		}
	}
	return out, nil
}
