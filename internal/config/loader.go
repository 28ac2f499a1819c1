package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known implementation names per kind.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"device": {"replay", "portaudio", "mock"},
	"stt":    {"whisper", "whisper-native", "openai", "deepgram"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected. An empty document yields
// the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found, including
// every problem reported by the resolved capture configuration.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if r := cfg.Server.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("server.trace_sample_ratio %v is out of range [0, 1]", r))
	}

	// Device
	if cfg.Device.Name == "" {
		errs = append(errs, errors.New("device.name is required"))
	}
	validateProviderName("device", cfg.Device.Name)

	// Capture
	if cc, err := cfg.Capture.Resolve(); err != nil {
		errs = append(errs, err)
	} else if err := cc.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Storage
	if cfg.Storage.ClipLog != "" && !cfg.Storage.ClipLog.IsValid() {
		errs = append(errs, fmt.Errorf("storage.clip_log %q is invalid; valid values: memory, file, postgres", cfg.Storage.ClipLog))
	}
	if cfg.Storage.ClipLog == ClipLogFile && cfg.Storage.LogPath == "" {
		errs = append(errs, errors.New("storage.log_path is required when clip_log is file"))
	}
	if cfg.Storage.ClipLog == ClipLogPostgres && cfg.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn is required when clip_log is postgres"))
	}

	// Transcription
	tc := cfg.Transcription
	if tc.Primary.Name == "" {
		if len(tc.Fallbacks) > 0 {
			errs = append(errs, errors.New("transcription.fallbacks require transcription.primary"))
		} else {
			slog.Warn("transcription.primary is not configured; clips will be captured but not transcribed")
		}
	}
	validateProviderName("stt", tc.Primary.Name)
	seen := map[string]string{tc.Primary.Name: "transcription.primary"}
	for i, fb := range tc.Fallbacks {
		prefix := fmt.Sprintf("transcription.fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		validateProviderName("stt", fb.Name)
		if prev, ok := seen[fb.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of %s", prefix, fb.Name, prev))
		}
		seen[fb.Name] = prefix
	}
	for i, kw := range tc.Keywords {
		if kw.Keyword == "" {
			errs = append(errs, fmt.Errorf("transcription.keywords[%d].keyword is required", i))
		}
	}
	if tc.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("transcription.retry.max_attempts must not be negative, got %d", tc.Retry.MaxAttempts))
	}
	if tc.Retry.BaseDelay < 0 || tc.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("transcription.retry delays must not be negative"))
	}
	if tc.Retry.MaxDelay > 0 && tc.Retry.BaseDelay > tc.Retry.MaxDelay {
		errs = append(errs, fmt.Errorf("transcription.retry.base_delay (%v) must not exceed max_delay (%v)", tc.Retry.BaseDelay, tc.Retry.MaxDelay))
	}
	if tc.CircuitBreaker.MaxFailures < 0 || tc.CircuitBreaker.HalfOpenMax < 0 || tc.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, errors.New("transcription.circuit_breaker values must not be negative"))
	}
	if tc.MinUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("transcription.min_upload_bytes must not be negative, got %d", tc.MinUploadBytes))
	}
	if tc.MinUploadDuration < 0 {
		errs = append(errs, fmt.Errorf("transcription.min_upload_duration must not be negative, got %v", tc.MinUploadDuration))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// OptString extracts a string value from an Options map. Returns "" if the
// key is absent or the value is not a string.
func OptString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// OptBool extracts a boolean value from an Options map. Returns def if the
// key is absent or the value is not a boolean.
func OptBool(opts map[string]any, key string, def bool) bool {
	if b, ok := opts[key].(bool); ok {
		return b
	}
	return def
}

// OptInt extracts an integer value from an Options map. YAML integers decode
// as int; floats with no fractional part are accepted too. Returns def
// otherwise.
func OptInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}
