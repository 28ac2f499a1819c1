package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxcap/internal/capture"
	"github.com/MrWong99/voxcap/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9000"
  log_level: debug
  mcp: true
device:
  name: replay
  options:
    path: testdata/hello.wav
    loop: true
capture:
  preset: long-form
  calibration_window: 0s
  poll_interval: 20ms
  short_trail: 900ms
  noise_gate: true
  agc:
    target_rms: 5000
storage:
  clip_dir: /var/lib/voxcap/clips
  clip_log: file
  log_path: /var/lib/voxcap/clips.jsonl
transcription:
  language: de
  primary:
    name: whisper
    base_url: http://localhost:8081
  fallbacks:
    - name: openai
      api_key: sk-test
      model: whisper-1
  keywords:
    - keyword: Nao
      boost: 5
  correct_keywords: true
  retry:
    max_attempts: 3
    base_delay: 200ms
    max_delay: 2s
  min_upload_bytes: 1000
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.LogLevel != config.LogDebug || !cfg.Server.MCP {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Device.Name != "replay" || config.OptString(cfg.Device.Options, "path") != "testdata/hello.wav" {
		t.Errorf("device = %+v", cfg.Device)
	}
	if !config.OptBool(cfg.Device.Options, "loop", false) {
		t.Error("device.options.loop = false, want true")
	}
	if cfg.Storage.ClipLog != config.ClipLogFile {
		t.Errorf("storage.clip_log = %q", cfg.Storage.ClipLog)
	}
	tc := cfg.Transcription
	if tc.Primary.Name != "whisper" || len(tc.Fallbacks) != 1 || tc.Fallbacks[0].APIKey != "sk-test" {
		t.Errorf("transcription = %+v", tc)
	}
	if tc.Retry.BaseDelay != 200*time.Millisecond || tc.Retry.MaxAttempts != 3 {
		t.Errorf("retry = %+v", tc.Retry)
	}
	if tc.MinUploadBytes != 1000 {
		t.Errorf("min_upload_bytes = %d, want 1000", tc.MinUploadBytes)
	}
	if tc.MinUploadDuration != config.DefaultMinUploadDuration {
		t.Errorf("min_upload_duration = %v, want default", tc.MinUploadDuration)
	}
	if len(tc.Keywords) != 1 || tc.Keywords[0].Boost != 5 || !tc.CorrectKeywords {
		t.Errorf("keywords = %+v, correct = %v", tc.Keywords, tc.CorrectKeywords)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("device:\n  name: mock\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Storage.ClipDir != config.DefaultClipDir || cfg.Storage.ClipLog != config.ClipLogMemory {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.MemoryCapacity != config.DefaultMemoryCapacity {
		t.Errorf("memory_capacity = %d", cfg.Storage.MemoryCapacity)
	}
	if cfg.Transcription.MinUploadBytes != config.DefaultMinUploadBytes {
		t.Errorf("min_upload_bytes = %d", cfg.Transcription.MinUploadBytes)
	}
}

func TestCaptureResolve_AppliesPresetAndOverrides(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := cfg.Capture.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want, _ := capture.Preset(capture.PresetLongForm)
	want.CalibrationWindow = 0
	want.PollInterval = 20 * time.Millisecond
	want.ShortTrail = 900 * time.Millisecond
	want.NoiseGate = true
	want.AGCTargetRMS = 5000

	if got != want {
		t.Errorf("Resolve() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestCaptureResolve(t *testing.T) {
	t.Parallel()
	yes, no := true, false
	zero := time.Duration(0)

	tests := []struct {
		name  string
		in    config.CaptureConfig
		check func(t *testing.T, c capture.Config)
	}{
		{
			name: "empty is default preset",
			in:   config.CaptureConfig{},
			check: func(t *testing.T, c capture.Config) {
				if c != capture.DefaultConfig() {
					t.Errorf("got %+v, want DefaultConfig()", c)
				}
			},
		},
		{
			name: "nao preset",
			in:   config.CaptureConfig{Preset: capture.PresetNAO},
			check: func(t *testing.T, c capture.Config) {
				if c.CalibrationWindow != 0 || !c.PeakNormalize || c.AGC {
					t.Errorf("nao preset not applied: %+v", c)
				}
			},
		},
		{
			name: "explicit zero min clip",
			in:   config.CaptureConfig{MinClipDuration: &zero},
			check: func(t *testing.T, c capture.Config) {
				if c.MinClipDuration != 0 {
					t.Errorf("MinClipDuration = %v, want 0", c.MinClipDuration)
				}
			},
		},
		{
			name: "disable pre-emphasis",
			in:   config.CaptureConfig{PreEmphasis: config.PreEmphasisConfig{Enabled: &no}},
			check: func(t *testing.T, c capture.Config) {
				if c.PreEmphasis {
					t.Error("PreEmphasis still enabled")
				}
			},
		},
		{
			name: "peak normalize replaces agc",
			in:   config.CaptureConfig{PeakNormalize: &yes},
			check: func(t *testing.T, c capture.Config) {
				if !c.PeakNormalize || c.AGC {
					t.Errorf("PeakNormalize=%v AGC=%v, want true/false", c.PeakNormalize, c.AGC)
				}
				if err := c.Validate(); err != nil {
					t.Errorf("Validate: %v", err)
				}
			},
		},
		{
			name: "explicit agc and peak normalize conflict",
			in:   config.CaptureConfig{PeakNormalize: &yes, AGC: config.AGCConfig{Enabled: &yes}},
			check: func(t *testing.T, c capture.Config) {
				if err := c.Validate(); err == nil {
					t.Error("expected validation error for agc + peak_normalize")
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := tt.in.Resolve()
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestCaptureResolve_UnknownPreset(t *testing.T) {
	t.Parallel()
	_, err := config.CaptureConfig{Preset: "studio"}.Resolve()
	if err == nil || !strings.Contains(err.Error(), `"studio"`) {
		t.Fatalf("err = %v, want unknown preset error", err)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q.IsValid() = false", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`"trace".IsValid() = true`)
	}
}

func TestOptHelpers(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"s": "x", "b": true, "i": 3, "f": 4.0, "frac": 4.5}

	if got := config.OptString(opts, "s"); got != "x" {
		t.Errorf("OptString = %q", got)
	}
	if got := config.OptString(opts, "b"); got != "" {
		t.Errorf("OptString(non-string) = %q", got)
	}
	if got := config.OptString(nil, "s"); got != "" {
		t.Errorf("OptString(nil) = %q", got)
	}
	if !config.OptBool(opts, "b", false) || !config.OptBool(opts, "missing", true) {
		t.Error("OptBool mismatch")
	}
	tests := []struct {
		key  string
		want int
	}{
		{"i", 3},
		{"f", 4},
		{"frac", 7},
		{"missing", 7},
	}
	for _, tt := range tests {
		if got := config.OptInt(opts, tt.key, 7); got != tt.want {
			t.Errorf("OptInt(%q) = %d, want %d", tt.key, got, tt.want)
		}
	}
}
