package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxcap/internal/capture"
	"github.com/MrWong99/voxcap/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want []string // substrings that must appear in the error
	}{
		{
			name: "missing device",
			yaml: "server:\n  log_level: info\n",
			want: []string{"device.name is required"},
		},
		{
			name: "bad log level",
			yaml: "device: {name: mock}\nserver:\n  log_level: loud\n",
			want: []string{`server.log_level "loud"`},
		},
		{
			name: "tls missing key",
			yaml: "device: {name: mock}\nserver:\n  tls:\n    cert_file: cert.pem\n",
			want: []string{"cert_file and key_file"},
		},
		{
			name: "unknown preset",
			yaml: "device: {name: mock}\ncapture:\n  preset: studio\n",
			want: []string{`capture.preset "studio"`},
		},
		{
			name: "capture validation joined",
			yaml: "device: {name: mock}\ncapture:\n  keep_margin: 2\n  no_speech_timeout: 200s\n",
			want: []string{"keep_margin", "no_speech_timeout"},
		},
		{
			name: "file log without path",
			yaml: "device: {name: mock}\nstorage:\n  clip_log: file\n",
			want: []string{"storage.log_path is required"},
		},
		{
			name: "postgres log without dsn",
			yaml: "device: {name: mock}\nstorage:\n  clip_log: postgres\n",
			want: []string{"storage.postgres_dsn is required"},
		},
		{
			name: "bad clip log",
			yaml: "device: {name: mock}\nstorage:\n  clip_log: s3\n",
			want: []string{`storage.clip_log "s3"`},
		},
		{
			name: "fallback without primary",
			yaml: "device: {name: mock}\ntranscription:\n  fallbacks:\n    - name: openai\n",
			want: []string{"fallbacks require transcription.primary"},
		},
		{
			name: "duplicate fallback",
			yaml: "device: {name: mock}\ntranscription:\n  primary: {name: whisper}\n  fallbacks:\n    - name: whisper\n",
			want: []string{`"whisper" is a duplicate of transcription.primary`},
		},
		{
			name: "retry delays inverted",
			yaml: "device: {name: mock}\ntranscription:\n  retry:\n    base_delay: 5s\n    max_delay: 1s\n",
			want: []string{"base_delay (5s) must not exceed max_delay (1s)"},
		},
		{
			name: "empty keyword",
			yaml: "device: {name: mock}\ntranscription:\n  keywords:\n    - boost: 2\n",
			want: []string{"keywords[0].keyword is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, sub := range tt.want {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("error should contain %q, got: %v", sub, err)
				}
			}
		})
	}
}

func TestValidate_CaptureErrorsWrapSentinel(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("device: {name: mock}\ncapture:\n  channels: 2\n"))
	if !errors.Is(err, capture.ErrConfigInvalid) {
		t.Fatalf("err = %v, want wrapping capture.ErrConfigInvalid", err)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("device: {name: mock}\ncapture:\n  sensitivity: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "sensitivity") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("device: {name: mock}\ncapture:\n  poll_interval: soon\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "voxcap.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.Name != "replay" {
		t.Errorf("device.name = %q", cfg.Device.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}
