package capture_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxcap/internal/capture"
	"github.com/MrWong99/voxcap/pkg/audio"
	"github.com/MrWong99/voxcap/pkg/audio/dsp"
	clockmock "github.com/MrWong99/voxcap/pkg/clock/mock"
	"github.com/MrWong99/voxcap/pkg/device"
	devicemock "github.com/MrWong99/voxcap/pkg/device/mock"
)

// testConfig returns a config without calibration so trace index 0 lines
// up with the start of recording.
func testConfig() capture.Config {
	cfg := capture.DefaultConfig()
	cfg.CalibrationWindow = 0
	cfg.PollInterval = 100 * time.Millisecond
	cfg.NoSpeechTimeout = 5 * time.Second
	cfg.HardCap = 10 * time.Second
	cfg.ShortTrail = 600 * time.Millisecond
	return cfg
}

func newCapturer(t *testing.T, cfg capture.Config, dev *devicemock.Device, opts ...capture.Option) *capture.Capturer {
	t.Helper()
	opts = append([]capture.Option{
		capture.WithClock(dev.Clock),
		capture.WithSessionIDs(func() string { return "sess-1" }),
	}, opts...)
	c, err := capture.NewCapturer(cfg, dev, opts...)
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	return c
}

type recordingIndicator struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingIndicator) Listening(context.Context) { r.add("listening") }
func (r *recordingIndicator) Idle(context.Context)      { r.add("idle") }
func (r *recordingIndicator) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestCapture_EndToEnd(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	dev := &devicemock.Device{
		Clock:  clk,
		Origin: clockmock.Epoch,
		Trace:  []float64{0, 0, 5000, 5000, 5000, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	}
	ind := &recordingIndicator{}
	var stageEvents []string
	c := newCapturer(t, testConfig(), dev,
		capture.WithIndicator(ind),
		capture.WithStageObserver(func(stage string, changed bool) { stageEvents = append(stageEvents, stage) }),
	)

	clip, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}

	if clip.StopReason != capture.StopSilence || clip.Err() != nil {
		t.Errorf("stop reason = %v (err %v), want silence_timeout", clip.StopReason, clip.Err())
	}
	if clip.OnsetAfter != 200*time.Millisecond {
		t.Errorf("onset after %v, want 200ms", clip.OnsetAfter)
	}
	if clip.Captured != time.Second {
		t.Errorf("captured %v, want 1s", clip.Captured)
	}
	if clip.SessionID != "sess-1" {
		t.Errorf("session id = %q", clip.SessionID)
	}
	if !strings.HasPrefix(clip.Destination, "rec_") || !strings.HasSuffix(clip.Destination, ".wav") {
		t.Errorf("destination = %q, want rec_*.wav", clip.Destination)
	}
	wantStages := []string{dsp.StageTrim, dsp.StagePreEmphasis, dsp.StageAGC}
	if strings.Join(clip.Stages, ",") != strings.Join(wantStages, ",") {
		t.Errorf("stages = %v, want %v", clip.Stages, wantStages)
	}
	if len(stageEvents) != 3 {
		t.Errorf("observer saw %d stage events, want 3", len(stageEvents))
	}
	// Trimmed to roughly the 300ms of speech.
	if d := clip.Duration(); d < 300*time.Millisecond || d >= 400*time.Millisecond {
		t.Errorf("processed duration = %v, want ≈300ms", d)
	}
	if rms := audio.RMS(clip.Buffer.Samples); math.Abs(rms-dsp.DefaultTargetRMS) > 50 {
		t.Errorf("processed RMS = %.0f, want ≈%.0f after AGC", rms, dsp.DefaultTargetRMS)
	}

	if dev.Recording() {
		t.Error("device still recording after capture")
	}
	if dev.CallCountStart != 1 {
		t.Errorf("Start called %d times, want 1", dev.CallCountStart)
	}
	if dev.CallCountStop < 2 {
		t.Errorf("Stop called %d times, want stop-before-start plus end", dev.CallCountStop)
	}
	if strings.Join(ind.events, ",") != "listening,idle" {
		t.Errorf("indicator events = %v", ind.events)
	}
}

func TestCapture_NoSpeech(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	dev := &devicemock.Device{Clock: clk, Origin: clockmock.Epoch, Tail: 1000}
	c := newCapturer(t, testConfig(), dev)

	clip, err := c.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if clip.StopReason != capture.StopNoSpeech || !errors.Is(clip.Err(), capture.ErrNoSpeech) {
		t.Fatalf("stop reason = %v, want no_speech", clip.StopReason)
	}
	if clip.Captured != 5*time.Second {
		t.Errorf("captured %v, want the 5s no-speech timeout", clip.Captured)
	}
	if clip.OnsetAfter >= 0 {
		t.Errorf("onset after = %v, want negative", clip.OnsetAfter)
	}
	if dev.Recording() {
		t.Error("device still recording")
	}
}

func TestCapture_HardCap(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	dev := &devicemock.Device{Clock: clk, Origin: clockmock.Epoch, Tail: 5000}
	cfg := testConfig()
	cfg.HardCap = 7 * time.Second

	clip, err := newCapturer(t, cfg, dev).Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if clip.StopReason != capture.StopHardCap || !errors.Is(clip.Err(), capture.ErrHardCap) {
		t.Fatalf("stop reason = %v, want hard_cap", clip.StopReason)
	}
	if clip.Captured > cfg.HardCap {
		t.Errorf("captured %v exceeds hard cap %v", clip.Captured, cfg.HardCap)
	}
	if clip.Empty() {
		t.Error("hard-capped clip must keep its audio")
	}
}

func TestCapture_EnergyErrorsAreSilence(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	dev := &devicemock.Device{
		Clock:     clk,
		Origin:    clockmock.Epoch,
		Tail:      9000,
		EnergyErr: func(time.Time) error { return errors.New("driver hiccup") },
	}
	cfg := testConfig()
	cfg.CalibrationWindow = 200 * time.Millisecond

	clip, err := newCapturer(t, cfg, dev).Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if clip.StopReason != capture.StopNoSpeech {
		t.Errorf("stop reason = %v, want no_speech", clip.StopReason)
	}
	if clip.Thresholds.Calibrated || clip.Thresholds.Start != cfg.StartFloor {
		t.Errorf("thresholds = %+v, want uncalibrated floors", clip.Thresholds)
	}
	if clip.ReadErrors == 0 {
		t.Error("read errors should be counted")
	}
}

func TestCapture_StartFailureIsSoft(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	dev := &devicemock.Device{Clock: clk, StartErr: device.ErrUnavailable}

	clip, err := newCapturer(t, testConfig(), dev).Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture returned %v, want a clip", err)
	}
	if clip.StopReason != capture.StopDeviceUnavailable {
		t.Errorf("stop reason = %v, want device_unavailable", clip.StopReason)
	}
	if !clip.Empty() {
		t.Error("clip should be empty")
	}
	if !errors.Is(clip.Err(), device.ErrUnavailable) {
		t.Errorf("clip.Err() = %v, want ErrUnavailable", clip.Err())
	}
}

func TestCapture_CancelStillStopsDevice(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	dev := &devicemock.Device{Clock: clk, Origin: clockmock.Epoch, Tail: 5000}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk.OnSleep = func(now time.Time) {
		if now.Sub(clockmock.Epoch) >= time.Second {
			cancel()
		}
	}

	clip, err := newCapturer(t, testConfig(), dev).Capture(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if clip == nil || clip.StopReason != capture.StopCancelled {
		t.Fatalf("clip = %+v, want cancelled clip", clip)
	}
	if clip.Captured != time.Second {
		t.Errorf("captured %v, want 1s", clip.Captured)
	}
	if dev.Recording() {
		t.Error("device still recording after cancellation")
	}
}

func TestCapture_CancelDuringCalibration(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	dev := &devicemock.Device{Clock: clk, Origin: clockmock.Epoch, Tail: 200}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig()
	cfg.CalibrationWindow = time.Second

	clip, err := newCapturer(t, cfg, dev).Capture(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if clip == nil || clip.StopReason != capture.StopCancelled {
		t.Fatalf("clip = %+v, want cancelled clip", clip)
	}
	if !clip.Empty() {
		t.Errorf("clip holds %d samples, want none", clip.Buffer.Len())
	}
	if clip.Buffer.SampleRate != cfg.SampleRate || clip.Buffer.Channels != cfg.Channels {
		t.Errorf("clip format = %v, want %v", clip.Buffer.Format(), cfg.Format())
	}
	if dev.CallCountStart != 0 {
		t.Errorf("recording started %d times, want 0", dev.CallCountStart)
	}
}

func TestCapture_PadsShortClip(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	dev := &devicemock.Device{
		Clock:  clk,
		Origin: clockmock.Epoch,
		Step:   50 * time.Millisecond,
		Trace:  []float64{5000},
	}
	cfg := testConfig()
	cfg.PollInterval = 50 * time.Millisecond
	cfg.ShortTrail = 100 * time.Millisecond
	cfg.MinClipDuration = time.Second
	cfg.PreEmphasis = false
	cfg.AGC = false

	clip, err := newCapturer(t, cfg, dev).Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if clip.Captured != 100*time.Millisecond {
		t.Errorf("captured %v, want 100ms", clip.Captured)
	}
	if !clip.Padded {
		t.Error("expected padded clip")
	}
	if got := clip.Duration(); got < cfg.MinClipDuration {
		t.Errorf("final clip %v shorter than min clip %v", got, cfg.MinClipDuration)
	}
	if len(dev.StartDests) != 2 || !strings.HasPrefix(dev.StartDests[1], "pad_") {
		t.Errorf("start destinations = %v, want main + pad recording", dev.StartDests)
	}
	if dev.Recording() {
		t.Error("device still recording after padding")
	}
}

func TestCapture_MinClipSurvivesProcessing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		minClip time.Duration
		agc     bool
		preEmph bool
	}{
		{"trim only", time.Second, false, false},
		{"full chain", time.Second, true, true},
		{"odd duration", 1234567 * time.Microsecond, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clk := clockmock.New()
			dev := &devicemock.Device{
				Clock:  clk,
				Origin: clockmock.Epoch,
				Step:   50 * time.Millisecond,
				Trace:  []float64{5000},
			}
			cfg := testConfig()
			cfg.PollInterval = 50 * time.Millisecond
			cfg.ShortTrail = 100 * time.Millisecond
			cfg.MinClipDuration = tt.minClip
			cfg.AGC = tt.agc
			cfg.PreEmphasis = tt.preEmph

			clip, err := newCapturer(t, cfg, dev).Capture(context.Background())
			if err != nil {
				t.Fatalf("Capture: %v", err)
			}
			if clip.Empty() {
				t.Fatal("expected speech clip")
			}
			if got := clip.Duration(); got < tt.minClip {
				t.Errorf("final clip %v shorter than min clip %v (stages %v)", got, tt.minClip, clip.Stages)
			}
			if !clip.Padded {
				t.Error("expected padded clip")
			}
		})
	}
}

// blockingInput blocks the first energy read until released.
type blockingInput struct {
	*devicemock.Device
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingInput) ReadEnergy(ctx context.Context) (float64, error) {
	b.once.Do(func() {
		close(b.entered)
		<-b.release
	})
	return b.Device.ReadEnergy(ctx)
}

func TestCapture_Busy(t *testing.T) {
	t.Parallel()
	clk := clockmock.New()
	in := &blockingInput{
		Device:  &devicemock.Device{Clock: clk, Origin: clockmock.Epoch},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c, err := capture.NewCapturer(testConfig(), in, capture.WithClock(clk))
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Capture(context.Background())
		done <- err
	}()
	<-in.entered

	if _, err := c.Capture(context.Background()); !errors.Is(err, capture.ErrBusy) {
		t.Errorf("second Capture = %v, want ErrBusy", err)
	}
	close(in.release)
	if err := <-done; err != nil {
		t.Fatalf("first Capture: %v", err)
	}
	// Free again after the first capture returned.
	if _, err := c.Capture(context.Background()); err != nil {
		t.Errorf("third Capture: %v", err)
	}
}

func TestNewCapturer_InvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := capture.DefaultConfig()
	cfg.NoSpeechTimeout = cfg.HardCap + time.Second
	_, err := capture.NewCapturer(cfg, &devicemock.Device{Clock: clockmock.New()})
	if !errors.Is(err, capture.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestDestinationName(t *testing.T) {
	t.Parallel()
	got := capture.DestinationName(time.Date(2025, 3, 4, 5, 6, 7, 890_000_000, time.UTC))
	if got != "rec_20250304_050607.890.wav" {
		t.Errorf("DestinationName = %q", got)
	}
}
