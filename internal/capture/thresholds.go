package capture

import (
	"context"
	"log/slog"
	"slices"

	"github.com/MrWong99/voxcap/pkg/clock"
	"github.com/MrWong99/voxcap/pkg/device"
)

// Thresholds are the energy levels used by one session. Keep never exceeds
// Start.
type Thresholds struct {
	// Start is the energy that marks speech onset.
	Start float64

	// Keep is the energy that keeps an utterance going.
	Keep float64

	// Baseline is the measured ambient energy. Zero when not calibrated.
	Baseline float64

	// Calibrated reports whether Baseline came from ambient readings.
	Calibrated bool
}

// DeriveThresholds computes session thresholds from an ambient baseline.
// With calibrated false the config floors are used as-is.
func DeriveThresholds(cfg Config, baseline float64, calibrated bool) Thresholds {
	th := Thresholds{Start: cfg.StartFloor}
	if calibrated {
		th.Baseline = baseline
		th.Calibrated = true
		th.Start = max(cfg.StartFloor, baseline+cfg.StartBonus)
	}
	th.Keep = max(cfg.KeepFloor, th.Start*cfg.KeepMargin)
	th.Keep = min(th.Keep, th.Start)
	return th
}

// Calibration is the result of sampling ambient energy.
type Calibration struct {
	// Baseline is the median reading. Only meaningful when OK.
	Baseline float64

	// Readings is the number of successful readings.
	Readings int

	// Failures is the number of failed readings.
	Failures int

	// OK reports whether at least one reading succeeded.
	OK bool
}

// Calibrate samples src every cfg.PollInterval for cfg.CalibrationWindow
// and returns the median reading. Failed readings are skipped; if none
// succeed the result is not OK and callers fall back to the floors. The only
// error returned is ctx's.
func Calibrate(ctx context.Context, src device.EnergySource, clk clock.Clock, cfg Config) (Calibration, error) {
	var (
		cal      Calibration
		readings []float64
	)
	if cfg.CalibrationWindow <= 0 {
		return cal, nil
	}

	start := clk.Now()
	for {
		e, err := src.ReadEnergy(ctx)
		if err != nil {
			cal.Failures++
		} else {
			readings = append(readings, e)
		}

		remaining := cfg.CalibrationWindow - clock.Since(clk, start)
		if remaining <= 0 {
			break
		}
		if err := clk.Sleep(ctx, min(cfg.PollInterval, remaining)); err != nil {
			return cal, err
		}
		if clock.Since(clk, start) >= cfg.CalibrationWindow {
			break
		}
	}

	cal.Readings = len(readings)
	if cal.Readings == 0 {
		slog.Warn("capture: calibration got no readings, using floor thresholds", "failures", cal.Failures)
		return cal, nil
	}
	cal.Baseline = median(readings)
	cal.OK = true
	return cal, nil
}

// median returns the middle element of the sorted readings (the upper one
// for an even count). It sorts its argument.
func median(readings []float64) float64 {
	slices.Sort(readings)
	return readings[len(readings)/2]
}
