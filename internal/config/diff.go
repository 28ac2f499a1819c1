package config

import "reflect"

// ConfigDiff describes what changed between two configs.
//
// Capture parameters and the log level take effect without a restart; the
// capture change applies from the next capture request on. Everything else
// is reported so callers can warn that a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// CaptureChanged is true if any capture parameter changed.
	CaptureChanged bool

	// RestartRequired lists the sections whose changes are ignored until
	// restart: "server", "device", "storage", "transcription".
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.CaptureChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.CaptureChanged = !reflect.DeepEqual(old.Capture, new.Capture)

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Device, new.Device) {
		d.RestartRequired = append(d.RestartRequired, "device")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if !reflect.DeepEqual(old.Transcription, new.Transcription) {
		d.RestartRequired = append(d.RestartRequired, "transcription")
	}
	return d
}
