//go:build portaudio

package main

import (
	"github.com/MrWong99/voxcap/internal/config"
	"github.com/MrWong99/voxcap/pkg/device"
	"github.com/MrWong99/voxcap/pkg/device/portaudio"
)

func init() {
	extraDevices["portaudio"] = func(entry config.ProviderEntry) (device.Device, error) {
		return portaudio.Open(portaudio.Config{
			SampleRate:      config.OptInt(entry.Options, "sample_rate", 0),
			FramesPerBuffer: config.OptInt(entry.Options, "frames_per_buffer", 0),
		})
	}
}
