package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voxcap/pkg/device"
	"github.com/MrWong99/voxcap/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps implementation names to their constructor functions for
// input devices and transcription providers. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	device map[string]func(ProviderEntry) (device.Device, error)
	stt    map[string]func(ProviderEntry) (stt.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		device: make(map[string]func(ProviderEntry) (device.Device, error)),
		stt:    make(map[string]func(ProviderEntry) (stt.Provider, error)),
	}
}

// RegisterDevice registers an input device factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterDevice(name string, factory func(ProviderEntry) (device.Device, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.device[name] = factory
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// CreateDevice opens an input device using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateDevice(entry ProviderEntry) (device.Device, error) {
	r.mu.RLock()
	factory, ok := r.device[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: device/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered names of each kind, sorted.
func (r *Registry) Names() (devices, stts []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for n := range r.device {
		devices = append(devices, n)
	}
	for n := range r.stt {
		stts = append(stts, n)
	}
	slices.Sort(devices)
	slices.Sort(stts)
	return devices, stts
}
