package device

import "strings"

// Device is one configured sensor: a stable technical name and the
// vendor address it is reached at.
type Device struct {
	Name    string
	Address string
}

// Registry is the set of successfully initialized devices for a run.
// It is rebuilt, never diffed, on re-initialization.
type Registry struct {
	devices []Device
}

// NewRegistry creates a registry from initialized devices, preserving
// configuration order.
func NewRegistry(devices []Device) *Registry {
	return &Registry{devices: devices}
}

// Devices returns the registered devices in configuration order.
func (r *Registry) Devices() []Device {
	return r.devices
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	return len(r.devices)
}

// Names returns the device identifiers in configuration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.devices))
	for i, d := range r.devices {
		names[i] = d.Name
	}
	return names
}

// LocationFor derives the canonical human-readable location from a
// device identifier: a trailing "_thermometer" is dropped and the
// remaining underscore-separated words are title-cased, so
// "living_room_thermometer" becomes "Living Room". The mapping is
// total: every identifier yields exactly one location string.
func LocationFor(name string) string {
	base := strings.TrimSuffix(name, "_thermometer")
	if base == "" {
		// Degenerate identifier, nothing left to derive a location from.
		return name
	}

	words := strings.Split(base, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
