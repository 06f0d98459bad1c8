// Package permission exposes the microphone permission contract consumed
// by the recorder engine.
package permission

import (
	"log/slog"
	"sync"
)

// Provider answers recording permission queries. The recorder never talks
// to a platform permission API directly.
type Provider interface {
	HasRecordingPermission() bool
	RequestRecordingPermission() bool
	DeviceSupportsRecording() bool
}

// DeviceProber reports whether any capture device is usable. The capture
// package provides the real implementation.
type DeviceProber func() bool

// DeviceProvider grants permission when a capture device is present. On a
// desktop there is no runtime permission prompt, so a successful device
// probe doubles as a grant.
type DeviceProvider struct {
	probe DeviceProber

	mu      sync.Mutex
	probed  bool
	granted bool
}

func NewDeviceProvider(probe DeviceProber) *DeviceProvider {
	return &DeviceProvider{probe: probe}
}

func (p *DeviceProvider) HasRecordingPermission() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.probed {
		return false
	}
	return p.granted
}

func (p *DeviceProvider) RequestRecordingPermission() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed = true
	p.granted = p.probe()
	if !p.granted {
		slog.Warn("recording permission denied, no usable capture device")
	}
	return p.granted
}

func (p *DeviceProvider) DeviceSupportsRecording() bool {
	return p.probe()
}

// Static is a fixed-answer provider used by tests and the control server.
type Static struct {
	Granted   bool
	Supported bool
}

func (s Static) HasRecordingPermission() bool     { return s.Granted }
func (s Static) RequestRecordingPermission() bool { return s.Granted }
func (s Static) DeviceSupportsRecording() bool    { return s.Supported }
