// Package capture drives the platform audio capture backends behind one
// uniform contract. Exactly one capture may be active process-wide; the
// Manager models that limit with busy as a first-class state.
package capture

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/memorable/voicenotes/internal/config"
)

// BackendType identifies a capture backend implementation.
type BackendType string

const (
	BackendTypeFFmpeg BackendType = "ffmpeg"
	BackendTypeDevice BackendType = "device"
	BackendTypeAuto   BackendType = "auto"
)

var (
	// ErrBusy signals that the process-wide capture resource is already
	// held. Callers treat this as recoverable, not fatal.
	ErrBusy = errors.New("capture backend busy")

	// ErrDeviceUnsupported signals that no capture path exists on this
	// machine at all.
	ErrDeviceUnsupported = errors.New("device does not support audio capture")
)

// Result is the encoded payload a backend hands back on stop.
type Result struct {
	Data     []byte
	MimeType string
}

// Backend is the uniform capture contract. Implementations are selected
// once per recording session and never swapped mid-session.
type Backend interface {
	Start(ctx context.Context) error
	Stop() (*Result, error)
	Pause() error
	Resume() error
	Type() BackendType
}

// NewBackend creates a capture backend based on configuration.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch determineBackend(cfg) {
	case BackendTypeFFmpeg:
		return NewFFmpegBackend(cfg), nil
	case BackendTypeDevice:
		return NewDeviceBackend(cfg), nil
	default:
		return nil, ErrDeviceUnsupported
	}
}

// determineBackend picks the backend type from configuration, falling back
// to probing what the machine actually has.
func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.Backend) {
	case "ffmpeg":
		return BackendTypeFFmpeg
	case "device":
		return BackendTypeDevice
	}

	// Auto: prefer the ffmpeg encoder when present, it produces compact
	// AAC rather than raw PCM.
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		return BackendTypeFFmpeg
	}
	if HasCaptureDevice() {
		return BackendTypeDevice
	}
	return BackendType("")
}

// AvailableBackends returns the backend types usable on this machine.
func AvailableBackends() []BackendType {
	var backends []BackendType
	if _, err := exec.LookPath("ffmpeg"); err == nil {
		backends = append(backends, BackendTypeFFmpeg)
	}
	if HasCaptureDevice() {
		backends = append(backends, BackendTypeDevice)
	}
	return backends
}
