package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/memorable/voicenotes/internal/config"
)

// DeviceBackend captures PCM frames in-process through miniaudio and wraps
// them into a WAV container on stop. It is the fallback when no external
// encoder is installed.
type DeviceBackend struct {
	cfg *config.Config

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	pcm    []byte
	paused bool
	active bool
}

func NewDeviceBackend(cfg *config.Config) *DeviceBackend {
	return &DeviceBackend{cfg: cfg}
}

func (b *DeviceBackend) Type() BackendType { return BackendTypeDevice }

func (b *DeviceBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active {
		return ErrBusy
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to initialize audio context: %v", ErrDeviceUnsupported, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(b.cfg.Audio.Channels)
	deviceConfig.SampleRate = uint32(b.cfg.Audio.SampleRate)

	onReceiveFrames := func(pOutputSamples, pInputSamples []byte, frameCount uint32) {
		b.mu.Lock()
		if b.active && !b.paused {
			b.pcm = append(b.pcm, pInputSamples...)
		}
		b.mu.Unlock()
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onReceiveFrames,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: device init failed: %v", ErrDeviceUnsupported, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("device start failed: %w", err)
	}

	b.ctx = mctx
	b.device = device
	b.pcm = nil
	b.paused = false
	b.active = true

	slog.Debug("device capture started", "sample_rate", b.cfg.Audio.SampleRate, "channels", b.cfg.Audio.Channels)
	return nil
}

func (b *DeviceBackend) Stop() (*Result, error) {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return nil, fmt.Errorf("no capture in progress")
	}
	b.active = false
	device := b.device
	mctx := b.ctx
	b.device = nil
	b.ctx = nil
	pcm := b.pcm
	b.pcm = nil
	b.mu.Unlock()

	// Stop outside the lock, the data callback takes the same mutex.
	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}
	if mctx != nil {
		_ = mctx.Uninit()
		mctx.Free()
	}

	data, err := encodeWAV(pcm, b.cfg.Audio.SampleRate, b.cfg.Audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to encode WAV: %w", err)
	}

	slog.Debug("device capture stopped", "pcm_bytes", len(pcm), "wav_bytes", len(data))
	return &Result{Data: data, MimeType: "audio/wav"}, nil
}

// Pause keeps the device running but drops incoming frames, so resume is
// instant and never re-negotiates the device.
func (b *DeviceBackend) Pause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil
	}
	b.paused = true
	return nil
}

func (b *DeviceBackend) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil
	}
	b.paused = false
	return nil
}

// HasCaptureDevice reports whether at least one capture device exists.
func HasCaptureDevice() bool {
	devices, err := ListCaptureDevices()
	return err == nil && len(devices) > 0
}

// DeviceInfo describes one available capture device.
type DeviceInfo struct {
	Index int
	Name  string
}

// ListCaptureDevices enumerates the capture devices miniaudio can see.
func ListCaptureDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{Index: i, Name: info.Name()})
	}
	return devices, nil
}
