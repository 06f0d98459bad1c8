package playback

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"github.com/memorable/voicenotes/internal/audiourl"
)

// MediaEngine is the in-process playback backend. It consumes playable
// URLs (data: or blob:), decodes the container to PCM up front and streams
// it to the output device. Formats beyond WAV are transcoded through
// ffmpeg when available.
type MediaEngine struct {
	blobs *audiourl.BlobRegistry

	mu     sync.Mutex
	assets map[string]*mediaAsset
}

type mediaAsset struct {
	pcm        []byte // S16LE interleaved, immutable after preload
	sampleRate int
	channels   int

	// posMu guards the PCM cursor. It is the only lock the audio data
	// callback takes: device.Stop blocks until the audio thread drains,
	// so the callback must never wait on e.mu.
	posMu    sync.Mutex
	posBytes int

	playing    bool
	paused     bool
	device     *malgo.Device
	mctx       *malgo.AllocatedContext
	onComplete func()
	playRun    uint64
}

// readFrames copies PCM from the cursor into the output buffer,
// zero-filling the tail, and reports whether the stream is exhausted.
func (a *mediaAsset) readFrames(out []byte) bool {
	a.posMu.Lock()
	n := copy(out, a.pcm[min(a.posBytes, len(a.pcm)):])
	a.posBytes += n
	exhausted := a.posBytes >= len(a.pcm)
	a.posMu.Unlock()

	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return exhausted
}

func (a *mediaAsset) setPos(bytes int) {
	a.posMu.Lock()
	a.posBytes = bytes
	a.posMu.Unlock()
}

func (a *mediaAsset) pos() int {
	a.posMu.Lock()
	defer a.posMu.Unlock()
	return a.posBytes
}

func NewMediaEngine(blobs *audiourl.BlobRegistry) *MediaEngine {
	return &MediaEngine{
		blobs:  blobs,
		assets: make(map[string]*mediaAsset),
	}
}

func (e *MediaEngine) Type() BackendType { return BackendTypeMedia }

func (e *MediaEngine) Preload(assetID, source string) (float64, error) {
	data, mime, err := e.fetchSource(source)
	if err != nil {
		return 0, err
	}

	if !strings.Contains(strings.ToLower(mime), "wav") {
		data, err = transcodeToWAV(data)
		if err != nil {
			return 0, err
		}
	}

	pcm, sampleRate, channels, err := decodeWAV(data)
	if err != nil {
		return 0, err
	}

	asset := &mediaAsset{pcm: pcm, sampleRate: sampleRate, channels: channels}

	e.mu.Lock()
	e.assets[assetID] = asset
	e.mu.Unlock()

	duration := pcmDuration(asset)
	slog.Debug("media asset preloaded", "asset", assetID, "mime", mime, "duration", duration)
	return duration, nil
}

func (e *MediaEngine) Play(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}

	e.stopDeviceLocked(asset)
	asset.setPos(0)
	return e.startDeviceLocked(assetID, asset)
}

// Pause stops the output device but keeps the position, so Resume picks
// up where playback left off. Stopping under e.mu is safe for the same
// reason as stopDeviceLocked: the audio thread never waits on e.mu.
func (e *MediaEngine) Pause(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	if !asset.playing || asset.paused || asset.device == nil {
		return nil
	}
	if err := asset.device.Stop(); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}
	asset.paused = true
	return nil
}

func (e *MediaEngine) Resume(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	if asset.device == nil {
		return errFullyStopped
	}
	if !asset.paused {
		return nil
	}
	if err := asset.device.Start(); err != nil {
		return fmt.Errorf("failed to resume playback: %w", err)
	}
	asset.paused = false
	return nil
}

func (e *MediaEngine) Stop(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	e.stopDeviceLocked(asset)
	asset.setPos(0)
	return nil
}

func (e *MediaEngine) IsPlaying(assetID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return false, ErrAssetNotFound
	}
	return asset.playing && !asset.paused, nil
}

func (e *MediaEngine) CurrentTime(assetID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return 0, ErrAssetNotFound
	}
	bytesPerSecond := asset.sampleRate * asset.channels * 2
	if bytesPerSecond == 0 {
		return 0, nil
	}
	return float64(asset.pos()) / float64(bytesPerSecond), nil
}

func (e *MediaEngine) Duration(assetID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return 0, ErrAssetNotFound
	}
	return pcmDuration(asset), nil
}

func (e *MediaEngine) Unload(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	e.stopDeviceLocked(asset)
	delete(e.assets, assetID)
	slog.Debug("media asset unloaded", "asset", assetID)
	return nil
}

func (e *MediaEngine) OnComplete(assetID string, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if asset, ok := e.assets[assetID]; ok {
		asset.onComplete = fn
	}
}

// startDeviceLocked opens the output device and begins streaming from the
// asset's current position. Callers hold e.mu.
func (e *MediaEngine) startDeviceLocked(assetID string, asset *mediaAsset) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to initialize playback context: %v", ErrUnsupported, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(asset.channels)
	deviceConfig.SampleRate = uint32(asset.sampleRate)

	asset.playRun++
	run := asset.playRun
	done := make(chan struct{})
	var doneOnce sync.Once

	onSendFrames := func(pOutputSamples, pInputSamples []byte, frameCount uint32) {
		if asset.readFrames(pOutputSamples) {
			doneOnce.Do(func() { close(done) })
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSendFrames,
	})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("%w: playback device init failed: %v", ErrUnsupported, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return fmt.Errorf("playback device start failed: %w", err)
	}

	asset.device = device
	asset.mctx = mctx
	asset.playing = true
	asset.paused = false

	go e.watchPlayback(assetID, run, done)
	return nil
}

// watchPlayback fires end-of-stream for the asset once the PCM buffer is
// exhausted, unless this play run was superseded.
func (e *MediaEngine) watchPlayback(assetID string, run uint64, done <-chan struct{}) {
	<-done

	e.mu.Lock()
	asset, ok := e.assets[assetID]
	if !ok || asset.playRun != run {
		e.mu.Unlock()
		return
	}
	e.stopDeviceLocked(asset)
	asset.setPos(0)
	onComplete := asset.onComplete
	e.mu.Unlock()

	if onComplete != nil {
		onComplete()
	}
}

// stopDeviceLocked releases the output device. Errors are swallowed; a
// device in a bad state must not fail teardown. Callers hold e.mu, which
// is safe: the data callback only ever takes the asset's posMu, so
// blocking on the audio thread here cannot deadlock.
func (e *MediaEngine) stopDeviceLocked(asset *mediaAsset) {
	asset.playRun++
	if asset.device != nil {
		device := asset.device
		mctx := asset.mctx
		asset.device = nil
		asset.mctx = nil
		_ = device.Stop()
		device.Uninit()
		if mctx != nil {
			_ = mctx.Uninit()
			mctx.Free()
		}
	}
	asset.playing = false
	asset.paused = false
}

// fetchSource resolves a playable URL to raw bytes and a MIME type.
func (e *MediaEngine) fetchSource(source string) ([]byte, string, error) {
	switch {
	case audiourl.IsBlobURL(source):
		return e.blobs.Get(source)
	case audiourl.IsDataURL(source):
		return audiourl.DecodeDataURL(source)
	default:
		return nil, "", fmt.Errorf("%w: unsupported source URL", ErrUnsupported)
	}
}

// decodeWAV extracts interleaved S16LE PCM from a WAV container.
func decodeWAV(data []byte) (pcm []byte, sampleRate, channels int, err error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, 0, 0, fmt.Errorf("%w: invalid WAV data", ErrUnsupported)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode WAV: %w", err)
	}

	out := new(bytes.Buffer)
	for _, sample := range buf.Data {
		if sample > 32767 {
			sample = 32767
		} else if sample < -32768 {
			sample = -32768
		}
		if err := binary.Write(out, binary.LittleEndian, int16(sample)); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to convert samples: %w", err)
		}
	}

	return out.Bytes(), int(decoder.SampleRate), int(decoder.NumChans), nil
}

// transcodeToWAV converts a compressed container to WAV through ffmpeg.
// The output goes through a temp file; ffmpeg cannot patch RIFF sizes on
// a non-seekable pipe.
func transcodeToWAV(data []byte) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: no decoder available", ErrUnsupported)
	}

	outFile := filepath.Join(os.TempDir(), "voicenotes-decode-"+uuid.NewString()+".wav")
	defer os.Remove(outFile)

	cmd := exec.Command("ffmpeg", "-i", "pipe:0", "-f", "wav", "-y", outFile)
	cmd.Stdin = bytes.NewReader(data)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		slog.Debug("ffmpeg transcode failed", "stderr", errBuf.String())
		return nil, fmt.Errorf("%w: transcode failed: %v", ErrUnsupported, err)
	}
	return os.ReadFile(outFile)
}

func pcmDuration(asset *mediaAsset) float64 {
	bytesPerSecond := asset.sampleRate * asset.channels * 2
	if bytesPerSecond == 0 {
		return 0
	}
	return float64(len(asset.pcm)) / float64(bytesPerSecond)
}
