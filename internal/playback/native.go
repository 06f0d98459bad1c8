package playback

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// NativeEngine is the process-wide native playback backend. It manages
// preloaded assets keyed by id and plays them through an external audio
// player process, pausing and resuming via process signals. The engine is
// a shared singleton with a hard limit on concurrently loaded assets.
type NativeEngine struct {
	maxAssets int

	mu     sync.Mutex
	assets map[string]*nativeAsset
}

type nativeAsset struct {
	path     string
	duration float64

	cmd         *exec.Cmd
	playing     bool
	paused      bool
	startedAt   time.Time
	pausedAt    time.Time
	totalPaused time.Duration
	onComplete  func()

	// playRun invalidates the process watcher of a superseded play, so a
	// late exit from a killed process cannot fire completion.
	playRun uint64
}

func NewNativeEngine(maxAssets int) *NativeEngine {
	return &NativeEngine{
		maxAssets: maxAssets,
		assets:    make(map[string]*nativeAsset),
	}
}

func (e *NativeEngine) Type() BackendType { return BackendTypeNative }

// Usable reports whether a suitable external audio player exists.
func (e *NativeEngine) Usable() bool {
	_, err := findAudioPlayer()
	return err == nil
}

func (e *NativeEngine) Preload(assetID, source string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.assets) >= e.maxAssets {
		return 0, ErrAssetLimit
	}

	path := strings.TrimPrefix(source, "file://")
	duration := probeDuration(path)
	e.assets[assetID] = &nativeAsset{path: path, duration: duration}

	slog.Debug("native asset preloaded", "asset", assetID, "path", path, "duration", duration)
	return duration, nil
}

func (e *NativeEngine) Play(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}

	// Restarting from zero supersedes any live process.
	e.stopProcessLocked(asset)

	player, err := findAudioPlayer()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	cmd := playerCommand(player, asset.path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("playback failed to start with %s: %w", player, err)
	}

	asset.cmd = cmd
	asset.playing = true
	asset.paused = false
	asset.startedAt = time.Now()
	asset.pausedAt = time.Time{}
	asset.totalPaused = 0
	asset.playRun++
	run := asset.playRun

	go e.watchProcess(assetID, run, cmd)

	slog.Debug("native playback started", "asset", assetID, "player", player)
	return nil
}

func (e *NativeEngine) Pause(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	if !asset.playing || asset.paused || asset.cmd == nil || asset.cmd.Process == nil {
		return nil
	}
	if err := asset.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("failed to pause playback: %w", err)
	}
	asset.paused = true
	asset.pausedAt = time.Now()
	return nil
}

func (e *NativeEngine) Resume(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	if asset.cmd == nil || asset.cmd.Process == nil {
		// Stopped, not paused. The caller falls back to Play.
		return errFullyStopped
	}
	if !asset.paused {
		return nil
	}
	if err := asset.cmd.Process.Signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("failed to resume playback: %w", err)
	}
	if !asset.pausedAt.IsZero() {
		asset.totalPaused += time.Since(asset.pausedAt)
		asset.pausedAt = time.Time{}
	}
	asset.paused = false
	return nil
}

func (e *NativeEngine) Stop(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	e.stopProcessLocked(asset)
	return nil
}

func (e *NativeEngine) IsPlaying(assetID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return false, ErrAssetNotFound
	}
	return asset.playing && !asset.paused, nil
}

func (e *NativeEngine) CurrentTime(assetID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return 0, ErrAssetNotFound
	}
	if !asset.playing {
		return 0, nil
	}
	base := asset.pausedAt
	if base.IsZero() {
		base = time.Now()
	}
	elapsed := base.Sub(asset.startedAt) - asset.totalPaused
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Seconds(), nil
}

func (e *NativeEngine) Duration(assetID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return 0, ErrAssetNotFound
	}
	return asset.duration, nil
}

func (e *NativeEngine) Unload(assetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	asset, ok := e.assets[assetID]
	if !ok {
		return ErrAssetNotFound
	}
	e.stopProcessLocked(asset)
	delete(e.assets, assetID)
	slog.Debug("native asset unloaded", "asset", assetID)
	return nil
}

func (e *NativeEngine) OnComplete(assetID string, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if asset, ok := e.assets[assetID]; ok {
		asset.onComplete = fn
	}
}

// watchProcess waits for the player process and fires completion if this
// play run is still the live one for the asset.
func (e *NativeEngine) watchProcess(assetID string, run uint64, cmd *exec.Cmd) {
	err := cmd.Wait()

	e.mu.Lock()
	asset, ok := e.assets[assetID]
	if !ok || asset.playRun != run {
		e.mu.Unlock()
		return
	}
	asset.playing = false
	asset.paused = false
	asset.cmd = nil
	onComplete := asset.onComplete
	e.mu.Unlock()

	if err != nil {
		slog.Debug("player process exited", "asset", assetID, "error", err)
	}
	if onComplete != nil {
		onComplete()
	}
}

// stopProcessLocked kills a live player process. Errors are swallowed; a
// process already gone must not fail teardown. Callers hold e.mu.
func (e *NativeEngine) stopProcessLocked(asset *nativeAsset) {
	if asset.cmd != nil && asset.cmd.Process != nil {
		if asset.paused {
			_ = asset.cmd.Process.Signal(syscall.SIGCONT)
		}
		_ = asset.cmd.Process.Kill()
	}
	asset.playRun++
	asset.cmd = nil
	asset.playing = false
	asset.paused = false
}

// findAudioPlayer locates an external audio player in order of preference.
func findAudioPlayer() (string, error) {
	players := []string{"mpv", "ffplay", "vlc"}
	for _, player := range players {
		if _, err := exec.LookPath(player); err == nil {
			return player, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(players, ", "))
}

func playerCommand(player, path string) *exec.Cmd {
	switch player {
	case "mpv":
		return exec.Command("mpv", "--no-video", "--really-quiet", path)
	case "ffplay":
		return exec.Command("ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", path)
	default:
		return exec.Command("vlc", "--play-and-exit", "--intf", "dummy", path)
	}
}

// probeDuration queries the container duration via ffprobe. Returns 0 on
// any failure; probing must never block playback.
func probeDuration(path string) float64 {
	out, err := exec.Command("ffprobe",
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		slog.Debug("duration probe failed", "path", path, "error", err)
		return 0
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
