package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/memorable/voicenotes/internal/audiourl"
	"github.com/memorable/voicenotes/internal/config"
	"github.com/memorable/voicenotes/internal/recorder"
)

// HandleState is the lifecycle state of one playback handle.
type HandleState string

const (
	StateUnloaded HandleState = "UNLOADED"
	StateLoading  HandleState = "LOADING"
	StateReady    HandleState = "READY"
	StatePlaying  HandleState = "PLAYING"
	StatePaused   HandleState = "PAUSED"
	StateEnded    HandleState = "ENDED"
)

// Player is one logical player slot. It owns at most one loaded backend
// asset at a time; loading a new source always finishes tearing down the
// previous one before acquiring the next. That ordering is load-bearing:
// interleaving the two is how stale audio keeps playing over new audio.
// nativeDriver is the native engine surface the player needs: the driver
// capability set plus the usability probe that steers backend selection.
type nativeDriver interface {
	Driver
	Usable() bool
}

type Player struct {
	cfg      *config.Config
	resolver *audiourl.Resolver
	blobs    *audiourl.BlobRegistry
	native   nativeDriver
	media    Driver

	// OnError receives surfaced playback errors for display. Optional.
	OnError func(msg string)

	// loadMu serializes Load/Teardown pairs across goroutines.
	loadMu sync.Mutex

	mu          sync.Mutex
	state       HandleState
	driver      Driver
	assetID     string
	sourceURL   string
	generation  uint64 // liveness guard: stale callbacks check it and bail
	currentTime float64
	duration    float64
	pollStop    chan struct{}
	errorShown  bool
}

func NewPlayer(cfg *config.Config, resolver *audiourl.Resolver, blobs *audiourl.BlobRegistry, native *NativeEngine, media *MediaEngine) *Player {
	p := &Player{
		cfg:      cfg,
		resolver: resolver,
		blobs:    blobs,
		media:    media,
		state:    StateUnloaded,
	}
	if native != nil {
		p.native = native
	}
	return p
}

// Load readies the referenced recording for playback. knownDuration skips
// probing when the note already carries one; pass 0 to probe.
func (p *Player) Load(ref *recorder.NoteRef, knownDuration float64) error {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	// Previous resource must be fully released before the new one is
	// acquired.
	p.teardown()

	p.mu.Lock()
	p.generation++
	gen := p.generation
	p.state = StateLoading
	p.errorShown = false
	assetID := fmt.Sprintf("audio-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	p.assetID = assetID
	p.mu.Unlock()

	var driver Driver
	var source string
	var err error
	if p.native != nil && p.native.Usable() {
		driver = p.native
		source, err = p.resolver.ResolveNative(ref)
	} else {
		driver = p.media
		source, err = p.resolver.ResolveMedia(ref)
	}
	if err != nil {
		p.abandonLoad(gen)
		return fmt.Errorf("failed to resolve audio source: %w", err)
	}

	probed, err := driver.Preload(assetID, source)
	if err != nil {
		if audiourl.IsBlobURL(source) {
			p.blobs.Revoke(source)
		}
		p.abandonLoad(gen)
		return fmt.Errorf("failed to load audio: %w", err)
	}

	duration := knownDuration
	if duration <= 0 {
		duration = probed // 0 when probing failed, never block on it
	}

	driver.OnComplete(assetID, func() {
		p.handleComplete(gen)
	})

	p.mu.Lock()
	if p.generation != gen {
		// A teardown won the race while we were loading.
		p.mu.Unlock()
		_ = driver.Unload(assetID)
		if audiourl.IsBlobURL(source) {
			p.blobs.Revoke(source)
		}
		return nil
	}
	p.driver = driver
	p.sourceURL = source
	p.duration = duration
	p.currentTime = 0
	p.state = StateReady
	p.mu.Unlock()

	slog.Debug("playback loaded", "asset", assetID, "backend", driver.Type(), "duration", duration)
	return nil
}

// TogglePlayPause flips between playing and paused. No-op while loading
// or unloaded.
func (p *Player) TogglePlayPause() error {
	p.mu.Lock()
	if p.state == StateLoading || p.state == StateUnloaded || p.driver == nil {
		p.mu.Unlock()
		return nil
	}
	gen := p.generation
	driver := p.driver
	assetID := p.assetID
	playing := p.state == StatePlaying
	p.mu.Unlock()

	if playing {
		if err := driver.Pause(assetID); err != nil {
			p.reportError(err)
			return err
		}
		p.stopPolling()
		p.mu.Lock()
		if p.generation == gen {
			p.state = StatePaused
		}
		p.mu.Unlock()
		return nil
	}

	// The native backend can desynchronize after an error: it may still
	// consider the asset playing while our state says otherwise. Resync
	// instead of issuing a second play.
	if driver.Type() == BackendTypeNative {
		if backendPlaying, err := driver.IsPlaying(assetID); err == nil && backendPlaying {
			p.mu.Lock()
			if p.generation == gen {
				p.state = StatePlaying
			}
			p.mu.Unlock()
			p.startPolling(gen, driver, assetID)
			return nil
		}
	}

	// Resume a paused asset; a fully stopped one needs a fresh play from
	// position zero.
	if err := driver.Resume(assetID); err != nil {
		if !errors.Is(err, errFullyStopped) {
			slog.Debug("resume failed, falling back to play", "asset", assetID, "error", err)
		}
		if err := driver.Play(assetID); err != nil {
			p.reportError(err)
			return err
		}
		p.mu.Lock()
		if p.generation == gen {
			p.currentTime = 0
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	if p.generation == gen {
		p.state = StatePlaying
	}
	p.mu.Unlock()
	p.startPolling(gen, driver, assetID)
	return nil
}

// Teardown releases everything the handle owns. Idempotent: safe to call
// repeatedly or on a handle that never finished loading.
func (p *Player) Teardown() {
	p.loadMu.Lock()
	defer p.loadMu.Unlock()
	p.teardown()
}

func (p *Player) teardown() {
	p.stopPolling()

	p.mu.Lock()
	p.generation++
	driver := p.driver
	assetID := p.assetID
	source := p.sourceURL
	p.driver = nil
	p.assetID = ""
	p.sourceURL = ""
	p.state = StateUnloaded
	p.currentTime = 0
	p.duration = 0
	p.errorShown = false
	p.mu.Unlock()

	// Best-effort release; a backend already in a bad state must not
	// crash teardown.
	if driver != nil && assetID != "" {
		_ = driver.Stop(assetID)
		_ = driver.Unload(assetID)
	}
	if audiourl.IsBlobURL(source) {
		p.blobs.Revoke(source)
	}
}

// State returns the handle state.
func (p *Player) State() HandleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsPlaying reports whether the handle is currently playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StatePlaying
}

// IsLoading reports whether a load is in flight.
func (p *Player) IsLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateLoading
}

// CurrentTime returns the last polled position in seconds.
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentTime
}

// Duration returns the known duration in seconds, 0 when unknown.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Backend returns the backend type of the loaded handle.
func (p *Player) Backend() BackendType {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.driver == nil {
		return ""
	}
	return p.driver.Type()
}

// abandonLoad resets state after a failed load, unless a competing
// teardown already moved the generation on.
func (p *Player) abandonLoad(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != gen {
		return
	}
	p.state = StateUnloaded
	p.assetID = ""
}

// handleComplete converges both backends' completion paths: stop polling,
// drop out of playing, reset position.
func (p *Player) handleComplete(gen uint64) {
	p.mu.Lock()
	if p.generation != gen {
		// Stale listener from a torn-down handle.
		p.mu.Unlock()
		return
	}
	stop := p.pollStop
	p.pollStop = nil
	p.state = StateEnded
	p.currentTime = 0
	p.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	slog.Debug("playback completed")
}

// startPolling samples the backend position at the configured rate until
// stopped or the handle generation moves on.
func (p *Player) startPolling(gen uint64, driver Driver, assetID string) {
	p.stopPolling()

	stop := make(chan struct{})
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return
	}
	p.pollStop = stop
	p.mu.Unlock()

	interval := time.Duration(p.cfg.Playback.PollIntervalMs) * time.Millisecond
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				position, err := driver.CurrentTime(assetID)
				if err != nil {
					continue
				}
				p.mu.Lock()
				if p.generation != gen {
					p.mu.Unlock()
					return
				}
				p.currentTime = position
				finished := p.duration > 0 && position >= p.duration && p.state == StatePlaying
				p.mu.Unlock()

				if finished {
					p.handleComplete(gen)
					return
				}
			}
		}
	}()
}

func (p *Player) stopPolling() {
	p.mu.Lock()
	stop := p.pollStop
	p.pollStop = nil
	p.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// reportError surfaces an error to the caller, suppressing the one known
// spurious failure mode: a backend error fired even though the loaded
// asset is demonstrably playable. Only the first such error per load is
// suppressed; a repeat is genuine and gets reported.
func (p *Player) reportError(err error) {
	p.mu.Lock()
	playable := p.duration > 0 &&
		(p.state == StateReady || p.state == StatePlaying || p.state == StatePaused)
	suppress := playable && !p.errorShown
	if suppress {
		p.errorShown = true
	}
	onError := p.OnError
	p.mu.Unlock()

	if suppress {
		slog.Debug("suppressing spurious playback error", "error", err)
		return
	}
	slog.Error("playback error", "error", err)
	if onError != nil {
		onError(err.Error())
	}
}
