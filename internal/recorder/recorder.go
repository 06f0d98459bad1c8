// Package recorder owns the recording lifecycle: one session at a time,
// driven through a platform capture backend, with wall-clock duration
// tracking that excludes paused intervals.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/memorable/voicenotes/internal/capture"
	"github.com/memorable/voicenotes/internal/config"
	"github.com/memorable/voicenotes/internal/permission"
)

// State is the recorder session state.
type State string

const (
	StateIdle      State = "IDLE"
	StateRecording State = "RECORDING"
	StatePaused    State = "PAUSED"
	StateStopped   State = "STOPPED"
	StateFailed    State = "FAILED"
)

var (
	// ErrPermissionDenied signals that microphone permission was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrNoPayload signals a stop that produced no audio data. The session
	// still transitions to STOPPED; an empty note must never be saved
	// silently.
	ErrNoPayload = errors.New("recording produced no data")
)

// Artifact is the immutable product of one completed recording.
type Artifact struct {
	Data     []byte
	MimeType string
	Duration int // seconds of wall-clock time spent recording, pauses excluded
}

// tickInterval samples elapsed duration at 10 Hz for a smooth display.
const tickInterval = 100 * time.Millisecond

// busyRetryDelay is the settle time before retrying a start that hit a
// stale capture session.
const busyRetryDelay = 100 * time.Millisecond

// Engine is the recorder engine. One Engine drives at most one recording
// session at a time; the capture Manager enforces the process-wide limit.
type Engine struct {
	cfg        *config.Config
	perms      permission.Provider
	manager    *capture.Manager
	newBackend func(*config.Config) (capture.Backend, error)

	mu          sync.Mutex
	state       State
	starting    bool // a Start is in flight; state is not yet RECORDING
	backend     capture.Backend
	startedAt   time.Time
	pausedAt    time.Time // zero unless state == StatePaused
	totalPaused time.Duration
	duration    int
	session     uint64 // liveness guard for the sampling goroutine
	tickerStop  chan struct{}

	now func() time.Time
}

// New creates a recorder engine. The capture manager may be shared with
// other engines to enforce the single active recording.
func New(cfg *config.Config, perms permission.Provider, manager *capture.Manager) *Engine {
	return &Engine{
		cfg:        cfg,
		perms:      perms,
		manager:    manager,
		newBackend: capture.NewBackend,
		state:      StateIdle,
		now:        time.Now,
	}
}

// State returns the current session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Duration returns the last sampled elapsed duration in whole seconds.
func (e *Engine) Duration() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// Start begins a new recording session. Calling Start while a session is
// recording, paused, or still starting up is a warned no-op; this is what
// prevents the double-start race from corrupting backend state. The
// starting flag covers the window where Start has released the lock for
// the permission probe and backend spin-up but state is not RECORDING yet.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRecording || e.state == StatePaused || e.starting {
		e.mu.Unlock()
		slog.Warn("recording already in progress, ignoring start")
		return nil
	}
	// Fresh session; STOPPED and FAILED are implicit resets.
	e.starting = true
	e.state = StateIdle
	e.duration = 0
	e.totalPaused = 0
	e.pausedAt = time.Time{}
	e.mu.Unlock()

	if !e.perms.DeviceSupportsRecording() {
		return e.fail(capture.ErrDeviceUnsupported)
	}
	if !e.perms.HasRecordingPermission() {
		if !e.perms.RequestRecordingPermission() {
			return e.fail(ErrPermissionDenied)
		}
	}

	if err := e.manager.Acquire("recorder"); err != nil {
		return e.fail(err)
	}

	backend, err := e.newBackend(e.cfg)
	if err != nil {
		e.manager.Release("recorder")
		return e.fail(err)
	}

	if err := backend.Start(ctx); err != nil {
		// A stale session from a stop that never fully propagated shows
		// up as busy. One recovery attempt: stop, settle, retry.
		if errors.Is(err, capture.ErrBusy) {
			slog.Warn("capture backend busy, attempting recovery")
			if _, stopErr := backend.Stop(); stopErr != nil {
				slog.Debug("recovery stop failed", "error", stopErr)
			}
			time.Sleep(busyRetryDelay)
			err = backend.Start(ctx)
		}
		if err != nil {
			e.manager.Release("recorder")
			return e.fail(fmt.Errorf("failed to start recording: %w", err))
		}
	}

	e.mu.Lock()
	e.starting = false
	e.state = StateRecording
	e.backend = backend
	e.startedAt = e.now()
	e.session++
	e.tickerStop = make(chan struct{})
	session := e.session
	stop := e.tickerStop
	e.mu.Unlock()

	go e.sampleDuration(session, stop)

	slog.Info("recording started", "backend", backend.Type())
	return nil
}

// Pause suspends the session. No-op unless currently recording.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRecording {
		return nil
	}
	if err := e.backend.Pause(); err != nil {
		return fmt.Errorf("failed to pause: %w", err)
	}
	e.state = StatePaused
	e.pausedAt = e.now()
	slog.Debug("recording paused")
	return nil
}

// Resume continues a paused session, folding the pause span into the
// accumulated paused time. No-op unless currently paused.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return nil
	}
	if err := e.backend.Resume(); err != nil {
		return fmt.Errorf("failed to resume: %w", err)
	}
	if !e.pausedAt.IsZero() {
		e.totalPaused += e.now().Sub(e.pausedAt)
		e.pausedAt = time.Time{}
	}
	e.state = StateRecording
	slog.Debug("recording resumed")
	return nil
}

// Stop ends the session and returns the finished artifact. Calling Stop
// when no session is active is a warned no-op returning nil; callers stop
// defensively during teardown and must never trip on it.
func (e *Engine) Stop() (*Artifact, error) {
	e.mu.Lock()
	if e.state != StateRecording && e.state != StatePaused {
		e.mu.Unlock()
		slog.Warn("no recording in progress, ignoring stop")
		return nil, nil
	}

	// Close the pause span so the final duration is exact.
	if e.state == StatePaused && !e.pausedAt.IsZero() {
		e.totalPaused += e.now().Sub(e.pausedAt)
		e.pausedAt = time.Time{}
	}

	if e.tickerStop != nil {
		close(e.tickerStop)
		e.tickerStop = nil
	}

	finalDuration := e.elapsedLocked()
	e.duration = finalDuration
	backend := e.backend
	e.backend = nil
	e.state = StateStopped
	e.mu.Unlock()

	defer e.manager.Release("recorder")

	result, err := backend.Stop()
	if err != nil {
		return nil, fmt.Errorf("failed to stop recording: %w", err)
	}
	if result == nil || len(result.Data) == 0 {
		return nil, ErrNoPayload
	}

	slog.Info("recording stopped", "duration", finalDuration, "mime", result.MimeType, "bytes", len(result.Data))
	return &Artifact{
		Data:     result.Data,
		MimeType: result.MimeType,
		Duration: finalDuration,
	}, nil
}

// fail moves the engine to FAILED. Only Start is accepted from there.
func (e *Engine) fail(err error) error {
	e.mu.Lock()
	e.starting = false
	e.state = StateFailed
	if e.tickerStop != nil {
		close(e.tickerStop)
		e.tickerStop = nil
	}
	e.backend = nil
	e.mu.Unlock()
	slog.Error("recording failed", "error", err)
	return err
}

// sampleDuration updates the displayed duration at 10 Hz. The session id
// makes a sampler from a torn-down session provably inert.
func (e *Engine) sampleDuration(session uint64, stop chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.session != session {
				e.mu.Unlock()
				return
			}
			e.duration = e.elapsedLocked()
			e.mu.Unlock()
		}
	}
}

// elapsedLocked computes whole elapsed seconds excluding paused time,
// clamped to zero. Callers hold e.mu.
func (e *Engine) elapsedLocked() int {
	if e.startedAt.IsZero() {
		return 0
	}
	elapsed := e.now().Sub(e.startedAt) - e.totalPaused
	if !e.pausedAt.IsZero() {
		elapsed -= e.now().Sub(e.pausedAt)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return int(elapsed / time.Second)
}
