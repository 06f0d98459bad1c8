// Package service wires the audio engine, note storage and playback into
// one facade consumed by the CLI and the control server.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/memorable/voicenotes/internal/audiourl"
	"github.com/memorable/voicenotes/internal/capture"
	"github.com/memorable/voicenotes/internal/config"
	"github.com/memorable/voicenotes/internal/notes"
	"github.com/memorable/voicenotes/internal/permission"
	"github.com/memorable/voicenotes/internal/playback"
	"github.com/memorable/voicenotes/internal/recorder"
	"github.com/memorable/voicenotes/internal/store"
)

// Service is the application facade.
type Service interface {
	// Recording operations
	StartRecording(ctx context.Context) error
	PauseRecording() error
	ResumeRecording() error
	StopAndSave(title string) (*notes.Note, error)
	RecordingState() recorder.State
	RecordingDuration() int

	// Playback operations
	PlayNote(noteID string) error
	TogglePlayPause() error
	StopPlayback()
	PlaybackStatus() PlaybackStatus

	// Note operations
	Notes() *notes.Store

	// Environment
	Config() *config.Config
	CaptureDevices() ([]capture.DeviceInfo, error)
}

// PlaybackStatus is a snapshot of the player slot for status displays.
type PlaybackStatus struct {
	State       playback.HandleState `json:"state"`
	Backend     playback.BackendType `json:"backend,omitempty"`
	IsPlaying   bool                 `json:"is_playing"`
	CurrentTime string               `json:"current_time"`
	Duration    string               `json:"duration"`
}

type service struct {
	cfg      *config.Config
	engine   *recorder.Engine
	saver    *recorder.Saver
	notes    *notes.Store
	player   *playback.Player
	resolver *audiourl.Resolver
	blobs    *audiourl.BlobRegistry
}

// New assembles the full service on the OS filesystem.
func New(cfg *config.Config) Service {
	files := store.New(cfg.Storage.DataDirectory)
	return NewWithStore(cfg, files)
}

// NewWithStore assembles the service on a caller-provided file store.
func NewWithStore(cfg *config.Config, files store.FileStore) Service {
	perms := permission.NewDeviceProvider(func() bool {
		return len(capture.AvailableBackends()) > 0
	})
	manager := capture.NewManager()
	saver := recorder.NewSaver(files)
	blobs := audiourl.NewBlobRegistry()
	resolver := audiourl.NewResolver(cfg, files, blobs)
	native := playback.NewNativeEngine(cfg.Playback.MaxAssets)
	media := playback.NewMediaEngine(blobs)

	return &service{
		cfg:      cfg,
		engine:   recorder.New(cfg, perms, manager),
		saver:    saver,
		notes:    notes.NewStore(files, saver),
		player:   playback.NewPlayer(cfg, resolver, blobs, native, media),
		resolver: resolver,
		blobs:    blobs,
	}
}

func (s *service) StartRecording(ctx context.Context) error {
	return s.engine.Start(ctx)
}

func (s *service) PauseRecording() error {
	return s.engine.Pause()
}

func (s *service) ResumeRecording() error {
	return s.engine.Resume()
}

// StopAndSave finishes the session, persists the artifact and creates the
// owning voice memo.
func (s *service) StopAndSave(title string) (*notes.Note, error) {
	artifact, err := s.engine.Stop()
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, nil
	}
	ref, err := s.saver.Save(artifact)
	if err != nil {
		return nil, err
	}
	note, err := s.notes.CreateAudio(title, ref)
	if err != nil {
		// The recording landed but the note did not; clean the orphan up.
		s.saver.Delete(ref)
		return nil, err
	}
	return note, nil
}

func (s *service) RecordingState() recorder.State {
	return s.engine.State()
}

func (s *service) RecordingDuration() int {
	return s.engine.Duration()
}

// PlayNote loads the note's recording into the player slot and starts
// playback.
func (s *service) PlayNote(noteID string) error {
	note, err := s.notes.Get(noteID)
	if err != nil {
		return err
	}
	if note.Type != notes.TypeAudio || note.Audio == nil {
		return fmt.Errorf("note %s has no audio", noteID)
	}
	if err := s.player.Load(note.Audio, float64(note.Audio.Duration)); err != nil {
		return err
	}
	return s.player.TogglePlayPause()
}

func (s *service) TogglePlayPause() error {
	return s.player.TogglePlayPause()
}

func (s *service) StopPlayback() {
	s.player.Teardown()
}

func (s *service) PlaybackStatus() PlaybackStatus {
	return PlaybackStatus{
		State:       s.player.State(),
		Backend:     s.player.Backend(),
		IsPlaying:   s.player.IsPlaying(),
		CurrentTime: playback.FormatTime(s.player.CurrentTime()),
		Duration:    playback.FormatTime(s.player.Duration()),
	}
}

func (s *service) Notes() *notes.Store {
	return s.notes
}

func (s *service) Config() *config.Config {
	return s.cfg
}

func (s *service) CaptureDevices() ([]capture.DeviceInfo, error) {
	return capture.ListCaptureDevices()
}

// WaitForPlayback blocks until the player leaves the playing state or the
// timeout elapses. Used by the CLI play command.
func WaitForPlayback(svc Service, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status := svc.PlaybackStatus()
		if status.State == playback.StateEnded || status.State == playback.StateUnloaded {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}
