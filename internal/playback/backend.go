// Package playback plays persisted recordings behind one uniform engine.
// Two backends exist: a native asset player driving an external audio
// process, and an in-process media backend that decodes playable URLs and
// streams PCM to the output device. The backend is selected once at load
// and never re-decided mid-session.
package playback

import (
	"errors"
)

// BackendType identifies which playback backend a handle is bound to.
type BackendType string

const (
	BackendTypeNative BackendType = "native"
	BackendTypeMedia  BackendType = "media"
)

var (
	// ErrUnsupported signals a payload format the backend cannot play.
	ErrUnsupported = errors.New("audio format not supported by playback backend")

	// ErrAssetLimit signals that the native engine is at its concurrent
	// preloaded-asset limit. Recoverable: tear down an old handle first.
	ErrAssetLimit = errors.New("too many preloaded playback assets")

	// ErrAssetNotFound signals an operation on an unloaded asset id.
	ErrAssetNotFound = errors.New("playback asset not found")

	// errFullyStopped distinguishes "asset was stopped, not paused" so
	// toggle can fall back from resume to a fresh play.
	errFullyStopped = errors.New("asset is fully stopped")
)

// Driver is the capability set both backends implement. Assets are keyed
// by caller-generated ids; a stale id after unload returns
// ErrAssetNotFound rather than affecting a newer asset.
type Driver interface {
	// Preload readies the source for playback and returns the probed
	// duration in seconds, 0 when probing fails.
	Preload(assetID, source string) (duration float64, err error)
	Play(assetID string) error
	Pause(assetID string) error
	Resume(assetID string) error
	Stop(assetID string) error
	IsPlaying(assetID string) (bool, error)
	CurrentTime(assetID string) (float64, error)
	Duration(assetID string) (float64, error)
	Unload(assetID string) error

	// OnComplete registers a completion callback for the asset. The
	// engine invokes it at most once per play-through.
	OnComplete(assetID string, fn func())

	Type() BackendType
}
