package playback

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorable/voicenotes/internal/audiourl"
	"github.com/memorable/voicenotes/internal/config"
	"github.com/memorable/voicenotes/internal/recorder"
	"github.com/memorable/voicenotes/internal/store"
)

// fakeDriver implements Driver (and the native usability probe) with
// scriptable behavior for exercising the player state machine.
type fakeDriver struct {
	mu          sync.Mutex
	typ         BackendType
	usable      bool
	preloadErr  error
	resumeErr   error
	probed      float64
	position    float64
	playing     bool
	events      []string
	completions map[string]func()

	playCalls   int
	pauseCalls  int
	resumeCalls int
	stopCalls   int
	unloadCalls int
}

func newFakeDriver(typ BackendType) *fakeDriver {
	return &fakeDriver{typ: typ, completions: make(map[string]func())}
}

func (d *fakeDriver) log(format string, args ...any) {
	d.events = append(d.events, fmt.Sprintf(format, args...))
}

func (d *fakeDriver) Preload(assetID, source string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log("preload:%s", assetID)
	if d.preloadErr != nil {
		return 0, d.preloadErr
	}
	return d.probed, nil
}

func (d *fakeDriver) Play(assetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playCalls++
	d.playing = true
	return nil
}

func (d *fakeDriver) Pause(assetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pauseCalls++
	d.playing = false
	return nil
}

func (d *fakeDriver) Resume(assetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resumeCalls++
	if d.resumeErr != nil {
		return d.resumeErr
	}
	d.playing = true
	return nil
}

func (d *fakeDriver) Stop(assetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopCalls++
	d.playing = false
	return nil
}

func (d *fakeDriver) IsPlaying(assetID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing, nil
}

func (d *fakeDriver) CurrentTime(assetID string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position, nil
}

func (d *fakeDriver) Duration(assetID string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.probed, nil
}

func (d *fakeDriver) Unload(assetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unloadCalls++
	d.log("unload:%s", assetID)
	delete(d.completions, assetID)
	return nil
}

func (d *fakeDriver) OnComplete(assetID string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completions[assetID] = fn
}

func (d *fakeDriver) Type() BackendType { return d.typ }

func (d *fakeDriver) Usable() bool { return d.usable }

func (d *fakeDriver) completion(t *testing.T) func() {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.Len(t, d.completions, 1)
	for _, fn := range d.completions {
		return fn
	}
	return nil
}

type playerFixture struct {
	player *Player
	native *fakeDriver
	media  *fakeDriver
	blobs  *audiourl.BlobRegistry
	ref    *recorder.NoteRef
}

func newPlayerFixture(t *testing.T, nativeUsable bool) *playerFixture {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.Platform = "linux"
	cfg.Playback.PollIntervalMs = 10

	files := store.NewWithFs(afero.NewMemMapFs(), "/data/audio")
	_, err := files.Write("recording-1.m4a", []byte("audio-bytes"))
	require.NoError(t, err)

	blobs := audiourl.NewBlobRegistry()
	native := newFakeDriver(BackendTypeNative)
	native.usable = nativeUsable
	native.resumeErr = errFullyStopped
	media := newFakeDriver(BackendTypeMedia)
	media.resumeErr = errFullyStopped

	p := &Player{
		cfg:      cfg,
		resolver: audiourl.NewResolver(cfg, files, blobs),
		blobs:    blobs,
		native:   native,
		media:    media,
		state:    StateUnloaded,
	}
	t.Cleanup(p.Teardown)

	return &playerFixture{
		player: p,
		native: native,
		media:  media,
		blobs:  blobs,
		ref:    &recorder.NoteRef{Path: "recording-1.m4a", MimeType: "audio/aac", Duration: 9},
	}
}

func TestLoadSelectsNativeBackend(t *testing.T) {
	f := newPlayerFixture(t, true)

	require.NoError(t, f.player.Load(f.ref, 9))
	assert.Equal(t, StateReady, f.player.State())
	assert.Equal(t, BackendTypeNative, f.player.Backend())
	assert.Equal(t, 9.0, f.player.Duration())
	assert.Len(t, f.native.events, 1)
	assert.Empty(t, f.media.events)
	// The native backend consumes the file URI directly, no blob needed.
	assert.Equal(t, 0, f.blobs.Len())
}

func TestLoadFallsBackToMediaBackend(t *testing.T) {
	f := newPlayerFixture(t, false)

	require.NoError(t, f.player.Load(f.ref, 9))
	assert.Equal(t, StateReady, f.player.State())
	assert.Equal(t, BackendTypeMedia, f.player.Backend())
	assert.Empty(t, f.native.events)
	assert.Equal(t, 1, f.blobs.Len())
}

func TestLoadUsesProbedDurationWhenUnknown(t *testing.T) {
	f := newPlayerFixture(t, true)
	f.native.probed = 4.5

	require.NoError(t, f.player.Load(f.ref, 0))
	assert.Equal(t, 4.5, f.player.Duration())
}

func TestLoadFailureLeavesHandleUnloaded(t *testing.T) {
	f := newPlayerFixture(t, false)
	f.media.preloadErr = errors.New("decode failed")

	err := f.player.Load(f.ref, 0)
	require.Error(t, err)
	assert.Equal(t, StateUnloaded, f.player.State())
	// The blob minted for the failed load was revoked.
	assert.Equal(t, 0, f.blobs.Len())
}

func TestTogglePlayPauseCycle(t *testing.T) {
	f := newPlayerFixture(t, true)
	require.NoError(t, f.player.Load(f.ref, 9))

	// Ready: nothing is paused, so resume falls through to a fresh play.
	require.NoError(t, f.player.TogglePlayPause())
	assert.Equal(t, StatePlaying, f.player.State())
	assert.Equal(t, 1, f.native.playCalls)

	require.NoError(t, f.player.TogglePlayPause())
	assert.Equal(t, StatePaused, f.player.State())
	assert.Equal(t, 1, f.native.pauseCalls)

	// Paused: resume succeeds, no second play.
	f.native.resumeErr = nil
	f.native.playing = false
	require.NoError(t, f.player.TogglePlayPause())
	assert.Equal(t, StatePlaying, f.player.State())
	assert.Equal(t, 1, f.native.playCalls)
}

func TestToggleIsNoOpWhenUnloaded(t *testing.T) {
	f := newPlayerFixture(t, true)
	require.NoError(t, f.player.TogglePlayPause())
	assert.Equal(t, StateUnloaded, f.player.State())
	assert.Equal(t, 0, f.native.playCalls)
}

func TestResumeFallbackRestartsFromZero(t *testing.T) {
	f := newPlayerFixture(t, true)
	require.NoError(t, f.player.Load(f.ref, 9))
	require.NoError(t, f.player.TogglePlayPause())
	require.NoError(t, f.player.TogglePlayPause())

	// The backend fully stopped while we were paused.
	f.player.mu.Lock()
	f.player.currentTime = 5
	f.player.mu.Unlock()
	f.native.resumeErr = errFullyStopped

	require.NoError(t, f.player.TogglePlayPause())
	assert.Equal(t, StatePlaying, f.player.State())
	assert.Equal(t, 2, f.native.playCalls)
	assert.Equal(t, 0.0, f.player.CurrentTime())
}

func TestNativeResyncWhenBackendStillPlaying(t *testing.T) {
	f := newPlayerFixture(t, true)
	require.NoError(t, f.player.Load(f.ref, 9))
	require.NoError(t, f.player.TogglePlayPause())
	require.NoError(t, f.player.TogglePlayPause())
	require.Equal(t, StatePaused, f.player.State())

	// Backend disagrees: it still considers the asset playing.
	f.native.mu.Lock()
	f.native.playing = true
	f.native.mu.Unlock()

	require.NoError(t, f.player.TogglePlayPause())
	assert.Equal(t, StatePlaying, f.player.State())
	// Resynced without issuing another play or resume.
	assert.Equal(t, 1, f.native.playCalls)
	assert.Equal(t, 1, f.native.resumeCalls)
}

func TestTeardownIsIdempotent(t *testing.T) {
	f := newPlayerFixture(t, false)
	require.NoError(t, f.player.Load(f.ref, 9))
	require.Equal(t, 1, f.blobs.Len())

	f.player.Teardown()
	f.player.Teardown()
	f.player.Teardown()

	assert.Equal(t, StateUnloaded, f.player.State())
	assert.Equal(t, 0, f.blobs.Len())
	assert.Equal(t, 1, f.media.unloadCalls)
}

func TestTeardownOnNeverLoadedHandle(t *testing.T) {
	f := newPlayerFixture(t, true)
	f.player.Teardown()
	assert.Equal(t, StateUnloaded, f.player.State())
	assert.Equal(t, 0, f.native.stopCalls)
}

func TestLoadReleasesPreviousResourceFirst(t *testing.T) {
	f := newPlayerFixture(t, true)

	require.NoError(t, f.player.Load(f.ref, 9))
	firstAsset := f.player.assetID
	require.NoError(t, f.player.Load(f.ref, 9))
	secondAsset := f.player.assetID

	require.NotEqual(t, firstAsset, secondAsset)
	want := []string{
		"preload:" + firstAsset,
		"unload:" + firstAsset,
		"preload:" + secondAsset,
	}
	assert.Equal(t, want, f.native.events)
}

func TestReloadRevokesPreviousBlob(t *testing.T) {
	f := newPlayerFixture(t, false)

	require.NoError(t, f.player.Load(f.ref, 9))
	require.NoError(t, f.player.Load(f.ref, 9))

	// Exactly one live blob: the old one was revoked before the new load.
	assert.Equal(t, 1, f.blobs.Len())
}

func TestCompletionMarksEnded(t *testing.T) {
	f := newPlayerFixture(t, true)
	require.NoError(t, f.player.Load(f.ref, 9))
	require.NoError(t, f.player.TogglePlayPause())

	f.native.completion(t)()

	assert.Equal(t, StateEnded, f.player.State())
	assert.False(t, f.player.IsPlaying())
	assert.Equal(t, 0.0, f.player.CurrentTime())
}

func TestStaleCompletionIsInert(t *testing.T) {
	f := newPlayerFixture(t, true)
	require.NoError(t, f.player.Load(f.ref, 9))
	fn := f.native.completion(t)

	f.player.Teardown()
	fn()

	assert.Equal(t, StateUnloaded, f.player.State())
}

func TestPollingDetectsEndOfTrack(t *testing.T) {
	f := newPlayerFixture(t, true)
	require.NoError(t, f.player.Load(f.ref, 0.2))
	require.NoError(t, f.player.TogglePlayPause())

	f.native.mu.Lock()
	f.native.position = 1.0
	f.native.mu.Unlock()

	require.Eventually(t, func() bool {
		return f.player.State() == StateEnded
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0.0, f.player.CurrentTime())
}

func TestSpuriousErrorSuppressedOncePerLoad(t *testing.T) {
	f := newPlayerFixture(t, true)
	require.NoError(t, f.player.Load(f.ref, 9))

	var reported []string
	f.player.OnError = func(msg string) { reported = append(reported, msg) }

	f.player.reportError(errors.New("ghost failure"))
	assert.Empty(t, reported)

	// Second error on the same load is genuine.
	f.player.reportError(errors.New("real failure"))
	assert.Equal(t, []string{"real failure"}, reported)

	// A fresh load re-arms the suppression.
	require.NoError(t, f.player.Load(f.ref, 9))
	f.player.reportError(errors.New("ghost again"))
	assert.Len(t, reported, 1)
}

func TestErrorOnUnplayableHandleIsReported(t *testing.T) {
	f := newPlayerFixture(t, true)
	var reported []string
	f.player.OnError = func(msg string) { reported = append(reported, msg) }

	f.player.reportError(errors.New("load exploded"))
	assert.Equal(t, []string{"load exploded"}, reported)
}
