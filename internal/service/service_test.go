package service

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorable/voicenotes/internal/config"
	"github.com/memorable/voicenotes/internal/recorder"
	"github.com/memorable/voicenotes/internal/store"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.Platform = "linux"
	return NewWithStore(cfg, store.NewWithFs(afero.NewMemMapFs(), "/data"))
}

func TestStopWithoutRecordingIsNoOp(t *testing.T) {
	svc := newTestService(t)

	note, err := svc.StopAndSave("never recorded")
	assert.NoError(t, err)
	assert.Nil(t, note)
	assert.Equal(t, recorder.StateIdle, svc.RecordingState())
}

func TestPauseResumeWithoutRecordingAreNoOps(t *testing.T) {
	svc := newTestService(t)
	assert.NoError(t, svc.PauseRecording())
	assert.NoError(t, svc.ResumeRecording())
}

func TestPlayNoteRejectsTextNotes(t *testing.T) {
	svc := newTestService(t)

	note, err := svc.Notes().CreateText("plain", "no audio here")
	require.NoError(t, err)

	err = svc.PlayNote(note.ID)
	assert.Error(t, err)

	err = svc.PlayNote("no-such-id")
	assert.Error(t, err)
}

func TestPlaybackStatusOnIdleSlot(t *testing.T) {
	svc := newTestService(t)

	status := svc.PlaybackStatus()
	assert.False(t, status.IsPlaying)
	assert.Equal(t, "0:00", status.CurrentTime)
	assert.Equal(t, "0:00", status.Duration)
}

func TestStopPlaybackOnIdleSlot(t *testing.T) {
	svc := newTestService(t)
	svc.StopPlayback()
	svc.StopPlayback()
}
