package audiourl

import (
	"encoding/base64"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorable/voicenotes/internal/config"
	"github.com/memorable/voicenotes/internal/recorder"
	"github.com/memorable/voicenotes/internal/store"
)

func TestNormalizeMimeType(t *testing.T) {
	cases := []struct {
		mime string
		name string
		want string
	}{
		// The relabeling rule: AAC-flavored encodings play as audio/mp4.
		{"audio/aac", "", "audio/mp4"},
		{"audio/aac", "recording-1.m4a", "audio/mp4"},
		{"audio/x-aac", "", "audio/mp4"},
		{"audio/mpeg", "recording-1.m4a", "audio/mp4"},
		{"AUDIO/AAC", "", "audio/mp4"},

		{"audio/webm;codecs=opus", "", "audio/webm"},
		{"audio/ogg", "", "audio/ogg"},
		{"audio/wav", "", "audio/wav"},
		{"audio/mpeg", "song.mp3", "audio/mpeg"},

		// An explicit non-AAC encoding survives an m4a-named container.
		{"audio/webm", "recording-1.m4a", "audio/webm"},
		{"audio/ogg", "recording-1.m4a", "audio/ogg"},
		{"audio/wav", "recording-1.m4a", "audio/wav"},

		// Extension-only fallback when no encoding was recorded.
		{"", "recording-1.m4a", "audio/mp4"},
		{"", "recording-1.mp4", "audio/mp4"},
		{"", "recording-1.webm", "audio/webm"},
		{"", "recording-1.ogg", "audio/ogg"},
		{"", "recording-1.wav", "audio/wav"},
		{"", "recording-1.bin", "audio/mp4"},
		{"", "", "audio/mp4"},
	}
	for _, tc := range cases {
		got := NormalizeMimeType(tc.mime, tc.name)
		assert.Equal(t, tc.want, got, "mime=%q name=%q", tc.mime, tc.name)
	}
}

func newTestResolver(t *testing.T, platform string) (*Resolver, store.FileStore, *BlobRegistry) {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.Platform = platform
	files := store.NewWithFs(afero.NewMemMapFs(), "/data/audio")
	blobs := NewBlobRegistry()
	return NewResolver(cfg, files, blobs), files, blobs
}

func TestResolveNative(t *testing.T) {
	r, files, _ := newTestResolver(t, "linux")
	_, err := files.Write("recording-1.m4a", []byte("bytes"))
	require.NoError(t, err)

	uri, err := r.ResolveNative(&recorder.NoteRef{Path: "recording-1.m4a", MimeType: "audio/aac"})
	require.NoError(t, err)
	assert.Equal(t, "file:///data/audio/recording-1.m4a", uri)
}

func TestResolveMediaProducesBlobURL(t *testing.T) {
	r, files, blobs := newTestResolver(t, "linux")
	_, err := files.Write("recording-1.m4a", []byte("payload"))
	require.NoError(t, err)

	url, err := r.ResolveMedia(&recorder.NoteRef{Path: "recording-1.m4a", MimeType: "audio/aac"})
	require.NoError(t, err)
	require.True(t, IsBlobURL(url), "url %q", url)

	data, mime, err := blobs.Get(url)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, "audio/mp4", mime)
}

func TestResolveMediaPrefersDataURLOnConfiguredPlatform(t *testing.T) {
	r, files, blobs := newTestResolver(t, "ios")
	_, err := files.Write("recording-1.m4a", []byte("payload"))
	require.NoError(t, err)

	url, err := r.ResolveMedia(&recorder.NoteRef{Path: "recording-1.m4a", MimeType: "audio/aac"})
	require.NoError(t, err)
	require.True(t, IsDataURL(url), "url %q", url)
	assert.Equal(t, 0, blobs.Len())

	data, mime, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, "audio/mp4", mime)
}

func TestResolveMediaMissingFile(t *testing.T) {
	r, _, _ := newTestResolver(t, "linux")
	_, err := r.ResolveMedia(&recorder.NoteRef{Path: "missing.m4a"})
	assert.Error(t, err)
}

func TestFromBase64(t *testing.T) {
	r, _, blobs := newTestResolver(t, "linux")
	b64 := base64.StdEncoding.EncodeToString([]byte("raw-audio"))

	url, err := r.FromBase64(b64, "audio/aac")
	require.NoError(t, err)
	require.True(t, IsBlobURL(url))

	data, mime, err := blobs.Get(url)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw-audio"), data)
	assert.Equal(t, "audio/mp4", mime)
}

func TestFromBase64RejectsMalformedInput(t *testing.T) {
	r, _, blobs := newTestResolver(t, "linux")

	for _, bad := range []string{
		"not!!valid",
		"abc===",
		"abc d",
		"%%%",
		"YWJjZA==extra!",
	} {
		url, err := r.FromBase64(bad, "audio/aac")
		assert.ErrorIs(t, err, ErrDecode, "input %q", bad)
		assert.Empty(t, url, "input %q", bad)
	}
	// Nothing leaked into the registry on the failure path.
	assert.Equal(t, 0, blobs.Len())
}

func TestFromBase64AcceptsDataURLPrefixAndSlashes(t *testing.T) {
	r, _, _ := newTestResolver(t, "ios")
	b64 := base64.StdEncoding.EncodeToString([]byte("x"))

	url, err := r.FromBase64("data:audio/aac;base64,"+b64, "audio/aac")
	require.NoError(t, err)
	assert.True(t, IsDataURL(url))
}

func TestCleanBase64(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"YWJj", "YWJj"},
		{"data:audio/aac;base64,YWJj", "YWJj"},
		{"///YWJj", "YWJj"},
		{"  YWJj  ", "YWJj"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanBase64(tc.in), "input %q", tc.in)
	}
}

func TestSaveThenResolveRoundTrip(t *testing.T) {
	r, files, _ := newTestResolver(t, "ios")
	saver := recorder.NewSaver(files)

	ref, err := saver.Save(&recorder.Artifact{Data: []byte("recorded"), MimeType: "audio/aac", Duration: 3})
	require.NoError(t, err)

	url, err := r.ResolveMedia(ref)
	require.NoError(t, err)

	data, mime, err := DecodeDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, []byte("recorded"), data)
	assert.Equal(t, "audio/mp4", mime)
}
