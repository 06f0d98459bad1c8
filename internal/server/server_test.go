package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memorable/voicenotes/internal/config"
	"github.com/memorable/voicenotes/internal/notes"
	"github.com/memorable/voicenotes/internal/recorder"
	"github.com/memorable/voicenotes/internal/service"
	"github.com/memorable/voicenotes/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, service.Service) {
	t.Helper()
	cfg := config.Default()
	cfg.Audio.Platform = "linux"
	svc := service.NewWithStore(cfg, store.NewWithFs(afero.NewMemMapFs(), "/data"))
	ts := httptest.NewServer(New(svc, "0").routes())
	t.Cleanup(ts.Close)
	return ts, svc
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var status StatusResponse
	code := getJSON(t, ts.URL+"/api/status", &status)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, recorder.StateIdle, status.RecordingState)
	assert.Equal(t, "0:00", status.Playback.CurrentTime)
}

func TestRecordEndpointsRequirePost(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{
		"/api/record/start",
		"/api/record/stop",
		"/api/playback/toggle",
		"/api/playback/stop",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, "path %s", path)
	}
}

func TestStopWithoutRecording(t *testing.T) {
	ts, _ := newTestServer(t)

	var body map[string]string
	code := postJSON(t, ts.URL+"/api/record/stop", &body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "no recording in progress", body["status"])
}

func TestNotesLifecycleOverHTTP(t *testing.T) {
	ts, svc := newTestServer(t)

	created, err := svc.Notes().CreateText("From CLI", "seeded directly")
	require.NoError(t, err)

	var listing struct {
		Notes []notes.Note `json:"notes"`
	}
	code := getJSON(t, ts.URL+"/api/notes", &listing)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, listing.Notes, 1)
	assert.Equal(t, "From CLI", listing.Notes[0].Title)

	var single notes.Note
	code = getJSON(t, ts.URL+"/api/notes/"+created.ID, &single)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, created.ID, single.ID)

	// Search narrows the listing.
	code = getJSON(t, ts.URL+"/api/notes?q=nothing", &listing)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, listing.Notes)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/notes/"+created.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code = getJSON(t, ts.URL+"/api/notes/"+created.ID, &single)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestEmptyNotesListingIsAnArray(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/notes")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"notes":[]`)
}

func TestGetUnknownNote(t *testing.T) {
	ts, _ := newTestServer(t)

	var errBody map[string]string
	code := getJSON(t, ts.URL+"/api/notes/nope", &errBody)
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, errBody["error"])
}

func TestPlayTextNoteFails(t *testing.T) {
	ts, svc := newTestServer(t)

	created, err := svc.Notes().CreateText("plain", "")
	require.NoError(t, err)

	var errBody map[string]string
	code := postJSON(t, ts.URL+"/api/notes/"+created.ID+"/play", &errBody)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotEmpty(t, errBody["error"])
}

func TestPlaybackStopIsAlwaysSafe(t *testing.T) {
	ts, _ := newTestServer(t)

	var status service.PlaybackStatus
	code := postJSON(t, ts.URL+"/api/playback/stop", &status)
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, status.IsPlaying)
}
