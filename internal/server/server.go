// Package server exposes a small local JSON API for controlling recording
// and playback, mirroring what the note-taking UI calls into.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/memorable/voicenotes/internal/recorder"
	"github.com/memorable/voicenotes/internal/service"
)

// Server wraps the service facade behind HTTP handlers.
type Server struct {
	svc  service.Service
	port string
}

// StatusResponse is the JSON shape of the status endpoint.
type StatusResponse struct {
	RecordingState    recorder.State         `json:"recording_state"`
	RecordingDuration int                    `json:"recording_duration"`
	Playback          service.PlaybackStatus `json:"playback"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(svc service.Service, port string) *Server {
	return &Server{svc: svc, port: port}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/record/start", s.handleRecordStart)
	mux.HandleFunc("/api/record/pause", s.handleRecordPause)
	mux.HandleFunc("/api/record/resume", s.handleRecordResume)
	mux.HandleFunc("/api/record/stop", s.handleRecordStop)
	mux.HandleFunc("/api/notes", s.handleNotes)
	mux.HandleFunc("/api/notes/", s.handleNoteByID)
	mux.HandleFunc("/api/playback/toggle", s.handlePlaybackToggle)
	mux.HandleFunc("/api/playback/stop", s.handlePlaybackStop)
	return mux
}

// Start runs the HTTP server. Blocks until the listener fails.
func (s *Server) Start() error {
	addr := ":" + s.port
	slog.Info("control server listening", "addr", addr, "url", s.localURL())

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		RecordingState:    s.svc.RecordingState(),
		RecordingDuration: s.svc.RecordingDuration(),
		Playback:          s.svc.PlaybackStatus(),
	})
}

func (s *Server) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.svc.StartRecording(r.Context()); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recording"})
}

func (s *Server) handleRecordPause(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.svc.PauseRecording(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(s.svc.RecordingState())})
}

func (s *Server) handleRecordResume(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.svc.ResumeRecording(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(s.svc.RecordingState())})
}

func (s *Server) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	title := r.URL.Query().Get("title")
	note, err := s.svc.StopAndSave(title)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if note == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no recording in progress"})
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	query := r.URL.Query().Get("q")
	// Non-nil so an empty collection serializes as [], not null.
	list := []interface{}{}
	var err error
	if query != "" {
		matched, searchErr := s.svc.Notes().Search(query)
		err = searchErr
		for _, n := range matched {
			list = append(list, n)
		}
	} else {
		all, listErr := s.svc.Notes().List()
		err = listErr
		for _, n := range all {
			list = append(list, n)
		}
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": list})
}

func (s *Server) handleNoteByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/notes/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case action == "play" && r.Method == http.MethodPost:
		if err := s.svc.PlayNote(id); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, s.svc.PlaybackStatus())

	case action == "" && r.Method == http.MethodGet:
		note, err := s.svc.Notes().Get(id)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, note)

	case action == "" && r.Method == http.MethodDelete:
		if err := s.svc.Notes().Delete(id); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePlaybackToggle(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := s.svc.TogglePlayPause(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.PlaybackStatus())
}

func (s *Server) handlePlaybackStop(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	s.svc.StopPlayback()
	writeJSON(w, http.StatusOK, s.svc.PlaybackStatus())
}

// localURL builds the LAN URL for controlling the app from another device.
func (s *Server) localURL() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
				return fmt.Sprintf("http://%s:%s", ipNet.IP, s.port)
			}
		}
	}
	return fmt.Sprintf("http://localhost:%s", s.port)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
