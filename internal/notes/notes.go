// Package notes persists the note records that own recordings. Storage is
// a single JSON blob in the file store, a flat key-value layout with no
// query layer behind it.
package notes

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/memorable/voicenotes/internal/recorder"
	"github.com/memorable/voicenotes/internal/store"
)

// NoteType distinguishes plain text notes from voice memos.
type NoteType string

const (
	TypeText  NoteType = "text"
	TypeAudio NoteType = "audio"
)

// Note is one stored note. Audio notes carry a reference to their
// recording file; the reference itself never mutates after creation.
type Note struct {
	ID        string            `json:"id" yaml:"id"`
	Type      NoteType          `json:"type" yaml:"type"`
	Title     string            `json:"title" yaml:"title"`
	Body      string            `json:"body,omitempty" yaml:"body,omitempty"`
	Audio     *recorder.NoteRef `json:"audio,omitempty" yaml:"audio,omitempty"`
	CreatedAt int64             `json:"createdAt" yaml:"createdAt"`
	UpdatedAt int64             `json:"updatedAt" yaml:"updatedAt"`
}

const storageKey = "notes.json"

type storageBlob struct {
	Notes []Note `json:"notes"`
}

// Store is the note collection. A mutex serializes the read-modify-write
// cycle against the underlying blob.
type Store struct {
	files store.FileStore
	saver *recorder.Saver

	mu sync.Mutex
}

func NewStore(files store.FileStore, saver *recorder.Saver) *Store {
	return &Store{files: files, saver: saver}
}

// List returns all notes, newest first.
func (s *Store) List() ([]Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notes, err := s.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt > notes[j].CreatedAt
	})
	return notes, nil
}

// Get returns the note with the given id.
func (s *Store) Get(id string) (*Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notes, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range notes {
		if notes[i].ID == id {
			return &notes[i], nil
		}
	}
	return nil, fmt.Errorf("note not found: %s", id)
}

// CreateText creates a plain text note.
func (s *Store) CreateText(title, body string) (*Note, error) {
	return s.create(Note{Type: TypeText, Title: title, Body: body})
}

// CreateAudio creates a voice memo owning the given recording reference.
func (s *Store) CreateAudio(title string, ref *recorder.NoteRef) (*Note, error) {
	if ref == nil || ref.Path == "" {
		return nil, fmt.Errorf("audio note requires a recording reference")
	}
	return s.create(Note{Type: TypeAudio, Title: title, Audio: ref})
}

func (s *Store) create(note Note) (*Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes, err := s.load()
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	note.ID = uuid.NewString()
	note.CreatedAt = now
	note.UpdatedAt = now
	if note.Title == "" {
		note.Title = defaultTitle(note.Type, now)
	}

	notes = append(notes, note)
	if err := s.save(notes); err != nil {
		return nil, err
	}

	slog.Info("note created", "id", note.ID, "type", note.Type)
	return &note, nil
}

// Update changes a note's title and, for text notes, body. The audio
// reference is immutable.
func (s *Store) Update(id, title, body string) (*Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range notes {
		if notes[i].ID != id {
			continue
		}
		if title != "" {
			notes[i].Title = title
		}
		if notes[i].Type == TypeText && body != "" {
			notes[i].Body = body
		}
		notes[i].UpdatedAt = time.Now().UnixMilli()
		if err := s.save(notes); err != nil {
			return nil, err
		}
		return &notes[i], nil
	}
	return nil, fmt.Errorf("note not found: %s", id)
}

// Delete removes a note. The recording file of an audio note is cleaned
// up best-effort; a missing file never blocks deletion.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes, err := s.load()
	if err != nil {
		return err
	}
	for i := range notes {
		if notes[i].ID != id {
			continue
		}
		if notes[i].Type == TypeAudio && s.saver != nil {
			s.saver.Delete(notes[i].Audio)
		}
		notes = append(notes[:i], notes[i+1:]...)
		if err := s.save(notes); err != nil {
			return err
		}
		slog.Info("note deleted", "id", id)
		return nil
	}
	return fmt.Errorf("note not found: %s", id)
}

// Search returns notes whose title or body contains the query,
// case-insensitive, newest first.
func (s *Store) Search(query string) ([]Note, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var matched []Note
	for _, note := range all {
		if strings.Contains(strings.ToLower(note.Title), q) ||
			strings.Contains(strings.ToLower(note.Body), q) {
			matched = append(matched, note)
		}
	}
	return matched, nil
}

// ExportYAML renders all notes as YAML.
func (s *Store) ExportYAML() ([]byte, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(map[string][]Note{"notes": all})
}

func (s *Store) load() ([]Note, error) {
	data, err := s.files.Read(storageKey)
	if err != nil {
		// First run: no blob yet.
		return nil, nil
	}
	var blob storageBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("failed to parse notes storage: %w", err)
	}
	return blob.Notes, nil
}

func (s *Store) save(notes []Note) error {
	data, err := json.Marshal(storageBlob{Notes: notes})
	if err != nil {
		return fmt.Errorf("failed to encode notes: %w", err)
	}
	if _, err := s.files.Write(storageKey, data); err != nil {
		return fmt.Errorf("failed to save notes: %w", err)
	}
	return nil
}

func defaultTitle(noteType NoteType, now int64) string {
	stamp := time.UnixMilli(now).Format("Jan 2 15:04")
	if noteType == TypeAudio {
		return "Voice memo " + stamp
	}
	return "Note " + stamp
}
