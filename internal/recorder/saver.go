package recorder

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memorable/voicenotes/internal/store"
)

// NoteRef is the durable reference a note keeps to its recording. Only the
// owning note's metadata mutates; the ref itself never does.
type NoteRef struct {
	Path     string `json:"path" yaml:"path"`
	MimeType string `json:"mimeType" yaml:"mimeType"`
	Duration int    `json:"duration,omitempty" yaml:"duration,omitempty"` // 0 means unknown, playback probes it
}

// Saver persists finished artifacts to the file store.
type Saver struct {
	files store.FileStore
}

func NewSaver(files store.FileStore) *Saver {
	return &Saver{files: files}
}

// Save writes the artifact to the file store under a fresh name and
// returns the durable reference. Artifacts are single-use; Save is called
// exactly once per artifact.
func (s *Saver) Save(artifact *Artifact) (*NoteRef, error) {
	if artifact == nil || len(artifact.Data) == 0 {
		return nil, ErrNoPayload
	}

	// The uuid fragment keeps names unique even when two artifacts land
	// in the same millisecond.
	name := fmt.Sprintf("recording-%d-%s.%s",
		time.Now().UnixMilli(), uuid.NewString()[:8], extensionFor(artifact.MimeType))

	uri, err := s.files.Write(name, artifact.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to save recording: %w", err)
	}

	// Verify the write landed; a zero-length file would surface later as
	// an unplayable note.
	if size, err := s.files.Stat(name); err != nil || size == 0 {
		return nil, fmt.Errorf("recording verification failed: %s", name)
	}

	slog.Info("recording saved", "file", name, "uri", uri, "bytes", len(artifact.Data))
	return &NoteRef{
		Path:     name,
		MimeType: artifact.MimeType,
		Duration: artifact.Duration,
	}, nil
}

// Delete removes the referenced file. Best-effort: a missing file must
// never block note deletion, so failures are logged and swallowed.
func (s *Saver) Delete(ref *NoteRef) {
	if ref == nil || ref.Path == "" {
		return
	}
	if err := s.files.Delete(ref.Path); err != nil {
		slog.Warn("failed to delete recording file", "file", ref.Path, "error", err)
	}
}

// extensionFor maps a capture encoding to the container extension used on
// disk. AAC and MP4 flavored encodings land in an M4A container.
func extensionFor(mimeType string) string {
	mime := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mime, "aac"), strings.Contains(mime, "mp4"):
		return "m4a"
	case strings.Contains(mime, "webm"):
		return "webm"
	case strings.Contains(mime, "ogg"):
		return "ogg"
	case strings.Contains(mime, "wav"):
		return "wav"
	default:
		return "m4a"
	}
}
