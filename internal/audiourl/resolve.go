// Package audiourl converts persisted recordings into a form a playback
// backend can consume: a native file URI, or a data/blob URL decoded from
// stored bytes with the encoding normalized to a media-playable MIME type.
package audiourl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/memorable/voicenotes/internal/config"
	"github.com/memorable/voicenotes/internal/recorder"
	"github.com/memorable/voicenotes/internal/store"
)

// ErrDecode signals a malformed base64 payload. This is fatal and
// reported; empty audio is never substituted silently.
var ErrDecode = errors.New("invalid base64 audio data")

var base64Alphabet = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

// Resolver turns NoteRefs into playable URLs.
type Resolver struct {
	files store.FileStore
	blobs *BlobRegistry
	cfg   *config.Config
}

func NewResolver(cfg *config.Config, files store.FileStore, blobs *BlobRegistry) *Resolver {
	return &Resolver{files: files, blobs: blobs, cfg: cfg}
}

// ResolveNative resolves the file-store path to a URI the native backend
// consumes directly. Pure lookup, no decoding.
func (r *Resolver) ResolveNative(ref *recorder.NoteRef) (string, error) {
	return r.files.GetURI(ref.Path)
}

// ResolveMedia reads the stored bytes and produces a playable URL for the
// media backend. Data URLs on platforms with unreliable blob handling,
// blob URLs elsewhere.
func (r *Resolver) ResolveMedia(ref *recorder.NoteRef) (string, error) {
	data, err := r.files.Read(ref.Path)
	if err != nil {
		return "", fmt.Errorf("failed to load audio file: %w", err)
	}
	mime := NormalizeMimeType(ref.MimeType, ref.Path)
	return r.toURL(data, mime), nil
}

// FromBase64 produces a playable URL from a transient base64 payload, the
// hand-off used for the just-recorded preview. The payload is validated
// against the strict base64 alphabet before any decode attempt.
func (r *Resolver) FromBase64(b64, mimeType string) (string, error) {
	clean := CleanBase64(b64)
	if !base64Alphabet.MatchString(clean) {
		return "", ErrDecode
	}
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return r.toURL(data, NormalizeMimeType(mimeType, "")), nil
}

func (r *Resolver) toURL(data []byte, mime string) string {
	if r.cfg.PrefersDataURLs() || r.blobs == nil {
		return DataURL(data, mime)
	}
	return r.blobs.Create(data, mime)
}

// DataURL encodes the bytes as a base64 data URL.
func DataURL(data []byte, mime string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// CleanBase64 strips a data-URL prefix and stray leading slashes some
// capture plugins emit.
func CleanBase64(b64 string) string {
	if idx := strings.Index(b64, ","); idx >= 0 {
		b64 = b64[idx+1:]
	}
	return strings.TrimSpace(strings.TrimLeft(b64, "/"))
}

// NormalizeMimeType maps a capture encoding to a MIME type media players
// accept. The non-obvious rule: an AAC-flavored encoding inside an
// M4A-named container must be relabeled audio/mp4. Raw audio/aac is
// frequently rejected even though the underlying MP4 container plays.
func NormalizeMimeType(mimeType, fileName string) string {
	mime := strings.ToLower(mimeType)
	name := strings.ToLower(fileName)

	if mime != "" {
		// The encoding wins over the filename: an explicit webm/ogg/wav
		// payload keeps its type even inside an m4a-named container.
		switch {
		case strings.Contains(mime, "aac"):
			return "audio/mp4"
		case strings.Contains(mime, "webm"):
			return "audio/webm"
		case strings.Contains(mime, "ogg"):
			return "audio/ogg"
		case strings.Contains(mime, "wav"):
			return "audio/wav"
		case strings.HasSuffix(name, ".m4a"):
			return "audio/mp4"
		}
		return mime
	}

	switch {
	case strings.HasSuffix(name, ".m4a"), strings.HasSuffix(name, ".mp4"):
		return "audio/mp4"
	case strings.HasSuffix(name, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(name, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(name, ".wav"):
		return "audio/wav"
	default:
		return "audio/mp4"
	}
}
