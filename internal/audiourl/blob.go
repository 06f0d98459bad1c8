package audiourl

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrBlobNotFound signals a lookup of a revoked or unknown blob URL.
var ErrBlobNotFound = errors.New("blob URL not found")

const blobScheme = "blob:"

type blobEntry struct {
	data []byte
	mime string
}

// BlobRegistry is the in-memory object store behind blob URLs. Entries
// live until explicitly revoked; an unrevoked blob leaks its bytes for
// the process lifetime, so the playback engine revokes on teardown and
// before loading a new source.
type BlobRegistry struct {
	mu      sync.Mutex
	entries map[string]blobEntry
}

func NewBlobRegistry() *BlobRegistry {
	return &BlobRegistry{entries: make(map[string]blobEntry)}
}

// Create registers the bytes and returns a revocable blob URL.
func (r *BlobRegistry) Create(data []byte, mime string) string {
	url := blobScheme + uuid.NewString()
	r.mu.Lock()
	r.entries[url] = blobEntry{data: data, mime: mime}
	r.mu.Unlock()
	slog.Debug("blob URL created", "url", url, "bytes", len(data), "mime", mime)
	return url
}

// Get returns the bytes and MIME type behind a blob URL.
func (r *BlobRegistry) Get(url string) ([]byte, string, error) {
	r.mu.Lock()
	entry, ok := r.entries[url]
	r.mu.Unlock()
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	return entry.data, entry.mime, nil
}

// Revoke releases the bytes behind a blob URL. Revoking an unknown URL is
// a no-op.
func (r *BlobRegistry) Revoke(url string) {
	if !IsBlobURL(url) {
		return
	}
	r.mu.Lock()
	delete(r.entries, url)
	r.mu.Unlock()
	slog.Debug("blob URL revoked", "url", url)
}

// Len reports the number of live blobs.
func (r *BlobRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsBlobURL reports whether the URL belongs to a blob registry.
func IsBlobURL(url string) bool {
	return strings.HasPrefix(url, blobScheme)
}

// IsDataURL reports whether the URL is an inline data URL.
func IsDataURL(url string) bool {
	return strings.HasPrefix(url, "data:")
}

// DecodeDataURL extracts the bytes and MIME type from a data URL.
func DecodeDataURL(url string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, "", ErrDecode
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrDecode
	}
	mime := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", ErrDecode
	}
	return data, mime, nil
}
