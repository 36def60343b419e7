// Package media persists archive copies of relayed platform files on the
// local filesystem. File extensions are inferred from content sniffing
// first, the platform-declared MIME type second, and a kind-keyed fallback
// table when neither yields anything usable.
package media

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/veilchat/anonbot/internal/domain"
)

// fallbackExt maps a content kind to a default file extension, used when
// MIME detection is inconclusive (Telegram omits MIME types for several
// kinds, and sniffing can come back as application/octet-stream).
var fallbackExt = map[domain.ContentKind]string{
	domain.KindPhoto:     ".jpg",
	domain.KindVideo:     ".mp4",
	domain.KindVoice:     ".ogg",
	domain.KindAudio:     ".mp3",
	domain.KindSticker:   ".webp",
	domain.KindAnimation: ".mp4",
	domain.KindVideoNote: ".mp4",
	domain.KindDocument:  ".bin",
}

// Store writes archive files under a base directory.
type Store struct {
	dir string
}

// NewStore creates the base directory if needed and returns a store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the file bytes to disk and returns the stored path. The name
// is derived from the platform file id and a timestamp, so repeated relays
// of the same file never collide.
func (s *Store) Save(kind domain.ContentKind, ref domain.FileRef, data []byte, declaredMime string) (string, error) {
	name := fmt.Sprintf("%s_%d%s", ref.FileID, time.Now().UnixNano(), s.extension(kind, ref, data, declaredMime))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("media: write %s: %w", path, err)
	}
	return path, nil
}

// extension picks the archive file extension: the original file name's
// extension when present, then content sniffing, then the declared MIME
// type, then the kind fallback table.
func (s *Store) extension(kind domain.ContentKind, ref domain.FileRef, data []byte, declaredMime string) string {
	if ext := filepath.Ext(ref.FileName); ext != "" {
		return ext
	}

	if len(data) > 0 {
		detected := mimetype.Detect(data)
		if ext := detected.Extension(); ext != "" && detected.String() != "application/octet-stream" {
			return ext
		}
	}

	if declaredMime != "" {
		if exts, err := mime.ExtensionsByType(declaredMime); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}

	if ext, ok := fallbackExt[kind]; ok {
		return ext
	}
	return ".bin"
}
