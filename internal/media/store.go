package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MaxVoicePayloadBytes caps uploaded voice message payloads.
const MaxVoicePayloadBytes = 1 << 20

// Store writes uploaded attachment payloads to a directory on local disk.
// Stored names are generated, never taken from the client.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	return &Store{dir: dir}, nil
}

// Save streams the payload into a new file and returns the stored name.
func (s *Store) Save(r io.Reader, ext string) (string, error) {
	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create attachment file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(r, MaxVoicePayloadBytes)); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write attachment: %w", err)
	}

	return name, nil
}

// Open opens a stored payload by name. Names containing path separators are
// rejected so a crafted name cannot escape the media dir.
func (s *Store) Open(name string) (*os.File, error) {
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid attachment name %q", name)
	}

	return os.Open(filepath.Join(s.dir, name))
}
