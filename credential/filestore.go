package credential

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/user"
	"path/filepath"
	"sync"
)

// DefaultFileName is the token file kept in the user's home directory.
const DefaultFileName = ".glowbook_tokens.json"

// FileStore persists credentials to a JSON file so a session survives
// process restarts. Writes go through a temp file and rename so the pair
// is always replaced atomically. If the file cannot be written the store
// degrades to memory-only for the rest of the process life rather than
// failing the session.
type FileStore struct {
	path string

	mu       sync.Mutex
	mem      Credentials
	memHeld  bool
	degraded bool
}

// NewFileStore creates a store backed by the given path. An empty path
// uses DefaultFileName in the user's home directory.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		usr, err := user.Current()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(usr.HomeDir, DefaultFileName)
	}
	return &FileStore{path: path}, nil
}

// Get implements Store.
func (fs *FileStore) Get() (Credentials, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.degraded {
		return fs.mem, fs.memHeld
	}

	b, err := os.ReadFile(fs.path)
	if err != nil {
		return Credentials{}, false
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil || !c.valid() || c.IsZero() {
		return Credentials{}, false
	}
	return c, true
}

// Set implements Store.
func (fs *FileStore) Set(c Credentials) error {
	if !c.valid() || c.IsZero() {
		return ErrHalfSet
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.degraded {
		if err := fs.write(c); err == nil {
			return nil
		}
		fs.degraded = true
	}
	fs.mem = c
	fs.memHeld = true
	return nil
}

// Clear implements Store.
func (fs *FileStore) Clear() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.mem = Credentials{}
	fs.memHeld = false
	if fs.degraded {
		return nil
	}
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// write stores the pair via temp file + rename (atomic on POSIX).
func (fs *FileStore) write(c Credentials) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := fs.path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, fs.path)
}
