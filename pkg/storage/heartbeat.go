package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Heartbeat records the most recent successful save and the backend it
// went to.
type Heartbeat struct {
	Backend Backend   `json:"backend"`
	SavedAt time.Time `json:"savedAt"`
}

// HeartbeatFile keeps the heartbeat in a sidecar file outside both stores,
// so clearing a store does not clear the evidence that it held data.
type HeartbeatFile struct {
	path    string
	backend func() Backend

	mu sync.Mutex
}

// NewHeartbeatFile returns a heartbeat kept at path. backend reports the
// store that Touch should credit.
func NewHeartbeatFile(path string, backend func() Backend) *HeartbeatFile {
	return &HeartbeatFile{path: path, backend: backend}
}

// Touch records a save at at on the current backend.
func (h *HeartbeatFile) Touch(at time.Time) error {
	backend := BackendUnprobed
	if h.backend != nil {
		backend = h.backend()
	}
	return h.Mark(backend, at)
}

// Mark records a save at at on backend.
func (h *HeartbeatFile) Mark(backend Backend, at time.Time) error {
	payload, err := json.Marshal(Heartbeat{Backend: backend, SavedAt: at.UTC()})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create heartbeat dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".heartbeat-*")
	if err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write heartbeat: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write heartbeat: %w", err)
	}
	if err := os.Rename(tmp.Name(), h.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}

// Read returns the recorded heartbeat. A missing file is not an error.
func (h *HeartbeatFile) Read() (Heartbeat, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	raw, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Heartbeat{}, false, nil
	}
	if err != nil {
		return Heartbeat{}, false, fmt.Errorf("read heartbeat: %w", err)
	}
	var hb Heartbeat
	if err := json.Unmarshal(raw, &hb); err != nil {
		return Heartbeat{}, false, fmt.Errorf("decode heartbeat: %w", err)
	}
	return hb, true, nil
}
