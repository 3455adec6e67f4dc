package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrOutsideExportDir rejects names that would escape the export directory.
var ErrOutsideExportDir = fmt.Errorf("storage: export path escapes base directory")

// ExportDir holds generated broadsheet files under a single directory.
type ExportDir struct {
	baseDir string
	now     func() time.Time
}

// NewExportDir creates baseDir if needed.
func NewExportDir(baseDir string) (*ExportDir, error) {
	if baseDir == "" {
		baseDir = "./exports"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create exports directory: %w", err)
	}
	return &ExportDir{baseDir: baseDir, now: time.Now}, nil
}

// Save writes data to name, a path relative to the export directory, and
// returns the cleaned relative name.
func (e *ExportDir) Save(name string, data []byte) (string, error) {
	rel, path, err := e.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	return rel, nil
}

// Open returns a read handle for a stored export.
func (e *ExportDir) Open(name string) (*os.File, error) {
	_, path, err := e.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return file, nil
}

// Remove deletes a stored export if present.
func (e *ExportDir) Remove(name string) error {
	_, path, err := e.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete export file: %w", err)
	}
	return nil
}

// Prune deletes exports last modified more than maxAge ago and returns
// their relative names.
func (e *ExportDir) Prune(maxAge time.Duration) ([]string, error) {
	cutoff := e.now().Add(-maxAge)
	var removed []string
	err := filepath.WalkDir(e.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		if rel, relErr := filepath.Rel(e.baseDir, path); relErr == nil {
			removed = append(removed, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("prune exports: %w", err)
	}
	return removed, nil
}

func (e *ExportDir) resolve(name string) (string, string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(name)))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", "", ErrOutsideExportDir
	}
	return filepath.ToSlash(clean), filepath.Join(e.baseDir, clean), nil
}
