package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".json"

// FileDriver keeps each key as a JSON file in one directory. It is the
// fallback when the database cannot be used, and the format of legacy data.
type FileDriver struct {
	dir        string
	quotaBytes int64
}

// NewFileDriver prepares dir. quotaBytes caps the directory's total size;
// zero means no cap.
func NewFileDriver(dir string, quotaBytes int64) (*FileDriver, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file store directory: %w", err)
	}
	return &FileDriver{dir: dir, quotaBytes: quotaBytes}, nil
}

// FileOpener returns an Opener for NewFileDriver.
func FileOpener(dir string, quotaBytes int64) Opener {
	return func(context.Context) (Driver, error) {
		return NewFileDriver(dir, quotaBytes)
	}
}

// Read returns the document for key.
func (d *FileDriver) Read(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(d.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

// Write replaces the document for key via a temp file and rename so a
// crash never leaves a half-written value behind.
func (d *FileDriver) Write(_ context.Context, key string, value []byte) error {
	if d.quotaBytes > 0 {
		used, err := d.usageExcluding(key)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > d.quotaBytes {
			return fmt.Errorf("write %s (%d bytes, %d in use of %d): %w", key, len(value), used, d.quotaBytes, ErrQuotaExceeded)
		}
	}

	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, d.path(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes key if present.
func (d *FileDriver) Delete(_ context.Context, key string) error {
	if err := os.Remove(d.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every stored key.
func (d *FileDriver) Clear(_ context.Context) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("clear file store: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear file store: %w", err)
		}
	}
	return nil
}

// Close is a no-op.
func (d *FileDriver) Close() error {
	return nil
}

func (d *FileDriver) usageExcluding(key string) (int64, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("measure file store: %w", err)
	}
	skip := keyFilename(key)
	var total int64
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == skip || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

func (d *FileDriver) path(key string) string {
	return filepath.Join(d.dir, keyFilename(key))
}

// keyFilename escapes everything outside [A-Za-z0-9._-] so keys such as
// "repota:heartbeat" map to portable file names.
func keyFilename(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '_', c == '-':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String() + fileExt
}
