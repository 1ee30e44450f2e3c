package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aragroup/ara-platform/internal/config"
)

// FileShipper appends entries to a JSON-lines file, rotating it to
// path.1..path.N once it exceeds the size limit.
type FileShipper struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileShipper opens (or creates) cfg.Path.
func NewFileShipper(cfg *config.AuditFileConfig) (*FileShipper, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	fs := &FileShipper{
		path:       cfg.Path,
		maxBytes:   int64(cfg.MaxSizeMB) << 20,
		maxBackups: cfg.MaxBackups,
	}
	if err := fs.open(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileShipper) open() error {
	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat audit log file: %w", err)
	}
	fs.file, fs.size = f, info.Size()
	return nil
}

// Ship writes entry as one line.
func (fs *FileShipper) Ship(_ context.Context, entry *LogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.file == nil {
		return fmt.Errorf("file shipper is closed")
	}
	if fs.maxBytes > 0 && fs.size > 0 && fs.size+int64(len(line)) > fs.maxBytes {
		if err := fs.rotate(); err != nil {
			slog.Error("failed to rotate audit log", "path", fs.path, "error", err)
			if fs.file == nil {
				if err := fs.open(); err != nil {
					return err
				}
			}
		}
	}
	n, err := fs.file.Write(line)
	fs.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// rotate shifts path.i to path.i+1, drops anything past maxBackups and
// reopens an empty path. With no backups the file is truncated.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}
	fs.file = nil
	if fs.maxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.path, fs.maxBackups))
		for i := fs.maxBackups - 1; i >= 1; i-- {
			_ = os.Rename(fmt.Sprintf("%s.%d", fs.path, i), fmt.Sprintf("%s.%d", fs.path, i+1))
		}
		if err := os.Rename(fs.path, fs.path+".1"); err != nil {
			return err
		}
	} else if err := os.Truncate(fs.path, 0); err != nil {
		return err
	}
	return fs.open()
}

// Close closes the file.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
