package alerts

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// RotateConfig controls size-based rotation of the alerts file.
type RotateConfig struct {
	// FilePath is the active file name (required).
	FilePath string

	// MaxBytes triggers rotation when the active file would exceed this
	// size on the next write. Zero disables rotation (the file grows
	// without bound).
	MaxBytes int64

	// MaxBackups is the number of rotated files to keep. Zero keeps every
	// backup rotation ever produces.
	MaxBackups int
}

// RotatingFile is an io.WriteCloser that rotates the alerts file once it
// would exceed MaxBytes, renaming alerts.log -> alerts.log.1 -> ... and
// dropping backups past MaxBackups.
//
// It does not lock its own state: its only caller, alerts.Writer, already
// holds a mutex across every Write, so a second layer of locking here would
// just be redundant overhead on the hot path.
type RotatingFile struct {
	cfg    RotateConfig
	logger *slog.Logger

	file    *os.File
	written int64
}

// NewRotatingFile opens (or creates) the file at cfg.FilePath.
func NewRotatingFile(cfg RotateConfig, logger *slog.Logger) (*RotatingFile, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("alerts: rotate: FilePath is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("alerts: rotate: mkdir %s: %w", filepath.Dir(cfg.FilePath), err)
	}

	rf := &RotatingFile{cfg: cfg, logger: logger}
	if err := rf.reopen(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Write appends p, rotating first if p would push the active file past
// MaxBytes.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	if rf.cfg.MaxBytes > 0 && rf.written+int64(len(p)) > rf.cfg.MaxBytes {
		if err := rf.rotate(); err != nil {
			rf.logger.Error("alerts: rotate failed", "error", err.Error())
		}
	}

	n, err := rf.file.Write(p)
	rf.written += int64(n)
	return n, err
}

// Close closes the underlying file.
func (rf *RotatingFile) Close() error {
	if rf.file == nil {
		return nil
	}
	return rf.file.Close()
}

func (rf *RotatingFile) reopen() error {
	f, err := os.OpenFile(rf.cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("alerts: rotate: open %s: %w", rf.cfg.FilePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("alerts: rotate: stat %s: %w", rf.cfg.FilePath, err)
	}
	rf.file = f
	rf.written = info.Size()
	return nil
}

// rotate shifts every existing numbered backup up by one, moves the active
// file to the ".1" slot, drops anything past MaxBackups, and reopens a fresh
// active file.
func (rf *RotatingFile) rotate() error {
	if rf.file != nil {
		if err := rf.file.Close(); err != nil {
			rf.logger.Warn("alerts: rotate: close error", "error", err.Error())
		}
		rf.file = nil
	}

	base := rf.cfg.FilePath
	for i := rf.highestBackup(); i >= 1; i-- {
		_ = os.Rename(rf.backupPath(i), rf.backupPath(i+1))
	}
	if err := os.Rename(base, rf.backupPath(1)); err != nil && !os.IsNotExist(err) {
		rf.logger.Warn("alerts: rotate: rename error", "error", err.Error())
	}

	rf.pruneBackupsPast(rf.cfg.MaxBackups)
	rf.logger.Info("alerts: rotated", "file", base)

	return rf.reopen()
}

func (rf *RotatingFile) backupPath(n int) string {
	return fmt.Sprintf("%s.%d", rf.cfg.FilePath, n)
}

// highestBackup finds the largest existing backup index, walking up from 1
// until a gap is found. MaxBackups isn't an upper bound on what rotate sees
// here — a file left over from a larger past MaxBackups setting still needs
// to be shifted or pruned.
func (rf *RotatingFile) highestBackup() int {
	highest := 0
	for i := 1; ; i++ {
		if _, err := os.Stat(rf.backupPath(i)); os.IsNotExist(err) {
			return highest
		}
		highest = i
	}
}

func (rf *RotatingFile) pruneBackupsPast(limit int) {
	if limit <= 0 {
		return
	}
	for i := limit + 1; ; i++ {
		name := rf.backupPath(i)
		if err := os.Remove(name); err != nil {
			return
		}
		rf.logger.Debug("alerts: pruned old backup", "file", name)
	}
}
