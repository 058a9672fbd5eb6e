// Package logger builds the process-wide structured logger: plain
// console output in development, a size-rotated file in production.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"notecore/internal/config"
)

const backupTimeFormat = "20060102-150405"

// rotatingWriter is an io.Writer that writes to a file and rotates when
// the file exceeds maxSize, keeping at most maxFiles backups.
type rotatingWriter struct {
	mu       sync.Mutex
	file     *os.File
	dir      string
	name     string
	size     int64
	maxSize  int64
	maxFiles int
}

func newRotatingWriter(path string, maxSize int64, maxFiles int) (*rotatingWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	w := &rotatingWriter{
		dir:      dir,
		name:     filepath.Base(path),
		maxSize:  maxSize,
		maxFiles: maxFiles,
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rotatingWriter) openFile() error {
	path := filepath.Join(w.dir, w.name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		_ = w.rotate()
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *rotatingWriter) rotate() error {
	if w.file != nil {
		w.file.Close()
	}

	src := filepath.Join(w.dir, w.name)
	stamp := time.Now().Format(backupTimeFormat)
	ext := filepath.Ext(w.name)
	base := strings.TrimSuffix(w.name, ext)
	dst := filepath.Join(w.dir, fmt.Sprintf("%s-%s%s", base, stamp, ext))
	if err := os.Rename(src, dst); err != nil && !os.IsNotExist(err) {
		return w.openFile()
	}

	w.cleanBackups()
	return w.openFile()
}

func (w *rotatingWriter) cleanBackups() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	ext := filepath.Ext(w.name)
	base := strings.TrimSuffix(w.name, ext)
	prefix := base + "-"

	var backups []string
	for _, e := range entries {
		name := e.Name()
		if name != w.name && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ext) {
			backups = append(backups, name)
		}
	}

	if len(backups) <= w.maxFiles {
		return
	}

	sort.Strings(backups)
	for _, name := range backups[:len(backups)-w.maxFiles] {
		os.Remove(filepath.Join(w.dir, name))
	}
}

func (w *rotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// New builds a *slog.Logger from cfg. "console" writes text-formatted
// records to stderr; "file" writes to a rotating file under cfg.LogFile.
// The returned cleanup must be called on shutdown.
func New(cfg config.Config) (logger *slog.Logger, cleanup func(), err error) {
	level := parseLevel(cfg.LogLevel)

	var writer io.Writer
	cleanup = func() {}

	switch cfg.LogType {
	case "file":
		w, err := newRotatingWriter(cfg.LogFile, cfg.LogMaxBytes, cfg.LogMaxBackups)
		if err != nil {
			return nil, nil, fmt.Errorf("init rotating writer: %w", err)
		}
		writer = w
		cleanup = func() { w.Close() }
	default:
		writer = os.Stderr
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	return logger, cleanup, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
