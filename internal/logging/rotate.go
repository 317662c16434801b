package logging

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const megabyte = 1024 * 1024

// backupTimeFormat is the timestamp lumberjack puts in backup file names
const backupTimeFormat = "2006-01-02T15-04-05.000"

// rotatingFile rotates a lumberjack file before a write would take it past
// maxBytes and keeps at most backups rotated files. lumberjack only sizes
// files in whole megabytes and treats zero backups as unlimited, so both
// limits are enforced here.
type rotatingFile struct {
	mu       sync.Mutex
	file     *lumberjack.Logger
	maxBytes int64
	backups  int
	size     int64
}

func newRotatingFile(path string, maxBytes int64, backups int) *rotatingFile {
	r := &rotatingFile{
		file: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotationSizeMB(maxBytes),
			MaxBackups: backups,
		},
		maxBytes: maxBytes,
		backups:  backups,
	}
	// lumberjack appends to an existing file
	if info, err := os.Stat(path); err == nil {
		r.size = info.Size()
	}
	return r
}

// Write rotates first when p would not fit. A record larger than maxBytes
// still lands whole in a fresh file.
func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) rotate() error {
	if err := r.file.Rotate(); err != nil {
		return err
	}
	r.size = 0
	return r.prune()
}

// Close closes the active file
func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}

// prune removes every backup past the newest r.backups
func (r *rotatingFile) prune() error {
	backups, err := r.backupFiles()
	if err != nil || len(backups) <= r.backups {
		return err
	}

	var errs []error
	for _, path := range backups[r.backups:] {
		// lumberjack's own cleanup may get there first
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// backupFiles lists the rotated files of the active file, newest first
func (r *rotatingFile) backupFiles() ([]string, error) {
	dir := filepath.Dir(r.file.Filename)
	base := filepath.Base(r.file.Filename)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "-"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type backup struct {
		path string
		at   time.Time
	}
	var found []backup
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
		at, err := time.Parse(backupTimeFormat, stamp)
		if err != nil {
			continue
		}
		found = append(found, backup{path: filepath.Join(dir, name), at: at})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].at.After(found[j].at) })
	paths := make([]string, len(found))
	for i, b := range found {
		paths[i] = b.path
	}
	return paths, nil
}

// rotationSizeMB rounds up to whole megabytes, lumberjack's unit. It is only
// a ceiling; rotatingFile rotates at the exact byte count first.
func rotationSizeMB(maxBytes int64) int {
	if maxBytes <= 0 {
		return 0
	}
	return int((maxBytes + megabyte - 1) / megabyte)
}
