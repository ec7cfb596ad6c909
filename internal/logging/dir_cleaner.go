package logging

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

const dirCleanerInterval = time.Minute

var dirCleanerCancel context.CancelFunc

// configureDirCleanerLocked starts (or stops) the background goroutine
// that deletes the oldest rotated log files once the directory exceeds
// maxTotalSizeMB. The active log file is never deleted. Callers hold
// outMu.
func configureDirCleanerLocked(dir string, maxTotalSizeMB int, protectedPath string) {
	stopDirCleanerLocked()
	if maxTotalSizeMB <= 0 || dir == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	dirCleanerCancel = cancel
	go runDirCleaner(ctx, filepath.Clean(dir), int64(maxTotalSizeMB)*1024*1024, protectedPath)
}

func stopDirCleanerLocked() {
	if dirCleanerCancel != nil {
		dirCleanerCancel()
		dirCleanerCancel = nil
	}
}

func runDirCleaner(ctx context.Context, dir string, maxBytes int64, protectedPath string) {
	ticker := time.NewTicker(dirCleanerInterval)
	defer ticker.Stop()

	cleanLogDirOnce(dir, maxBytes, protectedPath)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanLogDirOnce(dir, maxBytes, protectedPath)
		}
	}
}

type logFileInfo struct {
	path    string
	size    int64
	modTime time.Time
}

// cleanLogDirOnce removes oldest-first log files until the directory's
// total size is within maxBytes.
func cleanLogDirOnce(dir string, maxBytes int64, protectedPath string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var files []logFileInfo
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		files = append(files, logFileInfo{path: path, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
	}
	if total <= maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	for _, f := range files {
		if total <= maxBytes {
			return
		}
		if f.path == protectedPath {
			continue
		}
		if err := os.Remove(f.path); err != nil {
			log.Debugf("logging: remove rotated log %s: %v", f.path, err)
			continue
		}
		total -= f.size
	}
}
