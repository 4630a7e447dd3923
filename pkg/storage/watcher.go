package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// A release request is a small file next to the database holding the schema
// version another process wants to open the store at. Holders watch for it
// and close their handle when that version is newer than their own.
const releaseSuffix = ".release"

func releasePath(dbPath string) string {
	return dbPath + releaseSuffix
}

// writeReleaseRequest atomically replaces the release request for dbPath
func writeReleaseRequest(dbPath string, version int) error {
	target := releasePath(dbPath)
	tmp, err := os.CreateTemp(filepath.Dir(dbPath), filepath.Base(target)+".tmp*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.WriteString(strconv.Itoa(version) + "\n"); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// readReleaseRequest returns the version in the release request for dbPath
func readReleaseRequest(dbPath string) (int, error) {
	data, err := os.ReadFile(releasePath(dbPath))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed release request: %w", err)
	}
	return v, nil
}

type releaseWatcher struct {
	w    *fsnotify.Watcher
	done chan struct{}
}

// watchReleaseRequests calls onRequest with the requested version every time
// the release request for dbPath is written, until ctx ends or Close is called.
func watchReleaseRequests(ctx context.Context, dbPath string, onRequest func(version int), logger zerolog.Logger) (*releaseWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: the request file may not exist yet and is replaced by rename
	if err := w.Add(filepath.Dir(dbPath)); err != nil {
		_ = w.Close()
		return nil, err
	}

	target := filepath.Clean(releasePath(dbPath))
	rw := &releaseWatcher{w: w, done: make(chan struct{})}

	go func() {
		defer close(rw.done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				version, err := readReleaseRequest(dbPath)
				if err != nil {
					logger.Debug().Err(err).Msg("Ignoring release request")
					continue
				}
				onRequest(version)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("Error watching for release requests")
			}
		}
	}()

	return rw, nil
}

// Close stops the watcher and waits for its goroutine to exit
func (rw *releaseWatcher) Close() {
	_ = rw.w.Close()
	<-rw.done
}
