// Package watcher feeds video files dropped into an inbox directory through
// the pipeline.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"notez-go/internal/logger"
)

// Handler processes one file from the inbox.
type Handler func(ctx context.Context, path string) error

var videoExts = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".mkv": true, ".webm": true,
}

type Watcher struct {
	inbox   string
	handler Handler
	fsw     *fsnotify.Watcher
	sem     chan struct{}
	wg      sync.WaitGroup
	settle  time.Duration
	log     *logger.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

func New(inbox string, handler Handler, maxConcurrent int, log *logger.Logger) (*Watcher, error) {
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(inbox); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Watcher{
		inbox:    inbox,
		handler:  handler,
		fsw:      fsw,
		sem:      make(chan struct{}, maxConcurrent),
		settle:   500 * time.Millisecond,
		log:      log.WithComponent("watcher"),
		inflight: map[string]bool{},
	}, nil
}

// Start dispatches new video files until ctx ends, then waits for running
// handlers to return.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.WithField("inbox", w.inbox).WithField("max_concurrent", cap(w.sem)).Info("watching inbox")

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				w.wg.Wait()
				return fmt.Errorf("watcher events channel closed")
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !isVideo(event.Name) {
				w.log.WithField("file", event.Name).Debug("ignoring non-video file")
				continue
			}
			if !w.claim(event.Name) {
				continue
			}

			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				w.release(event.Name)
				w.wg.Wait()
				return ctx.Err()
			}
			w.wg.Add(1)
			go func(path string) {
				defer w.wg.Done()
				defer func() { <-w.sem }()
				defer w.release(path)

				if err := w.waitStable(ctx, path); err != nil {
					w.log.WithField("file", path).WithField("error", err.Error()).Warn("file never settled")
					return
				}
				if err := w.handler(ctx, path); err != nil {
					w.log.WithField("file", path).WithField("error", err.Error()).Error("failed to process file")
				}
			}(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.wg.Wait()
				return fmt.Errorf("watcher errors channel closed")
			}
			w.log.WithField("error", err.Error()).Error("watcher error")
		}
	}
}

func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func (w *Watcher) claim(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inflight[path] {
		return false
	}
	w.inflight[path] = true
	return true
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}

// waitStable returns once the file size stops changing between two checks.
func (w *Watcher) waitStable(ctx context.Context, path string) error {
	last := int64(-1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.settle):
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Size() == last {
			return nil
		}
		last = info.Size()
	}
}

func isVideo(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return videoExts[strings.ToLower(filepath.Ext(path))]
}
