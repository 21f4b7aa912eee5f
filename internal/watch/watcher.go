// Package watch converts files as they are dropped into a folder.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"arstate/internal/media"
	"arstate/internal/processor"
)

// Handler processes one file once it has stopped changing.
type Handler func(ctx context.Context, path string) error

type Watcher struct {
	dir     string
	skipDir string
	delay   time.Duration
	handle  Handler
	w       *fsnotify.Watcher
	log     zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// New watches dir (not recursively). Events under skipDir are ignored so a
// nested output folder does not feed itself.
func New(dir, skipDir string, delay time.Duration, handle Handler, log zerolog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	if skipDir != "" {
		if abs, err := filepath.Abs(skipDir); err == nil {
			skipDir = abs
		}
	}
	return &Watcher{
		dir:     dir,
		skipDir: skipDir,
		delay:   delay,
		handle:  handle,
		w:       w,
		log:     log.With().Str("comp", "watch").Str("dir", dir).Logger(),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Run dispatches events until ctx is done, then waits for running handlers.
func (wr *Watcher) Run(ctx context.Context) error {
	defer wr.wg.Wait()
	defer wr.stopPending()
	defer wr.w.Close()

	wr.log.Info().Msg("watching")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-wr.w.Events:
			if !ok {
				return nil
			}
			wr.handleEvent(ctx, ev)
		case err, ok := <-wr.w.Errors:
			if !ok {
				return nil
			}
			wr.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (wr *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	path := ev.Name
	if wr.skipped(path) {
		return
	}
	if fi, err := os.Stat(path); err != nil || !fi.Mode().IsRegular() {
		return
	}

	// Restart the stability timer on every write so half-copied files wait.
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if wr.stopped {
		return
	}
	if t, ok := wr.pending[path]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(wr.delay, func() {
		wr.mu.Lock()
		if wr.pending[path] != timer {
			wr.mu.Unlock()
			return
		}
		delete(wr.pending, path)
		if wr.stopped {
			wr.mu.Unlock()
			return
		}
		wr.wg.Add(1)
		wr.mu.Unlock()
		defer wr.wg.Done()

		if ctx.Err() != nil {
			return
		}
		if err := wr.handle(ctx, path); err != nil {
			wr.log.Warn().Err(err).Str("file", filepath.Base(path)).Str("reason", media.UserMessage(err)).Msg("dropped file not converted")
		}
	})
	wr.pending[path] = timer
}

func (wr *Watcher) skipped(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, ".tmp") {
		return true
	}
	if wr.skipDir == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(wr.skipDir, abs)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func (wr *Watcher) stopPending() {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.stopped = true
	for path, t := range wr.pending {
		t.Stop()
		delete(wr.pending, path)
	}
}

// ConvertHandler converts each dropped file with p and writes the result to
// outDir. Unsupported files are skipped quietly.
func ConvertHandler(p *processor.Pipeline, req media.Request, outDir string, log zerolog.Logger) Handler {
	return func(ctx context.Context, path string) error {
		sources, ignored, err := processor.Load(ctx, []string{path}, processor.LoadOptions{})
		if err != nil {
			return err
		}
		if ignored > 0 || len(sources) == 0 {
			log.Debug().Str("file", filepath.Base(path)).Msg("ignored unsupported file")
			return nil
		}
		report, err := p.Convert(ctx, sources, req, nil)
		if err != nil {
			return err
		}
		dest, err := processor.WriteAssembly(outDir, report.Assembly)
		if err != nil {
			return err
		}
		log.Info().Str("file", filepath.Base(path)).Str("output", dest).Msg("converted")
		return nil
	}
}
