// Package inbox watches a directory tree for PDF files that are ready to
// be processed.
package inbox

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"invoicelayout/internal/logger"
)

const DefaultDebounce = 2 * time.Second

type Config struct {
	Dir         string
	InitialScan bool          // emit PDFs already present
	Debounce    time.Duration // quiet period before a file is emitted
}

// Watcher emits the path of each PDF once it has stopped changing for the
// debounce period.
type Watcher struct {
	config  Config
	watcher *fsnotify.Watcher
	log     zerolog.Logger
}

func New(config Config) (*Watcher, error) {
	if config.Dir == "" {
		return nil, errors.New("no directory to watch")
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		config:  config,
		watcher: w,
		log:     logger.WithComponent("inbox"),
	}, nil
}

// Run watches until ctx is done, then closes both channels. The returned
// error covers setup only; later watcher errors are sent on the error
// channel.
func (w *Watcher) Run(ctx context.Context) (<-chan string, <-chan error, error) {
	var existing []string
	err := filepath.WalkDir(w.config.Dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		if w.config.InitialScan && IsPDF(path) {
			existing = append(existing, path)
		}
		return nil
	})
	if err != nil {
		w.watcher.Close()
		return nil, nil, err
	}

	paths := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(paths)
		defer close(errs)
		defer w.watcher.Close()

		for _, p := range existing {
			select {
			case paths <- p:
			case <-ctx.Done():
				return
			}
		}

		pending := map[string]time.Time{}
		ticker := time.NewTicker(w.config.Debounce / 4)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handle(e, pending)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn().Err(err).Msg("Watcher error")
				select {
				case errs <- err:
				default:
				}
			case now := <-ticker.C:
				for _, p := range ready(pending, now, w.config.Debounce) {
					select {
					case paths <- p:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	w.log.Info().Str("dir", w.config.Dir).Dur("debounce", w.config.Debounce).Msg("Watching inbox")
	return paths, errs, nil
}

func (w *Watcher) handle(e fsnotify.Event, pending map[string]time.Time) {
	if e.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(e.Name); err != nil {
				w.log.Warn().Err(err).Str("dir", e.Name).Msg("Failed to watch new directory")
			}
			return
		}
	}
	if e.Op.Has(fsnotify.Remove) || e.Op.Has(fsnotify.Rename) {
		delete(pending, e.Name)
		return
	}
	if IsPDF(e.Name) && (e.Op.Has(fsnotify.Create) || e.Op.Has(fsnotify.Write)) {
		pending[e.Name] = time.Now()
	}
}

// ready removes and returns, sorted, the paths quiet for at least debounce.
func ready(pending map[string]time.Time, now time.Time, debounce time.Duration) []string {
	var out []string
	for p, last := range pending {
		if now.Sub(last) >= debounce {
			out = append(out, p)
			delete(pending, p)
		}
	}
	sort.Strings(out)
	return out
}

func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}
