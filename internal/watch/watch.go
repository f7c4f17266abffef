package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/streamwarden/streamwarden/internal/pipeline"
	"github.com/streamwarden/streamwarden/internal/score"
	"github.com/streamwarden/streamwarden/internal/validate"
)

// Report is the outcome of checking one definition file.
type Report struct {
	// Name is the definition name derived from the filename.
	Name string

	// Path is the file the report was produced from.
	Path string

	// Definition is nil when the file failed to decode; Err carries the
	// failure and Score/Validation are zero.
	Definition *pipeline.Definition

	Score      score.Result
	Validation validate.Result

	Err error
}

// Watcher re-checks pipeline definition files as they change.
type Watcher struct {
	Dir         string
	Connections []string
	Mode        validate.Mode

	// OnReport receives one report per checked file. Required.
	OnReport func(Report)

	mu sync.RWMutex // guards Connections and Mode once Run has started
}

// SetRules swaps the connection set and strictness applied to subsequent
// checks. Safe to call while Run is active; files already reported are not
// re-checked.
func (w *Watcher) SetRules(connections []string, mode validate.Mode) {
	w.mu.Lock()
	w.Connections = connections
	w.Mode = mode
	w.mu.Unlock()
}

// Run checks every definition currently in the directory, then blocks
// watching for changes until ctx is cancelled. Files without a .json
// extension are ignored. A file that fails to decode produces a report with
// Err set; the watcher keeps running.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.Dir); err != nil {
		return err
	}

	if err := w.sweep(); err != nil {
		return err
	}

	slog.Info("watch: watching definitions", "dir", w.Dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so catch Create as well as Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isDefinition(event.Name) {
				continue
			}
			w.check(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch: watcher error", "err", err)
		}
	}
}

// sweep checks every definition already present in the directory.
func (w *Watcher) sweep() error {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isDefinition(e.Name()) {
			continue
		}
		w.check(filepath.Join(w.Dir, e.Name()))
	}
	return nil
}

// check decodes, validates, and scores one definition file and reports it.
func (w *Watcher) check(path string) {
	name := strings.TrimSuffix(filepath.Base(path), ".json")
	rep := Report{Name: name, Path: path}

	def, err := pipeline.DecodeFile(path)
	if err != nil {
		slog.Warn("watch: definition failed to decode", "path", path, "err", err)
		rep.Err = err
		w.OnReport(rep)
		return
	}
	if def.Name == "" {
		def.Name = name
	}

	w.mu.RLock()
	connections, mode := w.Connections, w.Mode
	w.mu.RUnlock()

	rep.Definition = def
	rep.Validation = validate.Validate(def, connections, mode, name)
	rep.Score = score.Score(def.Pipeline)

	slog.Info("watch: definition checked", "name", name,
		"valid", rep.Validation.Valid, "tier", rep.Score.RecommendedTier)
	w.OnReport(rep)
}

func isDefinition(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
