package controlplane

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/streamwarden/streamwarden/internal/pipeline"
)

// FileLoader resolves pipeline definitions from a local directory of
// <name>.json files.
type FileLoader struct {
	Dir string
}

// Load reads Dir/<name>.json and decodes it. A missing file maps to
// ErrNotFound so callers can distinguish "not here" from a broken file.
func (l FileLoader) Load(_ context.Context, name string) (*pipeline.Definition, error) {
	path := filepath.Join(l.Dir, name+".json")
	def, err := pipeline.DecodeFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("controlplane: definition %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		def.Name = name
	}
	return def, nil
}

// ChainLoader tries each loader in order and returns the first definition
// found. Only ErrNotFound moves the chain along; any other failure is
// returned immediately so a corrupt local file is not silently shadowed by
// an API fetch.
type ChainLoader []interface {
	Load(ctx context.Context, name string) (*pipeline.Definition, error)
}

func (c ChainLoader) Load(ctx context.Context, name string) (*pipeline.Definition, error) {
	for i, l := range c {
		def, err := l.Load(ctx, name)
		if err == nil {
			if i > 0 {
				slog.Debug("controlplane: definition resolved by fallback loader", "name", name, "loader", i)
			}
			return def, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("controlplane: definition %q: %w", name, ErrNotFound)
}
