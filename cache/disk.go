package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/brunobiangulo/clausegraph/analysis"
)

// Disk stores envelopes as query-<id>.json files in one directory.
type Disk struct {
	dir string
}

// NewDisk creates the directory if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Disk{dir: dir}, nil
}

// Load reads the envelope for id. A missing file is ErrNotFound and is not
// logged; other read failures are.
func (d *Disk) Load(_ context.Context, id string) (*analysis.Envelope, error) {
	name, err := Key(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(d.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Error("cache: reading envelope", "id", id, "error", err)
		return nil, err
	}
	return decode(data)
}

// Save writes the envelope atomically via a temp file and rename.
func (d *Disk) Save(_ context.Context, id string, env *analysis.Envelope) error {
	name, err := Key(id)
	if err != nil {
		return err
	}
	data, err := encode(env)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(d.dir, name))
}
