package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// Local stores files in a directory.
type Local struct {
	root string
}

// NewLocal returns a backend rooted at dir. The directory is created on first write.
func NewLocal(dir string) *Local {
	if dir == "" {
		dir = "."
	}
	return &Local{root: dir}
}

func (l *Local) Location(name string) string {
	return localPath(l.root, name)
}

func (l *Local) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(l.Location(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("Local.Read %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Local.Read %s: %w", name, err)
	}
	return data, nil
}

// Write replaces the file atomically: data goes to a temp file in the same
// directory which is then renamed over the target.
func (l *Local) Write(ctx context.Context, name string, data []byte) error {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return fmt.Errorf("Local.Write: creating %s: %w", l.root, err)
	}

	tmp, err := os.CreateTemp(l.root, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("Local.Write: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("Local.Write: writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("Local.Write: closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), l.Location(name)); err != nil {
		return fmt.Errorf("Local.Write: renaming into place: %w", err)
	}
	return nil
}

func (l *Local) List(ctx context.Context) ([]Object, error) {
	entries, err := os.ReadDir(l.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Local.List: %w", err)
	}

	var objects []Object
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("Local.List: stat %s: %w", e.Name(), err)
		}
		objects = append(objects, Object{Name: e.Name(), Size: info.Size(), Updated: info.ModTime()})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}
