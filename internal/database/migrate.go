package database

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Script is one versioned schema change: NNNNNN_name.up.sql and its
// .down.sql twin.
type Script struct {
	Version int
	Name    string
	Up      string
	Down    string
}

func (s Script) String() string {
	return fmt.Sprintf("%06d_%s", s.Version, s.Name)
}

//go:embed migrations/*.sql
var migrationFS embed.FS

// Scripts returns the embedded scripts in version order.
var Scripts = sync.OnceValues(func() ([]Script, error) {
	return loadScripts(migrationFS, "migrations")
})

func loadScripts(fsys fs.FS, dir string) ([]Script, error) {
	ups, err := fs.Glob(fsys, path.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	scripts := make([]Script, 0, len(ups))
	seen := make(map[int]string, len(ups))
	for _, up := range ups {
		base := strings.TrimSuffix(path.Base(up), ".up.sql")
		num, name, ok := strings.Cut(base, "_")
		if !ok || name == "" {
			return nil, fmt.Errorf("migration %s: want NNNNNN_name.up.sql", path.Base(up))
		}
		version, err := strconv.Atoi(num)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration %s: bad version %q", path.Base(up), num)
		}
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, other, base)
		}
		seen[version] = base

		upSQL, err := fs.ReadFile(fsys, up)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", up, err)
		}
		downSQL, err := fs.ReadFile(fsys, path.Join(dir, base+".down.sql"))
		if err != nil {
			return nil, fmt.Errorf("migration %s has no down script: %w", base, err)
		}
		scripts = append(scripts, Script{Version: version, Name: name, Up: string(upSQL), Down: string(downSQL)})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	return scripts, nil
}
