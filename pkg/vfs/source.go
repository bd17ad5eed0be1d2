package vfs

import (
	"os"
	"path/filepath"
	"sort"
)

// PackageSource enumerates the configuration packages the root directory
// should expose: invoked with i = 0, 1, 2, ... until it reports no further
// package.
type PackageSource interface {
	Iterate(i int) (path string, ok bool)
}

// StaticSource is a fixed list of package paths, used in tests.
type StaticSource []string

func (s StaticSource) Iterate(i int) (string, bool) {
	if i < 0 || i >= len(s) {
		return "", false
	}
	return s[i], true
}

// DirSource enumerates package names by listing a UCI config directory
// (conventionally /etc/config).
type DirSource struct {
	Dir string

	cached []string
}

// NewDirSource returns a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir}
}

// Iterate lists the directory once per pass (on i == 0) and serves the rest
// of that pass's indices from the cached listing, so one reconcile costs one
// os.ReadDir rather than one per entry.
func (d *DirSource) Iterate(i int) (string, bool) {
	if i == 0 {
		names, err := d.list()
		if err != nil {
			logger.Warnf("list %s: %s", d.Dir, err)
			d.cached = nil
		} else {
			d.cached = names
		}
	}
	if i < 0 || i >= len(d.cached) {
		return "", false
	}
	return "/" + d.cached[i], true
}

func (d *DirSource) list() ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) != "" {
			// UCI config files conventionally have no extension; skip
			// anything that looks like a backup or editor artifact.
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
