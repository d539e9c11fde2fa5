package rpa

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/platforms"
)

// Registry knows which platforms have an automation script on disk.
type Registry struct {
	dir   string
	table platforms.Table
	log   *logging.Logger

	mu        sync.RWMutex
	loaded    bool
	supported map[model.Platform]string // platform -> script path
}

func NewRegistry(dir string, table platforms.Table, log *logging.Logger) *Registry {
	return &Registry{
		dir:       dir,
		table:     table,
		log:       log,
		supported: map[model.Platform]string{},
	}
}

// Load scans the script directory once and fixes the supported set.
// Later calls are no-ops: the set is read-only for the process lifetime.
// It never fails: an unreadable directory leaves the set empty and
// missing scripts only drop their platform.
func (r *Registry) Load() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return
	}
	r.supported = r.scan(true)
	r.loaded = true
	r.log.Infof("rpa registry loaded %d platforms: %v", len(r.supported), sortedKeys(r.supported))
}

// Scan lists the platforms whose script is on disk right now without
// touching the supported set.
func (r *Registry) Scan() []model.Platform {
	return sortedKeys(r.scan(false))
}

func (r *Registry) scan(verbose bool) map[model.Platform]string {
	found := map[model.Platform]string{}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if verbose {
			r.log.Errorf("rpa scripts dir %s unreadable: %v", r.dir, err)
		}
		return found
	}
	files := map[string]bool{}
	for _, e := range entries {
		if !e.IsDir() {
			files[e.Name()] = true
		}
	}

	claimed := map[string]bool{}
	for _, p := range r.table.ByMethod(model.MethodRPA) {
		script := r.table[p].Script
		claimed[script] = true
		if !files[script] {
			if verbose {
				r.log.Warnf("rpa script %s for %s not found in %s", script, p, r.dir)
			}
			continue
		}
		found[p] = filepath.Join(r.dir, script)
	}

	if verbose {
		for name := range files {
			if strings.HasSuffix(name, ".js") && !claimed[name] {
				r.log.Warnf("rpa script %s has no rpa platform entry, ignored", name)
			}
		}
	}
	return found
}

func (r *Registry) IsSupported(p model.Platform) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.supported[p]
	return ok
}

// List returns the supported platforms, sorted.
func (r *Registry) List() []model.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.supported)
}

// Script reads the automation script for p.
func (r *Registry) Script(p model.Platform) (string, error) {
	r.mu.RLock()
	path, ok := r.supported[p]
	r.mu.RUnlock()
	if !ok {
		e, inTable := r.table[p]
		if !inTable || e.Script == "" {
			return "", fmt.Errorf("%w for %s", ErrScriptNotFound, p)
		}
		path = filepath.Join(r.dir, e.Script)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w for %s: %s", ErrScriptNotFound, p, path)
		}
		return "", fmt.Errorf("read script for %s: %w", p, err)
	}
	return string(b), nil
}

func sortedKeys(m map[model.Platform]string) []model.Platform {
	keys := lo.Keys(m)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
