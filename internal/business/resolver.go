package business

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Resolver serves BusinessConfig by tenant id. Unknown ids resolve to the
// default tenant; Get never fails.
type Resolver struct {
	mu        sync.RWMutex
	byID      map[string]*BusinessConfig
	defaultID string
	dir       string
}

// NewResolver builds a resolver over already-loaded configs.
func NewResolver(defaultID string, configs ...*BusinessConfig) *Resolver {
	r := &Resolver{defaultID: defaultID, byID: make(map[string]*BusinessConfig, len(configs))}
	for _, c := range configs {
		r.byID[c.ID] = c
	}
	return r
}

// NewDirResolver loads every *.yaml / *.yml file in dir.
func NewDirResolver(dir, defaultID string) (*Resolver, error) {
	r := &Resolver{defaultID: defaultID, dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Get returns the tenant config, the default tenant for unknown ids, or a
// bare config carrying only the embedded fallback text when neither exists.
func (r *Resolver) Get(id string) *BusinessConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.byID[id]; ok {
		return c
	}
	if c, ok := r.byID[r.defaultID]; ok {
		if id != "" {
			slog.Debug("business.unknown_id", "requested", id, "fallback", r.defaultID)
		}
		return c
	}
	slog.Warn("business.default_missing", "requested", id, "default", r.defaultID)
	return &BusinessConfig{ID: r.defaultID, FallbackMessage: DefaultTriggers().FallbackMessage}
}

// IDs lists loaded tenant ids in sorted order.
func (r *Resolver) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reload re-reads the directory and swaps the tenant map atomically.
// On error the previous map stays in place.
func (r *Resolver) Reload() error {
	if r.dir == "" {
		return nil
	}
	configs, err := LoadDir(r.dir)
	if err != nil {
		return err
	}
	byID := make(map[string]*BusinessConfig, len(configs))
	for _, c := range configs {
		byID[c.ID] = c
	}
	r.mu.Lock()
	r.byID = byID
	r.mu.Unlock()
	slog.Info("businesses loaded", "dir", r.dir, "count", len(byID))
	return nil
}

// Watch reloads the directory on file changes until ctx is done.
func (r *Resolver) Watch(ctx context.Context) error {
	if r.dir == "" {
		return fmt.Errorf("resolver has no directory to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(r.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isBusinessFile(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := r.Reload(); err != nil {
					slog.Error("business.reload_failed", "file", event.Name, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("business.watch_error", "error", err)
			}
		}
	}()
	return nil
}

// LoadDir parses and validates every tenant file in dir.
func LoadDir(dir string) ([]*BusinessConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read businesses dir: %w", err)
	}
	var out []*BusinessConfig
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !isBusinessFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		c, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("business id %q defined in both %s and %s", c.ID, prev, path)
		}
		seen[c.ID] = path
		out = append(out, c)
	}
	return out, nil
}

// LoadFile parses one tenant YAML file.
func LoadFile(path string) (*BusinessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var c BusinessConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.ID == "" {
		c.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

func isBusinessFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
