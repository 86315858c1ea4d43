package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/effectus/irkit/ir"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var extensions = []string{".json", ".yaml", ".yml"}

// Dir stores documents as JSON or YAML files under a root directory. Parsed
// documents are cached until the file changes.
type Dir struct {
	root string
	log  *zap.Logger

	mu    sync.RWMutex
	cache map[string]*ir.Document
}

// NewDir creates a directory store rooted at root
func NewDir(root string, logger *zap.Logger) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("document directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("document directory %s is not a directory", root)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dir{root: root, log: logger, cache: make(map[string]*ir.Document)}, nil
}

// Root returns the directory the store reads from
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) find(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	for _, ext := range extensions {
		path := filepath.Join(d.root, filepath.FromSlash(name)+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// ParseFile parses a document by its extension
func ParseFile(path string, data []byte) (*ir.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ir.ParseYAML(data)
	default:
		return ir.ParseJSON(data)
	}
}

func (d *Dir) Get(ctx context.Context, name string) (*ir.Document, error) {
	d.mu.RLock()
	doc, ok := d.cache[name]
	d.mu.RUnlock()
	if ok {
		return doc, nil
	}

	path, err := d.find(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err = ParseFile(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	d.mu.Lock()
	d.cache[name] = doc
	d.mu.Unlock()
	return doc, nil
}

// Put writes the document as JSON, replacing any YAML variant.
func (d *Dir) Put(ctx context.Context, name string, doc *ir.Document) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	base := filepath.Join(d.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", name, err)
	}
	for _, ext := range extensions[1:] {
		if err := os.Remove(base + ext); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s%s: %w", base, ext, err)
		}
	}
	if err := os.WriteFile(base+".json", data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	d.invalidate(name)
	return nil
}

func (d *Dir) Delete(ctx context.Context, name string) error {
	path, err := d.find(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	d.invalidate(name)
	return nil
}

func (d *Dir) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		if name, ok := d.nameOf(path); ok {
			seen[name] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", d.root, err)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// nameOf maps a file path under root to its document name.
func (d *Dir) nameOf(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	known := false
	for _, e := range extensions {
		known = known || e == ext
	}
	if !known {
		return "", false
	}
	rel, err := filepath.Rel(d.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel))), true
}

func (d *Dir) invalidate(name string) {
	d.mu.Lock()
	delete(d.cache, name)
	d.mu.Unlock()
}

// Watch drops cached documents when their files change and reports the
// affected names to onChange, until ctx is done. Directories created after
// Watch starts are watched too.
func (d *Dir) Watch(ctx context.Context, onChange func(name string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	err = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watching %s: %w", d.root, err)
	}
	d.log.Info("watching document directory", zap.String("root", d.root))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						d.log.Warn("failed to watch directory", zap.String("path", event.Name), zap.Error(err))
					}
					continue
				}
			}
			name, ok := d.nameOf(event.Name)
			if !ok {
				continue
			}
			d.invalidate(name)
			d.log.Debug("document changed", zap.String("name", name), zap.String("op", event.Op.String()))
			if onChange != nil {
				onChange(name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.log.Warn("file watcher error", zap.Error(err))
		}
	}
}
