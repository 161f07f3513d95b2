package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Loader finds presets as <name>.yaml in its search paths. Parsed presets are
// cached until ClearCache.
type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

func (l *Loader) Load(name string) (*Preset, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: bad name %q", ErrNotFound, name)
	}

	// Cache-Check
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*Preset), nil
	}

	var data []byte
	var foundPath string
	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, name+".yaml")
		b, err := os.ReadFile(fullPath)
		if err == nil {
			data = b
			foundPath = fullPath
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("%w: %s (searched in: %v)", ErrNotFound, name, l.searchPaths)
	}

	if err := l.validator.ValidateYAML(data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, foundPath, err)
	}

	var preset Preset
	if err := yaml.Unmarshal(data, &preset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preset: %w", err)
	}
	if err := preset.Check(); err != nil {
		return nil, fmt.Errorf("%s: %w", foundPath, err)
	}

	l.cache.Store(name, &preset)

	return &preset, nil
}

// List returns the names of every preset file found, sorted. Earlier search
// paths shadow later ones.
func (l *Loader) List() ([]string, error) {
	seen := make(map[string]bool)
	for _, searchPath := range l.searchPaths {
		matches, err := filepath.Glob(filepath.Join(searchPath, "*.yaml"))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", searchPath, err)
		}
		for _, m := range matches {
			name := strings.TrimSuffix(filepath.Base(m), ".yaml")
			if validName.MatchString(name) {
				seen[name] = true
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
