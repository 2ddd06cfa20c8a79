// Package locator resolves external tool names to executable paths.
package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// Locator resolves a logical tool name to an executable path.
type Locator interface {
	Locate(name string) (string, error)
}

// PathLocator searches explicit overrides, extra directories and PATH,
// applying the platform's executable conventions.
type PathLocator struct {
	overrides map[string]string
	dirs      []string
	getenv    func(string) string

	cache bool
	mu    sync.Mutex
	found map[string]string
}

// Option configures a PathLocator.
type Option func(*PathLocator)

// WithOverride pins a tool name to an explicit path.
func WithOverride(name, path string) Option {
	return func(l *PathLocator) {
		if path != "" {
			l.overrides[name] = path
		}
	}
}

// WithSearchDirs adds directories searched before PATH.
func WithSearchDirs(dirs ...string) Option {
	return func(l *PathLocator) {
		for _, d := range dirs {
			if d != "" {
				l.dirs = append(l.dirs, d)
			}
		}
	}
}

// WithCache remembers successful lookups for the locator's lifetime.
func WithCache() Option {
	return func(l *PathLocator) {
		l.cache = true
	}
}

// WithEnv replaces os.Getenv for PATH and PATHEXT lookups.
func WithEnv(getenv func(string) string) Option {
	return func(l *PathLocator) {
		l.getenv = getenv
	}
}

// New creates a PathLocator.
func New(opts ...Option) *PathLocator {
	l := &PathLocator{
		overrides: make(map[string]string),
		getenv:    os.Getenv,
		found:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the absolute path of the first matching executable.
func (l *PathLocator) Locate(name string) (string, error) {
	if l.cache {
		l.mu.Lock()
		p, ok := l.found[name]
		l.mu.Unlock()
		if ok {
			return p, nil
		}
	}

	p, err := l.locate(name)
	if err != nil {
		return "", err
	}

	if l.cache {
		l.mu.Lock()
		l.found[name] = p
		l.mu.Unlock()
	}
	return p, nil
}

func (l *PathLocator) locate(name string) (string, error) {
	if name == "" {
		return "", notFound(name, fmt.Errorf("empty tool name"))
	}

	if override, ok := l.overrides[name]; ok {
		if p, ok := l.probe(override); ok {
			return p, nil
		}
		return "", notFound(name, fmt.Errorf("configured path %q is not an executable", override))
	}

	// A name containing a separator is a path, not something to search for.
	if filepath.Base(name) != name {
		if p, ok := l.probe(name); ok {
			return p, nil
		}
		return "", notFound(name, nil)
	}

	for _, dir := range l.searchDirs() {
		for _, variant := range nameVariants(name) {
			if p, ok := l.probe(filepath.Join(dir, variant)); ok {
				return p, nil
			}
		}
	}

	return "", notFound(name, nil)
}

func (l *PathLocator) searchDirs() []string {
	dirs := append([]string(nil), l.dirs...)
	for _, d := range filepath.SplitList(l.getenv("PATH")) {
		if d == "" {
			// POSIX treats an empty PATH element as the current directory; we do not.
			continue
		}
		dirs = append(dirs, d)
	}
	return dirs
}

// probe checks a candidate path, trying platform extensions if needed.
func (l *PathLocator) probe(path string) (string, bool) {
	for _, candidate := range candidates(path, l.getenv) {
		if isExecutable(candidate) {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				return candidate, true
			}
			return abs, true
		}
	}
	return "", false
}

func notFound(name string, cause error) error {
	err := fmt.Errorf("%w: %s", domain.ErrExecutableNotFound, name)
	if cause != nil {
		err = fmt.Errorf("%w: %s: %v", domain.ErrExecutableNotFound, name, cause)
	}
	return domain.NewInvocationError(domain.KindLocatorNotFound, "locate", err)
}

// Static resolves names from a fixed map. It performs no filesystem checks.
type Static map[string]string

// Locate implements Locator.
func (s Static) Locate(name string) (string, error) {
	if p, ok := s[name]; ok && p != "" {
		return p, nil
	}
	return "", notFound(name, nil)
}
