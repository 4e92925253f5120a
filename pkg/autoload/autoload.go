// Package autoload maps namespace prefixes onto source directories and
// resolves identifiers to the files that define them.
//
// Registration is explicit: nothing is active until Register returns nil.
//
//	l, _ := autoload.NewLoader(os.DirFS(root))
//	err := l.Register(autoload.Rule{Prefix: "redis.", Dir: "modules/contrib/redis/src"})
//	path, ok := l.Resolve("redis.driver.Factory") // modules/contrib/redis/src/driver/Factory.go
package autoload

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrInvalidRule is returned for rules with an empty or malformed prefix or directory
	ErrInvalidRule = errors.New("autoload: invalid rule")

	// ErrDuplicatePrefix is returned when a prefix is registered twice
	ErrDuplicatePrefix = errors.New("autoload: duplicate prefix")
)

// DefaultCacheSize bounds the number of remembered resolutions
const DefaultCacheSize = 1024

// Rule maps identifiers starting with Prefix to files under Dir
type Rule struct {
	Prefix string `yaml:"prefix" json:"prefix"`
	Dir    string `yaml:"dir" json:"dir"`
}

// Validate checks that the prefix ends with the namespace separator and
// the directory is a clean relative path
func (r Rule) Validate() error {
	if r.Prefix == "" || !strings.HasSuffix(r.Prefix, ".") || strings.HasPrefix(r.Prefix, ".") {
		return fmt.Errorf("%w: prefix %q must be non-empty and end with \".\"", ErrInvalidRule, r.Prefix)
	}
	if r.Dir == "" || !fs.ValidPath(r.Dir) {
		return fmt.Errorf("%w: dir %q must be a clean relative path", ErrInvalidRule, r.Dir)
	}
	return nil
}

// Loader holds registered rules and resolves identifiers against fsys
type Loader struct {
	mu     sync.RWMutex
	fsys   fs.FS
	suffix string
	rules  []Rule
	cache  *lru.Cache[string, string]
}

// Option configures a Loader
type Option func(*Loader)

// WithSuffix sets the file suffix appended to resolved paths (default ".go")
func WithSuffix(suffix string) Option {
	return func(l *Loader) {
		l.suffix = suffix
	}
}

// NewLoader creates a loader resolving against fsys with a bounded
// resolution cache
func NewLoader(fsys fs.FS, opts ...Option) (*Loader, error) {
	return NewLoaderWithCacheSize(fsys, DefaultCacheSize, opts...)
}

// NewLoaderWithCacheSize is like NewLoader with an explicit cache size
func NewLoaderWithCacheSize(fsys fs.FS, size int, opts ...Option) (*Loader, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolution cache: %w", err)
	}
	l := &Loader{fsys: fsys, suffix: ".go", cache: cache}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Register activates rule for every later Resolve call
func (l *Loader) Register(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.rules {
		if r.Prefix == rule.Prefix {
			if r.Dir == rule.Dir {
				return nil
			}
			return fmt.Errorf("%w: %q already maps to %q", ErrDuplicatePrefix, rule.Prefix, r.Dir)
		}
	}
	l.rules = append(l.rules, rule)
	// longest prefix first
	sort.SliceStable(l.rules, func(i, j int) bool {
		return len(l.rules[i].Prefix) > len(l.rules[j].Prefix)
	})
	l.cache.Purge()
	return nil
}

// Rules returns the registered rules, longest prefix first
func (l *Loader) Rules() []Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Rule, len(l.rules))
	copy(out, l.rules)
	return out
}

// Resolve returns the path of the file defining id, if a rule covers it and
// the file exists
func (l *Loader) Resolve(id string) (string, bool) {
	if p, ok := l.cache.Get(id); ok {
		return p, p != ""
	}

	l.mu.RLock()
	rules := l.rules
	l.mu.RUnlock()

	var found string
	for _, r := range rules {
		rest, ok := strings.CutPrefix(id, r.Prefix)
		if !ok || rest == "" {
			continue
		}
		candidate := path.Join(r.Dir, strings.ReplaceAll(rest, ".", "/")) + l.suffix
		if _, err := fs.Stat(l.fsys, candidate); err == nil {
			found = candidate
			break
		}
	}
	// misses are cached as ""
	l.cache.Add(id, found)
	return found, found != ""
}
