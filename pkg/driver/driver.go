// Package driver is the registry of cache client libraries compiled into the
// binary. Driver packages register themselves from init, so importing a
// driver package for its side effect is what makes a library "present":
//
//	import _ "github.com/vnykmshr/cacheboot/pkg/driver/goredis"
package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Well-known driver names
const (
	// Redigo is the pooled client with the Do calling convention
	Redigo = "redigo"

	// GoRedis is the typed command client, preferred when available
	GoRedis = "goredis"
)

var (
	// ErrNilRegistry is returned when a nil registry is used
	ErrNilRegistry = errors.New("driver: nil registry")

	// ErrUnknownDriver is returned when no driver is registered under a name
	ErrUnknownDriver = errors.New("driver: unknown driver")

	// ErrDuplicateDriver is returned when a name is registered twice
	ErrDuplicateDriver = errors.New("driver: duplicate driver")

	// ErrNoEndpoints is returned when dialing without endpoints
	ErrNoEndpoints = errors.New("driver: no endpoints")
)

// Client is the minimal surface the probe needs from a connected library
type Client interface {
	Ping(ctx context.Context) error
	Close() error
}

// Options holds connection settings shared by all drivers
type Options struct {
	Password    string
	DB          int
	DialTimeout time.Duration
}

// DialFunc connects to endpoints ("host:port")
type DialFunc func(ctx context.Context, endpoints []string, opts Options) (Client, error)

// Driver is one client library
type Driver struct {
	Name string
	Dial DialFunc
}

// Registry holds the drivers available to the capability probe
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds d to the registry
func (r *Registry) Register(d Driver) error {
	if r == nil {
		return ErrNilRegistry
	}
	if d.Name == "" || d.Dial == nil {
		return fmt.Errorf("driver: %q needs a name and a dial function", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drivers[d.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateDriver, d.Name)
	}
	r.drivers[d.Name] = d
	return nil
}

// Registered reports whether a driver is available under name
func (r *Registry) Registered(name string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.drivers[name]
	return ok
}

// Lookup returns the driver registered under name
func (r *Registry) Lookup(name string) (Driver, error) {
	if r == nil {
		return Driver{}, ErrNilRegistry
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[name]
	if !ok {
		return Driver{}, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return d, nil
}

// Names returns the registered driver names, sorted
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preferred returns the driver to use for connections: GoRedis when
// registered, then Redigo.
func (r *Registry) Preferred() (Driver, error) {
	for _, name := range []string{GoRedis, Redigo} {
		if d, err := r.Lookup(name); err == nil {
			return d, nil
		} else if errors.Is(err, ErrNilRegistry) {
			return Driver{}, err
		}
	}
	return Driver{}, fmt.Errorf("%w: neither %q nor %q registered", ErrUnknownDriver, GoRedis, Redigo)
}

var defaultRegistry = NewRegistry()

// Default returns the process registry driver packages register into
func Default() *Registry {
	return defaultRegistry
}

// Register adds d to the default registry. It panics on error since it is
// only called from driver package init functions.
func Register(d Driver) {
	if err := defaultRegistry.Register(d); err != nil {
		panic(err)
	}
}
