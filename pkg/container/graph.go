// Package container models service definitions, validates service graphs
// and compiles them into a lazily constructing container.
package container

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnresolvedReference is returned when a back-reference names no known service
	ErrUnresolvedReference = errors.New("container: unresolved reference")

	// ErrDuplicateService is returned when a graph defines a name twice
	ErrDuplicateService = errors.New("container: duplicate service")

	// ErrInvalidDefinition is returned for malformed definitions
	ErrInvalidDefinition = errors.New("container: invalid definition")

	// ErrCycle is returned when services depend on each other in a loop
	ErrCycle = errors.New("container: dependency cycle")

	// ErrNotFound is returned when a requested service is not defined
	ErrNotFound = errors.New("container: service not found")
)

// GraphError collects every problem found while validating a graph
type GraphError struct {
	Problems []error
}

func (e *GraphError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("invalid service graph (%d problems): %s", len(e.Problems), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual problems to errors.Is and errors.As
func (e *GraphError) Unwrap() []error {
	return e.Problems
}

// Graph is an ordered, validated set of service definitions
type Graph struct {
	names   []string
	defs    map[string]Definition
	externs []string
}

// Names returns the service names in definition order
func (g *Graph) Names() []string {
	out := make([]string, len(g.names))
	copy(out, g.names)
	return out
}

// Len returns the number of services
func (g *Graph) Len() int {
	return len(g.names)
}

// Service returns a copy of the named definition
func (g *Graph) Service(name string) (Definition, bool) {
	d, ok := g.defs[name]
	if !ok {
		return Definition{}, false
	}
	return d.clone(), true
}

// Dependencies returns the services the named service refers to
func (g *Graph) Dependencies(name string) []string {
	d, ok := g.defs[name]
	if !ok {
		return nil
	}
	return d.References()
}

// Externs returns the host-provided names the graph may reference
func (g *Graph) Externs() []string {
	out := make([]string, len(g.externs))
	copy(out, g.externs)
	return out
}

// Merge combines graphs in order. A later definition replaces an earlier
// one with the same name and keeps its original position.
func Merge(graphs ...*Graph) *Graph {
	out := &Graph{defs: make(map[string]Definition)}
	seen := make(map[string]struct{})
	for _, g := range graphs {
		if g == nil {
			continue
		}
		for _, name := range g.names {
			if _, ok := out.defs[name]; !ok {
				out.names = append(out.names, name)
			}
			out.defs[name] = g.defs[name].clone()
		}
		for _, ext := range g.externs {
			if _, ok := seen[ext]; !ok {
				seen[ext] = struct{}{}
				out.externs = append(out.externs, ext)
			}
		}
	}
	return out
}

// Validate checks that every reference resolves to a service of the graph,
// a declared extern or one of known, and that there are no cycles. All
// problems are reported in one *GraphError.
func (g *Graph) Validate(known ...string) error {
	names := make(map[string]struct{}, len(g.externs)+len(known))
	for _, n := range g.externs {
		names[n] = struct{}{}
	}
	for _, n := range known {
		names[n] = struct{}{}
	}
	problems := unresolved(g, func(name string) bool {
		_, ok := names[name]
		return ok
	})
	if err := g.cycle(); err != nil {
		problems = append(problems, err)
	}
	if len(problems) > 0 {
		return &GraphError{Problems: problems}
	}
	return nil
}

func (g *Graph) cycle() error {
	return detectCycle(g.names, func(name string) ([]string, bool) {
		d, ok := g.defs[name]
		return d.References(), ok
	})
}

// Builder assembles a Graph. Problems are accumulated and reported together
// by Build.
type Builder struct {
	graph    *Graph
	externs  map[string]struct{}
	problems []error
}

// NewBuilder creates an empty graph builder
func NewBuilder() *Builder {
	return &Builder{
		graph:   &Graph{defs: make(map[string]Definition)},
		externs: make(map[string]struct{}),
	}
}

// Extern declares names provided by the host that definitions may reference
// without defining them.
func (b *Builder) Extern(names ...string) *Builder {
	for _, name := range names {
		if _, ok := b.externs[name]; ok {
			continue
		}
		b.externs[name] = struct{}{}
		b.graph.externs = append(b.graph.externs, name)
	}
	return b
}

// Primitive adds a framework-provided service built by a static factory
func (b *Builder) Primitive(name, class, function string, args ...Argument) *Builder {
	return b.Service(name, Definition{
		Class:     class,
		Factory:   StaticFactory(function),
		Arguments: args,
	})
}

// Service adds a definition
func (b *Builder) Service(name string, def Definition) *Builder {
	if name == "" {
		b.problems = append(b.problems, fmt.Errorf("%w: empty service name", ErrInvalidDefinition))
		return b
	}
	if _, ok := b.graph.defs[name]; ok {
		b.problems = append(b.problems, fmt.Errorf("%w: %q", ErrDuplicateService, name))
		return b
	}
	if err := def.Validate(); err != nil {
		b.problems = append(b.problems, fmt.Errorf("service %q: %w", name, err))
		return b
	}
	b.graph.names = append(b.graph.names, name)
	b.graph.defs[name] = def.clone()
	return b
}

// Build validates the graph: every reference must resolve to a service of
// the graph or to a declared extern, and there must be no cycles.
func (b *Builder) Build() (*Graph, error) {
	problems := append([]error(nil), b.problems...)
	problems = append(problems, unresolved(b.graph, func(name string) bool {
		_, ok := b.externs[name]
		return ok
	})...)
	if err := b.graph.cycle(); err != nil {
		problems = append(problems, err)
	}
	if len(problems) > 0 {
		return nil, &GraphError{Problems: problems}
	}
	return b.graph, nil
}

// BuildPartial returns the graph after shape checks only. References are
// left for the compiler, which sees every merged graph.
func (b *Builder) BuildPartial() (*Graph, error) {
	if len(b.problems) > 0 {
		return nil, &GraphError{Problems: append([]error(nil), b.problems...)}
	}
	return b.graph, nil
}

func unresolved(g *Graph, known func(string) bool) []error {
	var problems []error
	for _, name := range g.names {
		for _, ref := range g.defs[name].References() {
			if _, ok := g.defs[ref]; ok || known(ref) {
				continue
			}
			problems = append(problems, fmt.Errorf("%w: %q referenced by %q", ErrUnresolvedReference, ref, name))
		}
	}
	return problems
}

// detectCycle walks the dependency edges depth first. deps reports false
// for names outside the graph, which end the walk.
func detectCycle(names []string, deps func(string) ([]string, bool)) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	var stack []string

	var visit func(string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), name)
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
		case done:
			return nil
		}
		refs, ok := deps(name)
		if !ok {
			state[name] = done
			return nil
		}
		state[name] = visiting
		stack = append(stack, name)
		for _, ref := range refs {
			if err := visit(ref); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}
