package container

import (
	"fmt"
	"strings"

	"github.com/vnykmshr/cacheboot/pkg/settings"
)

// ToTree renders the graph in its settings form:
//
//	parameters: {}
//	services:
//	  name: {class: ..., factory: ..., arguments: [...]}
//
// References are written as "@name"; literal strings starting with "@" are
// escaped as "@@".
func (g *Graph) ToTree() *settings.Tree {
	services := settings.New()
	for _, name := range g.names {
		services.Put(name, definitionTree(g.defs[name]))
	}
	return settings.New().
		Put("parameters", settings.New()).
		Put("services", services)
}

func definitionTree(d Definition) *settings.Tree {
	t := settings.New()
	if d.Class != "" {
		t.Put("class", d.Class)
	}
	if d.Factory != nil {
		if d.Factory.IsMethod() {
			t.Put("factory", []any{"@" + d.Factory.Service, d.Factory.Method})
		} else {
			t.Put("factory", d.Factory.Function)
		}
	}
	if len(d.Arguments) > 0 {
		args := make([]any, len(d.Arguments))
		for i, arg := range d.Arguments {
			args[i] = encodeArgument(arg)
		}
		t.Put("arguments", args)
	}
	return t
}

func encodeArgument(a Argument) any {
	if a.IsRef() {
		return "@" + a.ref
	}
	if s, ok := a.value.(string); ok && strings.HasPrefix(s, "@") {
		return "@" + s
	}
	return a.value
}

func decodeArgument(v any) Argument {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "@") {
		return Value(v)
	}
	if strings.HasPrefix(s, "@@") {
		return Value(s[1:])
	}
	return Ref(s[1:])
}

// FromTree reads the services mapping of a graph in settings form. The
// result has passed shape checks but not reference checks.
func FromTree(t *settings.Tree) (*Graph, error) {
	b := NewBuilder()
	services, ok := t.Subtree("services")
	if !ok {
		if t.Has("services") {
			return nil, fmt.Errorf("%w: services is not a mapping", ErrInvalidDefinition)
		}
		return b.BuildPartial()
	}
	for _, name := range services.Keys() {
		entry, ok := services.Subtree(name)
		if !ok {
			if services.Get(name) == nil {
				// empty entry, e.g. "name:" with nothing under it
				entry = settings.New()
			} else {
				b.problems = append(b.problems, fmt.Errorf("%w: service %q is not a mapping", ErrInvalidDefinition, name))
				continue
			}
		}
		def, err := parseDefinition(entry)
		if err != nil {
			b.problems = append(b.problems, fmt.Errorf("service %q: %w", name, err))
			continue
		}
		b.Service(name, def)
	}
	return b.BuildPartial()
}

func parseDefinition(t *settings.Tree) (Definition, error) {
	var d Definition
	if v, ok := t.Lookup("class"); ok {
		s, ok := v.(string)
		if !ok {
			return d, fmt.Errorf("%w: class must be a string", ErrInvalidDefinition)
		}
		d.Class = s
	}
	if v, ok := t.Lookup("factory"); ok {
		f, err := parseFactory(v)
		if err != nil {
			return d, err
		}
		d.Factory = f
	}
	if v, ok := t.Lookup("arguments"); ok && v != nil {
		seq, ok := v.([]any)
		if !ok {
			return d, fmt.Errorf("%w: arguments must be a sequence", ErrInvalidDefinition)
		}
		d.Arguments = make([]Argument, len(seq))
		for i, item := range seq {
			d.Arguments[i] = decodeArgument(item)
		}
	}
	return d, nil
}

func parseFactory(v any) (*Factory, error) {
	switch f := v.(type) {
	case string:
		return StaticFactory(f), nil
	case []any:
		if len(f) != 2 {
			return nil, fmt.Errorf("%w: factory sequence needs a service and a method", ErrInvalidDefinition)
		}
		svc, ok1 := f[0].(string)
		method, ok2 := f[1].(string)
		if !ok1 || !ok2 || !strings.HasPrefix(svc, "@") {
			return nil, fmt.Errorf("%w: factory must be [\"@service\", \"method\"]", ErrInvalidDefinition)
		}
		return ServiceFactory(svc[1:], method), nil
	default:
		return nil, fmt.Errorf("%w: unsupported factory %T", ErrInvalidDefinition, v)
	}
}
