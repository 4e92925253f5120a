package container

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/vnykmshr/cacheboot/internal/singleflight"
)

// FactoryCaller is implemented by services that expose factory methods
// without reflection.
type FactoryCaller interface {
	CallFactory(method string, args []any) (any, error)
}

// Container lazily builds services from compiled definitions. Instances are
// built once; concurrent requests for the same service share one build.
type Container struct {
	registry *Registry
	names    []string
	defs     map[string]Definition
	memo     singleflight.Memo[string, any]
}

// Compile merges graphs in order, later definitions replacing earlier ones
// with the same name, and checks the result: references must resolve to a
// definition or a provided primitive, there must be no cycles, and every
// class or static factory must be registered.
func Compile(reg *Registry, graphs ...*Graph) (*Container, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	merged := Merge(graphs...)
	c := &Container{registry: reg, names: merged.names, defs: merged.defs}

	// externs only mark what a host must supply; here that is the primitives
	problems := unresolved(merged, func(name string) bool {
		_, ok := reg.primitive(name)
		return ok
	})
	if err := merged.cycle(); err != nil {
		problems = append(problems, err)
	}
	for _, name := range c.names {
		if err := c.checkConstructible(name, c.defs[name]); err != nil {
			problems = append(problems, err)
		}
	}
	if len(problems) > 0 {
		return nil, &GraphError{Problems: problems}
	}
	return c, nil
}

func (c *Container) checkConstructible(name string, d Definition) error {
	switch {
	case d.Factory.IsMethod():
		return nil
	case d.Factory != nil:
		if _, ok := c.registry.function(d.Factory.Function); !ok {
			return fmt.Errorf("%w: service %q uses unknown factory %q", ErrInvalidDefinition, name, d.Factory.Function)
		}
	default:
		if _, ok := c.registry.class(d.Class); !ok {
			return fmt.Errorf("%w: service %q uses unknown class %q", ErrInvalidDefinition, name, d.Class)
		}
	}
	return nil
}

// Names returns the defined service names in merge order
func (c *Container) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Has reports whether name is defined or provided
func (c *Container) Has(name string) bool {
	if _, ok := c.defs[name]; ok {
		return true
	}
	_, ok := c.registry.primitive(name)
	return ok
}

// Get returns the named service, building it and its dependencies on first use
func (c *Container) Get(ctx context.Context, name string) (any, error) {
	def, ok := c.defs[name]
	if !ok {
		if v, ok := c.registry.primitive(name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return c.memo.Get(ctx, name, func() (any, error) {
		v, err := c.build(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("failed to build service %q: %w", name, err)
		}
		return v, nil
	})
}

func (c *Container) build(ctx context.Context, d Definition) (any, error) {
	args := make([]any, len(d.Arguments))
	for i, arg := range d.Arguments {
		if !arg.IsRef() {
			args[i] = arg.value
			continue
		}
		v, err := c.Get(ctx, arg.ref)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch {
	case d.Factory.IsMethod():
		target, err := c.Get(ctx, d.Factory.Service)
		if err != nil {
			return nil, err
		}
		return callMethod(target, d.Factory.Method, args)
	case d.Factory != nil:
		fn, _ := c.registry.function(d.Factory.Function)
		return fn(args)
	default:
		ctor, _ := c.registry.class(d.Class)
		return ctor(args)
	}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// callMethod invokes method on target. The method name is matched with its
// first letter upper-cased so manifest names like "get" reach Get.
func callMethod(target any, method string, args []any) (any, error) {
	if fc, ok := target.(FactoryCaller); ok {
		return fc.CallFactory(method, args)
	}

	m := reflect.ValueOf(target).MethodByName(exported(method))
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %T has no method %q", ErrInvalidDefinition, target, method)
	}
	mt := m.Type()
	if mt.IsVariadic() || mt.NumIn() != len(args) {
		return nil, fmt.Errorf("%w: method %q takes %d arguments, got %d", ErrInvalidDefinition, method, mt.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		want := mt.In(i)
		if arg == nil {
			in[i] = reflect.Zero(want)
			continue
		}
		v := reflect.ValueOf(arg)
		switch {
		case v.Type().AssignableTo(want):
		case v.Type().ConvertibleTo(want) && v.Kind() != reflect.String && want.Kind() != reflect.String:
			v = v.Convert(want)
		default:
			return nil, fmt.Errorf("%w: argument %d of %q is %T, want %s", ErrInvalidDefinition, i, method, arg, want)
		}
		in[i] = v
	}

	out := m.Call(in)
	switch {
	case len(out) == 1 && !mt.Out(0).Implements(errorType):
		return out[0].Interface(), nil
	case len(out) == 2 && mt.Out(1).Implements(errorType):
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		return nil, errors.New("container: factory method must return (T) or (T, error)")
	}
}

func exported(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}
