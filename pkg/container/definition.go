package container

import (
	"fmt"
	"strings"
)

// Argument is one constructor or factory argument: either a literal scalar
// or a back-reference to another service by name.
type Argument struct {
	ref   string
	value any
}

// Ref creates a back-reference to the named service
func Ref(name string) Argument {
	return Argument{ref: name}
}

// Value creates a literal argument
func Value(v any) Argument {
	return Argument{value: v}
}

// IsRef reports whether the argument references another service
func (a Argument) IsRef() bool {
	return a.ref != ""
}

// Name returns the referenced service name, or "" for literals
func (a Argument) Name() string {
	return a.ref
}

// Literal returns the literal value, or nil for references
func (a Argument) Literal() any {
	return a.value
}

// String renders the argument the way it appears in a manifest
func (a Argument) String() string {
	if a.IsRef() {
		return "@" + a.ref
	}
	return fmt.Sprint(a.value)
}

// Factory describes how a service is produced when it is not built by
// calling its class constructor directly.
type Factory struct {
	// Function is a static factory identifier such as "database.GetConnection"
	Function string

	// Service and Method name a factory method on another service
	Service string
	Method  string
}

// StaticFactory returns a factory calling a registered function
func StaticFactory(function string) *Factory {
	return &Factory{Function: function}
}

// ServiceFactory returns a factory calling method on the named service
func ServiceFactory(service, method string) *Factory {
	return &Factory{Service: service, Method: method}
}

// IsMethod reports whether the factory is a method on another service
func (f *Factory) IsMethod() bool {
	return f != nil && f.Service != ""
}

func (f *Factory) validate() error {
	switch {
	case f.Function != "" && f.Service != "":
		return fmt.Errorf("%w: factory sets both function %q and service %q", ErrInvalidDefinition, f.Function, f.Service)
	case f.Function == "" && f.Service == "":
		return fmt.Errorf("%w: empty factory", ErrInvalidDefinition)
	case f.Service != "" && f.Method == "":
		return fmt.Errorf("%w: factory on service %q has no method", ErrInvalidDefinition, f.Service)
	case f.Function != "" && f.Method != "":
		return fmt.Errorf("%w: static factory %q cannot name a method", ErrInvalidDefinition, f.Function)
	}
	return nil
}

// Definition describes one injectable service
type Definition struct {
	Class     string
	Factory   *Factory
	Arguments []Argument
}

// Validate checks the shape of the definition. References are checked by
// the graph builder and the compiler.
func (d Definition) Validate() error {
	if d.Class == "" && d.Factory == nil {
		return fmt.Errorf("%w: neither class nor factory set", ErrInvalidDefinition)
	}
	if d.Factory != nil {
		if err := d.Factory.validate(); err != nil {
			return err
		}
	}
	for i, arg := range d.Arguments {
		if arg.IsRef() && strings.TrimSpace(arg.ref) != arg.ref {
			return fmt.Errorf("%w: argument %d references %q", ErrInvalidDefinition, i, arg.ref)
		}
	}
	return nil
}

// References returns the names of the services this definition depends on,
// in argument order with the factory service last.
func (d Definition) References() []string {
	var refs []string
	for _, arg := range d.Arguments {
		if arg.IsRef() {
			refs = append(refs, arg.ref)
		}
	}
	if d.Factory.IsMethod() {
		refs = append(refs, d.Factory.Service)
	}
	return refs
}

func (d Definition) clone() Definition {
	out := Definition{Class: d.Class}
	if d.Factory != nil {
		f := *d.Factory
		out.Factory = &f
	}
	if d.Arguments != nil {
		out.Arguments = make([]Argument, len(d.Arguments))
		copy(out.Arguments, d.Arguments)
	}
	return out
}
