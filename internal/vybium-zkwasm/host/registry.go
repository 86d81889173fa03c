// Package host serves the builtin host functions of a session: it checks the
// recorded host calls of a trace against the session's inputs and collects
// the context output they produce.
package host

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vybium/vybium-zkwasm/internal/vybium-zkwasm/specs"
)

var (
	// ErrUnknownHostFunction is returned for names no plugin provides
	ErrUnknownHostFunction = errors.New("unknown host function")

	// ErrHostFunctionDisabled is returned when a trace calls a host function
	// the session did not enable
	ErrHostFunctionDisabled = errors.New("host function not enabled")
)

// Function is one builtin host function.
type Function struct {
	Name   string
	Plugin specs.HostPlugin
	Params []specs.VarType
	Result *specs.VarType
}

var (
	i64 = specs.I64

	builtins = []Function{
		{Name: specs.HostFnWasmInput, Plugin: specs.HostInput, Params: []specs.VarType{specs.I32}, Result: &i64},
		{Name: specs.HostFnWasmReadContext, Plugin: specs.Context, Result: &i64},
		{Name: specs.HostFnWasmWriteContext, Plugin: specs.Context, Params: []specs.VarType{specs.I64}},
		{Name: specs.HostFnRequire, Plugin: specs.Require, Params: []specs.VarType{specs.I32}},
	}
)

// Builtins returns the names of every builtin host function.
func Builtins() []string {
	names := make([]string, len(builtins))
	for i, f := range builtins {
		names[i] = f.Name
	}
	return names
}

// Registry holds the host functions enabled for a session, indexed in the
// order they were enabled.
type Registry struct {
	functions []Function
}

// NewRegistry enables the named builtins.
func NewRegistry(names []string) (*Registry, error) {
	r := &Registry{functions: make([]Function, 0, len(names))}
	for _, name := range names {
		i := slices.IndexFunc(builtins, func(f Function) bool { return f.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownHostFunction, name)
		}
		if _, ok := r.Lookup(name); ok {
			continue
		}
		r.functions = append(r.functions, builtins[i])
	}
	return r, nil
}

// Lookup returns an enabled function and its index.
func (r *Registry) Lookup(name string) (Function, bool) {
	for _, f := range r.functions {
		if f.Name == name {
			return f, true
		}
	}
	return Function{}, false
}

// Index returns the function index of an enabled function.
func (r *Registry) Index(name string) (uint32, bool) {
	i := slices.IndexFunc(r.functions, func(f Function) bool { return f.Name == name })
	return uint32(i), i >= 0
}

// Names returns the enabled function names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.functions))
	for i, f := range r.functions {
		names[i] = f.Name
	}
	return names
}

// Check verifies that a recorded call targets an enabled function with its
// declared plugin and signature.
func (r *Registry) Check(info specs.CallHostInfo) error {
	f, ok := r.Lookup(info.Name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrHostFunctionDisabled, info.Name)
	}
	if f.Plugin != info.Plugin {
		return fmt.Errorf("%s belongs to %s, trace says %s", f.Name, f.Plugin, info.Plugin)
	}
	if !slices.Equal(f.Params, info.Params) || len(info.Args) != len(f.Params) {
		return fmt.Errorf("%s takes %d params, trace passes %d", f.Name, len(f.Params), len(info.Args))
	}
	if (f.Result == nil) != (info.Result == nil || info.Ret == nil) {
		return fmt.Errorf("%s result does not match its signature", f.Name)
	}
	return nil
}
