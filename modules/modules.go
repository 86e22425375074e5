// Package modules contains the module system used to wire up the engine.
// The module system allows each component to obtain references to the other
// components it depends on, without a web of constructor arguments.
//
// To access other modules from a struct, implement the Module interface.
// The InitModule method receives a pointer to the Core object, which is used
// to obtain pointers to the other modules. If the component interacts with
// the event loop, InitModule is the preferred place to register handlers.
//
// To set up the module system, create a Builder, add the modules, and build:
//
//	builder := modules.NewBuilder()
//	builder.Add(store.New(), registry.New())
//	mods := builder.Build()
//
// If two modules satisfy the same interface, the one registered last wins.
package modules

import (
	"fmt"
	"reflect"
)

// Module is an interface for initializing modules.
type Module interface {
	InitModule(mods *Core)
}

// Core is the base of the module system. It holds the modules registered
// through a Builder.
type Core struct {
	modules []any
}

// TryGet attempts to find a module for ptr, returning true on success.
//
// ptr must be a non-nil pointer to a type that has been provided to the
// module system.
func (mods *Core) TryGet(ptr any) bool {
	v := reflect.ValueOf(ptr)
	if !v.IsValid() {
		panic("nil value given")
	}
	pt := v.Type()
	if pt.Kind() != reflect.Ptr {
		panic("only pointer values allowed")
	}

	for _, m := range mods.modules {
		mv := reflect.ValueOf(m)
		if mv.Type().AssignableTo(pt.Elem()) {
			v.Elem().Set(mv)
			return true
		}
	}

	return false
}

// Get finds compatible modules for the given pointers.
// It panics if one of the arguments is not a pointer, or if a compatible
// module is not found.
func (mods *Core) Get(pointers ...any) {
	if len(pointers) == 0 {
		panic("no pointers given")
	}
	for _, ptr := range pointers {
		if !mods.TryGet(ptr) {
			panic(fmt.Sprintf("module of type %s not found", reflect.TypeOf(ptr).Elem()))
		}
	}
}

// Builder is a helper for setting up the modules.
type Builder struct {
	core    Core
	modules []Module
	opts    *Options
}

// NewBuilder returns a new builder with default options.
func NewBuilder() Builder {
	return Builder{opts: NewOptions()}
}

// Options returns the options module so that it can be configured before
// Build is called.
func (b *Builder) Options() *Options {
	return b.opts
}

// Add adds module instances to the builder.
func (b *Builder) Add(modules ...any) {
	b.core.modules = append(b.core.modules, modules...)
	for _, module := range modules {
		if m, ok := module.(Module); ok {
			b.modules = append(b.modules, m)
		}
	}
}

// Build initializes all added modules and returns the Core object.
func (b *Builder) Build() *Core {
	// reverse the order of the added modules so that TryGet finds the
	// latest first
	for i, j := 0, len(b.core.modules)-1; i < j; i, j = i+1, j-1 {
		b.core.modules[i], b.core.modules[j] = b.core.modules[j], b.core.modules[i]
	}
	// add the Options last so that it can be overridden by the user
	b.Add(b.opts)
	for _, module := range b.modules {
		module.InitModule(&b.core)
	}
	return &b.core
}
