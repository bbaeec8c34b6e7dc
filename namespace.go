package minipy

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUndefined = errors.New("not defined")
	// Reading a name bound by a circular import that has not completed.
	ErrForbidden = errors.New("not bound yet: circular import")
)

// Namespace is an insertion-ordered table of names. It serves as instance
// attributes, class member tables and lexical scope frames alike.
type Namespace struct {
	keys      []string
	store     map[string]*Thing
	forbidden map[string]bool
}

func NewNamespace() *Namespace {
	return &Namespace{
		store: map[string]*Thing{},
	}
}

func (self *Namespace) Get(name string) (*Thing, bool) {
	value, ok := self.store[name]
	return value, ok
}

func (self *Namespace) IsForbidden(name string) bool {
	return self.forbidden[name]
}

// Set binds a name, clearing any forbidden mark on it.
func (self *Namespace) Set(name string, value *Thing) {
	if _, ok := self.store[name]; !ok {
		self.keys = append(self.keys, name)
	}
	self.store[name] = value
	delete(self.forbidden, name)
}

func (self *Namespace) Delete(name string) bool {
	if _, ok := self.store[name]; !ok {
		return false
	}
	delete(self.store, name)
	self.keys = slices.DeleteFunc(self.keys, func(key string) bool { return key == name })
	return true
}

func (self *Namespace) Forbid(name string) {
	if self.forbidden == nil {
		self.forbidden = map[string]bool{}
	}
	self.forbidden[name] = true
}

func (self *Namespace) Keys() []string {
	return slices.Clone(self.keys)
}

func (self *Namespace) Len() int {
	return len(self.keys)
}

// Environment is the chain of scope frames used to resolve identifiers,
// innermost first.
type Environment struct {
	outer *Environment // Optional
	store *Namespace
	label string
	// Class bodies are not visible from the functions defined in them.
	classBody bool
}

func NewEnvironment(outer *Environment, store *Namespace, label string) *Environment {
	if store == nil {
		store = NewNamespace()
	}
	return &Environment{
		outer: outer,
		store: store,
		label: label,
	}
}

func newClassEnvironment(outer *Environment, store *Namespace, label string) *Environment {
	env := NewEnvironment(outer, store, label)
	env.classBody = true
	return env
}

// The innermost frame that functions defined here close over.
func (self *Environment) scope() *Environment {
	env := self
	for env.classBody && env.outer != nil {
		env = env.outer
	}
	return env
}

func (self *Environment) Namespace() *Namespace {
	return self.store
}

// Label names the enclosing function, class body or module for stack traces.
func (self *Environment) Label() string {
	for env := self; env != nil; env = env.outer {
		if env.label != "" {
			return env.label
		}
	}
	return "<module>"
}

// Let binds a name in the innermost frame.
func (self *Environment) Let(name string, value *Thing) {
	self.store.Set(name, value)
}

func (self *Environment) Get(name string) (*Thing, error) {
	for env := self; env != nil; env = env.outer {
		if env.store.IsForbidden(name) {
			return nil, fmt.Errorf("identifier %s is %w", name, ErrForbidden)
		}
		if value, ok := env.store.Get(name); ok {
			return value, nil
		}
	}
	return nil, fmt.Errorf("identifier %s is %w", name, ErrUndefined)
}

// Delete unbinds a name from the innermost frame only.
func (self *Environment) Delete(name string) error {
	if !self.store.Delete(name) {
		return fmt.Errorf("identifier %s is %w", name, ErrUndefined)
	}
	return nil
}
