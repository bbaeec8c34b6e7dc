package minipy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Thing is the single boxed runtime value. Every value, classes and
// functions included, has a class and a namespace. Primitive-backed values
// carry their scalar or container payload in Primitive; it is nil for pure
// user objects.
type Thing struct {
	Class     *Thing
	Namespace *Namespace
	Primitive any
	Function  *Function // Optional
}

// Payload of None.
type noneValue struct{}

type ListData struct {
	Elements []*Thing
}

type TupleData struct {
	Elements []*Thing
}

// Payload of slice objects. Omitted bounds are None.
type SliceData struct {
	Start *Thing
	Stop  *Thing
	Step  *Thing
}

type RangeData struct {
	Start int64
	Stop  int64
	Step  int64
}

func (self *RangeData) Len() int64 {
	if self.Step > 0 && self.Start < self.Stop {
		return (self.Stop - self.Start + self.Step - 1) / self.Step
	}
	if self.Step < 0 && self.Start > self.Stop {
		return (self.Start - self.Stop - self.Step - 1) / -self.Step
	}
	return 0
}

type IteratorData struct {
	next func() (*Thing, bool, error)
}

type BuiltinFunc func(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error)

// Function is the payload of function Things: either a user definition with
// its captured environment, or a host-native builtin. Bound holds the
// implicit leading arguments added by method binding.
type Function struct {
	Name       string
	Definition *AstStatementDef // Optional
	Closure    *Environment     // Optional
	Defaults   map[string]*Thing
	Builtin    BuiltinFunc // Optional
	Bound      []*Thing
}

func (self *Function) bind(thing *Thing) *Function {
	bound := *self
	bound.Bound = append(append([]*Thing{}, self.Bound...), thing)
	return &bound
}

func (self *Thing) IsClass() bool {
	return self.Class != nil && self.Class.Class == self.Class
}

func (self *Thing) IsNone() bool {
	_, ok := self.Primitive.(noneValue)
	return ok
}

// Base returns the single-inheritance parent of a class, or nil.
func (self *Thing) Base() *Thing {
	base, ok := self.Namespace.Get("__base__")
	if !ok || !base.IsClass() {
		return nil
	}
	return base
}

func (self *Thing) IsSubclassOf(other *Thing) bool {
	for class := self; class != nil; class = class.Base() {
		if class == other {
			return true
		}
	}
	return false
}

func (self *Thing) IsInstanceOf(class *Thing) bool {
	return self.Class != nil && self.Class.IsSubclassOf(class)
}

// Class-identity markers are never visible through instances.
func isClassMarker(name string) bool {
	return name == "__name__" || name == "__base__"
}

func bindTo(value *Thing, thing *Thing) *Thing {
	if value.Function == nil || value.IsClass() {
		return value
	}
	return &Thing{
		Class:     value.Class,
		Namespace: value.Namespace,
		Function:  value.Function.bind(thing),
	}
}

// Lookup resolves an attribute. The Thing's own namespace comes first. For
// a class, its ancestors follow, unbound. Then the chain of the Thing's own
// class is walked, closest class first, and functions found there are bound
// to the Thing.
func (self *Thing) Lookup(name string) (*Thing, bool) {
	if value, ok := self.Namespace.Get(name); ok {
		return value, true
	}
	if self.IsClass() {
		for base := self.Base(); base != nil; base = base.Base() {
			if value, ok := base.Namespace.Get(name); ok {
				return value, true
			}
		}
	}
	if isClassMarker(name) {
		return nil, false
	}
	return self.lookupInClass(name)
}

func (self *Thing) lookupInClass(name string) (*Thing, bool) {
	for class := self.Class; class != nil; class = class.Base() {
		if value, ok := class.Namespace.Get(name); ok {
			return bindTo(value, self), true
		}
	}
	return nil, false
}

// Protocol lookup for operators and builtins. Classes dispatch through
// their meta-class so that a class's own methods apply to its instances.
func (self *Thing) lookupProtocol(name string) (*Thing, bool) {
	if self.IsClass() {
		return self.lookupInClass(name)
	}
	return self.Lookup(name)
}

// Identity comparison for `is`. Primitive-backed values are also identical
// when their payloads are.
func isSame(a, b *Thing) bool {
	if a == b {
		return true
	}
	if a.Primitive == nil || b.Primitive == nil {
		return false
	}
	return a.Primitive == b.Primitive
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	if math.IsInf(f, +1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// String renders a Thing without running any miniPy code. The evaluator
// uses repr() and str(); this is for host-side diagnostics.
func (self *Thing) String() string {
	switch data := self.Primitive.(type) {
	case noneValue:
		return "None"
	case bool:
		if data {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(data, 10)
	case float64:
		return formatFloat(data)
	case string:
		return data
	case *ListData:
		return fmt.Sprintf("[%s]", joinThings(data.Elements))
	case *TupleData:
		if len(data.Elements) == 1 {
			return fmt.Sprintf("(%s,)", joinThings(data.Elements))
		}
		return fmt.Sprintf("(%s)", joinThings(data.Elements))
	}
	if self.IsClass() {
		return fmt.Sprintf("<class '%s'>", className(self))
	}
	if self.Function != nil {
		return fmt.Sprintf("<function %s>", self.Function.Name)
	}
	return fmt.Sprintf("<%s object>", className(self.Class))
}

func joinThings(things []*Thing) string {
	parts := make([]string, len(things))
	for i, thing := range things {
		if s, ok := thing.Primitive.(string); ok {
			parts[i] = quote(s)
			continue
		}
		parts[i] = thing.String()
	}
	return strings.Join(parts, ", ")
}
