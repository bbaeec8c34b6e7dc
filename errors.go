package minipy

import (
	"errors"
	"fmt"
	"strings"
)

// Parse Error Kinds
const (
	PARSE_SYNTAX      = "SyntaxError"
	PARSE_INDENTATION = "IndentationError"
)

type ParseError struct {
	Kind     string
	Location *SourceLocation // Optional
	why      string
}

func (self ParseError) Error() string {
	return fmt.Sprintf("%s: %s", self.Kind, self.why)
}

func syntaxError(location *SourceLocation, format string, args ...any) error {
	return ParseError{PARSE_SYNTAX, location, fmt.Sprintf(format, args...)}
}

func indentationError(location *SourceLocation, format string, args ...any) error {
	return ParseError{PARSE_INDENTATION, location, fmt.Sprintf(format, args...)}
}

// InternalError reports a violated interpreter invariant. It is never
// catchable by a miniPy try/except.
type InternalError struct {
	Location *SourceLocation // Optional
	why      string
}

func (self InternalError) Error() string {
	return fmt.Sprintf("internal error at %s: %s", self.Location, self.why)
}

type TraceElement struct {
	Location *SourceLocation
	Label    string
}

// Error is a raised miniPy exception unwinding through the evaluator. Trace
// grows innermost first as the error passes through executing statements.
// Below links the exception that was being handled when this one was raised.
type Error struct {
	Value *Thing
	Trace []TraceElement
	Below *Error
}

func (self *Error) Error() string {
	name := className(self.Value.Class)
	message := exceptionMessage(self.Value)
	if message == "" {
		return name
	}
	return fmt.Sprintf("%s: %s", name, message)
}

func (self *Error) addTrace(location *SourceLocation, label string) {
	self.Trace = append(self.Trace, TraceElement{location, label})
}

// Chain returns this error followed by every error linked below it.
func (self *Error) Chain() []*Error {
	chain := []*Error{}
	for err := self; err != nil; err = err.Below {
		chain = append(chain, err)
	}
	return chain
}

// NewError instantiates an exception class with string arguments, without
// running any user-defined initializer.
func (ctx *Context) NewError(class *Thing, args ...string) *Error {
	elements := make([]*Thing, len(args))
	for i, arg := range args {
		elements[i] = ctx.NewString(arg)
	}
	value := &Thing{Class: class, Namespace: NewNamespace()}
	value.Namespace.Set("args", ctx.NewTuple(elements))
	return &Error{Value: value, Trace: []TraceElement{}}
}

func (ctx *Context) Errorf(class *Thing, format string, args ...any) *Error {
	return ctx.NewError(class, fmt.Sprintf(format, args...))
}

// Record the statement an exception is passing through.
func traced(err error, location *SourceLocation, env *Environment) error {
	var raised *Error
	if errors.As(err, &raised) {
		raised.addTrace(location, env.Label())
	}
	return err
}

// Link an exception raised during cleanup or handling to the one that was
// already in flight.
func linkBelow(err error, inflight error) {
	var raised, below *Error
	if !errors.As(err, &raised) || !errors.As(inflight, &below) {
		return
	}
	if raised == below || raised.Below != nil {
		return
	}
	for link := below; link != nil; link = link.Below {
		if link == raised {
			return
		}
	}
	raised.Below = below
}

func className(class *Thing) string {
	if class == nil {
		return "?"
	}
	if name, ok := class.Namespace.Get("__name__"); ok {
		if s, ok := name.Primitive.(string); ok {
			return s
		}
	}
	return "?"
}

// Host-side rendering of an exception's arguments, used where no Context
// is available to run __str__.
func exceptionMessage(value *Thing) string {
	args, ok := value.Namespace.Get("args")
	if !ok {
		return ""
	}
	tuple, ok := args.Primitive.(*TupleData)
	if !ok {
		return ""
	}
	parts := make([]string, len(tuple.Elements))
	for i, element := range tuple.Elements {
		parts[i] = element.String()
	}
	return strings.Join(parts, ", ")
}

type ControlFlow interface {
	ControlFlowLocation() *SourceLocation
}

type Return struct {
	Location *SourceLocation // Optional
	Value    *Thing
}

func (self Return) ControlFlowLocation() *SourceLocation {
	return self.Location
}

type Break struct {
	Location *SourceLocation // Optional
}

func (self Break) ControlFlowLocation() *SourceLocation {
	return self.Location
}

type Continue struct {
	Location *SourceLocation // Optional
}

func (self Continue) ControlFlowLocation() *SourceLocation {
	return self.Location
}
