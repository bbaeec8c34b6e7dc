// Package minipy implements an interpreter for miniPy, a small dynamically
// typed scripting language with indentation-structured blocks, single
// inheritance, closures and exceptions.
//
// Source text is lexed into tokens, grouped into command records by the line
// parser, nested into blocks by indentation, and executed directly against
// the object model. The Context owns every piece of runtime state.
package minipy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Fixed extension of miniPy source files.
const SourceExtension = ".minipy"

// Environment variable holding extra module search directories.
const SearchPathVariable = "MINIPY_PATH"

// Maximum nesting of function calls before an Exception is raised.
const maxCallDepth = 1000

func escape(s string, quote rune) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '\t':
			sb.WriteString("\\t")
		case '\n':
			sb.WriteString("\\n")
		case '\r':
			sb.WriteString("\\r")
		case '\\':
			sb.WriteString("\\\\")
		case quote:
			sb.WriteRune('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Quote a string the way repr() displays str values.
func quote(s string) string {
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		return fmt.Sprintf("\"%s\"", escape(s, '"'))
	}
	return fmt.Sprintf("'%s'", escape(s, '\''))
}

// FNV-1a
func fnv1a(s string) uint64 {
	var hash uint64 = 14695981039346656037 // FNV_offset_basis
	for i := 0; i < len(s); i += 1 {
		hash ^= uint64(s[i])
		hash *= 1099511628211 // FNV_prime
	}
	return hash
}

type SourceLocation struct {
	File string
	Line int
}

func (self *SourceLocation) String() string {
	if self == nil {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", self.File, self.Line)
}

// Context holds the state of one interpreter instance: the bootstrapped
// built-in classes, the builtins frame, the module registry and the host
// streams used by print() and input().
type Context struct {
	Classes         Classes
	True            *Thing
	False           *Thing
	None            *Thing
	BaseEnvironment *Environment

	Stdout io.Writer
	Stdin  *bufio.Reader

	// Directories probed after the importing file's directory and the
	// MINIPY_PATH entries.
	SearchPath []string

	converters  map[*Thing]BuiltinFunc
	modules     moduleRegistry
	sources     map[string][]string
	sourcesLock sync.Mutex
	interrupted atomic.Bool
	handling    *Error
	callDepth   int
}

func NewContext() *Context {
	ctx := &Context{
		Stdout:  os.Stdout,
		Stdin:   bufio.NewReader(os.Stdin),
		sources: map[string][]string{},
	}
	ctx.modules.init()
	ctx.bootstrap()
	return ctx
}

// Interrupt requests that the next executed statement raise
// KeyboardInterrupt. Safe to call from any goroutine.
func (ctx *Context) Interrupt() {
	ctx.interrupted.Store(true)
}

func (ctx *Context) checkInterrupt() error {
	if ctx.interrupted.Swap(false) {
		logger("minipy.eval").Debugf("delivering keyboard interrupt")
		return ctx.NewError(ctx.Classes.KeyboardInterrupt)
	}
	return nil
}

func (ctx *Context) rememberSource(file string, source string) {
	ctx.sourcesLock.Lock()
	defer ctx.sourcesLock.Unlock()
	ctx.sources[file] = strings.Split(source, "\n")
}

// SourceLine returns the text of a line previously loaded by the
// interpreter, or false if the file or line is unknown.
func (ctx *Context) SourceLine(file string, line int) (string, bool) {
	ctx.sourcesLock.Lock()
	defer ctx.sourcesLock.Unlock()
	lines, ok := ctx.sources[file]
	if !ok || line < 1 || line > len(lines) {
		return "", false
	}
	return lines[line-1], true
}

func (ctx *Context) NewBoolean(data bool) *Thing {
	if data {
		return ctx.True
	}
	return ctx.False
}

func (ctx *Context) NewInteger(data int64) *Thing {
	return &Thing{Class: ctx.Classes.Int, Namespace: NewNamespace(), Primitive: data}
}

func (ctx *Context) NewFloat(data float64) *Thing {
	return &Thing{Class: ctx.Classes.Float, Namespace: NewNamespace(), Primitive: data}
}

func (ctx *Context) NewString(data string) *Thing {
	return &Thing{Class: ctx.Classes.Str, Namespace: NewNamespace(), Primitive: data}
}

func (ctx *Context) NewList(elements []*Thing) *Thing {
	return &Thing{Class: ctx.Classes.List, Namespace: NewNamespace(), Primitive: &ListData{Elements: elements}}
}

func (ctx *Context) NewTuple(elements []*Thing) *Thing {
	return &Thing{Class: ctx.Classes.Tuple, Namespace: NewNamespace(), Primitive: &TupleData{Elements: elements}}
}

func (ctx *Context) NewDict() *Thing {
	return &Thing{Class: ctx.Classes.Dict, Namespace: NewNamespace(), Primitive: &Dict{}}
}

func (ctx *Context) NewSet() *Thing {
	return &Thing{Class: ctx.Classes.Set, Namespace: NewNamespace(), Primitive: &Set{}}
}

func (ctx *Context) NewIterator(next func() (*Thing, bool, error)) *Thing {
	return &Thing{Class: ctx.Classes.Iterator, Namespace: NewNamespace(), Primitive: &IteratorData{next: next}}
}

func (ctx *Context) NewBuiltin(name string, fn BuiltinFunc) *Thing {
	return &Thing{
		Class:     ctx.Classes.Function,
		Namespace: NewNamespace(),
		Function:  &Function{Name: name, Builtin: fn},
	}
}

func (ctx *Context) NewModule(name string, namespace *Namespace) *Thing {
	if _, ok := namespace.Get("__name__"); !ok {
		namespace.Set("__name__", ctx.NewString(name))
	}
	return &Thing{Class: ctx.Classes.Module, Namespace: namespace}
}

// NewClass creates a class Thing. The base may be nil.
func (ctx *Context) NewClass(name string, base *Thing, namespace *Namespace) *Thing {
	if namespace == nil {
		namespace = NewNamespace()
	}
	namespace.Set("__name__", ctx.NewString(name))
	if base != nil {
		namespace.Set("__base__", base)
	}
	return &Thing{Class: ctx.Classes.Class, Namespace: namespace}
}
