package minipy

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
)

type Classes struct {
	Class    *Thing // Meta-class: the class of every class.
	Function *Thing
	Bool     *Thing
	NoneType *Thing
	Int      *Thing
	Float    *Thing
	Str      *Thing
	List     *Thing
	Tuple    *Thing
	Dict     *Thing
	Set      *Thing
	Slice    *Thing
	Range    *Thing
	Module   *Thing
	Iterator *Thing

	Exception         *Thing
	StopIteration     *Thing
	NameError         *Thing
	TypeError         *Thing
	IndexError        *Thing
	KeyError          *Thing
	AttributeError    *Thing
	ImportError       *Thing
	KeyboardInterrupt *Thing
	ValueError        *Thing
}

// A host-native method. The receiver is passed separately from the
// positional arguments, whose count must lie within [min, max]; max < 0
// means unbounded. Keyword arguments are accepted for the positions named
// in parameters.
type builtinMethod struct {
	min        int
	max        int
	parameters []string
	fn         func(ctx *Context, self *Thing, args []*Thing) (*Thing, error)
}

type methodTable map[string]builtinMethod

type builtinClass struct {
	name    string
	slot    func(classes *Classes) **Thing
	base    func(classes *Classes) *Thing // Optional
	global  bool
	methods methodTable
	convert BuiltinFunc // Optional
}

func method(min, max int, fn func(ctx *Context, self *Thing, args []*Thing) (*Thing, error)) builtinMethod {
	return builtinMethod{min: min, max: max, fn: fn}
}

// Merge method tables, later tables overriding earlier ones.
func mergeMethods(tables ...methodTable) methodTable {
	merged := methodTable{}
	for _, table := range tables {
		maps.Copy(merged, table)
	}
	return merged
}

// The built-in classes in bootstrap order. Read-only after package
// initialization; every Context instantiates its own class Things from it.
var builtinClasses = []builtinClass{
	{name: "Class", slot: func(c *Classes) **Thing { return &c.Class }, methods: metaMethods},
	{name: "str", slot: func(c *Classes) **Thing { return &c.Str }, global: true, methods: strMethods, convert: convertStr},
	{name: "Function", slot: func(c *Classes) **Thing { return &c.Function }, methods: functionMethods},
	{name: "NoneType", slot: func(c *Classes) **Thing { return &c.NoneType }, methods: noneMethods},
	{name: "int", slot: func(c *Classes) **Thing { return &c.Int }, global: true, methods: intMethods, convert: convertInt},
	{name: "bool", slot: func(c *Classes) **Thing { return &c.Bool }, base: func(c *Classes) *Thing { return c.Int }, global: true, methods: boolMethods, convert: convertBool},
	{name: "float", slot: func(c *Classes) **Thing { return &c.Float }, global: true, methods: floatMethods, convert: convertFloat},
	{name: "list", slot: func(c *Classes) **Thing { return &c.List }, global: true, methods: listMethods, convert: convertList},
	{name: "tuple", slot: func(c *Classes) **Thing { return &c.Tuple }, global: true, methods: tupleMethods, convert: convertTuple},
	{name: "dict", slot: func(c *Classes) **Thing { return &c.Dict }, global: true, methods: dictMethods, convert: convertDict},
	{name: "set", slot: func(c *Classes) **Thing { return &c.Set }, global: true, methods: setMethods, convert: convertSet},
	{name: "slice", slot: func(c *Classes) **Thing { return &c.Slice }, global: true, methods: sliceMethods, convert: convertSlice},
	{name: "range", slot: func(c *Classes) **Thing { return &c.Range }, global: true, methods: rangeMethods, convert: convertRange},
	{name: "Module", slot: func(c *Classes) **Thing { return &c.Module }, methods: moduleMethods},
	{name: "iterator", slot: func(c *Classes) **Thing { return &c.Iterator }, methods: iteratorMethods},
	{name: "Exception", slot: func(c *Classes) **Thing { return &c.Exception }, global: true, methods: exceptionMethods},
	exceptionClass("StopIteration", func(c *Classes) **Thing { return &c.StopIteration }),
	exceptionClass("NameError", func(c *Classes) **Thing { return &c.NameError }),
	exceptionClass("TypeError", func(c *Classes) **Thing { return &c.TypeError }),
	exceptionClass("IndexError", func(c *Classes) **Thing { return &c.IndexError }),
	exceptionClass("KeyError", func(c *Classes) **Thing { return &c.KeyError }),
	exceptionClass("AttributeError", func(c *Classes) **Thing { return &c.AttributeError }),
	exceptionClass("ImportError", func(c *Classes) **Thing { return &c.ImportError }),
	exceptionClass("KeyboardInterrupt", func(c *Classes) **Thing { return &c.KeyboardInterrupt }),
	exceptionClass("ValueError", func(c *Classes) **Thing { return &c.ValueError }),
}

func exceptionClass(name string, slot func(c *Classes) **Thing) builtinClass {
	return builtinClass{
		name:   name,
		slot:   slot,
		base:   func(c *Classes) *Thing { return c.Exception },
		global: true,
	}
}

func (ctx *Context) wrapMethod(class string, name string, m builtinMethod) BuiltinFunc {
	qualified := class + "." + name
	return func(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
		if len(args) == 0 {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "%s() needs an argument", qualified)
		}
		self, args := args[0], args[1:]
		if len(kwargs) > 0 {
			filled := slices.Clone(args)
			for _, keyword := range slices.Sorted(maps.Keys(kwargs)) {
				position := slices.Index(m.parameters, keyword)
				if position < 0 {
					return nil, ctx.Errorf(ctx.Classes.TypeError, "%s() got an unexpected keyword argument '%s'", qualified, keyword)
				}
				for len(filled) <= position {
					filled = append(filled, nil)
				}
				if filled[position] != nil {
					return nil, ctx.Errorf(ctx.Classes.TypeError, "%s() got multiple values for argument '%s'", qualified, keyword)
				}
				filled[position] = kwargs[keyword]
			}
			if slices.Contains(filled, nil) {
				return nil, ctx.Errorf(ctx.Classes.TypeError, "%s() missing a positional argument", qualified)
			}
			args = filled
		}
		if len(args) < m.min || (m.max >= 0 && len(args) > m.max) {
			return nil, ctx.arityError(qualified, m.min, m.max, len(args))
		}
		return m.fn(ctx, self, args)
	}
}

func (ctx *Context) arityError(name string, min, max, given int) error {
	switch {
	case min == max:
		return ctx.Errorf(ctx.Classes.TypeError, "%s() takes exactly %d arguments (%d given)", name, min, given)
	case given < min:
		return ctx.Errorf(ctx.Classes.TypeError, "%s() takes at least %d arguments (%d given)", name, min, given)
	}
	return ctx.Errorf(ctx.Classes.TypeError, "%s() takes at most %d arguments (%d given)", name, max, given)
}

func (ctx *Context) checkArity(name string, args []*Thing, kwargs map[string]*Thing, min, max int) error {
	if len(kwargs) > 0 {
		return ctx.Errorf(ctx.Classes.TypeError, "%s() takes no keyword arguments", name)
	}
	if len(args) < min || (max >= 0 && len(args) > max) {
		return ctx.arityError(name, min, max, len(args))
	}
	return nil
}

func (ctx *Context) bootstrap() {
	classes := &ctx.Classes

	// The meta-class is its own class; every other class is allocated
	// before any namespace is filled since filling needs str and Function.
	meta := &Thing{Namespace: NewNamespace()}
	meta.Class = meta
	for _, entry := range builtinClasses {
		slot := entry.slot(classes)
		if entry.name == "Class" {
			*slot = meta
			continue
		}
		*slot = &Thing{Class: meta, Namespace: NewNamespace()}
	}

	ctx.converters = map[*Thing]BuiltinFunc{}
	builtins := NewNamespace()
	for _, entry := range builtinClasses {
		class := *entry.slot(classes)
		class.Namespace.Set("__name__", ctx.NewString(entry.name))
		if entry.base != nil {
			class.Namespace.Set("__base__", entry.base(classes))
		}
		for _, name := range slices.Sorted(maps.Keys(entry.methods)) {
			class.Namespace.Set(name, ctx.NewBuiltin(name, ctx.wrapMethod(entry.name, name, entry.methods[name])))
		}
		if entry.convert != nil {
			ctx.converters[class] = entry.convert
		} else if !class.IsSubclassOf(classes.Exception) {
			ctx.converters[class] = uninstantiable(entry.name)
		}
		if entry.global {
			builtins.Set(entry.name, class)
		}
	}

	ctx.True = &Thing{Class: classes.Bool, Namespace: NewNamespace(), Primitive: true}
	ctx.False = &Thing{Class: classes.Bool, Namespace: NewNamespace(), Primitive: false}
	ctx.None = &Thing{Class: classes.NoneType, Namespace: NewNamespace(), Primitive: noneValue{}}

	for _, name := range slices.Sorted(maps.Keys(builtinFunctions)) {
		builtins.Set(name, ctx.NewBuiltin(name, builtinFunctions[name]))
	}
	ctx.BaseEnvironment = NewEnvironment(nil, builtins, "")
}

func uninstantiable(name string) BuiltinFunc {
	return func(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "cannot create '%s' instances", name)
	}
}

func (ctx *Context) reprOf(thing *Thing) (*Thing, error) {
	s, err := ctx.Repr(thing)
	if err != nil {
		return nil, err
	}
	return ctx.NewString(s), nil
}

func (ctx *Context) joinReprs(things []*Thing) (string, error) {
	parts := make([]string, len(things))
	for i, thing := range things {
		s, err := ctx.Repr(thing)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}

var metaMethods = methodTable{
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		return ctx.NewString(fmt.Sprintf("<class '%s'>", className(self))), nil
	}),
	"__dict__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		result := ctx.NewDict()
		dict := result.Primitive.(*Dict)
		for _, name := range self.Namespace.Keys() {
			value, _ := self.Namespace.Get(name)
			dict.Insert(ctx.NewString(name), value)
		}
		return result, nil
	}),
}

var functionMethods = methodTable{
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		name := "?"
		if self.Function != nil {
			name = self.Function.Name
		}
		if self.Function != nil && len(self.Function.Bound) > 0 {
			return ctx.NewString(fmt.Sprintf("<bound method %s>", name)), nil
		}
		return ctx.NewString(fmt.Sprintf("<function %s>", name)), nil
	}),
}

var noneMethods = methodTable{
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		return ctx.NewString("None"), nil
	}),
	"__bool__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		return ctx.False, nil
	}),
}

var moduleMethods = methodTable{
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		return ctx.NewString(fmt.Sprintf("<module '%s'>", moduleName(self))), nil
	}),
}

var iteratorMethods = methodTable{
	"__iter__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		return self, nil
	}),
	"__next__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, ok := self.Primitive.(*IteratorData)
		if !ok {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "'%s' object is not an iterator", typeName(self))
		}
		value, ok, err := data.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ctx.NewError(ctx.Classes.StopIteration)
		}
		return value, nil
	}),
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		return ctx.NewString("<iterator object>"), nil
	}),
}

func exceptionArgs(ctx *Context, self *Thing) []*Thing {
	args, ok := self.Namespace.Get("args")
	if !ok {
		return nil
	}
	if tuple, ok := args.Primitive.(*TupleData); ok {
		return tuple.Elements
	}
	return []*Thing{args}
}

var exceptionMethods = methodTable{
	"__init__": method(0, -1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		self.Namespace.Set("args", ctx.NewTuple(slices.Clone(args)))
		return ctx.None, nil
	}),
	"__str__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements := exceptionArgs(ctx, self)
		switch len(elements) {
		case 0:
			return ctx.NewString(""), nil
		case 1:
			s, err := ctx.Str(elements[0])
			if err != nil {
				return nil, err
			}
			return ctx.NewString(s), nil
		}
		return ctx.reprOf(ctx.NewTuple(elements))
	}),
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		inner, err := ctx.joinReprs(exceptionArgs(ctx, self))
		if err != nil {
			return nil, err
		}
		return ctx.NewString(fmt.Sprintf("%s(%s)", typeName(self), inner)), nil
	}),
}

// Free functions of the builtins frame.
var builtinFunctions = map[string]BuiltinFunc{
	"type":       builtinType,
	"repr":       builtinRepr,
	"hash":       builtinHash,
	"len":        builtinLen,
	"iter":       builtinIter,
	"next":       builtinNext,
	"print":      builtinPrint,
	"input":      builtinInput,
	"isinstance": builtinIsInstance,
	"issubclass": builtinIsSubclass,
}

func builtinType(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("type", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	return args[0].Class, nil
}

func builtinRepr(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("repr", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	return ctx.reprOf(args[0])
}

func builtinHash(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("hash", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	hash, err := ctx.Hash(args[0])
	if err != nil {
		return nil, err
	}
	return ctx.NewInteger(hash), nil
}

func builtinLen(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("len", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	result, ok, err := ctx.callMethod(args[0], "__len__")
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "object of type '%s' has no len()", typeName(args[0]))
	}
	return result, err
}

func builtinIter(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("iter", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	return ctx.Iter(args[0])
}

func builtinNext(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("next", args, kwargs, 1, 2); err != nil {
		return nil, err
	}
	value, ok, err := ctx.Next(args[0])
	if err != nil {
		return nil, err
	}
	if !ok {
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, ctx.NewError(ctx.Classes.StopIteration)
	}
	return value, nil
}

func (ctx *Context) stringKeyword(kwargs map[string]*Thing, name string, fallback string) (string, error) {
	value, ok := kwargs[name]
	if !ok || value.IsNone() {
		return fallback, nil
	}
	s, ok := value.Primitive.(string)
	if !ok {
		return "", ctx.Errorf(ctx.Classes.TypeError, "%s must be None or a string, not %s", name, typeName(value))
	}
	return s, nil
}

func builtinPrint(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	for name := range kwargs {
		if name != "sep" && name != "end" && name != "flush" {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "'%s' is an invalid keyword argument for print()", name)
		}
	}
	sep, err := ctx.stringKeyword(kwargs, "sep", " ")
	if err != nil {
		return nil, err
	}
	end, err := ctx.stringKeyword(kwargs, "end", "\n")
	if err != nil {
		return nil, err
	}

	parts := make([]string, len(args))
	for i, arg := range args {
		if parts[i], err = ctx.Str(arg); err != nil {
			return nil, err
		}
	}
	if _, err := io.WriteString(ctx.Stdout, strings.Join(parts, sep)+end); err != nil {
		return nil, ctx.Errorf(ctx.Classes.Exception, "print: %v", err)
	}

	if flush, ok := kwargs["flush"]; ok {
		truthy, err := ctx.Truthy(flush)
		if err != nil {
			return nil, err
		}
		if syncer, ok := ctx.Stdout.(interface{ Sync() error }); ok && truthy {
			_ = syncer.Sync()
		}
	}
	return ctx.None, nil
}

func builtinInput(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("input", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 1 && !args[0].IsNone() {
		prompt, err := ctx.Str(args[0])
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(ctx.Stdout, prompt); err != nil {
			return nil, ctx.Errorf(ctx.Classes.Exception, "input: %v", err)
		}
	}
	line, err := ctx.Stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		if err == io.EOF {
			return nil, ctx.Errorf(ctx.Classes.Exception, "EOF when reading a line")
		}
		return nil, ctx.Errorf(ctx.Classes.Exception, "input: %v", err)
	}
	return ctx.NewString(strings.TrimSuffix(line, "\n")), nil
}

func (ctx *Context) classArgument(function string, thing *Thing) ([]*Thing, error) {
	classes := []*Thing{thing}
	if tuple, ok := thing.Primitive.(*TupleData); ok {
		classes = tuple.Elements
	}
	for _, class := range classes {
		if !class.IsClass() {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "%s() arg 2 must be a class or tuple of classes", function)
		}
	}
	return classes, nil
}

func builtinIsInstance(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("isinstance", args, kwargs, 2, 2); err != nil {
		return nil, err
	}
	classes, err := ctx.classArgument("isinstance", args[1])
	if err != nil {
		return nil, err
	}
	return ctx.NewBoolean(slices.ContainsFunc(classes, args[0].IsInstanceOf)), nil
}

func builtinIsSubclass(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("issubclass", args, kwargs, 2, 2); err != nil {
		return nil, err
	}
	if !args[0].IsClass() {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "issubclass() arg 1 must be a class")
	}
	classes, err := ctx.classArgument("issubclass", args[1])
	if err != nil {
		return nil, err
	}
	return ctx.NewBoolean(slices.ContainsFunc(classes, args[0].IsSubclassOf)), nil
}
