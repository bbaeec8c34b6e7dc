package minipy

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Distinguishes an exception of the given class among errors.
func (ctx *Context) isException(err error, class *Thing) bool {
	var raised *Error
	return errors.As(err, &raised) && raised.Value.IsInstanceOf(class)
}

func typeName(thing *Thing) string {
	return className(thing.Class)
}

// Call invokes any callable Thing. Calling a class instantiates it; other
// non-function values are called through their __call__ entry.
func (ctx *Context) Call(callee *Thing, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if callee.IsClass() {
		return ctx.Instantiate(callee, args, kwargs)
	}
	if callee.Function != nil {
		return ctx.callFunction(callee.Function, args, kwargs)
	}
	if call, ok := callee.lookupProtocol("__call__"); ok {
		return ctx.Call(call, args, kwargs)
	}
	return nil, ctx.Errorf(ctx.Classes.TypeError, "'%s' object is not callable", typeName(callee))
}

func (ctx *Context) callMethod(thing *Thing, name string, args ...*Thing) (*Thing, bool, error) {
	method, ok := thing.lookupProtocol(name)
	if !ok {
		return nil, false, nil
	}
	result, err := ctx.Call(method, args, nil)
	return result, true, err
}

func (ctx *Context) callFunction(fn *Function, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if len(fn.Bound) > 0 {
		args = append(slices.Clone(fn.Bound), args...)
	}
	if fn.Builtin != nil {
		return fn.Builtin(ctx, args, kwargs)
	}

	if ctx.callDepth >= maxCallDepth {
		return nil, ctx.Errorf(ctx.Classes.Exception, "maximum recursion depth exceeded")
	}
	ctx.callDepth += 1
	defer func() { ctx.callDepth -= 1 }()

	env := NewEnvironment(fn.Closure, nil, fn.Name)
	if err := ctx.bindArguments(fn, env, args, kwargs); err != nil {
		return nil, err
	}

	flow, err := ctx.executeStatements(fn.Definition.Body, env)
	if err != nil {
		return nil, err
	}
	if ret, ok := flow.(Return); ok && ret.Value != nil {
		return ret.Value, nil
	}
	return ctx.None, nil
}

func (ctx *Context) bindArguments(fn *Function, env *Environment, args []*Thing, kwargs map[string]*Thing) error {
	parameters := fn.Definition.Parameters
	if len(args) > len(parameters) {
		return ctx.Errorf(ctx.Classes.TypeError, "%s() takes %d positional arguments but %d were given", fn.Name, len(parameters), len(args))
	}

	bound := map[string]bool{}
	for i, arg := range args {
		env.Let(parameters[i].Name, arg)
		bound[parameters[i].Name] = true
	}

	for _, name := range slices.Sorted(maps.Keys(kwargs)) {
		if !slices.ContainsFunc(parameters, func(p AstParameter) bool { return p.Name == name }) {
			return ctx.Errorf(ctx.Classes.TypeError, "%s() got an unexpected keyword argument '%s'", fn.Name, name)
		}
		if bound[name] {
			return ctx.Errorf(ctx.Classes.TypeError, "%s() got multiple values for argument '%s'", fn.Name, name)
		}
		env.Let(name, kwargs[name])
		bound[name] = true
	}

	missing := []string{}
	for _, parameter := range parameters {
		if bound[parameter.Name] {
			continue
		}
		if value, ok := fn.Defaults[parameter.Name]; ok {
			env.Let(parameter.Name, value)
			continue
		}
		missing = append(missing, fmt.Sprintf("'%s'", parameter.Name))
	}
	if len(missing) > 0 {
		plural := "argument"
		if len(missing) > 1 {
			plural = "arguments"
		}
		return ctx.Errorf(ctx.Classes.TypeError, "%s() missing %d required %s: %s", fn.Name, len(missing), plural, strings.Join(missing, ", "))
	}
	return nil
}

// Instantiate creates an instance of class and runs its initializer, which
// must return None. Built-in value classes construct through their
// converter instead.
func (ctx *Context) Instantiate(class *Thing, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if convert, ok := ctx.converters[class]; ok {
		return convert(ctx, args, kwargs)
	}

	instance := &Thing{Class: class, Namespace: NewNamespace()}
	init, hasInit := instance.lookupInClass("__init__")

	for ancestor := class.Base(); ancestor != nil; ancestor = ancestor.Base() {
		convert, ok := ctx.converters[ancestor]
		if !ok {
			continue
		}
		// Subclasses of built-in value classes carry the same payload.
		var value *Thing
		var err error
		if hasInit {
			value, err = convert(ctx, nil, nil)
		} else {
			value, err = convert(ctx, args, kwargs)
		}
		if err != nil {
			return nil, err
		}
		instance.Primitive = value.Primitive
		if !hasInit {
			return instance, nil
		}
		break
	}

	if !hasInit {
		if len(args) > 0 || len(kwargs) > 0 {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "%s() takes no arguments", className(class))
		}
		return instance, nil
	}

	result, err := ctx.Call(init, args, kwargs)
	if err != nil {
		return nil, err
	}
	if !result.IsNone() {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "__init__() should return None, not '%s'", typeName(result))
	}
	return instance, nil
}

// Truthy applies __bool__, then __len__, and treats everything else as
// true.
func (ctx *Context) Truthy(thing *Thing) (bool, error) {
	if b, ok := thing.Primitive.(bool); ok && thing.Class == ctx.Classes.Bool {
		return b, nil
	}
	if result, ok, err := ctx.callMethod(thing, "__bool__"); ok {
		if err != nil {
			return false, err
		}
		b, ok := result.Primitive.(bool)
		if !ok {
			return false, ctx.Errorf(ctx.Classes.TypeError, "__bool__ should return bool, returned %s", typeName(result))
		}
		return b, nil
	}
	if result, ok, err := ctx.callMethod(thing, "__len__"); ok {
		if err != nil {
			return false, err
		}
		n, ok := result.Primitive.(int64)
		if !ok {
			return false, ctx.Errorf(ctx.Classes.TypeError, "'%s' object cannot be interpreted as an integer", typeName(result))
		}
		return n != 0, nil
	}
	return true, nil
}

func (ctx *Context) Repr(thing *Thing) (string, error) {
	if result, ok, err := ctx.callMethod(thing, "__repr__"); ok {
		if err != nil {
			return "", err
		}
		s, ok := result.Primitive.(string)
		if !ok {
			return "", ctx.Errorf(ctx.Classes.TypeError, "__repr__ returned non-string (type %s)", typeName(result))
		}
		return s, nil
	}
	return thing.String(), nil
}

func (ctx *Context) Str(thing *Thing) (string, error) {
	if result, ok, err := ctx.callMethod(thing, "__str__"); ok {
		if err != nil {
			return "", err
		}
		s, ok := result.Primitive.(string)
		if !ok {
			return "", ctx.Errorf(ctx.Classes.TypeError, "__str__ returned non-string (type %s)", typeName(result))
		}
		return s, nil
	}
	return ctx.Repr(thing)
}

func (ctx *Context) Iter(thing *Thing) (*Thing, error) {
	result, ok, err := ctx.callMethod(thing, "__iter__")
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "'%s' object is not iterable", typeName(thing))
	}
	return result, err
}

// Next advances an iterator. The boolean is false once the iterator is
// exhausted; StopIteration never escapes.
func (ctx *Context) Next(iterator *Thing) (*Thing, bool, error) {
	if data, ok := iterator.Primitive.(*IteratorData); ok {
		return data.next()
	}
	result, ok, err := ctx.callMethod(iterator, "__next__")
	if !ok {
		return nil, false, ctx.Errorf(ctx.Classes.TypeError, "'%s' object is not an iterator", typeName(iterator))
	}
	if err != nil {
		if ctx.isException(err, ctx.Classes.StopIteration) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return result, true, nil
}

// Collect drains an iterable into a slice.
func (ctx *Context) Collect(iterable *Thing) ([]*Thing, error) {
	switch data := iterable.Primitive.(type) {
	case *ListData:
		return slices.Clone(data.Elements), nil
	case *TupleData:
		return slices.Clone(data.Elements), nil
	}
	iterator, err := ctx.Iter(iterable)
	if err != nil {
		return nil, err
	}
	elements := []*Thing{}
	for {
		element, ok, err := ctx.Next(iterator)
		if err != nil {
			return nil, err
		}
		if !ok {
			return elements, nil
		}
		elements = append(elements, element)
	}
}

// Equal applies __eq__, falling back to identity.
func (ctx *Context) Equal(a, b *Thing) (bool, error) {
	result, ok, err := ctx.callMethod(a, "__eq__", b)
	if !ok {
		return isSame(a, b), nil
	}
	if err != nil {
		return false, err
	}
	return ctx.Truthy(result)
}

func (ctx *Context) Hash(thing *Thing) (int64, error) {
	if !hashable(thing) {
		return 0, ctx.Errorf(ctx.Classes.TypeError, "unhashable type: '%s'", typeName(thing))
	}
	if result, ok, err := ctx.callMethod(thing, "__hash__"); ok {
		if err != nil {
			return 0, err
		}
		n, ok := result.Primitive.(int64)
		if !ok {
			return 0, ctx.Errorf(ctx.Classes.TypeError, "__hash__ method should return an integer")
		}
		return n, nil
	}
	return int64(keyHash(thing)), nil
}

func (ctx *Context) checkHashable(key *Thing) error {
	if !hashable(key) {
		return ctx.Errorf(ctx.Classes.TypeError, "unhashable type: '%s'", typeName(key))
	}
	return nil
}

func (ctx *Context) unsupported(operator string, a, b *Thing) error {
	if b == nil {
		return ctx.Errorf(ctx.Classes.TypeError, "\"%s\" not supported for '%s'", operatorText(operator), typeName(a))
	}
	return ctx.Errorf(ctx.Classes.TypeError, "\"%s\" not supported between instances of '%s' and '%s'", operatorText(operator), typeName(a), typeName(b))
}

var binaryProtocols = map[string]string{
	TOKEN_ADD: "__add__",
	TOKEN_MUL: "__mul__",
	TOKEN_DIV: "__truediv__",
	TOKEN_MOD: "__mod__",
	TOKEN_POW: "__pow__",
	TOKEN_EQ:  "__eq__",
	TOKEN_LT:  "__lt__",
	TOKEN_GT:  "__gt__",
	TOKEN_LE:  "__le__",
	TOKEN_GE:  "__ge__",
}

// BinaryOperation applies an operator to two evaluated operands.
func (ctx *Context) BinaryOperation(operator string, left, right *Thing) (*Thing, error) {
	switch operator {
	case TOKEN_IS:
		return ctx.NewBoolean(isSame(left, right)), nil
	case TOKEN_IS_NOT:
		return ctx.NewBoolean(!isSame(left, right)), nil
	case TOKEN_NE:
		equal, err := ctx.Equal(left, right)
		if err != nil {
			return nil, err
		}
		return ctx.NewBoolean(!equal), nil
	case TOKEN_EQ:
		equal, err := ctx.Equal(left, right)
		if err != nil {
			return nil, err
		}
		return ctx.NewBoolean(equal), nil
	case TOKEN_IN, TOKEN_NOT_IN:
		result, ok, err := ctx.callMethod(right, "__contains__", left)
		if !ok {
			return nil, ctx.unsupported(TOKEN_IN, right, left)
		}
		if err != nil {
			return nil, err
		}
		contained, err := ctx.Truthy(result)
		if err != nil {
			return nil, err
		}
		return ctx.NewBoolean(contained == (operator == TOKEN_IN)), nil
	case TOKEN_SUB:
		// Subtraction is addition of the negated right operand.
		negated, ok, err := ctx.callMethod(right, "__neg__")
		if !ok {
			return nil, ctx.unsupported(TOKEN_SUB, left, right)
		}
		if err != nil {
			return nil, err
		}
		result, ok, err := ctx.callMethod(left, "__add__", negated)
		if !ok || ctx.isException(err, ctx.Classes.TypeError) {
			return nil, ctx.unsupported(TOKEN_SUB, left, right)
		}
		return result, err
	}

	protocol, ok := binaryProtocols[operator]
	if !ok {
		return nil, InternalError{nil, fmt.Sprintf("unknown binary operator %s", operator)}
	}
	result, ok, err := ctx.callMethod(left, protocol, right)
	if !ok {
		return nil, ctx.unsupported(operator, left, right)
	}
	return result, err
}

func (self AstExpressionInteger) Eval(ctx *Context, env *Environment) (*Thing, error) {
	return ctx.NewInteger(self.Value), nil
}

func (self AstExpressionFloat) Eval(ctx *Context, env *Environment) (*Thing, error) {
	return ctx.NewFloat(self.Value), nil
}

func (self AstExpressionString) Eval(ctx *Context, env *Environment) (*Thing, error) {
	return ctx.NewString(self.Value), nil
}

func (self AstExpressionBoolean) Eval(ctx *Context, env *Environment) (*Thing, error) {
	return ctx.NewBoolean(self.Value), nil
}

func (self AstExpressionNone) Eval(ctx *Context, env *Environment) (*Thing, error) {
	return ctx.None, nil
}

func (self AstExpressionEmpty) Eval(ctx *Context, env *Environment) (*Thing, error) {
	return ctx.None, nil
}

func (self AstExpressionIdentifier) Eval(ctx *Context, env *Environment) (*Thing, error) {
	value, err := env.Get(self.Name)
	if errors.Is(err, ErrForbidden) {
		return nil, ctx.Errorf(ctx.Classes.ImportError, "cannot use name '%s' before its circular import has completed", self.Name)
	}
	if err != nil {
		return nil, ctx.Errorf(ctx.Classes.NameError, "name '%s' is not defined", self.Name)
	}
	return value, nil
}

func (self AstExpressionParened) Eval(ctx *Context, env *Environment) (*Thing, error) {
	return self.Expression.Eval(ctx, env)
}

func evalAll(ctx *Context, env *Environment, expressions []AstExpression) ([]*Thing, error) {
	values := make([]*Thing, len(expressions))
	for i, expression := range expressions {
		value, err := expression.Eval(ctx, env)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

func (self AstExpressionTuple) Eval(ctx *Context, env *Environment) (*Thing, error) {
	elements, err := evalAll(ctx, env, self.Elements)
	if err != nil {
		return nil, err
	}
	return ctx.NewTuple(elements), nil
}

func (self AstExpressionList) Eval(ctx *Context, env *Environment) (*Thing, error) {
	elements, err := evalAll(ctx, env, self.Elements)
	if err != nil {
		return nil, err
	}
	return ctx.NewList(elements), nil
}

func (self AstExpressionSet) Eval(ctx *Context, env *Environment) (*Thing, error) {
	elements, err := evalAll(ctx, env, self.Elements)
	if err != nil {
		return nil, err
	}
	result := ctx.NewSet()
	set := result.Primitive.(*Set)
	for _, element := range elements {
		if err := ctx.checkHashable(element); err != nil {
			return nil, err
		}
		set.Insert(element)
	}
	return result, nil
}

func (self AstExpressionDict) Eval(ctx *Context, env *Environment) (*Thing, error) {
	result := ctx.NewDict()
	dict := result.Primitive.(*Dict)
	for _, pair := range self.Pairs {
		key, err := pair.Key.Eval(ctx, env)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(key); err != nil {
			return nil, err
		}
		value, err := pair.Value.Eval(ctx, env)
		if err != nil {
			return nil, err
		}
		dict.Insert(key, value)
	}
	return result, nil
}

func (self AstExpressionCall) Eval(ctx *Context, env *Environment) (*Thing, error) {
	callee, err := self.Callee.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	args := []*Thing{}
	var kwargs map[string]*Thing
	for _, argument := range self.Arguments {
		value, err := argument.Value.Eval(ctx, env)
		if err != nil {
			return nil, err
		}
		if argument.Name == "" {
			args = append(args, value)
			continue
		}
		if kwargs == nil {
			kwargs = map[string]*Thing{}
		}
		if _, ok := kwargs[argument.Name]; ok {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "keyword argument repeated: %s", argument.Name)
		}
		kwargs[argument.Name] = value
	}
	return ctx.Call(callee, args, kwargs)
}

func (ctx *Context) GetAttribute(object *Thing, name string) (*Thing, error) {
	if value, ok := object.Lookup(name); ok {
		return value, nil
	}
	switch {
	case object.Class == ctx.Classes.Module:
		return nil, ctx.Errorf(ctx.Classes.AttributeError, "module '%s' has no attribute '%s'", moduleName(object), name)
	case object.IsClass():
		return nil, ctx.Errorf(ctx.Classes.AttributeError, "type object '%s' has no attribute '%s'", className(object), name)
	}
	return nil, ctx.Errorf(ctx.Classes.AttributeError, "'%s' object has no attribute '%s'", typeName(object), name)
}

func moduleName(module *Thing) string {
	if name, ok := module.Namespace.Get("__name__"); ok {
		return name.String()
	}
	return "?"
}

func (self AstExpressionAttribute) Eval(ctx *Context, env *Environment) (*Thing, error) {
	object, err := self.Object.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	return ctx.GetAttribute(object, self.Name)
}

func (ctx *Context) getItem(object *Thing, index *Thing) (*Thing, error) {
	result, ok, err := ctx.callMethod(object, "__getitem__", index)
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "'%s' object is not subscriptable", typeName(object))
	}
	return result, err
}

func (self AstExpressionIndex) Eval(ctx *Context, env *Environment) (*Thing, error) {
	object, err := self.Object.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	index, err := self.Index.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	return ctx.getItem(object, index)
}

func (ctx *Context) NewSlice(start, stop, step *Thing) *Thing {
	namespace := NewNamespace()
	namespace.Set("start", start)
	namespace.Set("stop", stop)
	namespace.Set("step", step)
	return &Thing{
		Class:     ctx.Classes.Slice,
		Namespace: namespace,
		Primitive: &SliceData{Start: start, Stop: stop, Step: step},
	}
}

func (self AstExpressionSlice) slice(ctx *Context, env *Environment) (*Thing, *Thing, error) {
	object, err := self.Object.Eval(ctx, env)
	if err != nil {
		return nil, nil, err
	}
	bounds, err := evalAll(ctx, env, []AstExpression{self.Start, self.Stop, self.Step})
	if err != nil {
		return nil, nil, err
	}
	return object, ctx.NewSlice(bounds[0], bounds[1], bounds[2]), nil
}

func (self AstExpressionSlice) Eval(ctx *Context, env *Environment) (*Thing, error) {
	object, slice, err := self.slice(ctx, env)
	if err != nil {
		return nil, err
	}
	return ctx.getItem(object, slice)
}

func (self AstExpressionBinary) Eval(ctx *Context, env *Environment) (*Thing, error) {
	left, err := self.Left.Eval(ctx, env)
	if err != nil {
		return nil, err
	}

	if self.Operator == TOKEN_AND || self.Operator == TOKEN_OR {
		truthy, err := ctx.Truthy(left)
		if err != nil {
			return nil, err
		}
		if truthy == (self.Operator == TOKEN_OR) {
			return left, nil
		}
		return self.Right.Eval(ctx, env)
	}

	right, err := self.Right.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	return ctx.BinaryOperation(self.Operator, left, right)
}

func (self AstExpressionUnary) Eval(ctx *Context, env *Environment) (*Thing, error) {
	operand, err := self.Operand.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	switch self.Operator {
	case TOKEN_NOT:
		truthy, err := ctx.Truthy(operand)
		if err != nil {
			return nil, err
		}
		return ctx.NewBoolean(!truthy), nil
	case TOKEN_NEGATE:
		result, ok, err := ctx.callMethod(operand, "__neg__")
		if !ok {
			return nil, ctx.unsupported(TOKEN_NEGATE, operand, nil)
		}
		return result, err
	}
	return nil, InternalError{self.Location, fmt.Sprintf("unknown unary operator %s", self.Operator)}
}

// The comprehension's loop variable lives in a child frame discarded
// afterwards.
func (self AstExpressionListComprehension) Eval(ctx *Context, env *Environment) (*Thing, error) {
	source, err := self.Source.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	iterator, err := ctx.Iter(source)
	if err != nil {
		return nil, err
	}

	scope := NewEnvironment(env, nil, "")
	elements := []*Thing{}
	for {
		element, ok, err := ctx.Next(iterator)
		if err != nil {
			return nil, err
		}
		if !ok {
			return ctx.NewList(elements), nil
		}
		if err := ctx.assign(self.Target, element, scope); err != nil {
			return nil, err
		}
		if self.Filter != nil {
			condition, err := self.Filter.Eval(ctx, scope)
			if err != nil {
				return nil, err
			}
			keep, err := ctx.Truthy(condition)
			if err != nil {
				return nil, err
			}
			if !keep {
				continue
			}
		}
		output, err := self.Output.Eval(ctx, scope)
		if err != nil {
			return nil, err
		}
		elements = append(elements, output)
	}
}
