package minipy

import (
	"fmt"
	"strings"
)

func dictData(ctx *Context, self *Thing) (*Dict, error) {
	data, ok := self.Primitive.(*Dict)
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "descriptor requires a 'dict' object but received a '%s'", typeName(self))
	}
	return data, nil
}

func setData(ctx *Context, self *Thing) (*Set, error) {
	data, ok := self.Primitive.(*Set)
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "descriptor requires a 'set' object but received a '%s'", typeName(self))
	}
	return data, nil
}

func (ctx *Context) keyError(key *Thing) error {
	r, err := ctx.Repr(key)
	if err != nil {
		return err
	}
	return ctx.Errorf(ctx.Classes.KeyError, "%s", r)
}

// Insert key-value pairs from a dict or an iterable of pairs.
func (ctx *Context) updateDict(dict *Dict, source *Thing) error {
	if other, ok := source.Primitive.(*Dict); ok {
		for _, element := range other.Elements() {
			dict.Insert(element.Key, element.Value)
		}
		return nil
	}
	pairs, err := ctx.Collect(source)
	if err != nil {
		return err
	}
	for i, pair := range pairs {
		items, err := ctx.Collect(pair)
		if err != nil {
			return err
		}
		if len(items) != 2 {
			return ctx.Errorf(ctx.Classes.ValueError, "dictionary update sequence element #%d has length %d; 2 is required", i, len(items))
		}
		if err := ctx.checkHashable(items[0]); err != nil {
			return err
		}
		dict.Insert(items[0], items[1])
	}
	return nil
}

func (ctx *Context) keyIterator(keys []*Thing) *Thing {
	return ctx.elementIterator(func() []*Thing { return keys })
}

var dictMethods = methodTable{
	"__len__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		return ctx.NewInteger(int64(dict.Len())), nil
	}),
	"__contains__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		return ctx.NewBoolean(dict.Lookup(args[0]) != nil), nil
	}),
	"__getitem__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		value := dict.Lookup(args[0])
		if value == nil {
			return nil, ctx.keyError(args[0])
		}
		return value, nil
	}),
	"__setitem__": method(2, 2, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		dict.Insert(args[0], args[1])
		return ctx.None, nil
	}),
	"__delitem__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		if !dict.Remove(args[0]) {
			return nil, ctx.keyError(args[0])
		}
		return ctx.None, nil
	}),
	"__iter__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		return ctx.keyIterator(dict.Keys()), nil
	}),
	"__eq__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, _ := self.Primitive.(*Dict)
		b, ok := args[0].Primitive.(*Dict)
		if !ok || a == nil || a.Len() != b.Len() {
			return ctx.False, nil
		}
		for _, element := range a.Elements() {
			other := b.Lookup(element.Key)
			if other == nil {
				return ctx.False, nil
			}
			equal, err := ctx.Equal(element.Value, other)
			if err != nil {
				return nil, err
			}
			if !equal {
				return ctx.False, nil
			}
		}
		return ctx.True, nil
	}),
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		parts := []string{}
		for _, element := range dict.Elements() {
			key, err := ctx.Repr(element.Key)
			if err != nil {
				return nil, err
			}
			value, err := ctx.Repr(element.Value)
			if err != nil {
				return nil, err
			}
			parts = append(parts, fmt.Sprintf("%s: %s", key, value))
		}
		return ctx.NewString("{" + strings.Join(parts, ", ") + "}"), nil
	}),
	"get": method(1, 2, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		if value := dict.Lookup(args[0]); value != nil {
			return value, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return ctx.None, nil
	}),
	"keys": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		return ctx.NewList(dict.Keys()), nil
	}),
	"values": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		values := []*Thing{}
		for _, element := range dict.Elements() {
			values = append(values, element.Value)
		}
		return ctx.NewList(values), nil
	}),
	"items": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		items := []*Thing{}
		for _, element := range dict.Elements() {
			items = append(items, ctx.NewTuple([]*Thing{element.Key, element.Value}))
		}
		return ctx.NewList(items), nil
	}),
	"pop": method(1, 2, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		value := dict.Lookup(args[0])
		if value == nil {
			if len(args) == 2 {
				return args[1], nil
			}
			return nil, ctx.keyError(args[0])
		}
		dict.Remove(args[0])
		return value, nil
	}),
	"update": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		return ctx.None, ctx.updateDict(dict, args[0])
	}),
	"clear": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		dict.Clear()
		return ctx.None, nil
	}),
	"copy": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		dict, err := dictData(ctx, self)
		if err != nil {
			return nil, err
		}
		result := ctx.NewDict()
		result.Primitive = dict.Copy()
		return result, nil
	}),
}

func convertDict(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if len(args) > 1 {
		return nil, ctx.arityError("dict", 0, 1, len(args))
	}
	result := ctx.NewDict()
	dict := result.Primitive.(*Dict)
	if len(args) == 1 {
		if err := ctx.updateDict(dict, args[0]); err != nil {
			return nil, err
		}
	}
	for name, value := range kwargs {
		dict.Insert(ctx.NewString(name), value)
	}
	return result, nil
}

func (ctx *Context) collectSet(iterable *Thing) (*Set, error) {
	if set, ok := iterable.Primitive.(*Set); ok {
		return set, nil
	}
	elements, err := ctx.Collect(iterable)
	if err != nil {
		return nil, err
	}
	set := &Set{}
	for _, element := range elements {
		if err := ctx.checkHashable(element); err != nil {
			return nil, err
		}
		set.Insert(element)
	}
	return set, nil
}

func (ctx *Context) newSetFrom(set *Set) *Thing {
	result := ctx.NewSet()
	result.Primitive = set
	return result
}

var setMethods = methodTable{
	"__len__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		return ctx.NewInteger(int64(set.Len())), nil
	}),
	"__contains__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		return ctx.NewBoolean(set.Contains(args[0])), nil
	}),
	"__iter__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		return ctx.keyIterator(set.Elements()), nil
	}),
	"__eq__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, _ := self.Primitive.(*Set)
		b, ok := args[0].Primitive.(*Set)
		if !ok || a == nil || a.Len() != b.Len() {
			return ctx.False, nil
		}
		for _, element := range a.Elements() {
			if !b.Contains(element) {
				return ctx.False, nil
			}
		}
		return ctx.True, nil
	}),
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		if set.Len() == 0 {
			return ctx.NewString("set()"), nil
		}
		inner, err := ctx.joinReprs(set.Elements())
		if err != nil {
			return nil, err
		}
		return ctx.NewString("{" + inner + "}"), nil
	}),
	"add": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		set.Insert(args[0])
		return ctx.None, nil
	}),
	"discard": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		set.Remove(args[0])
		return ctx.None, nil
	}),
	"remove": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		if err := ctx.checkHashable(args[0]); err != nil {
			return nil, err
		}
		if !set.Remove(args[0]) {
			return nil, ctx.keyError(args[0])
		}
		return ctx.None, nil
	}),
	"pop": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		elements := set.Elements()
		if len(elements) == 0 {
			return nil, ctx.Errorf(ctx.Classes.KeyError, "pop from an empty set")
		}
		set.Remove(elements[0])
		return elements[0], nil
	}),
	"clear": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		set.Clear()
		return ctx.None, nil
	}),
	"union": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		other, err := ctx.collectSet(args[0])
		if err != nil {
			return nil, err
		}
		result := set.Copy()
		for _, element := range other.Elements() {
			result.Insert(element)
		}
		return ctx.newSetFrom(result), nil
	}),
	"intersection": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		other, err := ctx.collectSet(args[0])
		if err != nil {
			return nil, err
		}
		result := &Set{}
		for _, element := range set.Elements() {
			if other.Contains(element) {
				result.Insert(element)
			}
		}
		return ctx.newSetFrom(result), nil
	}),
	"copy": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		set, err := setData(ctx, self)
		if err != nil {
			return nil, err
		}
		return ctx.newSetFrom(set.Copy()), nil
	}),
}

func convertSet(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("set", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ctx.NewSet(), nil
	}
	set, err := ctx.collectSet(args[0])
	if err != nil {
		return nil, err
	}
	if set == args[0].Primitive {
		set = set.Copy()
	}
	return ctx.newSetFrom(set), nil
}
