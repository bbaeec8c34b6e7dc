package minipy

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

func (ctx *Context) indexValue(index *Thing) (int64, bool) {
	switch data := index.Primitive.(type) {
	case int64:
		return data, true
	case bool:
		if data {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (ctx *Context) normalizeIndex(kind string, length int, index *Thing) (int, error) {
	i, ok := ctx.indexValue(index)
	if !ok {
		return 0, ctx.Errorf(ctx.Classes.TypeError, "%s indices must be integers or slices, not %s", kind, typeName(index))
	}
	if i < 0 {
		i += int64(length)
	}
	if i < 0 || i >= int64(length) {
		return 0, ctx.Errorf(ctx.Classes.IndexError, "%s index out of range", kind)
	}
	return int(i), nil
}

func (ctx *Context) sliceBound(bound *Thing, length int, step int, fallback int) (int, error) {
	if bound == nil || bound.IsNone() {
		return fallback, nil
	}
	i64, ok := ctx.indexValue(bound)
	if !ok {
		return 0, ctx.Errorf(ctx.Classes.TypeError, "slice indices must be integers or None")
	}
	i := int(i64)
	if i < 0 {
		i += length
		if i < 0 {
			if step < 0 {
				return -1, nil
			}
			return 0, nil
		}
	} else if i >= length {
		if step < 0 {
			return length - 1, nil
		}
		return length, nil
	}
	return i, nil
}

// Resolve a slice against a sequence length into the selected positions.
func (ctx *Context) sliceIndices(length int, slice *SliceData) ([]int, int, error) {
	step := 1
	if slice.Step != nil && !slice.Step.IsNone() {
		s, ok := ctx.indexValue(slice.Step)
		if !ok {
			return nil, 0, ctx.Errorf(ctx.Classes.TypeError, "slice indices must be integers or None")
		}
		if s == 0 {
			return nil, 0, ctx.Errorf(ctx.Classes.ValueError, "slice step cannot be zero")
		}
		step = int(s)
	}

	startDefault, stopDefault := 0, length
	if step < 0 {
		startDefault, stopDefault = length-1, -1
	}
	start, err := ctx.sliceBound(slice.Start, length, step, startDefault)
	if err != nil {
		return nil, 0, err
	}
	stop, err := ctx.sliceBound(slice.Stop, length, step, stopDefault)
	if err != nil {
		return nil, 0, err
	}

	positions := []int{}
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		positions = append(positions, i)
	}
	return positions, step, nil
}

func pick[T any](items []T, positions []int) []T {
	result := make([]T, len(positions))
	for i, position := range positions {
		result[i] = items[position]
	}
	return result
}

func elementsOf(thing *Thing) ([]*Thing, bool) {
	switch data := thing.Primitive.(type) {
	case *ListData:
		return data.Elements, true
	case *TupleData:
		return data.Elements, true
	}
	return nil, false
}

func (ctx *Context) repeatCount(count *Thing) (int, bool) {
	n, ok := ctx.indexValue(count)
	if !ok {
		return 0, false
	}
	return int(max(n, 0)), true
}

func (ctx *Context) sequencesEqual(a, b []*Thing) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		if a[i] == b[i] {
			continue
		}
		equal, err := ctx.Equal(a[i], b[i])
		if err != nil || !equal {
			return false, err
		}
	}
	return true, nil
}

func (ctx *Context) lessThan(a, b *Thing) (bool, error) {
	result, err := ctx.BinaryOperation(TOKEN_LT, a, b)
	if err != nil {
		return false, err
	}
	return ctx.Truthy(result)
}

// Lexicographic ordering of two sequences.
func (ctx *Context) compareSequences(a, b []*Thing, operator string) (bool, error) {
	for i := 0; i < len(a) && i < len(b); i += 1 {
		equal, err := ctx.Equal(a[i], b[i])
		if err != nil {
			return false, err
		}
		if equal {
			continue
		}
		switch operator {
		case TOKEN_LT, TOKEN_LE:
			return ctx.lessThan(a[i], b[i])
		default:
			return ctx.lessThan(b[i], a[i])
		}
	}
	switch operator {
	case TOKEN_LT:
		return len(a) < len(b), nil
	case TOKEN_LE:
		return len(a) <= len(b), nil
	case TOKEN_GT:
		return len(a) > len(b), nil
	}
	return len(a) >= len(b), nil
}

func (ctx *Context) indexOf(elements []*Thing, value *Thing) (int, error) {
	for i, element := range elements {
		equal, err := ctx.Equal(element, value)
		if err != nil {
			return 0, err
		}
		if equal {
			return i, nil
		}
	}
	return -1, nil
}

func (ctx *Context) elementIterator(elements func() []*Thing) *Thing {
	position := 0
	return ctx.NewIterator(func() (*Thing, bool, error) {
		current := elements()
		if position >= len(current) {
			return nil, false, nil
		}
		position += 1
		return current[position-1], true, nil
	})
}

func sequenceComparison(operator string) builtinMethod {
	return method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, _ := elementsOf(self)
		b, ok := elementsOf(args[0])
		if !ok || self.Class != args[0].Class {
			return nil, ctx.unsupported(operator, self, args[0])
		}
		result, err := ctx.compareSequences(a, b, operator)
		if err != nil {
			return nil, err
		}
		return ctx.NewBoolean(result), nil
	})
}

// Operations shared by list and tuple.
var sequenceMethods = methodTable{
	"__len__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements, _ := elementsOf(self)
		return ctx.NewInteger(int64(len(elements))), nil
	}),
	"__contains__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements, _ := elementsOf(self)
		i, err := ctx.indexOf(elements, args[0])
		if err != nil {
			return nil, err
		}
		return ctx.NewBoolean(i >= 0), nil
	}),
	"__eq__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, _ := elementsOf(self)
		b, ok := elementsOf(args[0])
		if !ok || self.Class != args[0].Class {
			return ctx.False, nil
		}
		equal, err := ctx.sequencesEqual(a, b)
		if err != nil {
			return nil, err
		}
		return ctx.NewBoolean(equal), nil
	}),
	"__lt__": sequenceComparison(TOKEN_LT),
	"__le__": sequenceComparison(TOKEN_LE),
	"__gt__": sequenceComparison(TOKEN_GT),
	"__ge__": sequenceComparison(TOKEN_GE),
	"__iter__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		return ctx.elementIterator(func() []*Thing {
			elements, _ := elementsOf(self)
			return elements
		}), nil
	}),
	"index": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements, _ := elementsOf(self)
		i, err := ctx.indexOf(elements, args[0])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			r, err := ctx.Repr(args[0])
			if err != nil {
				return nil, err
			}
			return nil, ctx.Errorf(ctx.Classes.ValueError, "%s is not in %s", r, typeName(self))
		}
		return ctx.NewInteger(int64(i)), nil
	}),
	"count": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements, _ := elementsOf(self)
		count := int64(0)
		for _, element := range elements {
			equal, err := ctx.Equal(element, args[0])
			if err != nil {
				return nil, err
			}
			if equal {
				count += 1
			}
		}
		return ctx.NewInteger(count), nil
	}),
}

func listData(ctx *Context, self *Thing) (*ListData, error) {
	data, ok := self.Primitive.(*ListData)
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "descriptor requires a 'list' object but received a '%s'", typeName(self))
	}
	return data, nil
}

func (ctx *Context) newSequence(like *Thing, elements []*Thing) *Thing {
	if _, ok := like.Primitive.(*TupleData); ok {
		return ctx.NewTuple(elements)
	}
	return ctx.NewList(elements)
}

func sequenceGetItem(kind string) builtinMethod {
	return method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements, _ := elementsOf(self)
		if slice, ok := args[0].Primitive.(*SliceData); ok {
			positions, _, err := ctx.sliceIndices(len(elements), slice)
			if err != nil {
				return nil, err
			}
			return ctx.newSequence(self, pick(elements, positions)), nil
		}
		i, err := ctx.normalizeIndex(kind, len(elements), args[0])
		if err != nil {
			return nil, err
		}
		return elements[i], nil
	})
}

func sequenceConcat(kind string) builtinMethod {
	return method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, _ := elementsOf(self)
		b, ok := elementsOf(args[0])
		if !ok || self.Class != args[0].Class {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "can only concatenate %s (not '%s') to %s", kind, typeName(args[0]), kind)
		}
		return ctx.newSequence(self, append(slices.Clone(a), b...)), nil
	})
}

var sequenceRepeat = method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
	elements, _ := elementsOf(self)
	n, ok := ctx.repeatCount(args[0])
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "can't multiply sequence by non-int of type '%s'", typeName(args[0]))
	}
	result := make([]*Thing, 0, len(elements)*n)
	for range n {
		result = append(result, elements...)
	}
	return ctx.newSequence(self, result), nil
})

var listMethods = mergeMethods(sequenceMethods, methodTable{
	"__add__":     sequenceConcat("list"),
	"__mul__":     sequenceRepeat,
	"__getitem__": sequenceGetItem("list"),
	"__setitem__": method(2, 2, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		slice, ok := args[0].Primitive.(*SliceData)
		if !ok {
			i, err := ctx.normalizeIndex("list assignment", len(data.Elements), args[0])
			if err != nil {
				return nil, err
			}
			data.Elements[i] = args[1]
			return ctx.None, nil
		}

		values, err := ctx.Collect(args[1])
		if err != nil {
			return nil, err
		}
		positions, step, err := ctx.sliceIndices(len(data.Elements), slice)
		if err != nil {
			return nil, err
		}
		if step != 1 {
			if len(values) != len(positions) {
				return nil, ctx.Errorf(ctx.Classes.ValueError, "attempt to assign sequence of size %d to extended slice of size %d", len(values), len(positions))
			}
			for i, position := range positions {
				data.Elements[position] = values[i]
			}
			return ctx.None, nil
		}
		start, err := ctx.sliceBound(slice.Start, len(data.Elements), 1, 0)
		if err != nil {
			return nil, err
		}
		stop := start + len(positions)
		data.Elements = slices.Replace(data.Elements, start, stop, values...)
		return ctx.None, nil
	}),
	"__delitem__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		if slice, ok := args[0].Primitive.(*SliceData); ok {
			positions, _, err := ctx.sliceIndices(len(data.Elements), slice)
			if err != nil {
				return nil, err
			}
			remove := map[int]bool{}
			for _, position := range positions {
				remove[position] = true
			}
			kept := []*Thing{}
			for i, element := range data.Elements {
				if !remove[i] {
					kept = append(kept, element)
				}
			}
			data.Elements = kept
			return ctx.None, nil
		}
		i, err := ctx.normalizeIndex("list assignment", len(data.Elements), args[0])
		if err != nil {
			return nil, err
		}
		data.Elements = slices.Delete(data.Elements, i, i+1)
		return ctx.None, nil
	}),
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements, _ := elementsOf(self)
		inner, err := ctx.joinReprs(elements)
		if err != nil {
			return nil, err
		}
		return ctx.NewString("[" + inner + "]"), nil
	}),
	"append": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		data.Elements = append(data.Elements, args[0])
		return ctx.None, nil
	}),
	"extend": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		values, err := ctx.Collect(args[0])
		if err != nil {
			return nil, err
		}
		data.Elements = append(data.Elements, values...)
		return ctx.None, nil
	}),
	"insert": method(2, 2, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		i64, ok := ctx.indexValue(args[0])
		if !ok {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "'%s' object cannot be interpreted as an integer", typeName(args[0]))
		}
		n := int64(len(data.Elements))
		if i64 < 0 {
			i64 = max(i64+n, 0)
		}
		i := int(min(i64, n))
		data.Elements = slices.Insert(data.Elements, i, args[1])
		return ctx.None, nil
	}),
	"pop": method(0, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		if len(data.Elements) == 0 {
			return nil, ctx.Errorf(ctx.Classes.IndexError, "pop from empty list")
		}
		i := len(data.Elements) - 1
		if len(args) == 1 {
			if i, err = ctx.normalizeIndex("pop", len(data.Elements), args[0]); err != nil {
				return nil, err
			}
		}
		value := data.Elements[i]
		data.Elements = slices.Delete(data.Elements, i, i+1)
		return value, nil
	}),
	"remove": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		i, err := ctx.indexOf(data.Elements, args[0])
		if err != nil {
			return nil, err
		}
		if i < 0 {
			return nil, ctx.Errorf(ctx.Classes.ValueError, "list.remove(x): x not in list")
		}
		data.Elements = slices.Delete(data.Elements, i, i+1)
		return ctx.None, nil
	}),
	"clear": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		data.Elements = []*Thing{}
		return ctx.None, nil
	}),
	"copy": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements, _ := elementsOf(self)
		return ctx.NewList(slices.Clone(elements)), nil
	}),
	"reverse": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		slices.Reverse(data.Elements)
		return ctx.None, nil
	}),
	"sort": {min: 0, max: 1, parameters: []string{"reverse"}, fn: func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := listData(ctx, self)
		if err != nil {
			return nil, err
		}
		reverse := false
		if len(args) == 1 {
			if reverse, err = ctx.Truthy(args[0]); err != nil {
				return nil, err
			}
		}
		var failure error
		sorted := slices.Clone(data.Elements)
		slices.SortStableFunc(sorted, func(a, b *Thing) int {
			if failure != nil {
				return 0
			}
			if reverse {
				a, b = b, a
			}
			less, err := ctx.lessThan(a, b)
			if err != nil {
				failure = err
				return 0
			}
			if less {
				return -1
			}
			if greater, err := ctx.lessThan(b, a); err != nil {
				failure = err
			} else if greater {
				return 1
			}
			return 0
		})
		if failure != nil {
			return nil, failure
		}
		data.Elements = sorted
		return ctx.None, nil
	}},
})

var tupleMethods = mergeMethods(sequenceMethods, methodTable{
	"__add__":     sequenceConcat("tuple"),
	"__mul__":     sequenceRepeat,
	"__getitem__": sequenceGetItem("tuple"),
	"__hash__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements, _ := elementsOf(self)
		for _, element := range elements {
			if err := ctx.checkHashable(element); err != nil {
				return nil, err
			}
		}
		return ctx.NewInteger(int64(keyHash(self))), nil
	}),
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		elements, _ := elementsOf(self)
		inner, err := ctx.joinReprs(elements)
		if err != nil {
			return nil, err
		}
		if len(elements) == 1 {
			inner += ","
		}
		return ctx.NewString("(" + inner + ")"), nil
	}),
})

func convertList(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("list", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ctx.NewList([]*Thing{}), nil
	}
	elements, err := ctx.Collect(args[0])
	if err != nil {
		return nil, err
	}
	return ctx.NewList(elements), nil
}

func convertTuple(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("tuple", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ctx.NewTuple([]*Thing{}), nil
	}
	elements, err := ctx.Collect(args[0])
	if err != nil {
		return nil, err
	}
	return ctx.NewTuple(elements), nil
}

func stringOf(ctx *Context, thing *Thing) (string, error) {
	s, ok := thing.Primitive.(string)
	if !ok {
		return "", ctx.Errorf(ctx.Classes.TypeError, "expected str, got %s", typeName(thing))
	}
	return s, nil
}

func stringComparison(operator string, compare func(a, b string) bool) builtinMethod {
	return method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, _ := self.Primitive.(string)
		b, ok := args[0].Primitive.(string)
		if !ok {
			return nil, ctx.unsupported(operator, self, args[0])
		}
		return ctx.NewBoolean(compare(a, b)), nil
	})
}

// A str method taking only string arguments.
func stringMethod(min, max int, fn func(ctx *Context, s string, args []string) (*Thing, error)) builtinMethod {
	return method(min, max, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		s, err := stringOf(ctx, self)
		if err != nil {
			return nil, err
		}
		strs := make([]string, len(args))
		for i, arg := range args {
			if strs[i], err = stringOf(ctx, arg); err != nil {
				return nil, err
			}
		}
		return fn(ctx, s, strs)
	})
}

var strMethods = methodTable{
	"__add__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, _ := self.Primitive.(string)
		b, ok := args[0].Primitive.(string)
		if !ok {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "can only concatenate str (not '%s') to str", typeName(args[0]))
		}
		return ctx.NewString(a + b), nil
	}),
	"__mul__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		s, _ := self.Primitive.(string)
		n, ok := ctx.repeatCount(args[0])
		if !ok {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "can't multiply sequence by non-int of type '%s'", typeName(args[0]))
		}
		return ctx.NewString(strings.Repeat(s, n)), nil
	}),
	"__eq__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, _ := self.Primitive.(string)
		b, ok := args[0].Primitive.(string)
		return ctx.NewBoolean(ok && a == b), nil
	}),
	"__lt__": stringComparison(TOKEN_LT, func(a, b string) bool { return a < b }),
	"__gt__": stringComparison(TOKEN_GT, func(a, b string) bool { return a > b }),
	"__le__": stringComparison(TOKEN_LE, func(a, b string) bool { return a <= b }),
	"__ge__": stringComparison(TOKEN_GE, func(a, b string) bool { return a >= b }),
	"__len__": stringMethod(0, 0, func(ctx *Context, s string, args []string) (*Thing, error) {
		return ctx.NewInteger(int64(utf8.RuneCountInString(s))), nil
	}),
	"__contains__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		s, _ := self.Primitive.(string)
		sub, ok := args[0].Primitive.(string)
		if !ok {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "'in <string>' requires string as left operand, not %s", typeName(args[0]))
		}
		return ctx.NewBoolean(strings.Contains(s, sub)), nil
	}),
	"__getitem__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		runes := []rune(self.String())
		if slice, ok := args[0].Primitive.(*SliceData); ok {
			positions, _, err := ctx.sliceIndices(len(runes), slice)
			if err != nil {
				return nil, err
			}
			return ctx.NewString(string(pick(runes, positions))), nil
		}
		i, err := ctx.normalizeIndex("string", len(runes), args[0])
		if err != nil {
			return nil, err
		}
		return ctx.NewString(string(runes[i])), nil
	}),
	"__iter__": stringMethod(0, 0, func(ctx *Context, s string, args []string) (*Thing, error) {
		runes := []rune(s)
		position := 0
		return ctx.NewIterator(func() (*Thing, bool, error) {
			if position >= len(runes) {
				return nil, false, nil
			}
			position += 1
			return ctx.NewString(string(runes[position-1])), true, nil
		}), nil
	}),
	"__hash__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		return ctx.NewInteger(int64(keyHash(self))), nil
	}),
	"__repr__": stringMethod(0, 0, func(ctx *Context, s string, args []string) (*Thing, error) {
		return ctx.NewString(quote(s)), nil
	}),
	"__str__": stringMethod(0, 0, func(ctx *Context, s string, args []string) (*Thing, error) {
		return ctx.NewString(s), nil
	}),
	"upper": stringMethod(0, 0, func(ctx *Context, s string, args []string) (*Thing, error) {
		return ctx.NewString(strings.ToUpper(s)), nil
	}),
	"lower": stringMethod(0, 0, func(ctx *Context, s string, args []string) (*Thing, error) {
		return ctx.NewString(strings.ToLower(s)), nil
	}),
	"strip": stringMethod(0, 1, func(ctx *Context, s string, args []string) (*Thing, error) {
		if len(args) == 1 {
			return ctx.NewString(strings.Trim(s, args[0])), nil
		}
		return ctx.NewString(strings.TrimSpace(s)), nil
	}),
	"split": stringMethod(0, 1, func(ctx *Context, s string, args []string) (*Thing, error) {
		var parts []string
		if len(args) == 0 {
			parts = strings.Fields(s)
		} else {
			if args[0] == "" {
				return nil, ctx.Errorf(ctx.Classes.ValueError, "empty separator")
			}
			parts = strings.Split(s, args[0])
		}
		elements := make([]*Thing, len(parts))
		for i, part := range parts {
			elements[i] = ctx.NewString(part)
		}
		return ctx.NewList(elements), nil
	}),
	"join": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		sep, err := stringOf(ctx, self)
		if err != nil {
			return nil, err
		}
		elements, err := ctx.Collect(args[0])
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(elements))
		for i, element := range elements {
			s, ok := element.Primitive.(string)
			if !ok {
				return nil, ctx.Errorf(ctx.Classes.TypeError, "sequence item %d: expected str instance, %s found", i, typeName(element))
			}
			parts[i] = s
		}
		return ctx.NewString(strings.Join(parts, sep)), nil
	}),
	"replace": stringMethod(2, 2, func(ctx *Context, s string, args []string) (*Thing, error) {
		return ctx.NewString(strings.ReplaceAll(s, args[0], args[1])), nil
	}),
	"startswith": stringMethod(1, 1, func(ctx *Context, s string, args []string) (*Thing, error) {
		return ctx.NewBoolean(strings.HasPrefix(s, args[0])), nil
	}),
	"endswith": stringMethod(1, 1, func(ctx *Context, s string, args []string) (*Thing, error) {
		return ctx.NewBoolean(strings.HasSuffix(s, args[0])), nil
	}),
	"find": stringMethod(1, 1, func(ctx *Context, s string, args []string) (*Thing, error) {
		i := strings.Index(s, args[0])
		if i < 0 {
			return ctx.NewInteger(-1), nil
		}
		return ctx.NewInteger(int64(utf8.RuneCountInString(s[:i]))), nil
	}),
	"count": stringMethod(1, 1, func(ctx *Context, s string, args []string) (*Thing, error) {
		return ctx.NewInteger(int64(strings.Count(s, args[0]))), nil
	}),
}

func convertStr(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("str", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ctx.NewString(""), nil
	}
	s, err := ctx.Str(args[0])
	if err != nil {
		return nil, err
	}
	return ctx.NewString(s), nil
}

func rangeData(ctx *Context, self *Thing) (*RangeData, error) {
	data, ok := self.Primitive.(*RangeData)
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "descriptor requires a 'range' object but received a '%s'", typeName(self))
	}
	return data, nil
}

var rangeMethods = methodTable{
	"__len__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := rangeData(ctx, self)
		if err != nil {
			return nil, err
		}
		return ctx.NewInteger(data.Len()), nil
	}),
	"__iter__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := rangeData(ctx, self)
		if err != nil {
			return nil, err
		}
		position := int64(0)
		return ctx.NewIterator(func() (*Thing, bool, error) {
			if position >= data.Len() {
				return nil, false, nil
			}
			value := data.Start + position*data.Step
			position += 1
			return ctx.NewInteger(value), true, nil
		}), nil
	}),
	"__contains__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := rangeData(ctx, self)
		if err != nil {
			return nil, err
		}
		n, ok := args[0].Primitive.(int64)
		if !ok {
			return ctx.False, nil
		}
		offset := n - data.Start
		inside := offset%data.Step == 0 && offset/data.Step >= 0 && offset/data.Step < data.Len()
		return ctx.NewBoolean(inside), nil
	}),
	"__getitem__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := rangeData(ctx, self)
		if err != nil {
			return nil, err
		}
		i, err := ctx.normalizeIndex("range object", int(data.Len()), args[0])
		if err != nil {
			return nil, err
		}
		return ctx.NewInteger(data.Start + int64(i)*data.Step), nil
	}),
	"__eq__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, _ := self.Primitive.(*RangeData)
		b, ok := args[0].Primitive.(*RangeData)
		return ctx.NewBoolean(ok && a != nil && *a == *b), nil
	}),
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, err := rangeData(ctx, self)
		if err != nil {
			return nil, err
		}
		if data.Step == 1 {
			return ctx.NewString(fmt.Sprintf("range(%d, %d)", data.Start, data.Stop)), nil
		}
		return ctx.NewString(fmt.Sprintf("range(%d, %d, %d)", data.Start, data.Stop, data.Step)), nil
	}),
}

func convertRange(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("range", args, kwargs, 1, 3); err != nil {
		return nil, err
	}
	values := make([]int64, len(args))
	for i, arg := range args {
		n, ok := ctx.indexValue(arg)
		if !ok {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "'%s' object cannot be interpreted as an integer", typeName(arg))
		}
		values[i] = n
	}
	data := &RangeData{Step: 1}
	switch len(values) {
	case 1:
		data.Stop = values[0]
	case 2:
		data.Start, data.Stop = values[0], values[1]
	case 3:
		data.Start, data.Stop, data.Step = values[0], values[1], values[2]
	}
	if data.Step == 0 {
		return nil, ctx.Errorf(ctx.Classes.ValueError, "range() arg 3 must not be zero")
	}
	return &Thing{Class: ctx.Classes.Range, Namespace: NewNamespace(), Primitive: data}, nil
}

var sliceMethods = methodTable{
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		data, ok := self.Primitive.(*SliceData)
		if !ok {
			return ctx.NewString("slice(?)"), nil
		}
		inner, err := ctx.joinReprs([]*Thing{data.Start, data.Stop, data.Step})
		if err != nil {
			return nil, err
		}
		return ctx.NewString("slice(" + inner + ")"), nil
	}),
}

func convertSlice(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("slice", args, kwargs, 1, 3); err != nil {
		return nil, err
	}
	switch len(args) {
	case 1:
		return ctx.NewSlice(ctx.None, args[0], ctx.None), nil
	case 2:
		return ctx.NewSlice(args[0], args[1], ctx.None), nil
	}
	return ctx.NewSlice(args[0], args[1], args[2]), nil
}
