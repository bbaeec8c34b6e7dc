package minipy

import (
	"math"
	"strconv"
	"strings"
)

// Numeric view of int, float and bool payloads.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func toNumber(thing *Thing) (number, bool) {
	switch data := thing.Primitive.(type) {
	case int64:
		return number{i: data, f: float64(data)}, true
	case bool:
		if data {
			return number{i: 1, f: 1}, true
		}
		return number{}, true
	case float64:
		return number{i: int64(data), f: data, isFloat: true}, true
	}
	return number{}, false
}

func isSequence(thing *Thing) bool {
	switch thing.Primitive.(type) {
	case string, *ListData, *TupleData:
		return true
	}
	return false
}

func floorDivMod(a, b int64) int64 {
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func floatMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

// Integers are 64-bit; results that do not fit raise instead of wrapping.
func addInts(a, b int64) (int64, bool) {
	c := a + b
	if (a > 0 && b > 0 && c < 0) || (a < 0 && b < 0 && c >= 0) {
		return 0, false
	}
	return c, true
}

func mulInts(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	if c/b != a {
		return 0, false
	}
	return c, true
}

func negInt(a int64) (int64, bool) {
	if a == math.MinInt64 {
		return 0, false
	}
	return -a, true
}

func powInts(base, exponent int64) (int64, bool) {
	result := int64(1)
	for exponent > 0 {
		var ok bool
		if exponent&1 == 1 {
			if result, ok = mulInts(result, base); !ok {
				return 0, false
			}
		}
		exponent >>= 1
		if exponent > 0 {
			if base, ok = mulInts(base, base); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

func (ctx *Context) integerResult(operator string, value int64, ok bool) (*Thing, error) {
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.ValueError, "integer overflow in %s", quote(operatorText(operator)))
	}
	return ctx.NewInteger(value), nil
}

type arithmetic func(ctx *Context, a, b number) (*Thing, error)

func numericOperator(operator string, fn arithmetic) builtinMethod {
	return method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, ok := toNumber(self)
		if !ok {
			return nil, ctx.unsupported(operator, self, args[0])
		}
		b, ok := toNumber(args[0])
		if !ok {
			if operator == TOKEN_MUL && isSequence(args[0]) {
				result, _, err := ctx.callMethod(args[0], "__mul__", self)
				return result, err
			}
			return nil, ctx.unsupported(operator, self, args[0])
		}
		return fn(ctx, a, b)
	})
}

func numericComparison(operator string, compareInts func(a, b int64) bool, compareFloats func(a, b float64) bool) builtinMethod {
	return numericOperator(operator, func(ctx *Context, a, b number) (*Thing, error) {
		if a.isFloat || b.isFloat {
			return ctx.NewBoolean(compareFloats(a.f, b.f)), nil
		}
		return ctx.NewBoolean(compareInts(a.i, b.i)), nil
	})
}

func numericUnary(fn func(ctx *Context, self *Thing, a number) (*Thing, error)) builtinMethod {
	return method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, ok := toNumber(self)
		if !ok {
			return nil, ctx.Errorf(ctx.Classes.TypeError, "'%s' object is not a number", typeName(self))
		}
		return fn(ctx, self, a)
	})
}

// Shared by int and float; bool inherits it through int.
var numericMethods = methodTable{
	"__add__": numericOperator(TOKEN_ADD, func(ctx *Context, a, b number) (*Thing, error) {
		if a.isFloat || b.isFloat {
			return ctx.NewFloat(a.f + b.f), nil
		}
		sum, ok := addInts(a.i, b.i)
		return ctx.integerResult(TOKEN_ADD, sum, ok)
	}),
	"__mul__": numericOperator(TOKEN_MUL, func(ctx *Context, a, b number) (*Thing, error) {
		if a.isFloat || b.isFloat {
			return ctx.NewFloat(a.f * b.f), nil
		}
		product, ok := mulInts(a.i, b.i)
		return ctx.integerResult(TOKEN_MUL, product, ok)
	}),
	"__truediv__": numericOperator(TOKEN_DIV, func(ctx *Context, a, b number) (*Thing, error) {
		if b.f == 0 {
			return nil, ctx.Errorf(ctx.Classes.ValueError, "division by zero")
		}
		return ctx.NewFloat(a.f / b.f), nil
	}),
	"__mod__": numericOperator(TOKEN_MOD, func(ctx *Context, a, b number) (*Thing, error) {
		if b.f == 0 {
			return nil, ctx.Errorf(ctx.Classes.ValueError, "division by zero")
		}
		if a.isFloat || b.isFloat {
			return ctx.NewFloat(floatMod(a.f, b.f)), nil
		}
		return ctx.NewInteger(floorDivMod(a.i, b.i)), nil
	}),
	"__pow__": numericOperator(TOKEN_POW, func(ctx *Context, a, b number) (*Thing, error) {
		if !a.isFloat && !b.isFloat && b.i >= 0 {
			power, ok := powInts(a.i, b.i)
			return ctx.integerResult(TOKEN_POW, power, ok)
		}
		if a.f == 0 && b.f < 0 {
			return nil, ctx.Errorf(ctx.Classes.ValueError, "0.0 cannot be raised to a negative power")
		}
		return ctx.NewFloat(math.Pow(a.f, b.f)), nil
	}),
	"__eq__": method(1, 1, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		a, ok := toNumber(self)
		b, ok2 := toNumber(args[0])
		if !ok || !ok2 {
			return ctx.False, nil
		}
		if a.isFloat || b.isFloat {
			return ctx.NewBoolean(a.f == b.f), nil
		}
		return ctx.NewBoolean(a.i == b.i), nil
	}),
	"__lt__": numericComparison(TOKEN_LT, func(a, b int64) bool { return a < b }, func(a, b float64) bool { return a < b }),
	"__gt__": numericComparison(TOKEN_GT, func(a, b int64) bool { return a > b }, func(a, b float64) bool { return a > b }),
	"__le__": numericComparison(TOKEN_LE, func(a, b int64) bool { return a <= b }, func(a, b float64) bool { return a <= b }),
	"__ge__": numericComparison(TOKEN_GE, func(a, b int64) bool { return a >= b }, func(a, b float64) bool { return a >= b }),
	"__neg__": numericUnary(func(ctx *Context, self *Thing, a number) (*Thing, error) {
		if a.isFloat {
			return ctx.NewFloat(-a.f), nil
		}
		negated, ok := negInt(a.i)
		return ctx.integerResult(TOKEN_NEGATE, negated, ok)
	}),
	"__bool__": numericUnary(func(ctx *Context, self *Thing, a number) (*Thing, error) {
		if a.isFloat {
			return ctx.NewBoolean(a.f != 0), nil
		}
		return ctx.NewBoolean(a.i != 0), nil
	}),
	"__int__": numericUnary(func(ctx *Context, self *Thing, a number) (*Thing, error) {
		if a.isFloat && (math.IsNaN(a.f) || math.IsInf(a.f, 0)) {
			return nil, ctx.Errorf(ctx.Classes.ValueError, "cannot convert float %s to integer", formatFloat(a.f))
		}
		if a.isFloat && (a.f >= math.MaxInt64 || a.f < math.MinInt64) {
			return nil, ctx.Errorf(ctx.Classes.ValueError, "float %s is too large to convert to integer", formatFloat(a.f))
		}
		return ctx.NewInteger(a.i), nil
	}),
	"__float__": numericUnary(func(ctx *Context, self *Thing, a number) (*Thing, error) {
		return ctx.NewFloat(a.f), nil
	}),
	"__hash__": numericUnary(func(ctx *Context, self *Thing, a number) (*Thing, error) {
		return ctx.NewInteger(int64(keyHash(self))), nil
	}),
	"__repr__": numericUnary(func(ctx *Context, self *Thing, a number) (*Thing, error) {
		if a.isFloat {
			return ctx.NewString(formatFloat(a.f)), nil
		}
		return ctx.NewString(strconv.FormatInt(a.i, 10)), nil
	}),
}

var intMethods = numericMethods

var floatMethods = numericMethods

var boolMethods = methodTable{
	"__repr__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		return ctx.NewString(self.String()), nil
	}),
	"__bool__": method(0, 0, func(ctx *Context, self *Thing, args []*Thing) (*Thing, error) {
		b, _ := self.Primitive.(bool)
		return ctx.NewBoolean(b), nil
	}),
}

func convertInt(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("int", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ctx.NewInteger(0), nil
	}
	switch data := args[0].Primitive.(type) {
	case int64:
		return ctx.NewInteger(data), nil
	case string:
		value, err := strconv.ParseInt(strings.TrimSpace(data), 10, 64)
		if err != nil {
			return nil, ctx.Errorf(ctx.Classes.ValueError, "invalid literal for int() with base 10: %s", quote(data))
		}
		return ctx.NewInteger(value), nil
	}
	result, ok, err := ctx.callMethod(args[0], "__int__")
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "int() argument must be a string or a number, not '%s'", typeName(args[0]))
	}
	if err != nil {
		return nil, err
	}
	if _, ok := result.Primitive.(int64); !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "__int__ returned non-int (type %s)", typeName(result))
	}
	return result, nil
}

func convertFloat(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("float", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ctx.NewFloat(0), nil
	}
	if s, ok := args[0].Primitive.(string); ok {
		value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, ctx.Errorf(ctx.Classes.ValueError, "could not convert string to float: %s", quote(s))
		}
		return ctx.NewFloat(value), nil
	}
	result, ok, err := ctx.callMethod(args[0], "__float__")
	if !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "float() argument must be a string or a number, not '%s'", typeName(args[0]))
	}
	if err != nil {
		return nil, err
	}
	if _, ok := result.Primitive.(float64); !ok {
		return nil, ctx.Errorf(ctx.Classes.TypeError, "__float__ returned non-float (type %s)", typeName(result))
	}
	return result, nil
}

func convertBool(ctx *Context, args []*Thing, kwargs map[string]*Thing) (*Thing, error) {
	if err := ctx.checkArity("bool", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return ctx.False, nil
	}
	truthy, err := ctx.Truthy(args[0])
	if err != nil {
		return nil, err
	}
	return ctx.NewBoolean(truthy), nil
}
