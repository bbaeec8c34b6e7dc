package minipy

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() (*Context, *bytes.Buffer) {
	ctx := NewContext()
	stdout := &bytes.Buffer{}
	ctx.Stdout = stdout
	return ctx, stdout
}

func run(t *testing.T, source string) (string, error) {
	t.Helper()
	ctx, stdout := newTestContext()
	_, err := ctx.RunSource(source, "<test>")
	return stdout.String(), err
}

func runOK(t *testing.T, source string) string {
	t.Helper()
	output, err := run(t, source)
	require.NoError(t, err)
	return output
}

func raisedError(t *testing.T, err error) *Error {
	t.Helper()
	var raised *Error
	require.True(t, errors.As(err, &raised), "expected a raised exception, got %v", err)
	return raised
}

func requireRaises(t *testing.T, source string, class string) *Error {
	t.Helper()
	_, err := run(t, source)
	raised := raisedError(t, err)
	require.Equal(t, class, typeName(raised.Value), raised.Error())
	return raised
}

func TestWhileLoop(t *testing.T) {
	assert.Equal(t, "5\n", runOK(t, "x = 1\nwhile x < 5:\n    x = x + 1\nprint(x)"))
}

func TestInheritedBoundMethod(t *testing.T) {
	source := `class A:
    def f(self):
        return 1
class B(A):
    pass
b = B()
print(b.f())`
	assert.Equal(t, "1\n", runOK(t, source))
}

func TestUnmatchedHandlerPropagates(t *testing.T) {
	raised := requireRaises(t, "try:\n    raise ValueError\nexcept TypeError:\n    pass\n", "ValueError")
	require.Len(t, raised.Trace, 1)
	assert.Equal(t, 2, raised.Trace[0].Location.Line)
	assert.Equal(t, "<module>", raised.Trace[0].Label)
}

func TestComprehension(t *testing.T) {
	assert.Equal(t, "[4, 6]\n", runOK(t, "print([x * 2 of x in [1, 2, 3] if x > 1])"))
	assert.Equal(t, "[0, 1, 4]\n", runOK(t, "print([i * i for i in range(3)])"))
}

func TestComprehensionVariableDoesNotLeak(t *testing.T) {
	requireRaises(t, "ys = [x for x in [1]]\nprint(x)", "NameError")
}

func TestArithmetic(t *testing.T) {
	assert.Equal(t, "14 1 2 1024 3.5 -4\n", runOK(t, "print(2 + 3 * 4, 7 % 3, -7 % 3, 2 ** 10, 7 / 2, -2 ** 2)"))
	assert.Equal(t, "1.0 0.30000000000000004 2.5\n", runOK(t, "print(1.0, 0.1 + 0.2, 1 + 1.5)"))
	assert.Equal(t, "3 True 0.5\n", runOK(t, "print(5 - 2, 1 - 1 == 0, 2 ** -1)"))
}

func TestDivisionByZero(t *testing.T) {
	raised := requireRaises(t, "1 / 0", "ValueError")
	assert.Equal(t, "ValueError: division by zero", raised.Error())
	requireRaises(t, "1 % 0", "ValueError")
}

func TestUnsupportedOperator(t *testing.T) {
	raised := requireRaises(t, "1 + 'a'", "TypeError")
	assert.Contains(t, raised.Error(), "\"+\" not supported between instances of 'int' and 'str'")
}

func TestBooleanOperatorsShortCircuit(t *testing.T) {
	assert.Equal(t, "0 2 True\n", runOK(t, "print(0 and undefined, 0 or 2, not 0)"))
}

func TestComparisonAndIdentity(t *testing.T) {
	source := `class A:
    pass
a = A()
print(a == a, a == A(), a is a, a is not A(), None is None, 1 != 2)`
	assert.Equal(t, "True False True True True True\n", runOK(t, source))
}

func TestMembership(t *testing.T) {
	assert.Equal(t, "True False True True\n", runOK(t, "print(2 in [1, 2], 3 in (1, 2), 'b' in 'abc', 4 not in {1: 2})"))
}

func TestInstantiationInvariant(t *testing.T) {
	source := `class A:
    x = "A"
    y = "A"
    z = "A"
class B(A):
    y = "B"
class C(B):
    z = "C"
c = C()
print(c.x, c.y, c.z)`
	assert.Equal(t, "A B C\n", runOK(t, source))
}

func TestInstanceAttributesShadowClass(t *testing.T) {
	source := `class A:
    x = 1
a = A()
a.x = 2
print(a.x, A.x, A().x)`
	assert.Equal(t, "2 1 1\n", runOK(t, source))
}

func TestInitializerMustReturnNone(t *testing.T) {
	source := `class A:
    def __init__(self):
        return 1
A()`
	raised := requireRaises(t, source, "TypeError")
	assert.Contains(t, raised.Error(), "__init__() should return None, not 'int'")
}

func TestOperatorProtocols(t *testing.T) {
	source := `class Point:
    def __init__(self, x, y):
        self.x = x
        self.y = y
    def __add__(self, other):
        return Point(self.x + other.x, self.y + other.y)
    def __eq__(self, other):
        return self.x == other.x and self.y == other.y
    def __repr__(self):
        return "Point(" + str(self.x) + ", " + str(self.y) + ")"
print(Point(1, 2) + Point(3, 4))
print(Point(1, 1) == Point(1, 1), Point(1, 1) != Point(2, 1))
print([Point(0, 0)])`
	assert.Equal(t, "Point(4, 6)\nTrue True\n[Point(0, 0)]\n", runOK(t, source))
}

func TestCallProtocol(t *testing.T) {
	source := `class Adder:
    def __call__(self, x):
        return x + 1
print(Adder()(1))`
	assert.Equal(t, "2\n", runOK(t, source))
	requireRaises(t, "x = 1\nx()", "TypeError")
}

func TestLenAndTruthProtocols(t *testing.T) {
	source := `class Empty:
    def __len__(self):
        return 0
if Empty():
    print("truthy")
else:
    print("falsy", len(Empty()))`
	assert.Equal(t, "falsy 0\n", runOK(t, source))
}

func TestIteratorProtocol(t *testing.T) {
	source := `class Count:
    def __init__(self, n):
        self.n = n
        self.i = 0
    def __iter__(self):
        return self
    def __next__(self):
        if self.i >= self.n:
            raise StopIteration
        self.i = self.i + 1
        return self.i
for x in Count(3):
    print(x)
print(list(Count(2)))`
	assert.Equal(t, "1\n2\n3\n[1, 2]\n", runOK(t, source))
}

func TestClosures(t *testing.T) {
	source := `def make(n):
    def add(x):
        return x + n
    return add
print(make(2)(3))`
	assert.Equal(t, "5\n", runOK(t, source))
}

func TestClassBodyIsNotAClosureScope(t *testing.T) {
	source := `class A:
    x = 1
    def f(self):
        return x
A().f()`
	requireRaises(t, source, "NameError")
}

func TestArguments(t *testing.T) {
	source := `def f(a, b=2):
    return a * b
print(f(3), f(3, 4), f(3, b=5), f(b=1, a=7))`
	assert.Equal(t, "6 12 15 7\n", runOK(t, source))

	prelude := "def f(a, b=2):\n    return a\n"
	{
		raised := requireRaises(t, prelude+"f()", "TypeError")
		assert.Contains(t, raised.Error(), "f() missing 1 required argument: 'a'")
	}
	{
		raised := requireRaises(t, prelude+"f(1, 2, 3)", "TypeError")
		assert.Contains(t, raised.Error(), "f() takes 2 positional arguments but 3 were given")
	}
	{
		raised := requireRaises(t, prelude+"f(1, c=3)", "TypeError")
		assert.Contains(t, raised.Error(), "unexpected keyword argument 'c'")
	}
	{
		raised := requireRaises(t, prelude+"f(1, a=3)", "TypeError")
		assert.Contains(t, raised.Error(), "got multiple values for argument 'a'")
	}
}

func TestDefaultsEvaluatedOnce(t *testing.T) {
	source := `def f(xs=[]):
    xs.append(1)
    return len(xs)
f()
print(f())`
	assert.Equal(t, "2\n", runOK(t, source))
}

func TestReturnWithoutValue(t *testing.T) {
	assert.Equal(t, "None None\n", runOK(t, "def f():\n    return\ndef g():\n    pass\nprint(f(), g())"))
}

func TestRecursionLimit(t *testing.T) {
	raised := requireRaises(t, "def f():\n    return f()\nf()", "Exception")
	assert.Contains(t, raised.Error(), "maximum recursion depth exceeded")
}

func TestExceptionHandling(t *testing.T) {
	source := `def f():
    raise ValueError("bad")
try:
    f()
except TypeError:
    print("wrong")
except ValueError as e:
    print("caught", e, repr(e))
else:
    print("else")
finally:
    print("finally")`
	assert.Equal(t, "caught bad ValueError('bad')\nfinally\n", runOK(t, source))
}

func TestExceptionNameIsUnbound(t *testing.T) {
	requireRaises(t, "try:\n    raise ValueError\nexcept ValueError as e:\n    pass\nprint(e)", "NameError")
}

func TestExceptTuple(t *testing.T) {
	source := `try:
    {}["k"]
except (TypeError, KeyError) as e:
    print("caught", type(e))`
	assert.Equal(t, "caught <class 'KeyError'>\n", runOK(t, source))
}

func TestBareExceptCatchesSubclasses(t *testing.T) {
	source := `class Custom(Exception):
    pass
try:
    raise Custom("x")
except:
    print("caught")
try:
    raise Custom("y")
except Exception as e:
    print(isinstance(e, Custom), e)`
	assert.Equal(t, "caught\nTrue y\n", runOK(t, source))
}

func TestTryElse(t *testing.T) {
	assert.Equal(t, "body\nelse\n", runOK(t, "try:\n    print('body')\nexcept ValueError:\n    pass\nelse:\n    print('else')"))
}

func TestFinallyRunsOnReturn(t *testing.T) {
	source := `def f():
    try:
        return 1
    finally:
        print("cleanup")
print(f())`
	assert.Equal(t, "cleanup\n1\n", runOK(t, source))
}

func TestBareRaiseReraises(t *testing.T) {
	source := `try:
    try:
        raise ValueError("x")
    except ValueError:
        raise
except ValueError as e:
    print("outer", e)`
	assert.Equal(t, "outer x\n", runOK(t, source))
}

func TestRaiseInHandlerLinksBelow(t *testing.T) {
	raised := requireRaises(t, "try:\n    raise ValueError('a')\nexcept ValueError:\n    raise TypeError('b')\n", "TypeError")
	require.NotNil(t, raised.Below)
	assert.Equal(t, "ValueError", typeName(raised.Below.Value))
	assert.Len(t, raised.Chain(), 2)
}

func TestRaiseNonException(t *testing.T) {
	raised := requireRaises(t, "raise 1", "TypeError")
	assert.Contains(t, raised.Error(), "exceptions must derive from Exception")
}

func TestCatchNonExceptionClass(t *testing.T) {
	requireRaises(t, "try:\n    raise ValueError\nexcept int:\n    pass\n", "TypeError")
}

func TestTraceFramesOutermostLast(t *testing.T) {
	source := `def inner():
    raise KeyError("k")
def outer():
    inner()
outer()`
	raised := requireRaises(t, source, "KeyError")
	require.Len(t, raised.Trace, 3)
	assert.Equal(t, TraceElement{&SourceLocation{"<test>", 2}, "inner"}, raised.Trace[0])
	assert.Equal(t, TraceElement{&SourceLocation{"<test>", 4}, "outer"}, raised.Trace[1])
	assert.Equal(t, TraceElement{&SourceLocation{"<test>", 5}, "<module>"}, raised.Trace[2])
}

func TestLoops(t *testing.T) {
	source := `for i in range(5):
    if i == 1:
        continue
    if i == 3:
        break
    print(i)
else:
    print("not reached")
n = 0
while n < 2:
    n = n + 1
else:
    print("done", n)`
	assert.Equal(t, "0\n2\ndone 2\n", runOK(t, source))
}

func TestUnpacking(t *testing.T) {
	assert.Equal(t, "2 1\n", runOK(t, "a, b = 1, 2\na, b = b, a\nprint(a, b)"))
	assert.Equal(t, "1 2 3 4\n", runOK(t, "for (a, b), [c, d] of [((1, 2), (3, 4))]:\n    print(a, b, c, d)"))
	{
		raised := requireRaises(t, "a, b = [1]", "ValueError")
		assert.Contains(t, raised.Error(), "not enough values to unpack (expected 2, got 1)")
	}
	{
		raised := requireRaises(t, "a, b = 1, 2, 3", "ValueError")
		assert.Contains(t, raised.Error(), "too many values to unpack (expected 2)")
	}
}

func TestDel(t *testing.T) {
	requireRaises(t, "x = 1\ndel x\nprint(x)", "NameError")
	assert.Equal(t, "[1, 3] {'b': 2}\n", runOK(t, "xs = [1, 2, 3]\ndel xs[1]\nd = {'a': 1, 'b': 2}\ndel d['a']\nprint(xs, d)"))
	requireRaises(t, "class A:\n    pass\na = A()\na.x = 1\ndel a.x\na.x", "AttributeError")
}

func TestNameAndAttributeErrors(t *testing.T) {
	{
		raised := requireRaises(t, "print(y)", "NameError")
		assert.Equal(t, "NameError: name 'y' is not defined", raised.Error())
	}
	{
		raised := requireRaises(t, "class A:\n    pass\nA().missing", "AttributeError")
		assert.Contains(t, raised.Error(), "'A' object has no attribute 'missing'")
	}
}

func TestUninstantiableClasses(t *testing.T) {
	requireRaises(t, "type(print)()", "TypeError")
	requireRaises(t, "type(None)()", "TypeError")
}

func TestBuiltinSubclass(t *testing.T) {
	source := `class Stack(list):
    def peek(self):
        return self[-1]
s = Stack()
s.append(1)
s.append(2)
print(s.peek(), len(s), isinstance(s, list))`
	assert.Equal(t, "2 2 True\n", runOK(t, source))
}

func TestInterrupt(t *testing.T) {
	ctx, _ := newTestContext()
	ctx.Interrupt()
	_, err := ctx.RunSource("x = 1\n", "<test>")
	assert.True(t, ctx.isException(err, ctx.Classes.KeyboardInterrupt))

	_, err = ctx.RunSource("x = 1\n", "<test>")
	assert.NoError(t, err)
}

func TestRunSourceReturnsNamespace(t *testing.T) {
	ctx, _ := newTestContext()
	namespace, err := ctx.RunSource("x = 40 + 2\n", "<test>")
	require.NoError(t, err)
	x, ok := namespace.Get("x")
	require.True(t, ok)
	assert.Equal(t, int64(42), x.Primitive)
	name, _ := namespace.Get("__name__")
	assert.Equal(t, "__main__", name.Primitive)
}

func TestParseErrorsAreNotCatchable(t *testing.T) {
	_, err := run(t, "try:\n    x = (\nexcept:\n    pass\n")
	var parseError ParseError
	assert.True(t, errors.As(err, &parseError))
}

func TestIntegerOverflow(t *testing.T) {
	for _, source := range []string{
		"2 ** 64",
		"10 ** 19 * 10",
		"9223372036854775807 + 1",
		"x = -9223372036854775807 - 1\n-x",
		"-9223372036854775807 - 2",
		"int(10.0 ** 30)",
	} {
		raised := requireRaises(t, source, "ValueError")
		assert.Contains(t, raised.Error(), "integer", source)
	}
	assert.Equal(t, "9223372036854775807 -9223372036854775808 4611686018427387904\n",
		runOK(t, "print(9223372036854775807, -9223372036854775807 - 1, 2 ** 62)"))
}

func TestSubtractionErrorNamesOperator(t *testing.T) {
	raised := requireRaises(t, "'a' - 1", "TypeError")
	assert.Equal(t, "TypeError: \"-\" not supported between instances of 'str' and 'int'", raised.Error())
}
