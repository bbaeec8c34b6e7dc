package minipy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseExpression(t *testing.T, source string) AstExpression {
	program, err := Parse(source, "<test>")
	require.NoError(t, err)
	require.Len(t, program.Statements, 1)
	statement, ok := program.Statements[0].(AstStatementExpression)
	require.True(t, ok, "expected an expression statement, got %T", program.Statements[0])
	return statement.Expression
}

func parseError(t *testing.T, source string) ParseError {
	_, err := Parse(source, "<test>")
	var parseError ParseError
	require.True(t, errors.As(err, &parseError), "expected a ParseError, got %v", err)
	return parseError
}

func TestParseMultiplicationBindsTighter(t *testing.T) {
	expression := parseExpression(t, "2 + 3 * 4")
	sum, ok := expression.(AstExpressionBinary)
	require.True(t, ok)
	assert.Equal(t, TOKEN_ADD, sum.Operator)
	assert.Equal(t, int64(2), sum.Left.(AstExpressionInteger).Value)
	product, ok := sum.Right.(AstExpressionBinary)
	require.True(t, ok)
	assert.Equal(t, TOKEN_MUL, product.Operator)
}

func TestParseUnaryMinus(t *testing.T) {
	{
		unary, ok := parseExpression(t, "-x").(AstExpressionUnary)
		require.True(t, ok)
		assert.Equal(t, TOKEN_NEGATE, unary.Operator)
	}
	{
		difference, ok := parseExpression(t, "a - -b").(AstExpressionBinary)
		require.True(t, ok)
		assert.Equal(t, TOKEN_SUB, difference.Operator)
		_, ok = difference.Right.(AstExpressionUnary)
		assert.True(t, ok)
	}
}

func TestParseFusedOperators(t *testing.T) {
	{
		binary, ok := parseExpression(t, "a is not b").(AstExpressionBinary)
		require.True(t, ok)
		assert.Equal(t, TOKEN_IS_NOT, binary.Operator)
	}
	{
		binary, ok := parseExpression(t, "a not in b").(AstExpressionBinary)
		require.True(t, ok)
		assert.Equal(t, TOKEN_NOT_IN, binary.Operator)
	}
}

func TestParsePostfix(t *testing.T) {
	call, ok := parseExpression(t, "a.b(1, key=2)[0]").(AstExpressionIndex)
	require.True(t, ok)
	inner, ok := call.Object.(AstExpressionCall)
	require.True(t, ok)
	require.Len(t, inner.Arguments, 2)
	assert.Equal(t, "", inner.Arguments[0].Name)
	assert.Equal(t, "key", inner.Arguments[1].Name)
	attribute, ok := inner.Callee.(AstExpressionAttribute)
	require.True(t, ok)
	assert.Equal(t, "b", attribute.Name)
}

func TestParseDisplays(t *testing.T) {
	{
		tuple, ok := parseExpression(t, "(1,)").(AstExpressionTuple)
		require.True(t, ok)
		assert.Len(t, tuple.Elements, 1)
	}
	{
		_, ok := parseExpression(t, "(1)").(AstExpressionParened)
		assert.True(t, ok)
	}
	{
		list, ok := parseExpression(t, "[1, 2, 3,]").(AstExpressionList)
		require.True(t, ok)
		assert.Len(t, list.Elements, 3)
	}
	{
		dict, ok := parseExpression(t, "{'a': 1, 'b': 2}").(AstExpressionDict)
		require.True(t, ok)
		assert.Len(t, dict.Pairs, 2)
	}
	{
		set, ok := parseExpression(t, "{1, 2}").(AstExpressionSet)
		require.True(t, ok)
		assert.Len(t, set.Elements, 2)
	}
	{
		_, ok := parseExpression(t, "{}").(AstExpressionDict)
		assert.True(t, ok)
	}
}

func TestParseSlice(t *testing.T) {
	slice, ok := parseExpression(t, "a[1:]").(AstExpressionSlice)
	require.True(t, ok)
	assert.Equal(t, int64(1), slice.Start.(AstExpressionInteger).Value)
	_, ok = slice.Stop.(AstExpressionEmpty)
	assert.True(t, ok)
}

func TestParseComprehension(t *testing.T) {
	comprehension, ok := parseExpression(t, "[x * 2 for x in xs if x]").(AstExpressionListComprehension)
	require.True(t, ok)
	assert.Equal(t, "x", comprehension.Target.(AstExpressionIdentifier).Name)
	assert.Equal(t, "xs", comprehension.Source.(AstExpressionIdentifier).Name)
	assert.NotNil(t, comprehension.Filter)
}

func TestParseMultilineGroup(t *testing.T) {
	list, ok := parseExpression(t, "[\n    1,\n    2,\n]").(AstExpressionList)
	require.True(t, ok)
	assert.Len(t, list.Elements, 2)
}

func TestParseBlocks(t *testing.T) {
	source := `
if a:
    x = 1
elif b:
    x = 2
else:
    x = 3
while x:
    break
for i in range(3):
    continue
def f(a, b=1):
    return a
class C(Base):
    pass
try:
    pass
except ValueError as e:
    pass
finally:
    pass
`
	program, err := Parse(source, "<test>")
	require.NoError(t, err)
	require.Len(t, program.Statements, 6)

	branch, ok := program.Statements[0].(AstStatementIf)
	require.True(t, ok)
	assert.Len(t, branch.Branches, 2)
	assert.Len(t, branch.Else, 1)

	def, ok := program.Statements[3].(AstStatementDef)
	require.True(t, ok)
	assert.Equal(t, "f", def.Name)
	require.Len(t, def.Parameters, 2)
	assert.Nil(t, def.Parameters[0].Default)
	assert.NotNil(t, def.Parameters[1].Default)

	try, ok := program.Statements[5].(AstStatementTry)
	require.True(t, ok)
	require.Len(t, try.Handlers, 1)
	assert.Equal(t, "e", try.Handlers[0].Name)
	assert.Len(t, try.Finally, 1)
}

func TestParseForOf(t *testing.T) {
	program, err := Parse("for a, b of pairs:\n    pass\n", "<test>")
	require.NoError(t, err)
	loop, ok := program.Statements[0].(AstStatementFor)
	require.True(t, ok)
	target, ok := loop.Target.(AstExpressionTuple)
	require.True(t, ok)
	assert.Len(t, target.Elements, 2)
}

func TestParseIndentationErrors(t *testing.T) {
	{
		err := parseError(t, "if x:\npass\n")
		assert.Equal(t, PARSE_INDENTATION, err.Kind)
		assert.Contains(t, err.Error(), "expected an indented block after 'if' statement on line 1")
		assert.Equal(t, 2, err.Location.Line)
	}
	{
		err := parseError(t, "  x = 1\n")
		assert.Equal(t, PARSE_INDENTATION, err.Kind)
		assert.Contains(t, err.Error(), "unexpected indent")
	}
	{
		err := parseError(t, "if x:\n    a\n  b\n")
		assert.Equal(t, PARSE_INDENTATION, err.Kind)
		assert.Contains(t, err.Error(), "unindent does not match any outer indentation level")
	}
	{
		err := parseError(t, "x = 1\n    y = 2\n")
		assert.Equal(t, PARSE_INDENTATION, err.Kind)
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	cases := map[string]string{
		"break\n":                        "outside loop",
		"def f():\n    pass\nreturn 1\n": "outside function",
		"(1, 2\n":                        "'(' was never closed",
		"x = (1 if\n":                    "'(' was never closed",
		"x = (1 if True else 2)\n":       "unexpected 'if'",
		"x = 1)\n":                       "unmatched ')'",
		"else:\n    pass\n":              "without a matching block",
		"def f(a, a):\n    pass\n":       "duplicate argument",
		"def f(a=1, b):\n    pass\n":     "non-default argument",
		"try:\n    pass\n":               "expected \"except\" or \"finally\" block",
		"x = [1, 2)\n":                   "does not match",
		"1 = x\n":                        "cannot assign",
	}
	for source, message := range cases {
		err := parseError(t, source)
		assert.Equal(t, PARSE_SYNTAX, err.Kind, source)
		assert.Contains(t, err.Error(), message, source)
	}
}

func TestParseBreakInsideFunctionInsideLoop(t *testing.T) {
	err := parseError(t, "while x:\n    def f():\n        break\n")
	assert.Equal(t, PARSE_SYNTAX, err.Kind)
}

func TestParseUnexpectedTokenInClosedGroup(t *testing.T) {
	err := parseError(t, "x = 1\ny = [1,\n    (2 : 3)]\n")
	assert.Equal(t, PARSE_SYNTAX, err.Kind)
	assert.Contains(t, err.Error(), "unexpected ':'")
	require.NotNil(t, err.Location)
	assert.Equal(t, 3, err.Location.Line)
}
