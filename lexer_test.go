package minipy

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenKinds(t *testing.T, source string) []string {
	tokens, err := Tokenize(source, "<test>")
	require.NoError(t, err)
	kinds := []string{}
	for _, token := range tokens {
		kinds = append(kinds, token.Kind)
	}
	return kinds
}

func lexErrorKind(t *testing.T, source string) string {
	_, err := Tokenize(source, "<test>")
	var lexError LexError
	require.True(t, errors.As(err, &lexError), "expected a LexError, got %v", err)
	return lexError.Kind
}

func TestLexAssignment(t *testing.T) {
	assert.Equal(t, []string{
		TOKEN_INDENT, TOKEN_IDENTIFIER, TOKEN_ASSIGN, TOKEN_NUMBER, TOKEN_EOL,
		TOKEN_INDENT, TOKEN_EOL, TOKEN_EOF,
	}, tokenKinds(t, "x = 1\n"))
}

func TestLexSymbolsLongestFirst(t *testing.T) {
	assert.Equal(t, []string{
		TOKEN_INDENT, TOKEN_NUMBER, TOKEN_POW, TOKEN_NUMBER, TOKEN_LE,
		TOKEN_NUMBER, TOKEN_NE, TOKEN_NUMBER, TOKEN_EOL, TOKEN_EOF,
	}, tokenKinds(t, "2 ** 3 <= 9 != 1"))
}

func TestLexKeywordsAndLiterals(t *testing.T) {
	tokens, err := Tokenize("if True and None: x.y", "<test>")
	require.NoError(t, err)
	kinds := []string{}
	for _, token := range tokens {
		kinds = append(kinds, token.Kind)
	}
	assert.Equal(t, []string{
		TOKEN_INDENT, TOKEN_IF, TOKEN_BOOLEAN, TOKEN_AND, TOKEN_NONE,
		TOKEN_COLON, TOKEN_IDENTIFIER, TOKEN_DOT, TOKEN_IDENTIFIER,
		TOKEN_EOL, TOKEN_EOF,
	}, kinds)
	assert.Equal(t, "True", tokens[2].Literal)
}

func TestLexIndentationDepth(t *testing.T) {
	tokens, err := Tokenize("if x:\n    y\n", "<test>")
	require.NoError(t, err)
	var depths []int
	for _, token := range tokens {
		if token.Kind == TOKEN_INDENT {
			depths = append(depths, token.Depth())
		}
	}
	assert.Equal(t, []int{0, 4, 0}, depths)
}

func TestLexLineNumbers(t *testing.T) {
	tokens, err := Tokenize("a\n\nb\n", "<test>")
	require.NoError(t, err)
	for _, token := range tokens {
		if token.Kind == TOKEN_IDENTIFIER && token.Literal == "b" {
			assert.Equal(t, 3, token.Location.Line)
			return
		}
	}
	t.Fatal("identifier b not found")
}

func TestLexComment(t *testing.T) {
	assert.Equal(t, []string{
		TOKEN_INDENT, TOKEN_IDENTIFIER, TOKEN_EOL, TOKEN_EOF,
	}, tokenKinds(t, "x # trailing comment"))
}

func TestLexStrings(t *testing.T) {
	{
		tokens, err := Tokenize(`"a\tb\n"`, "<test>")
		require.NoError(t, err)
		assert.Equal(t, TOKEN_STRING, tokens[1].Kind)
		assert.Equal(t, "a\tb\n", tokens[1].Literal)
	}
	{
		tokens, err := Tokenize(`'it\'s'`, "<test>")
		require.NoError(t, err)
		assert.Equal(t, "it's", tokens[1].Literal)
	}
	{
		tokens, err := Tokenize("'''one\ntwo'''", "<test>")
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo", tokens[1].Literal)
	}
}

func TestLexNumbers(t *testing.T) {
	tokens, err := Tokenize("12 3.5", "<test>")
	require.NoError(t, err)
	assert.Equal(t, "12", tokens[1].Literal)
	assert.Equal(t, "3.5", tokens[2].Literal)
}

func TestLexErrors(t *testing.T) {
	assert.Equal(t, LEX_MALFORMED_NUMBER, lexErrorKind(t, "1.2.3"))
	assert.Equal(t, LEX_UNTERMINATED_STRING, lexErrorKind(t, "'''abc"))
	assert.Equal(t, LEX_PARSE_STRING_FAILED, lexErrorKind(t, "'abc\n'"))
	assert.Equal(t, LEX_PARSE_STRING_FAILED, lexErrorKind(t, `'\q'`))
	assert.Equal(t, LEX_CARRIAGE_RETURN, lexErrorKind(t, "x = 1\r\n"))
	assert.Equal(t, LEX_CARRIAGE_RETURN, lexErrorKind(t, "x = 1 # c\r\ny = 2\n"))
	assert.Equal(t, LEX_NO_MATCH, lexErrorKind(t, "x = $"))
	assert.Equal(t, LEX_MIXED_INDENTATION, lexErrorKind(t, "if x:\n    a\n\tb\n"))
}

// Opener and closer counts per bracket kind.
func bracketCounts(tokens []Token) map[string]int {
	counts := map[string]int{}
	for _, token := range tokens {
		if closers[token.Kind] != "" || isCloser(token.Kind) {
			counts[token.Kind] += 1
		}
	}
	return counts
}

func requireBalanced(t *testing.T, name string, source string) int {
	t.Helper()
	tokens, err := Tokenize(source, name)
	require.NoError(t, err, name)
	counts := bracketCounts(tokens)
	total := 0
	for opener, closer := range closers {
		assert.Equal(t, counts[opener], counts[closer], "%s: %s against %s", name, opener, closer)
		total += counts[opener]
	}
	return total
}

func TestLexBracketsBalance(t *testing.T) {
	source, err := os.ReadFile("testdata/lexer.minipy")
	require.NoError(t, err)
	assert.Greater(t, requireBalanced(t, "lexer.minipy", string(source)), 20)

	for _, example := range loadScenarios(t, "testdata/scenarios.yaml") {
		requireBalanced(t, example.Name, example.Source)
	}
}

func TestSelfHostedLexer(t *testing.T) {
	ctx, stdout := newTestContext()
	_, err := ctx.RunFile("testdata/lexer.minipy")
	require.NoError(t, err)
	assert.Equal(t, "15 True False\n", stdout.String())
}
