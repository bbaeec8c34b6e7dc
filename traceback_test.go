package minipy

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTraceback(t *testing.T) {
	ctx, _ := newTestContext()
	source := "def f():\n    raise ValueError(\"bad value\")\nf()\n"
	_, err := ctx.RunSource(source, "demo.minipy")
	require.Error(t, err)

	expected := `Traceback (most recent call last):
  File "demo.minipy", line 3, in <module>
    f()
  File "demo.minipy", line 2, in f
    raise ValueError("bad value")
ValueError: bad value
`
	assert.Equal(t, expected, ctx.FormatTraceback(err))
}

func TestFormatTracebackChain(t *testing.T) {
	ctx, _ := newTestContext()
	source := "try:\n    raise ValueError(\"first\")\nexcept ValueError:\n    raise KeyError(\"second\")\n"
	_, err := ctx.RunSource(source, "chain.minipy")
	require.Error(t, err)

	expected := `Traceback (most recent call last):
  File "chain.minipy", line 2, in <module>
    raise ValueError("first")
ValueError: first

During handling of the above exception, another exception occurred:

Traceback (most recent call last):
  File "chain.minipy", line 4, in <module>
    raise KeyError("second")
KeyError: second
`
	assert.Equal(t, expected, ctx.FormatTraceback(err))
}

func TestFormatExceptionWithoutMessage(t *testing.T) {
	ctx, _ := newTestContext()
	assert.Equal(t, "StopIteration", ctx.FormatException(ctx.NewError(ctx.Classes.StopIteration)))
}

func TestFormatParseError(t *testing.T) {
	ctx, _ := newTestContext()
	_, err := ctx.RunSource("x = 1\nbreak\n", "bad.minipy")
	require.Error(t, err)

	var buffer bytes.Buffer
	require.NoError(t, ctx.WriteTraceback(&buffer, err))
	assert.Equal(t, "  File \"bad.minipy\", line 2\n    break\nSyntaxError: 'break' outside loop\n", buffer.String())
}
