package minipy

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
)

const chainSeparator = "\nDuring handling of the above exception, another exception occurred:\n\n"

// FormatException renders the "Name: message" line of a raised exception,
// running the value's __str__.
func (ctx *Context) FormatException(err *Error) string {
	name := typeName(err.Value)
	message, strErr := ctx.Str(err.Value)
	if strErr != nil {
		message = exceptionMessage(err.Value)
	}
	if message == "" {
		return name
	}
	return fmt.Sprintf("%s: %s", name, message)
}

func (ctx *Context) writeFrames(sb *strings.Builder, err *Error) {
	sb.WriteString("Traceback (most recent call last):\n")
	frames := slices.Clone(err.Trace)
	slices.Reverse(frames)
	for _, frame := range frames {
		if frame.Location == nil {
			fmt.Fprintf(sb, "  File \"<unknown>\", in %s\n", frame.Label)
			continue
		}
		fmt.Fprintf(sb, "  File \"%s\", line %d, in %s\n", frame.Location.File, frame.Location.Line, frame.Label)
		if line, ok := ctx.SourceLine(frame.Location.File, frame.Location.Line); ok {
			if line = strings.TrimSpace(line); line != "" {
				fmt.Fprintf(sb, "    %s\n", line)
			}
		}
	}
	sb.WriteString(ctx.FormatException(err))
	sb.WriteString("\n")
}

func (ctx *Context) writeLocated(sb *strings.Builder, location *SourceLocation, message string) {
	if location != nil {
		fmt.Fprintf(sb, "  File \"%s\", line %d\n", location.File, location.Line)
		if line, ok := ctx.SourceLine(location.File, location.Line); ok {
			fmt.Fprintf(sb, "    %s\n", strings.TrimSpace(line))
		}
	}
	sb.WriteString(message)
	sb.WriteString("\n")
}

// FormatTraceback renders any error returned by the interpreter. Raised
// exceptions print with their frames, the oldest linked exception first.
func (ctx *Context) FormatTraceback(err error) string {
	var sb strings.Builder

	var raised *Error
	var lexError LexError
	var parseError ParseError
	var internalError InternalError
	switch {
	case errors.As(err, &raised):
		chain := raised.Chain()
		slices.Reverse(chain)
		for i, link := range chain {
			if i > 0 {
				sb.WriteString(chainSeparator)
			}
			ctx.writeFrames(&sb, link)
		}
	case errors.As(err, &lexError):
		ctx.writeLocated(&sb, lexError.Location, lexError.Error())
	case errors.As(err, &parseError):
		ctx.writeLocated(&sb, parseError.Location, parseError.Error())
	case errors.As(err, &internalError):
		ctx.writeLocated(&sb, internalError.Location, internalError.Error())
	default:
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func (ctx *Context) WriteTraceback(w io.Writer, err error) error {
	_, writeErr := io.WriteString(w, ctx.FormatTraceback(err))
	return writeErr
}
