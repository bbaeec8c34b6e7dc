package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"

	minipy "github.com/Daniel-Chin/mini-Python"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

func dumpTokens(source string, location *minipy.SourceLocation) error {
	lexer := minipy.NewLexer(source, location)
	for {
		token, err := lexer.NextToken()
		if err != nil {
			return err
		}
		fmt.Printf("%v\t%s\t%q\n", token.Location, token.Kind, token.Literal)
		if token.Kind == minipy.TOKEN_EOF {
			return nil
		}
	}
}

func usage(w io.Writer) {
	program := os.Args[0]
	fmt.Fprintf(w, `usage:
  %s [OPTIONS] FILE
  %s [OPTIONS] [-c|--command] COMMAND

options:
  -c, --command     Execute the provided command.
  --dump-tokens     Dump the lexed tokens to stdout instead of executing.
  -v, --verbose     Increase log verbosity. May be repeated.
  -h, --help        Display this help text and exit.
`, program, program)
}

func main() {
	reCommand := regexp.MustCompile(`^-+c(?:ommand)?(?:=(.*))?$`)
	reDumpTokens := regexp.MustCompile(`^-+dump-tokens$`)
	reVerbose := regexp.MustCompile(`^-(v+)$|^--verbose$`)
	reHelp := regexp.MustCompile(`^-+h(?:elp)?$`)

	var cmds *string
	var file *string
	dump := false
	verbosity := 0
	argi := 1
	for argi < len(os.Args) {
		arg := os.Args[argi]

		// Remaining args are processed verbatim.
		if arg == "--" {
			if argi+1 < len(os.Args) && cmds == nil && file == nil {
				file = &os.Args[argi+1]
			}
			break
		}

		// -c, --command
		if m := reCommand.FindStringSubmatch(arg); m != nil {
			// -c='print("hello world")'
			if m[1] != "" {
				cmds = &m[1]
				argi += 1
				continue
			}

			// -c 'print("hello world")'
			if argi+1 < len(os.Args) {
				cmds = &os.Args[argi+1]
				argi += 2
				continue
			}

			fmt.Fprintf(os.Stderr, "error: expected command argument\n")
			usage(os.Stderr)
			os.Exit(1)
		}

		// --dump-tokens
		if reDumpTokens.MatchString(arg) {
			dump = true
			argi += 1
			continue
		}

		// -v, -vv, --verbose
		if m := reVerbose.FindStringSubmatch(arg); m != nil {
			verbosity += max(len(m[1]), 1)
			argi += 1
			continue
		}

		// -h, --help
		if reHelp.MatchString(arg) {
			usage(os.Stdout)
			os.Exit(0)
		}

		if strings.HasPrefix(arg, "-") {
			fmt.Fprintf(os.Stderr, "error: unknown flag %s\n", arg)
			usage(os.Stderr)
			os.Exit(1)
		}

		if cmds == nil && file == nil {
			file = &arg
		}
		argi += 1
	}

	if cmds == nil && file == nil {
		fmt.Fprintf(os.Stderr, "error: expected a command or file path\n")
		usage(os.Stderr)
		os.Exit(1)
	}

	dir := "."
	if file != nil {
		dir = filepath.Dir(*file)
	}
	manifest, err := minipy.FindManifest(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if manifest != nil {
		verbosity = max(verbosity, manifest.Log.Verbosity)
	}
	commonlog.Configure(verbosity, nil)

	if dump {
		if cmds != nil {
			err = dumpTokens(*cmds, &minipy.SourceLocation{File: "<command>", Line: 1})
		} else {
			var source []byte
			if source, err = os.ReadFile(*file); err == nil {
				err = dumpTokens(string(source), &minipy.SourceLocation{File: *file, Line: 1})
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx := minipy.NewContext()
	if manifest != nil {
		manifest.Apply(ctx)
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		for range interrupts {
			ctx.Interrupt()
		}
	}()

	if cmds != nil {
		_, err = ctx.RunSource(*cmds, "<command>")
	} else {
		_, err = ctx.RunFile(*file)
	}
	if err != nil {
		ctx.WriteTraceback(os.Stderr, err)
		os.Exit(1)
	}
}
