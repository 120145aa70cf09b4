// Command vellum is the CLI front end: run a script, disassemble one, or
// drop into an interactive REPL. It wires cobra subcommands onto the
// compiler/vm packages, replacing the teacher's hand-rolled os.Args
// switch in cmd/smog/main.go with a proper command tree.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/compiler"
	"github.com/kristofer/vellum/pkg/vm"
)

const version = "0.1.0"

// Exit codes per spec.md §6.
const (
	exitSuccess = 0
	exitUsage   = 64
	exitCompile = 65
	exitRuntime = 70
	exitIO      = 74
)

func main() {
	os.Exit(run())
}

var traceFlag bool

func run() int {
	log := newLogger()
	defer log.Sync()

	root := &cobra.Command{
		Use:           "vellum [path]",
		Short:         "vellum - a class-based scripting language runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				runREPL(log)
				return nil
			}
			return runFile(log, args[0])
		},
	}
	root.PersistentFlags().BoolVar(&traceFlag, "trace", false, "print a disassembled line for every instruction executed")

	root.AddCommand(
		&cobra.Command{
			Use:   "run <file>",
			Short: "Run a vellum source file",
			Args:  cobra.ExactArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return runFile(log, args[0]) },
		},
		&cobra.Command{
			Use:   "repl",
			Short: "Start an interactive session",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { runREPL(log); return nil },
		},
		&cobra.Command{
			Use:   "disassemble <file>",
			Short: "Print a bytecode listing for a source file",
			Args:  cobra.ExactArgs(1),
			RunE:  func(cmd *cobra.Command, args []string) error { return runDisassemble(args[0]) },
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the vellum version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Printf("vellum %s\n", version)
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		if strings.Contains(err.Error(), "arg(s)") || strings.Contains(err.Error(), "unknown command") || strings.Contains(err.Error(), "unknown flag") {
			fmt.Fprintln(os.Stderr, err)
			return exitUsage
		}
		return exitCodeFor(err)
	}
	return exitCodeFor(lastErr)
}

// lastErr carries the exit-relevant error out of runFile/runDisassemble,
// since cobra's RunE contract only distinguishes error/no-error, not the
// taxonomy spec.md §7 needs for its exit codes.
var lastErr error

func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	if _, ok := err.(*vm.RuntimeError); ok {
		return exitRuntime
	}
	if os.IsNotExist(err) {
		return exitIO
	}
	return exitCompile
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

// runFile reads, compiles, and interprets a single source file, per
// spec.md §6's one-argument CLI form.
func runFile(log *zap.SugaredLogger, path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		lastErr = err
		fmt.Fprintf(os.Stderr, "vellum: %s\n", err)
		return err
	}

	v := vm.New(log)
	v.LoadModule = relativeLoader(filepath.Dir(path))
	v.Trace = traceFlag

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	err = v.Interpret(string(source), moduleName)
	lastErr = err
	if err != nil {
		if _, ok := err.(*vm.RuntimeError); ok && traceFlag {
			v.CrashDump(os.Stderr)
		}
		reportError(err)
		return err
	}
	return nil
}

// relativeLoader resolves an imported module path relative to the
// running script's directory before falling back to the bare path (so
// imports still work when the CLI's working directory differs from the
// script's).
func relativeLoader(dir string) vm.ModuleLoader {
	return func(path string) (string, error) {
		candidate := filepath.Join(dir, path)
		if b, err := os.ReadFile(candidate); err == nil {
			return string(b), nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// reportError prints a compile or runtime error to stderr. On a TTY it
// colors the message and wraps each stack-trace line to the terminal
// width; piped output keeps spec.md §7's plain single-line-per-frame
// format byte-for-byte so scripted callers stay deterministic.
func reportError(err error) {
	fd := int(os.Stderr.Fd())
	if !isatty.IsTerminal(uintptr(fd)) {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	width, _, termErr := term.GetSize(fd)
	msg := err.Error()
	if termErr == nil && width > 0 {
		lines := strings.Split(msg, "\n")
		for i, line := range lines {
			lines[i] = wrapToWidth(line, width)
		}
		msg = strings.Join(lines, "\n")
	}
	color.New(color.FgRed).Fprintln(os.Stderr, msg)
}

// wrapToWidth greedily breaks s onto multiple lines at the last space at
// or before width, so a long stack-trace line doesn't spill past the
// terminal's right edge.
func wrapToWidth(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	var b strings.Builder
	for len(s) > width {
		cut := strings.LastIndex(s[:width], " ")
		if cut <= 0 {
			cut = width
		}
		b.WriteString(s[:cut])
		b.WriteByte('\n')
		s = strings.TrimLeft(s[cut:], " ")
	}
	b.WriteString(s)
	return b.String()
}

// runDisassemble compiles a source file without running it and prints
// its chunk's instruction listing.
func runDisassemble(path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		lastErr = err
		return err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	fn, err := compiler.Compile(string(source), name)
	lastErr = err
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	chunk := fn.Chunk.(*bytecode.Chunk)
	fmt.Print(bytecode.Disassemble(chunk, name))
	return nil
}

// runREPL implements spec.md §6's zero-argument mode: read a line,
// interpret it, print the result if non-nil, end-of-input exits. A
// bare expression is echoed by compiling it as an assignment to a
// synthetic global and reading that global back, since the compiler has
// no separate "evaluate and return" entry point from a plain statement.
func runREPL(log *zap.SugaredLogger) {
	interactive := isatty.IsTerminal(os.Stdin.Fd())
	cyan := color.New(color.FgCyan)

	if interactive {
		fmt.Printf("vellum %s\n", version)
		fmt.Println("Ctrl-D to exit")
	}

	v := vm.New(log)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("vellum> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		evalREPLLine(v, line, interactive, cyan)
	}
}

func evalREPLLine(v *vm.VM, line string, interactive bool, cyan *color.Color) {
	const resultVar = "__vellum_repl_result"
	asExpr := fmt.Sprintf("var %s = (%s);", resultVar, line)
	if _, err := compiler.Compile(asExpr, "repl"); err == nil {
		if err := v.Interpret(asExpr, "repl"); err != nil {
			reportError(err)
			return
		}
		if val, ok := v.Global(resultVar); ok && !val.IsNil() {
			if interactive {
				cyan.Println(val.String())
			} else {
				fmt.Println(val.String())
			}
		}
		return
	}
	if err := v.Interpret(line, "repl"); err != nil {
		reportError(err)
	}
}
