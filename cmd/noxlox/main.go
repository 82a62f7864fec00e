// Command noxlox is the CLI front end: a file runner and a REPL over the
// single-pass compiler and bytecode VM. It is an external collaborator by
// spec §6 — argument handling, disassembly, and the REPL loop carry no
// language semantics of their own.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/mattn/go-isatty"

	"github.com/estevaofon/noxlox/internal/compiler"
	"github.com/estevaofon/noxlox/internal/config"
	"github.com/estevaofon/noxlox/internal/diag"
	"github.com/estevaofon/noxlox/internal/heap"
	"github.com/estevaofon/noxlox/internal/vm"
)

const (
	exitOK           = 0
	exitUsageError   = 64
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "internal error:", r)
			debug.PrintStack()
			os.Exit(exitRuntimeError)
		}
	}()

	showDisasm := flag.Bool("disassembly", false, "print bytecode disassembly before running")
	configPath := flag.String("config", "", "path to a YAML GC/runtime config file")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: noxlox [options] [script]\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(exitUsageError)
	}

	args := flag.Args()
	if len(args) == 0 {
		repl(cfg, *showDisasm)
		return
	}
	if len(args) > 1 {
		flag.Usage()
		os.Exit(exitUsageError)
	}

	os.Exit(runFile(args[0], cfg, *showDisasm))
}

func runFile(path string, cfg config.Config, showDisasm bool) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "noxlox:", err)
		return exitIOError
	}

	h := newHeap(cfg)
	machine := vm.New(h, cfg, os.Stdout)

	fn, compileErr := compiler.Compile(string(source), h)
	if compileErr != nil {
		fmt.Fprintln(os.Stderr, compileErr.Error())
		return exitCompileError
	}
	if showDisasm {
		fn.Chunk.Disassemble(os.Stderr, path)
	}

	result, runErr := machine.Interpret(fn)
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr.Error())
	}
	return exitCodeFor(result)
}

func exitCodeFor(result diag.Result) int {
	switch result {
	case diag.CompileErrorResult:
		return exitCompileError
	case diag.RuntimeErrorResult:
		return exitRuntimeError
	default:
		return exitOK
	}
}

func newHeap(cfg config.Config) *heap.Heap {
	var logWriter *os.File
	if cfg.LogGC {
		logWriter = os.Stderr
	}
	if logWriter == nil {
		return heap.New(cfg.InitialNextGC, cfg.GrowFactor, cfg.StressGC, nil)
	}
	return heap.New(cfg.InitialNextGC, cfg.GrowFactor, cfg.StressGC, logWriter)
}

// repl runs an interactive loop. Each line compiles and runs against a
// single long-lived VM so globals (and the heap they keep alive) persist
// across lines, the way the teacher's shared-VM REPL persists its own
// globals map between inputs.
func repl(cfg config.Config, showDisasm bool) {
	prompt := ">>> "
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		prompt = ""
	}

	h := newHeap(cfg)
	machine := vm.New(h, cfg, os.Stdout)
	reader := bufio.NewScanner(os.Stdin)

	for {
		if prompt != "" {
			fmt.Print(prompt)
		}
		if !reader.Scan() {
			fmt.Println()
			return
		}
		line := reader.Text()
		if line == "" {
			continue
		}

		fn, compileErr := compiler.Compile(line, h)
		if compileErr != nil {
			fmt.Fprintln(os.Stderr, compileErr.Error())
			continue
		}
		if showDisasm {
			fn.Chunk.Disassemble(os.Stderr, "repl")
		}
		if _, runErr := machine.Interpret(fn); runErr != nil {
			fmt.Fprintln(os.Stderr, runErr.Error())
		}
	}
}
