package vm

import (
	"bytes"
	"testing"

	"github.com/kylelemons/godebug/diff"

	"github.com/estevaofon/noxlox/internal/compiler"
	"github.com/estevaofon/noxlox/internal/config"
	"github.com/estevaofon/noxlox/internal/diag"
	"github.com/estevaofon/noxlox/internal/heap"
)

// runScript is like run, but diffs full multi-line stdout against want using
// godebug/diff for a readable failure message on multi-line mismatches.
func runScript(t *testing.T, source, want string) {
	t.Helper()
	h := heap.New(1<<20, 2.0, false, nil)
	cfg := config.Default()
	var out bytes.Buffer
	machine := New(h, cfg, &out)

	fn, compileErr := compiler.Compile(source, h)
	if compileErr != nil {
		t.Fatalf("unexpected compile error: %s", compileErr.Error())
	}
	result, runErr := machine.Interpret(fn)
	if runErr != nil {
		t.Fatalf("unexpected runtime error (%v): %s", result, runErr.Error())
	}
	if result != diag.OK {
		t.Fatalf("expected OK, got %v", result)
	}
	if got := out.String(); got != want {
		t.Errorf("output mismatch:\n%s", diff.Diff(want, got))
	}
}

func TestScriptClosuresCaptureSharedVariable(t *testing.T) {
	runScript(t, `
		fun makeCounter() {
			var i = 0;
			fun count() {
				i = i + 1;
				print i;
			}
			return count;
		}
		var a = makeCounter();
		var b = makeCounter();
		a();
		a();
		b();
	`, "1\n2\n1\n")
}

func TestScriptStringInterningEquality(t *testing.T) {
	runScript(t, `
		var greeting = "hello";
		var built = "hel" + "lo";
		print greeting == built;
		print greeting == "world";
	`, "true\nfalse\n")
}

func TestScriptClassInitAndMethodCalls(t *testing.T) {
	runScript(t, `
		class Point {
			init(x, y) {
				this.x = x;
				this.y = y;
			}
			sum() {
				return this.x + this.y;
			}
			label() {
				return "point " + "#1";
			}
		}
		var p = Point(1, 2);
		print p.label();
		print p.sum();
	`, "point #1\n3\n")
}

func TestScriptInheritanceWithSuper(t *testing.T) {
	runScript(t, `
		class Shape {
			area() {
				return 0;
			}
			report() {
				return "shape";
			}
		}
		class Square < Shape {
			init(side) {
				this.side = side;
			}
			area() {
				return this.side * this.side;
			}
			report() {
				return super.report() + " (square)";
			}
		}
		print Square(4).report();
		print Square(4).area();
	`, "shape (square)\n16\n")
}

func TestScriptSwitchFallthroughThenDefault(t *testing.T) {
	runScript(t, `
		var x = 1;
		switch(x){ case 1: print "one"; fallthrough case 2: print "two"; default: print "end"; }
	`, "one\ntwo\nend\n")
}

func TestScriptRuntimeErrorTraceShowsCallStack(t *testing.T) {
	h := heap.New(1<<20, 2.0, false, nil)
	cfg := config.Default()
	var out bytes.Buffer
	machine := New(h, cfg, &out)

	fn, compileErr := compiler.Compile(`
		fun a() {
			b();
		}
		fun b() {
			return 1 + nil;
		}
		a();
	`, h)
	if compileErr != nil {
		t.Fatalf("unexpected compile error: %s", compileErr.Error())
	}

	result, runErr := machine.Interpret(fn)
	if result != diag.RuntimeErrorResult || runErr == nil {
		t.Fatalf("expected a runtime error, got %v / %v", result, runErr)
	}

	trace := runErr.Error()
	for _, want := range []string{"in b()", "in a()", "in script"} {
		if !bytes.Contains([]byte(trace), []byte(want)) {
			t.Errorf("trace missing %q, got:\n%s", want, trace)
		}
	}
}
