package vm

import (
	"strings"
	"testing"
)

func run(t *testing.T, source string) *VM {
	t.Helper()
	v := New()
	if err := v.Interpret(source); err != nil {
		t.Fatalf("Interpret(%q) failed: %v", source, err)
	}
	return v
}

func TestArithmeticPrecedence(t *testing.T) {
	v := run(t, `print 1 + 2 * 3;`)
	if got := strings.TrimSpace(v.Output()); got != "7" {
		t.Errorf("expected 7, got %q", got)
	}
}

func TestStringConcatenation(t *testing.T) {
	v := run(t, `print "foo" + "bar";`)
	if got := strings.TrimSpace(v.Output()); got != "foobar" {
		t.Errorf("expected foobar, got %q", got)
	}
}

func TestGlobalAndLocalVariables(t *testing.T) {
	v := run(t, `
		var x = 1;
		{
			var y = 2;
			print x + y;
		}
	`)
	if got := strings.TrimSpace(v.Output()); got != "3" {
		t.Errorf("expected 3, got %q", got)
	}
}

func TestIfElseBranching(t *testing.T) {
	v := run(t, `
		if (1 < 2) { print "yes"; } else { print "no"; }
	`)
	if got := strings.TrimSpace(v.Output()); got != "yes" {
		t.Errorf("expected yes, got %q", got)
	}
}

func TestWhileLoop(t *testing.T) {
	v := run(t, `
		var i = 0;
		var sum = 0;
		while (i < 5) {
			sum = sum + i;
			i = i + 1;
		}
		print sum;
	`)
	if got := strings.TrimSpace(v.Output()); got != "10" {
		t.Errorf("expected 10, got %q", got)
	}
}

func TestForLoop(t *testing.T) {
	v := run(t, `
		var total = 0;
		for (var i = 0; i < 5; i = i + 1) {
			total = total + i;
		}
		print total;
	`)
	if got := strings.TrimSpace(v.Output()); got != "10" {
		t.Errorf("expected 10, got %q", got)
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	v := run(t, `
		fun add(a, b) { return a + b; }
		print add(3, 4);
	`)
	if got := strings.TrimSpace(v.Output()); got != "7" {
		t.Errorf("expected 7, got %q", got)
	}
}

// TestClosureCapturesByReference exercises spec.md's closure/upvalue
// contract: a counter closure keeps its own private, mutable captured
// variable across calls.
func TestClosureCapturesByReference(t *testing.T) {
	v := run(t, `
		fun makeCounter() {
			var count = 0;
			fun increment() {
				count = count + 1;
				return count;
			}
			return increment;
		}
		var counter = makeCounter();
		counter();
		counter();
		print counter();
	`)
	if got := strings.TrimSpace(v.Output()); got != "3" {
		t.Errorf("expected 3, got %q", got)
	}
}

func TestRecursiveFunction(t *testing.T) {
	v := run(t, `
		fun fib(n) {
			if (n < 2) return n;
			return fib(n - 1) + fib(n - 2);
		}
		print fib(10);
	`)
	if got := strings.TrimSpace(v.Output()); got != "55" {
		t.Errorf("expected 55, got %q", got)
	}
}

func TestClassesAndInstances(t *testing.T) {
	v := run(t, `
		class Counter {
			init(start) {
				this.value = start;
			}
			increment() {
				this.value = this.value + 1;
				return this.value;
			}
		}
		var c = Counter(10);
		c.increment();
		print c.increment();
	`)
	if got := strings.TrimSpace(v.Output()); got != "12" {
		t.Errorf("expected 12, got %q", got)
	}
}

func TestInheritanceAndSuper(t *testing.T) {
	v := run(t, `
		class Animal {
			speak() { return "..."; }
			describe() { return "An animal says " + this.speak(); }
		}
		class Dog < Animal {
			speak() { return "Woof"; }
			describe() { return super.describe() + "!"; }
		}
		print Dog().describe();
	`)
	if got := strings.TrimSpace(v.Output()); got != "An animal says Woof!" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestClockNativeReturnsNumber(t *testing.T) {
	v := New()
	if err := v.Interpret(`var t = clock(); print t >= 0;`); err != nil {
		t.Fatalf("Interpret failed: %v", err)
	}
	if got := strings.TrimSpace(v.Output()); got != "true" {
		t.Errorf("expected true, got %q", got)
	}
}

// --- failure scenarios -------------------------------------------------

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	v := New()
	err := v.Interpret(`print undefined_name;`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if _, ok := err.(*RuntimeError); !ok {
		t.Errorf("expected *RuntimeError, got %T", err)
	}
}

func TestTypeMismatchIsRuntimeError(t *testing.T) {
	v := New()
	err := v.Interpret(`print 1 + "two";`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
}

func TestSyntaxErrorIsCompileError(t *testing.T) {
	v := New()
	err := v.Interpret(`var = ;`)
	if err == nil {
		t.Fatal("expected a compile error")
	}
	if _, ok := err.(*CompileErrors); !ok {
		t.Errorf("expected *CompileErrors, got %T", err)
	}
}

func TestCallingNonCallableIsRuntimeError(t *testing.T) {
	v := New()
	err := v.Interpret(`var x = 1; x();`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
}

func TestStackOverflowFromUnboundedRecursion(t *testing.T) {
	v := New()
	err := v.Interpret(`
		fun recurse() { return recurse(); }
		recurse();
	`)
	if err == nil {
		t.Fatal("expected a stack overflow runtime error")
	}
}
