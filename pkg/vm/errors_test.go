package vm

import (
	"strings"
	"testing"
)

func TestRuntimeErrorIncludesStackTrace(t *testing.T) {
	v := New()
	err := v.Interpret(`
		fun inner() { return undefined_variable; }
		fun outer() { return inner(); }
		outer();
	`)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	re, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected *RuntimeError, got %T", err)
	}
	if len(re.StackTrace) < 2 {
		t.Errorf("expected at least 2 stack frames, got %d: %+v", len(re.StackTrace), re.StackTrace)
	}

	// The error site (inner()) must come first; the caller (outer()) and
	// the script must follow, newest to oldest.
	if re.StackTrace[0].Name != "inner()" {
		t.Errorf("expected innermost frame first, got %+v", re.StackTrace)
	}

	rendered := re.Error()
	innerIdx := strings.Index(rendered, "in inner()")
	outerIdx := strings.Index(rendered, "in outer()")
	if innerIdx == -1 || outerIdx == -1 {
		t.Fatalf("expected both inner() and outer() frames in rendered trace: %q", rendered)
	}
	if innerIdx > outerIdx {
		t.Errorf("expected inner() frame to print before outer() frame, got %q", rendered)
	}
}
