package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

// fakeHeap is a minimal Heap for compiler unit tests: no GC, just enough
// string interning and allocation to let the compiler run end to end.
type fakeHeap struct {
	strings map[string]*value.StringObj
	roots   []value.Value
}

func newFakeHeap() *fakeHeap {
	return &fakeHeap{strings: make(map[string]*value.StringObj)}
}

func (h *fakeHeap) InternString(chars string) *value.StringObj {
	if s, ok := h.strings[chars]; ok {
		return s
	}
	s := &value.StringObj{Chars: chars, Hash: value.HashString(chars)}
	h.strings[chars] = s
	return s
}

func (h *fakeHeap) NewFunction() *value.FunctionObj {
	return &value.FunctionObj{Chunk: &chunk.Chunk{}}
}

func (h *fakeHeap) PushRoot(v value.Value) { h.roots = append(h.roots, v) }
func (h *fakeHeap) PopRoot()               { h.roots = h.roots[:len(h.roots)-1] }

func compileOK(t *testing.T, source string) *value.FunctionObj {
	t.Helper()
	fn, errs := Compile(source, newFakeHeap())
	if errs != nil {
		t.Fatalf("unexpected compile errors for %q: %v", source, errs)
	}
	return fn
}

func opcodes(fn *value.FunctionObj) []chunk.OpCode {
	ch := fn.Chunk.(*chunk.Chunk)
	var ops []chunk.OpCode
	for i := 0; i < len(ch.Code); {
		op := chunk.OpCode(ch.Code[i])
		ops = append(ops, op)
		i += operandWidth(op)
	}
	return ops
}

// operandWidth mirrors the disassembler's own per-opcode operand sizes,
// used only so tests can walk the instruction stream without depending on
// Disassemble's textual output.
func operandWidth(op chunk.OpCode) int {
	switch op {
	case chunk.OpGetLocal, chunk.OpSetLocal, chunk.OpGetUpvalue, chunk.OpSetUpvalue, chunk.OpCall,
		chunk.OpConstant, chunk.OpGetGlobal, chunk.OpDefineGlobal, chunk.OpSetGlobal,
		chunk.OpClass, chunk.OpMethod, chunk.OpGetProperty, chunk.OpSetProperty, chunk.OpGetSuper:
		return 2
	case chunk.OpInvoke, chunk.OpSuperInvoke, chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpLoop:
		return 3
	case chunk.OpClosure:
		return 2 // upvalue tail is not walked by this helper
	default:
		return 1
	}
}

func TestCompilesNumberLiteral(t *testing.T) {
	fn := compileOK(t, "1 + 2;")
	ops := opcodes(fn)
	want := []chunk.OpCode{chunk.OpConstant, chunk.OpConstant, chunk.OpAdd, chunk.OpPop, chunk.OpNil, chunk.OpReturn}
	if len(ops) != len(want) {
		t.Fatalf("expected %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("op %d: expected %v, got %v", i, want[i], ops[i])
		}
	}
}

func TestCompilesVariableDeclaration(t *testing.T) {
	fn := compileOK(t, "var x = 1; print x;")
	ops := opcodes(fn)
	found := false
	for _, op := range ops {
		if op == chunk.OpDefineGlobal {
			found = true
		}
	}
	if !found {
		t.Errorf("expected OP_DEFINE_GLOBAL in %v", ops)
	}
}

func TestReportsMultipleErrors(t *testing.T) {
	_, errs := Compile("var 1 = 2; print ;", newFakeHeap())
	if len(errs) < 2 {
		t.Fatalf("expected at least 2 errors, got %d: %v", len(errs), errs)
	}
}

func TestReturnOutsideFunctionIsError(t *testing.T) {
	_, errs := Compile("return 1;", newFakeHeap())
	if len(errs) == 0 {
		t.Fatal("expected an error for top-level return")
	}
}

func TestClassWithMethodCompiles(t *testing.T) {
	fn := compileOK(t, `class Foo { bar() { return 1; } }`)
	ops := opcodes(fn)
	hasClass, hasMethod := false, false
	for _, op := range ops {
		if op == chunk.OpClass {
			hasClass = true
		}
		if op == chunk.OpMethod {
			hasMethod = true
		}
	}
	if !hasClass || !hasMethod {
		t.Errorf("expected OP_CLASS and OP_METHOD in %v", ops)
	}
}

func TestNestedFunctionCapturesUpvalue(t *testing.T) {
	fn := compileOK(t, `
		fun outer() {
			var x = 1;
			fun inner() { return x; }
			return inner;
		}
	`)
	if fn == nil {
		t.Fatal("expected compiled function")
	}

	var inner *value.FunctionObj
	for _, k := range fn.Chunk.(*chunk.Chunk).Constants {
		if outer, ok := k.Obj.(*value.FunctionObj); ok {
			for _, k2 := range outer.Chunk.(*chunk.Chunk).Constants {
				if f, ok := k2.Obj.(*value.FunctionObj); ok {
					inner = f
				}
			}
		}
	}
	if inner == nil || inner.UpvalueCount != 1 {
		t.Errorf("expected inner() to capture exactly 1 upvalue, got %+v", inner)
	}
}

// --- boundary behaviors -----------------------------------------------------
//
// spec.md names five boundary behaviors as testable properties: the local,
// upvalue, jump, and parameter-count limits each have a value that compiles
// cleanly and a next value that must be rejected.

func varDecls(prefix string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "var %s%d;", prefix, i)
	}
	return b.String()
}

func TestMaxLocalsPerFunctionCompiles(t *testing.T) {
	// Slot 0 of every function frame is reserved, so a function body can
	// declare 255 more locals before hitting the 256-local cap.
	src := "fun f() {" + varDecls("a", 255) + "}"
	if fn := compileOK(t, src); fn == nil {
		t.Fatal("expected compiled function")
	}
}

func TestTooManyLocalsIsError(t *testing.T) {
	src := "fun f() {" + varDecls("a", 256) + "}"
	_, errs := Compile(src, newFakeHeap())
	if !anyErrorContains(errs, "Too many local variables") {
		t.Fatalf("expected a 'Too many local variables' error, got %v", errs)
	}
}

// names and sumExpr build a chain of nested functions whose innermost body
// references every outer local by name, forcing the compiler to resolve
// each one as a captured upvalue.
func names(prefix string, n int) []string {
	ns := make([]string, n)
	for i := range ns {
		ns[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return ns
}

func declsFrom(names []string) string {
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "var %s;", n)
	}
	return b.String()
}

// upvalueChainSource builds fun fa() { <254 locals> fun fb() { <bCount
// locals> fun fc() { return <every fa/fb local added together>; } } }, so
// fc must capture 254+bCount upvalues: 254 relayed through fb from fa, plus
// bCount captured directly from fb. fa holds 254 rather than 255 named
// locals because fb itself takes fa's last free local slot.
func upvalueChainSource(bCount int) string {
	aNames := names("a", 254)
	bNames := names("b", bCount)
	all := append(append([]string{}, aNames...), bNames...)
	return "fun fa() {" + declsFrom(aNames) +
		"fun fb() {" + declsFrom(bNames) +
		"fun fc() { return " + strings.Join(all, "+") + "; }" +
		"}}"
}

func TestMaxUpvaluesPerFunctionCompiles(t *testing.T) {
	if fn := compileOK(t, upvalueChainSource(1)); fn == nil {
		t.Fatal("expected compiled function")
	}
}

func TestTooManyUpvaluesIsError(t *testing.T) {
	_, errs := Compile(upvalueChainSource(3), newFakeHeap())
	if !anyErrorContains(errs, "Too many closure variables") {
		t.Fatalf("expected a 'Too many closure variables' error, got %v", errs)
	}
}

// jumpBodySource builds "var g; if (true) { <statements> }" whose then-branch
// is sized so the compiler's OP_JUMP_IF_FALSE offset lands at exactly
// offset.
func jumpBodySource(offset int) string {
	// jump = 4 (leading OP_POP + the 3-byte OP_JUMP the compiler always
	// emits before patching) + 3*m (each "!nil;" costs OP_NIL+OP_NOT+OP_POP
	// and, unlike a global read, adds no constant, so the 256-constant limit
	// is never reached) + a trailing "nil;" (OP_NIL+OP_POP) when a 2-byte
	// remainder is left.
	rem := offset - 4
	m := rem / 3
	extra := rem - 3*m
	body := strings.Repeat("!nil;", m)
	if extra == 2 {
		body += "nil;"
	}
	return "var g; if (true) {" + body + "}"
}

func TestMaxForwardJumpCompiles(t *testing.T) {
	if fn := compileOK(t, jumpBodySource(0xffff)); fn == nil {
		t.Fatal("expected compiled function")
	}
}

func TestTooLargeForwardJumpIsError(t *testing.T) {
	_, errs := Compile(jumpBodySource(0xffff+1), newFakeHeap())
	if !anyErrorContains(errs, "Too much code to jump over") {
		t.Fatalf("expected a 'Too much code to jump over' error, got %v", errs)
	}
}

func TestMaxArityCompiles(t *testing.T) {
	params := strings.Join(names("p", 255), ",")
	src := "fun f(" + params + ") { return 1; }"
	if fn := compileOK(t, src); fn == nil {
		t.Fatal("expected compiled function")
	}
}

func TestTooManyParametersIsError(t *testing.T) {
	params := strings.Join(names("p", 256), ",")
	src := "fun f(" + params + ") { return 1; }"
	_, errs := Compile(src, newFakeHeap())
	if !anyErrorContains(errs, "Can't have more than 255 parameters") {
		t.Fatalf("expected a 'Can't have more than 255 parameters' error, got %v", errs)
	}
}

func anyErrorContains(errs []error, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e.Error(), substr) {
			return true
		}
	}
	return false
}
