// Package chunk defines the bytecode format loxvm compiles to and the VM
// executes: a sequence of single-byte opcodes (with operands of varying
// width), a line-number table for runtime error reporting, and a constant
// pool holding the literal values and nested function bodies a chunk
// references.
//
// Architecture:
//
// Bytecode is a flat byte stream, not a list of fixed-width instructions:
// most opcodes are one byte with no operand, some take a one-byte operand
// (a constant-pool or local-slot index), and jump opcodes take a two-byte
// big-endian offset so backward and forward jumps can span an entire
// function body. OP_CLOSURE additionally carries a variable-length tail,
// one (is-local, index) pair per captured upvalue, immediately after its
// constant-pool index operand.
package chunk

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/pkg/value"
)

// OpCode is a single bytecode instruction's operation.
type OpCode byte

const (
	OpConstant OpCode = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue
	OpSetUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpLoop
	OpCall
	OpInvoke
	OpSuperInvoke
	OpClosure
	OpCloseUpvalue
	OpReturn
	OpClass
	OpInherit
	OpMethod
)

var opNames = [...]string{
	OpConstant:     "OP_CONSTANT",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpPop:          "OP_POP",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpInvoke:       "OP_INVOKE",
	OpSuperInvoke:  "OP_SUPER_INVOKE",
	OpClosure:      "OP_CLOSURE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpReturn:       "OP_RETURN",
	OpClass:        "OP_CLASS",
	OpInherit:      "OP_INHERIT",
	OpMethod:       "OP_METHOD",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("OP_UNKNOWN(%d)", byte(op))
}

// Chunk is a dense sequence of bytecode plus the constant pool and line
// table it references. Every compiled function body (including the
// implicit top-level script) owns one Chunk.
type Chunk struct {
	Code      []byte
	Lines     []int // Lines[i] is the source line that produced Code[i]
	Constants []value.Value
}

// Write appends a single byte of bytecode, recording the source line it
// came from for runtime error reporting.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp appends an opcode byte.
func (c *Chunk) WriteOp(op OpCode, line int) {
	c.Write(byte(op), line)
}

// AddConstant appends v to the constant pool and returns its index. The
// compiler is responsible for deduplicating identical constants if it
// wants to; Chunk itself never does (matching spec.md's narrow-interface
// design for this component).
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// Line returns the source line recorded for the instruction at offset.
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return -1
	}
	return c.Lines[offset]
}

// Disassemble renders the whole chunk in human-readable form. It exists
// so *Chunk satisfies value.Chunk (letting pkg/value reference chunks
// without importing this package, avoiding an import cycle) and for test
// and debug output.
func (c *Chunk) Disassemble(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = c.disassembleInstruction(&b, offset)
	}
	return b.String()
}

func (c *Chunk) disassembleInstruction(b *strings.Builder, offset int) int {
	fmt.Fprintf(b, "%04d ", offset)
	line := c.Line(offset)
	if offset > 0 && line == c.Line(offset-1) {
		fmt.Fprint(b, "   | ")
	} else {
		fmt.Fprintf(b, "%4d ", line)
	}

	op := OpCode(c.Code[offset])
	switch op {
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		return c.byteInstruction(b, op, offset)
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal, OpClass, OpMethod, OpGetProperty, OpSetProperty, OpGetSuper:
		return c.constantInstruction(b, op, offset)
	case OpInvoke, OpSuperInvoke:
		return c.invokeInstruction(b, op, offset)
	case OpJump, OpJumpIfFalse:
		return c.jumpInstruction(b, op, 1, offset)
	case OpLoop:
		return c.jumpInstruction(b, op, -1, offset)
	case OpClosure:
		return c.closureInstruction(b, offset)
	default:
		fmt.Fprintf(b, "%s\n", op)
		return offset + 1
	}
}

func (c *Chunk) byteInstruction(b *strings.Builder, op OpCode, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d\n", op, slot)
	return offset + 2
}

func (c *Chunk) constantInstruction(b *strings.Builder, op OpCode, offset int) int {
	idx := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d '%s'\n", op, idx, c.Constants[idx].String())
	return offset + 2
}

func (c *Chunk) invokeInstruction(b *strings.Builder, op OpCode, offset int) int {
	idx := c.Code[offset+1]
	argCount := c.Code[offset+2]
	fmt.Fprintf(b, "%-16s (%d args) %4d '%s'\n", op, argCount, idx, c.Constants[idx].String())
	return offset + 3
}

func (c *Chunk) jumpInstruction(b *strings.Builder, op OpCode, sign, offset int) int {
	jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	target := offset + 3 + sign*jump
	fmt.Fprintf(b, "%-16s %4d -> %d\n", op, offset, target)
	return offset + 3
}

func (c *Chunk) closureInstruction(b *strings.Builder, offset int) int {
	offset++
	idx := c.Code[offset]
	offset++
	fmt.Fprintf(b, "%-16s %4d '%s'\n", OpClosure, idx, c.Constants[idx].String())

	fn, ok := c.Constants[idx].Obj.(*value.FunctionObj)
	if !ok {
		return offset
	}
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := c.Code[offset]
		offset++
		index := c.Code[offset]
		offset++
		kind := "upvalue"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(b, "%04d      |                     %s %d\n", offset-2, kind, index)
	}
	return offset
}
