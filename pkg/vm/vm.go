// Package vm implements the bytecode virtual machine for Lox.
//
// The VM is a stack-based interpreter that executes pkg/chunk bytecode.
// It's the final stage in the execution pipeline:
//
//	Source -> Lexer -> Compiler (single pass) -> Chunk -> VM -> Execution
//
// Execution model:
//
// Each call frame tracks the closure it's executing, an instruction
// pointer into that closure's chunk, and a base index into the shared
// value stack where its locals begin. Opcodes read and write the top of
// the stack; control flow (OP_JUMP, OP_LOOP, OP_CALL, OP_RETURN) pushes
// and pops call frames and patches the instruction pointer directly.
package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/table"
	"github.com/kristofer/loxvm/pkg/value"
)

const maxFrames = 64
const maxStack = maxFrames * 256

// CallFrame is one active function invocation: which closure is running,
// where execution is within its chunk, and where its locals begin on the
// shared value stack.
type CallFrame struct {
	closure   *value.ClosureObj
	ip        int
	slotsBase int
}

// VM is loxvm's single global interpreter state: the value stack, the
// call-frame stack, globals, the string intern pool, the open-upvalue
// list, and the garbage collector's bookkeeping. spec.md treats the VM as
// one mutable structure rather than a family of small services, and this
// type follows that shape directly.
type VM struct {
	stack  []value.Value
	frames []CallFrame

	globals *table.Table
	strings *table.Table

	openUpvalues *value.UpvalueObj
	initString   *value.StringObj

	objects        value.Object
	bytesAllocated int
	nextGC         int
	grayStack      []value.Object
	compilerRoots  []value.Value
	debugLogGC     bool

	out strings.Builder // captured output, flushed by callers that want it
}

// New creates a VM with its native functions and the "init" sentinel
// string already installed.
func New() *VM {
	vm := &VM{
		// stack and frames are preallocated to their maximum capacity and
		// never allowed to grow past it (call() enforces maxFrames; the
		// compiler's 256-local limit bounds per-frame stack usage): this
		// keeps the backing arrays from ever being reallocated by append,
		// which would invalidate the raw *Value pointers open upvalues
		// hold into the stack.
		stack:   make([]value.Value, 0, maxStack),
		frames:  make([]CallFrame, 0, maxFrames),
		globals: table.New(),
		strings: table.New(),
		nextGC:  initialGCThreshold,
	}
	vm.initString = vm.InternString("init")
	vm.defineNatives()
	return vm
}

// Interpret compiles and runs source, matching spec.md §6's embedding
// entry point. It returns a *CompileErrors on a compile failure and a
// *RuntimeError on a runtime failure; callers distinguish the two to pick
// exit code 65 vs 70 (spec.md §6).
func (vm *VM) Interpret(source string) error {
	fn, errs := compiler.Compile(source, vm)
	if errs != nil {
		return &CompileErrors{Errors: errs}
	}

	vm.push(value.Obj(fn))
	closure := vm.newClosure(fn)
	vm.pop()
	vm.push(value.Obj(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}

	return vm.run()
}

// CompileErrors wraps every error the compiler accumulated during one
// panic-mode pass.
type CompileErrors struct {
	Errors []error
}

func (e *CompileErrors) Error() string {
	var b strings.Builder
	for i, err := range e.Errors {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// StackTop returns the value on top of the stack, used by tests that want
// to assert on a script's final expression result.
func (vm *VM) StackTop() value.Value {
	if len(vm.stack) == 0 {
		return value.Nil
	}
	return vm.stack[len(vm.stack)-1]
}

// Output returns everything OP_PRINT has written so far.
func (vm *VM) Output() string { return vm.out.String() }

// TakeOutput returns everything OP_PRINT has written since the last call
// and clears the buffer, so a long-lived REPL session doesn't reprint
// earlier output on every line.
func (vm *VM) TakeOutput() string {
	s := vm.out.String()
	vm.out.Reset()
	return s
}

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	last := len(vm.stack) - 1
	v := vm.stack[last]
	vm.stack = vm.stack[:last]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

func (vm *VM) frame() *CallFrame { return &vm.frames[len(vm.frames)-1] }

func (vm *VM) currentChunk() *chunk.Chunk {
	return vm.frame().closure.Function.Chunk.(*chunk.Chunk)
}

func (vm *VM) readByte() byte {
	f := vm.frame()
	b := vm.currentChunk().Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readShort() uint16 {
	f := vm.frame()
	hi := vm.currentChunk().Code[f.ip]
	lo := vm.currentChunk().Code[f.ip+1]
	f.ip += 2
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) readConstant() value.Value {
	return vm.currentChunk().Constants[vm.readByte()]
}

func (vm *VM) readString() *value.StringObj {
	s, _ := vm.readConstant().AsString()
	return s
}

// runtimeError builds a RuntimeError carrying the current call stack,
// matching spec.md §7's requirement that runtime failures report the
// full stack trace.
func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	msg := fmt.Sprintf(format, args...)

	var trace []StackFrame
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Function
		line := fn.Chunk.(*chunk.Chunk).Line(f.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		trace = append(trace, StackFrame{Name: name, SourceLine: line})
	}
	return newRuntimeError(msg, trace)
}

// run executes bytecode until the outermost call frame returns.
func (vm *VM) run() error {
	for {
		op := chunk.OpCode(vm.readByte())
		switch op {
		case chunk.OpConstant:
			vm.push(vm.readConstant())
		case chunk.OpNil:
			vm.push(value.Nil)
		case chunk.OpTrue:
			vm.push(value.Bool(true))
		case chunk.OpFalse:
			vm.push(value.Bool(false))
		case chunk.OpPop:
			vm.pop()
		case chunk.OpGetLocal:
			slot := vm.readByte()
			vm.push(vm.stack[vm.frame().slotsBase+int(slot)])
		case chunk.OpSetLocal:
			slot := vm.readByte()
			vm.stack[vm.frame().slotsBase+int(slot)] = vm.peek(0)
		case chunk.OpGetGlobal:
			name := vm.readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case chunk.OpDefineGlobal:
			name := vm.readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case chunk.OpSetGlobal:
			name := vm.readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
		case chunk.OpGetUpvalue:
			slot := vm.readByte()
			vm.push(*vm.frame().closure.Upvalues[slot].Location)
		case chunk.OpSetUpvalue:
			slot := vm.readByte()
			*vm.frame().closure.Upvalues[slot].Location = vm.peek(0)
		case chunk.OpGetProperty:
			if err := vm.getProperty(); err != nil {
				return err
			}
		case chunk.OpSetProperty:
			if err := vm.setProperty(); err != nil {
				return err
			}
		case chunk.OpGetSuper:
			name := vm.readString()
			superclass, _ := vm.pop().Obj.(*value.ClassObj)
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}
		case chunk.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case chunk.OpGreater:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Bool(a > b) }); err != nil {
				return err
			}
		case chunk.OpLess:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Bool(a < b) }); err != nil {
				return err
			}
		case chunk.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OpSubtract:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a - b) }); err != nil {
				return err
			}
		case chunk.OpMultiply:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a * b) }); err != nil {
				return err
			}
		case chunk.OpDivide:
			if err := vm.binaryNumberOp(func(a, b float64) value.Value { return value.Number(a / b) }); err != nil {
				return err
			}
		case chunk.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsey()))
		case chunk.OpNegate:
			if vm.peek(0).Kind != value.KindNumber {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().Number))
		case chunk.OpPrint:
			fmt.Fprintln(&vm.out, vm.pop().String())
		case chunk.OpJump:
			offset := vm.readShort()
			vm.frame().ip += int(offset)
		case chunk.OpJumpIfFalse:
			offset := vm.readShort()
			if vm.peek(0).IsFalsey() {
				vm.frame().ip += int(offset)
			}
		case chunk.OpLoop:
			offset := vm.readShort()
			vm.frame().ip -= int(offset)
		case chunk.OpCall:
			argCount := int(vm.readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
		case chunk.OpInvoke:
			method := vm.readString()
			argCount := int(vm.readByte())
			if err := vm.invoke(method, argCount); err != nil {
				return err
			}
		case chunk.OpSuperInvoke:
			method := vm.readString()
			argCount := int(vm.readByte())
			superclass, _ := vm.pop().Obj.(*value.ClassObj)
			if err := vm.invokeFromClass(superclass, method, argCount); err != nil {
				return err
			}
		case chunk.OpClosure:
			fn, _ := vm.readConstant().Obj.(*value.FunctionObj)
			closure := vm.newClosure(fn)
			vm.push(value.Obj(closure))
			for i := range closure.Upvalues {
				isLocal := vm.readByte()
				index := vm.readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(vm.frame().slotsBase + int(index))
				} else {
					closure.Upvalues[i] = vm.frame().closure.Upvalues[index]
				}
			}
		case chunk.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()
		case chunk.OpReturn:
			result := vm.pop()
			finishedBase := vm.frame().slotsBase
			vm.closeUpvalues(finishedBase)
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				vm.pop() // the implicit script closure itself
				return nil
			}
			vm.stack = vm.stack[:finishedBase]
			vm.push(result)
		case chunk.OpClass:
			vm.push(value.Obj(vm.newClass(vm.readString())))
		case chunk.OpInherit:
			superclass, ok := vm.peek(1).Obj.(*value.ClassObj)
			if !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass := vm.peek(0).Obj.(*value.ClassObj)
			for name, m := range superclass.Methods {
				subclass.Methods[name] = m
			}
			vm.pop() // subclass
		case chunk.OpMethod:
			vm.defineMethod(vm.readString())
		default:
			return vm.runtimeError("Unknown opcode %v.", op)
		}
	}
}

func (vm *VM) binaryNumberOp(op func(a, b float64) value.Value) error {
	if vm.peek(0).Kind != value.KindNumber || vm.peek(1).Kind != value.KindNumber {
		return vm.runtimeError("Operands must be numbers.")
	}
	b, a := vm.pop(), vm.pop()
	vm.push(op(a.Number, b.Number))
	return nil
}

// add implements OP_ADD's two overloads: number + number and
// string + string, concatenating via the intern pool so the result
// behaves exactly like any other interned string.
func (vm *VM) add() error {
	bv, av := vm.peek(0), vm.peek(1)
	switch {
	case av.Kind == value.KindNumber && bv.Kind == value.KindNumber:
		vm.pop()
		vm.pop()
		vm.push(value.Number(av.Number + bv.Number))
		return nil
	case av.Is(value.ObjString) && bv.Is(value.ObjString):
		// Operands stay on the stack (reachable GC roots) until the
		// concatenated result itself is safely interned and pushed.
		a, _ := av.AsString()
		b, _ := bv.AsString()
		result := vm.InternString(a.Chars + b.Chars)
		vm.pop()
		vm.pop()
		vm.push(value.Obj(result))
		return nil
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
}

func (vm *VM) callValue(callee value.Value, argCount int) error {
	if callee.Kind != value.KindObj {
		return vm.runtimeError("Can only call functions and classes.")
	}
	switch o := callee.Obj.(type) {
	case *value.ClosureObj:
		return vm.call(o, argCount)
	case *value.NativeObj:
		args := vm.stack[len(vm.stack)-argCount:]
		result, err := o.Fn(args)
		if err != nil {
			return vm.runtimeError("%s", err.Error())
		}
		vm.stack = vm.stack[:len(vm.stack)-argCount-1]
		vm.push(result)
		return nil
	case *value.ClassObj:
		instance := vm.newInstance(o)
		vm.stack[len(vm.stack)-argCount-1] = value.Obj(instance)
		if initializer, ok := o.Methods[vm.initString]; ok {
			return vm.call(initializer, argCount)
		}
		if argCount != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		}
		return nil
	case *value.BoundMethodObj:
		vm.stack[len(vm.stack)-argCount-1] = o.Receiver
		return vm.call(o.Method, argCount)
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

func (vm *VM) call(closure *value.ClosureObj, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if len(vm.frames) >= maxFrames {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames = append(vm.frames, CallFrame{
		closure:   closure,
		slotsBase: len(vm.stack) - argCount - 1,
	})
	return nil
}

func (vm *VM) invoke(name *value.StringObj, argCount int) error {
	receiver := vm.peek(argCount)
	instance, ok := receiver.Obj.(*value.InstanceObj)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if field, ok := instance.Fields[name]; ok {
		vm.stack[len(vm.stack)-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *value.ClassObj, name *value.StringObj, argCount int) error {
	method, ok := class.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method, argCount)
}

func (vm *VM) bindMethod(class *value.ClassObj, name *value.StringObj) error {
	method, ok := class.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := vm.newBoundMethod(vm.peek(0), method)
	vm.pop()
	vm.push(value.Obj(bound))
	return nil
}

func (vm *VM) getProperty() error {
	instanceVal := vm.peek(0)
	instance, ok := instanceVal.Obj.(*value.InstanceObj)
	if !ok {
		return vm.runtimeError("Only instances have properties.")
	}
	name := vm.readString()

	if field, ok := instance.Fields[name]; ok {
		vm.pop()
		vm.push(field)
		return nil
	}
	return vm.bindMethod(instance.Class, name)
}

func (vm *VM) setProperty() error {
	instanceVal := vm.peek(1)
	instance, ok := instanceVal.Obj.(*value.InstanceObj)
	if !ok {
		return vm.runtimeError("Only instances have fields.")
	}
	name := vm.readString()
	instance.Fields[name] = vm.peek(0)

	v := vm.pop()
	vm.pop()
	vm.push(v)
	return nil
}

func (vm *VM) defineMethod(name *value.StringObj) {
	method, _ := vm.peek(0).Obj.(*value.ClosureObj)
	class, _ := vm.peek(1).Obj.(*value.ClassObj)
	class.Methods[name] = method
	vm.pop()
}

// captureUpvalue returns the open upvalue for stack slot index, reusing
// an existing one if the slot is already captured, inserting a new one
// into the descending-address-sorted open list otherwise (spec.md's
// upvalue-sharing invariant: two closures capturing the same local share
// one UpvalueObj while it is open).
func (vm *VM) captureUpvalue(index int) *value.UpvalueObj {
	var prev *value.UpvalueObj
	cur := vm.openUpvalues
	for cur != nil {
		curIndex := vm.slotIndex(cur.Location)
		if curIndex < index {
			break
		}
		if curIndex == index {
			return cur
		}
		prev = cur
		cur = cur.NextOpen
	}

	created := vm.newUpvalue(&vm.stack[index])
	created.NextOpen = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

func (vm *VM) slotIndex(loc *value.Value) int {
	for i := range vm.stack {
		if &vm.stack[i] == loc {
			return i
		}
	}
	return -1
}

// closeUpvalues hoists every open upvalue at or above stack index last
// into its own Closed copy, detaching it from the stack (called on block
// exit and function return, spec.md §4.6).
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.slotIndex(vm.openUpvalues.Location) >= last {
		u := vm.openUpvalues
		u.Closed = *u.Location
		u.Location = &u.Closed
		vm.openUpvalues = u.NextOpen
		u.NextOpen = nil
	}
}
