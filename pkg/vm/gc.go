package vm

import (
	"os"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

const (
	initialGCThreshold = 1 << 20 // 1 MiB, spec.md's starting heap-growth threshold
	gcHeapGrowFactor   = 2
)

// approxSize gives the collector a rough per-object byte cost to drive the
// heap-growth threshold; it need not be exact, only monotonic with actual
// allocation so the threshold still doubles at a sensible cadence.
func approxSize(o value.Object) int {
	switch v := o.(type) {
	case *value.StringObj:
		return 32 + len(v.Chars)
	case *value.FunctionObj:
		return 64
	case *value.NativeObj:
		return 32
	case *value.ClosureObj:
		return 24 + 8*len(v.Upvalues)
	case *value.UpvalueObj:
		return 24
	case *value.ClassObj:
		return 32
	case *value.InstanceObj:
		return 32 + 24*len(v.Fields)
	case *value.BoundMethodObj:
		return 32
	default:
		return 16
	}
}

// track registers a freshly allocated object with the collector (it is not
// a root): it is linked into the VM's all-objects list that sweep walks and counted against the
// heap-growth threshold, triggering a collection first if the threshold
// would be exceeded.
func (vm *VM) track(o value.Object) {
	size := approxSize(o)
	vm.bytesAllocated += size

	if vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}

	o.Header().Next = vm.objects
	vm.objects = o
}

// InternString returns the canonical *StringObj for chars, allocating and
// interning a new one on first sight. Implements compiler.Heap.
func (vm *VM) InternString(chars string) *value.StringObj {
	hash := value.HashString(chars)
	if existing := vm.strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := &value.StringObj{Chars: chars, Hash: hash}
	vm.track(s)
	vm.strings.Set(s, value.Nil)
	return s
}

// NewFunction allocates a fresh FunctionObj. Implements compiler.Heap.
func (vm *VM) NewFunction() *value.FunctionObj {
	fn := &value.FunctionObj{}
	vm.track(fn)
	return fn
}

func (vm *VM) newNative(name string, fn value.NativeFn) *value.NativeObj {
	n := &value.NativeObj{Name: name, Fn: fn}
	vm.track(n)
	return n
}

func (vm *VM) newClosure(fn *value.FunctionObj) *value.ClosureObj {
	c := &value.ClosureObj{Function: fn, Upvalues: make([]*value.UpvalueObj, fn.UpvalueCount)}
	vm.track(c)
	return c
}

func (vm *VM) newUpvalue(slot *value.Value) *value.UpvalueObj {
	u := &value.UpvalueObj{Location: slot}
	vm.track(u)
	return u
}

func (vm *VM) newClass(name *value.StringObj) *value.ClassObj {
	c := &value.ClassObj{Name: name, Methods: make(map[*value.StringObj]*value.ClosureObj)}
	vm.track(c)
	return c
}

func (vm *VM) newInstance(class *value.ClassObj) *value.InstanceObj {
	i := &value.InstanceObj{Class: class, Fields: make(map[*value.StringObj]value.Value)}
	vm.track(i)
	return i
}

func (vm *VM) newBoundMethod(receiver value.Value, method *value.ClosureObj) *value.BoundMethodObj {
	b := &value.BoundMethodObj{Receiver: receiver, Method: method}
	vm.track(b)
	return b
}

// PushRoot and PopRoot protect a value across allocations that could
// trigger a collection while nothing else references it yet. Implements
// compiler.Heap; the values live in compilerRoots, a list markRoots walks
// separately from the value stack. (defineNative protects its values by
// pushing them onto the value stack instead.)
func (vm *VM) PushRoot(v value.Value) { vm.compilerRoots = append(vm.compilerRoots, v) }
func (vm *VM) PopRoot()               { vm.compilerRoots = vm.compilerRoots[:len(vm.compilerRoots)-1] }

// collectGarbage runs one full mark-and-sweep cycle: mark every root and
// trace the object graph to a fixed point (gray worklist), drop intern-table
// entries for strings that turned out unreachable, then sweep the
// all-objects list, unlinking anything left unmarked so Go's own runtime
// collector can reclaim it.
func (vm *VM) collectGarbage() {
	if vm.debugLogGC {
		logGC("begin")
	}

	vm.markRoots()
	vm.traceReferences()
	vm.strings.RemoveWhite()
	vm.sweep()

	vm.nextGC = vm.bytesAllocated * gcHeapGrowFactor

	if vm.debugLogGC {
		logGC("end")
	}
}

func (vm *VM) markRoots() {
	for _, v := range vm.stack {
		vm.markValue(v)
	}
	for i := range vm.frames {
		vm.markObject(vm.frames[i].closure)
	}
	for u := vm.openUpvalues; u != nil; u = u.NextOpen {
		vm.markObject(u)
	}
	vm.globals.Each(func(k *value.StringObj, v value.Value) {
		vm.markObject(k)
		vm.markValue(v)
	})
	for _, v := range vm.compilerRoots {
		vm.markValue(v)
	}
	vm.markObject(vm.initString)
}

func (vm *VM) markValue(v value.Value) {
	if v.Kind == value.KindObj {
		vm.markObject(v.Obj)
	}
}

func (vm *VM) markObject(o value.Object) {
	if o == nil {
		return
	}
	h := o.Header()
	if h.Marked {
		return
	}
	h.Marked = true
	vm.grayStack = append(vm.grayStack, o)
}

func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		last := len(vm.grayStack) - 1
		o := vm.grayStack[last]
		vm.grayStack = vm.grayStack[:last]
		vm.blacken(o)
	}
}

func (vm *VM) blacken(o value.Object) {
	switch v := o.(type) {
	case *value.StringObj, *value.NativeObj:
		// no outgoing references
	case *value.UpvalueObj:
		vm.markValue(v.Closed)
	case *value.FunctionObj:
		vm.markObject(v.Name)
		if ch, ok := v.Chunk.(*chunk.Chunk); ok {
			for _, c := range ch.Constants {
				vm.markValue(c)
			}
		}
	case *value.ClosureObj:
		vm.markObject(v.Function)
		for _, u := range v.Upvalues {
			vm.markObject(u)
		}
	case *value.ClassObj:
		vm.markObject(v.Name)
		for name, m := range v.Methods {
			vm.markObject(name)
			vm.markObject(m)
		}
	case *value.InstanceObj:
		vm.markObject(v.Class)
		for name, fv := range v.Fields {
			vm.markObject(name)
			vm.markValue(fv)
		}
	case *value.BoundMethodObj:
		vm.markValue(v.Receiver)
		vm.markObject(v.Method)
	}
}

func (vm *VM) sweep() {
	var prev value.Object
	obj := vm.objects
	for obj != nil {
		h := obj.Header()
		if h.Marked {
			h.Marked = false
			prev = obj
			obj = h.Next
			continue
		}
		unreached := obj
		obj = h.Next
		if prev != nil {
			prev.Header().Next = obj
		} else {
			vm.objects = obj
		}
		vm.bytesAllocated -= approxSize(unreached)
	}
}

func logGC(phase string) {
	os.Stderr.WriteString("-- gc " + phase + "\n")
}
