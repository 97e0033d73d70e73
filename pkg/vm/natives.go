package vm

import (
	"time"

	"github.com/kristofer/loxvm/pkg/value"
)

// defineNatives installs the language's native function surface: exactly
// clock(), per spec.md's Non-goal against any broader standard library.
func (vm *VM) defineNatives() {
	vm.defineNative("clock", 0, func(args []value.Value) (value.Value, error) {
		return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
	})
}

func (vm *VM) defineNative(name string, arity int, fn value.NativeFn) {
	// The name is pushed/popped as a stack root around allocation exactly
	// like the reference interpreter does, so a GC triggered mid-definition
	// can't collect the freshly interned name before it's stored.
	nameObj := vm.InternString(name)
	vm.push(value.Obj(nameObj))
	native := vm.newNative(name, fn)
	vm.push(value.Obj(native))
	vm.globals.Set(nameObj, vm.stack[len(vm.stack)-1])
	vm.pop()
	vm.pop()
}
