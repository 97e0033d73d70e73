// Package value implements Lox's dynamic value representation: a tagged
// union over nil, boolean, number, and heap object, plus the heap object
// model (strings, functions, closures, classes, instances) that every
// loxvm component shares.
package value

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies which alternative of a Value is active.
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is the tagged union every loxvm opcode pushes, pops, and stores.
// Exactly one of the fields is meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Obj    Object
}

// Nil is the singleton nil value.
var Nil = Value{Kind: KindNil}

// Bool wraps a Go bool as a Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number wraps a float64 as a Value.
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// Obj wraps a heap Object as a Value.
func Obj(o Object) Value { return Value{Kind: KindObj, Obj: o} }

// IsNil reports whether v is the nil value.
func (v Value) IsNil() bool { return v.Kind == KindNil }

// IsFalsey implements Lox's truthiness rule: nil and false are falsey,
// everything else (including 0 and "") is truthy.
func (v Value) IsFalsey() bool {
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return !v.Bool
	default:
		return false
	}
}

// Equal implements Lox's `==` semantics: values of different kinds are
// never equal, numbers compare by value, objects compare by identity
// (strings are interned, so identity equality is value equality for them).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Number == b.Number
	case KindObj:
		return a.Obj == b.Obj
	default:
		return false
	}
}

// String renders v the way Lox's `print` statement does.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Number)
	case KindObj:
		return v.Obj.String()
	default:
		return "<invalid value>"
	}
}

// formatNumber mirrors the reference interpreter's printf("%g", ...): the
// shortest round-tripping decimal form, without a trailing ".0" for
// integral values beyond what %g already omits.
func formatNumber(n float64) string {
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	if math.IsNaN(n) {
		return "nan"
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

// TypeName returns the Lox-visible type name of v, for generic
// diagnostics. The VM's runtime error messages check Kind directly and do
// not call it.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindObj:
		return v.Obj.Kind().Name()
	default:
		return "unknown"
	}
}

func (k ObjType) Name() string {
	switch k {
	case ObjString:
		return "string"
	case ObjFunction:
		return "function"
	case ObjNative:
		return "native function"
	case ObjClosure:
		return "function"
	case ObjUpvalue:
		return "upvalue"
	case ObjClass:
		return "class"
	case ObjInstance:
		return "instance"
	case ObjBoundMethod:
		return "bound method"
	default:
		return fmt.Sprintf("object(%d)", k)
	}
}
