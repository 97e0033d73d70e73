package value

import (
	"fmt"
	"hash/fnv"
)

// ObjType tags the concrete kind of a heap Object.
type ObjType byte

const (
	ObjString ObjType = iota
	ObjFunction
	ObjNative
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjBoundMethod
)

// ObjHeader is the header every heap object embeds by value. It carries the
// mark bit the collector flips during the mark phase and the intrusive
// Next link that threads every live allocation into the VM's sweep list,
// mirroring spec.md's "one mark bit plus an intrusive linked list anchored
// at the VM" object model. The concrete kind is exposed through each
// object's own Kind() method rather than stored here, so there is no
// field to keep in sync with the real type.
type ObjHeader struct {
	Marked bool
	Next   Object
}

// Header lets code that only holds an Object still reach the shared
// bookkeeping fields without a type switch.
func (o *ObjHeader) Header() *ObjHeader { return o }

// Object is implemented by every heap-allocated Lox value. Each concrete
// type embeds ObjHeader by value and so gets Header() for free; Kind()
// disambiguates which concrete type is underneath for callers holding
// only the interface.
type Object interface {
	Header() *ObjHeader
	Kind() ObjType
	String() string
}

// StringObj is an interned, immutable Lox string. Equality between two
// StringObj values is pointer identity: the intern table guarantees equal
// text always yields the same *StringObj.
type StringObj struct {
	ObjHeader
	Chars string
	Hash  uint32
}

func (s *StringObj) Kind() ObjType { return ObjString }
func (s *StringObj) String() string { return s.Chars }

// HashString computes the FNV-1a 32-bit hash spec.md's table and intern
// pool both key on.
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// FunctionObj is a compiled function body: its own chunk of bytecode, its
// arity, the number of upvalues it captures, and an optional name (nil
// for the implicit top-level script function).
type FunctionObj struct {
	ObjHeader
	Arity        int
	UpvalueCount int
	Chunk        Chunk
	Name         *StringObj
}

func (f *FunctionObj) Kind() ObjType { return ObjFunction }
func (f *FunctionObj) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// Chunk is the subset of pkg/chunk.Chunk that pkg/value needs to reference
// without importing pkg/chunk, avoiding an import cycle (pkg/chunk stores
// Values in its constant pool, so pkg/chunk already depends on pkg/value).
// pkg/chunk's concrete *chunk.Chunk type satisfies this interface.
type Chunk interface {
	Disassemble(name string) string
}

// NativeFn is the signature every built-in function implements. args is a
// slice into the VM's value stack; its length is the call-site argument
// count.
type NativeFn func(args []Value) (Value, error)

// NativeObj wraps a Go function as a callable Lox value (spec.md's sole
// native, clock()).
type NativeObj struct {
	ObjHeader
	Name string
	Fn   NativeFn
}

func (n *NativeObj) Kind() ObjType { return ObjNative }
func (n *NativeObj) String() string { return fmt.Sprintf("<native fn %s>", n.Name) }

// UpvalueObj references a still-live stack slot (open: Location points
// into the VM stack) or a closed-over copy of that slot's value once the
// enclosing scope has exited (closed: the value is in Closed and Location
// points at Closed).
type UpvalueObj struct {
	ObjHeader
	Location *Value
	Closed   Value
	NextOpen *UpvalueObj // open-upvalue list, sorted by descending stack address
}

func (u *UpvalueObj) Kind() ObjType { return ObjUpvalue }
func (u *UpvalueObj) String() string { return "<upvalue>" }

// ClosureObj pairs a compiled function with the upvalues it captured at
// the point it was created.
type ClosureObj struct {
	ObjHeader
	Function *FunctionObj
	Upvalues []*UpvalueObj
}

func (c *ClosureObj) Kind() ObjType { return ObjClosure }
func (c *ClosureObj) String() string { return c.Function.String() }

// ClassObj is a named method table, optionally inheriting another class's
// methods (copied in at INHERIT time, per spec.md §4.6).
type ClassObj struct {
	ObjHeader
	Name    *StringObj
	Methods map[*StringObj]*ClosureObj
}

func (c *ClassObj) Kind() ObjType { return ObjClass }
func (c *ClassObj) String() string { return c.Name.Chars }

// InstanceObj is a runtime object: a reference to its class plus a field
// table. Fields are created lazily on first assignment.
type InstanceObj struct {
	ObjHeader
	Class  *ClassObj
	Fields map[*StringObj]Value
}

func (i *InstanceObj) Kind() ObjType { return ObjInstance }
func (i *InstanceObj) String() string { return fmt.Sprintf("<%s instance>", i.Class.Name.Chars) }

// BoundMethodObj pairs a receiver instance with one of its class's
// closures, produced by property access on a method name and consumed by
// OP_CALL.
type BoundMethodObj struct {
	ObjHeader
	Receiver Value
	Method   *ClosureObj
}

func (b *BoundMethodObj) Kind() ObjType { return ObjBoundMethod }
func (b *BoundMethodObj) String() string { return b.Method.Function.String() }

// AsString is a convenience type-assertion helper for the common
// "this Value must be a string" case.
func (v Value) AsString() (*StringObj, bool) {
	if v.Kind != KindObj {
		return nil, false
	}
	s, ok := v.Obj.(*StringObj)
	return s, ok
}

// Is reports whether v holds a heap object of the given kind.
func (v Value) Is(k ObjType) bool {
	return v.Kind == KindObj && v.Obj.Kind() == k
}
