package value

import (
	"fmt"
)

// ObjKind tags the concrete shape of a heap Object, used for visitor-style
// dispatch (blacken/free/print) instead of virtual methods on a class
// hierarchy — there is no such hierarchy here, just a tagged sum.
type ObjKind int

const (
	ObjStringKind ObjKind = iota
	ObjFunctionKind
	ObjNativeKind
	ObjUpvalueKind
	ObjClosureKind
	ObjClassKind
	ObjInstanceKind
	ObjBoundMethodKind
)

// Header is embedded by every heap object. Marked is set during GC tracing;
// Next threads the object onto the heap's global allocation list for sweep.
type Header struct {
	Marked bool
	Size   int64 // bytes charged against the heap's allocation accounting
	Next   Object
}

// Object is satisfied by every heap-allocated kind.
type Object interface {
	Kind() ObjKind
	String() string
	header() *Header
}

func (h *Header) header() *Header { return h }

// MarkOf returns the embedded Header of any Object, for the GC.
func MarkOf(o Object) *Header { return o.header() }

// ---- String ------------------------------------------------------------

// ObjString is an interned, immutable string. Hash is FNV-1a over Chars.
type ObjString struct {
	Header
	Chars string
	Hash  uint32
}

func (s *ObjString) Kind() ObjKind { return ObjStringKind }
func (s *ObjString) String() string { return s.Chars }

// HashString computes the 32-bit FNV-1a hash the intern table keys on.
func HashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ---- Function ------------------------------------------------------------

// ObjFunction is immutable once the compiler finishes it.
type ObjFunction struct {
	Header
	Name         *ObjString // nil for the implicit top-level script
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
}

func (f *ObjFunction) Kind() ObjKind { return ObjFunctionKind }
func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// ---- Native ------------------------------------------------------------

// NativeFn is a host callable. It receives the argument slice and returns
// either a Value or an error (surfaced as a runtime error by the VM).
type NativeFn func(args []Value) (Value, error)

type ObjNative struct {
	Header
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *ObjNative) Kind() ObjKind { return ObjNativeKind }
func (n *ObjNative) String() string { return fmt.Sprintf("<native fn %s>", n.Name) }

// ---- Upvalue ------------------------------------------------------------

// ObjUpvalue is open while Open is true and Slot names a live VM stack slot
// (an index rather than a pointer, so it stays valid after a stack grow),
// and closed once the value has been copied into Closed. Next threads the global open-upvalue list, sorted by descending slot.
type ObjUpvalue struct {
	Header
	Slot   int // valid only while Open
	Open   bool
	Closed Value
	Next   *ObjUpvalue // open-upvalue list link (distinct from Header.Next)
}

func (u *ObjUpvalue) Kind() ObjKind  { return ObjUpvalueKind }
func (u *ObjUpvalue) String() string { return "upvalue" }

// Close copies the live value into the upvalue's own storage and marks it
// closed; callers must no longer treat Slot as meaningful afterward.
func (u *ObjUpvalue) Close(v Value) {
	u.Closed = v
	u.Open = false
}

// ---- Closure ------------------------------------------------------------

type ObjClosure struct {
	Header
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Kind() ObjKind { return ObjClosureKind }
func (c *ObjClosure) String() string { return c.Function.String() }

// ---- Class / Instance / BoundMethod --------------------------------------

type ObjClass struct {
	Header
	Name       *ObjString
	Methods    *Table // String -> Value(Closure)
	CachedInit *ObjClosure
}

func (c *ObjClass) Kind() ObjKind  { return ObjClassKind }
func (c *ObjClass) String() string { return c.Name.Chars }

type ObjInstance struct {
	Header
	Class  *ObjClass
	Fields *Table
}

func (i *ObjInstance) Kind() ObjKind  { return ObjInstanceKind }
func (i *ObjInstance) String() string { return i.Class.Name.Chars + " instance" }

type ObjBoundMethod struct {
	Header
	Receiver Value
	Method   *ObjClosure
}

func (b *ObjBoundMethod) Kind() ObjKind  { return ObjBoundMethodKind }
func (b *ObjBoundMethod) String() string { return b.Method.String() }

// IsCallable reports whether v can appear as the callee of OP_CALL/OP_INVOKE.
func IsCallable(v Value) bool {
	if v.Type != Obj || v.Obj == nil {
		return false
	}
	switch v.Obj.Kind() {
	case ObjClosureKind, ObjNativeKind, ObjClassKind, ObjBoundMethodKind:
		return true
	default:
		return false
	}
}
