// Package value defines the tagged runtime Value union together with the
// managed heap object kinds (String, Function, Native, Upvalue, Closure,
// Class, Instance, BoundMethod) and the bytecode Chunk that Functions own.
//
// Value and Chunk live in one package rather than two: a Chunk's constant
// pool holds Values and an ObjFunction holds a Chunk, so splitting them
// would force an import cycle (the teacher's own value.go works around
// exactly this by punning the Chunk field to interface{} — see
// ObjFunction.Chunk there). Keeping them together resolves it properly.
package value

import "fmt"

// Type tags a Value's active representation.
type Type int

const (
	Nil Type = iota
	Bool
	Number
	Obj
)

// Value is a small tagged union. Only the field matching Type is meaningful.
type Value struct {
	Type   Type
	Bool   bool
	Number float64
	Obj    Object
}

// Nil singleton.
var NilValue = Value{Type: Nil}

func BoolVal(b bool) Value   { return Value{Type: Bool, Bool: b} }
func NumberVal(n float64) Value { return Value{Type: Number, Number: n} }
func ObjVal(o Object) Value  { return Value{Type: Obj, Obj: o} }

// IsFalsey reports whether v is falsey: nil and false are falsey, everything
// else — including 0, "", and empty instances — is truthy.
func (v Value) IsFalsey() bool {
	switch v.Type {
	case Nil:
		return true
	case Bool:
		return !v.Bool
	default:
		return false
	}
}

// Equal implements Value equality per spec §3: same tag, and
// nil==nil, bool==bool, number bitwise-double equality (NaN != NaN), object
// references equal iff identical (strings are interned so this collapses
// string equality to pointer equality).
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case Nil:
		return true
	case Bool:
		return a.Bool == b.Bool
	case Number:
		return a.Number == b.Number
	case Obj:
		return a.Obj == b.Obj
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Type {
	case Nil:
		return "nil"
	case Bool:
		if v.Bool {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(v.Number)
	case Obj:
		if v.Obj == nil {
			return "nil"
		}
		return v.Obj.String()
	default:
		return "<invalid value>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) && n < 1e15 && n > -1e15 {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

// IsObjType reports whether v holds an object of the given kind.
func IsObjType(v Value, kind ObjKind) bool {
	return v.Type == Obj && v.Obj != nil && v.Obj.Kind() == kind
}
