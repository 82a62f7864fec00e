package value_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estevaofon/noxlox/internal/heap"
	"github.com/estevaofon/noxlox/internal/value"
)

func TestIsFalsey(t *testing.T) {
	cases := []struct {
		v    value.Value
		want bool
	}{
		{value.NilValue, true},
		{value.BoolVal(false), true},
		{value.BoolVal(true), false},
		{value.NumberVal(0), false},
		{value.NumberVal(1), false},
	}
	for _, c := range cases {
		if got := c.v.IsFalsey(); got != c.want {
			t.Errorf("IsFalsey(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestEqualAcrossTypes(t *testing.T) {
	assert.False(t, value.Equal(value.NumberVal(1), value.BoolVal(true)), "values of different types must never be equal")
	assert.True(t, value.Equal(value.NilValue, value.NilValue), "nil must equal nil")
	assert.False(t, value.Equal(value.NumberVal(math.NaN()), value.NumberVal(math.NaN())), "NaN must not equal NaN")
	assert.True(t, value.Equal(value.NumberVal(3), value.NumberVal(3)), "equal numbers must be equal")
}

func TestEqualStringsAreInternedPointerEquality(t *testing.T) {
	h := heap.New(1<<20, 2.0, false, nil)
	a := h.InternString("hello")
	b := h.InternString("hel" + "lo")
	require.Same(t, a, b, "expected interning to produce the same *ObjString")
	assert.True(t, value.Equal(value.ObjVal(a), value.ObjVal(b)), "interned equal strings must compare equal")
}

func TestValueString(t *testing.T) {
	cases := []struct {
		v    value.Value
		want string
	}{
		{value.NilValue, "nil"},
		{value.BoolVal(true), "true"},
		{value.BoolVal(false), "false"},
		{value.NumberVal(3), "3"},
		{value.NumberVal(3.5), "3.5"},
		{value.NumberVal(-2), "-2"},
	}
	for _, c := range cases {
		if got := c.v.String(); got != c.want {
			t.Errorf("String(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestIsObjType(t *testing.T) {
	h := heap.New(1<<20, 2.0, false, nil)
	s := h.InternString("x")
	v := value.ObjVal(s)
	assert.True(t, value.IsObjType(v, value.ObjStringKind))
	assert.False(t, value.IsObjType(value.NumberVal(1), value.ObjStringKind), "a number must never report as an object type")
}
