package value_test

import (
	"testing"

	"github.com/estevaofon/noxlox/internal/value"
)

func TestChunkWriteByteAndGetLine(t *testing.T) {
	c := value.NewChunk()
	c.WriteByte(byte(value.OpNil), 1)
	c.WriteByte(byte(value.OpTrue), 1)
	c.WriteByte(byte(value.OpPop), 2)

	if len(c.Code) != 3 {
		t.Fatalf("expected 3 bytes, got %d", len(c.Code))
	}
	if c.GetLine(0) != 1 || c.GetLine(1) != 1 {
		t.Errorf("expected offsets 0,1 on line 1")
	}
	if c.GetLine(2) != 2 {
		t.Errorf("expected offset 2 on line 2")
	}
}

func TestChunkAddConstant(t *testing.T) {
	c := value.NewChunk()
	i0 := c.AddConstant(value.NumberVal(1))
	i1 := c.AddConstant(value.NumberVal(2))
	if i0 != 0 || i1 != 1 {
		t.Fatalf("expected sequential indices 0,1, got %d,%d", i0, i1)
	}
	if c.Constants[i0].Number != 1 || c.Constants[i1].Number != 2 {
		t.Errorf("constant pool contents mismatch")
	}
}

func TestChunkWriteConstantShortForm(t *testing.T) {
	c := value.NewChunk()
	c.WriteConstant(value.NumberVal(7), 1)
	if value.OpCode(c.Code[0]) != value.OpConstant {
		t.Fatalf("expected OP_CONSTANT for a small index, got %v", value.OpCode(c.Code[0]))
	}
	if c.Code[1] != 0 {
		t.Errorf("expected constant index 0, got %d", c.Code[1])
	}
}

func TestChunkWriteConstantLongForm(t *testing.T) {
	c := value.NewChunk()
	for i := 0; i < 300; i++ {
		c.AddConstant(value.NumberVal(float64(i)))
	}
	c.WriteConstant(value.NumberVal(999), 1)
	if value.OpCode(c.Code[0]) != value.OpConstantLong {
		t.Fatalf("expected OP_CONSTANT_LONG past 256 constants, got %v", value.OpCode(c.Code[0]))
	}
	idx := int(c.Code[1])<<16 | int(c.Code[2])<<8 | int(c.Code[3])
	if idx != 300 {
		t.Errorf("expected long-form index 300, got %d", idx)
	}
}

func TestOpCodeString(t *testing.T) {
	if value.OpAdd.String() != "OP_ADD" {
		t.Errorf("expected OP_ADD, got %s", value.OpAdd.String())
	}
}
