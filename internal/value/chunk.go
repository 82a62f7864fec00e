package value

import "fmt"

// OpCode is a single bytecode instruction.
type OpCode byte

const (
	OpConstant OpCode = iota
	OpConstantLong
	OpNil
	OpTrue
	OpFalse
	OpDup
	OpPop

	OpDefineGlobal
	OpGetGlobal
	OpSetGlobal
	OpGetLocal
	OpSetLocal
	OpGetUpvalue
	OpSetUpvalue
	OpCloseUpvalue

	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo
	OpNot
	OpNegate

	OpPrint

	OpJump
	OpJumpIfFalse
	OpJumpIfTrue
	OpLoop

	OpCall
	OpReturn
	OpClosure

	OpClass
	OpInherit
	OpMethod
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpInvoke
	OpSuperInvoke
)

var opNames = map[OpCode]string{
	OpConstant:     "OP_CONSTANT",
	OpConstantLong: "OP_CONSTANT_LONG",
	OpNil:          "OP_NIL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpDup:          "OP_DUP",
	OpPop:          "OP_POP",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpGetUpvalue:   "OP_GET_UPVALUE",
	OpSetUpvalue:   "OP_SET_UPVALUE",
	OpCloseUpvalue: "OP_CLOSE_UPVALUE",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSubtract:     "OP_SUBTRACT",
	OpMultiply:     "OP_MULTIPLY",
	OpDivide:       "OP_DIVIDE",
	OpModulo:       "OP_MODULO",
	OpNot:          "OP_NOT",
	OpNegate:       "OP_NEGATE",
	OpPrint:        "OP_PRINT",
	OpJump:         "OP_JUMP",
	OpJumpIfFalse:  "OP_JUMP_IF_FALSE",
	OpJumpIfTrue:   "OP_JUMP_IF_TRUE",
	OpLoop:         "OP_LOOP",
	OpCall:         "OP_CALL",
	OpReturn:       "OP_RETURN",
	OpClosure:      "OP_CLOSURE",
	OpClass:        "OP_CLASS",
	OpInherit:      "OP_INHERIT",
	OpMethod:       "OP_METHOD",
	OpGetProperty:  "OP_GET_PROPERTY",
	OpSetProperty:  "OP_SET_PROPERTY",
	OpGetSuper:     "OP_GET_SUPER",
	OpInvoke:       "OP_INVOKE",
	OpSuperInvoke:  "OP_SUPER_INVOKE",
}

func (op OpCode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("OP_%d", byte(op))
}

// lineRun is one run-length-encoded entry of the source-line map: `Run`
// consecutive bytes starting wherever the previous entry left off all
// belong to source Line.
type lineRun struct {
	Line int
	Run  int
}

// Chunk is a byte-addressable instruction stream plus the constant pool and
// line map for one function body.
type Chunk struct {
	Code      []byte
	Constants []Value
	lines     []lineRun
}

func NewChunk() *Chunk { return &Chunk{} }

// WriteByte appends b, extending the current line run if line matches the
// last entry, else starting a new one.
func (c *Chunk) WriteByte(b byte, line int) {
	c.Code = append(c.Code, b)
	if n := len(c.lines); n > 0 && c.lines[n-1].Line == line {
		c.lines[n-1].Run++
		return
	}
	c.lines = append(c.lines, lineRun{Line: line, Run: 1})
}

// AddConstant appends v to the constant pool and returns its index.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// WriteConstant emits OP_CONSTANT idx for idx < 256, else OP_CONSTANT_LONG
// followed by idx as three big-endian bytes (up to 2^24 constants).
func (c *Chunk) WriteConstant(v Value, line int) {
	idx := c.AddConstant(v)
	if idx < 256 {
		c.WriteByte(byte(OpConstant), line)
		c.WriteByte(byte(idx), line)
		return
	}
	c.WriteByte(byte(OpConstantLong), line)
	c.WriteByte(byte(idx>>16), line)
	c.WriteByte(byte(idx>>8), line)
	c.WriteByte(byte(idx), line)
}

// GetLine maps a byte offset back to its source line via a linear scan of
// the RLE runs. Used only by error reporting and disassembly, never by the
// hot interpreter loop.
func (c *Chunk) GetLine(offset int) int {
	remaining := offset
	for _, r := range c.lines {
		if remaining < r.Run {
			return r.Line
		}
		remaining -= r.Run
	}
	if len(c.lines) > 0 {
		return c.lines[len(c.lines)-1].Line
	}
	return 0
}
