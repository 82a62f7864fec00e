// Package vm is the stack-based bytecode interpreter: a CallFrame stack, a
// geometrically growing value stack, and a dispatch loop over value.OpCode
// that drives allocation through internal/heap so the same mark-sweep
// collector the compiler interns strings through also owns every object the
// running program creates.
package vm

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/estevaofon/noxlox/internal/config"
	"github.com/estevaofon/noxlox/internal/diag"
	"github.com/estevaofon/noxlox/internal/heap"
	"github.com/estevaofon/noxlox/internal/value"
)

// CallFrame is one active call's bookkeeping: its closure, instruction
// pointer, and the stack index its locals (including the callee slot)
// start at.
type CallFrame struct {
	closure *value.ObjClosure
	ip      int
	slots   int
}

// VM is the whole runtime: the stacks, the managed heap, and the global
// variable table. A VM is reusable across Interpret calls; a runtime error
// unwinds every frame and resets both stacks without tearing down the heap.
type VM struct {
	heap *heap.Heap
	cfg  config.Config
	out  io.Writer

	stack    []value.Value
	frames   []CallFrame
	globals  *value.Table
	initName *value.ObjString

	openUpvalues *value.ObjUpvalue // open list, sorted by descending slot
}

// New builds a VM over h, tuned by cfg, writing `print` output to out. It
// registers itself as a permanent GC root marker for the lifetime of the VM.
func New(h *heap.Heap, cfg config.Config, out io.Writer) *VM {
	vm := &VM{
		heap:    h,
		cfg:     cfg,
		out:     out,
		stack:   make([]value.Value, 0, cfg.StackMax),
		frames:  make([]CallFrame, 0, cfg.FramesMax),
		globals: value.NewTable(),
	}
	vm.initName = h.InternString("init")
	h.AddRootMarker(vm.markRoots)
	vm.defineNatives()
	return vm
}

func (vm *VM) markRoots(h *heap.Heap) {
	for _, v := range vm.stack {
		h.MarkValue(v)
	}
	for _, f := range vm.frames {
		h.MarkObject(f.closure)
	}
	vm.globals.Each(func(k *value.ObjString, v value.Value) {
		h.MarkObject(k)
		h.MarkValue(v)
	})
	for u := vm.openUpvalues; u != nil; u = u.Next {
		h.MarkObject(u)
	}
}

func (vm *VM) defineNatives() {
	vm.defineNative("clock", 0, func(args []value.Value) (value.Value, error) {
		return value.NumberVal(float64(time.Now().UnixNano()) / 1e9), nil
	})
}

func (vm *VM) defineNative(name string, arity int, fn value.NativeFn) {
	n := vm.heap.NewNative(name, arity, fn)
	vm.globals.Set(vm.heap.InternString(name), value.ObjVal(n))
}

// Interpret runs fn (the top-level script function produced by
// compiler.Compile) to completion.
func (vm *VM) Interpret(fn *value.ObjFunction) (diag.Result, error) {
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.openUpvalues = nil

	closure := vm.heap.NewClosure(fn)
	vm.push(value.ObjVal(closure))
	if _, err := vm.call(closure, 0); err != nil {
		return diag.RuntimeErrorResult, err
	}

	if err := vm.run(); err != nil {
		vm.stack = vm.stack[:0]
		vm.frames = vm.frames[:0]
		vm.openUpvalues = nil
		return diag.RuntimeErrorResult, err
	}
	return diag.OK, nil
}

// ---- stack primitives -------------------------------------------------------

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() value.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[len(vm.stack)-1-distance]
}

// ---- the interpreter loop ---------------------------------------------------

func (vm *VM) run() error {
	frame := &vm.frames[len(vm.frames)-1]
	chunk := frame.closure.Function.Chunk

	readByte := func() byte {
		b := chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() int {
		hi, lo := chunk.Code[frame.ip], chunk.Code[frame.ip+1]
		frame.ip += 2
		return int(hi)<<8 | int(lo)
	}
	readConstant := func() value.Value {
		return chunk.Constants[readByte()]
	}
	readConstantLong := func() value.Value {
		idx := int(readByte())<<16 | int(readByte())<<8 | int(readByte())
		return chunk.Constants[idx]
	}
	readString := func() *value.ObjString { return readConstant().Obj.(*value.ObjString) }

	for {
		op := value.OpCode(readByte())
		switch op {
		case value.OpConstant:
			vm.push(readConstant())
		case value.OpConstantLong:
			vm.push(readConstantLong())
		case value.OpNil:
			vm.push(value.NilValue)
		case value.OpTrue:
			vm.push(value.BoolVal(true))
		case value.OpFalse:
			vm.push(value.BoolVal(false))
		case value.OpDup:
			vm.push(vm.peek(0))
		case value.OpPop:
			vm.pop()

		case value.OpGetLocal:
			slot := frame.slots + int(readByte())
			vm.push(vm.stack[slot])
		case value.OpSetLocal:
			slot := frame.slots + int(readByte())
			vm.stack[slot] = vm.peek(0)

		case value.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case value.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case value.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case value.OpGetUpvalue:
			idx := readByte()
			up := frame.closure.Upvalues[idx]
			if up.Open {
				vm.push(vm.stack[up.Slot])
			} else {
				vm.push(up.Closed)
			}
		case value.OpSetUpvalue:
			idx := readByte()
			up := frame.closure.Upvalues[idx]
			if up.Open {
				vm.stack[up.Slot] = vm.peek(0)
			} else {
				up.Closed = vm.peek(0)
			}
		case value.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case value.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.BoolVal(value.Equal(a, b)))
		case value.OpGreater:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.BoolVal(a > b) }); err != nil {
				return err
			}
		case value.OpLess:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.BoolVal(a < b) }); err != nil {
				return err
			}
		case value.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case value.OpSubtract:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.NumberVal(a - b) }); err != nil {
				return err
			}
		case value.OpMultiply:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.NumberVal(a * b) }); err != nil {
				return err
			}
		case value.OpDivide:
			if err := vm.numericBinary(func(a, b float64) value.Value { return value.NumberVal(a / b) }); err != nil {
				return err
			}
		case value.OpModulo:
			if err := vm.numericBinary(func(a, b float64) value.Value {
				ia := math.Floor(a + 0.5)
				ib := math.Floor(b + 0.5)
				return value.NumberVal(math.Mod(ia, ib))
			}); err != nil {
				return err
			}
		case value.OpNot:
			vm.push(value.BoolVal(vm.pop().IsFalsey()))
		case value.OpNegate:
			if vm.peek(0).Type != value.Number {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.NumberVal(-vm.pop().Number))

		case value.OpPrint:
			fmt.Fprintln(vm.out, vm.pop().String())

		case value.OpJump:
			offset := readShort()
			frame.ip += offset
		case value.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case value.OpJumpIfTrue:
			offset := readShort()
			if !vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case value.OpLoop:
			offset := readShort()
			frame.ip -= offset

		case value.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[len(vm.frames)-1]
			chunk = frame.closure.Function.Chunk

		case value.OpInvoke:
			method := readString()
			argCount := int(readByte())
			if err := vm.invoke(method, argCount); err != nil {
				return err
			}
			frame = &vm.frames[len(vm.frames)-1]
			chunk = frame.closure.Function.Chunk

		case value.OpSuperInvoke:
			method := readString()
			argCount := int(readByte())
			superclass := vm.pop().Obj.(*value.ObjClass)
			if err := vm.invokeFromClass(superclass, method, argCount); err != nil {
				return err
			}
			frame = &vm.frames[len(vm.frames)-1]
			chunk = frame.closure.Function.Chunk

		case value.OpClosure:
			fn := readConstant().Obj.(*value.ObjFunction)
			closure := vm.heap.NewClosure(fn)
			vm.push(value.ObjVal(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slots + int(index))
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case value.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slots)
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				vm.pop()
				return nil
			}
			vm.stack = vm.stack[:frame.slots]
			vm.push(result)
			frame = &vm.frames[len(vm.frames)-1]
			chunk = frame.closure.Function.Chunk

		case value.OpClass:
			name := readString()
			vm.push(value.ObjVal(vm.heap.NewClass(name)))

		case value.OpInherit:
			superclass := vm.peek(1)
			if superclass.Type != value.Obj {
				return vm.runtimeError("Superclass must be a class.")
			}
			super, ok := superclass.Obj.(*value.ObjClass)
			if !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			sub := vm.peek(0).Obj.(*value.ObjClass)
			sub.Methods.AddAll(super.Methods)
			vm.pop() // subclass

		case value.OpMethod:
			name := readString()
			vm.defineMethod(name)

		case value.OpGetProperty:
			name := readString()
			receiver := vm.peek(0)
			inst, ok := receiver.Obj.(*value.ObjInstance)
			if receiver.Type != value.Obj || !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop()
				vm.push(v)
				break
			}
			if err := vm.bindMethod(inst.Class, name); err != nil {
				return err
			}

		case value.OpSetProperty:
			name := readString()
			receiver := vm.peek(1)
			inst, ok := receiver.Obj.(*value.ObjInstance)
			if receiver.Type != value.Obj || !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case value.OpGetSuper:
			name := readString()
			superclass := vm.pop().Obj.(*value.ObjClass)
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(op))
		}
	}
}

// ---- arithmetic helpers ------------------------------------------------------

func (vm *VM) numericBinary(op func(a, b float64) value.Value) error {
	b := vm.peek(0)
	a := vm.peek(1)
	if a.Type != value.Number || b.Type != value.Number {
		return vm.runtimeError("Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	vm.push(op(a.Number, b.Number))
	return nil
}

func (vm *VM) add() error {
	b := vm.peek(0)
	a := vm.peek(1)
	switch {
	case a.Type == value.Number && b.Type == value.Number:
		vm.pop()
		vm.pop()
		vm.push(value.NumberVal(a.Number + b.Number))
	case value.IsObjType(a, value.ObjStringKind) && value.IsObjType(b, value.ObjStringKind):
		vm.pop()
		vm.pop()
		as := a.Obj.(*value.ObjString)
		bs := b.Obj.(*value.ObjString)
		vm.push(value.ObjVal(vm.heap.InternString(as.Chars + bs.Chars)))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

// ---- calls --------------------------------------------------------------------

func (vm *VM) callValue(callee value.Value, argCount int) error {
	if callee.Type != value.Obj || callee.Obj == nil {
		return vm.runtimeError("Can only call functions and classes.")
	}
	switch obj := callee.Obj.(type) {
	case *value.ObjClosure:
		_, err := vm.call(obj, argCount)
		return err
	case *value.ObjNative:
		if argCount != obj.Arity {
			return vm.runtimeError("Expected %d arguments but got %d.", obj.Arity, argCount)
		}
		args := vm.stack[len(vm.stack)-argCount:]
		result, err := obj.Fn(args)
		if err != nil {
			return vm.runtimeError("%s", err.Error())
		}
		vm.stack = vm.stack[:len(vm.stack)-argCount-1]
		vm.push(result)
		return nil
	case *value.ObjClass:
		inst := vm.heap.NewInstance(obj)
		vm.stack[len(vm.stack)-argCount-1] = value.ObjVal(inst)
		if obj.CachedInit != nil {
			_, err := vm.call(obj.CachedInit, argCount)
			return err
		}
		if argCount != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		}
		return nil
	case *value.ObjBoundMethod:
		vm.stack[len(vm.stack)-argCount-1] = obj.Receiver
		_, err := vm.call(obj.Method, argCount)
		return err
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

func (vm *VM) call(closure *value.ObjClosure, argCount int) (bool, error) {
	fn := closure.Function
	if argCount != fn.Arity {
		return false, vm.runtimeError("Expected %d arguments but got %d.", fn.Arity, argCount)
	}
	if len(vm.frames) == vm.cfg.FramesMax {
		return false, vm.runtimeError("Stack overflow.")
	}
	vm.frames = append(vm.frames, CallFrame{
		closure: closure,
		slots:   len(vm.stack) - argCount - 1,
	})
	return true, nil
}

func (vm *VM) invoke(name *value.ObjString, argCount int) error {
	receiver := vm.peek(argCount)
	if receiver.Type != value.Obj {
		return vm.runtimeError("Only instances have methods.")
	}
	inst, ok := receiver.Obj.(*value.ObjInstance)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if v, ok := inst.Fields.Get(name); ok {
		vm.stack[len(vm.stack)-argCount-1] = v
		return vm.callValue(v, argCount)
	}
	return vm.invokeFromClass(inst.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *value.ObjClass, name *value.ObjString, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	_, err := vm.call(method.Obj.(*value.ObjClosure), argCount)
	return err
}

func (vm *VM) bindMethod(class *value.ObjClass, name *value.ObjString) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method.Obj.(*value.ObjClosure))
	vm.pop()
	vm.push(value.ObjVal(bound))
	return nil
}

func (vm *VM) defineMethod(name *value.ObjString) {
	method := vm.peek(0)
	class := vm.peek(1).Obj.(*value.ObjClass)
	class.Methods.Set(name, method)
	if name == vm.initName {
		class.CachedInit = method.Obj.(*value.ObjClosure)
	}
	vm.pop()
}

// ---- upvalues -----------------------------------------------------------------

// captureUpvalue returns an open upvalue over the given absolute stack slot,
// reusing one already open over that slot if the list (kept sorted by
// descending slot) already has it.
func (vm *VM) captureUpvalue(slot int) *value.ObjUpvalue {
	var prev *value.ObjUpvalue
	cur := vm.openUpvalues
	for cur != nil && cur.Slot > slot {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.Slot == slot {
		return cur
	}

	created := vm.heap.NewUpvalue(slot)
	created.Next = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above lastSlot, copying the
// live stack value into the upvalue's own storage.
func (vm *VM) closeUpvalues(lastSlot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= lastSlot {
		u := vm.openUpvalues
		u.Close(vm.stack[u.Slot])
		vm.openUpvalues = u.Next
	}
}

// ---- errors --------------------------------------------------------------------

// runtimeError builds a diag.RuntimeError whose trace walks every active
// frame, newest first, the way the teacher's [file:line] reporting walks
// its own chunk/ip pair but carrying a full frame list instead of just one.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)
	trace := make([]diag.Frame, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := vm.frames[i]
		fn := f.closure.Function
		line := fn.Chunk.GetLine(f.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		trace = append(trace, diag.Frame{Line: line, Name: name})
	}
	return &diag.RuntimeError{Message: message, Trace: trace}
}
