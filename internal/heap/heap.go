// Package heap is the managed object heap: the global allocation list, the
// string intern table, and the precise mark-sweep tracing collector that
// walks them (spec §4.6). It is factored out of package vm so the
// single-pass compiler can intern strings (identifier names, string
// literals, function names) through the very same table the VM reads at
// run time, and so both the compiler and the VM can register themselves as
// GC roots for the lifetime of their own work (spec §9: "bundle these into
// a single VM context value threaded explicitly").
package heap

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"golang.org/x/exp/slices"

	"github.com/estevaofon/noxlox/internal/value"
)

// Heap owns every managed object and the string intern table.
type Heap struct {
	Strings *value.Table

	objects        value.Object
	bytesAllocated int64
	nextGC         int64
	growFactor     float64
	stressGC       bool

	logWriter io.Writer // nil disables GC logging

	// rootMarkers are called, in registration order, at the start of every
	// collection. The VM registers one permanently for its stack/frames/
	// globals/open-upvalues; the compiler registers one for the duration
	// of a single Compile call, for its in-progress Compiler chain.
	rootMarkers []func(h *Heap)

	gray []value.Object
}

// New creates an empty heap tuned by the given initial threshold, growth
// factor, stress flag, and optional GC log writer (nil to disable logging).
func New(initialNextGC int64, growFactor float64, stressGC bool, logWriter io.Writer) *Heap {
	return &Heap{
		Strings:    value.NewTable(),
		nextGC:     initialNextGC,
		growFactor: growFactor,
		stressGC:   stressGC,
		logWriter:  logWriter,
	}
}

// BytesAllocated reports current live-object accounting (for tests/metrics).
func (h *Heap) BytesAllocated() int64 { return h.bytesAllocated }

// NextGC reports the next collection threshold (for tests/metrics).
func (h *Heap) NextGC() int64 { return h.nextGC }

// AddRootMarker registers fn to be called at the start of every collection
// and returns a function that unregisters it.
func (h *Heap) AddRootMarker(fn func(h *Heap)) (remove func()) {
	h.rootMarkers = append(h.rootMarkers, fn)
	idx := len(h.rootMarkers) - 1
	return func() {
		h.rootMarkers = slices.Delete(h.rootMarkers, idx, idx+1)
	}
}

// Track registers a freshly allocated object on the heap's allocation list,
// charges size bytes against the allocator, and may trigger a collection.
// Per spec §4.6's allocator discipline, the new object is passed as a
// transient extra root for that single collection so it survives even
// though nothing else points to it yet (it is not inserted into any table
// or pushed onto a stack until the caller does so, immediately after Track
// returns).
func (h *Heap) Track(o value.Object, size int64) value.Object {
	hdr := value.MarkOf(o)
	hdr.Size = size
	hdr.Next = h.objects
	h.objects = o

	h.bytesAllocated += size
	if h.stressGC || h.bytesAllocated > h.nextGC {
		h.collect(o)
	}
	return o
}

// InternString returns the canonical *ObjString for chars, allocating and
// interning a new one only if none already exists (spec §3: "Strings are
// interned, so string equality collapses to reference equality").
func (h *Heap) InternString(chars string) *value.ObjString {
	hash := value.HashString(chars)
	if existing := h.Strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := &value.ObjString{Chars: chars, Hash: hash}
	h.Track(s, int64(len(chars))+32)
	h.Strings.Set(s, value.NilValue)
	return s
}

// NewFunction allocates an (initially empty) function object.
func (h *Heap) NewFunction() *value.ObjFunction {
	fn := &value.ObjFunction{Chunk: value.NewChunk()}
	h.Track(fn, 64)
	return fn
}

// NewNative allocates a native (host) function object.
func (h *Heap) NewNative(name string, arity int, fn value.NativeFn) *value.ObjNative {
	n := &value.ObjNative{Name: name, Arity: arity, Fn: fn}
	h.Track(n, 32)
	return n
}

// NewClosure allocates a closure over fn with upvalueCount empty upvalue
// slots, ready for the VM's OP_CLOSURE handler to fill in.
func (h *Heap) NewClosure(fn *value.ObjFunction) *value.ObjClosure {
	cl := &value.ObjClosure{Function: fn, Upvalues: make([]*value.ObjUpvalue, fn.UpvalueCount)}
	h.Track(cl, int64(32+8*fn.UpvalueCount))
	return cl
}

// NewUpvalue allocates a new, open upvalue over the given stack slot.
func (h *Heap) NewUpvalue(slot int) *value.ObjUpvalue {
	u := &value.ObjUpvalue{Slot: slot, Open: true}
	h.Track(u, 24)
	return u
}

// NewClass allocates a class object with an empty method table.
func (h *Heap) NewClass(name *value.ObjString) *value.ObjClass {
	c := &value.ObjClass{Name: name, Methods: value.NewTable()}
	h.Track(c, 48)
	return c
}

// NewInstance allocates an instance of class with an empty field table.
func (h *Heap) NewInstance(class *value.ObjClass) *value.ObjInstance {
	i := &value.ObjInstance{Class: class, Fields: value.NewTable()}
	h.Track(i, 48)
	return i
}

// NewBoundMethod allocates a bound method closing over receiver.
func (h *Heap) NewBoundMethod(receiver value.Value, method *value.ObjClosure) *value.ObjBoundMethod {
	b := &value.ObjBoundMethod{Receiver: receiver, Method: method}
	h.Track(b, 32)
	return b
}

// MarkValue marks v's object, if it holds one.
func (h *Heap) MarkValue(v value.Value) {
	if v.Type == value.Obj && v.Obj != nil {
		h.MarkObject(v.Obj)
	}
}

// MarkObject marks o and, for non-leaf kinds, pushes it onto the gray
// worklist for later tracing.
func (h *Heap) MarkObject(o value.Object) {
	if o == nil {
		return
	}
	hdr := value.MarkOf(o)
	if hdr.Marked {
		return
	}
	hdr.Marked = true
	switch o.Kind() {
	case value.ObjStringKind, value.ObjNativeKind:
		// leaves: no outgoing references to trace
	default:
		h.gray = append(h.gray, o)
	}
}

// collect runs one full mark-sweep cycle. extra, if non-nil, is marked as
// an additional transient root (see Track).
func (h *Heap) collect(extra value.Object) {
	before := h.bytesAllocated

	if extra != nil {
		h.MarkObject(extra)
	}
	for _, marker := range h.rootMarkers {
		marker(h)
	}
	h.trace()
	h.Strings.RemoveUnmarkedKeys()
	h.sweep()

	h.nextGC = int64(float64(h.bytesAllocated) * h.growFactor)
	if h.nextGC < 1<<10 {
		h.nextGC = 1 << 10
	}

	if h.logWriter != nil {
		fmt.Fprintf(h.logWriter, "gc: %s -> %s, next at %s\n",
			humanize.Bytes(uint64(before)), humanize.Bytes(uint64(h.bytesAllocated)),
			humanize.Bytes(uint64(h.nextGC)))
	}
}

// CollectNow forces a collection outside the normal threshold trigger
// (tests use this to assert idempotence: a second immediate call frees
// nothing).
func (h *Heap) CollectNow() { h.collect(nil) }

func (h *Heap) trace() {
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(o)
	}
}

func (h *Heap) blacken(o value.Object) {
	switch obj := o.(type) {
	case *value.ObjFunction:
		if obj.Name != nil {
			h.MarkObject(obj.Name)
		}
		for _, k := range obj.Chunk.Constants {
			h.MarkValue(k)
		}
	case *value.ObjClosure:
		h.MarkObject(obj.Function)
		for _, u := range obj.Upvalues {
			h.MarkObject(u)
		}
	case *value.ObjUpvalue:
		h.MarkValue(obj.Closed)
	case *value.ObjClass:
		h.MarkObject(obj.Name)
		obj.Methods.Each(func(k *value.ObjString, v value.Value) {
			h.MarkObject(k)
			h.MarkValue(v)
		})
		if obj.CachedInit != nil {
			h.MarkObject(obj.CachedInit)
		}
	case *value.ObjInstance:
		h.MarkObject(obj.Class)
		obj.Fields.Each(func(k *value.ObjString, v value.Value) {
			h.MarkObject(k)
			h.MarkValue(v)
		})
	case *value.ObjBoundMethod:
		h.MarkValue(obj.Receiver)
		h.MarkObject(obj.Method)
	}
}

func (h *Heap) sweep() {
	var previous value.Object
	current := h.objects
	for current != nil {
		hdr := value.MarkOf(current)
		if hdr.Marked {
			hdr.Marked = false
			previous = current
			current = hdr.Next
			continue
		}
		unreached := current
		current = hdr.Next
		if previous != nil {
			value.MarkOf(previous).Next = current
		} else {
			h.objects = current
		}
		h.bytesAllocated -= value.MarkOf(unreached).Size
	}
}

// Live reports how many objects currently survive on the allocation list
// (test/metrics helper).
func (h *Heap) Live() int {
	n := 0
	for o := h.objects; o != nil; o = value.MarkOf(o).Next {
		n++
	}
	return n
}
