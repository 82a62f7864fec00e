package heap_test

import (
	"testing"

	"github.com/estevaofon/noxlox/internal/heap"
	"github.com/estevaofon/noxlox/internal/value"
)

func TestInternStringDeduplicates(t *testing.T) {
	h := heap.New(1<<20, 2.0, false, nil)
	a := h.InternString("repeat")
	b := h.InternString("repeat")
	if a != b {
		t.Fatalf("expected the same *ObjString for equal contents")
	}
	if h.Live() != 1 {
		t.Errorf("expected exactly one live string, got %d", h.Live())
	}
}

func TestGCCollectsUnreachableObjects(t *testing.T) {
	h := heap.New(1<<20, 2.0, false, nil)
	h.InternString("garbage")
	if h.Live() != 1 {
		t.Fatalf("expected one live object before collection")
	}

	h.CollectNow()
	if h.Live() != 0 {
		t.Errorf("expected the unreferenced string to be swept, got %d live", h.Live())
	}
}

func TestGCPreservesRootedObjects(t *testing.T) {
	h := heap.New(1<<20, 2.0, false, nil)
	s := h.InternString("kept")

	remove := h.AddRootMarker(func(h *heap.Heap) {
		h.MarkObject(s)
	})
	defer remove()

	h.CollectNow()
	if h.Live() != 1 {
		t.Errorf("expected the rooted string to survive, got %d live", h.Live())
	}
}

func TestGCIsIdempotentOnSecondCollection(t *testing.T) {
	h := heap.New(1<<20, 2.0, false, nil)
	h.InternString("once")
	h.CollectNow()
	before := h.Live()
	h.CollectNow()
	if h.Live() != before {
		t.Errorf("expected a second immediate collection to change nothing: before=%d after=%d", before, h.Live())
	}
}

func TestRemovedRootMarkerStopsProtectingItsObjects(t *testing.T) {
	h := heap.New(1<<20, 2.0, false, nil)
	s := h.InternString("temp")

	remove := h.AddRootMarker(func(h *heap.Heap) {
		h.MarkObject(s)
	})
	remove()

	h.CollectNow()
	if h.Live() != 0 {
		t.Errorf("expected no live objects once the root marker was removed, got %d", h.Live())
	}
}

func TestFunctionObjectKeepsItsConstantsAlive(t *testing.T) {
	h := heap.New(1<<20, 2.0, false, nil)
	fn := h.NewFunction()
	name := h.InternString("inner")
	fn.Name = name
	fn.Chunk.AddConstant(value.ObjVal(h.InternString("constant")))

	remove := h.AddRootMarker(func(h *heap.Heap) {
		h.MarkObject(fn)
	})
	defer remove()

	h.CollectNow()
	if h.Live() != 3 {
		t.Errorf("expected function + name + constant string to survive (3 live), got %d", h.Live())
	}
}

func TestStressGCCollectsOnEveryAllocation(t *testing.T) {
	h := heap.New(1<<20, 2.0, true, nil)
	for i := 0; i < 10; i++ {
		h.InternString(string(rune('a' + i)))
	}
	// With stressGC on and nothing rooted, each new allocation triggers a
	// collection that sweeps everything allocated before it.
	if h.Live() != 1 {
		t.Errorf("expected only the most recent allocation to survive stress GC, got %d", h.Live())
	}
}
