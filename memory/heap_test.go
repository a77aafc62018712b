package memory

import (
	"testing"

	"corekernel/ram"
)

func newTestHeap(t *testing.T, size uint32) (*Heap, *ram.Fake) {
	t.Helper()
	mem := ram.NewFake(size + 0x1000)
	h := NewHeap(mem)
	h.Init(0, size)
	return h, mem
}

func TestHeapMallocBasic(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	p := h.Malloc(64)
	if p == 0 {
		t.Fatal("expected a successful allocation")
	}
}

func TestHeapMallocZeroReturnsMinAlloc(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	p := h.Malloc(0)
	if p == 0 {
		t.Fatal("expected Malloc(0) to still succeed (treated as size 1)")
	}
	if got := h.blkSize(p - heapBlockHdr); got != heapMinAlloc {
		t.Fatalf("got block size %d for Malloc(0), want heapMinAlloc (%d)", got, heapMinAlloc)
	}
}

func TestHeapFreeThenReuseSameAddress(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	p1 := h.Malloc(32)
	h.Free(p1)
	p2 := h.Malloc(32)

	if p1 != p2 {
		t.Fatalf("expected the freed block to be reused at the same address, got %#x then %#x", p1, p2)
	}
}

func TestHeapSplitOnOversizeBlock(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	p1 := h.Malloc(32)
	p2 := h.Malloc(32)

	if p1 == 0 || p2 == 0 {
		t.Fatal("expected both allocations to succeed")
	}
	if p2 <= p1 {
		t.Fatalf("expected second allocation to come from the split remainder after the first, got %#x then %#x", p1, p2)
	}
}

func TestHeapForwardCoalesceOnFree(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	p1 := h.Malloc(32)
	p2 := h.Malloc(32)

	// Coalescing only walks forward from the block being freed, so the
	// earlier block must be freed last in order to see its successor
	// already free and merge with it.
	h.Free(p2)
	h.Free(p1)

	// After freeing both adjacent blocks, a larger allocation spanning
	// both should now fit in one coalesced block.
	p3 := h.Malloc(96)
	if p3 == 0 {
		t.Fatal("expected coalesced free blocks to satisfy a larger allocation")
	}
	if p3 != p1 {
		t.Fatalf("expected the coalesced block to start at %#x, got %#x", p1, p3)
	}
}

func TestHeapReallocPreservesContents(t *testing.T) {
	h, mem := newTestHeap(t, 4096)

	p := h.Malloc(16)
	for i := uint32(0); i < 16; i++ {
		mem.WriteU8(p+i, byte(i))
	}

	p2 := h.Realloc(p, 256)
	if p2 == 0 {
		t.Fatal("expected realloc to succeed")
	}
	for i := uint32(0); i < 16; i++ {
		if got := mem.ReadU8(p2 + i); got != byte(i) {
			t.Fatalf("byte %d: got %d, want %d", i, got, i)
		}
	}
}

func TestHeapReallocShrinkKeepsSameBlock(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	p := h.Malloc(256)
	p2 := h.Realloc(p, 16)

	if p2 != p {
		t.Fatalf("expected realloc to reuse the same block when shrinking, got %#x then %#x", p, p2)
	}
}

func TestHeapReallocNilActsAsMalloc(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	if p := h.Realloc(0, 32); p == 0 {
		t.Fatal("expected Realloc(0, n) to behave like Malloc(n)")
	}
}

func TestHeapReallocZeroActsAsFree(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	p := h.Malloc(32)
	if got := h.Realloc(p, 0); got != 0 {
		t.Fatalf("expected Realloc(p, 0) to return 0, got %#x", got)
	}
}

func TestHeapCallocZeroesMemory(t *testing.T) {
	h, mem := newTestHeap(t, 4096)
	p := h.Calloc(16, 4)
	if p == 0 {
		t.Fatal("expected calloc to succeed")
	}
	for i := uint32(0); i < 64; i++ {
		if mem.ReadU8(p+i) != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
}

func TestHeapCallocOverflowRejected(t *testing.T) {
	h, _ := newTestHeap(t, 4096)
	if p := h.Calloc(0xFFFFFFFF, 2); p != 0 {
		t.Fatalf("expected overflow to be rejected, got %#x", p)
	}
}

func TestHeapInitTooSmallLeavesEmptyHeap(t *testing.T) {
	mem := ram.NewFake(4096)
	h := NewHeap(mem)
	h.Init(0, heapBlockHdr) // far too small to hold even the header + min alloc

	if p := h.Malloc(1); p != 0 {
		t.Fatalf("expected Malloc to fail against an empty heap, got %#x", p)
	}
}
