package memory

import (
	"corekernel/hexutil"
	"corekernel/ram"
)

const (
	heapAlign     uint32 = 8
	heapMinAlloc  uint32 = 8
	heapBlockHdr  uint32 = 12 // size(4) + isFree(4) + next(4)
	heapNullBlock uint32 = 0xFFFFFFFF
)

// block field offsets within a header, relative to the block's own address.
const (
	blkOffSize   = 0
	blkOffFree   = 4
	blkOffNext   = 8
)

// Heap is a first-fit, segregated-free-list-free single-list allocator over
// a byte arena in RAM. Every live and free block carries an in-band header;
// blocks are identified by their absolute address in mem rather than a Go
// pointer, since the arena is just another region of flat physical memory.
type Heap struct {
	mem  ram.Memory
	head uint32 // heapNullBlock when empty
	size uint32
}

// NewHeap returns an uninitialized heap over mem. Call Init before any
// allocation.
func NewHeap(mem ram.Memory) *Heap {
	return &Heap{mem: mem, head: heapNullBlock}
}

func alignUp(v, align uint32) uint32 {
	return (v + align - 1) &^ (align - 1)
}

// Init carves [base, base+sizeBytes) into the heap's single free block,
// after aligning base up to heapAlign. If what remains after alignment
// can't hold a header plus the minimum allocation, the heap is left empty.
func (h *Heap) Init(base, sizeBytes uint32) {
	aligned := alignUp(base, heapAlign)
	shrink := aligned - base

	if sizeBytes < shrink+heapBlockHdr+heapMinAlloc {
		h.head = heapNullBlock
		h.size = 0
		return
	}

	sizeBytes -= shrink
	h.head = aligned
	h.mem.WriteU32(aligned+blkOffSize, sizeBytes-heapBlockHdr)
	h.mem.WriteU32(aligned+blkOffFree, 1)
	h.mem.WriteU32(aligned+blkOffNext, heapNullBlock)
	h.size = sizeBytes
}

func (h *Heap) blkSize(blk uint32) uint32   { return h.mem.ReadU32(blk + blkOffSize) }
func (h *Heap) blkFree(blk uint32) bool     { return h.mem.ReadU32(blk+blkOffFree) != 0 }
func (h *Heap) blkNext(blk uint32) uint32   { return h.mem.ReadU32(blk + blkOffNext) }

func (h *Heap) setBlkSize(blk, v uint32) { h.mem.WriteU32(blk+blkOffSize, v) }
func (h *Heap) setBlkFree(blk uint32, free bool) {
	var v uint32
	if free {
		v = 1
	}
	h.mem.WriteU32(blk+blkOffFree, v)
}
func (h *Heap) setBlkNext(blk, v uint32) { h.mem.WriteU32(blk+blkOffNext, v) }

// Malloc reserves at least size bytes (rounded up to heapAlign, floored at
// heapMinAlloc) from the first free block large enough to hold it,
// splitting off the remainder when there's enough room for another block.
// Returns the data pointer (just past the header), or 0 if no free block
// fits or the heap was never initialized.
func (h *Heap) Malloc(size uint32) uint32 {
	if h.head == heapNullBlock && h.size == 0 {
		return 0
	}
	if size == 0 {
		size = 1
	}

	req := alignUp(size, heapAlign)
	if req < heapMinAlloc {
		req = heapMinAlloc
	}

	for blk := h.head; blk != heapNullBlock; blk = h.blkNext(blk) {
		if !h.blkFree(blk) || h.blkSize(blk) < req {
			continue
		}

		if h.blkSize(blk) >= req+heapBlockHdr+heapMinAlloc {
			newBlk := blk + heapBlockHdr + req
			h.setBlkSize(newBlk, h.blkSize(blk)-req-heapBlockHdr)
			h.setBlkFree(newBlk, true)
			h.setBlkNext(newBlk, h.blkNext(blk))

			h.setBlkSize(blk, req)
			h.setBlkNext(blk, newBlk)
		}

		h.setBlkFree(blk, false)
		return blk + heapBlockHdr
	}

	return 0
}

// Free marks ptr's block free and coalesces forward with any immediately
// following, now-adjacent free block. A 0 pointer is a no-op.
func (h *Heap) Free(ptr uint32) {
	if ptr == 0 {
		return
	}
	blk := ptr - heapBlockHdr
	h.setBlkFree(blk, true)

	for {
		next := h.blkNext(blk)
		if next == heapNullBlock || !h.blkFree(next) {
			break
		}
		blkEnd := blk + heapBlockHdr + h.blkSize(blk)
		if blkEnd != next {
			break
		}
		h.setBlkSize(blk, h.blkSize(blk)+heapBlockHdr+h.blkSize(next))
		h.setBlkNext(blk, h.blkNext(next))
	}
}

// Calloc allocates count*size bytes, zeroed, failing (returning 0) on
// multiplication overflow.
func (h *Heap) Calloc(count, size uint32) uint32 {
	if count != 0 && size > 0xFFFFFFFF/count {
		return 0
	}
	total := count * size
	p := h.Malloc(total)
	if p == 0 {
		return 0
	}
	for i := uint32(0); i < total; i++ {
		h.mem.WriteU8(p+i, 0)
	}
	return p
}

// Realloc resizes ptr's allocation to newSize, reusing the block in place
// when it already has enough room, and copying into a fresh allocation
// otherwise. ptr == 0 behaves like Malloc; newSize == 0 behaves like Free.
func (h *Heap) Realloc(ptr, newSize uint32) uint32 {
	if ptr == 0 {
		return h.Malloc(newSize)
	}
	if newSize == 0 {
		h.Free(ptr)
		return 0
	}

	blk := ptr - heapBlockHdr
	if h.blkSize(blk) >= newSize {
		return ptr
	}

	newPtr := h.Malloc(newSize)
	if newPtr == 0 {
		return 0
	}

	copySize := h.blkSize(blk)
	for i := uint32(0); i < copySize; i++ {
		h.mem.WriteU8(newPtr+i, h.mem.ReadU8(ptr+i))
	}
	h.Free(ptr)
	return newPtr
}

// Dump writes a block-by-block listing of the heap to w, mirroring the
// original firmware's diagnostic dump.
func (h *Heap) Dump(w interface{ Write([]byte) (int, error) }) {
	w.Write([]byte("[heap] dump size="))
	w.Write([]byte(hexutil.Format32(h.size)))
	w.Write([]byte("\n"))

	for blk := h.head; blk != heapNullBlock; blk = h.blkNext(blk) {
		w.Write([]byte("  blk "))
		w.Write([]byte(hexutil.Format32(blk)))
		w.Write([]byte(" size="))
		w.Write([]byte(hexutil.Format32(h.blkSize(blk))))
		if h.blkFree(blk) {
			w.Write([]byte(" free\n"))
		} else {
			w.Write([]byte(" used\n"))
		}
	}
}
