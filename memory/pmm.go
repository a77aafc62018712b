// Package memory implements the physical frame allocator, identity-mapped
// paging, and kernel heap that sit above the boot-time memory map.
package memory

import (
	"sync"

	"corekernel/boot"
	"corekernel/hexutil"
	"corekernel/ram"
)

// PageSize is the frame size every PMM and paging operation works in units
// of.
const PageSize uint32 = 4096

// PMM is a bitmap-based physical frame allocator. One bit per frame: set
// means reserved/allocated, clear means free. The bitmap itself lives in
// the same RAM it describes, placed immediately after the kernel image.
type PMM struct {
	mem            ram.Memory
	mu             sync.Mutex
	bitmapAddr     uint32
	bitmapSize     uint32 // in uint32 words
	totalPages     uint32
	freePages      uint32
	detectedRAMTop uint32
	bitmapEnd      uint32
}

// NewPMM returns an uninitialized PMM over mem. Call Init before any
// allocation.
func NewPMM(mem ram.Memory) *PMM {
	return &PMM{mem: mem}
}

func (p *PMM) bitmapWordAddr(word uint32) uint32 {
	return p.bitmapAddr + word*4
}

func (p *PMM) bitmapTest(pageIndex uint32) bool {
	word := p.mem.ReadU32(p.bitmapWordAddr(pageIndex / 32))
	return (word>>(pageIndex%32))&1 != 0
}

func (p *PMM) bitmapSetBit(pageIndex uint32) {
	addr := p.bitmapWordAddr(pageIndex / 32)
	p.mem.WriteU32(addr, p.mem.ReadU32(addr)|(1<<(pageIndex%32)))
}

func (p *PMM) bitmapClearBit(pageIndex uint32) {
	addr := p.bitmapWordAddr(pageIndex / 32)
	p.mem.WriteU32(addr, p.mem.ReadU32(addr)&^(1<<(pageIndex%32)))
}

func (p *PMM) markReserved(startAddr, endAddr uint32) {
	startPage := startAddr / PageSize
	endPage := (endAddr + PageSize - 1) / PageSize
	if endPage > p.totalPages {
		endPage = p.totalPages
	}
	for i := startPage; i < endPage; i++ {
		if !p.bitmapTest(i) {
			p.bitmapSetBit(i)
			if p.freePages > 0 {
				p.freePages--
			}
		}
	}
}

func (p *PMM) markFree(startAddr, endAddr uint32) {
	startPage := startAddr / PageSize
	endPage := (endAddr + PageSize - 1) / PageSize
	if endPage > p.totalPages {
		endPage = p.totalPages
	}
	for i := startPage; i < endPage; i++ {
		if p.bitmapTest(i) {
			p.bitmapClearBit(i)
			p.freePages++
		}
	}
}

// Init places the bitmap just past kernelEnd, sizes it from the memory
// map's highest available address, reserves [0, 1MiB) plus the kernel
// image and bitmap region, and frees every available range the bootloader
// reported. It returns the detected top of RAM, or 0 if the bootloader
// supplied no usable memory map.
func (p *PMM) Init(kernelEnd uint32, info *boot.Info) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ramTopScan uint32
	if info.ScanMmap(func(base, length uint32, available bool) {
		if !available || length == 0 {
			return
		}
		if top := base + length; top > ramTopScan {
			ramTopScan = top
		}
	}) == 0 {
		return 0
	}

	p.detectedRAMTop = ramTopScan &^ (PageSize - 1)
	if p.detectedRAMTop == 0 {
		return 0
	}

	p.totalPages = p.detectedRAMTop / PageSize
	p.bitmapSize = (p.totalPages + 31) / 32
	p.bitmapAddr = kernelEnd

	for i := uint32(0); i < p.bitmapSize; i++ {
		p.mem.WriteU32(p.bitmapWordAddr(i), 0xFFFFFFFF)
	}

	p.freePages = 0
	info.ScanMmap(func(base, length uint32, available bool) {
		if !available || length == 0 {
			return
		}
		p.markFree(base, base+length)
	})

	bitmapBytes := p.bitmapSize * 4
	bitmapEnd := kernelEnd + bitmapBytes
	p.bitmapEnd = (bitmapEnd + PageSize - 1) &^ (PageSize - 1)

	p.markReserved(0x00000000, 0x00100000)
	p.markReserved(0x00100000, p.bitmapEnd)

	return p.detectedRAMTop
}

// AllocPage finds and reserves the first free frame, returning its
// physical address, or 0 if RAM is exhausted.
func (p *PMM) AllocPage() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := uint32(0); i < p.bitmapSize; i++ {
		if p.mem.ReadU32(p.bitmapWordAddr(i)) == 0xFFFFFFFF {
			continue
		}
		for bit := uint32(0); bit < 32; bit++ {
			pageIndex := i*32 + bit
			if pageIndex >= p.totalPages {
				return 0
			}
			if !p.bitmapTest(pageIndex) {
				p.bitmapSetBit(pageIndex)
				if p.freePages > 0 {
					p.freePages--
				}
				return pageIndex * PageSize
			}
		}
	}
	return 0
}

// FreePage releases a previously allocated frame. Unaligned addresses,
// out-of-range addresses, and double-frees are silently ignored.
func (p *PMM) FreePage(addr uint32) {
	if addr&(PageSize-1) != 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pageIndex := addr / PageSize
	if pageIndex >= p.totalPages {
		return
	}
	if p.bitmapTest(pageIndex) {
		p.bitmapClearBit(pageIndex)
		p.freePages++
	}
}

// AllocContiguous reserves the first run of count contiguous free frames,
// returning the physical address of the run's first frame, or 0 if count
// is 0 or no sufficiently large run exists.
func (p *PMM) AllocContiguous(count uint32) uint32 {
	if count == 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var runStart, runLength uint32
	for i := uint32(0); i < p.totalPages; i++ {
		if p.bitmapTest(i) {
			runLength = 0
			runStart = i + 1
			continue
		}
		runLength++
		if runLength == count {
			for j := runStart; j < runStart+count; j++ {
				p.bitmapSetBit(j)
				if p.freePages > 0 {
					p.freePages--
				}
			}
			return runStart * PageSize
		}
	}
	return 0
}

// TotalPages returns the total frame count RAM was divided into.
func (p *PMM) TotalPages() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalPages
}

// FreePages returns the number of currently unallocated frames.
func (p *PMM) FreePages() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freePages
}

// BitmapEnd returns the page-aligned physical address just past the
// bitmap's reserved region; callers place the next structure (page
// directory, heap) starting here or later.
func (p *PMM) BitmapEnd() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bitmapEnd
}

// DumpStats writes a one-line total/free frame summary to w, mirroring the
// original firmware's diagnostic dump.
func (p *PMM) DumpStats(w interface{ Write([]byte) (int, error) }) {
	w.Write([]byte("[pmm] total="))
	w.Write([]byte(hexutil.Format32(p.TotalPages())))
	w.Write([]byte(", free="))
	w.Write([]byte(hexutil.Format32(p.FreePages())))
	w.Write([]byte("\n"))
}
