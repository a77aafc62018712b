package memory

import (
	"corekernel/hexutil"
	"corekernel/ram"
)

const (
	// maxIdentityMap caps how much of detected RAM gets identity-mapped;
	// spec bounds this core to small/medium machines.
	maxIdentityMap uint32 = 256 * 1024 * 1024

	pteFlagPresent  uint32 = 1 << 0
	pteFlagWritable uint32 = 1 << 1

	pteAddrMask uint32 = 0xFFFFF000

	// RecursivePDIndex is the page-directory slot that maps back to the
	// directory itself, the standard x86 self-map trick. This model's RAM
	// is addressed physically throughout (there is no CPU enforcing
	// virtual translation), so Paging reaches page tables directly by the
	// physical address recorded in each PD entry rather than through the
	// 0xFFFFF000/0xFFC00000 recursive virtual windows a real paged kernel
	// would have to use once CR0.PG is set. The recursive slot is still
	// installed with the same value a real directory would carry, so the
	// self-map invariant holds either way.
	RecursivePDIndex uint32 = 1023
)

// Paging owns the page directory and all page tables it references, built
// entirely out of frames drawn from a PMM.
type Paging struct {
	mem    ram.Memory
	pmm    *PMM
	pdPhys uint32
	mapTop uint32
}

// NewPaging returns an uninitialized Paging bound to mem and pmm. Call Init
// before any MapPage/UnmapPage.
func NewPaging(mem ram.Memory, pmm *PMM) *Paging {
	return &Paging{mem: mem, pmm: pmm}
}

func (pg *Paging) zeroPage(phys uint32) {
	for i := uint32(0); i < PageSize; i += 4 {
		pg.mem.WriteU32(phys+i, 0)
	}
}

// identityMapTop caps ramTop at maxIdentityMap.
func identityMapTop(ramTop uint32) uint32 {
	if ramTop > maxIdentityMap {
		return maxIdentityMap
	}
	return ramTop
}

// Init builds an identity-mapped page directory covering
// [0, identityMapTop(ramTop)), installs the recursive self-map slot, and
// loads CR3/sets CR0.PG via the loadCR3 and setPagingEnable callbacks (each
// skipped when nil). It returns false if the PMM could not
// supply a frame for the directory or a page table.
func (pg *Paging) Init(ramTop uint32, loadCR3 func(uint32), setPagingEnable func()) bool {
	mapTop := identityMapTop(ramTop)

	pdPhys := pg.pmm.AllocPage()
	if pdPhys == 0 {
		return false
	}
	pg.zeroPage(pdPhys)

	for pdIndex := uint32(0); pdIndex*0x400000 < mapTop; pdIndex++ {
		ptPhys := pg.pmm.AllocPage()
		if ptPhys == 0 {
			return false
		}
		pg.zeroPage(ptPhys)

		baseAddr := pdIndex * 0x400000
		for ptEntry := uint32(0); ptEntry < 1024; ptEntry++ {
			phys := baseAddr + ptEntry*PageSize
			if phys >= mapTop {
				break
			}
			pg.mem.WriteU32(ptPhys+ptEntry*4, phys|pteFlagPresent|pteFlagWritable)
		}

		pg.mem.WriteU32(pdPhys+pdIndex*4, ptPhys|pteFlagPresent|pteFlagWritable)
	}

	pg.mem.WriteU32(pdPhys+RecursivePDIndex*4, pdPhys|pteFlagPresent|pteFlagWritable)

	pg.pdPhys = pdPhys
	pg.mapTop = mapTop

	if loadCR3 != nil {
		loadCR3(pdPhys)
	}
	if setPagingEnable != nil {
		setPagingEnable()
	}
	return true
}

// PageDirectoryPhys returns the physical address of the page directory
// built by Init.
func (pg *Paging) PageDirectoryPhys() uint32 { return pg.pdPhys }

// MapTop returns the exclusive upper bound of the identity-mapped range.
func (pg *Paging) MapTop() uint32 { return pg.mapTop }

func pdPtIndex(vaddr uint32) (pdIndex, ptIndex uint32) {
	return (vaddr >> 22) & 0x3FF, (vaddr >> 12) & 0x3FF
}

// MapPage installs a mapping from vaddr to paddr with the given PTE flags
// (PRESENT is implied), allocating a new page table from the PMM if the
// covering PD entry isn't present yet. Returns false if a page table frame
// could not be allocated.
func (pg *Paging) MapPage(vaddr, paddr, flags uint32) bool {
	pdIndex, ptIndex := pdPtIndex(vaddr)

	pde := pg.mem.ReadU32(pg.pdPhys + pdIndex*4)
	var ptPhys uint32
	if pde&pteFlagPresent == 0 {
		ptPhys = pg.pmm.AllocPage()
		if ptPhys == 0 {
			return false
		}
		pg.zeroPage(ptPhys)
		pg.mem.WriteU32(pg.pdPhys+pdIndex*4, (ptPhys&pteAddrMask)|pteFlagPresent|pteFlagWritable)
	} else {
		ptPhys = pde & pteAddrMask
	}

	pg.mem.WriteU32(ptPhys+ptIndex*4, (paddr&pteAddrMask)|(flags|pteFlagPresent))
	return true
}

// UnmapPage clears vaddr's page-table entry, a no-op if the covering PD
// entry isn't present.
func (pg *Paging) UnmapPage(vaddr uint32) {
	pdIndex, ptIndex := pdPtIndex(vaddr)

	pde := pg.mem.ReadU32(pg.pdPhys + pdIndex*4)
	if pde&pteFlagPresent == 0 {
		return
	}
	ptPhys := pde & pteAddrMask
	pg.mem.WriteU32(ptPhys+ptIndex*4, 0)
}

// Translate walks the directory for vaddr and reports the mapped physical
// address and whether the entry is present, for tests and diagnostics.
func (pg *Paging) Translate(vaddr uint32) (paddr uint32, present bool) {
	pdIndex, ptIndex := pdPtIndex(vaddr)
	pde := pg.mem.ReadU32(pg.pdPhys + pdIndex*4)
	if pde&pteFlagPresent == 0 {
		return 0, false
	}
	ptPhys := pde & pteAddrMask
	pte := pg.mem.ReadU32(ptPhys + ptIndex*4)
	if pte&pteFlagPresent == 0 {
		return 0, false
	}
	return pte & pteAddrMask, true
}

// Summary renders a one-line "[paging] enabled, identity-mapped N MiB"
// message in the original firmware's style.
func (pg *Paging) Summary() string {
	return "[paging] enabled, identity-mapped " + hexutil.Format32(pg.mapTop/(1024*1024)) + " MiB\n"
}
