// Package boot reads the Multiboot information structure the bootloader
// leaves behind, projecting its memory map into 32-bit (base, length,
// available) triples for the PMM to consume.
package boot

import (
	"corekernel/hexutil"
	"corekernel/ram"
)

// Magic is the value the bootloader must have left in EAX for this to be a
// valid Multiboot handoff.
const Magic uint32 = 0x2BADB002

const (
	flagMem  uint32 = 1 << 0
	flagMmap uint32 = 1 << 6

	mmapTypeAvailable uint32 = 1
)

// Field offsets within the Multiboot info structure, matching the
// bootloader-supplied packed layout exactly.
const (
	offFlags      = 0
	offMemLower   = 4
	offMemUpper   = 8
	offBootDevice = 12
	offCmdline    = 16
	offModsCount  = 20
	offModsAddr   = 24
	// syms[4] occupies 28..43
	offMmapLength = 44
	offMmapAddr   = 48
)

const (
	mmapEntryOffSize = 0
	mmapEntryOffAddr = 4
	mmapEntryOffLen  = 12
	mmapEntryOffType = 20
)

// Info is a thin accessor over the Multiboot structure living at infoAddr in
// mem.
type Info struct {
	mem     ram.Memory
	addr    uint32
}

// NewInfo wraps the Multiboot info structure at addr.
func NewInfo(mem ram.Memory, addr uint32) *Info {
	return &Info{mem: mem, addr: addr}
}

func (i *Info) Flags() uint32      { return i.mem.ReadU32(i.addr + offFlags) }
func (i *Info) MemLower() uint32   { return i.mem.ReadU32(i.addr + offMemLower) }
func (i *Info) MemUpper() uint32   { return i.mem.ReadU32(i.addr + offMemUpper) }
func (i *Info) MmapLength() uint32 { return i.mem.ReadU32(i.addr + offMmapLength) }
func (i *Info) MmapAddr() uint32   { return i.mem.ReadU32(i.addr + offMmapAddr) }

// MmapCallback is invoked once per in-range memory map entry. available is
// true for MULTIBOOT_MMAP_TYPE_AVAILABLE (type 1) entries.
type MmapCallback func(base, length uint32, available bool)

// ScanMmap walks the bootloader's memory map, projecting each entry's
// 64-bit (addr, len) into 32-bit (base, length) when it fits entirely below
// the 4GiB line, and skipping it otherwise. It returns the number of
// entries visited (including any skipped for crossing 4GiB), or 0 if the
// bootloader never supplied a memory map at all.
func (i *Info) ScanMmap(cb MmapCallback) uint32 {
	if i.Flags()&flagMmap == 0 {
		return 0
	}

	mmapLen := i.MmapLength()
	mmapAddr := i.MmapAddr()

	var offset, count uint32
	for offset < mmapLen {
		if offset+4 > mmapLen {
			break
		}
		entryAddr := mmapAddr + offset
		size := i.mem.ReadU32(entryAddr + mmapEntryOffSize)
		if size == 0 {
			break
		}
		if offset+size+4 > mmapLen {
			break
		}

		addr := i.mem.ReadU64(entryAddr + mmapEntryOffAddr)
		length := i.mem.ReadU64(entryAddr + mmapEntryOffLen)
		typ := i.mem.ReadU32(entryAddr + mmapEntryOffType)

		if addr <= 0xFFFFFFFF && addr+length <= 0x100000000 {
			cb(uint32(addr), uint32(length), typ == mmapTypeAvailable)
		}

		offset += size + 4
		count++
	}
	return count
}

// DumpMemoryMap writes a human-readable memory map listing to w, one line
// per entry plus a trailing entry count, in the same shape the original
// firmware's debug dump used.
func DumpMemoryMap(i *Info, w interface{ Write([]byte) (int, error) }) {
	w.Write([]byte("[mmap] Memory map:\n"))
	count := i.ScanMmap(func(base, length uint32, available bool) {
		w.Write([]byte("  "))
		w.Write([]byte(hexutil.Format32(base)))
		w.Write([]byte(" - "))
		w.Write([]byte(hexutil.Format32(base + length)))
		if available {
			w.Write([]byte(" [available]\n"))
		} else {
			w.Write([]byte(" [reserved]\n"))
		}
	})
	w.Write([]byte("[mmap] entries: "))
	w.Write([]byte(hexutil.Format32(count)))
	w.Write([]byte("\n"))
}
