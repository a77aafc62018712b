package interrupt

import "corekernel/cpu"

const (
	entryCount = 256

	kernelCodeSelector uint16 = 0x08
	attrPresentInt32   byte   = 0x8E // present | 32-bit interrupt gate
)

// entry is a single IDT gate descriptor, laid out exactly as the CPU expects
// it: a 32-bit handler address split across offsetLow/offsetHigh around a
// code selector and type/attribute byte.
type entry struct {
	offsetLow  uint16
	selector   uint16
	zero       uint8
	typeAttr   uint8
	offsetHigh uint16
}

// IDT is the 256-entry interrupt descriptor table. A null handler address
// clears the corresponding gate (not present).
type IDT struct {
	entries [entryCount]entry
	cpu     cpu.CPU
}

// New returns a cleared IDT bound to the given CPU for Load.
func New(c cpu.CPU) *IDT {
	return &IDT{cpu: c}
}

// SetGate installs (or, for a zero address, clears) the gate for vector.
func (t *IDT) SetGate(vector uint8, handlerAddr uint32) {
	if handlerAddr == 0 {
		t.entries[vector] = entry{}
		return
	}
	t.entries[vector] = entry{
		offsetLow:  uint16(handlerAddr & 0xFFFF),
		selector:   kernelCodeSelector,
		zero:       0,
		typeAttr:   attrPresentInt32,
		offsetHigh: uint16(handlerAddr >> 16),
	}
}

// Gate reports whether vector currently has a live (present) gate, and the
// handler address it was installed with.
func (t *IDT) Gate(vector uint8) (addr uint32, present bool) {
	e := t.entries[vector]
	if e.typeAttr&0x80 == 0 {
		return 0, false
	}
	return uint32(e.offsetHigh)<<16 | uint32(e.offsetLow), true
}

// Load installs the table via the CPU's table-register instruction. The
// table's own address is synthetic here (there is no linear address for a
// Go-side array); callers that need a real LIDT pass the address their
// linker assigned the table at.
func (t *IDT) Load(tableAddr uint32) {
	t.cpu.LoadIDT(tableAddr, uint16(entryCount*8-1))
}
