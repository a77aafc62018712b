package interrupt

// Frame is the interrupt frame the assembly trampoline builds on every
// vector entry: segment selectors saved on entry, general-purpose
// registers, the vector and error code (synthetic zero where the CPU does
// not push one), and the CPU-pushed return frame. Treated as read-only by
// the dispatcher except where an IRQ handler inspects it.
type Frame struct {
	GS, FS, ES, DS                     uint32
	EDI, ESI, EBP, ESPDummy            uint32
	EBX, EDX, ECX, EAX                 uint32
	Vector, ErrorCode                  uint32
	EIP, CS, EFLAGS                    uint32
}
