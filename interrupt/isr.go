package interrupt

import (
	"io"
	"log"

	"corekernel/cpu"
	"corekernel/devices"
	"corekernel/hexutil"
)

// Handler is the IRQ-handler registry's callback shape: a line number and a
// read-only view of the interrupt frame that triggered it.
type Handler func(line uint8, frame *Frame)

// Dispatcher is the common entry point for every interrupt vector. It never
// re-enables interrupts and never allocates on the hot path.
type Dispatcher struct {
	registry [16]Handler
	pic      *devices.PIC
	cpu      cpu.CPU
	log      *log.Logger
	faulted  bool
}

// NewDispatcher builds a dispatcher that EOIs through pic and reads CR2/halts
// through c, logging exception and spurious-IRQ diagnostics to w.
func NewDispatcher(pic *devices.PIC, c cpu.CPU, w io.Writer) *Dispatcher {
	return &Dispatcher{pic: pic, cpu: c, log: log.New(w, "", 0)}
}

// Register installs a handler for an IRQ line. Lines >= 16 are rejected.
func (d *Dispatcher) Register(line uint8, h Handler) bool {
	if line >= 16 {
		return false
	}
	d.registry[line] = h
	return true
}

// Unregister clears a line's handler. Lines >= 16 are rejected.
func (d *Dispatcher) Unregister(line uint8) bool {
	if line >= 16 {
		return false
	}
	d.registry[line] = nil
	return true
}

// Faulted reports whether an unrecoverable exception has been dispatched.
// The bring-up orchestrator's idle loop checks this and stops servicing new
// work once it is true, standing in for the real "halt forever" behavior.
func (d *Dispatcher) Faulted() bool { return d.faulted }

// Dispatch routes one interrupt frame according to its vector.
func (d *Dispatcher) Dispatch(f *Frame) {
	switch {
	case f.Vector < 32:
		d.dispatchException(f)
	case f.Vector >= 32 && f.Vector < 48:
		d.dispatchIRQ(f)
	default:
		d.log.Printf("[isr] unhandled vector=%s", hexutil.Format32(f.Vector))
	}
}

func (d *Dispatcher) dispatchException(f *Frame) {
	d.log.Printf("[isr] exception vector=%s error=%s eip=%s cs=%s eflags=%s",
		hexutil.Format32(f.Vector), hexutil.Format32(f.ErrorCode), hexutil.Format32(f.EIP),
		hexutil.Format32(f.CS), hexutil.Format32(f.EFLAGS))
	d.log.Printf("[isr] eax=%s ebx=%s ecx=%s edx=%s esi=%s edi=%s ebp=%s",
		hexutil.Format32(f.EAX), hexutil.Format32(f.EBX), hexutil.Format32(f.ECX), hexutil.Format32(f.EDX),
		hexutil.Format32(f.ESI), hexutil.Format32(f.EDI), hexutil.Format32(f.EBP))
	d.log.Printf("[isr] ds=%s es=%s fs=%s gs=%s",
		hexutil.Format32(f.DS), hexutil.Format32(f.ES), hexutil.Format32(f.FS), hexutil.Format32(f.GS))
	if f.Vector == 14 {
		d.log.Printf("[isr] page fault cr2=%s", hexutil.Format32(d.cpu.ReadCR2()))
	}
	d.faulted = true
	d.cpu.Halt()
}

func (d *Dispatcher) dispatchIRQ(f *Frame) {
	line := uint8(f.Vector - 32)

	if line == 7 || line == 15 {
		isr := d.pic.ReadISR()
		if isr&(1<<line) == 0 {
			d.log.Printf("[isr] spurious irq=%s", hexutil.Format32(uint32(line)))
			if line == 15 {
				d.pic.EOIMaster()
			}
			return
		}
	}

	if h := d.registry[line]; h != nil {
		h(line, f)
	}
	d.pic.EOI(line)
}
