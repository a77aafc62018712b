// Package kernel orchestrates the strict bring-up sequence that turns a
// Multiboot handoff into a running, interrupt-driven core: serial first (so
// every later stage can log), then the interrupt machinery, then the
// legacy PC/AT devices, then the physical and virtual memory managers,
// finishing with interrupts enabled and the processor idling in HLT.
package kernel

import (
	"errors"
	"fmt"
	"io"

	"corekernel/boot"
	"corekernel/cpu"
	"corekernel/devices"
	"corekernel/interrupt"
	"corekernel/memory"
	"corekernel/ram"
)

// ErrBadMagic is returned when the value the bootloader left in EAX does
// not match the Multiboot magic number.
var ErrBadMagic = errors.New("kernel: bad multiboot magic")

// ErrOutOfMemory is returned when the PMM or paging setup could not obtain
// the frames bring-up requires.
var ErrOutOfMemory = errors.New("kernel: out of physical memory during bring-up")

// Config carries the bring-up parameters the boot stub doesn't hardcode.
// The zero value is a usable default, mirroring the teacher's
// zero-means-default construction pattern.
type Config struct {
	// PITHz is the timer tick rate. 0 defaults to 100Hz.
	PITHz uint32
	// HeapPages is the number of contiguous physical pages reserved for
	// the kernel heap. 0 defaults to 256 (1MiB).
	HeapPages uint32
	// PICMasterOffset/PICSlaveOffset are the remapped interrupt vector
	// bases. 0 defaults to 0x20/0x28, keeping hardware exceptions and
	// IRQs out of each other's vector ranges.
	PICMasterOffset uint8
	PICSlaveOffset  uint8
	// Debug enables verbose bring-up logging to the serial sink.
	Debug bool
}

func (c Config) withDefaults() Config {
	if c.PITHz == 0 {
		c.PITHz = 100
	}
	if c.HeapPages == 0 {
		c.HeapPages = 256
	}
	if c.PICMasterOffset == 0 && c.PICSlaveOffset == 0 {
		c.PICMasterOffset = 0x20
		c.PICSlaveOffset = 0x28
	}
	return c
}

// Kernel holds every component brought up by Bootstrap, ready for the idle
// loop or for a test to inspect directly.
type Kernel struct {
	cfg        Config
	io         devices.PortIO
	cpu        cpu.CPU
	mem        ram.Memory
	Serial     *devices.SerialSink
	VGA        *devices.VGASink
	IDT        *interrupt.IDT
	Dispatcher *interrupt.Dispatcher
	PIC        *devices.PIC
	PIT        *devices.PIT
	Keyboard   *devices.Keyboard
	PMM        *memory.PMM
	Paging     *memory.Paging
	Heap       *memory.Heap
	RAMTop     uint32
}

// idtTableAddr is where the IDT is loaded from. There is no linker-assigned
// address in this hosted model; bring-up uses a fixed, conventional
// placeholder the way the original firmware's linker script would.
const idtTableAddr uint32 = 0x00080000

// Bootstrap runs the fixed bring-up sequence against real (or faked) I/O,
// CPU, and RAM implementations. magic must be the value the bootloader left
// in EAX; infoAddr is where it left the Multiboot info structure in mem.
func Bootstrap(cfg Config, ioBus devices.PortIO, c cpu.CPU, mem ram.Memory, magic, infoAddr uint32) (*Kernel, error) {
	cfg = cfg.withDefaults()

	k := &Kernel{cfg: cfg, io: ioBus, cpu: c, mem: mem}

	k.Serial = devices.NewSerialSink(ioBus)
	k.VGA = devices.NewVGASink()
	k.logf("[kernel] serial online\n")

	k.IDT = interrupt.New(c)
	// Vectors 0-47 (32 exceptions + 16 IRQs) route through the common
	// dispatcher trampoline; its address is a boot-stub concern and is
	// therefore synthetic here.
	for v := 0; v < 48; v++ {
		k.IDT.SetGate(uint8(v), idtTableAddr+0x1000)
	}
	k.IDT.Load(idtTableAddr)
	k.logf("[kernel] idt loaded\n")

	k.PIC = devices.NewPIC(ioBus)
	k.Dispatcher = interrupt.NewDispatcher(k.PIC, c, k.Serial)
	k.PIC.Remap(cfg.PICMasterOffset, cfg.PICSlaveOffset)
	for line := uint8(0); line < 16; line++ {
		k.PIC.Mask(line)
	}
	k.PIC.Unmask(devices.IRQTimer)
	k.PIC.Unmask(devices.IRQKeyboard)
	k.logf("[kernel] pic remapped, irq0/irq1 unmasked\n")

	k.PIT = devices.NewPIT(ioBus, k.Serial)
	k.PIT.Init(cfg.PITHz)
	k.Dispatcher.Register(devices.IRQTimer, func(line uint8, f *interrupt.Frame) { k.PIT.HandleIRQ0() })
	k.logf(fmt.Sprintf("[kernel] pit programmed at %dHz\n", cfg.PITHz))

	k.Keyboard = devices.NewKeyboard(ioBus, k.Serial)
	k.Dispatcher.Register(devices.IRQKeyboard, func(line uint8, f *interrupt.Frame) { k.Keyboard.HandleIRQ1() })
	k.logf("[kernel] keyboard ready\n")

	if magic != boot.Magic {
		io.WriteString(k.Serial, "[kernel] FATAL: bad multiboot magic\n")
		c.Halt()
		return k, ErrBadMagic
	}

	info := boot.NewInfo(mem, infoAddr)
	boot.DumpMemoryMap(info, k.Serial)

	k.PMM = memory.NewPMM(mem)
	kernelEnd := infoAddr + 0x10000 // past the info structure and any modules
	k.RAMTop = k.PMM.Init(kernelEnd, info)
	if k.RAMTop == 0 {
		io.WriteString(k.Serial, "[kernel] FATAL: no usable memory map\n")
		c.Halt()
		return k, ErrOutOfMemory
	}
	k.PMM.DumpStats(k.Serial)

	k.Paging = memory.NewPaging(mem, k.PMM)
	if !k.Paging.Init(k.RAMTop, c.WriteCR3, func() {
		c.WriteCR0(c.ReadCR0() | (1 << 31))
	}) {
		io.WriteString(k.Serial, "[kernel] FATAL: failed to build page tables\n")
		c.Halt()
		return k, ErrOutOfMemory
	}
	k.logf(k.Paging.Summary())

	heapBase := k.PMM.AllocContiguous(cfg.HeapPages)
	if heapBase == 0 {
		io.WriteString(k.Serial, "[kernel] FATAL: failed to reserve heap region\n")
		c.Halt()
		return k, ErrOutOfMemory
	}
	k.Heap = memory.NewHeap(mem)
	k.Heap.Init(heapBase, cfg.HeapPages*memory.PageSize)
	k.logf("[kernel] heap online\n")

	c.EnableInterrupts()
	k.logf("[kernel] interrupts enabled, idling\n")

	return k, nil
}

func (k *Kernel) logf(s string) {
	if !k.cfg.Debug {
		return
	}
	io.WriteString(k.Serial, s)
}

// Idle services interrupts via dispatch until stop is closed or the
// dispatcher records a fault, executing HLT between iterations exactly as
// the real idle loop would. frames supplies the next interrupt frame to
// dispatch on each iteration, standing in for the assembly trampoline that
// would otherwise deliver them; a nil frame ends the loop.
func (k *Kernel) Idle(stop <-chan struct{}, frames <-chan *interrupt.Frame) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		k.cpu.Halt()

		select {
		case <-stop:
			return
		case f, ok := <-frames:
			if !ok || f == nil {
				return
			}
			k.Dispatcher.Dispatch(f)
			if k.Dispatcher.Faulted() {
				return
			}
		}
	}
}
