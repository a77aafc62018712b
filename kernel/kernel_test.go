package kernel

import (
	"testing"
	"time"

	"corekernel/boot"
	"corekernel/cpu"
	"corekernel/devices"
	"corekernel/interrupt"
	"corekernel/ram"
)

const testInfoAddr uint32 = 0x1000

func buildKernelInfo(t *testing.T, ramSize, ramBytes uint32) *ram.Fake {
	t.Helper()
	mem := ram.NewFake(ramSize)
	mmapAddr := uint32(0x3000)
	const entrySize = 20
	mem.WriteU32(mmapAddr+0, entrySize)
	mem.WriteU32(mmapAddr+4, 0)
	mem.WriteU32(mmapAddr+8, 0)
	mem.WriteU32(mmapAddr+12, ramBytes)
	mem.WriteU32(mmapAddr+16, 0)
	mem.WriteU32(mmapAddr+20, 1)

	mem.WriteU32(testInfoAddr+0, 1<<6)
	mem.WriteU32(testInfoAddr+44, entrySize+4)
	mem.WriteU32(testInfoAddr+48, mmapAddr)
	return mem
}

func TestBootstrapRejectsBadMagic(t *testing.T) {
	mem := buildKernelInfo(t, 4*1024*1024+0x20000, 4*1024*1024)
	io := devices.NewFakePortIO()
	c := cpu.NewFakeCPU()

	_, err := Bootstrap(Config{}, io, c, mem, 0xDEADBEEF, testInfoAddr)
	if err != ErrBadMagic {
		t.Fatalf("got err %v, want ErrBadMagic", err)
	}
	if c.Halted != 1 {
		t.Fatalf("expected a halt on bad magic, got %d halts", c.Halted)
	}
}

func TestBootstrapNoMemoryMapFails(t *testing.T) {
	mem := ram.NewFake(0x20000)
	mem.WriteU32(testInfoAddr+0, 0) // no flagMmap
	io := devices.NewFakePortIO()
	c := cpu.NewFakeCPU()

	_, err := Bootstrap(Config{}, io, c, mem, boot.Magic, testInfoAddr)
	if err != ErrOutOfMemory {
		t.Fatalf("got err %v, want ErrOutOfMemory", err)
	}
}

func TestBootstrapFullBringUp(t *testing.T) {
	ramBytes := uint32(4 * 1024 * 1024)
	mem := buildKernelInfo(t, ramBytes+0x20000, ramBytes)
	io := devices.NewFakePortIO()
	c := cpu.NewFakeCPU()

	k, err := Bootstrap(Config{Debug: true, HeapPages: 16}, io, c, mem, boot.Magic, testInfoAddr)
	if err != nil {
		t.Fatalf("unexpected bootstrap error: %v", err)
	}

	if k.RAMTop != ramBytes {
		t.Fatalf("got RAMTop %#x, want %#x", k.RAMTop, ramBytes)
	}
	if k.PMM == nil || k.Paging == nil || k.Heap == nil {
		t.Fatal("expected PMM, paging, and heap all constructed")
	}
	if !c.InterruptsOn {
		t.Fatal("expected interrupts to be enabled at the end of bring-up")
	}
	if c.IDTBase == 0 {
		t.Fatal("expected the IDT to have been loaded onto the CPU")
	}
	if c.CR3 != k.Paging.PageDirectoryPhys() {
		t.Fatalf("expected CR3 to hold the page directory's physical address")
	}

	p := k.Heap.Malloc(64)
	if p == 0 {
		t.Fatal("expected the kernel heap to be usable after bring-up")
	}
}

func TestIdleDispatchesFramesUntilStop(t *testing.T) {
	ramBytes := uint32(4 * 1024 * 1024)
	mem := buildKernelInfo(t, ramBytes+0x20000, ramBytes)
	io := devices.NewFakePortIO()
	c := cpu.NewFakeCPU()

	k, err := Bootstrap(Config{}, io, c, mem, boot.Magic, testInfoAddr)
	if err != nil {
		t.Fatalf("unexpected bootstrap error: %v", err)
	}

	stop := make(chan struct{})
	frames := make(chan *interrupt.Frame, 1)
	frames <- &interrupt.Frame{Vector: 32} // timer IRQ

	done := make(chan struct{})
	go func() {
		k.Idle(stop, frames)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for k.PIT.Ticks() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	ticks := k.PIT.Ticks()
	close(stop)
	<-done

	if ticks == 0 {
		t.Fatal("expected the timer IRQ frame to have been dispatched at least once")
	}
}

func TestIdleReturnsWithoutHaltWhenStopClosed(t *testing.T) {
	ramBytes := uint32(4 * 1024 * 1024)
	mem := buildKernelInfo(t, ramBytes+0x20000, ramBytes)
	io := devices.NewFakePortIO()
	c := cpu.NewFakeCPU()

	k, err := Bootstrap(Config{}, io, c, mem, boot.Magic, testInfoAddr)
	if err != nil {
		t.Fatalf("unexpected bootstrap error: %v", err)
	}

	haltsBefore := c.Halted
	stop := make(chan struct{})
	close(stop) // Idle must observe the closed stop before ever blocking

	k.Idle(stop, nil)

	if c.Halted != haltsBefore {
		t.Fatalf("did not expect a halt when stop is already closed, got %d new halts", c.Halted-haltsBefore)
	}
}
