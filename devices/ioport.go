// Package devices implements the legacy PC/AT peripherals the kernel core
// drives directly: the cascaded 8259A PICs, the 8254 PIT, the PS/2
// keyboard controller, and the COM1 UART and VGA text-mode byte sinks used
// for diagnostics.
package devices

import "sync"

// PortIO abstracts single-byte I/O-port access. Production code drives a
// HardwarePortIO; tests substitute a FakePortIO, per the deterministic
// harness requirement on port/CPU access.
type PortIO interface {
	Outb(port uint16, val byte)
	Inb(port uint16) byte
}

// FakePortIO is an in-memory register file standing in for real hardware
// ports in tests. Each port is an independent byte that reads back the last
// value written (0 until written), unless a value was seeded with Set.
type FakePortIO struct {
	mu     sync.Mutex
	regs   map[uint16]byte
	inputs map[uint16]byte
	trace  []IOEvent
}

// IOEvent records one Inb/Outb call for assertions in tests.
type IOEvent struct {
	Port  uint16
	Value byte
	Out   bool
}

// NewFakePortIO creates a fake port space with every port reading back 0
// except the UART's line status register, which starts with the
// transmit-holding-register-empty bit set — a real 16550 idles with THRE
// set, and without it SerialSink.Putchar's poll loop would never observe a
// ready transmitter.
func NewFakePortIO() *FakePortIO {
	f := &FakePortIO{regs: make(map[uint16]byte), inputs: make(map[uint16]byte)}
	f.regs[uartLSR] = uartLSRTHRE
	return f
}

func (f *FakePortIO) Outb(port uint16, val byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[port] = val
	f.trace = append(f.trace, IOEvent{Port: port, Value: val, Out: true})
}

func (f *FakePortIO) Inb(port uint16) byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, seeded := f.inputs[port]
	if !seeded {
		val = f.regs[port]
	}
	f.trace = append(f.trace, IOEvent{Port: port, Value: val, Out: false})
	return val
}

// Set seeds the value Inb returns for a port from then on, even after later
// Outb writes to that port, without recording a trace entry. This is for
// setting up scenarios (e.g. priming the PIC's in-service register, which is
// read back from the same port the OCW3 command is written to) before a
// test runs.
func (f *FakePortIO) Set(port uint16, val byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[port] = val
}

// Trace returns the recorded I/O events in order.
func (f *FakePortIO) Trace() []IOEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]IOEvent, len(f.trace))
	copy(out, f.trace)
	return out
}
