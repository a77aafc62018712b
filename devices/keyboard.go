package devices

import (
	"corekernel/cpu"
	"corekernel/hexutil"
)

const (
	kbdStatusOutputFull byte = 0x01
	kbdRingSize              = 64

	// KeyEventValid is always set on a populated ring slot, distinguishing
	// a real (possibly zero-scancode) event from an empty Pop() result.
	KeyEventValid uint32 = 0x40000000
	// KeyEventRelease is set when the scancode's high bit indicated a
	// key-up transition.
	KeyEventRelease uint32 = 0x20000000
	// KeyEventExtended is set when the scancode was preceded by the 0xE0
	// extended-key prefix byte.
	KeyEventExtended uint32 = 0x10000000
)

// KeyboardRing is a lock-free single-producer/single-consumer ring of
// decoded keyboard events. The producer is the IRQ1 handler; the consumer
// is Pop, called from ordinary kernel context with interrupts briefly
// disabled around the head/tail check.
type KeyboardRing struct {
	head, tail uint32
	events     [kbdRingSize]uint32
}

// enqueue drops the event if the ring is full rather than overwriting or
// blocking, matching the original firmware's overflow policy.
func (r *KeyboardRing) enqueue(event uint32) {
	next := (r.head + 1) % kbdRingSize
	if next == r.tail {
		return
	}
	r.events[r.head] = event
	r.head = next
}

// Pop removes and returns the oldest event, disabling interrupts around the
// head/tail comparison via c so the IRQ1 producer cannot race the check.
// The second return value is false when the ring is empty.
func (r *KeyboardRing) Pop(c cpu.CPU) (uint32, bool) {
	flags := c.SaveFlagsAndDisable()
	defer c.RestoreFlags(flags)

	if r.head == r.tail {
		return 0, false
	}
	event := r.events[r.tail]
	r.tail = (r.tail + 1) % kbdRingSize
	return event, true
}

// Keyboard decodes PS/2 Set-1 scancodes off IRQ1 into KeyboardRing events.
type Keyboard struct {
	io              PortIO
	ring            KeyboardRing
	extendedPending bool
	sink            *SerialSink
}

// NewKeyboard wraps a PortIO and the diagnostic sink scancode traces go to.
func NewKeyboard(io PortIO, sink *SerialSink) *Keyboard {
	return &Keyboard{io: io, sink: sink}
}

// Ring returns the event ring for Pop.
func (k *Keyboard) Ring() *KeyboardRing { return &k.ring }

// HandleIRQ1 is the IRQ1 handler body. It reads and discards the interrupt
// if the controller's output buffer isn't actually full (defends against a
// shared/misrouted line), latches the 0xE0 extended prefix across one
// handler invocation, and otherwise decodes and enqueues one event.
func (k *Keyboard) HandleIRQ1() {
	status := k.io.Inb(KeyboardStatusPort)
	if status&kbdStatusOutputFull == 0 {
		return
	}

	scancode := k.io.Inb(KeyboardDataPort)
	if scancode == 0xE0 {
		k.extendedPending = true
		return
	}

	event := KeyEventValid | uint32(scancode&0x7F)
	loggedCode := uint32(scancode)
	extended := k.extendedPending
	if extended {
		event |= KeyEventExtended
		loggedCode = 0xE000 | uint32(scancode)
		k.extendedPending = false
	}
	released := scancode&0x80 != 0
	if released {
		event |= KeyEventRelease
	}

	k.ring.enqueue(event)

	if k.sink == nil {
		return
	}
	k.sink.Write([]byte("[kbd] scancode="))
	k.sink.Write([]byte(hexutil.Format32(loggedCode)))
	if released {
		k.sink.Write([]byte(" release\n"))
	} else {
		k.sink.Write([]byte(" press\n"))
	}
}
