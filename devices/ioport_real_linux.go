//go:build linux

package devices

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// HardwarePortIO drives real I/O ports through /dev/port, the Linux device
// node that exposes raw port space as a seekable file: a single-byte
// pread/pwrite at offset N is the inb/outb of port N. This is the direct
// analogue of opening /dev/kvm to get at virtualized hardware — here the
// device node is the permission boundary for the real thing.
type HardwarePortIO struct {
	fd int
}

// NewHardwarePortIO opens /dev/port. The calling process needs CAP_SYS_RAWIO
// (typically root) for the open to succeed.
func NewHardwarePortIO() (*HardwarePortIO, error) {
	fd, err := unix.Open("/dev/port", unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("devices: open /dev/port: %w", err)
	}
	return &HardwarePortIO{fd: fd}, nil
}

// Close releases the underlying file descriptor.
func (h *HardwarePortIO) Close() error {
	if h.fd == 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = 0
	return err
}

// Outb writes one byte to the given port.
func (h *HardwarePortIO) Outb(port uint16, val byte) {
	buf := [1]byte{val}
	if _, err := unix.Pwrite(h.fd, buf[:], int64(port)); err != nil {
		panic(fmt.Sprintf("devices: outb 0x%x: %v", port, err))
	}
}

// Inb reads one byte from the given port.
func (h *HardwarePortIO) Inb(port uint16) byte {
	var buf [1]byte
	if _, err := unix.Pread(h.fd, buf[:], int64(port)); err != nil {
		panic(fmt.Sprintf("devices: inb 0x%x: %v", port, err))
	}
	return buf[0]
}
