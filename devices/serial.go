package devices

// SerialSink is the COM1 byte sink used for kernel diagnostics. It implements
// io.Writer so it can back a *log.Logger directly. Every '\n' is expanded to
// "\r\n", matching a real terminal's expectations.
type SerialSink struct {
	io PortIO
}

// NewSerialSink wraps a PortIO for writing to COM1, programming the UART
// (interrupts disabled, 38400 8N1, FIFO enabled) before returning so the
// very first write lands correctly regardless of whatever state the BIOS
// left the port in.
func NewSerialSink(io PortIO) *SerialSink {
	s := &SerialSink{io: io}
	s.init()
	return s
}

// init ports serial_init()'s register sequence: disable UART interrupts,
// set the baud-rate divisor for 38400 via DLAB, select 8N1, then enable and
// clear the FIFO.
func (s *SerialSink) init() {
	s.io.Outb(uartIER, 0x00)
	s.io.Outb(uartLCR, uartLCRDLAB)
	s.io.Outb(uartDLL, uartDivisor38400Low)
	s.io.Outb(uartDLM, uartDivisor38400High)
	s.io.Outb(uartLCR, uartLCR8N1)
	s.io.Outb(uartFCR, uartFCREnable)
	s.io.Outb(uartMCR, uartMCRReady)
}

// Putchar transmits a single byte, polling LSR until the transmit holding
// register is empty.
func (s *SerialSink) Putchar(b byte) {
	for s.io.Inb(uartLSR)&uartLSRTHRE == 0 {
	}
	s.io.Outb(uartTHR, b)
}

// Write implements io.Writer, expanding '\n' to "\r\n".
func (s *SerialSink) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			s.Putchar('\r')
		}
		s.Putchar(b)
	}
	return len(p), nil
}
