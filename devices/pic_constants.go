package devices

// 8259A PIC I/O port addresses.
const (
	PIC1CommandPort uint16 = 0x20 // Master PIC command port
	PIC1DataPort    uint16 = 0x21 // Master PIC data (IMR) port
	PIC2CommandPort uint16 = 0xA0 // Slave PIC command port
	PIC2DataPort    uint16 = 0xA1 // Slave PIC data (IMR) port

	ioWaitPort uint16 = 0x80 // Unused POST-code port, used for bus settle delay
)

// ICW1 bits.
const (
	icw1ICW4 byte = 0x01 // ICW4 will be sent
	icw1Init byte = 0x10 // Initialization bit (required, always 1)
)

// ICW4 bits.
const (
	icw4_8086 byte = 0x01 // 8086/88 mode
)

// OCW2 bits.
const (
	ocw2EOI byte = 0x20 // Non-specific End-Of-Interrupt command
)

// OCW3 bits.
const (
	ocw3ReadISR byte = 0x0B // Read-register command: select ISR, RR set
)

// IRQ line numbers for the devices this core drives directly.
const (
	IRQTimer    uint8 = 0
	IRQKeyboard uint8 = 1
	IRQCascade  uint8 = 2 // Master line wired to the slave PIC
)

// Keyboard controller ports (8042-style).
const (
	KeyboardDataPort   uint16 = 0x60
	KeyboardStatusPort uint16 = 0x64
)

// PIT ports.
const (
	PITCounter0Port uint16 = 0x40
	PITCommandPort  uint16 = 0x43
)

// COM1 UART ports. uartTHR/uartDLL and uartIER/uartDLM are the same ports
// under DLAB=0/DLAB=1 respectively.
const (
	COM1Base uint16 = 0x3F8

	uartTHR uint16 = COM1Base + 0 // Transmit holding register (write), DLAB=0
	uartDLL uint16 = COM1Base + 0 // Divisor latch low byte, DLAB=1
	uartIER uint16 = COM1Base + 1 // Interrupt enable register, DLAB=0
	uartDLM uint16 = COM1Base + 1 // Divisor latch high byte, DLAB=1
	uartFCR uint16 = COM1Base + 2 // FIFO control register
	uartLCR uint16 = COM1Base + 3 // Line control register
	uartMCR uint16 = COM1Base + 4 // Modem control register
	uartLSR uint16 = COM1Base + 5 // Line status register
)

// Line control register values.
const (
	uartLCRDLAB byte = 0x80 // Divisor Latch Access Bit
	uartLCR8N1  byte = 0x03 // 8 data bits, no parity, one stop bit
)

const (
	uartDivisor38400Low  byte = 0x03 // 115200 / 38400 low byte
	uartDivisor38400High byte = 0x00
	uartFCREnable        byte = 0xC7 // Enable FIFO, clear it, 14-byte threshold
	uartMCRReady         byte = 0x0B // IRQs disabled, RTS/DSR set
)

const uartLSRTHRE byte = 0x20 // Transmitter holding register empty
