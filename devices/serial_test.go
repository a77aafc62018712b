package devices

import "testing"

func TestNewSerialSinkProgramsUART(t *testing.T) {
	io := NewFakePortIO()

	NewSerialSink(io)

	trace := io.Trace()
	want := []IOEvent{
		{Port: uartIER, Value: 0x00, Out: true},
		{Port: uartLCR, Value: uartLCRDLAB, Out: true},
		{Port: uartDLL, Value: uartDivisor38400Low, Out: true},
		{Port: uartDLM, Value: uartDivisor38400High, Out: true},
		{Port: uartLCR, Value: uartLCR8N1, Out: true},
		{Port: uartFCR, Value: uartFCREnable, Out: true},
		{Port: uartMCR, Value: uartMCRReady, Out: true},
	}
	if len(trace) != len(want) {
		t.Fatalf("expected %d UART init writes, got %d: %+v", len(want), len(trace), trace)
	}
	for i, ev := range want {
		if trace[i] != ev {
			t.Fatalf("write %d: got %+v, want %+v", i, trace[i], ev)
		}
	}
}

func TestSerialSinkWriteExpandsNewlines(t *testing.T) {
	io := NewFakePortIO()
	s := NewSerialSink(io)
	// UART programming writes the divisor low byte to the same port as THR
	// (with DLAB set); only writes made by Write itself are collected.
	initWrites := len(io.Trace())

	n, err := s.Write([]byte("a\nb"))
	if err != nil || n != 3 {
		t.Fatalf("got (%d, %v), want (3, nil)", n, err)
	}

	var out []byte
	for _, ev := range io.Trace()[initWrites:] {
		if ev.Out && ev.Port == uartTHR {
			out = append(out, ev.Value)
		}
	}
	if string(out) != "a\r\nb" {
		t.Fatalf("got %q, want %q", out, "a\r\nb")
	}
}
