// Package serial drives a 16450/16550-compatible UART, the console
// spec.md §1 names ("serial UART driver... log sinks consumed by
// panic/debug paths") at interface level only. kernel/kfmt never imports
// this package; it only ever sees the io.Writer SetOutputSink attaches,
// the same separation the teacher keeps between its console drivers and
// kfmt/early.
//
// The teacher has no serial driver in this retrieval; the inb/outb
// register sequence below follows the standard 8250/16550 programming
// model directly, and the function-variable port-access seam follows
// kernel/cpu's own InB/OutB, the same "privileged access needs a test
// seam" idiom used throughout kernel/mem/vmm and kernel/timer.
package serial

import "github.com/vela-os/vela/kernel/cpu"

// COM1 is the conventional legacy I/O port base most BIOS/UEFI firmware
// still leaves routed to the first serial controller.
const COM1 = 0x3F8

const (
	regData       = 0
	regIntEnable  = 1
	regDivisorLo  = 0 // overlaps regData when DLAB is set
	regDivisorHi  = 1 // overlaps regIntEnable when DLAB is set
	regLineCtrl   = 3
	regModemCtrl  = 4
	regLineStatus = 5
)

const (
	lineCtrl8N1    = 0x03
	lineCtrlDLAB   = 0x80
	modemCtrlReady = 0x03 // RTS | DTR
	lineStatusTHRE = 0x20 // transmit holding register empty
)

// baseDivisor is 115200 / desired_baud; 1 selects the maximum 115200 baud
// the controller supports.
const baseDivisor = 1

var (
	inbFn  = cpu.InB
	outbFn = cpu.OutB
)

// Port is a handle to one UART's I/O port block.
type Port struct {
	base uint16
}

// Open programs port base for 115200 8N1 and returns a handle. Grounded on
// the textbook 8250 bring-up sequence: disable interrupts, set the divisor
// latch, program line control, then raise DTR/RTS.
func Open(base uint16) *Port {
	p := &Port{base: base}

	outbFn(p.base+regIntEnable, 0x00)
	outbFn(p.base+regLineCtrl, lineCtrlDLAB)
	outbFn(p.base+regDivisorLo, baseDivisor&0xFF)
	outbFn(p.base+regDivisorHi, (baseDivisor>>8)&0xFF)
	outbFn(p.base+regLineCtrl, lineCtrl8N1)
	outbFn(p.base+regModemCtrl, modemCtrlReady)

	return p
}

// Write implements io.Writer: each byte is spun out once the transmit
// holding register reports empty, matching spec.md §5's framing that
// every suspension point in this kernel is either an interrupt wait or an
// explicit poll loop, never a blocking syscall.
func (p *Port) Write(data []byte) (int, error) {
	for _, b := range data {
		for inbFn(p.base+regLineStatus)&lineStatusTHRE == 0 {
		}
		outbFn(p.base+regData, b)
	}
	return len(data), nil
}
