// Package idt implements the 256-entry Interrupt Descriptor Table
// described in spec.md §3: 16-byte gates split across low/mid/high ISR
// address fields, a code selector, an IST index, a gate type, a DPL, and a
// present bit. Init opens all 256 gates in one pass, each pointing at its
// kernel/interrupt stub; handlers are then attached per vector through
// kernel/interrupt's vector table, not by reopening gates. This package
// owns the encoding and the "already present" precondition check.
//
// The teacher has no IDT package (gopher-os never leaves protected/long
// mode bring-up in this retrieval), so the gate layout and the "opening a
// present gate is a bug" invariant follow spec.md §3 directly; the
// register-dump style of panic-on-violation follows kernel/panic.go.
package idt

import (
	"unsafe"

	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/cpu"
	"github.com/vela-os/vela/kernel/gdt"
	"github.com/vela-os/vela/kernel/interrupt"
)

// loadIDTFn indirects cpu.LoadIDT so tests can exercise Load without
// executing the privileged lidt instruction.
var loadIDTFn = cpu.LoadIDT

// NumVectors is the fixed size of the x86-64 IDT.
const NumVectors = 256

// GateType selects an interrupt gate (the CPU clears IF on entry, blocking
// further maskable interrupts until iretq) or a trap gate (IF is left as
// it was).
type GateType uint8

const (
	GateInterrupt GateType = 0xE
	GateTrap      GateType = 0xF
)

// gate is the raw 16-byte hardware-format IDT entry.
type gate struct {
	offsetLow  uint16
	selector   uint16
	istAndZero uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

// GateSize is sizeof(gate) in bytes; the hardware requires exactly 16.
const GateSize = 16

var errAlreadyOpen = &kernel.Error{Module: "idt", Message: "gate already present; re-registration is a bug"}

// Table is the 256-entry IDT. There is exactly one, process-wide: it is
// read-mostly after boot and shared by every core (spec.md §5).
type Table struct {
	gates [NumVectors]gate
	desc  struct {
		limit uint16
		base  uint64
	}
}

// IsOpen reports whether vector currently has a present gate installed.
func (t *Table) IsOpen(vector uint8) bool {
	return t.gates[vector].typeAttr&0x80 != 0
}

// OpenGate installs handlerAddr at vector with the given selector, gate
// type and DPL (0 or 3), then marks it present. Per spec.md §3's
// invariant, opening an already-present gate is a programming error: the
// call panics rather than silently overwriting a live vector, since the
// only legitimate callers are one-shot bring-up code.
func (t *Table) OpenGate(vector uint8, handlerAddr uint64, selector gdt.Selector, typ GateType, dpl uint8, ist uint8) {
	if t.IsOpen(vector) {
		// panic(), not kernel.Panic, so the violation stays observable
		// with recover() in host tests. The built-in panic is not
		// rerouted to kernel.Panic (see kernel/panic.go).
		panic(errAlreadyOpen)
	}

	g := &t.gates[vector]
	g.offsetLow = uint16(handlerAddr)
	g.offsetMid = uint16(handlerAddr >> 16)
	g.offsetHigh = uint32(handlerAddr >> 32)
	g.selector = uint16(selector)
	g.istAndZero = ist & 0x7
	g.typeAttr = 0x80 | (dpl&0x3)<<5 | uint8(typ)
}

// Init populates every one of the 256 gates with the address of its
// generated entry stub (kernel/interrupt's stubs_amd64.s), all running on
// the kernel code selector with no IST stack, as interrupt gates (IF stays
// clear for the stub's duration so a fault mid-prologue cannot recurse
// forever). userDPL3 lists the vectors software running at ring 3 is
// allowed to invoke directly with int (int3 for #BP, int1/icebp for #DB);
// every other vector stays DPL0. This is the only place stub addresses and
// gate slots are wired together, so kernel/exception never needs to know
// the stub table exists.
func (t *Table) Init(userDPL3 map[uint8]bool) {
	for v := 0; v < NumVectors; v++ {
		dpl := uint8(0)
		if userDPL3[uint8(v)] {
			dpl = 3
		}
		t.OpenGate(uint8(v), uint64(interrupt.StubAddr(uint8(v))), gdt.KernelCodeSelector, GateInterrupt, dpl, 0)
	}
}

// Load installs this table via lidt, making it the active IDT on the
// calling core. The IDT is loaded once per core (every core points at the
// same process-wide Table), matching spec.md §9's init-once lifecycle.
func (t *Table) Load() {
	t.desc.limit = uint16(len(t.gates)*GateSize - 1)
	t.desc.base = uint64(uintptr(unsafe.Pointer(&t.gates[0])))

	loadIDTFn(uintptr(unsafe.Pointer(&t.desc)))
}
