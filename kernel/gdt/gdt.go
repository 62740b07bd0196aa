// Package gdt builds the per-core Global Descriptor Table described in
// spec.md §3: 7 slots (null, kernel code/data, user code/data, and a
// two-slot TSS descriptor), plus the per-core Task State Segment whose
// rsp0/ist fields back privilege-level transitions and exception stacks.
//
// Grounded on the teacher's kernel/cpu primitives (LoadGDT, LoadTaskRegister,
// ReloadSegments) which this package drives; the teacher itself has no GDT
// package of its own (it never leaves ring 0), so the table layout follows
// spec.md §3 directly.
package gdt

import (
	"unsafe"

	"github.com/vela-os/vela/kernel/cpu"
)

// Selector identifies a GDT slot by its byte offset into the table, ready
// to load into a segment register or an IDT gate's selector field.
//
//go:generate stringer -type=Selector
type Selector uint16

const (
	NullSelector       Selector = 0x00
	KernelCodeSelector Selector = 0x08
	KernelDataSelector Selector = 0x10
	UserCodeSelector   Selector = 0x18
	UserDataSelector   Selector = 0x20
	// TSSSelector points at the first of the two slots the TSS
	// descriptor occupies; there is no second selector, since a
	// 16-byte system descriptor is loaded as a single unit via ltr.
	TSSSelector Selector = 0x28
)

// RPL3 ORed into a Selector requests ring 3 (user) privilege on load.
const RPL3 Selector = 0x3

const numSlots = 7

// slot is a single raw 8-byte GDT entry. The TSS descriptor spans two
// consecutive 8-byte slots (its base address needs the extra 32 bits),
// which is why Table is sized numSlots rather than numSlots-1.
type slot uint64

const (
	accPresent     = 1 << 47
	accUser        = 1 << 44 // descriptor type: 1 = code/data, 0 = system
	accExecutable  = 1 << 43
	accReadWrite   = 1 << 41 // RW for data, readable for code
	flagLongMode   = 1 << 53 // L bit, code segments only
	flagGranular4K = 1 << 55
)

func codeSegment(dpl uint64) slot {
	return slot(accPresent | accUser | accExecutable | accReadWrite | flagLongMode | flagGranular4K | (dpl << 45))
}

func dataSegment(dpl uint64) slot {
	return slot(accPresent | accUser | accReadWrite | flagGranular4K | (dpl << 45))
}

// descriptorTable is the limit:base pair lgdt/lidt expect, packed exactly
// as the hardware requires (10 bytes, no trailing padding): the leading
// pad puts limit at offset 6, so limit and the 8-aligned base form 10
// contiguous bytes starting at &limit, the address handed to lgdt.
type descriptorTable struct {
	_     [3]uint16
	limit uint16
	base  uint64
}

// Table is a per-core GDT. Every core running the kernel owns exactly one;
// it is never shared, since slots 5-6 are patched with that core's own TSS
// base address.
type Table struct {
	slots [numSlots]slot
	tss   Tss
	desc  descriptorTable
}

// Init populates the fixed, architecture-mandated slots (everything except
// the TSS descriptor) and wires t.tss as this core's Task State Segment.
func (t *Table) Init() {
	t.slots[0] = 0 // null
	t.slots[1] = codeSegment(0)
	t.slots[2] = dataSegment(0)
	t.slots[3] = codeSegment(3)
	t.slots[4] = dataSegment(3)
	t.installTSSDescriptor()
}

// installTSSDescriptor writes the 16-byte system-segment descriptor for
// t.tss into slots 5 and 6. Called from Init only: the TSS's address never
// changes once the Table is constructed, so there is exactly one code
// path that can get the base/limit encoding wrong.
func (t *Table) installTSSDescriptor() {
	base := uint64(uintptr(unsafe.Pointer(&t.tss)))
	limit := uint64(unsafe.Sizeof(t.tss) - 1)

	low := slot(limit&0xFFFF) |
		slot((base&0xFFFFFF)<<16) |
		slot(0x89)<<40 | // present, type=0x9 (64-bit TSS, available)
		slot((limit>>16)&0xF)<<48 |
		slot((base>>24)&0xFF)<<56

	high := slot((base >> 32) & 0xFFFFFFFF)

	t.slots[5] = low
	t.slots[6] = high
}

// Load installs this table via lgdt and loads the task register, making
// t.tss the active TSS for privilege-level transitions on the calling
// core. Must run on the core that owns t: the TSS is core-local state.
func (t *Table) Load() {
	t.desc = descriptorTable{
		limit: uint16(len(t.slots)*8 - 1),
		base:  uint64(uintptr(unsafe.Pointer(&t.slots[0]))),
	}

	cpu.LoadGDT(uintptr(unsafe.Pointer(&t.desc.limit)))
	cpu.LoadTaskRegister(uint16(TSSSelector))
}

// TSS returns the Task State Segment embedded in this table, so boot code
// can set rsp0/ist before or after Load.
func (t *Table) TSS() *Tss {
	return &t.tss
}
