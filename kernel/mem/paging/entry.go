// Package paging implements the x86-64 4-level paging engine: page-table
// entry layout, mapPage (4 KiB / 2 MiB / 1 GiB leaves) and physMapRegion
// (large-range identity mapping of the physmap). Grounded on the teacher's
// kernel/mem/vmm/pdt.go and pte_test.go, generalized from the teacher's
// recursive-mapping 2-level scheme to the spec's explicit 4-level PML4 walk
// with an allocator capability instead of a temporary-mapping trick.
package paging

import "github.com/vela-os/vela/kernel/addr"

// EntrySize is sizeof(Entry) in bytes; the spec requires this to be
// bit-exact with the hardware's 8-byte PTE format.
const EntrySize = 8

// Entry is a single page-table entry, valid at every level (PML4, PDPT, PD,
// PT) — the hardware reuses the same 64-bit layout at each level, with Huge
// only meaningful (and only legal to set) at PDPT/PD.
type Entry uint64

const (
	flagPresent      Entry = 1 << 0
	flagWritable     Entry = 1 << 1
	flagUser         Entry = 1 << 2
	flagWriteThrough Entry = 1 << 3
	flagCacheDisable Entry = 1 << 4
	flagAccessed     Entry = 1 << 5
	flagDirty        Entry = 1 << 6
	flagHuge         Entry = 1 << 7
	flagGlobal       Entry = 1 << 8

	// flagCopyOnWrite occupies bit 9, one of the three bits (9-11) the
	// hardware leaves software-defined at every level; it has no meaning
	// to the MMU and exists purely so kernel/exception's page-fault
	// handler can tell "read-only on purpose" apart from "read-only
	// pending a copy-on-write break" on an otherwise identical entry.
	flagCopyOnWrite Entry = 1 << 9

	flagNoExecute Entry = 1 << 63

	// physAddrMask isolates bits 12..51, the 40-bit physical frame
	// number shifted by 12 that every level stores.
	physAddrMask Entry = 0x000F_FFFF_FFFF_F000
)

// Present reports the present bit.
func (e Entry) Present() bool { return e&flagPresent != 0 }

// Writable reports the read/write bit.
func (e Entry) Writable() bool { return e&flagWritable != 0 }

// User reports the user/supervisor bit.
func (e Entry) User() bool { return e&flagUser != 0 }

// Huge reports the page-size bit (PS at PDPT/PD; reserved at PT/PML4).
func (e Entry) Huge() bool { return e&flagHuge != 0 }

// Global reports the global bit.
func (e Entry) Global() bool { return e&flagGlobal != 0 }

// NoExecute reports the no-execute bit (requires EFER.NXE to be honored).
func (e Entry) NoExecute() bool { return e&flagNoExecute != 0 }

// PAddr returns the 4 KiB-aligned physical address stored in this entry.
func (e Entry) PAddr() addr.PAddr {
	return addr.PAddr(e & physAddrMask)
}

// CopyOnWrite reports whether the software-defined CoW bit is set: the
// entry is mapped read-only against a shared frame, and a write fault
// against it should be broken into a private copy rather than treated as a
// protection violation.
func (e Entry) CopyOnWrite() bool { return e&flagCopyOnWrite != 0 }

// WithCopyOnWrite returns e with the CoW bit set.
func (e Entry) WithCopyOnWrite() Entry { return e | flagCopyOnWrite }

// WithoutCopyOnWrite returns e with the CoW bit cleared.
func (e Entry) WithoutCopyOnWrite() Entry { return e &^ flagCopyOnWrite }

// WithWritable returns e with its writable bit set to w, leaving every
// other field (including the stored physical address) untouched.
func (e Entry) WithWritable(w bool) Entry {
	if w {
		return e | flagWritable
	}
	return e &^ flagWritable
}

// WithPAddr returns e with its physical-address field replaced by p,
// exported so the CoW break can repoint an existing entry at a freshly
// copied frame without reconstructing every other flag.
func (e Entry) WithPAddr(p addr.PAddr) Entry {
	return withPAddr(e, p)
}

// withPAddr returns e with its physical-address field replaced by p.
// Panics (a programming error, per spec ğ4.2's failure model) if p is not
// 4 KiB aligned, since the low 12 bits are reused for flags.
func withPAddr(e Entry, p addr.PAddr) Entry {
	if !p.Aligned(uint64(1) << 12) {
		panic("paging: physical address is not 4 KiB aligned")
	}
	return (e &^ physAddrMask) | Entry(p)&physAddrMask
}

// entryFlags bundles the permission bits callers request for a leaf or an
// intermediate table entry.
type entryFlags struct {
	writable bool
	user     bool
	noExec   bool
	huge     bool
	global   bool
	cache    bool
}

// newLeaf builds a present leaf entry pointing at phys with the requested
// permission bits.
func newLeaf(phys addr.PAddr, f entryFlags) Entry {
	e := flagPresent
	if f.writable {
		e |= flagWritable
	}
	if f.user {
		e |= flagUser
	}
	if f.huge {
		e |= flagHuge
	}
	if f.global {
		e |= flagGlobal
	}
	if !f.cache {
		e |= flagCacheDisable
	}
	if f.noExec {
		e |= flagNoExecute
	}
	return withPAddr(e, phys)
}

// newTableEntry builds a present, non-leaf entry pointing at the physical
// address of a child table. Per spec ğ4.2, intermediate tables are always
// installed writable+user-permissive so that a user-mode leaf beneath them
// remains reachable regardless of which mapPage call happens to create the
// table first.
func newTableEntry(phys addr.PAddr) Entry {
	return withPAddr(flagPresent|flagWritable|flagUser, phys)
}
