package paging

import (
	"unsafe"

	"github.com/vela-os/vela/kernel/addr"
)

// EntriesPerTable is the fixed fan-out of every paging level: a 4 KiB table
// of 8-byte entries holds exactly 512 of them.
const EntriesPerTable = 4096 / EntrySize

// Level identifies one of the four paging levels a virtual address indexes
// through, PML4 first.
type Level uint8

const (
	LevelPML4 Level = 0
	LevelPDPT Level = 1
	LevelPD   Level = 2
	LevelPT   Level = 3
)

// shiftForLevel is the bit position of the 9-bit index field for each
// level within a canonical virtual address.
var shiftForLevel = [4]uint{39, 30, 21, 12}

// Index extracts the 9-bit index this level contributes from a virtual
// address.
func (l Level) Index(v addr.VAddr) uint16 {
	return uint16((uint64(v) >> shiftForLevel[l]) & 0x1FF)
}

// LeafLevel returns the level at which a page of the given size is a leaf:
// PT for 4 KiB, PD for 2 MiB, PDPT for 1 GiB.
func LeafLevel(size Size) Level {
	switch size {
	case Size4KiB:
		return LevelPT
	case Size2MiB:
		return LevelPD
	case Size1GiB:
		return LevelPDPT
	default:
		panic("paging: unknown page size")
	}
}

// Table is a 512-entry, 4 KiB-aligned page table. It has the identical
// layout at every level; which level it is interpreted as depends on where
// it is reached from during a walk.
type Table struct {
	entries [EntriesPerTable]Entry
}

// tableAtFn reinterprets the HHDM-mapped virtual address of a table's
// physical frame as a *Table. Every level is addressed this way once the
// physmap is live; during UEFI identity-mapped execution, base is
// addr.IdentityBase instead.
//
// It is a package variable, not a plain function, for the same reason the
// teacher's vmm package routes pte access through ptePtrFn: host tests run
// without real physical memory behind these addresses, so tests substitute
// a resolver that maps fake PAddr values onto ordinary Go-allocated
// [EntriesPerTable]Entry arrays.
var tableAtFn = func(p addr.PAddr, base addr.Base) *Table {
	return (*Table)(unsafe.Pointer(uintptr(p.VAddr(base))))
}

func tableAt(p addr.PAddr, base addr.Base) *Table {
	return tableAtFn(p, base)
}

// SetTableResolver overrides how physical table addresses are resolved to
// *Table pointers, for tests in packages built on top of paging (vmm,
// exception) that need to exercise MapPage/Walk/EntryPtr against fake
// memory rather than real hardware. The returned func restores the
// previous resolver and must be deferred by the caller.
func SetTableResolver(fn func(addr.PAddr, addr.Base) *Table) (restore func()) {
	orig := tableAtFn
	tableAtFn = fn
	return func() { tableAtFn = orig }
}

// entry returns a pointer to the slot at idx so callers can both read and
// install the entry in place.
func (t *Table) entry(idx uint16) *Entry {
	return &t.entries[idx]
}
