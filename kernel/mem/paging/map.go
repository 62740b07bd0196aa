package paging

import (
	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/addr"
)

// FrameAllocator is the allocator capability mapPage and physMapRegion
// consume to materialize intermediate page tables on demand. Concrete
// implementations live in kernel/mem/pmm; paging only depends on this
// interface so it can be driven by a fake allocator in tests, the same
// dependency-injection idiom the teacher uses for FrameAllocatorFn.
type FrameAllocator interface {
	// AllocFrame returns the physical address of a free 4 KiB frame
	// (contents unspecified; MapPage zeroes the tables it allocates), or
	// a nil PAddr and a non-nil error if none is available.
	AllocFrame() (addr.PAddr, *kernel.Error)
}

// Perm bundles the permission bits a caller requests for a leaf mapping.
type Perm struct {
	Writable  bool
	NoExecute bool
	User      bool
	Global    bool
}

// zeroTable clears a freshly allocated table's 4 KiB in place. Calling
// this immediately after installing a new non-leaf entry, before any
// other code can observe the entry, keeps the invariant that a present
// non-leaf entry's child table is always fully zeroed, never garbage.
func zeroTable(t *Table) {
	for i := range t.entries {
		t.entries[i] = 0
	}
}

// MapPage walks pml4 (the physical address of the active top-level table,
// interpreted under base) and installs a single leaf mapping phys->virt of
// the given size, allocating any missing intermediate tables via alloc.
//
// Preconditions (spec ğ4.2): phys and virt must be aligned to size; passing
// misaligned addresses is a programming error and aborts via panic rather
// than returning an error, matching mapPage's documented failure model.
// Allocator exhaustion is fatal and also returned as a *kernel.Error so
// callers such as the page-fault handler can turn it into kernel.Panic
// with diagnostic context attached.
func MapPage(pml4 addr.PAddr, phys addr.PAddr, virt addr.VAddr, size Size, perm Perm, base addr.Base, alloc FrameAllocator) *kernel.Error {
	sizeBytes := size.Bytes()
	if uint64(phys)&(sizeBytes-1) != 0 {
		panic("paging: phys is not aligned to the requested page size")
	}
	if uint64(virt)&(sizeBytes-1) != 0 {
		panic("paging: virt is not aligned to the requested page size")
	}

	leaf := LeafLevel(size)
	table := tableAt(pml4, base)

	for level := LevelPML4; level < leaf; level++ {
		idx := level.Index(virt)
		e := table.entry(idx)

		if !e.Present() {
			childPhys, err := alloc.AllocFrame()
			if err != nil {
				return err
			}
			*e = newTableEntry(childPhys)
			zeroTable(tableAt(childPhys, base))
		} else if e.Huge() {
			panic("paging: attempted to walk through an existing huge-page leaf")
		}

		table = tableAt(e.PAddr(), base)
	}

	idx := leaf.Index(virt)
	*table.entry(idx) = newLeaf(phys, entryFlags{
		writable: perm.Writable,
		user:     perm.User,
		noExec:   perm.NoExecute,
		huge:     size != Size4KiB,
		global:   perm.Global,
		cache:    true,
	})

	return nil
}

// physMapRegion identity-maps [startPAddr, endPAddr) into the physmap HHDM
// slot, choosing the largest leaf size whose alignment and remaining
// length permit it at each step (1 GiB, then 2 MiB, then 4 KiB) so that no
// more page-table entries than necessary are emitted — the invariant
// exercised by spec ğ8's "fewest entries possible" property.
func PhysMapRegion(pml4 addr.PAddr, startPAddr, endPAddr addr.PAddr, alloc FrameAllocator) *kernel.Error {
	if startPAddr >= endPAddr {
		panic("paging: physMapRegion requires start < end")
	}
	if uint64(startPAddr)&0xFFF != 0 || uint64(endPAddr)&0xFFF != 0 {
		panic("paging: physMapRegion requires 4 KiB aligned bounds")
	}

	perm := Perm{Writable: true, NoExecute: true, User: false, Global: true}

	for cur := startPAddr; cur < endPAddr; {
		remaining := uint64(endPAddr - cur)
		size := chooseLeafSize(cur, remaining)
		virt := cur.VAddr(addr.PhysmapBase)

		if err := MapPage(pml4, cur, virt, size, perm, addr.PhysmapBase, alloc); err != nil {
			return err
		}
		cur = addr.PAddr(uint64(cur) + size.Bytes())
	}
	return nil
}

// chooseLeafSize picks the largest of the three leaf sizes whose alignment
// matches cur and whose size does not overrun remaining.
func chooseLeafSize(cur addr.PAddr, remaining uint64) Size {
	if uint64(cur)&(Size1GiB.Bytes()-1) == 0 && remaining >= Size1GiB.Bytes() {
		return Size1GiB
	}
	if uint64(cur)&(Size2MiB.Bytes()-1) == 0 && remaining >= Size2MiB.Bytes() {
		return Size2MiB
	}
	return Size4KiB
}
