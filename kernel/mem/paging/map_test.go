package paging

import (
	"testing"

	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/addr"
)

// fakeMemory backs tableAtFn during tests: physical addresses are simply
// indices into this slice multiplied by 4 KiB, so a fake FrameAllocator
// can hand out "physical frames" without any real memory behind them.
type fakeMemory struct {
	tables []Table
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{tables: make([]Table, 8)}
}

func (fm *fakeMemory) resolve(p addr.PAddr, _ addr.Base) *Table {
	idx := uint64(p) / 4096
	return &fm.tables[idx]
}

func (fm *fakeMemory) allocator() *fakeAllocator {
	return &fakeAllocator{mem: fm, next: 1}
}

type fakeAllocator struct {
	mem  *fakeMemory
	next int
	err  *kernel.Error
}

func (a *fakeAllocator) AllocFrame() (addr.PAddr, *kernel.Error) {
	if a.err != nil {
		return 0, a.err
	}
	if a.next >= len(a.mem.tables) {
		a.mem.tables = append(a.mem.tables, Table{})
	}
	p := addr.PAddr(uint64(a.next) * 4096)
	a.next++
	return p, nil
}

func withFakeMemory(t *testing.T, fm *fakeMemory) {
	orig := tableAtFn
	tableAtFn = fm.resolve
	t.Cleanup(func() { tableAtFn = orig })
}

func TestMapPage4KiBAllocatesIntermediateTables(t *testing.T) {
	fm := newFakeMemory()
	withFakeMemory(t, fm)

	pml4 := addr.PAddr(0)
	alloc := fm.allocator()
	virt := addr.VAddr(0x1000) // PML4=0 PDPT=0 PD=0 PT=1
	phys := addr.PAddr(0x20_0000)

	if err := MapPage(pml4, phys, virt, Size4KiB, Perm{Writable: true}, addr.IdentityBase, alloc); err != nil {
		t.Fatalf("MapPage: %v", err)
	}

	e, level, ok := Walk(pml4, virt, addr.IdentityBase)
	if !ok {
		t.Fatal("walk did not find the installed leaf")
	}
	if level != LevelPT {
		t.Fatalf("leaf found at level %v, want PT", level)
	}
	if e.PAddr() != phys {
		t.Fatalf("leaf PAddr = %#x, want %#x", uint64(e.PAddr()), uint64(phys))
	}
	if !e.Writable() || e.User() || e.Huge() {
		t.Fatalf("unexpected leaf flags: %#x", uint64(e))
	}

	// Mapping one 4KiB page into an empty PML4 allocates exactly the
	// three missing intermediate tables (allocator call count is 3:
	// PDPT,PD,PT).
	if got := alloc.next - 1; got != 3 {
		t.Fatalf("expected 3 intermediate tables allocated, got %d", got)
	}
}

func TestMapPageHugeRequiresAlignment(t *testing.T) {
	fm := newFakeMemory()
	withFakeMemory(t, fm)
	alloc := fm.allocator()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on misaligned 1GiB virt")
		}
	}()
	MapPage(addr.PAddr(0), addr.PAddr(0), addr.VAddr(0x1000), Size1GiB, Perm{}, addr.IdentityBase, alloc)
}

func TestMapPagePropagatesAllocatorError(t *testing.T) {
	fm := newFakeMemory()
	withFakeMemory(t, fm)
	alloc := fm.allocator()
	alloc.err = &kernel.Error{Module: "test", Message: "oom"}

	err := MapPage(addr.PAddr(0), addr.PAddr(0x1000), addr.VAddr(0x1000), Size4KiB, Perm{}, addr.IdentityBase, alloc)
	if err != alloc.err {
		t.Fatalf("got %v, want %v", err, alloc.err)
	}
}

func TestPhysMapRegionChoosesLargestAlignedLeaf(t *testing.T) {
	fm := newFakeMemory()
	withFakeMemory(t, fm)
	alloc := fm.allocator()

	// 1 GiB aligned start, exactly 1 GiB long: must use a single 1GiB leaf.
	start := addr.PAddr(0)
	end := addr.PAddr(Size1GiB.Bytes())

	if err := PhysMapRegion(addr.PAddr(0), start, end, alloc); err != nil {
		t.Fatalf("PhysMapRegion: %v", err)
	}

	e, level, ok := Walk(addr.PAddr(0), start.VAddr(addr.PhysmapBase), addr.PhysmapBase)
	if !ok {
		t.Fatal("expected a mapping to be found")
	}
	if level != LevelPDPT {
		t.Fatalf("leaf found at level %v, want PDPT (1GiB leaf)", level)
	}
	if !e.Huge() {
		t.Fatal("expected huge bit set on a 1GiB leaf")
	}
}

func TestPhysMapRegionRejectsEmptyRange(t *testing.T) {
	fm := newFakeMemory()
	withFakeMemory(t, fm)
	alloc := fm.allocator()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on start >= end")
		}
	}()
	PhysMapRegion(addr.PAddr(0), addr.PAddr(0x1000), addr.PAddr(0x1000), alloc)
}
