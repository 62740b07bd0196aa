package vmm

import (
	"testing"
	"unsafe"

	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/mem/paging"
)

// fakePhysMem backs both the page-table walk (via paging.SetTableResolver)
// and the physmap-translated Memset/Memcopy calls (via physAddrFn) with
// ordinary Go-allocated storage, the same two-seam combination
// kernel/mem/paging's own tests use for the table side alone.
type fakePhysMem struct {
	tables [16]paging.Table
	frames map[addr.PAddr]*[4096]byte
	next   uint64
}

func newFakePhysMem() *fakePhysMem {
	return &fakePhysMem{frames: make(map[addr.PAddr]*[4096]byte), next: 1}
}

func (fm *fakePhysMem) resolveTable(p addr.PAddr, _ addr.Base) *paging.Table {
	idx := uint64(p) / 4096
	return &fm.tables[idx]
}

func (fm *fakePhysMem) resolveFrame(p addr.PAddr) uintptr {
	buf, ok := fm.frames[p]
	if !ok {
		buf = new([4096]byte)
		fm.frames[p] = buf
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

func (fm *fakePhysMem) allocator() *fakeAllocator {
	return &fakeAllocator{mem: fm}
}

type fakeAllocator struct {
	mem *fakePhysMem
	err *kernel.Error
}

func (a *fakeAllocator) AllocFrame() (addr.PAddr, *kernel.Error) {
	if a.err != nil {
		return 0, a.err
	}
	p := addr.PAddr(a.mem.next * 4096)
	a.mem.next++
	return p, nil
}

func withFakePhysMem(t *testing.T, fm *fakePhysMem) {
	restoreTables := paging.SetTableResolver(fm.resolveTable)
	origPhysAddrFn := physAddrFn
	physAddrFn = fm.resolveFrame
	t.Cleanup(func() {
		restoreTables()
		physAddrFn = origPhysAddrFn
	})
}

func testRegions() (Region, Region) {
	kernelR := Region{Start: addr.VAddr(0xFFFFFFFF80000000), End: addr.VAddr(0xFFFFFFFF90000000)}
	userR := Region{Start: addr.VAddr(0x400000), End: addr.VAddr(0x500000)}
	return kernelR, userR
}

func TestInitReservesAZeroedSharedFrame(t *testing.T) {
	fm := newFakePhysMem()
	withFakePhysMem(t, fm)
	alloc := fm.allocator()

	kernelR, userR := testRegions()
	if err := Init(kernelR, userR, alloc); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !ready {
		t.Fatal("Init did not mark the VMM ready")
	}
	buf := fm.frames[zeroFrame]
	if buf == nil {
		t.Fatal("Init did not touch the zero frame through physAddrFn")
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("zero frame byte %d = %d, want 0", i, b)
		}
	}
}

func TestClassifyAndIsValidVAddr(t *testing.T) {
	fm := newFakePhysMem()
	withFakePhysMem(t, fm)
	alloc := fm.allocator()

	kernelR, userR := testRegions()
	if err := Init(kernelR, userR, alloc); err != nil {
		t.Fatalf("Init: %v", err)
	}

	cases := []struct {
		v    addr.VAddr
		want Class
	}{
		{addr.VAddr(0xFFFFFFFF80001000), ClassKernel},
		{addr.VAddr(0x401000), ClassUser},
		{addr.VAddr(0x1000), ClassNeither},
	}
	for _, c := range cases {
		if got := Classify(c.v); got != c.want {
			t.Fatalf("Classify(%#x) = %v, want %v", uint64(c.v), got, c.want)
		}
		if got := IsValidVAddr(c.v); got != (c.want != ClassNeither) {
			t.Fatalf("IsValidVAddr(%#x) = %v, want %v", uint64(c.v), got, c.want != ClassNeither)
		}
	}
}

func TestReserveCopyOnWriteInstallsReadOnlyMappingAgainstZeroFrame(t *testing.T) {
	fm := newFakePhysMem()
	withFakePhysMem(t, fm)
	alloc := fm.allocator()

	kernelR, userR := testRegions()
	if err := Init(kernelR, userR, alloc); err != nil {
		t.Fatalf("Init: %v", err)
	}

	pml4 := addr.PAddr(0)
	virt := addr.VAddr(0x401000)
	if err := ReserveCopyOnWrite(pml4, virt, addr.IdentityBase, alloc); err != nil {
		t.Fatalf("ReserveCopyOnWrite: %v", err)
	}

	e, _, ok := paging.Walk(pml4, virt, addr.IdentityBase)
	if !ok {
		t.Fatal("expected the CoW mapping to be installed")
	}
	if e.Writable() {
		t.Fatal("CoW reservation must not be writable")
	}
	if !e.CopyOnWrite() {
		t.Fatal("CoW reservation must carry the CoW bit")
	}
	if e.PAddr() != zeroFrame {
		t.Fatalf("CoW reservation PAddr = %#x, want zero frame %#x", uint64(e.PAddr()), uint64(zeroFrame))
	}
}

func TestBreakCopyOnWriteGivesAPrivateWritableCopy(t *testing.T) {
	fm := newFakePhysMem()
	withFakePhysMem(t, fm)
	alloc := fm.allocator()

	kernelR, userR := testRegions()
	if err := Init(kernelR, userR, alloc); err != nil {
		t.Fatalf("Init: %v", err)
	}

	pml4 := addr.PAddr(0)
	virt := addr.VAddr(0x401000)
	if err := ReserveCopyOnWrite(pml4, virt, addr.IdentityBase, alloc); err != nil {
		t.Fatalf("ReserveCopyOnWrite: %v", err)
	}

	// Seed the shared zero frame with a recognizable byte so the break's
	// copy can be distinguished from a fresh, separately-zeroed frame.
	fm.frames[zeroFrame][0] = 0xAB

	if err := BreakCopyOnWrite(pml4, virt, addr.IdentityBase, alloc); err != nil {
		t.Fatalf("BreakCopyOnWrite: %v", err)
	}

	e, _, ok := paging.Walk(pml4, virt, addr.IdentityBase)
	if !ok {
		t.Fatal("expected the mapping to survive the break")
	}
	if e.CopyOnWrite() {
		t.Fatal("broken mapping must not still carry the CoW bit")
	}
	if !e.Writable() {
		t.Fatal("broken mapping must be writable")
	}
	if e.PAddr() == zeroFrame {
		t.Fatal("broken mapping must point at a private frame, not the shared zero frame")
	}

	privateBuf := fm.frames[e.PAddr()]
	if privateBuf == nil || privateBuf[0] != 0xAB {
		t.Fatal("private frame did not receive the zero frame's contents")
	}
}

func TestBreakCopyOnWriteReportsMissingMapping(t *testing.T) {
	fm := newFakePhysMem()
	withFakePhysMem(t, fm)
	alloc := fm.allocator()

	kernelR, userR := testRegions()
	if err := Init(kernelR, userR, alloc); err != nil {
		t.Fatalf("Init: %v", err)
	}

	err := BreakCopyOnWrite(addr.PAddr(0), addr.VAddr(0x401000), addr.IdentityBase, alloc)
	if err == nil {
		t.Fatal("expected an error breaking CoW on an address with no mapping")
	}
}
