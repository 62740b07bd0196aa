package paging

import (
	"testing"

	"github.com/vela-os/vela/kernel/addr"
)

func TestEntryPtrAllowsInPlaceCoWBreak(t *testing.T) {
	fm := newFakeMemory()
	withFakeMemory(t, fm)
	alloc := fm.allocator()

	pml4 := addr.PAddr(0)
	virt := addr.VAddr(0x1000)
	zeroFrame := addr.PAddr(0x20_0000)

	if err := MapPage(pml4, zeroFrame, virt, Size4KiB, Perm{Writable: false}, addr.IdentityBase, alloc); err != nil {
		t.Fatalf("MapPage: %v", err)
	}

	ptr, level, ok := EntryPtr(pml4, virt, addr.IdentityBase)
	if !ok || level != LevelPT {
		t.Fatalf("EntryPtr: ok=%v level=%v", ok, level)
	}
	*ptr = ptr.WithCopyOnWrite()

	ptr, _, ok = EntryPtr(pml4, virt, addr.IdentityBase)
	if !ok || !ptr.CopyOnWrite() {
		t.Fatal("CoW bit did not survive through EntryPtr round trip")
	}

	privateFrame := addr.PAddr(0x30_0000)
	*ptr = ptr.WithoutCopyOnWrite().WithWritable(true).WithPAddr(privateFrame)

	e, _, ok := Walk(pml4, virt, addr.IdentityBase)
	if !ok {
		t.Fatal("walk failed after CoW break")
	}
	if e.CopyOnWrite() || !e.Writable() || e.PAddr() != privateFrame {
		t.Fatalf("CoW break left unexpected entry: %#x", uint64(e))
	}
}

func TestEntryPtrReportsAbsentIntermediateTable(t *testing.T) {
	fm := newFakeMemory()
	withFakeMemory(t, fm)

	_, _, ok := EntryPtr(addr.PAddr(0), addr.VAddr(0x1000), addr.IdentityBase)
	if ok {
		t.Fatal("expected ok=false when no mapping exists")
	}
}
