package paging

import (
	"testing"
	"unsafe"

	"github.com/vela-os/vela/kernel/addr"
)

func TestEntrySizeIsBitExact(t *testing.T) {
	var e Entry
	if got := unsafe.Sizeof(e); got != EntrySize {
		t.Fatalf("sizeof(Entry) = %d, want %d", got, EntrySize)
	}
}

func TestNewLeafFlags(t *testing.T) {
	e := newLeaf(addr.PAddr(0x20_0000), entryFlags{writable: true, noExec: true, huge: true, global: true})

	if !e.Present() || !e.Writable() || !e.NoExecute() || !e.Huge() || !e.Global() {
		t.Fatalf("unexpected flags: %#x", uint64(e))
	}
	if e.User() {
		t.Fatalf("expected non-user entry, got user bit set: %#x", uint64(e))
	}
	if e.PAddr() != addr.PAddr(0x20_0000) {
		t.Fatalf("PAddr() = %#x, want 0x200000", uint64(e.PAddr()))
	}
}

func TestNewTableEntryIsWritableAndUser(t *testing.T) {
	e := newTableEntry(addr.PAddr(0x3000))
	if !e.Present() || !e.Writable() || !e.User() {
		t.Fatalf("table entries must be present+writable+user-permissive, got %#x", uint64(e))
	}
	if e.Huge() {
		t.Fatalf("table entries must never set the huge bit")
	}
}

func TestWithPAddrPanicsOnMisalignedInput(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on misaligned physical address")
		}
	}()
	withPAddr(flagPresent, addr.PAddr(0x1001))
}

func TestCopyOnWriteBreakSequence(t *testing.T) {
	e := newLeaf(addr.PAddr(0x1000), entryFlags{writable: false}).WithCopyOnWrite()
	if !e.CopyOnWrite() || e.Writable() {
		t.Fatalf("expected read-only CoW entry, got %#x", uint64(e))
	}

	broken := e.WithoutCopyOnWrite().WithWritable(true).WithPAddr(addr.PAddr(0x2000))
	if broken.CopyOnWrite() || !broken.Writable() {
		t.Fatalf("CoW break did not clear CoW / set writable: %#x", uint64(broken))
	}
	if broken.PAddr() != addr.PAddr(0x2000) {
		t.Fatalf("CoW break did not repoint frame: %#x", uint64(broken.PAddr()))
	}
}
