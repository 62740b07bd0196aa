package gdt

import (
	"testing"
	"unsafe"
)

func TestInitPopulatesFixedSlots(t *testing.T) {
	var tbl Table
	tbl.Init()

	tests := []struct {
		name string
		idx  int
		want slot
	}{
		{"null", 0, 0},
		{"kernel code", 1, codeSegment(0)},
		{"kernel data", 2, dataSegment(0)},
		{"user code", 3, codeSegment(3)},
		{"user data", 4, dataSegment(3)},
	}
	for _, tt := range tests {
		if tbl.slots[tt.idx] != tt.want {
			t.Errorf("%s slot = %#x, want %#x", tt.name, uint64(tbl.slots[tt.idx]), uint64(tt.want))
		}
	}
}

func TestTSSDescriptorEncodesBaseAddress(t *testing.T) {
	var tbl Table
	tbl.Init()

	low := uint64(tbl.slots[5])
	high := uint64(tbl.slots[6])

	gotBase := ((low >> 16) & 0xFFFFFF) | (((low >> 56) & 0xFF) << 24) | (high << 32)
	wantBase := uint64(uintptr(unsafe.Pointer(&tbl.tss)))

	if gotBase != wantBase {
		t.Errorf("TSS descriptor base = %#x, want %#x", gotBase, wantBase)
	}

	if present := low & accPresent; present == 0 {
		t.Error("TSS descriptor missing present bit")
	}
}

func TestSelectorStringNamesKnownSlotsAndFallsBackOnUnknown(t *testing.T) {
	cases := []struct {
		sel  Selector
		want string
	}{
		{NullSelector, "NullSelector"},
		{KernelCodeSelector, "KernelCodeSelector"},
		{UserDataSelector, "UserDataSelector"},
		{TSSSelector, "TSSSelector"},
		{Selector(0x99), "Selector(153)"},
	}
	for _, c := range cases {
		if got := c.sel.String(); got != c.want {
			t.Errorf("Selector(%#x).String() = %q, want %q", uint16(c.sel), got, c.want)
		}
	}
}

func TestSetRsp0AndIST(t *testing.T) {
	var tbl Table
	tbl.Init()

	tbl.TSS().SetRsp0(0xFFFF_8000_0001_0000)
	if tbl.tss.Rsp0 != 0xFFFF_8000_0001_0000 {
		t.Errorf("Rsp0 = %#x", tbl.tss.Rsp0)
	}

	tbl.TSS().SetIST(1, 0xFFFF_8000_0002_0000)
	if tbl.tss.Ist[0] != 0xFFFF_8000_0002_0000 {
		t.Errorf("Ist[0] = %#x", tbl.tss.Ist[0])
	}
}
