package bootinfo

import (
	"testing"
	"unsafe"
)

func buildMMap(t *testing.T, descs []MemoryDescriptor) *MMap {
	t.Helper()
	backing := make([]MemoryDescriptor, len(descs))
	copy(backing, descs)
	return &MMap{
		Descriptors:    uintptr(unsafe.Pointer(&backing[0])),
		DescriptorSize: uint64(unsafe.Sizeof(MemoryDescriptor{})),
		NumDescriptors: uint64(len(descs)),
	}
}

func TestCollapseMergesAdjacentSameClassRuns(t *testing.T) {
	mm := buildMMap(t, []MemoryDescriptor{
		{Type: TypeConventionalMemory, PhysicalStart: 0, NumberOfPages: 1},
		{Type: TypeBootServicesData, PhysicalStart: 1 * pageSize, NumberOfPages: 2},
		{Type: TypeReservedMemory, PhysicalStart: 3 * pageSize, NumberOfPages: 1},
		{Type: TypeACPIReclaimMemory, PhysicalStart: 4 * pageSize, NumberOfPages: 1},
		{Type: TypeACPIReclaimMemory, PhysicalStart: 5 * pageSize, NumberOfPages: 1},
	})

	runs := Collapse(mm)

	want := []Run{
		{Class: ClassFree, StartPAddr: 0, NumPages: 3},
		{Class: ClassReserved, StartPAddr: 3 * pageSize, NumPages: 1},
		{Class: ClassACPI, StartPAddr: 4 * pageSize, NumPages: 2},
	}
	if len(runs) != len(want) {
		t.Fatalf("got %d runs, want %d: %+v", len(runs), len(want), runs)
	}
	for i, w := range want {
		if runs[i] != w {
			t.Errorf("run %d = %+v, want %+v", i, runs[i], w)
		}
	}
}

func TestCollapseSplitsOnNonContiguousBoundary(t *testing.T) {
	mm := buildMMap(t, []MemoryDescriptor{
		{Type: TypeConventionalMemory, PhysicalStart: 0, NumberOfPages: 1},
		{Type: TypeConventionalMemory, PhysicalStart: 2 * pageSize, NumberOfPages: 1},
	})

	runs := Collapse(mm)
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2 (gap breaks contiguity): %+v", len(runs), runs)
	}
}

func TestCollapseCapsAtMaxRuns(t *testing.T) {
	descs := make([]MemoryDescriptor, MaxRuns+10)
	for i := range descs {
		class := TypeConventionalMemory
		if i%2 == 1 {
			class = TypeReservedMemory
		}
		descs[i] = MemoryDescriptor{Type: class, PhysicalStart: uint64(i) * pageSize, NumberOfPages: 1}
	}
	mm := buildMMap(t, descs)

	runs := Collapse(mm)
	if len(runs) > MaxRuns {
		t.Fatalf("got %d runs, want <= %d", len(runs), MaxRuns)
	}
}

func TestParseCmdLine(t *testing.T) {
	kv := ParseCmdLine("smp=off quiet loglevel=3")
	if kv["smp"] != "off" {
		t.Errorf("smp = %q, want off", kv["smp"])
	}
	if kv["quiet"] != "quiet" {
		t.Errorf("quiet = %q, want quiet (bare flag)", kv["quiet"])
	}
	if kv["loglevel"] != "3" {
		t.Errorf("loglevel = %q, want 3", kv["loglevel"])
	}
}
