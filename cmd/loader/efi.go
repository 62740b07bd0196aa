// Package main is the UEFI bootloader: a freestanding EFI application
// that locates the kernel image and its ACPI tables, builds the kernel's
// initial address space, and hands off to the kernel entry point with a
// populated BootInfo (spec.md §4.8).
//
// No UEFI binding package exists anywhere in this retrieval's example
// corpus, so the protocol and table structs below are hand-defined
// against the UEFI spec's own layouts, the same "struct matches C layout"
// discipline kernel/bootinfo.MemoryDescriptor already uses for the memory
// map UEFI itself hands over.
package main

import "github.com/vela-os/vela/kernel/bootinfo"

// GUID mirrors EFI_GUID's four-field layout exactly; UEFI never lays a
// GUID out as sixteen opaque bytes.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// acpi20TableGUID is EFI_ACPI_20_TABLE_GUID, the vendor GUID the firmware
// tags its ACPI 2.0+ XSDP entry with in the configuration table array.
var acpi20TableGUID = GUID{
	Data1: 0x8868e871,
	Data2: 0xe4f1,
	Data3: 0x11d3,
	Data4: [8]byte{0xbc, 0x22, 0x00, 0x80, 0xc7, 0x3c, 0x88, 0x81},
}

// ConfigurationTable mirrors one EFI_CONFIGURATION_TABLE entry out of
// SystemTable.ConfigurationTable.
type ConfigurationTable struct {
	VendorGUID  GUID
	VendorTable uintptr
}

// locateXSDP scans tables for the ACPI 2.0 vendor GUID and returns the
// physical address of the XSDP it points at. Grounded on spec.md §4.8
// step 5's "locate the XSDP via SystemTable.ConfigurationTable".
func locateXSDP(tables []ConfigurationTable) (paddr uint64, ok bool) {
	for _, t := range tables {
		if t.VendorGUID == acpi20TableGUID {
			return uint64(t.VendorTable), true
		}
	}
	return 0, false
}

// File is the minimal subset of EFI_FILE_PROTOCOL the loader needs: read
// the whole of kernel.elf or kernel.map into memory.
type File interface {
	Size() (uint64, *LoaderError)
	ReadAt(buf []byte, offset uint64) (int, *LoaderError)
}

// FileSystem is the minimal subset of EFI_SIMPLE_FILE_SYSTEM_PROTOCOL the
// loader needs: open a named file off the ESP's root directory.
type FileSystem interface {
	OpenFile(name string) (File, *LoaderError)
}

// MemoryMapSnapshot is one GetMemoryMap call's result: the raw descriptor
// buffer plus the bookkeeping ExitBootServices needs back.
type MemoryMapSnapshot struct {
	Buffer         []byte
	MapKey         uint64
	DescriptorSize uint64
	NumDescriptors uint64
}

// BootServices is the subset of EFI_BOOT_SERVICES the loader drives.
// The real implementation calls through SystemTable.BootServices's
// function-pointer table, which requires architecture calling-convention
// glue this repository has no analogue for (the teacher never leaves ring
// 0, let alone calls firmware); tests substitute a fake so the
// orchestration logic in main.go is exercised without real firmware.
type BootServices interface {
	// AllocatePages reserves numPages contiguous 4 KiB physical pages of
	// the given UEFI memory type and returns their base address.
	AllocatePages(numPages uint64, memType bootinfo.DescriptorType) (uint64, *LoaderError)

	// GetMemoryMap snapshots the current map into a caller-supplied
	// buffer. When buf is undersized it returns a LoaderError carrying
	// ErrBufferTooSmall's Message, with RequiredSize set to the size
	// needed; the caller must grow and retry per spec.md §4.8 step 6.
	GetMemoryMap(buf []byte) (MemoryMapSnapshot, *LoaderError)

	// ExitBootServices finalizes the handoff. Firmware may invalidate
	// mapKey between the last GetMemoryMap and this call (if some other
	// agent allocates); on that failure the caller must re-snapshot and
	// retry exactly once, per spec.md §4.8 step 7.
	ExitBootServices(mapKey uint64) *LoaderError
}

// ErrBufferTooSmall is returned by GetMemoryMap when buf cannot hold the
// current map; LoaderError.RequiredSize carries the size to retry with.
// Because each failure carries its own RequiredSize, callers recognise it
// by Message rather than by pointer identity.
var ErrBufferTooSmall = &LoaderError{Message: "efi: GetMemoryMap buffer too small"}

// ErrStaleMapKey is returned by ExitBootServices when the map key the
// caller presented no longer matches the firmware's current map.
var ErrStaleMapKey = &LoaderError{Message: "efi: ExitBootServices map key is stale"}

// LoaderError is this package's plain-struct error type, following
// kernel.Error's shape: a named sentinel (compared by identity, except
// ErrBufferTooSmall, which is matched by Message), plus an optional field
// carrying extra context a caller needs to react to the failure (rather
// than just log it).
type LoaderError struct {
	Message      string
	RequiredSize uint64
}

func (e *LoaderError) Error() string { return e.Message }
