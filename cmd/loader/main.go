package main

import (
	"unsafe"

	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/acpi"
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/bootinfo"
	"github.com/vela-os/vela/kernel/cpu"
	"github.com/vela-os/vela/kernel/mem"
	"github.com/vela-os/vela/kernel/mem/paging"
)

// LoadedImage is the minimal subset of EFI_LOADED_IMAGE_PROTOCOL the
// loader reads: the command line the firmware was invoked with, forwarded
// to the kernel verbatim as BootInfo.CmdLine (bootinfo.ParseCmdLine can
// split it; Kmain does not call it).
type LoadedImage struct {
	LoadOptions string
}

// KernelEntry is the SysV calling-convention function the loader jumps to
// at elf_header.entry once BootInfo is ready; spec.md §6 declares this
// "fn(BootInfo) -> !" and it never returns. The real jump through a
// runtime-computed function pointer needs architecture-specific calling
// glue this repository does not build (a Go func value can't be pointed
// at an arbitrary loaded address); a statically-linked kernel image's
// entry symbol resolves to the same address a build would compute, so
// Boot takes the destination as an ordinary Go func value.
type KernelEntry func(bootinfo.Info)

// xsdpExtendedLen is the ACPI 2.0+ extended RSDP's full size, matching
// acpi.ValidateXSDP's own minimum-length requirement (spec.md §6: "length
// >= 36").
const xsdpExtendedLen = 36

// Platform bundles the privileged operations Boot needs that kernel/cpu
// declares without a Go body (real instruction sequences live in
// cpu_amd64.s, which the loader links against the same as the kernel
// proper). Bundling them behind fields rather than calling cpu.ReadCR3
// etc. directly keeps Boot's orchestration logic exercisable by host
// tests with fakes, the dependency-injection idiom this repository uses
// throughout for anything that ultimately bottoms out in real hardware.
type Platform struct {
	ReadCR3         func() uint64
	WriteCR3        func(uint64)
	SetWriteProtect func(bool)
}

// NewPlatform returns the real, hardware-backed Platform.
func NewPlatform() Platform {
	return Platform{
		ReadCR3:         cpu.ReadCR3,
		WriteCR3:        cpu.WriteCR3,
		SetWriteProtect: cpu.SetWriteProtect,
	}
}

// Boot runs spec.md §4.8's full bootloader sequence: clone the firmware's
// PML4 and switch to it, load kernel.elf's PT_LOAD segments, read
// kernel.map, locate and validate the ACPI 2.0 XSDP, finalize the UEFI
// memory map, and call entry with the assembled BootInfo.
func Boot(bs BootServices, fs FileSystem, image *LoadedImage, configTables []ConfigurationTable, alloc paging.FrameAllocator, plat Platform, entry KernelEntry) *kernel.Error {
	pml4, err := clonePML4(bs, plat)
	if err != nil {
		return err
	}

	kernelELF, err := readWholeFile(fs, "kernel.elf")
	if err != nil {
		return err
	}
	segs, entryPoint, err := parseKernelELF(kernelELF)
	if err != nil {
		return err
	}
	_ = entryPoint // computed for documentation parity with elf_header.entry; see KernelEntry's doc comment

	for _, seg := range segs {
		if err := mapAndCopySegment(pml4, seg, kernelELF, alloc, plat.SetWriteProtect); err != nil {
			return err
		}
	}

	kernelMap, err := readWholeFile(fs, "kernel.map")
	if err != nil {
		return err
	}

	xsdpPAddr, ok := locateXSDP(configTables)
	if !ok {
		return &kernel.Error{Module: "loader", Message: "ACPI 2.0 XSDP not present in SystemTable.ConfigurationTable"}
	}
	if err := acpi.ValidateXSDP(unsafeBytesAt(xsdpPAddr, xsdpExtendedLen)); err != nil {
		return err
	}

	snap, lerr := finalizeMemoryMap(bs)
	if lerr != nil {
		return wrapLoaderError(lerr)
	}

	info := bootinfo.Info{
		XSDPPAddr: xsdpPAddr,
		Mmap:      buildMMap(snap),
		Ksyms: struct {
			Ptr uintptr
			Len uint64
		}{Ptr: bufferAddr(kernelMap), Len: uint64(len(kernelMap))},
		CmdLine: image.LoadOptions,
	}

	entry(info)
	return nil
}

// clonePML4 implements spec.md §4.8 step 1: allocate a fresh 4 KiB page,
// copy the firmware's current PML4 into it, and switch CR3 to the clone
// so every subsequent mapPage call in Boot mutates the loader's own
// tables rather than the ones UEFI itself is still running under.
func clonePML4(bs BootServices, plat Platform) (addr.PAddr, *kernel.Error) {
	newPML4, lerr := bs.AllocatePages(1, bootinfo.TypeLoaderData)
	if lerr != nil {
		return 0, wrapLoaderError(lerr)
	}

	firmwarePML4 := plat.ReadCR3() &^ (uint64(mem.PageSize) - 1)
	src := unsafeBytesAt(firmwarePML4, uint64(mem.PageSize))
	dst := unsafeBytesAt(newPML4, uint64(mem.PageSize))
	copy(dst, src)

	plat.WriteCR3(newPML4)
	return addr.PAddr(newPML4), nil
}

// readWholeFile implements the "full buffer read" half of spec.md §4.8
// steps 3 and 4: open name off the ESP root and read it in its entirety.
func readWholeFile(fs FileSystem, name string) ([]byte, *kernel.Error) {
	f, lerr := fs.OpenFile(name)
	if lerr != nil {
		return nil, wrapLoaderError(lerr)
	}
	size, lerr := f.Size()
	if lerr != nil {
		return nil, wrapLoaderError(lerr)
	}
	buf := make([]byte, size)
	if _, lerr := f.ReadAt(buf, 0); lerr != nil {
		return nil, wrapLoaderError(lerr)
	}
	return buf, nil
}

func wrapLoaderError(e *LoaderError) *kernel.Error {
	return &kernel.Error{Module: "loader", Message: e.Error()}
}

func bufferAddr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}
