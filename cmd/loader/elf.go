package main

import (
	"bytes"
	"debug/elf"
	"unsafe"

	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/mem"
	"github.com/vela-os/vela/kernel/mem/paging"
)

// loadSegment is the subset of an ELF64 program header spec.md §4.8 step 3
// cares about: where it goes, how big it is on disk versus in memory, and
// the permissions to derive from p_flags.
type loadSegment struct {
	VAddr, PAddr        uint64
	FileOff             uint64
	FileSize, MemSize   uint64
	Writable, NoExecute bool
}

// unsafeBytesAtFn reinterprets a just-mapped virtual range as a byte
// slice. A package variable rather than a direct unsafe call, the same
// seam discipline kernel/exception.fetchInstructionBytesFn and
// kernel/syscall.readUserBytesFn use: va is a real mapped address at
// runtime but an arbitrary fake buffer address in host tests.
var unsafeBytesAtFn = func(va, length uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(va))), length)
}

func unsafeBytesAt(va, length uint64) []byte {
	return unsafeBytesAtFn(va, length)
}

// parseKernelELF reads image (already loaded in full, per spec.md §4.8 step 4's
// "full kernel.map read into a buffer" sibling requirement for kernel.elf)
// and returns every PT_LOAD segment plus the entry point, using the
// standard library's own ELF reader rather than hand-rolling header
// decoding: debug/elf already knows the real on-disk layout bit for bit.
func parseKernelELF(image []byte) ([]loadSegment, uint64, *kernel.Error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, 0, &kernel.Error{Module: "loader", Message: "kernel.elf: " + err.Error()}
	}
	defer f.Close()

	var segs []loadSegment
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segs = append(segs, loadSegment{
			VAddr:     p.Vaddr,
			PAddr:     p.Paddr,
			FileOff:   p.Off,
			FileSize:  p.Filesz,
			MemSize:   p.Memsz,
			Writable:  p.Flags&elf.PF_W != 0,
			NoExecute: p.Flags&elf.PF_X == 0,
		})
	}
	if len(segs) == 0 {
		return nil, 0, &kernel.Error{Module: "loader", Message: "kernel.elf: no PT_LOAD segments"}
	}
	return segs, f.Entry, nil
}

// mapAndCopySegment implements spec.md §4.8 step 3's per-segment sequence:
// map every 4 KiB page of [p_vaddr, p_vaddr+p_memsz) into the clone PML4,
// at the final permissions p_flags derives, then temporarily clear CR0.WP
// to copy p_filesz bytes out of the ELF image and zero the BSS tail
// [p_filesz, p_memsz) through that same mapping before restoring it.
// Segments the kernel links read-only (.text) are mapped RX from the
// start; without the WP toggle the supervisor write performing the copy
// would itself fault against the mapping it just installed.
func mapAndCopySegment(pml4 addr.PAddr, seg loadSegment, image []byte, alloc paging.FrameAllocator, setWriteProtect func(bool)) *kernel.Error {
	pageSize := uint64(mem.PageSize)
	segBase := seg.VAddr &^ (pageSize - 1)
	end := (seg.VAddr + seg.MemSize + pageSize - 1) &^ (pageSize - 1)

	perm := paging.Perm{Writable: seg.Writable, NoExecute: seg.NoExecute}
	for va := segBase; va < end; va += pageSize {
		phys := seg.PAddr + (va - segBase)
		if err := paging.MapPage(pml4, addr.PAddr(phys), addr.VAddr(va), paging.Size4KiB, perm, addr.IdentityBase, alloc); err != nil {
			return err
		}
	}

	dst := unsafeBytesAt(seg.VAddr, seg.MemSize)

	setWriteProtect(false)
	copy(dst[:seg.FileSize], image[seg.FileOff:seg.FileOff+seg.FileSize])
	for i := seg.FileSize; i < seg.MemSize; i++ {
		dst[i] = 0
	}
	setWriteProtect(true)

	return nil
}
