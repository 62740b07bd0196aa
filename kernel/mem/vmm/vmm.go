// Package vmm is a minimal region-classifying virtual memory manager,
// implementing the isValidVAddr(VAddr) predicate spec.md §3 names only as
// an external collaborator, plus the copy-on-write zero-page mechanism
// supplemented in DESIGN.md. Like kernel/mem/pmm, its policy is
// deliberately small: one kernel region, one user region, exactly enough
// to make spec.md §8's page-fault scenarios executable against real code.
//
// Grounded on the teacher's kernel/mm/vmm package: Init/reserveZeroedFrame
// (src/gopheros/kernel/mm/vmm/vmm.go) for the shared zero-frame lifecycle,
// and fault.go/fault_amd64.go's CoW break for pageFaultHandler's
// counterpart in kernel/exception. Region classification itself has no
// teacher analogue (the teacher has no notion of "valid address" separate
// from "currently mapped"); it follows the same "small function over a
// package-level range" style as EarlyReserveRegion.
package vmm

import (
	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/mem"
	"github.com/vela-os/vela/kernel/mem/paging"
)

// Region is a half-open virtual address range classified as belonging to
// one of the two address-space partitions this VMM recognizes.
type Region struct {
	Start, End addr.VAddr
}

func (r Region) contains(v addr.VAddr) bool { return v >= r.Start && v < r.End }

// Class is the outcome of classifying a virtual address against the
// configured kernel and user regions.
type Class uint8

const (
	ClassNeither Class = iota
	ClassKernel
	ClassUser
)

var (
	kernelRegion Region
	userRegion   Region

	// zeroFrame is the single physical frame every CoW-reserved mapping
	// points at read-only until the first write breaks it into a private
	// copy. Grounded on the teacher's ReservedZeroedFrame.
	zeroFrame addr.PAddr
	ready     bool

	errAlreadyWritable = &kernel.Error{Module: "vmm", Message: "ReserveCopyOnWrite: mapping must not already be writable"}

	// physAddrFn resolves a physical frame to the address Memset/Memcopy
	// should touch to reach its contents. Under the physmap it is just
	// frame.VAddr(addr.PhysmapBase); tests override it to point at
	// ordinary Go-allocated backing memory instead, the same seam
	// kernel/mem/paging's tableAtFn provides for the same reason: no real
	// physical memory sits behind a host test process's fake PAddrs.
	physAddrFn = func(p addr.PAddr) uintptr { return uintptr(p.VAddr(addr.PhysmapBase)) }
)

// SetPhysAddrResolver overrides physAddrFn for tests in other packages
// (kernel/exception) that drive Init/ReserveCopyOnWrite/BreakCopyOnWrite
// against fake memory rather than the real physmap, mirroring
// paging.SetTableResolver. The returned func restores the previous
// resolver and must be deferred by the caller.
func SetPhysAddrResolver(fn func(addr.PAddr) uintptr) (restore func()) {
	orig := physAddrFn
	physAddrFn = fn
	return func() { physAddrFn = orig }
}

// Init records the kernel and user region bounds and reserves the shared
// zero frame CoW mappings point at. alloc must already be backed by a live
// PMM (spec.md's init order: PMM before VMM).
func Init(kernelR, userR Region, alloc paging.FrameAllocator) *kernel.Error {
	kernelRegion = kernelR
	userRegion = userR

	frame, err := alloc.AllocFrame()
	if err != nil {
		return err
	}
	zeroFrame = frame
	kernel.Memset(physAddrFn(frame), 0, uintptr(mem.PageSize))

	ready = true
	return nil
}

// Classify reports which region v falls in, or ClassNeither if it falls in
// neither the configured kernel nor user range.
func Classify(v addr.VAddr) Class {
	switch {
	case kernelRegion.contains(v):
		return ClassKernel
	case userRegion.contains(v):
		return ClassUser
	default:
		return ClassNeither
	}
}

// IsValidVAddr implements spec.md §3's isValidVAddr predicate: true iff v
// falls within a region the VMM has declared, regardless of whether it is
// currently backed by a mapping.
func IsValidVAddr(v addr.VAddr) bool {
	return Classify(v) != ClassNeither
}

// ReserveCopyOnWrite maps virt read-only against the shared zero frame with
// the CoW bit set, so a subsequent write fault triggers BreakCopyOnWrite
// instead of a protection violation. It is the VMM-side half of the
// demand-paging CoW scenario kernel/exception's page-fault handler drives.
func ReserveCopyOnWrite(pml4 addr.PAddr, virt addr.VAddr, base addr.Base, alloc paging.FrameAllocator) *kernel.Error {
	if err := paging.MapPage(pml4, zeroFrame, virt, paging.Size4KiB, paging.Perm{Writable: false, NoExecute: true}, base, alloc); err != nil {
		return err
	}

	ptr, _, ok := paging.EntryPtr(pml4, virt, base)
	if !ok {
		panic("vmm: CoW mapping vanished immediately after being installed")
	}
	if ptr.Writable() {
		panic(errAlreadyWritable)
	}
	*ptr = ptr.WithCopyOnWrite()
	return nil
}

// BreakCopyOnWrite allocates a private frame, copies the zero frame's
// contents into it (all zero, but copied rather than assumed so this
// generalizes to a future shared-but-nonzero frame), and repoints virt's
// leaf at the new frame with the CoW bit cleared and writable set. Callers
// must invalidate the TLB entry for virt after this returns; it does not
// do so itself so callers driven from assembly-adjacent contexts control
// exactly when that happens relative to resuming the faulting instruction.
func BreakCopyOnWrite(pml4 addr.PAddr, virt addr.VAddr, base addr.Base, alloc paging.FrameAllocator) *kernel.Error {
	newFrame, err := alloc.AllocFrame()
	if err != nil {
		return err
	}

	kernel.Memcopy(physAddrFn(zeroFrame), physAddrFn(newFrame), uintptr(mem.PageSize))

	ptr, _, ok := paging.EntryPtr(pml4, virt, base)
	if !ok {
		return &kernel.Error{Module: "vmm", Message: "BreakCopyOnWrite: mapping vanished before the break could complete"}
	}
	*ptr = ptr.WithoutCopyOnWrite().WithWritable(true).WithPAddr(newFrame)
	return nil
}
