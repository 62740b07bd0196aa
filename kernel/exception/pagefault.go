package exception

import (
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/cpu"
	"github.com/vela-os/vela/kernel/interrupt"
	"github.com/vela-os/vela/kernel/mem"
	"github.com/vela-os/vela/kernel/mem/paging"
	"github.com/vela-os/vela/kernel/mem/vmm"
)

// readCR2Fn and readCR3Fn indirect the matching cpu.Read* calls so host
// tests can drive handlePageFault with a chosen fault address and active
// PML4 instead of whatever happens to be in the real control registers.
var (
	readCR2Fn = cpu.ReadCR2
	readCR3Fn = cpu.ReadCR3
)

// pfErrorCode is the decoded #PF error code, spec.md §4.4's
// "{present, write, user, rsvd_violation, instr_fetch, ...}".
type pfErrorCode struct {
	present    bool
	write      bool
	user       bool
	rsvd       bool
	instrFetch bool
}

func decodePFErrorCode(code uint64) pfErrorCode {
	return pfErrorCode{
		present:    code&(1<<0) != 0,
		write:      code&(1<<1) != 0,
		user:       code&(1<<2) != 0,
		rsvd:       code&(1<<3) != 0,
		instrFetch: code&(1<<4) != 0,
	}
}

// handlePageFault implements spec.md §4.4's page-fault algorithm: reserved
// bit violations and a not-yet-ready PMM are immediately fatal; a fault on
// a present mapping is either a copy-on-write break (spec.md's
// supplemented feature, §C.1) or a protection violation; a fault on a
// non-present mapping is demand-mapped against whichever of the kernel or
// user VMM region claims the address, or panics if neither does.
//
// Grounded on the teacher's vmm.pageFaultHandler (fault.go): the CoW-break
// branch taken before falling through to the unrecoverable path follows
// its walk/HasFlags(FlagCopyOnWrite) structure exactly, generalized from
// the teacher's two-level table walk to this package's four-level one via
// paging.EntryPtr.
func handlePageFault(ctx *interrupt.Context) {
	ec := decodePFErrorCode(ctx.ErrCode)

	if ec.rsvd {
		dumpFault(ctx, "page fault: reserved bit set")
		panicFn(errReservedBitViolation)
		return
	}
	if allocator == nil {
		dumpFault(ctx, "page fault: PMM not ready")
		panicFn(errPMMNotReady)
		return
	}

	faultAddr := addr.VAddr(readCR2Fn())
	page := faultAddr.AlignDown(uint64(mem.PageSize))
	pml4 := addr.PAddr(readCR3Fn()).AlignDown(uint64(mem.PageSize))

	if ec.present {
		handlePresentFault(ctx, pml4, page, ec)
		return
	}

	handleNonPresentFault(ctx, pml4, page, ec)
}

// handlePresentFault is reached when the faulting page was already
// mapped: either a CoW break (read-only + CopyOnWrite, faulting on a
// write) or an otherwise unrecoverable protection violation.
func handlePresentFault(ctx *interrupt.Context, pml4 addr.PAddr, page addr.VAddr, ec pfErrorCode) {
	if ptr, _, ok := paging.EntryPtr(pml4, page, addr.PhysmapBase); ok && ec.write && !ptr.Writable() && ptr.CopyOnWrite() {
		if err := vmm.BreakCopyOnWrite(pml4, page, addr.PhysmapBase, allocator); err != nil {
			dumpFault(ctx, "page fault: copy-on-write break failed")
			panicFn(err)
			return
		}
		invalidatePageFn(uint64(page))
		return
	}

	dumpFault(ctx, "page fault: protection violation")
	if ctx.CPL() == 0 {
		panicFn(errProtectionKernel)
		return
	}
	panicFn(errProtectionUser)
}

// handleNonPresentFault demand-maps a fresh frame into whichever VMM
// region claims page, or panics if neither the kernel nor the user VMM
// recognizes the address.
func handleNonPresentFault(ctx *interrupt.Context, pml4 addr.PAddr, page addr.VAddr, ec pfErrorCode) {
	var perm paging.Perm
	switch vmm.Classify(page) {
	case vmm.ClassKernel:
		perm = paging.Perm{Writable: ec.write, NoExecute: true, Global: true}
	case vmm.ClassUser:
		perm = paging.Perm{Writable: ec.write, NoExecute: true, User: true}
	default:
		dumpFault(ctx, "page fault: unmapped address outside any known region")
		panicFn(errUnknownRegion)
		return
	}

	frame, err := allocator.AllocFrame()
	if err != nil {
		dumpFault(ctx, "page fault: out of physical memory")
		panicFn(err)
		return
	}
	if err := paging.MapPage(pml4, frame, page, paging.Size4KiB, perm, addr.PhysmapBase, allocator); err != nil {
		dumpFault(ctx, "page fault: mapping the new frame failed")
		panicFn(err)
		return
	}
	invalidatePageFn(uint64(page))
}
