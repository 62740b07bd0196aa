package smp

import (
	"sync/atomic"

	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/cpu"
	"github.com/vela-os/vela/kernel/gdt"
	"github.com/vela-os/vela/kernel/idt"
	"github.com/vela-os/vela/kernel/mem/paging"
)

// coresOnline is spec.md §5's "cores_online": incremented with release
// ordering by each AP on completing early init, read with acquire
// ordering by the BSP's bring-up loop.
var coresOnline atomic.Uint64

// CoresOnline returns the current count with acquire semantics.
func CoresOnline() uint64 {
	return coresOnline.Load()
}

// initBSPOnline records the boot processor itself as online; called once
// from this package's init, before any AP bring-up starts, so CoresOnline starts at
// 1 as spec.md §4.7 scenario 3 expects ("final counter value = 3 (BSP +
// 2 APs)").
func initBSPOnline() {
	coresOnline.Store(1)
}

func init() {
	initBSPOnline()
}

// Clock is the HPET-measured wall-clock reference spec.md §4.7 requires
// for the INIT-wait and the per-AP bring-up timeout.
type Clock interface {
	NowNS() uint64
}

// IPISender is the subset of kernel/apic.Controller's operation set SMP
// bring-up drives.
type IPISender interface {
	SendInitIpi(apicID uint8)
	SendSipi(apicID uint8, vector uint8)
}

// AP describes one application processor awaiting bring-up.
type AP struct {
	APICID uint8
}

// apInitWaitNS is spec.md §4.7 step 4's "Wait ≥10ms on HPET" after INIT.
const apInitWaitNS = 10_000_000

// apBringUpTimeoutNS is spec.md §4.7 step 6's "~100ms timeout per AP".
const apBringUpTimeoutNS = 100_000_000

// spinPollLimit bounds every busy-wait loop below against a Clock that
// never advances, the same defensive bound kernel/timer/tsc and
// kernel/timer/lapic use for their own calibration loops.
const spinPollLimit = 10_000_000

var errAllocStackFailed = &kernel.Error{Module: "smp", Message: "per-AP stack allocation failed"}

// apStackPages is spec.md §4.7's "per-AP 4-page stack".
const apStackPages = 4

// AllocStack implements spec.md §4.7's per-AP stack allocation: maps
// apStackPages contiguous 4 KiB frames at virtBase under the physmap
// base, returning the stack-top virtual address (the highest mapped
// byte, rounded to the page boundary above the last frame) coreInit's
// caller passes into the trampoline's parameter block.
func AllocStack(pml4 addr.PAddr, virtBase addr.VAddr, alloc paging.FrameAllocator) (uint64, *kernel.Error) {
	perm := paging.Perm{Writable: true, NoExecute: true, User: false, Global: true}
	pageSize := paging.Size4KiB.Bytes()

	for i := uint64(0); i < apStackPages; i++ {
		frame, err := alloc.AllocFrame()
		if err != nil {
			return 0, errAllocStackFailed
		}
		virt := virtBase + addr.VAddr(i*pageSize)
		if err := paging.MapPage(pml4, frame, virt, paging.Size4KiB, perm, addr.PhysmapBase, alloc); err != nil {
			return 0, errAllocStackFailed
		}
	}
	return uint64(virtBase) + apStackPages*pageSize, nil
}

// BringUpResult records the outcome for one AP.
type BringUpResult struct {
	AP        AP
	Succeeded bool
}

// MapTrampolineFrame implements spec.md §4.7 step 1: identity-map the
// trampoline's physical frame with RWX supervisor permissions. Called
// once before BringUp's loop; the mapping and the binary it backs are
// shared across every AP's boot.
func MapTrampolineFrame(pml4, phys addr.PAddr, alloc paging.FrameAllocator) *kernel.Error {
	virt := addr.VAddr(uint64(phys))
	perm := paging.Perm{Writable: true, NoExecute: false, User: false, Global: false}
	return paging.MapPage(pml4, phys, virt, paging.Size4KiB, perm, addr.IdentityBase, alloc)
}

// BringUp implements spec.md §4.7's sequence for every AP in aps: fill
// the trampoline's parameter block, INIT+wait+SIPI, then spin on
// cores_online with a per-AP timeout. trampolinePhys is the identity-
// mapped low physical frame the trampoline binary lives at; callers must
// call MapTrampolineFrame and copy Image() into it before calling
// BringUp. stackTops supplies one pre-allocated per-AP stack-top virtual
// address per AP, in the same order as aps.
func BringUp(aps []AP, sender IPISender, ref Clock, trampolinePhys uintptr, bspCR3 uint64, entryPoint uint64, stackTops []uint64) []BringUpResult {
	results := make([]BringUpResult, len(aps))
	sipiVector := uint8(trampolinePhys >> 12)
	image := Image()

	for i, ap := range aps {
		WriteParameterBlock(image, bspCR3, stackTops[i], entryPoint)

		expected := coresOnline.Load()

		sender.SendInitIpi(ap.APICID)
		waitNS(ref, apInitWaitNS)

		sender.SendSipi(ap.APICID, sipiVector)

		results[i] = BringUpResult{AP: ap, Succeeded: waitForOnline(ref, expected, apBringUpTimeoutNS)}
	}
	return results
}

// waitNS busy-waits on ref until at least durationNS has elapsed, bounded
// by spinPollLimit polls.
func waitNS(ref Clock, durationNS uint64) {
	start := ref.NowNS()
	for i := 0; i < spinPollLimit; i++ {
		if ref.NowNS()-start >= durationNS {
			return
		}
	}
}

// waitForOnline spins until coresOnline advances past expected or
// timeoutNS elapses, per spec.md §4.7 step 6.
func waitForOnline(ref Clock, expected uint64, timeoutNS uint64) bool {
	start := ref.NowNS()
	for i := 0; i < spinPollLimit; i++ {
		if coresOnline.Load() != expected {
			return true
		}
		if ref.NowNS()-start >= timeoutNS {
			return coresOnline.Load() != expected
		}
	}
	return coresOnline.Load() != expected
}

// enableSpuriousVectorFn is installed by cmd/kernel's Kmain (with the
// apic.Controller's EnableSpuriousVector) so coreInit can enable this
// core's own spurious vector without smp importing apic
// (apic already imports interrupt, and importing apic from smp would be
// harmless today, but this indirection keeps smp's AP-entry path
// independent of which APIC mode bring-up chose, mirroring
// interrupt.signalEOIFn's import-cycle-avoidance seam).
var enableSpuriousVectorFn func()

// SetSpuriousVectorEnabler installs the per-core spurious-vector enable
// hook coreInit calls. Called once from cmd/kernel's Kmain, after
// apic.Controller.Init.
func SetSpuriousVectorEnabler(fn func()) {
	enableSpuriousVectorFn = fn
}

// CoreInit implements spec.md §4.7's AP-side coreInit: load this core's
// GDT and IDT, reload segments, enable the spurious-vector APIC entry,
// atomically increment cores_online with release ordering, then halt
// until the scheduler adopts the core.
func CoreInit(table *gdt.Table, idtTable *idt.Table) {
	table.Load()
	cpu.ReloadSegments(uint16(gdt.KernelCodeSelector), uint16(gdt.KernelDataSelector))
	idtTable.Load()

	if enableSpuriousVectorFn != nil {
		enableSpuriousVectorFn()
	}

	coresOnline.Add(1)

	cpu.Halt()
}
