// Command kernel is the statically-linked ELF image cmd/loader maps and
// jumps into: the entry point spec.md §9 names "Kmain" and its init-order
// sequencing (CPU primitives, GDT, IDT, exception handlers, serial,
// memory-map parsing, PMM, VMM, ACPI, APIC, HPET, TSC, LAPIC calibration).
// Kmain installs the per-core spurious-vector hook kernel/smp uses but
// does not start application processors: smp.BringUp is not called.
//
// Grounded on the teacher's kernel/kmain/kmain.go: the same "sequential
// init calls in an if/else-if chain, panic(err) on failure, never return"
// shape, extended with the additional stages this kernel's spec requires
// that gopher-os never reaches (GDT/IDT/exceptions, ACPI, APIC, SMP).
package main

import (
	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/acpi"
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/apic"
	"github.com/vela-os/vela/kernel/bootinfo"
	"github.com/vela-os/vela/kernel/cpu"
	"github.com/vela-os/vela/kernel/exception"
	"github.com/vela-os/vela/kernel/gdt"
	"github.com/vela-os/vela/kernel/idt"
	"github.com/vela-os/vela/kernel/kfmt"
	"github.com/vela-os/vela/kernel/mem"
	"github.com/vela-os/vela/kernel/mem/paging"
	"github.com/vela-os/vela/kernel/mem/pmm"
	"github.com/vela-os/vela/kernel/mem/vmm"
	"github.com/vela-os/vela/kernel/serial"
	"github.com/vela-os/vela/kernel/smp"
	"github.com/vela-os/vela/kernel/syscall"
	"github.com/vela-os/vela/kernel/timer/hpet"
	"github.com/vela-os/vela/kernel/timer/lapic"
	"github.com/vela-os/vela/kernel/timer/tsc"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// kernelRegion and userRegion bound the two address-space partitions
// vmm.Classify recognizes. The kernel region covers a generous 1 GiB
// above addr.KernelBaseAddr (image, heap and physmap-adjacent structures);
// the user region is the canonical low half every ring-3 process address
// falls in. Neither bound is read from BootInfo: spec.md's supplemented
// VMM policy is deliberately fixed, not computed from the kernel image's
// actual footprint.
var (
	kernelRegion = vmm.Region{
		Start: addr.VAddr(addr.KernelBaseAddr),
		End:   addr.VAddr(addr.KernelBaseAddr + 0x40000000),
	}
	userRegion = vmm.Region{
		Start: addr.VAddr(0x0000000000400000),
		End:   addr.VAddr(0x0000800000000000),
	}
)

// localAPICDefaultBase is the architectural default xAPIC MMIO base.
// A complete implementation would read the MADT's LocalControllerAddress
// field to pick up a firmware override; kernel/acpi does not currently
// export that field (only the variable-length entry records after it),
// so this constant stands in for it. See DESIGN.md.
const localAPICDefaultBase uintptr = 0xFEE00000

// acpiTableReadWindow bounds every ACPI table read off the physmap at a
// size generous enough to cover any XSDT/MADT/HPET table this kernel is
// expected to see; acpi.ValidateSDTHeader itself re-checks the declared
// Length field against the buffer, so over-reading is harmless.
const acpiTableReadWindow = 4096

// bspGDT and bspIDT are the boot core's GDT/IDT. The IDT is process-wide
// (idt.Table's own doc comment: "exactly one, process-wide"); every
// application processor loads the same Table via smp.CoreInit, while each
// core -- including the BSP -- owns its own GDT/TSS.
var (
	bspGDT gdt.Table
	bspIDT idt.Table
)

// Kmain is cmd/loader's KernelEntry: the statically-linked image's entry
// symbol, invoked once with the BootInfo payload assembled in cmd/loader
// and never expected to return.
//
//go:noinline
func Kmain(info bootinfo.Info) {
	bspGDT.Init()
	bspGDT.Load()

	bspIDT.Init(buildUserDPL3())
	bspIDT.Load()

	alloc := &pmm.BitmapAllocator{}
	exception.Install(alloc)

	console := serial.Open(serial.COM1)
	kfmt.SetOutputSink(console)
	kfmt.Printf("starting kernel\n")

	runs := bootinfo.Collapse(&info.Mmap)
	var err *kernel.Error
	if err = alloc.Init(runs); err != nil {
		kernel.Panic(err)
	}

	pml4 := addr.PAddr(cpu.ReadCR3() &^ uint64(mem.PageSize-1))
	if err = paging.PhysMapRegion(pml4, 0, physMapExtent(runs), alloc); err != nil {
		kernel.Panic(err)
	}

	if err = vmm.Init(kernelRegion, userRegion, alloc); err != nil {
		kernel.Panic(err)
	}

	syscall.Init()

	xsdp := unsafeBytesAtPhysmapFn(info.XSDPPAddr, xsdpExtendedLen)
	if err = acpi.ValidateXSDP(xsdp); err != nil {
		kernel.Panic(err)
	}
	xsdt := readACPITable(acpi.XSDTAddr(xsdp))
	if err = acpi.ValidateXSDT(xsdt); err != nil {
		kernel.Panic(err)
	}
	tableEntries := acpi.XSDTEntries(xsdt)

	lapicCtl := apic.New(localAPICDefaultBase)
	apic.MaskLegacyPICs()
	lapicCtl.Init()
	smp.SetSpuriousVectorEnabler(lapicCtl.EnableSpuriousVector)

	if hpetTable := findACPITable(tableEntries, "HPET"); hpetTable != nil {
		clockSrc := hpet.New(addr.PAddr(acpi.HPETBaseAddress(hpetTable)).VAddr(addr.PhysmapBase).Ptr())
		clockSrc.Enable()

		if _, err = tsc.Calibrate(clockSrc); err != nil {
			kernel.Panic(err)
		}

		lt := lapic.New(localAPICDefaultBase, apic.SupportsX2APIC(), tsc.HasTSCDeadline(), apic.VectorSchedTick)
		if _, err = lt.Calibrate(clockSrc); err != nil {
			kernel.Panic(err)
		}
	}

	kernel.Panic(errKmainReturned)
}

// buildUserDPL3 merges exception.UserDPL3()'s #BP/#DB vectors with the
// syscall gate: idt.Table.Init needs one map naming every vector ring 3
// may invoke directly with int, and the syscall package does not import
// kernel/idt (it only declares its own Vector constant), so the union is
// assembled here rather than in either package.
func buildUserDPL3() map[uint8]bool {
	dpl3 := exception.UserDPL3()
	dpl3[syscall.Vector] = true
	return dpl3
}

// readACPITable reads a fixed-size window starting at paddr under the
// physmap; callers pass the result to acpi.ValidateSDTHeader or one of
// its signature-specific wrappers before trusting any field in it.
func readACPITable(paddr uint64) []byte {
	return unsafeBytesAtPhysmapFn(paddr, acpiTableReadWindow)
}

// findACPITable scans the XSDT's entry list for the first table whose
// header validates against sig, or nil if none does. Matches spec.md
// §7's "reported to caller" error model: a missing optional table (HPET,
// MADT) is not fatal on its own, only the stages that depend on it are
// skipped.
func findACPITable(entries []uint64, sig string) []byte {
	for _, e := range entries {
		b := readACPITable(e)
		if acpi.ValidateSDTHeader(b, sig) == nil {
			return b
		}
	}
	return nil
}

const xsdpExtendedLen = 36

// physMapExtent returns the end of the highest physical run the firmware
// memory map describes, the upper bound paging.PhysMapRegion needs to cover
// every physical frame the PMM could ever hand out (and every ACPI table
// address the loader reports) with a physmap translation.
func physMapExtent(runs []bootinfo.Run) addr.PAddr {
	var end uint64
	for _, r := range runs {
		if e := r.StartPAddr + r.NumPages*uint64(mem.PageSize); e > end {
			end = e
		}
	}
	return addr.PAddr(end)
}
