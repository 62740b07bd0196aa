// Package exception installs the default handlers spec.md §4.4 requires
// at interrupt vectors 0-31: #DE/#DF (panic, distinguishing kernel- from
// user-mode fault sites), #DB/#BP (resume in kernel mode, panic in user
// mode), and #PF (the central demand-paging/copy-on-write algorithm,
// implemented in pagefault.go). #GP and #UD are additive: the teacher has
// no equivalent exception package (gopher-os's gate.go only wires vmm's
// own fault.go handlers), so the registration/DPL policy here follows
// spec.md §4.4 directly and the panic-dump style follows
// kernel/panic.go/kernel/interrupt's Context.Print.
package exception

import (
	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/cpu"
	"github.com/vela-os/vela/kernel/interrupt"
	"github.com/vela-os/vela/kernel/mem/paging"
)

// Exception vectors named by spec.md §4.4.
const (
	vectorDE = 0  // divide-by-zero
	vectorDB = 1  // debug
	vectorBP = 3  // breakpoint
	vectorDF = 8  // double fault
	vectorGP = 13 // general protection
	vectorPF = 14 // page fault
	vectorUD = 6  // invalid opcode
)

// panicFn is called on an unrecoverable fault. A package variable, not a
// direct kernel.Panic call, for the same host-testability reason
// kernel/interrupt's panicFn exists: it defaults to kernel.Panic and is
// swapped for a non-halting stand-in in tests.
var panicFn = kernel.Panic

var (
	errReservedBitViolation = &kernel.Error{Module: "exception", Message: "page fault: reserved bit set in page table entry"}
	errPMMNotReady          = &kernel.Error{Module: "exception", Message: "page fault: PMM not yet initialized"}
	errUnknownRegion        = &kernel.Error{Module: "exception", Message: "page fault: address is in neither the kernel nor the user region"}
	errProtectionKernel     = &kernel.Error{Module: "exception", Message: "page fault: invalid access (kernel mode)"}
	errProtectionUser       = &kernel.Error{Module: "exception", Message: "page fault: invalid access (user mode)"}
	errDivideErrorKernel    = &kernel.Error{Module: "exception", Message: "divide error in kernel mode"}
	errDivideErrorUser      = &kernel.Error{Module: "exception", Message: "divide error in user mode"}
	errDoubleFaultKernel    = &kernel.Error{Module: "exception", Message: "double fault in kernel mode"}
	errDoubleFaultUser      = &kernel.Error{Module: "exception", Message: "double fault in user mode"}
	errBreakpointUser       = &kernel.Error{Module: "exception", Message: "breakpoint trap in user mode, process termination pending"}
	errGeneralProtection    = &kernel.Error{Module: "exception", Message: "general protection fault"}
	errInvalidOpcode        = &kernel.Error{Module: "exception", Message: "invalid opcode"}
)

// allocator is the PMM handed to Install; the page-fault handler uses it
// to materialize both leaf frames and any missing intermediate tables.
// Left nil until Install runs, so a page fault taken before Install hits
// the "PMM not yet initialized" branch spec.md §4.4 step 2 requires
// instead of a nil-pointer panic.
var allocator paging.FrameAllocator

// UserDPL3 is the vector set spec.md §4.4 requires opened at DPL 3: #BP
// and #DB, so userland can invoke them directly with int3/icebp. Callers
// pass this straight to idt.Table.Init.
func UserDPL3() map[uint8]bool {
	return map[uint8]bool{vectorDB: true, vectorBP: true}
}

// Install registers the default vector 0-31 handlers with
// kernel/interrupt and records alloc as the page-fault handler's frame
// source. Called once during kernel init, right after the IDT is loaded
// and before the PMM and VMM are initialised. A page fault taken after
// Install but before alloc is initialised reaches alloc.AllocFrame, and
// the handler panics with the error that call returns.
func Install(alloc paging.FrameAllocator) {
	allocator = alloc

	interrupt.RegisterException(vectorDE, handleDivideError)
	interrupt.RegisterException(vectorDB, handleDebugOrBreakpoint)
	interrupt.RegisterException(vectorBP, handleDebugOrBreakpoint)
	interrupt.RegisterException(vectorDF, handleDoubleFault)
	interrupt.RegisterException(vectorGP, handleGeneralProtection)
	interrupt.RegisterException(vectorUD, handleInvalidOpcode)
	interrupt.RegisterException(vectorPF, handlePageFault)
}

func handleDivideError(ctx *interrupt.Context) {
	dumpFault(ctx, "divide error")
	if ctx.CPL() == 0 {
		panicFn(errDivideErrorKernel)
		return
	}
	panicFn(errDivideErrorUser)
}

func handleDoubleFault(ctx *interrupt.Context) {
	dumpFault(ctx, "double fault")
	if ctx.CPL() == 0 {
		panicFn(errDoubleFaultKernel)
		return
	}
	panicFn(errDoubleFaultUser)
}

// handleDebugOrBreakpoint backs both #DB and #BP: per spec.md §4.4 both
// simply resume in kernel mode and panic (pending process termination) in
// user mode.
func handleDebugOrBreakpoint(ctx *interrupt.Context) {
	dumpFault(ctx, "debug/breakpoint trap")
	if ctx.CPL() == 0 {
		return
	}
	panicFn(errBreakpointUser)
}

func handleGeneralProtection(ctx *interrupt.Context) {
	dumpFault(ctx, "general protection fault")
	panicFn(errGeneralProtection)
}

func handleInvalidOpcode(ctx *interrupt.Context) {
	dumpFault(ctx, "invalid opcode")
	panicFn(errInvalidOpcode)
}

// invalidatePageFn indirects cpu.InvalidatePage so host tests can drive
// the page-fault handler's mapping path without executing invlpg.
var invalidatePageFn = cpu.InvalidatePage
