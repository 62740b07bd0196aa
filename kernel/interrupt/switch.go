package interrupt

import (
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/cpu"
	"github.com/vela-os/vela/kernel/gdt"
)

// Thread is the minimal shape switchTo needs from the scheduler's thread
// type. The scheduler itself is out of scope (spec.md §1); this is the
// hook surface spec.md §4.3 and §9's "global state" section name
// (running_thread) without specifying scheduling policy.
type Thread interface {
	// IsUserMode reports whether this thread runs in ring 3.
	IsUserMode() bool
	// KernelStackTop is the address loaded into tss.Rsp0 before
	// resuming a user-mode thread.
	KernelStackTop() addr.VAddr
	// AddressSpaceRoot is the physical address of this thread's PML4,
	// loaded into CR3 before resuming a user-mode thread.
	AddressSpaceRoot() addr.PAddr
	// SavedRSP is the stack pointer saved the last time this thread
	// was switched out (or produced by PrepareInterruptFrame, the
	// first time it runs); it must point at a valid Context.
	SavedRSP() addr.VAddr
}

// switchStackAndResume is implemented in stubs_amd64.s: it loads SP from
// its argument and jumps into the common epilogue, unwinding directly
// into the target context via iretq. It never returns to its caller.
func switchStackAndResume(rsp uintptr)

// SwitchTo resumes execution in thread t. If t runs in user mode, its
// kernel stack top and address-space root are installed into the TSS and
// CR3 first; per spec.md §4.3's ordering guarantee, nothing touches memory
// between the CR3 write and the eventual RSP swap in the epilogue besides
// the EOI signal, which is itself a side-effecting MMIO/MSR write rather
// than an ordinary load/store the compiler could reorder around it. EOI
// happens before the epilogue runs so a lower-priority interrupt can fire
// immediately once the target thread's IF flag is restored by iretq.
func SwitchTo(tss *gdt.Tss, t Thread) {
	if t.IsUserMode() {
		tss.SetRsp0(uint64(t.KernelStackTop()))
		cpu.WriteCR3(uint64(t.AddressSpaceRoot()))
	}

	if signalEOIFn != nil {
		signalEOIFn()
	}

	switchStackAndResume(uintptr(t.SavedRSP()))
}
