package interrupt

import (
	"unsafe"

	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/gdt"
)

// rflagsMBS is bit 1 of RFLAGS, architecturally always read back as
// 1 ("MBS", must-be-set); rflagsIF is bit 9, the interrupt-enable flag.
const (
	rflagsMBS = 1 << 1
	rflagsIF  = 1 << 9
)

// PrepareInterruptFrame builds an iretq-shaped Context at the top of the
// stack spanning [kstackTop-ContextSize, kstackTop), ready for switchTo to
// resume into entry for the first time. If ustackTop is non-zero, the
// frame targets user mode (ring 3 selectors, RSP = ustackTop); otherwise
// it targets kernel mode and RSP is set to the frame's own address, i.e.
// exactly the stack space left once the frame itself is popped.
//
// Grounded on the teacher's kernel.Error-free "just build the bytes"
// style used throughout kernel/mem/vmm for lazily-initialized structures;
// the frame layout itself is spec.md §4.3's prepareInterruptFrame.
func PrepareInterruptFrame(kstackTop addr.VAddr, ustackTop addr.VAddr, entry addr.VAddr) addr.VAddr {
	frameAddr := uint64(kstackTop) - ContextSize
	ctx := (*Context)(unsafe.Pointer(uintptr(frameAddr)))
	*ctx = Context{}

	ctx.RIP = uint64(entry)
	ctx.RFlags = rflagsMBS | rflagsIF

	if ustackTop != 0 {
		ctx.CS = uint64(gdt.UserCodeSelector) | uint64(gdt.RPL3)
		ctx.SS = uint64(gdt.UserDataSelector) | uint64(gdt.RPL3)
		ctx.RSP = uint64(ustackTop)
	} else {
		ctx.CS = uint64(gdt.KernelCodeSelector)
		ctx.SS = uint64(gdt.KernelDataSelector)
		ctx.RSP = frameAddr
	}

	return addr.VAddr(frameAddr)
}
