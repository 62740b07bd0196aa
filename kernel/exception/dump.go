package exception

import (
	"unsafe"

	"github.com/vela-os/vela/kernel/interrupt"
	"github.com/vela-os/vela/kernel/kfmt"
	"golang.org/x/arch/x86/x86asm"
)

// fetchInstructionBytesFn reads up to 16 bytes starting at rip, the
// window x86asm.Decode needs to recognize the longest x86-64 instruction.
// It is a package variable, not a direct unsafe read, for the same reason
// kernel/mem/vmm's physAddrFn is: rip is a real kernel virtual address at
// runtime but an arbitrary fake value in host tests, where dereferencing
// it would crash the test process. Tests override it to return canned
// bytes instead.
//
// Grounded on bobuhiro11-gokvm/machine/debug_amd64.go's Inst, which reads
// 16 bytes at the guest RIP before calling x86asm.Decode the same way.
var fetchInstructionBytesFn = func(rip uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(rip))), 16)
}

// disassembleAt decodes and renders the instruction at rip in GNU syntax,
// or "" if the bytes there don't decode as a valid instruction (e.g. the
// fault occurred on a non-executable or unmapped page).
func disassembleAt(rip uint64) string {
	inst, err := x86asm.Decode(fetchInstructionBytesFn(rip), 64)
	if err != nil {
		return ""
	}
	return x86asm.GNUSyntax(inst, rip, nil)
}

// dumpFault prints the register block, the (real or synthetic) error
// code, and the disassembled faulting instruction, the same three pieces
// of context the teacher's nonRecoverablePageFault/generalProtectionFault
// handlers print before panicking.
func dumpFault(ctx *interrupt.Context, reason string) {
	kfmt.Printf("\n%s (vector %d, error code %#x)\n", reason, ctx.IntNum, ctx.ErrCode)
	ctx.Print()
	if asm := disassembleAt(ctx.RIP); asm != "" {
		kfmt.Printf("faulting instruction: %s\n", asm)
	}
}
