package interrupt

import (
	"testing"
	"unsafe"

	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/gdt"
)

func TestPrepareInterruptFrameKernelMode(t *testing.T) {
	backing := make([]byte, 4096)
	kstackTop := addr.VAddr(uintptr(unsafe.Pointer(&backing[4096-1])) + 1)

	got := PrepareInterruptFrame(kstackTop, 0, addr.VAddr(0xFFFF_FFFF_8000_1000))

	ctx := (*Context)(unsafe.Pointer(uintptr(got)))
	if ctx.RIP != 0xFFFF_FFFF_8000_1000 {
		t.Errorf("RIP = %#x", ctx.RIP)
	}
	if ctx.RFlags != rflagsMBS|rflagsIF {
		t.Errorf("RFlags = %#x, want IF|MBS", ctx.RFlags)
	}
	if ctx.CS != uint64(gdt.KernelCodeSelector) || ctx.SS != uint64(gdt.KernelDataSelector) {
		t.Errorf("CS/SS = %#x/%#x, want kernel selectors", ctx.CS, ctx.SS)
	}
	if ctx.RSP != uint64(got) {
		t.Errorf("RSP = %#x, want frame address %#x", ctx.RSP, uint64(got))
	}
	if uint64(kstackTop)-uint64(got) != ContextSize {
		t.Errorf("frame size = %d, want %d", uint64(kstackTop)-uint64(got), ContextSize)
	}
}

func TestPrepareInterruptFrameUserMode(t *testing.T) {
	backing := make([]byte, 4096)
	kstackTop := addr.VAddr(uintptr(unsafe.Pointer(&backing[4096-1])) + 1)
	ustackTop := addr.VAddr(0x7FFF_0000_1000)

	got := PrepareInterruptFrame(kstackTop, ustackTop, addr.VAddr(0x400000))
	ctx := (*Context)(unsafe.Pointer(uintptr(got)))

	if ctx.CS != uint64(gdt.UserCodeSelector)|uint64(gdt.RPL3) {
		t.Errorf("CS = %#x, want user code selector with RPL3", ctx.CS)
	}
	if ctx.SS != uint64(gdt.UserDataSelector)|uint64(gdt.RPL3) {
		t.Errorf("SS = %#x, want user data selector with RPL3", ctx.SS)
	}
	if ctx.RSP != uint64(ustackTop) {
		t.Errorf("RSP = %#x, want user stack top %#x", ctx.RSP, uint64(ustackTop))
	}
}
