// Package syscall implements spec.md §6's single-call userland ABI stub:
// vector 0x80, DPL 3, call number 0 = write(buf_ptr, buf_len). The handler
// validates that the requested buffer lies entirely within the VMM's
// declared user region before touching a single byte of it, then forwards
// the bytes to the active kfmt sink.
//
// The teacher has no syscall gate at all (gopher-os never leaves ring 0 in
// this retrieval); the validate-then-copy shape follows the same
// "classify before trusting a user-supplied address" discipline
// kernel/exception's page-fault handler already uses via vmm.Classify.
package syscall

import (
	"unsafe"

	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/interrupt"
	"github.com/vela-os/vela/kernel/kfmt"
	"github.com/vela-os/vela/kernel/mem/vmm"
)

// Vector is the interrupt vector userland invokes with `int 0x80`, spec.md
// §4.3's fixed vector list ("0x80: syscall entry (DPL 3)").
const Vector uint8 = 0x80

// NumberWrite is the only syscall number this stub recognizes.
const NumberWrite uint64 = 0

var (
	errBadNumber   = &kernel.Error{Module: "syscall", Message: "unrecognized syscall number"}
	errBufferOOB   = &kernel.Error{Module: "syscall", Message: "write: buffer is not entirely within the user region"}
	errBufferWraps = &kernel.Error{Module: "syscall", Message: "write: buf_ptr+buf_len overflows"}
)

// readUserBytesFn reads len bytes starting at the user virtual address
// ptr. It is a package variable, not a direct unsafe read, for the same
// reason kernel/exception's fetchInstructionBytesFn is: ptr is a real user
// address at runtime but an arbitrary fake value in host tests.
var readUserBytesFn = func(ptr uint64, n uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), n)
}

// Init registers the dispatcher handler for Vector. Call sites outside the
// kernel's own init sequence must not call this more than once; the
// underlying interrupt.RegisterSoftware panics on re-registration.
func Init() {
	interrupt.RegisterSoftware(Vector, handle)
}

// handle implements the DPL-3 syscall gate's single dispatch point: RAX
// holds the call number, RDI/RSI its two arguments, matching the same
// register convention the hardware-pushed Context already captures for
// every other vector. The return value (0 on success, a negated error
// code otherwise) is written back into RAX so userland can observe it
// after the iretq.
func handle(ctx *interrupt.Context) {
	switch ctx.RAX {
	case NumberWrite:
		ctx.RAX = uint64(write(ctx.RDI, ctx.RSI))
	default:
		ctx.RAX = uint64(errno(errBadNumber))
	}
}

// write implements spec.md §6's "validates that [buf_ptr, buf_ptr+buf_len)
// lies within a declared user-address partition and prints the bytes via
// the serial sink". Returns 0 on success or a negative errno-shaped value.
func write(bufPtr, bufLen uint64) int64 {
	if err := validateUserBuffer(bufPtr, bufLen); err != nil {
		return errno(err)
	}

	data := readUserBytesFn(bufPtr, bufLen)
	if sink := kfmt.GetOutputSink(); sink != nil {
		_, _ = sink.Write(data)
	}
	return 0
}

// validateUserBuffer checks that every byte in [bufPtr, bufPtr+bufLen) is
// classified ClassUser by the VMM, rejecting both out-of-range buffers and
// ones that overflow the address space on addition.
func validateUserBuffer(bufPtr, bufLen uint64) *kernel.Error {
	end := bufPtr + bufLen
	if end < bufPtr {
		return errBufferWraps
	}
	if bufLen == 0 {
		return nil
	}
	if vmm.Classify(addr.VAddr(bufPtr)) != vmm.ClassUser {
		return errBufferOOB
	}
	if vmm.Classify(addr.VAddr(end-1)) != vmm.ClassUser {
		return errBufferOOB
	}
	return nil
}

// errno collapses a *kernel.Error into the small negative-integer ABI
// userland's write() stub expects, analogous to Linux's -errno convention.
func errno(err *kernel.Error) int64 {
	switch err {
	case errBadNumber:
		return -1
	case errBufferOOB:
		return -2
	case errBufferWraps:
		return -3
	default:
		return -1
	}
}
