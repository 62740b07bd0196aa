package interrupt

import "github.com/vela-os/vela/kernel"

var (
	// signalEOIFn is called after an external-kind handler returns.
	// kernel/apic.Init overrides this with the real LAPIC EOI write;
	// leaving it nil-safe here avoids an import cycle (apic needs to
	// register its own vectors, so interrupt cannot import apic).
	signalEOIFn func()

	errUnhandledVector = &kernel.Error{Module: "interrupt", Message: "unhandled interrupt vector"}
)

// panicFn is called on an unhandled vector. It is a package variable, not
// a direct kernel.Panic call, for the same reason register()'s
// double-registration check uses panic() instead: it lets host tests
// exercise the unhandled-vector path without executing the real halt
// loop. In the kernel binary it defaults to kernel.Panic.
var panicFn = kernel.Panic

// SetEOISignal registers the function the dispatcher calls to acknowledge
// an external interrupt once its handler returns. Called once from
// kernel/apic.Init.
func SetEOISignal(fn func()) {
	signalEOIFn = fn
}

// dispatchFromAsm is the Go-level landing point the common prologue calls
// with the just-captured Context. It is unexported and only ever called
// from stubs_amd64.s via ·dispatchFromAsm(SB); the leading dot in that
// reference binds the assembly call to the ABI0 entry point the Go
// toolchain synthesizes for any Go function assembly addresses directly.
func dispatchFromAsm(ctx *Context) {
	vector := uint8(ctx.IntNum)
	entry := &vectorTable[vector]

	if entry.handler == nil {
		panicFn(errUnhandledVector)
		return
	}

	entry.handler(ctx)

	if entry.kind == KindExternal && signalEOIFn != nil {
		signalEOIFn()
	}
}
