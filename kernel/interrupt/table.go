package interrupt

import "github.com/vela-os/vela/kernel"

// NumVectors is the fixed size of the x86-64 interrupt vector space.
const NumVectors = 256

// Handler is called by the dispatcher with the captured Context. Handlers
// that return leave the target of the eventual iretq (rip/cs/rflags/
// rsp/ss in ctx) unmodified unless they deliberately rewrite it, e.g. the
// page-fault handler retrying the faulting instruction in place.
type Handler func(ctx *Context)

type vectorEntry struct {
	handler Handler
	kind    VectorKind
}

var vectorTable [NumVectors]vectorEntry

var errAlreadyRegistered = &kernel.Error{Module: "interrupt", Message: "vector already registered; re-registration is a bug"}

// register installs handler at vector under kind. Per spec.md §4.3,
// registration is one-shot: calling this twice for the same vector is a
// programming error. Like idt.OpenGate, it panics (not kernel.Panic
// directly) so the Go runtime's own panic/recover machinery can observe
// the precondition violation in host tests. The built-in panic is not
// rerouted to kernel.Panic (see kernel/panic.go).
func register(vector uint8, handler Handler, kind VectorKind) {
	if vectorTable[vector].handler != nil {
		panic(errAlreadyRegistered)
	}
	vectorTable[vector] = vectorEntry{handler: handler, kind: kind}
}

// RegisterException installs handler for one of the CPU exception vectors
// (0-31).
func RegisterException(vector uint8, handler Handler) {
	register(vector, handler, KindException)
}

// RegisterExternal installs handler for an IRQ vector routed through the
// LAPIC. The dispatcher signals end-of-interrupt after handler returns.
func RegisterExternal(vector uint8, handler Handler) {
	register(vector, handler, KindExternal)
}

// RegisterSoftware installs handler for a vector software invokes
// directly (the syscall gate, self-IPIs).
func RegisterSoftware(vector uint8, handler Handler) {
	register(vector, handler, KindSoftware)
}

// IsRegistered reports whether vector currently has a handler, so bring-up
// code can check before conditionally registering (e.g. "only trap #DB if
// no debugger hook already claimed it").
func IsRegistered(vector uint8) bool {
	return vectorTable[vector].handler != nil
}

// KindOf returns the registered kind for vector. Only meaningful once
// IsRegistered(vector) is true.
func KindOf(vector uint8) VectorKind {
	return vectorTable[vector].kind
}
