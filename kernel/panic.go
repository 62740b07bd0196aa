package kernel

import (
	"github.com/vela-os/vela/kernel/cpu"
	"github.com/vela-os/vela/kernel/kfmt"
)

var (
	// haltFn is swapped out in tests so Panic can be exercised without
	// actually executing hlt.
	haltFn = cpu.Halt

	errGenericPanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic prints e (if non-nil) to the active kfmt sink and halts the calling
// core. It never returns.
//
//go:redirect-from runtime.gopanic
//
// The line above documents intent, not a working mechanism: go:linkname
// can alias a symbol name for the linker but cannot interpose on calls to
// an existing function, so the built-in panic() is not actually rerouted
// here. Kernel code calls Panic directly instead.
func Panic(e interface{}) {
	var err *Error

	switch v := e.(type) {
	case *Error:
		err = v
	case string:
		errGenericPanic.Message = v
		err = errGenericPanic
	case error:
		errGenericPanic.Message = v.Error()
		err = errGenericPanic
	default:
		err = errGenericPanic
	}

	kfmt.Printf("\n------------------------------------------\n")
	if err != nil {
		kfmt.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	kfmt.Printf("*** kernel panic: core halted ***\n")
	kfmt.Printf("------------------------------------------\n")

	haltFn()
}
