// Command genvectors emits kernel/interrupt/stubs_amd64.s: the 256
// per-vector entry stubs, the shared prologue/epilogue, and the
// switchStackAndResume entry point the dispatch fabric needs (spec.md
// §4.3, §9's "codegen" redesign flag). Run via:
//
//	go run ./tools/genvectors > kernel/interrupt/stubs_amd64.s
//
// The teacher has nothing resembling this (its interrupt surface is five
// hand-written vectors in irq/handler_amd64.go); the generator pattern and
// the "// Code generated ... DO NOT EDIT." banner follow the convention
// golang.org/x/tools/cmd/stringer uses, which tools/tools.go already pins
// as a build-time dependency for the same reason.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// errorCodeVectors is the fixed set of exception vectors the CPU pushes a
// real 64-bit error code for; every other vector gets a synthetic zero so
// the Context layout is uniform regardless of which vector fired.
var errorCodeVectors = map[int]bool{
	8: true, 10: true, 11: true, 12: true, 13: true, 14: true,
	17: true, 21: true, 29: true, 30: true,
}

const numVectors = 256

func main() {
	var buf bytes.Buffer
	generate(&buf)
	if _, err := io.Copy(os.Stdout, &buf); err != nil {
		fmt.Fprintln(os.Stderr, "genvectors:", err)
		os.Exit(1)
	}
}

func generate(w io.Writer) {
	fmt.Fprint(w, header)
	for v := 0; v < numVectors; v++ {
		fmt.Fprintf(w, "TEXT ·vector%d(SB), NOSPLIT, $0\n", v)
		if !errorCodeVectors[v] {
			fmt.Fprint(w, "\tPUSHQ $0\n")
		}
		fmt.Fprintf(w, "\tPUSHQ $%d\n", v)
		fmt.Fprint(w, "\tJMP ·commonPrologue(SB)\n\n")
	}

	fmt.Fprintf(w, "// vectorStubs is the address of each vector's entry stub, indexed\n")
	fmt.Fprintf(w, "// by vector number; idt.Init walks this slice to install one gate per\n")
	fmt.Fprintf(w, "// vector instead of hand-listing %d function values in Go source.\n", numVectors)
	fmt.Fprintf(w, "GLOBL ·vectorStubs(SB), RODATA, $%d\n", numVectors*8)
	for v := 0; v < numVectors; v++ {
		fmt.Fprintf(w, "DATA ·vectorStubs+%d(SB)/8, $·vector%d(SB)\n", v*8, v)
	}
}

const header = `// Code generated by tools/genvectors; DO NOT EDIT.

// +build amd64

#include "textflag.h"

// commonPrologue expects IntNum and ErrCode already pushed (low to high:
// IntNum below ErrCode, ErrCode below the hardware frame) and the five
// hardware-pushed words (RIP, CS, RFLAGS, RSP, SS) above that. It pushes
// the general-purpose registers in the order context.go's Context struct
// declares them, low address to high, then calls into Go with a pointer
// to the resulting Context.
TEXT ·commonPrologue(SB), NOSPLIT, $0
	PUSHQ AX
	PUSHQ CX
	PUSHQ DX
	PUSHQ BX
	PUSHQ BP
	PUSHQ SI
	PUSHQ DI
	PUSHQ R8
	PUSHQ R9
	PUSHQ R10
	PUSHQ R11
	PUSHQ R12
	PUSHQ R13
	PUSHQ R14
	PUSHQ R15

	// SP now points at the Context's R15 field, its lowest address; hand
	// that to dispatchFromAsm as its *Context argument via the stack-based
	// ABI0 calling convention the Go toolchain's ABI wrapper expects.
	MOVQ SP, AX
	SUBQ $8, SP
	MOVQ AX, 0(SP)
	CALL ·dispatchFromAsm(SB)
	ADDQ $8, SP
	JMP ·commonEpilogue(SB)

// commonEpilogue restores the general-purpose registers, discards the
// IntNum/ErrCode pair the stub pushed, and returns via iretq, which pops
// the remaining hardware frame (RIP, CS, RFLAGS, RSP, SS).
TEXT ·commonEpilogue(SB), NOSPLIT, $0
	POPQ R15
	POPQ R14
	POPQ R13
	POPQ R12
	POPQ R11
	POPQ R10
	POPQ R9
	POPQ R8
	POPQ DI
	POPQ SI
	POPQ BP
	POPQ BX
	POPQ DX
	POPQ CX
	POPQ AX
	ADDQ $16, SP
	IRETQ

// switchStackAndResume loads SP from its single argument and jumps
// straight into commonEpilogue, unwinding into the Context the caller
// (SwitchTo) already built at that address via PrepareInterruptFrame or
// left behind the last time this thread took an interrupt.
TEXT ·switchStackAndResume(SB), NOSPLIT, $0-8
	MOVQ rsp+0(FP), SP
	JMP ·commonEpilogue(SB)

`
