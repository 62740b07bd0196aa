package main

import (
	"unsafe"

	"github.com/vela-os/vela/kernel/addr"
)

// unsafeBytesAtPhysmapFn reinterprets a physical address as a byte slice
// by translating it through the physmap virtual base. It is a package
// variable, not a direct unsafe read, for the same reason cmd/loader's
// unsafeBytesAtFn and kernel/exception's fetchInstructionBytesFn are:
// the address is real physical memory at runtime but an arbitrary fake
// value in host tests, and no host process has a physmap to translate
// through.
var unsafeBytesAtPhysmapFn = func(paddr uint64, length uint64) []byte {
	va := addr.PAddr(paddr).VAddr(addr.PhysmapBase).Ptr()
	return unsafe.Slice((*byte)(unsafe.Pointer(va)), length)
}
