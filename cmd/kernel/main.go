package main

import "github.com/vela-os/vela/kernel/bootinfo"

// bootInfo is a dummy BootInfo value passed to Kmain below. A global
// variable, not a literal, so the compiler cannot prove main's argument
// is always the zero value and inline/eliminate the real entry path --
// the same device the teacher's boot.go/stub.go use for their own
// trampoline mains.
var bootInfo bootinfo.Info

// main is the only Go symbol visible from the loader's jump target in a
// real build; it trampolines into Kmain the same way the teacher's
// boot.go calls kernel.Kmain after rt0 has set up a minimal g0. main is
// not expected to return.
func main() {
	Kmain(bootInfo)
}
