package cpu

// This file stands in for the aarch64 primitives. Per spec, aarch64 paging
// parity is explicitly out of scope; these exist only so that
// architecture-dispatching callers (kernel/interrupt, kernel/mem/paging)
// have something to link against when built for arm64. None of them is
// exercised by the kernel's boot or interrupt paths on this architecture
// yet.

// Halt parks the core using wfi.
func Halt()

// DisableInterrupts masks IRQ/FIQ via msr daifset.
func DisableInterrupts()

// EnableInterrupts unmasks IRQ/FIQ via msr daifclr.
func EnableInterrupts()

// SaveFlagsAndDisableInterrupts is unimplemented on this architecture and
// always returns 0.
func SaveFlagsAndDisableInterrupts() uint64 { return 0 }

// RestoreFlags is unimplemented on this architecture.
func RestoreFlags(savedFlags uint64) {}

// ReadCR2, ReadCR3, WriteCR3 have no aarch64 equivalent under these names;
// the architecture uses FAR_ELx/TTBRx instead. Stubbed at zero pending an
// aarch64 paging implementation.
func ReadCR2() uint64             { return 0 }
func ReadCR3() uint64             { return 0 }
func WriteCR3(_ uint64)           {}
func InvalidatePage(_ uint64)     {}
func SetWriteProtect(_ bool)      {}
func ID(_, _ uint32) (uint32, uint32, uint32, uint32) { return 0, 0, 0, 0 }

// IsIntel always reports false: there is no Intel aarch64 silicon.
func IsIntel() bool { return false }
