// Package cpu wraps the handful of privileged x86-64 instructions the
// kernel core needs. Every exported function below is declared without a
// body; the actual instruction sequence lives in cpu_amd64.s. Keeping the
// Go-visible signature separate from the assembly mirrors the teacher's
// own cpu_amd64.go and lets tests substitute package-level function
// variables (see cpuidFn below) for the handful of primitives that are
// actually called from testable logic.
package cpu

// RegisterSnapshot holds the four general purpose registers CPUID fills in.
type RegisterSnapshot struct {
	EAX, EBX, ECX, EDX uint32
}

var (
	// cpuidFn indirects ID so tests can fake CPUID output.
	cpuidFn = ID
)

// Halt parks the core in an infinite hlt loop. Used as the terminal action
// of kernel.Panic and by APs once early init completes and no scheduler has
// adopted them yet.
func Halt()

// DisableInterrupts clears RFLAGS.IF (cli).
func DisableInterrupts()

// EnableInterrupts sets RFLAGS.IF (sti).
func EnableInterrupts()

// SaveFlagsAndDisableInterrupts returns the current RFLAGS value and then
// clears IF. Pair with RestoreFlags to bracket a critical section that
// must run atomically with respect to this core's own interrupt handlers.
func SaveFlagsAndDisableInterrupts() uint64

// RestoreFlags restores RFLAGS.IF to the value captured by a previous call
// to SaveFlagsAndDisableInterrupts. It does not blindly overwrite RFLAGS —
// only the interrupt flag bit is restored — so nested save/restore pairs
// compose correctly.
func RestoreFlags(savedFlags uint64)

// InB reads a byte from the I/O port space.
func InB(port uint16) uint8

// OutB writes a byte to the I/O port space.
func OutB(port uint16, value uint8)

// InL reads a 32-bit value from the I/O port space.
func InL(port uint16) uint32

// OutL writes a 32-bit value to the I/O port space.
func OutL(port uint16, value uint32)

// RDMSR reads the model specific register identified by ecx.
func RDMSR(msr uint32) uint64

// WRMSR writes value to the model specific register identified by msr.
// wrmsr is one of the instructions that changes MMU/EFER-visible state; the
// call into the assembly stub is opaque to the compiler, so it never
// reorders ordinary loads/stores across it.
func WRMSR(msr uint32, value uint64)

// ID executes CPUID with the given leaf (EAX) and subleaf (ECX) and
// returns the resulting EAX/EBX/ECX/EDX.
func ID(leaf, subleaf uint32) (eax, ebx, ecx, edx uint32)

// RDTSC reads the time-stamp counter without serializing. Use RDTSCFenced
// when the read must not be reordered around surrounding instructions
// (e.g. during TSC calibration).
func RDTSC() uint64

// RDTSCFenced issues an lfence before rdtsc, guaranteeing that prior
// instructions have retired before the counter is sampled.
func RDTSCFenced() uint64

// RDTSCP reads the time-stamp counter and the value of IA32_TSC_AUX
// (typically the core's APIC ID) as a serializing instruction.
func RDTSCP() (tsc uint64, aux uint32)

// ReadCR2 returns the last page-fault linear address.
func ReadCR2() uint64

// ReadCR3 returns the physical address of the active top-level page table,
// including the low 12 PCID/flag bits. Callers that need the bare frame
// address should mask them off.
func ReadCR3() uint64

// WriteCR3 installs a new top-level page table physical address. This
// implicitly flushes every non-global TLB entry.
func WriteCR3(pml4PhysAddr uint64)

// InvalidatePage flushes the TLB entry that translates vaddr.
func InvalidatePage(vaddr uint64)

// SetWriteProtect toggles CR0.WP. Clearing it allows supervisor code to
// write through a read-only mapping, which the UEFI loader and the CoW
// fault handler both rely on briefly.
func SetWriteProtect(enabled bool)

// LoadGDT loads the GDT descriptor (limit:base pair) pointed to by
// descriptorAddr via lgdt.
func LoadGDT(descriptorAddr uintptr)

// LoadIDT loads the IDT descriptor pointed to by descriptorAddr via lidt.
func LoadIDT(descriptorAddr uintptr)

// LoadTaskRegister loads the task register with the given GDT selector via
// ltr, activating the corresponding TSS.
func LoadTaskRegister(selector uint16)

// ReloadSegments performs a far return to reload CS with codeSelector and
// sets the data segment registers to dataSelector. This is the only way to
// change CS on x86-64 outside of an interrupt/call gate.
func ReloadSegments(codeSelector, dataSelector uint16)

// IsIntel reports whether the running CPU identifies itself as a
// GenuineIntel part via CPUID leaf 0.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0, 0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
