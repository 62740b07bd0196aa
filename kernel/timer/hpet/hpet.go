// Package hpet drives the HPET MMIO register block spec.md §4.5 describes:
// a general capabilities/ID register carrying the tick period, a general
// config register with the single enable bit, a free-running main
// counter, and N per-timer sub-blocks at a fixed stride (not otherwise
// used by this kernel, since the LAPIC is the interrupt-capable timer;
// HPET here only ever serves as now()'s calibration reference).
//
// The teacher has no timer stack at all in this retrieval (gopher-os
// never reaches APIC bring-up), so the register layout follows spec.md
// §4.5 directly; the volatile-field-accessor style and the
// function-variable MMIO seam follow kernel/mem/vmm's physAddrFn, the
// same "raw memory access needs a test seam, not a direct unsafe read"
// idiom used throughout this repo's freestanding packages.
package hpet

import "unsafe"

const (
	offCapabilities = 0x000
	offConfig       = 0x010
	offMainCounter  = 0x0F0
	timerBlockBase  = 0x100
	timerBlockSize  = 0x020
)

// configEnable is bit 0 of the general configuration register.
const configEnable = 1 << 0

// readRegFn/writeRegFn indirect the raw MMIO access every register touch
// goes through, the same seam shape as kernel/mem/vmm's physAddrFn: real
// HPET hardware sits behind a physmap-translated address at runtime, but
// host tests substitute ordinary Go-allocated backing memory so Timer's
// logic (frequency math, enable idempotency, now() conversion) can be
// exercised without a real MMIO region.
var (
	readRegFn  = func(addr uintptr) uint64 { return *(*uint64)(unsafe.Pointer(addr)) }
	writeRegFn = func(addr uintptr, v uint64) { *(*uint64)(unsafe.Pointer(addr)) = v }
)

// Timer is a handle to one HPET MMIO register block.
type Timer struct {
	base uintptr
}

// New wraps the HPET MMIO block whose physmap-mapped virtual base address
// is base. Callers obtain base by translating the physical address
// kernel/acpi.HPETBaseAddress returns under addr.PhysmapBase.
func New(base uintptr) *Timer {
	return &Timer{base: base}
}

func (t *Timer) read(off uintptr) uint64     { return readRegFn(t.base + off) }
func (t *Timer) write(off uintptr, v uint64) { writeRegFn(t.base+off, v) }

// PeriodFemtoseconds returns the main counter's tick period, the upper 32
// bits of the general capabilities/ID register.
func (t *Timer) PeriodFemtoseconds() uint64 {
	return t.read(offCapabilities) >> 32
}

// FrequencyHz is 10^15 / period_fs, spec.md §4.5's frequency formula.
func (t *Timer) FrequencyHz() uint64 {
	period := t.PeriodFemtoseconds()
	if period == 0 {
		return 0
	}
	return 1_000_000_000_000_000 / period
}

// Enable sets the general config register's enable bit if it is not
// already set; spec.md §4.5 requires this operation to be idempotent.
func (t *Timer) Enable() {
	cfg := t.read(offConfig)
	if cfg&configEnable == 0 {
		t.write(offConfig, cfg|configEnable)
	}
}

// TimerConfig returns the raw configuration/capabilities register of
// timer sub-block n (spec.md §4.5: "N timer sub-blocks at stride 0x20").
// Individual timer comparators are not otherwise driven by this kernel,
// which uses the LAPIC as its interrupt-capable timer; this exists so a
// caller inspecting HPET capabilities (timer count, periodic-capable bit)
// doesn't need to hand-compute the stride.
func (t *Timer) TimerConfig(n int) uint64 {
	return t.read(timerBlockBase + uintptr(n)*timerBlockSize)
}

// MainCounter returns the raw free-running main counter value.
func (t *Timer) MainCounter() uint64 {
	return t.read(offMainCounter)
}

// NowNS implements spec.md §4.5's now_ns(): main_counter_val * 10^9 /
// freq_hz.
func (t *Timer) NowNS() uint64 {
	freq := t.FrequencyHz()
	if freq == 0 {
		return 0
	}
	return t.MainCounter() * 1_000_000_000 / freq
}
