package tsc

import "github.com/vela-os/vela/kernel/cpu"

// msrTSCDeadline is IA32_TSC_DEADLINE, the same MSR number
// kernel/timer/lapic arms in TSC-deadline mode; Source writes it directly
// rather than depending on kernel/timer/lapic, since spec.md §4.5 lists
// TSC itself (not just the LAPIC timer) as a "both now() and
// armInterruptTimer()" capable clock.
const msrTSCDeadline = 0x6E0

var (
	msrWriteFn = cpu.WRMSR
	rdtscpFn   = cpu.RDTSCP
)

// Source is the "TSC (both)" timer capability spec.md §4.5 names:
// now() reads the calibrated TSC converted to nanoseconds, and
// ArmInterruptTimer writes an absolute TSC deadline.
type Source struct {
	freqHz uint64
}

// NewSource wraps a TSC frequency Calibrate already measured.
func NewSource(freqHz uint64) *Source {
	return &Source{freqHz: freqHz}
}

// NowNS converts the raw TSC value to nanoseconds against the calibrated
// frequency. The result is monotonic but not tied to any particular
// epoch; callers that need wall-clock time must anchor it themselves.
func (s *Source) NowNS() uint64 {
	if s.freqHz == 0 {
		return 0
	}
	return rdtscFn() * 1_000_000_000 / s.freqHz
}

// ArmInterruptTimer implements spec.md §4.5's TSC-deadline arming:
// rdtscp + ceil(freq_hz*ns/10^9) written to IA32_TSC_DEADLINE.
func (s *Source) ArmInterruptTimer(ns uint64) {
	now, _ := rdtscpFn()
	deltaTicks := (s.freqHz*ns + 999_999_999) / 1_000_000_000
	msrWriteFn(msrTSCDeadline, now+deltaTicks)
}
