// Package lapic implements spec.md §4.5's local-APIC timer: TSC-deadline
// mode when the CPU supports it, a one-shot counted mode otherwise, and
// the frequency self-calibration the one-shot mode needs.
//
// The teacher has no APIC code; register offsets and the divide-config
// encoding follow spec.md §4.5/§4.6 directly. The privileged-access seams
// (msrReadFn/msrWriteFn, mmioReadFn/mmioWriteFn) follow the same
// function-variable idiom as kernel/cpu's cpuidFn and kernel/mem/vmm's
// physAddrFn: RDMSR/WRMSR and raw MMIO touch real hardware state that a
// host test process cannot safely execute, so the seam is mandatory here
// rather than optional (contrast kernel/timer/tsc's rdtscFn, which seams
// an otherwise-safe instruction purely for determinism).
package lapic

import (
	"unsafe"

	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/cpu"
)

// Register offsets into the xAPIC MMIO block, spec.md §4.6's "fixed set of
// 32-bit offsets".
const (
	regLVTTimer       = 0x320
	regTimerDivide    = 0x3E0
	regTimerInitCount = 0x380
	regTimerCurrCount = 0x390
)

// lvtTimerModeOneShot is the LVT timer entry's mode bits (bits 17-18) left
// at 0b00: one-shot.
const lvtTimerModeOneShot = 0

// lvtMasked is the LVT mask bit (bit 16).
const lvtMasked = 1 << 16

// divBy16 is spec.md §4.5's required division factor, div_code = 0b011,
// packed into the divide-configuration register's bits {0,1,3}.
const divBy16 = 0b011

// msrTSCDeadline is IA32_TSC_DEADLINE.
const msrTSCDeadline = 0x6E0

var (
	msrReadFn  = cpu.RDMSR
	msrWriteFn = cpu.WRMSR
	// rdtscpFn indirects cpu.RDTSCP purely for determinism: RDTSCP itself
	// is unprivileged and safe to call directly in a host test, but
	// ArmTSCDeadline's tests need a known "now" to assert the written
	// deadline against.
	rdtscpFn = cpu.RDTSCP

	// mmioReadFn/mmioWriteFn access an xAPIC register at a physmap-mapped
	// virtual offset. New's mmioBase argument supplies the real base; tests
	// substitute a plain Go-backed block the same way hpet_test.go does
	// for HPET's MMIO seam.
	mmioReadFn  = func(addr uintptr) uint32 { return *(*uint32)(unsafe.Pointer(addr)) }
	mmioWriteFn = func(addr uintptr, v uint32) { *(*uint32)(unsafe.Pointer(addr)) = v }
)

var errNilClock = &kernel.Error{Module: "lapic", Message: "one-shot calibration requires a non-nil reference clock"}
var errNoProgress = &kernel.Error{Module: "lapic", Message: "reference clock made no progress during calibration window"}

// calibrationWindowNS is spec.md §4.5's "wait 10ms on HPET".
const calibrationWindowNS = 10_000_000

// calibrationSpinLimit bounds the busy-wait loop against a reference clock
// that never advances, mirroring kernel/timer/tsc's same-named constant.
const calibrationSpinLimit = 1_000_000

// Clock is the calibration reference; kernel/timer/hpet.Timer satisfies
// it.
type Clock interface {
	NowNS() uint64
}

// Timer drives one core's local-APIC timer, either via TSC-deadline MSR
// writes or via the legacy one-shot counted MMIO registers.
type Timer struct {
	mmioBase     uintptr
	useX2APIC    bool
	deadlineMode bool
	freqHz       uint64 // calibrated one-shot tick frequency; unused in deadline mode
	tscFreqHz    uint64 // calibrated TSC frequency; unused outside deadline mode
	vector       uint8
}

// New constructs a Timer. mmioBase is the physmap-mapped xAPIC register
// block base (ignored when useX2APIC is set, since x2APIC is MSR-only).
// deadlineMode selects TSC-deadline mode; callers choose it only when
// kernel/timer/tsc.HasTSCDeadline() reports true.
func New(mmioBase uintptr, useX2APIC, deadlineMode bool, vector uint8) *Timer {
	return &Timer{mmioBase: mmioBase, useX2APIC: useX2APIC, deadlineMode: deadlineMode, vector: vector}
}

func (t *Timer) readReg(off uintptr) uint32 {
	if t.useX2APIC {
		return uint32(msrReadFn(x2apicMSR(off)))
	}
	return mmioReadFn(t.mmioBase + off)
}

func (t *Timer) writeReg(off uintptr, v uint32) {
	if t.useX2APIC {
		msrWriteFn(x2apicMSR(off), uint64(v))
		return
	}
	mmioWriteFn(t.mmioBase+off, v)
}

// x2apicMSR maps an xAPIC MMIO byte offset to its x2APIC MSR number:
// MSR = 0x800 + offset/16, the fixed relationship the SDM defines between
// the two register spaces.
func x2apicMSR(mmioOffset uintptr) uint32 {
	return 0x800 + uint32(mmioOffset/16)
}

// SetTSCFrequencyHz records the TSC frequency kernel/timer/tsc.Calibrate
// returned, needed by ArmInterruptTimer in deadline mode.
func (t *Timer) SetTSCFrequencyHz(freqHz uint64) {
	t.tscFreqHz = freqHz
}

// ArmInterruptTimer implements the armInterruptTimer(ns) side of spec.md
// §4.5's timer capability: deadline mode if this Timer was constructed
// with it, one-shot counted mode otherwise.
func (t *Timer) ArmInterruptTimer(ns uint64) {
	if t.deadlineMode {
		t.ArmTSCDeadline(t.tscFreqHz, ns)
		return
	}
	t.ArmOneShot(ns)
}

// ArmTSCDeadline implements spec.md §4.5's TSC-deadline arming:
// rdtscp + ceil(freq_hz*ns/10^9) written to IA32_TSC_DEADLINE. freqHz is
// the calibrated TSC frequency from kernel/timer/tsc.Calibrate.
func (t *Timer) ArmTSCDeadline(freqHz, ns uint64) {
	nowTSC, _ := rdtscpFn()
	deltaTicks := (freqHz*ns + 999_999_999) / 1_000_000_000
	msrWriteFn(msrTSCDeadline, nowTSC+deltaTicks)
}

// ArmOneShot implements spec.md §4.5's one-shot counted mode: LVT timer
// entry with the given vector unmasked in one-shot mode, divide-by-16, and
// an initial count derived from t's calibrated frequency. Calibrate must
// have run first; if it has not (freqHz == 0) this is a no-op, since there
// is no tick-rate to derive a count from.
func (t *Timer) ArmOneShot(ns uint64) {
	if t.freqHz == 0 {
		return
	}
	t.writeReg(regTimerDivide, divBy16)
	t.writeReg(regLVTTimer, uint32(t.vector)|lvtTimerModeOneShot)
	ticks := (t.freqHz*ns + 999_999_999) / 1_000_000_000
	if ticks == 0 {
		ticks = 1
	}
	t.writeReg(regTimerInitCount, uint32(ticks))
}

// Mask disables the timer's LVT entry without disturbing the divide
// configuration, used when a higher layer switches timer sources.
func (t *Timer) Mask() {
	t.writeReg(regLVTTimer, uint32(t.vector)|lvtMasked)
}

// Calibrate implements spec.md §4.5's LAPIC-timer frequency calibration:
// program the maximum initial count, wait ~10ms on ref, read the current
// count, derive ticks/second; three samples averaged. Calibration is only
// meaningful in one-shot mode; callers in deadline mode need not call it.
func (t *Timer) Calibrate(ref Clock) (uint64, *kernel.Error) {
	if ref == nil {
		return 0, errNilClock
	}

	t.writeReg(regTimerDivide, divBy16)
	t.writeReg(regLVTTimer, uint32(t.vector)|lvtMasked)

	var samples [3]uint64
	for i := range samples {
		s, err := t.sampleOnce(ref)
		if err != nil {
			return 0, err
		}
		samples[i] = s
	}

	pair01 := (samples[0] + samples[1]) / 2
	pair12 := (samples[1] + samples[2]) / 2
	t.freqHz = (pair01 + pair12) / 2
	return t.freqHz, nil
}

func (t *Timer) sampleOnce(ref Clock) (uint64, *kernel.Error) {
	const maxInitialCount = 0xFFFFFFFF

	startNS := ref.NowNS()
	t.writeReg(regTimerInitCount, maxInitialCount)

	var now uint64
	for i := 0; i < calibrationSpinLimit; i++ {
		now = ref.NowNS()
		if now-startNS >= calibrationWindowNS {
			break
		}
	}

	deltaNS := now - startNS
	if deltaNS == 0 {
		return 0, errNoProgress
	}

	elapsedTicks := uint64(maxInitialCount) - uint64(t.readReg(regTimerCurrCount))
	return elapsedTicks * 1_000_000_000 / deltaNS, nil
}
