package lapic

import "testing"

// fakeClock advances by stepNS on every NowNS call, the same deterministic
// shape used throughout this repo's calibration tests.
type fakeClock struct {
	ns     uint64
	stepNS uint64
}

func (c *fakeClock) NowNS() uint64 {
	v := c.ns
	c.ns += c.stepNS
	return v
}

// fakeMMIO backs mmioReadFn/mmioWriteFn with a plain array addressed by
// byte offset.
type fakeMMIO struct {
	regs [0x400 / 4]uint32
}

func (f *fakeMMIO) install(t *testing.T) {
	t.Helper()
	origRead, origWrite := mmioReadFn, mmioWriteFn
	mmioReadFn = func(addr uintptr) uint32 { return f.regs[addr/4] }
	mmioWriteFn = func(addr uintptr, v uint32) { f.regs[addr/4] = v }
	t.Cleanup(func() { mmioReadFn, mmioWriteFn = origRead, origWrite })
}

func withFakeMSR(t *testing.T) map[uint32]uint64 {
	t.Helper()
	msrs := make(map[uint32]uint64)
	origRead, origWrite := msrReadFn, msrWriteFn
	msrReadFn = func(msr uint32) uint64 { return msrs[msr] }
	msrWriteFn = func(msr uint32, v uint64) { msrs[msr] = v }
	t.Cleanup(func() { msrReadFn, msrWriteFn = origRead, origWrite })
	return msrs
}

func withFakeRDTSCP(t *testing.T, tsc uint64, aux uint32) {
	t.Helper()
	orig := rdtscpFn
	rdtscpFn = func() (uint64, uint32) { return tsc, aux }
	t.Cleanup(func() { rdtscpFn = orig })
}

func TestArmTSCDeadlineWritesCeilingOfExpectedTicks(t *testing.T) {
	msrs := withFakeMSR(t)
	withFakeRDTSCP(t, 1_000_000, 0)

	tm := New(0, false, true, 0xFE)
	tm.ArmTSCDeadline(1_000_000_000, 1_500) // 1GHz, 1.5us -> 1500 ticks

	want := uint64(1_000_000 + 1500)
	if got := msrs[msrTSCDeadline]; got != want {
		t.Fatalf("IA32_TSC_DEADLINE = %d, want %d", got, want)
	}
}

func TestArmInterruptTimerDispatchesToDeadlineMode(t *testing.T) {
	msrs := withFakeMSR(t)
	withFakeRDTSCP(t, 0, 0)

	tm := New(0, false, true, 0xFE)
	tm.SetTSCFrequencyHz(2_000_000_000)
	tm.ArmInterruptTimer(1_000)

	if msrs[msrTSCDeadline] == 0 {
		t.Fatal("ArmInterruptTimer in deadline mode did not write IA32_TSC_DEADLINE")
	}
}

func TestArmInterruptTimerDispatchesToOneShotMode(t *testing.T) {
	mmio := &fakeMMIO{}
	mmio.install(t)

	tm := New(0, false, false, 0x20)
	tm.freqHz = 1_000_000_000 // pretend Calibrate already ran
	tm.ArmInterruptTimer(1_000)

	if mmio.regs[regTimerInitCount/4] == 0 {
		t.Fatal("ArmInterruptTimer in one-shot mode did not program an initial count")
	}
}

func TestArmOneShotNoOpWithoutCalibration(t *testing.T) {
	mmio := &fakeMMIO{}
	mmio.install(t)

	tm := New(0, false, false, 0x20)
	tm.ArmOneShot(1_000)

	if mmio.regs[regTimerInitCount/4] != 0 {
		t.Fatal("ArmOneShot programmed a count before calibration")
	}
}

func TestArmOneShotUsesDivideBy16AndUnmasksVector(t *testing.T) {
	mmio := &fakeMMIO{}
	mmio.install(t)

	tm := New(0, false, false, 0x20)
	tm.freqHz = 1_000_000_000
	tm.ArmOneShot(1_000)

	if got := mmio.regs[regTimerDivide/4]; got != divBy16 {
		t.Fatalf("divide config = %#x, want %#x", got, divBy16)
	}
	if got := mmio.regs[regLVTTimer/4]; got&lvtMasked != 0 {
		t.Fatalf("LVT entry = %#x, vector is masked", got)
	}
}

func TestMaskSetsMaskBitWithoutClearingVector(t *testing.T) {
	mmio := &fakeMMIO{}
	mmio.install(t)

	tm := New(0, false, false, 0x20)
	tm.Mask()

	got := mmio.regs[regLVTTimer/4]
	if got&lvtMasked == 0 {
		t.Fatalf("LVT entry = %#x, mask bit not set", got)
	}
	if got&0xFF != 0x20 {
		t.Fatalf("LVT entry = %#x, vector field corrupted", got)
	}
}

func TestCalibrateRejectsNilClock(t *testing.T) {
	tm := New(0, false, false, 0x20)
	if _, err := tm.Calibrate(nil); err != errNilClock {
		t.Fatalf("got %v, want errNilClock", err)
	}
}

func TestCalibrateAveragesThreeSamples(t *testing.T) {
	mmio := &fakeMMIO{}
	mmio.install(t)
	// Every sample sees the counter drop by the same fixed amount, so the
	// pairwise average must equal that single sample's implied rate.
	mmio.regs[regTimerCurrCount/4] = 0xFFFFFFFF - 2_000_000_000

	tm := New(0, false, false, 0x20)
	freq, err := tm.Calibrate(&fakeClock{stepNS: 1_000_000})
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	want := uint64(2_000_000_000 * 1_000_000_000 / 10_000_000)
	if freq != want {
		t.Fatalf("Calibrate = %d, want %d", freq, want)
	}
}

func TestX2APICPathReadsAndWritesThroughMSRs(t *testing.T) {
	msrs := withFakeMSR(t)

	tm := New(0, true, false, 0x20)
	tm.writeReg(regLVTTimer, 0x1234)

	if msrs[x2apicMSR(regLVTTimer)] != 0x1234 {
		t.Fatalf("x2APIC MSR write did not land at the mapped MSR number")
	}
	if got := tm.readReg(regLVTTimer); got != 0x1234 {
		t.Fatalf("readReg via x2APIC = %#x, want 0x1234", got)
	}
}
