package tsc

import "testing"

func withFixedRDTSC(t *testing.T, v uint64) {
	t.Helper()
	orig := rdtscFn
	rdtscFn = func() uint64 { return v }
	t.Cleanup(func() { rdtscFn = orig })
}

func withFixedRDTSCP(t *testing.T, tsc uint64, aux uint32) {
	t.Helper()
	orig := rdtscpFn
	rdtscpFn = func() (uint64, uint32) { return tsc, aux }
	t.Cleanup(func() { rdtscpFn = orig })
}

func withFakeMSRWrite(t *testing.T) map[uint32]uint64 {
	t.Helper()
	msrs := make(map[uint32]uint64)
	orig := msrWriteFn
	msrWriteFn = func(msr uint32, v uint64) { msrs[msr] = v }
	t.Cleanup(func() { msrWriteFn = orig })
	return msrs
}

func TestSourceNowNSConvertsThroughFrequency(t *testing.T) {
	withFixedRDTSC(t, 2_500_000_000)
	s := NewSource(2_500_000_000) // 1 second of ticks at 2.5GHz

	if got := s.NowNS(); got != 1_000_000_000 {
		t.Fatalf("NowNS = %d, want 1000000000", got)
	}
}

func TestSourceNowNSZeroWhenUncalibrated(t *testing.T) {
	withFixedRDTSC(t, 12345)
	s := NewSource(0)

	if got := s.NowNS(); got != 0 {
		t.Fatalf("NowNS = %d, want 0", got)
	}
}

func TestSourceArmInterruptTimerWritesDeadlineMSR(t *testing.T) {
	msrs := withFakeMSRWrite(t)
	withFixedRDTSCP(t, 1_000_000, 0)

	s := NewSource(1_000_000_000) // 1GHz
	s.ArmInterruptTimer(2_000)    // 2us -> 2000 ticks

	want := uint64(1_000_000 + 2_000)
	if got := msrs[msrTSCDeadline]; got != want {
		t.Fatalf("IA32_TSC_DEADLINE = %d, want %d", got, want)
	}
}
