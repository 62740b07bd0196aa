// Package timer defines spec.md §4.5's timer capability: an interface
// with now() and an optional armInterruptTimer(ns), behind which the
// scheduler stores a single indirection rather than caring which concrete
// clock backs it. Per REDESIGN FLAGS, the source's hand-rolled
// (ptr, vtable) pair becomes an ordinary Go interface here.
//
// Grounded on spec.md §4.5's three concrete implementations (HPET: now
// only; TSC: both; LAPIC one-shot: arm only) and §9's REDESIGN FLAGS note
// on expressing the capability as an interface rather than a vtable; the
// teacher has no timer code to ground the interface shape itself on.
package timer

import "github.com/vela-os/vela/kernel"

// Clock reports elapsed time since an arbitrary epoch in nanoseconds.
// hpet.Timer and tsc.Source implement this; lapic.Timer has no NowNS and
// does not.
type Clock interface {
	NowNS() uint64
}

// IntervalTimer can additionally arm a one-shot interrupt ns nanoseconds
// in the future. tsc.Source implements this; HPET does not, since this
// kernel never programs an HPET comparator, and lapic.Timer, which has
// ArmInterruptTimer but no NowNS, does not satisfy it either.
type IntervalTimer interface {
	Clock
	ArmInterruptTimer(ns uint64)
}

var errNotIntervalCapable = &kernel.Error{Module: "timer", Message: "clock does not support arming an interrupt"}

// Capability is the single indirection the scheduler stores: a Clock that
// may or may not also be able to arm an interrupt. Exactly one concrete
// clock is active at a time; AsIntervalTimer reports whether it can arm.
type Capability struct {
	clock Clock
}

// New wraps clock as the active timer capability.
func New(clock Clock) *Capability {
	return &Capability{clock: clock}
}

// NowNS delegates to the wrapped clock.
func (c *Capability) NowNS() uint64 {
	return c.clock.NowNS()
}

// ArmInterruptTimer arms an interrupt ns nanoseconds from now if the
// wrapped clock supports it, returning errNotIntervalCapable otherwise
// (e.g. the capability is currently backed by a bare HPET Clock).
func (c *Capability) ArmInterruptTimer(ns uint64) *kernel.Error {
	it, ok := c.clock.(IntervalTimer)
	if !ok {
		return errNotIntervalCapable
	}
	it.ArmInterruptTimer(ns)
	return nil
}

// Swap replaces the active clock, used during boot as the kernel upgrades
// from a bare HPET Clock to a calibrated TSC IntervalTimer.
func (c *Capability) Swap(clock Clock) {
	c.clock = clock
}
