// Package apic implements spec.md §4.6: xAPIC/x2APIC detection and
// enablement, legacy 8259 PIC masking, the LAPIC operation set
// (endOfInterrupt, sendInitIpi, sendSipi, sendSelfIpi, waitForDelivery),
// and IRQ vector routing (16 legacy lines at vectors 32-47, the 0xFE
// scheduler tick, and the 0xFF spurious vector).
//
// The teacher has no APIC code at all; register offsets, MSR numbers, and
// the IPI encodings follow spec.md §4.6 directly. The privileged-access
// seams (msrReadFn/msrWriteFn, mmioReadFn/mmioWriteFn, outBFn) follow the
// same function-variable idiom kernel/cpu and kernel/timer/lapic use for
// instructions a host test process cannot safely execute.
package apic

import (
	"unsafe"

	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/cpu"
	"github.com/vela-os/vela/kernel/interrupt"
)

// xAPIC MMIO register offsets, spec.md §4.6's "fixed set of 32-bit
// offsets".
const (
	regID          = 0x020
	regEOI         = 0x0B0
	regSpuriousVec = 0x0F0
	regICRLow      = 0x300
	regICRHigh     = 0x310
)

// IA32_APIC_BASE and the x2APIC spurious-vector MSR, spec.md §4.6.
const (
	msrAPICBase   = 0x1B
	msrSpuriousX2 = 0x80F
	msrICRx2      = 0x830
)

const (
	apicBaseEN   = 1 << 11
	apicBaseEXTD = 1 << 10
)

const svrAPICEnable = 1 << 8

// ICR delivery modes and flags, spec.md §4.6/§4.7.
const (
	deliveryModeInit  = 0b101 << 8
	deliveryModeStart = 0b110 << 8
	triggerLevel      = 1 << 15
	levelAssert       = 1 << 14
	icrBusyStatus     = 1 << 12
)

// VectorSchedTick and VectorSpurious are spec.md §4.6's two fixed IRQ
// vectors outside the legacy 32-47 range.
const (
	VectorSchedTick uint8 = 0xFE
	VectorSpurious  uint8 = 0xFF
)

// LegacyIRQBase is the vector the first of the 16 legacy IRQ lines maps
// to; line n routes to LegacyIRQBase+n.
const LegacyIRQBase uint8 = 32

var (
	msrReadFn  = cpu.RDMSR
	msrWriteFn = cpu.WRMSR
	cpuidFn    = cpu.ID
	outBFn     = cpu.OutB

	mmioReadFn  = func(addr uintptr) uint32 { return *(*uint32)(unsafe.Pointer(addr)) }
	mmioWriteFn = func(addr uintptr, v uint32) { *(*uint32)(unsafe.Pointer(addr)) = v }
)

var errUnmappedIRQLine = &kernel.Error{Module: "apic", Message: "legacy IRQ line out of range 0-15"}

// spuriousCount is incremented by the spurious-vector handler; exported
// via SpuriousCount for diagnostics.
var spuriousCount uint64

// Controller is the handle bring-up code uses to drive whichever LAPIC
// mode this CPU supports.
type Controller struct {
	useX2APIC bool
	mmioBase  uintptr
}

// SupportsX2APIC reports CPUID leaf 1 ECX bit 21, the x2APIC feature bit.
func SupportsX2APIC() bool {
	_, _, ecx, _ := cpuidFn(1, 0)
	return ecx&(1<<21) != 0
}

// MaskLegacyPICs masks every line on both 8259 PICs by writing 0xFF to
// their data ports, spec.md §4.6's "out 0xFF to 0x21 and 0xA1". Must run
// before the LAPIC takes over IRQ delivery, or a legacy PIC interrupt can
// race the APIC's own vector.
func MaskLegacyPICs() {
	const picMasterData = 0x21
	const picSlaveData = 0xA1
	outBFn(picMasterData, 0xFF)
	outBFn(picSlaveData, 0xFF)
}

// New selects x2APIC (enabling it via IA32_APIC_BASE) when the CPU
// supports it, otherwise falls back to MMIO through mmioBase (the
// physmap-mapped ACPI MADT local-APIC address). The spurious vector is
// programmed later, by Init.
func New(mmioBase uintptr) *Controller {
	c := &Controller{mmioBase: mmioBase}
	if SupportsX2APIC() {
		c.useX2APIC = true
		base := msrReadFn(msrAPICBase)
		msrWriteFn(msrAPICBase, base|apicBaseEN|apicBaseEXTD)
	}
	return c
}

// Init wires c as the dispatcher's EOI source and registers the
// spurious-vector and scheduler-tick handlers, spec.md §4.6.
func (c *Controller) Init() {
	c.EnableSpuriousVector()
	interrupt.SetEOISignal(c.EndOfInterrupt)
	interrupt.RegisterExternal(VectorSpurious, handleSpurious)
	interrupt.RegisterExternal(VectorSchedTick, handleSchedTick)
}

func (c *Controller) readReg(off uintptr) uint32 {
	if c.useX2APIC {
		return uint32(msrReadFn(x2apicMSR(off)))
	}
	return mmioReadFn(c.mmioBase + off)
}

func (c *Controller) writeReg(off uintptr, v uint32) {
	if c.useX2APIC {
		msrWriteFn(x2apicMSR(off), uint64(v))
		return
	}
	mmioWriteFn(c.mmioBase+off, v)
}

func x2apicMSR(mmioOffset uintptr) uint32 {
	return 0x800 + uint32(mmioOffset/16)
}

// EnableSpuriousVector programs the spurious-interrupt vector register
// (MSR 0x80F in x2APIC mode, MMIO offset 0xF0 otherwise) with
// VectorSpurious and the APIC software-enable bit.
func (c *Controller) EnableSpuriousVector() {
	if c.useX2APIC {
		msrWriteFn(msrSpuriousX2, uint64(VectorSpurious)|svrAPICEnable)
		return
	}
	c.writeReg(regSpuriousVec, uint32(VectorSpurious)|svrAPICEnable)
}

// EndOfInterrupt implements endOfInterrupt: a write of 0 to the EOI
// register, acknowledging the in-service external interrupt.
func (c *Controller) EndOfInterrupt() {
	c.writeReg(regEOI, 0)
}

// SendSelfIpi implements sendSelfIpi(vector): in x2APIC mode a single MSR
// write with the self-IPI shorthand; in xAPIC mode an ICR write targeting
// this core's own APIC ID with fixed delivery.
func (c *Controller) SendSelfIpi(vector uint8) {
	if c.useX2APIC {
		const selfIPIMSR = 0x83F
		msrWriteFn(selfIPIMSR, uint64(vector))
		return
	}
	myID := uint8(c.readReg(regID) >> 24)
	c.sendIPI(myID, uint64(vector), 0)
}

// SendInitIpi implements sendInitIpi(apic_id), spec.md §4.7 step 4 of AP
// bring-up: an INIT-mode, level-triggered, asserted IPI with vector 0.
func (c *Controller) SendInitIpi(apicID uint8) {
	c.sendIPI(apicID, 0, deliveryModeInit|triggerLevel|levelAssert)
	c.WaitForDelivery()
}

// SendSipi implements sendSipi(apic_id, vector), spec.md §4.7 step 5: a
// startup-mode IPI whose vector field is the trampoline's physical page
// number (trampoline_phys >> 12).
func (c *Controller) SendSipi(apicID uint8, vector uint8) {
	c.sendIPI(apicID, uint64(vector), deliveryModeStart)
	c.WaitForDelivery()
}

// sendIPI writes the ICR with the given destination, vector, and extra
// mode/trigger/level bits ORed in. In x2APIC mode this is spec.md §4.6's
// single 64-bit MSR write combining dest<<32 | mode/level/trigger | vector;
// in xAPIC mode it is the legacy two-register (0x310 high, then 0x300 low)
// sequence, low written last since that write is what actually triggers
// delivery.
func (c *Controller) sendIPI(destAPICID uint8, vectorAndMode uint64, extra uint64) {
	icr := vectorAndMode | extra
	if c.useX2APIC {
		icr |= uint64(destAPICID) << 32
		msrWriteFn(msrICRx2, icr)
		return
	}
	c.writeReg(regICRHigh, uint32(destAPICID)<<24)
	c.writeReg(regICRLow, uint32(icr))
}

// WaitForDelivery implements waitForDelivery(): xAPIC only, spins on the
// ICR delivery-status bit. x2APIC IPIs are a single atomic MSR write with
// no analogous status bit, so this is a no-op in that mode.
func (c *Controller) WaitForDelivery() {
	if c.useX2APIC {
		return
	}
	for c.readReg(regICRLow)&icrBusyStatus != 0 {
	}
}

// RouteLegacyIRQ registers handler for legacy IRQ line n (0-15), mapping
// it to vector LegacyIRQBase+n per spec.md §4.6's default 1:1 mapping.
func RouteLegacyIRQ(n uint8, handler interrupt.Handler) *kernel.Error {
	if n > 15 {
		return errUnmappedIRQLine
	}
	interrupt.RegisterExternal(LegacyIRQBase+n, handler)
	return nil
}

// handleSpurious implements spec.md §4.6's "spurious handler just
// increments a counter".
func handleSpurious(ctx *interrupt.Context) {
	spuriousCount++
}

// SpuriousCount returns the number of spurious interrupts observed so
// far, for diagnostics.
func SpuriousCount() uint64 {
	return spuriousCount
}

// schedTickFn is called by handleSchedTick with the abstract context
// spec.md §4.6 describes; nil until a scheduler installs one via
// SetSchedTick, matching the nil-checked package-variable seam
// kernel/interrupt already uses for signalEOIFn.
var schedTickFn func(ctx TickContext)

// TickContext is the abstract context spec.md §4.6 hands to the
// scheduler's tick entry on every scheduler-tick interrupt.
type TickContext struct {
	Privilege Privilege
	ThreadCtx *interrupt.Context
}

// Privilege distinguishes a tick that interrupted kernel code from one
// that interrupted a user thread.
type Privilege uint8

const (
	PrivilegeKernel Privilege = iota
	PrivilegeUser
)

// SetSchedTick installs the scheduler's tick entry point. Called once
// during boot after the scheduler itself exists.
func SetSchedTick(fn func(ctx TickContext)) {
	schedTickFn = fn
}

func handleSchedTick(ctx *interrupt.Context) {
	if schedTickFn == nil {
		return
	}
	priv := PrivilegeKernel
	if ctx.CPL() == 3 {
		priv = PrivilegeUser
	}
	schedTickFn(TickContext{Privilege: priv, ThreadCtx: ctx})
}
