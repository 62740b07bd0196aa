package interrupt

// VectorKind classifies how the dispatcher treats a vector once its
// handler returns: whether it needs an end-of-interrupt signal, and
// whether it is the kind of thing software ever issues on purpose.
//
//go:generate stringer -type=VectorKind
type VectorKind uint8

const (
	// KindException is a CPU-raised fault or trap (0-31). No EOI.
	KindException VectorKind = iota
	// KindExternal is an IRQ routed through the LAPIC. Requires EOI.
	KindExternal
	// KindSoftware is issued by software (syscalls, self-IPIs). No EOI.
	KindSoftware
)
