package acpi

import "github.com/vela-os/vela/kernel"

// xsdpSignature is the fixed 8-byte marker spec.md §6 requires: the last
// byte is a literal space.
const xsdpSignature = "RSD PTR "

// xsdpMinLength is the ACPI 2.0+ extended RSDP's full size (spec.md §6:
// "length >= 36"); revision-0 tables are only the first 20 bytes, but this
// package always reads the 36-byte ACPI 2.0+ form, since it consumes the
// 64-bit XsdtAddress field. The revision byte itself is not checked.
const xsdpMinLength = 36

const (
	xsdpOffChecksum = 8
	xsdpOffRevision = 15
	xsdpOffXsdtAddr = 24
)

// ValidateXSDP checks b against spec.md §6's XSDP requirements: signature
// "RSD PTR " byte-for-byte, length at least 36, and a full-range byte
// checksum of zero. Grounded on the teacher's locateRSDT, which performs
// the same three checks (signature loop, validTable checksum) before
// trusting an RSDP it finds while scanning low memory.
func ValidateXSDP(b []byte) *kernel.Error {
	if len(b) < xsdpMinLength {
		return ErrInvalidSize
	}
	if !hasSignature(b, xsdpSignature) {
		return ErrInvalidSignature
	}
	if checksum8(b[:xsdpMinLength]) != 0 {
		return ErrInvalidChecksum
	}
	return nil
}

// XSDTAddr returns the physical address of the XSDT out of an
// already-validated extended RSDP.
func XSDTAddr(b []byte) uint64 {
	return le64(b, xsdpOffXsdtAddr)
}
