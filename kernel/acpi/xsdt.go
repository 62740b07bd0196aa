package acpi

import "github.com/vela-os/vela/kernel"

const xsdtSignature = "XSDT"

// ValidateXSDT validates an XSDT's header and checksum.
func ValidateXSDT(b []byte) *kernel.Error {
	return ValidateSDTHeader(b, xsdtSignature)
}

// XSDTEntries returns the physical addresses of the SDTs an
// already-validated XSDT lists: 8-byte pointers packed immediately after
// the 36-byte header, one per table (spec.md §6: "entries are 64-bit
// physical pointers to SDTs").
func XSDTEntries(b []byte) []uint64 {
	length := int(le32(b, sdtOffLength))
	n := (length - sdtHeaderSize) / 8
	entries := make([]uint64, n)
	for i := 0; i < n; i++ {
		entries[i] = le64(b, sdtHeaderSize+i*8)
	}
	return entries
}
