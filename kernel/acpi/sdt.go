package acpi

import "github.com/vela-os/vela/kernel"

// sdtHeaderSize is sizeof the teacher's table.SDTHeader: a 4-byte
// signature, a 4-byte length, revision, checksum, 6-byte OEMID, 8-byte
// OEMTableID, a 4-byte OEM revision, and two 4-byte creator fields.
const sdtHeaderSize = 36

const (
	sdtOffLength = 4
)

// ValidateSDTHeader checks b against spec.md §6/§7's table-header
// requirements, generalized across XSDT/MADT/HPET (and any other
// signature-tagged SDT): the declared signature matches sig byte-for-byte,
// b is at least as long as the table's own declared Length field, and the
// full declared-length byte range sums to zero.
//
// Grounded on the teacher's mapACPITable/validTable: read the header,
// trust its Length field to know how much more to check, then checksum
// exactly that range.
func ValidateSDTHeader(b []byte, sig string) *kernel.Error {
	if len(b) < sdtHeaderSize {
		return ErrInvalidSize
	}
	if !hasSignature(b, sig) {
		return ErrInvalidSignature
	}
	length := int(le32(b, sdtOffLength))
	if length < sdtHeaderSize || len(b) < length {
		return ErrInvalidSize
	}
	if checksum8(b[:length]) != 0 {
		return ErrInvalidChecksum
	}
	return nil
}
