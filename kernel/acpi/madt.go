package acpi

import "github.com/vela-os/vela/kernel"

const madtSignature = "APIC"

// madtEntriesOffset is spec.md §6's "byte offset 44" (36-byte SDT header +
// 4-byte LocalControllerAddress + 4-byte Flags, the teacher's MADT struct).
const madtEntriesOffset = 44

// MADTEntryType identifies one of the variable-length records following
// an MADT's fixed header, mirroring the teacher's table.MADTEntryType.
type MADTEntryType uint8

const (
	MADTEntryLocalAPIC         MADTEntryType = 0
	MADTEntryIOAPIC            MADTEntryType = 1
	MADTEntryInterruptOverride MADTEntryType = 2
	MADTEntryNMI               MADTEntryType = 4
)

// MADTEntry is one raw variable-length MADT record: a 2-byte {type,
// length} header (spec.md §6) followed by Length-2 bytes of
// type-specific payload, sliced directly out of the table buffer.
type MADTEntry struct {
	Type    MADTEntryType
	Payload []byte
}

// ValidateMADT validates an MADT's header and checksum.
func ValidateMADT(b []byte) *kernel.Error {
	return ValidateSDTHeader(b, madtSignature)
}

var errMADTEntryTooShort = &kernel.Error{Module: "acpi", Message: "MADT entry length shorter than its own header"}

// MADTEntries walks the variable-length entry records of an
// already-validated MADT starting at byte offset 44, returning typed
// errMADTEntryTooShort if any entry's declared length is below 2 (its own
// header size, spec.md §6), or ErrInvalidSize if an entry would run past
// the table's end.
func MADTEntries(b []byte) ([]MADTEntry, *kernel.Error) {
	length := int(le32(b, sdtOffLength))
	var entries []MADTEntry

	for off := madtEntriesOffset; off < length; {
		if off+2 > length {
			return nil, ErrInvalidSize
		}
		entryType := MADTEntryType(b[off])
		entryLen := int(b[off+1])
		if entryLen < 2 {
			return nil, errMADTEntryTooShort
		}
		if off+entryLen > length {
			return nil, ErrInvalidSize
		}
		entries = append(entries, MADTEntry{Type: entryType, Payload: b[off+2 : off+entryLen]})
		off += entryLen
	}
	return entries, nil
}
