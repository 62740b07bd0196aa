package acpi

import "github.com/vela-os/vela/kernel"

const hpetSignature = "HPET"

// hpetOffBaseAddress is the HPET table's GenericAddress.Address field:
// 36-byte SDT header + 4-byte EventTimerBlockID + 4 fixed GenericAddress
// bytes (AddressSpace, RegisterBitWidth, RegisterBitOffset, reserved)
// ahead of its own 8-byte Address field, mirroring the teacher's
// table.GenericAddress layout.
const hpetOffBaseAddress = sdtHeaderSize + 4 + 4

// ValidateHPET validates an HPET table's header and checksum.
func ValidateHPET(b []byte) *kernel.Error {
	return ValidateSDTHeader(b, hpetSignature)
}

// HPETBaseAddress returns the physical MMIO base address an
// already-validated HPET table advertises, the address kernel/timer/hpet
// maps via the physmap.
func HPETBaseAddress(b []byte) uint64 {
	return le64(b, hpetOffBaseAddress)
}
