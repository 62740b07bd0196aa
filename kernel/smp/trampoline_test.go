package smp

import (
	"testing"
	"unsafe"
)

func TestImageIsOnePageAndEndsWithTheParameterBlock(t *testing.T) {
	img := Image()
	if len(img) != TrampolineSize {
		t.Fatalf("len(Image()) = %d, want %d", len(img), TrampolineSize)
	}
	if paramBlockOffset != TrampolineSize-trampolineParamBlockSize {
		t.Fatalf("paramBlockOffset = %d, want %d", paramBlockOffset, TrampolineSize-trampolineParamBlockSize)
	}
}

func TestWriteParameterBlockPatchesCR3StackAndEntry(t *testing.T) {
	img := make([]byte, TrampolineSize)
	copy(img, Image())

	const wantCR3 uint64 = 0x0010_0000
	const wantStack uint64 = 0xFFFF_8000_0020_1000
	const wantEntry uint64 = 0xFFFF_FFFF_8000_0000

	WriteParameterBlock(img, wantCR3, wantStack, wantEntry)

	base := paramBlockOffset
	gotCR3 := *(*uint64)(unsafe.Pointer(&img[base]))
	gotStack := *(*uint64)(unsafe.Pointer(&img[base+8]))
	gotEntry := *(*uint64)(unsafe.Pointer(&img[base+16]))

	if gotCR3 != wantCR3 {
		t.Fatalf("cr3 field = %#x, want %#x", gotCR3, wantCR3)
	}
	if gotStack != wantStack {
		t.Fatalf("stack_top field = %#x, want %#x", gotStack, wantStack)
	}
	if gotEntry != wantEntry {
		t.Fatalf("entry_point field = %#x, want %#x", gotEntry, wantEntry)
	}
}

func TestWriteParameterBlockDoesNotDisturbCodeBytes(t *testing.T) {
	img := make([]byte, TrampolineSize)
	copy(img, Image())

	// Stage 1's first byte is cli (0xFA); WriteParameterBlock must only
	// ever touch the last 24 bytes of the image.
	before := img[0]
	WriteParameterBlock(img, 1, 2, 3)
	if img[0] != before {
		t.Fatalf("stage 1 byte 0 changed from %#x to %#x", before, img[0])
	}
}

func TestTinyGDTHasNullCodeAndDataDescriptors(t *testing.T) {
	img := Image()
	null := *(*uint64)(unsafe.Pointer(&img[0x100]))
	code := *(*uint64)(unsafe.Pointer(&img[0x108]))
	data := *(*uint64)(unsafe.Pointer(&img[0x110]))

	if null != 0 {
		t.Fatalf("GDT null descriptor = %#x, want 0", null)
	}
	if code == 0 || data == 0 {
		t.Fatal("GDT code/data descriptors must not be zero")
	}
}
