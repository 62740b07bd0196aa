// Package pmm is a minimal bitmap-backed physical frame allocator,
// implementing the paging.FrameAllocator capability spec.md §3 names only
// as an external collaborator. It exists (per the supplemented features
// recorded in DESIGN.md) to make the page-fault demand-mapping scenario in
// spec.md §8 executable against a real allocator rather than a bare
// interface stub.
//
// Grounded on the teacher's two-stage pmm.go (BootMemAllocator bootstraps
// BitmapAllocator), simplified to a single stage: with no heap available
// this early, the bitmap itself lives in a fixed-size static array sized
// for a generously large machine rather than being allocated from a region
// a bootstrap allocator would have to reserve first.
package pmm

import (
	"github.com/vela-os/vela/kernel"
	"github.com/vela-os/vela/kernel/addr"
	"github.com/vela-os/vela/kernel/bootinfo"
	"github.com/vela-os/vela/kernel/mem"
)

// maxTrackedFrames bounds the physical address range this allocator can
// track: 1Mi frames at 4 KiB each covers 4 GiB, comfortably more than the
// "deliberately small" scope this package targets (spec.md's supplemented
// features explicitly do not specify PMM policy beyond making §8's
// scenarios executable).
const maxTrackedFrames = 1 << 20

const bitmapWords = maxTrackedFrames / 64

var errOutOfMemory = &kernel.Error{Module: "pmm", Message: "out of physical memory"}
var errNotInitialized = &kernel.Error{Module: "pmm", Message: "AllocFrame called before Init"}

// BitmapAllocator tracks one bit per 4 KiB frame across [base, base+nbits*4096)
// the same way the teacher's BitmapAllocator tracks one bit per pool frame,
// minus the multi-pool bookkeeping: reserved bit set means "not available".
type BitmapAllocator struct {
	base   addr.PAddr
	nbits  uint64
	bitmap [bitmapWords]uint64
	cursor uint64
	ready  bool
}

// Init marks every frame in [base, base+nbits*4096) reserved by default,
// then clears the bits covered by runs classified bootinfo.ClassFree,
// mirroring the teacher's reserveKernelFrames/reserveEarlyAllocatorFrames
// "reserve everything, then free the known-good parts" ordering.
func (a *BitmapAllocator) Init(runs []bootinfo.Run) *kernel.Error {
	if len(runs) == 0 {
		return errOutOfMemory
	}

	base := runs[0].StartPAddr
	end := runs[0].StartPAddr + runs[0].NumPages*uint64(mem.PageSize)
	for _, r := range runs[1:] {
		if r.StartPAddr < base {
			base = r.StartPAddr
		}
		if e := r.StartPAddr + r.NumPages*uint64(mem.PageSize); e > end {
			end = e
		}
	}

	a.base = addr.PAddr(base)
	a.nbits = (end - base) / uint64(mem.PageSize)
	if a.nbits > maxTrackedFrames {
		a.nbits = maxTrackedFrames
	}

	for i := range a.bitmap {
		a.bitmap[i] = ^uint64(0)
	}

	for _, r := range runs {
		if r.Class != bootinfo.ClassFree {
			continue
		}
		startBit := (r.StartPAddr - base) / uint64(mem.PageSize)
		for b := startBit; b < startBit+r.NumPages && b < a.nbits; b++ {
			a.clearBit(b)
		}
	}

	a.ready = true
	return nil
}

func (a *BitmapAllocator) setBit(b uint64)   { a.bitmap[b/64] |= 1 << (b % 64) }
func (a *BitmapAllocator) clearBit(b uint64) { a.bitmap[b/64] &^= 1 << (b % 64) }
func (a *BitmapAllocator) testBit(b uint64) bool {
	return a.bitmap[b/64]&(1<<(b%64)) != 0
}

// AllocFrame implements paging.FrameAllocator: it reserves and returns the
// physical address of a free 4 KiB frame, scanning forward from where the
// last allocation left off so repeated allocations don't rescan low memory
// every time.
func (a *BitmapAllocator) AllocFrame() (addr.PAddr, *kernel.Error) {
	if !a.ready {
		return 0, errNotInitialized
	}

	for pass := 0; pass < 2; pass++ {
		for b := a.cursor; b < a.nbits; b++ {
			if !a.testBit(b) {
				a.setBit(b)
				a.cursor = b + 1
				return a.base + addr.PAddr(b*uint64(mem.PageSize)), nil
			}
		}
		a.cursor = 0
	}
	return 0, errOutOfMemory
}

// FreeFrame releases a frame previously returned by AllocFrame. The
// teacher's BootMemAllocator cannot free; this one can, since it tracks
// individual bits rather than a monotonically increasing counter.
func (a *BitmapAllocator) FreeFrame(p addr.PAddr) {
	if p < a.base {
		return
	}
	b := uint64(p-a.base) / uint64(mem.PageSize)
	if b >= a.nbits {
		return
	}
	a.clearBit(b)
}
