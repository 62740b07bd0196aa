package paging

import "github.com/vela-os/vela/kernel/addr"

// Walk looks up the leaf entry for virt, whatever its page size, returning
// the entry and the level it was found at. It does not allocate: absent
// intermediate tables yield ok=false rather than creating them, making
// Walk safe to call from the page-fault handler before it decides whether
// this is a protection fault (present) or a demand-paging opportunity
// (absent).
func Walk(pml4 addr.PAddr, virt addr.VAddr, base addr.Base) (e Entry, level Level, ok bool) {
	table := tableAt(pml4, base)

	for l := LevelPML4; l <= LevelPT; l++ {
		idx := l.Index(virt)
		cur := *table.entry(idx)

		if !cur.Present() {
			return cur, l, false
		}
		if cur.Huge() {
			return cur, l, true
		}
		if l == LevelPT {
			return cur, l, true
		}
		table = tableAt(cur.PAddr(), base)
	}

	return 0, LevelPT, false
}

// EntryPtr is Walk's counterpart for callers that need to mutate the leaf
// in place (the page-fault handler's copy-on-write break installs a new
// physical address and flips the writable bit on the exact same entry it
// just read). It never allocates and returns ok=false under the same
// conditions Walk does.
func EntryPtr(pml4 addr.PAddr, virt addr.VAddr, base addr.Base) (e *Entry, level Level, ok bool) {
	table := tableAt(pml4, base)

	for l := LevelPML4; l <= LevelPT; l++ {
		idx := l.Index(virt)
		cur := table.entry(idx)

		if !cur.Present() {
			return cur, l, false
		}
		if cur.Huge() {
			return cur, l, true
		}
		if l == LevelPT {
			return cur, l, true
		}
		table = tableAt(cur.PAddr(), base)
	}

	return nil, LevelPT, false
}
