package main

import "github.com/vela-os/vela/kernel/bootinfo"

// growthMargin is added to the firmware-reported required size before
// retrying an undersized GetMemoryMap buffer: allocating more pages (or
// another agent growing the map) between calls is exactly the scenario
// the retry exists for, so the retry buffer should be larger than the
// bare minimum the first failure reported.
const growthMargin = 2 * 4096

// snapshotMemoryMap implements spec.md §4.8 step 6: allocate a buffer,
// call GetMemoryMap, and on ErrBufferTooSmall retry once with a buffer
// grown past the firmware-reported requirement.
func snapshotMemoryMap(bs BootServices) (MemoryMapSnapshot, *LoaderError) {
	buf := make([]byte, 4096)

	snap, err := bs.GetMemoryMap(buf)
	if err != nil && err.Message == ErrBufferTooSmall.Message {
		buf = make([]byte, err.RequiredSize+growthMargin)
		snap, err = bs.GetMemoryMap(buf)
	}
	if err != nil {
		return MemoryMapSnapshot{}, err
	}
	return snap, nil
}

// finalizeMemoryMap implements spec.md §4.8 step 7 / the ExitBootServices
// retry note in the Error Model section: the firmware may invalidate the
// map key between the last snapshot and this call if anything else
// allocates in between. On a stale key, re-snapshot once and retry,
// aborting on a second failure. Returns the snapshot that was actually
// current when ExitBootServices succeeded, since that is the one
// BootInfo.Mmap must carry.
func finalizeMemoryMap(bs BootServices) (MemoryMapSnapshot, *LoaderError) {
	snap, err := snapshotMemoryMap(bs)
	if err != nil {
		return MemoryMapSnapshot{}, err
	}

	if err := bs.ExitBootServices(snap.MapKey); err != ErrStaleMapKey {
		return snap, err
	}

	snap, err = snapshotMemoryMap(bs)
	if err != nil {
		return MemoryMapSnapshot{}, err
	}
	return snap, bs.ExitBootServices(snap.MapKey)
}

// buildMMap turns a firmware snapshot into the raw bootinfo.MMap the
// kernel entry point expects, matching spec.md §6's extern/C layout: a
// pointer to the descriptor array plus its stride and count, not a
// typed Go slice.
func buildMMap(snap MemoryMapSnapshot) bootinfo.MMap {
	return bootinfo.MMap{
		Key:            snap.MapKey,
		Descriptors:    bufferAddr(snap.Buffer),
		MMapSize:       uint64(len(snap.Buffer)),
		DescriptorSize: snap.DescriptorSize,
		NumDescriptors: snap.NumDescriptors,
	}
}
