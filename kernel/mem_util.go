package kernel

import (
	"reflect"
	"unsafe"
)

// Memset sets size bytes at addr to value, using log2(size) copy calls
// instead of a byte-at-a-time loop since page-granular callers always deal
// in large, aligned regions where that pays off.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))

	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memcopy copies size bytes from src to dst.
func Memcopy(src, dst uintptr, size uintptr) {
	if size == 0 {
		return
	}

	srcSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: src,
	}))
	dstSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: dst,
	}))

	copy(dstSlice, srcSlice)
}
