package wasmheap

import (
	"math/bits"

	"go.uber.org/zap"

	otbridge "github.com/wippyai/otapi-bridge"
	"github.com/wippyai/otapi-bridge/errors"
)

const (
	// heapBase keeps the first bytes of guest memory unused so that no
	// allocation has address 0.
	heapBase = 16

	minBlock = 8
	maxAlign = 8
)

// allocator is a size-class allocator over guest memory. Blocks are rounded
// up to a power of two and recycled per class; fresh blocks come from a bump
// pointer that grows guest memory on demand. It is not safe for concurrent use.
type allocator struct {
	mem   otbridge.MemoryGrower
	log   *zap.Logger
	free  map[uint32][]uint32
	next  uint32
	inUse uint64
}

func newAllocator(mem otbridge.MemoryGrower, log *zap.Logger) *allocator {
	return &allocator{
		mem:  mem,
		log:  log,
		free: make(map[uint32][]uint32),
		next: heapBase,
	}
}

func blockSize(size uint32) uint32 {
	if size <= minBlock {
		return minBlock
	}
	return 1 << bits.Len32(size-1)
}

// Alloc returns a block of at least size bytes aligned to align.
// A zero size yields address 0.
func (a *allocator) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	if align > maxAlign || align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseHeap, "unsupported alignment")
	}
	if size > 1<<31 {
		return 0, errors.AllocationFailed(errors.PhaseHeap, size, align)
	}

	bs := blockSize(size)
	if list := a.free[bs]; len(list) > 0 {
		ptr := list[len(list)-1]
		a.free[bs] = list[:len(list)-1]
		a.inUse += uint64(bs)
		return ptr, nil
	}

	ptr := a.next
	end := uint64(ptr) + uint64(bs)
	if end > uint64(a.mem.Size()) {
		need := end - uint64(a.mem.Size())
		pages := uint32((need + pageSize - 1) / pageSize)
		if !a.mem.Grow(pages) {
			return 0, errors.AllocationFailed(errors.PhaseHeap, size, align)
		}
		a.log.Debug("guest memory grown", zap.Uint32("pages", pages), zap.Uint32("size", a.mem.Size()))
	}
	a.next = uint32(end)
	a.inUse += uint64(bs)
	return ptr, nil
}

// Free returns a block to its size class.
func (a *allocator) Free(ptr, size, align uint32) {
	if ptr == 0 || size == 0 {
		return
	}
	bs := blockSize(size)
	a.free[bs] = append(a.free[bs], ptr)
	a.inUse -= uint64(bs)
}

// InUse returns the number of bytes held by live blocks.
func (a *allocator) InUse() uint64 {
	return a.inUse
}

// heapAllocator is the allocator as the heap sees it.
type heapAllocator interface {
	otbridge.Allocator
	InUse() uint64
}

var _ heapAllocator = (*allocator)(nil)
