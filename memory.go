package otbridge

// Memory represents linear memory holding native records
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// MemoryGrower extends linear memory by whole 64KB pages. Grow reports
// false when the memory limit does not allow it.
type MemoryGrower interface {
	MemorySizer
	Grow(pages uint32) bool
}

// Allocator allocates native memory for record bodies, strings and list buffers.
// Free must be given the same size and align that Alloc was called with.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
