package wasmheap

import (
	"github.com/tetratelabs/wazero/api"

	otbridge "github.com/wippyai/otapi-bridge"
	"github.com/wippyai/otapi-bridge/errors"
)

const pageSize = 65536

// guestMemory wraps wazero memory to implement otbridge.Memory
type guestMemory struct {
	mem api.Memory
}

func (m *guestMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.New(errors.PhaseHeap, errors.KindOutOfBounds).
			Detail("read out of bounds: offset=%d, length=%d", offset, length).
			Build()
	}
	return data, nil
}

func (m *guestMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.New(errors.PhaseHeap, errors.KindOutOfBounds).
			Detail("write out of bounds: offset=%d, length=%d", offset, len(data)).
			Build()
	}
	return nil
}

func (m *guestMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.New(errors.PhaseHeap, errors.KindOutOfBounds).
			Detail("read u32 out of bounds: offset=%d", offset).
			Build()
	}
	return val, nil
}

func (m *guestMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.New(errors.PhaseHeap, errors.KindOutOfBounds).
			Detail("write u32 out of bounds: offset=%d", offset).
			Build()
	}
	return nil
}

func (m *guestMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// Grow adds pages and reports whether the memory limit allowed it.
func (m *guestMemory) Grow(pages uint32) bool {
	_, ok := m.mem.Grow(pages)
	return ok
}

// linearMemory is guest memory as the heap and its allocator see it.
type linearMemory interface {
	otbridge.Memory
	otbridge.MemoryGrower
}

var _ linearMemory = (*guestMemory)(nil)
