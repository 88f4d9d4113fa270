package resource

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrClosed = errors.New("resource store closed")
	ErrFull   = errors.New("resource store full")
)

// Store is an in-memory slot store with generation-tagged handles.
// A freed slot is reused with its generation bumped, so handles to the old
// entry stop resolving instead of aliasing the new one. A slot whose
// generation is exhausted is retired rather than reused.
type Store struct {
	entries  []entry
	freeList []uint32
	live     int
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value  any
	typeID uint32
	gen    uint8
	valid  bool
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		entries:  make([]entry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Create stores a value and returns a handle.
func (s *Store) Create(typeID uint32, value any) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	if n := len(s.freeList); n > 0 {
		slot := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		e := &s.entries[slot-1]
		e.gen++
		e.typeID = typeID
		e.value = value
		e.valid = true
		s.live++
		return makeHandle(slot, e.gen), nil
	}

	if len(s.entries) >= MaxSlots {
		return 0, ErrFull
	}
	s.entries = append(s.entries, entry{
		typeID: typeID,
		value:  value,
		valid:  true,
	})
	s.live++
	return makeHandle(uint32(len(s.entries)), 0), nil
}

// lookup must be called with mu held.
func (s *Store) lookup(h Handle) *entry {
	slot := h.Slot()
	if slot == 0 || int(slot) > len(s.entries) {
		return nil
	}
	e := &s.entries[slot-1]
	if !e.valid || e.gen != h.Generation() {
		return nil
	}
	return e
}

// Get retrieves a value by handle.
func (s *Store) Get(h Handle) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.lookup(h)
	if e == nil {
		return nil, false
	}
	return e.value, true
}

// TypeID returns the type ID for a handle.
func (s *Store) TypeID(h Handle) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.lookup(h)
	if e == nil {
		return 0, false
	}
	return e.typeID, true
}

// Drop removes an entry and returns its value.
func (s *Store) Drop(h Handle) (any, uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(h)
	if e == nil {
		return nil, 0, false
	}

	value, typeID := e.value, e.typeID
	e.valid = false
	e.value = nil
	e.typeID = 0
	s.live--
	if e.gen < math.MaxUint8 {
		s.freeList = append(s.freeList, h.Slot())
	}
	return value, typeID, true
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Each iterates over all live entries. fn must not call back into the store.
func (s *Store) Each(fn func(Handle, uint32, any) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.entries {
		e := &s.entries[i]
		if e.valid {
			if !fn(makeHandle(uint32(i+1), e.gen), e.typeID, e.value) {
				break
			}
		}
	}
}

// Close discards all entries. Later calls to Create fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.entries = nil
	s.freeList = nil
	s.live = 0
	return nil
}
