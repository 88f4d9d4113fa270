package resource

import (
	"sync"
)

// Table wraps a Store with type-checked access and lifecycle observers.
type Table struct {
	store     *Store
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates a new table backed by a fresh Store.
func NewTable() *Table {
	return &Table{
		store: NewStore(),
	}
}

// Insert adds a value and returns its handle.
func (t *Table) Insert(typeID uint32, value any) (Handle, error) {
	handle, err := t.store.Create(typeID, value)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})

	return handle, nil
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.store.Get(handle)
}

// TypeID returns the type ID stored with a handle.
func (t *Table) TypeID(handle Handle) (uint32, bool) {
	return t.store.TypeID(handle)
}

// Remove drops a resource and returns (value, true) if found.
func (t *Table) Remove(handle Handle) (any, bool) {
	value, typeID, ok := t.store.Drop(handle)
	if !ok {
		return nil, false
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		TypeID: typeID,
		Value:  value,
	})

	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer. Observers must be comparable.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of active resources.
func (t *Table) Len() int {
	return t.store.Len()
}

// Clear removes every resource, notifying observers of each drop.
func (t *Table) Clear() {
	// Collect handles first to avoid holding lock during Remove
	var handles []Handle
	t.store.Each(func(h Handle, typeID uint32, value any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close discards all resources without notifying observers and stops
// accepting operations.
func (t *Table) Close() error {
	return t.store.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
