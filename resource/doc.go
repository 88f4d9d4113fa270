// Package resource provides a handle slot table for host-resident values.
//
// Values are stored in numbered slots and referenced by opaque 32-bit handles.
// Handle 0 is reserved and never issued.
//
// # Stale Handles
//
// Each slot has an 8-bit generation that is bumped whenever the slot is
// reused. A handle records the generation it was issued with, so a handle
// kept after its entry was dropped stops resolving even if the slot now holds
// a different value:
//
//	h1, _ := table.Insert(typeID, a)
//	table.Remove(h1)
//	h2, _ := table.Insert(typeID, b) // same slot, new generation
//
//	_, ok := table.Get(h1) // !ok
//
// A slot is never handed out again once its generation reaches 255; it is
// retired instead, so a stale handle can never alias a later entry.
//
// # Type IDs
//
// Each entry carries a type ID, readable without fetching the value:
//
//	id, ok := table.TypeID(h)
//
// # Observers
//
// Observers receive an Event for every Insert and Remove. Observers must be
// comparable so that Unsubscribe can find them:
//
//	table.Subscribe(obs)
//	defer table.Unsubscribe(obs)
//
// Values are not garbage collected. Remove must be called explicitly. Clear
// removes everything that is left and notifies observers; Close discards it
// silently.
package resource
