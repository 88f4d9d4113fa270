package marshal

// Handle is an opaque reference to a native record.
// Handle 0 is the null sentinel and never refers to a record.
type Handle uint32

// Class names a native record type.
type Class string

// Field names a string field of a native record.
type Field string

// List names a list of contained records.
type List string

// Table is the marshalling function table: the only way proxies reach native records.
//
// Handles passed to a Table are interpreted as the class given alongside them.
// Implementations must reject handle 0 with a null_handle error, handles of
// freed records with stale_handle, and handles whose record is not an
// instance of the given class with type_mismatch.
type Table interface {
	// Schema returns the class hierarchy served by the table.
	Schema() *Schema

	// New allocates a zero-valued record of class c. The caller owns it.
	New(c Class) (Handle, error)

	// Destroy frees a record and every record contained in its lists.
	Destroy(h Handle, c Class) error

	// Get reads field f.
	Get(h Handle, c Class, f Field) (string, error)

	// Set writes field f.
	Set(h Handle, c Class, f Field, value string) error

	// Upcast converts a handle of class from into a handle of ancestor class to.
	Upcast(h Handle, from, to Class) (Handle, error)

	// DynamicCast returns a handle of class to if the record is an instance of it,
	// or 0 if it is not. A miss is not an error.
	DynamicCast(h Handle, to Class) (Handle, error)

	// ClassOf returns the most-derived class of a record.
	ClassOf(h Handle) (Class, error)

	// Len returns the number of elements in list l.
	Len(h Handle, c Class, l List) (int, error)

	// Append moves elem into list l. The list owns elem afterwards.
	Append(h Handle, c Class, l List, elem Handle) error

	// At returns the handle of element i of list l. The list keeps ownership.
	At(h Handle, c Class, l List, i int) (Handle, error)

	// RemoveAt removes element i of list l and destroys it.
	RemoveAt(h Handle, c Class, l List, i int) error
}
