package wasmheap

// guestModule is the smallest core module that exports a growable linear
// memory, equivalent to:
//
//	(module (memory (export "memory") 1))
//
// Records are laid out in that memory by the host.
var guestModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version 1

	// memory section: one memory, min 1 page, no max
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section: "memory" -> memory 0
	0x07, 0x0a, 0x01,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y',
	0x02, 0x00,
}

const guestMemoryExport = "memory"
