// Package otbridge binds Open-Transactions storable records to Go through
// opaque native handles.
//
// Go code never holds native records directly. A proxy carries a handle and
// an ownership flag, and every field read or write is a round trip through a
// marshalling table that owns the records.
//
// # Architecture Overview
//
//	otbridge/            Root package with Memory and Allocator interfaces
//	├── otapi/           Proxies: Storable, Displayable, ServerInfo, ContactNym
//	├── marshal/         Marshalling table contract, class schema, logging decorator
//	├── heap/            Go-resident native heap
//	├── wasmheap/        Native heap in WebAssembly linear memory (wazero)
//	├── resource/        Generation-tagged handle slot table
//	├── errors/          Structured error types
//	└── cmd/otbridge/    CLI and interactive browser
//
// # Quick Start
//
//	h := heap.New(nil)
//	defer h.Close()
//
//	si, err := otapi.NewServerInfo(h)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer si.Release()
//
//	_ = si.SetServerID("srv-1")
//	id, _ := si.ServerID() // "srv-1"
//
// # Ownership
//
// A proxy either owns its native record or borrows it. Only owners destroy
// records. Downcasts and container element access always produce borrowed
// proxies, so the same record can be reachable through one owning proxy and
// any number of borrowed views.
//
// # Release
//
// Release is idempotent and safe to call concurrently. Proxies also carry a
// finalizer that releases them if they become unreachable, but this is a
// best-effort fallback with no ordering or latency guarantee. Call Release.
//
// # Thread Safety
//
// Proxies and both heaps are safe for concurrent use. Release waits for
// in-flight accessor calls on the same proxy.
package otbridge
