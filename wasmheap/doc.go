// Package wasmheap keeps native records in WebAssembly linear memory.
//
// A wazero runtime instantiates a minimal guest module whose only export is
// its memory. The host lays records out in that memory, allocates strings and
// list buffers with a size-class allocator, and grows the memory on demand up
// to Config.MemoryLimitPages. Go code only ever sees handles; the bytes live
// outside the Go heap, as they would behind a C or Rust library.
//
//	h, err := wasmheap.New(ctx, &wasmheap.Config{MemoryLimitPages: 256})
//	if err != nil {
//	    return err
//	}
//	defer h.Close(ctx)
//
//	si, err := otapi.NewServerInfo(h)
//
// # Handles
//
// A handle is not a guest address. It refers to a host-side slot holding the
// address, tagged with a generation, so a freed record stays detectably stale
// when its memory is reused by a later allocation.
//
// # Thread Safety
//
// Heap is safe for concurrent use. Reads share a lock; writes, allocation and
// container changes are exclusive.
package wasmheap
