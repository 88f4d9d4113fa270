// Package heap provides a Go-resident native record heap.
//
// Heap implements marshal.Table by keeping records in a resource slot table.
// It is the reference backend: tests and tools that do not need records to
// live outside the Go heap use it directly.
//
//	h := heap.New(&heap.Config{Logger: logger})
//	defer h.Close()
//
//	hd, _ := h.New(marshal.ClassServerInfo)
//	_ = h.Set(hd, marshal.ClassServerInfo, marshal.FieldServerID, "srv-1")
//
// Freed handles are detected through slot generations and reported as
// stale_handle errors rather than reading another record.
package heap
