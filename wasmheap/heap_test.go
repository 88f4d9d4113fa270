package wasmheap

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/wippyai/otapi-bridge/errors"
	"github.com/wippyai/otapi-bridge/marshal"
	"github.com/wippyai/otapi-bridge/marshal/marshaltest"
)

func newTestHeap(t *testing.T, cfg *Config) *Heap {
	t.Helper()
	ctx := context.Background()
	h, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { h.Close(ctx) })
	return h
}

func TestHeap_Conformance(t *testing.T) {
	marshaltest.Run(t, func(t *testing.T) marshal.Table {
		return newTestHeap(t, nil)
	})
}

func TestHeap_RecordsLiveInGuestMemory(t *testing.T) {
	h := newTestHeap(t, nil)

	hd, err := h.New(marshal.ClassServerInfo)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.Set(hd, marshal.ClassServerInfo, marshal.FieldServerID, "srv-guest"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	r, err := h.lookup(errors.PhaseAccess, hd, marshal.ClassServerInfo)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	idx, _ := h.schema.FieldIndex(marshal.ClassServerInfo, marshal.FieldServerID)
	ptr, _ := h.mem.ReadU32(r.fieldAddr(idx))
	n, _ := h.mem.ReadU32(r.fieldAddr(idx) + 4)
	raw, err := h.mem.Read(ptr, n)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(raw) != "srv-guest" {
		t.Fatalf("guest bytes = %q", raw)
	}

	id, _ := h.mem.ReadU32(r.addr + offClass)
	wantID, _ := h.schema.ID(marshal.ClassServerInfo)
	if id != wantID {
		t.Fatalf("class id in header = %d, want %d", id, wantID)
	}
}

func TestHeap_DestroyTombstonesAndFrees(t *testing.T) {
	h := newTestHeap(t, nil)

	hd, _ := h.New(marshal.ClassServerInfo)
	_ = h.Set(hd, marshal.ClassServerInfo, marshal.FieldGUILabel, "label")
	r, _ := h.lookup(errors.PhaseHeap, hd, "")
	before := h.BytesInUse()
	if before == 0 {
		t.Fatal("expected live allocations")
	}

	if err := h.Destroy(hd, marshal.ClassServerInfo); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if id, _ := h.mem.ReadU32(r.addr + offClass); id != 0 {
		t.Fatalf("class id after destroy = %d, want 0", id)
	}
	if h.BytesInUse() != 0 {
		t.Fatalf("BytesInUse = %d after destroying the only record", h.BytesInUse())
	}
	if h.Records() != 0 {
		t.Fatalf("Records = %d", h.Records())
	}
}

func TestHeap_MemoryGrowth(t *testing.T) {
	h := newTestHeap(t, &Config{MemoryLimitPages: 8})
	start := h.MemorySize()

	big := strings.Repeat("z", 100_000)
	hd, _ := h.New(marshal.ClassServerInfo)
	if err := h.Set(hd, marshal.ClassServerInfo, marshal.FieldServerType, big); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if h.MemorySize() <= start {
		t.Fatalf("memory did not grow: %d -> %d", start, h.MemorySize())
	}
	got, err := h.Get(hd, marshal.ClassServerInfo, marshal.FieldServerType)
	if err != nil || got != big {
		t.Fatalf("Get after growth: len %d, %v", len(got), err)
	}
}

func TestHeap_MemoryLimit(t *testing.T) {
	h := newTestHeap(t, &Config{MemoryLimitPages: 2})

	hd, _ := h.New(marshal.ClassServerInfo)
	err := h.Set(hd, marshal.ClassServerInfo, marshal.FieldServerID, strings.Repeat("x", 4*pageSize))
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindAllocation {
		t.Fatalf("Set beyond limit = %v, want allocation error", err)
	}

	// the previous value is untouched
	if v, err := h.Get(hd, marshal.ClassServerInfo, marshal.FieldServerID); err != nil || v != "" {
		t.Fatalf("Get = %q, %v", v, err)
	}
}

func TestHeap_ListGrowth(t *testing.T) {
	h := newTestHeap(t, nil)

	nym, _ := h.New(marshal.ClassContactNym)
	var elems []marshal.Handle
	for i := 0; i < 20; i++ {
		e, _ := h.New(marshal.ClassServerInfo)
		_ = h.Set(e, marshal.ClassServerInfo, marshal.FieldServerID, strings.Repeat("s", i+1))
		if err := h.Append(nym, marshal.ClassContactNym, marshal.ListServers, e); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		elems = append(elems, e)
	}

	for i, want := range elems {
		got, err := h.At(nym, marshal.ClassContactNym, marshal.ListServers, i)
		if err != nil || got != want {
			t.Fatalf("At(%d) = %d, %v; want %d", i, got, err, want)
		}
	}

	if err := h.RemoveAt(nym, marshal.ClassContactNym, marshal.ListServers, 0); err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	got, _ := h.At(nym, marshal.ClassContactNym, marshal.ListServers, 0)
	if got != elems[1] {
		t.Fatalf("At(0) after RemoveAt = %d, want %d", got, elems[1])
	}

	if err := h.Destroy(nym, marshal.ClassContactNym); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if h.Records() != 0 || h.BytesInUse() != 0 {
		t.Fatalf("after destroy: Records %d, BytesInUse %d", h.Records(), h.BytesInUse())
	}
}

func TestHeap_Close(t *testing.T) {
	ctx := context.Background()
	h, err := New(ctx, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hd, _ := h.New(marshal.ClassServerInfo)

	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := h.New(marshal.ClassServerInfo); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("New after Close = %v", err)
	}
	if _, err := h.Get(hd, marshal.ClassServerInfo, marshal.FieldServerID); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("Get after Close = %v", err)
	}
}

func TestAllocator_BlockSizes(t *testing.T) {
	tests := []struct {
		size, want uint32
	}{
		{1, 8},
		{8, 8},
		{9, 16},
		{16, 16},
		{17, 32},
		{4096, 4096},
		{4097, 8192},
	}
	for _, tt := range tests {
		if got := blockSize(tt.size); got != tt.want {
			t.Errorf("blockSize(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestAllocator_ReusesFreedBlocks(t *testing.T) {
	h := newTestHeap(t, nil)
	a := h.alloc

	p1, err := a.Alloc(24, 8)
	if err != nil || p1 == 0 {
		t.Fatalf("Alloc = %d, %v", p1, err)
	}
	if p1%8 != 0 {
		t.Fatalf("Alloc returned unaligned %d", p1)
	}
	a.Free(p1, 24, 8)

	p2, _ := a.Alloc(30, 8)
	if p2 != p1 {
		t.Fatalf("same size class should reuse %d, got %d", p1, p2)
	}

	if p, _ := a.Alloc(0, 8); p != 0 {
		t.Fatalf("zero-size Alloc = %d, want 0", p)
	}
	if _, err := a.Alloc(8, 16); err == nil {
		t.Fatal("alignment above 8 should be rejected")
	}
}
