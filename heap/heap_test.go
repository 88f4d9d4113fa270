package heap

import (
	stderrors "errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/otapi-bridge/errors"
	"github.com/wippyai/otapi-bridge/marshal"
	"github.com/wippyai/otapi-bridge/marshal/marshaltest"
)

func newHeap(t *testing.T) marshal.Table {
	h := New(nil)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHeap_Conformance(t *testing.T) {
	marshaltest.Run(t, newHeap)
}

func TestHeap_LoggedConformance(t *testing.T) {
	marshaltest.Run(t, func(t *testing.T) marshal.Table {
		return marshal.Logged(newHeap(t), zap.NewNop())
	})
}

func TestHeap_Records(t *testing.T) {
	h := New(nil)
	defer h.Close()

	nym, _ := h.New(marshal.ClassContactNym)
	for i := 0; i < 3; i++ {
		si, _ := h.New(marshal.ClassServerInfo)
		if err := h.Append(nym, marshal.ClassContactNym, marshal.ListServers, si); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if h.Records() != 4 {
		t.Fatalf("Records = %d, want 4", h.Records())
	}

	if err := h.RemoveAt(nym, marshal.ClassContactNym, marshal.ListServers, 1); err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	if h.Records() != 3 {
		t.Fatalf("Records = %d, want 3", h.Records())
	}

	if err := h.Destroy(nym, marshal.ClassContactNym); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if h.Records() != 0 {
		t.Fatalf("Records = %d, want 0", h.Records())
	}
}

func TestHeap_Close(t *testing.T) {
	h := New(nil)
	hd, _ := h.New(marshal.ClassServerInfo)

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := h.New(marshal.ClassServerInfo); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("New after Close = %v, want closed", err)
	}
	if _, err := h.Get(hd, marshal.ClassServerInfo, marshal.FieldServerID); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("Get after Close = %v, want closed", err)
	}
	if h.Records() != 0 {
		t.Fatalf("Records after Close = %d", h.Records())
	}
}

func TestHeap_CustomSchema(t *testing.T) {
	schema := marshal.MustSchema(
		marshal.ClassDef{Name: "Base", Fields: []marshal.FieldDef{{Name: "name"}}},
		marshal.ClassDef{Name: "Leaf", Parent: "Base", Fields: []marshal.FieldDef{{Name: "extra"}}},
	)
	h := New(&Config{Schema: schema})
	defer h.Close()

	if h.Schema() != schema {
		t.Fatal("Schema not applied")
	}
	hd, err := h.New("Leaf")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := h.Set(hd, "Base", "name", "leafy"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := h.Get(hd, "Leaf", "name"); v != "leafy" {
		t.Fatalf("Get = %q", v)
	}
	if _, err := h.New(marshal.ClassServerInfo); err == nil {
		t.Fatal("class outside the schema should be rejected")
	}
}

func TestHeap_SelfContainment(t *testing.T) {
	schema := marshal.MustSchema(
		marshal.ClassDef{Name: "Node", Lists: []marshal.ListDef{{Name: "children", Elem: "Node"}}},
	)
	h := New(&Config{Schema: schema})
	defer h.Close()

	root, _ := h.New("Node")
	child, _ := h.New("Node")
	if err := h.Append(root, "Node", "children", child); err != nil {
		t.Fatalf("Append: %v", err)
	}

	err := h.Append(root, "Node", "children", root)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Fatalf("self append = %v, want invalid_input", err)
	}

	if err := h.Destroy(root, "Node"); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if h.Records() != 0 {
		t.Fatalf("Records = %d, want 0", h.Records())
	}
}

func TestHeap_LogsLifecycle(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := New(&Config{Logger: zap.New(core)})
	defer h.Close()

	hd, _ := h.New(marshal.ClassServerInfo)
	_ = h.Destroy(hd, marshal.ClassServerInfo)

	if n := logs.FilterMessage("record created").Len(); n != 1 {
		t.Fatalf("created logs = %d, want 1", n)
	}
	entries := logs.FilterMessage("record dropped").All()
	if len(entries) != 1 {
		t.Fatalf("dropped logs = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["class"]; got != string(marshal.ClassServerInfo) {
		t.Fatalf("logged class = %v", got)
	}
}

func TestHeap_CloseLogsLiveRecords(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := New(&Config{Logger: zap.New(core)})

	nym, _ := h.New(marshal.ClassContactNym)
	si, _ := h.New(marshal.ClassServerInfo)
	if err := h.Append(nym, marshal.ClassContactNym, marshal.ListServers, si); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n := logs.FilterMessage("record dropped").Len(); n != 2 {
		t.Fatalf("dropped logs = %d, want 2", n)
	}
	if n := logs.FilterMessage("closing heap with live records").Len(); n != 1 {
		t.Fatalf("close logs = %d, want 1", n)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if n := logs.FilterMessage("record dropped").Len(); n != 2 {
		t.Fatalf("dropped logs after second Close = %d, want 2", n)
	}
}

func TestHeap_ClassOf(t *testing.T) {
	h := New(nil)
	defer h.Close()

	si, _ := h.New(marshal.ClassServerInfo)
	nym, _ := h.New(marshal.ClassContactNym)

	tests := []struct {
		name string
		hd   marshal.Handle
		want marshal.Class
		kind errors.Kind
	}{
		{"server info", si, marshal.ClassServerInfo, ""},
		{"contact nym", nym, marshal.ClassContactNym, ""},
		{"null", 0, "", errors.KindNullHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.ClassOf(tt.hd)
			if tt.kind != "" {
				var e *errors.Error
				if !stderrors.As(err, &e) || e.Kind != tt.kind {
					t.Fatalf("ClassOf = %v, want %s error", err, tt.kind)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("ClassOf = %q, %v; want %q", got, err, tt.want)
			}
		})
	}

	_ = h.Destroy(si, marshal.ClassServerInfo)
	if _, err := h.ClassOf(si); !stderrors.Is(err, errors.ErrStaleHandle) {
		t.Fatalf("ClassOf after Destroy = %v, want stale", err)
	}
}
