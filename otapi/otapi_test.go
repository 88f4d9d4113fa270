package otapi

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/wippyai/otapi-bridge/errors"
	"github.com/wippyai/otapi-bridge/heap"
	"github.com/wippyai/otapi-bridge/marshal"
	"github.com/wippyai/otapi-bridge/wasmheap"
)

// forEachBackend runs fn against every marshal.Table implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, tbl marshal.Table)) {
	t.Run("heap", func(t *testing.T) {
		h := heap.New(nil)
		t.Cleanup(func() { _ = h.Close() })
		fn(t, h)
	})
	t.Run("wasmheap", func(t *testing.T) {
		ctx := context.Background()
		h, err := wasmheap.New(ctx, nil)
		if err != nil {
			t.Fatalf("wasmheap.New: %v", err)
		}
		t.Cleanup(func() { _ = h.Close(ctx) })
		fn(t, h)
	})
}

func mustServerInfo(t *testing.T, tbl marshal.Table) *ServerInfo {
	t.Helper()
	si, err := NewServerInfo(tbl)
	if err != nil {
		t.Fatalf("NewServerInfo: %v", err)
	}
	return si
}

func mustContactNym(t *testing.T, tbl marshal.Table) *ContactNym {
	t.Helper()
	cn, err := NewContactNym(tbl)
	if err != nil {
		t.Fatalf("NewContactNym: %v", err)
	}
	return cn
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !stderrors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
}

// stubTable serves fixed ServerInfo records at caller-chosen handles.
// Methods the proxies do not reach for ServerInfo are left to the nil
// embedded Table and panic if called.
type stubTable struct {
	marshal.Table
	records   map[marshal.Handle]map[marshal.Field]string
	destroyed []marshal.Handle
}

func newStubTable(handles ...marshal.Handle) *stubTable {
	s := &stubTable{records: make(map[marshal.Handle]map[marshal.Field]string)}
	for _, h := range handles {
		s.records[h] = make(map[marshal.Field]string)
	}
	return s
}

func (s *stubTable) Schema() *marshal.Schema {
	return marshal.Default
}

func (s *stubTable) lookup(h marshal.Handle) (map[marshal.Field]string, error) {
	if h == 0 {
		return nil, errors.NullHandle(errors.PhaseAccess, "")
	}
	rec, ok := s.records[h]
	if !ok {
		return nil, errors.StaleHandle(errors.PhaseAccess, "", uint32(h))
	}
	return rec, nil
}

func (s *stubTable) Destroy(h marshal.Handle, _ marshal.Class) error {
	if _, err := s.lookup(h); err != nil {
		return err
	}
	delete(s.records, h)
	s.destroyed = append(s.destroyed, h)
	return nil
}

func (s *stubTable) Get(h marshal.Handle, _ marshal.Class, f marshal.Field) (string, error) {
	rec, err := s.lookup(h)
	if err != nil {
		return "", err
	}
	return rec[f], nil
}

func (s *stubTable) Set(h marshal.Handle, _ marshal.Class, f marshal.Field, v string) error {
	rec, err := s.lookup(h)
	if err != nil {
		return err
	}
	rec[f] = v
	return nil
}

func (s *stubTable) Upcast(h marshal.Handle, _, _ marshal.Class) (marshal.Handle, error) {
	return h, nil
}

func (s *stubTable) DynamicCast(h marshal.Handle, to marshal.Class) (marshal.Handle, error) {
	if h == 0 {
		return 0, nil
	}
	if _, err := s.lookup(h); err != nil {
		return 0, err
	}
	if !marshal.Default.IsA(marshal.ClassServerInfo, to) {
		return 0, nil
	}
	return h, nil
}

func (s *stubTable) ClassOf(h marshal.Handle) (marshal.Class, error) {
	if _, err := s.lookup(h); err != nil {
		return "", err
	}
	return marshal.ClassServerInfo, nil
}
