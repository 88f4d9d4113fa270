package otapi

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/otapi-bridge/errors"
	"github.com/wippyai/otapi-bridge/heap"
	"github.com/wippyai/otapi-bridge/marshal"
	"github.com/wippyai/otapi-bridge/marshal/marshaltest"
)

func TestContactNym_Fields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tbl marshal.Table) {
		cn := mustContactNym(t, tbl)
		defer cn.Release()

		tests := []struct {
			name string
			set  func(string) error
			get  func() (string, error)
			val  string
		}{
			{"GUILabel", cn.SetGUILabel, cn.GUILabel, "Alice"},
			{"NymType", cn.SetNymType, cn.NymType, "personal"},
			{"NymID", cn.SetNymID, cn.NymID, "nym-1"},
			{"PublicKey", cn.SetPublicKey, cn.PublicKey, "-----BEGIN PUBLIC KEY-----"},
			{"Memo", cn.SetMemo, cn.Memo, "met at the conference"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if err := tt.set(tt.val); err != nil {
					t.Fatalf("set: %v", err)
				}
				got, err := tt.get()
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				if got != tt.val {
					t.Fatalf("got %q, want %q", got, tt.val)
				}
			})
		}
	})
}

func TestContactNym_AddServerInfo(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tbl marshal.Table) {
		rec := marshaltest.NewRecorder(tbl)
		cn := mustContactNym(t, rec)

		si := mustServerInfo(t, rec)
		if err := si.SetServerID("srv-1"); err != nil {
			t.Fatalf("SetServerID: %v", err)
		}
		if err := cn.AddServerInfo(si); err != nil {
			t.Fatalf("AddServerInfo: %v", err)
		}
		if si.Owns() {
			t.Fatal("added proxy still owns its record")
		}
		if si.pinned != cn {
			t.Fatal("added proxy does not pin its container")
		}

		n, err := cn.ServerInfoCount()
		if err != nil || n != 1 {
			t.Fatalf("ServerInfoCount = %d, %v", n, err)
		}

		view, err := cn.ServerInfo(0)
		if err != nil {
			t.Fatalf("ServerInfo(0): %v", err)
		}
		if view.Owns() {
			t.Fatal("element view owns the record")
		}
		if view.pinned != cn {
			t.Fatal("element view does not pin its container")
		}
		if id, err := view.ServerID(); err != nil || id != "srv-1" {
			t.Fatalf("view ServerID = %q, %v", id, err)
		}

		// Releasing element proxies must not destroy contained records.
		_ = si.Release()
		_ = view.Release()
		if n := rec.Count(marshaltest.OpDestroy); n != 0 {
			t.Fatalf("element release destroyed %d records", n)
		}

		if err := cn.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		if n := rec.Count(marshaltest.OpDestroy); n != 1 {
			t.Fatalf("destroy calls = %d, want 1", n)
		}
	})
}

func TestContactNym_AddServerInfoErrors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tbl marshal.Table) {
		cn := mustContactNym(t, tbl)
		defer cn.Release()

		t.Run("Nil", func(t *testing.T) {
			wantKind(t, cn.AddServerInfo(nil), errors.KindInvalidInput)
		})

		t.Run("NotOwner", func(t *testing.T) {
			owner := mustServerInfo(t, tbl)
			defer owner.Release()
			view, err := WrapServerInfo(tbl, owner.Handle(), false)
			if err != nil {
				t.Fatalf("WrapServerInfo: %v", err)
			}
			wantKind(t, cn.AddServerInfo(view), errors.KindNotOwner)
		})

		t.Run("AddedTwice", func(t *testing.T) {
			si := mustServerInfo(t, tbl)
			if err := cn.AddServerInfo(si); err != nil {
				t.Fatalf("AddServerInfo: %v", err)
			}
			wantKind(t, cn.AddServerInfo(si), errors.KindNotOwner)
		})

		t.Run("Released", func(t *testing.T) {
			si := mustServerInfo(t, tbl)
			_ = si.Release()
			wantErr(t, cn.AddServerInfo(si), errors.ErrUseAfterRelease)
		})

		t.Run("ReleasedContainer", func(t *testing.T) {
			other := mustContactNym(t, tbl)
			_ = other.Release()
			si := mustServerInfo(t, tbl)
			defer si.Release()
			wantErr(t, other.AddServerInfo(si), errors.ErrUseAfterRelease)
			if !si.Owns() {
				t.Fatal("failed add took ownership")
			}
		})

		t.Run("OtherContainer", func(t *testing.T) {
			si := mustServerInfo(t, tbl)
			if err := cn.AddServerInfo(si); err != nil {
				t.Fatalf("AddServerInfo: %v", err)
			}
			other := mustContactNym(t, tbl)
			defer other.Release()
			wantKind(t, other.AddServerInfo(si), errors.KindNotOwner)
		})
	})
}

func TestContactNym_RemoveServerInfo(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tbl marshal.Table) {
		cn := mustContactNym(t, tbl)
		defer cn.Release()

		var added []*ServerInfo
		for _, id := range []string{"a", "b", "c"} {
			si := mustServerInfo(t, tbl)
			_ = si.SetServerID(id)
			if err := cn.AddServerInfo(si); err != nil {
				t.Fatalf("AddServerInfo(%s): %v", id, err)
			}
			added = append(added, si)
		}

		if err := cn.RemoveServerInfo(1); err != nil {
			t.Fatalf("RemoveServerInfo: %v", err)
		}
		_, err := added[1].ServerID()
		wantErr(t, err, errors.ErrStaleHandle)

		n, _ := cn.ServerInfoCount()
		if n != 2 {
			t.Fatalf("ServerInfoCount = %d, want 2", n)
		}
		view, err := cn.ServerInfo(1)
		if err != nil {
			t.Fatalf("ServerInfo(1): %v", err)
		}
		if id, _ := view.ServerID(); id != "c" {
			t.Fatalf("ServerInfo(1).ServerID = %q, want c", id)
		}

		_, err = cn.ServerInfo(2)
		wantKind(t, err, errors.KindOutOfBounds)
		wantKind(t, cn.RemoveServerInfo(-1), errors.KindOutOfBounds)
	})
}

func TestContactNym_ReleaseInvalidatesElements(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tbl marshal.Table) {
		cn := mustContactNym(t, tbl)
		si := mustServerInfo(t, tbl)
		if err := cn.AddServerInfo(si); err != nil {
			t.Fatalf("AddServerInfo: %v", err)
		}

		if err := cn.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		_, err := si.ServerID()
		wantErr(t, err, errors.ErrStaleHandle)

		_, err = cn.ServerInfoCount()
		wantErr(t, err, errors.ErrUseAfterRelease)
		_, err = cn.ServerInfo(0)
		wantErr(t, err, errors.ErrUseAfterRelease)
		wantErr(t, cn.RemoveServerInfo(0), errors.ErrUseAfterRelease)
	})
}

func TestCastContactNym(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tbl marshal.Table) {
		cn := mustContactNym(t, tbl)
		defer cn.Release()
		_ = cn.SetNymID("nym-9")

		obj, err := Wrap(tbl, cn.Handle(), false)
		if err != nil {
			t.Fatalf("Wrap: %v", err)
		}
		got, err := CastContactNym(obj)
		if err != nil || got == nil {
			t.Fatalf("CastContactNym = %v, %v", got, err)
		}
		if id, _ := got.NymID(); id != "nym-9" {
			t.Fatalf("NymID = %q", id)
		}

		si := mustServerInfo(t, tbl)
		defer si.Release()
		if miss, err := CastContactNym(si); miss != nil || err != nil {
			t.Fatalf("CastContactNym(ServerInfo) = %v, %v", miss, err)
		}
	})
}

func TestWrap(t *testing.T) {
	forEachBackend(t, func(t *testing.T, tbl marshal.Table) {
		tests := []struct {
			class marshal.Class
		}{
			{marshal.ClassServerInfo},
			{marshal.ClassContactNym},
			{marshal.ClassDisplayable},
			{marshal.ClassStorable},
		}
		for _, tt := range tests {
			t.Run(string(tt.class), func(t *testing.T) {
				h, err := tbl.New(tt.class)
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				obj, err := Wrap(tbl, h, true)
				if err != nil {
					t.Fatalf("Wrap: %v", err)
				}
				if obj.Class() != tt.class {
					t.Fatalf("Class = %s, want %s", obj.Class(), tt.class)
				}
				if obj.Handle() != h || !obj.Owns() {
					t.Fatalf("handle=%d owns=%v", obj.Handle(), obj.Owns())
				}
				if err := obj.Release(); err != nil {
					t.Fatalf("Release: %v", err)
				}
				if _, err := tbl.ClassOf(h); err == nil {
					t.Fatal("record survived owning Release")
				}
			})
		}

		t.Run("Null", func(t *testing.T) {
			obj, err := Wrap(tbl, 0, true)
			if obj != nil || err != nil {
				t.Fatalf("Wrap(0) = %v, %v", obj, err)
			}
		})
	})
}

func TestWrap_UnknownClass(t *testing.T) {
	schema := marshal.MustSchema(marshal.ClassDef{Name: "Ledger", Fields: []marshal.FieldDef{{Name: "name"}}})
	h := heap.New(&heap.Config{Schema: schema})
	defer h.Close()

	hd, err := h.New("Ledger")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	obj, err := Wrap(h, hd, true)
	if obj != nil {
		t.Fatalf("Wrap = %v, want nil", obj)
	}
	wantKind(t, err, errors.KindUnsupported)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Class != "Ledger" || e.Handle != uint32(hd) {
		t.Fatalf("error = %#v, want class Ledger and handle %d", e, hd)
	}
	if n := h.Records(); n != 1 {
		t.Fatalf("Records = %d, want 1", n)
	}
}
