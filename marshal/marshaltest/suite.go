// Package marshaltest provides test tooling for marshal.Table implementations.
package marshaltest

import (
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/wippyai/otapi-bridge/errors"
	"github.com/wippyai/otapi-bridge/marshal"
)

// Factory returns a fresh, empty table serving marshal.Default.
// The factory is responsible for registering cleanup with t.
type Factory func(t *testing.T) marshal.Table

// Run exercises the marshal.Table contract against tables produced by newTable.
func Run(t *testing.T, newTable Factory) {
	t.Run("FieldRoundTrip", func(t *testing.T) { testFieldRoundTrip(t, newTable(t)) })
	t.Run("InheritedField", func(t *testing.T) { testInheritedField(t, newTable(t)) })
	t.Run("FieldErrors", func(t *testing.T) { testFieldErrors(t, newTable(t)) })
	t.Run("NullHandle", func(t *testing.T) { testNullHandle(t, newTable(t)) })
	t.Run("Upcast", func(t *testing.T) { testUpcast(t, newTable(t)) })
	t.Run("DynamicCast", func(t *testing.T) { testDynamicCast(t, newTable(t)) })
	t.Run("DestroyThenStale", func(t *testing.T) { testDestroyThenStale(t, newTable(t)) })
	t.Run("StaleAfterReuse", func(t *testing.T) { testStaleAfterReuse(t, newTable(t)) })
	t.Run("StaleAfterWraparound", func(t *testing.T) { testStaleAfterWraparound(t, newTable(t)) })
	t.Run("Containers", func(t *testing.T) { testContainers(t, newTable(t)) })
	t.Run("DestroyContainer", func(t *testing.T) { testDestroyContainer(t, newTable(t)) })
	t.Run("Concurrent", func(t *testing.T) { testConcurrent(t, newTable(t)) })
}

func mustNew(t *testing.T, tbl marshal.Table, c marshal.Class) marshal.Handle {
	t.Helper()
	h, err := tbl.New(c)
	if err != nil {
		t.Fatalf("New(%s): %v", c, err)
	}
	if h == 0 {
		t.Fatalf("New(%s) returned the null handle", c)
	}
	return h
}

func mustSet(t *testing.T, tbl marshal.Table, h marshal.Handle, c marshal.Class, f marshal.Field, v string) {
	t.Helper()
	if err := tbl.Set(h, c, f, v); err != nil {
		t.Fatalf("Set(%s.%s): %v", c, f, err)
	}
}

func mustGet(t *testing.T, tbl marshal.Table, h marshal.Handle, c marshal.Class, f marshal.Field) string {
	t.Helper()
	v, err := tbl.Get(h, c, f)
	if err != nil {
		t.Fatalf("Get(%s.%s): %v", c, f, err)
	}
	return v
}

func wantKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %T: %v", err, err)
	}
	if e.Kind != kind {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

func testFieldRoundTrip(t *testing.T, tbl marshal.Table) {
	h := mustNew(t, tbl, marshal.ClassServerInfo)

	if v := mustGet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldServerID); v != "" {
		t.Fatalf("new record field = %q, want empty", v)
	}

	values := []string{
		"srv-1",
		"",
		"ünïcødé ✓",
		strings.Repeat("x", 4096),
		"short again",
	}
	for _, v := range values {
		mustSet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldServerID, v)
		if got := mustGet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldServerID); got != v {
			t.Fatalf("round trip: got %q (len %d), want len %d", truncate(got), len(got), len(v))
		}
	}

	mustSet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldServerType, "notary")
	mustSet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldGUILabel, "Main")
	if got := mustGet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldServerType); got != "notary" {
		t.Fatalf("server_type = %q", got)
	}
	if got := mustGet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldServerID); got != "short again" {
		t.Fatalf("server_id clobbered: %q", truncate(got))
	}

	other := mustNew(t, tbl, marshal.ClassServerInfo)
	mustSet(t, tbl, other, marshal.ClassServerInfo, marshal.FieldServerID, "srv-2")
	if got := mustGet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldServerID); got != "short again" {
		t.Fatalf("records share storage: %q", truncate(got))
	}

	if err := tbl.Destroy(h, marshal.ClassServerInfo); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := tbl.Destroy(other, marshal.ClassServerInfo); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}

func testInheritedField(t *testing.T, tbl marshal.Table) {
	h := mustNew(t, tbl, marshal.ClassServerInfo)

	mustSet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldGUILabel, "via derived")
	if got := mustGet(t, tbl, h, marshal.ClassDisplayable, marshal.FieldGUILabel); got != "via derived" {
		t.Fatalf("Displayable view = %q", got)
	}

	mustSet(t, tbl, h, marshal.ClassDisplayable, marshal.FieldGUILabel, "via base")
	if got := mustGet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldGUILabel); got != "via base" {
		t.Fatalf("ServerInfo view = %q", got)
	}
}

func testFieldErrors(t *testing.T, tbl marshal.Table) {
	si := mustNew(t, tbl, marshal.ClassServerInfo)
	nym := mustNew(t, tbl, marshal.ClassContactNym)

	_, err := tbl.Get(si, marshal.ClassServerInfo, marshal.FieldNymID)
	wantKind(t, err, errors.KindFieldUnknown)

	err = tbl.Set(si, marshal.ClassServerInfo, "bogus", "x")
	wantKind(t, err, errors.KindFieldUnknown)

	// server_id exists on ServerInfo, but not as seen through the Displayable view.
	_, err = tbl.Get(si, marshal.ClassDisplayable, marshal.FieldServerID)
	wantKind(t, err, errors.KindFieldUnknown)

	_, err = tbl.Get(nym, marshal.ClassServerInfo, marshal.FieldServerID)
	wantKind(t, err, errors.KindTypeMismatch)

	_, err = tbl.New("NoSuchClass")
	if err == nil {
		t.Fatal("New of an unknown class should fail")
	}
}

func testNullHandle(t *testing.T, tbl marshal.Table) {
	_, err := tbl.Get(0, marshal.ClassServerInfo, marshal.FieldServerID)
	wantKind(t, err, errors.KindNullHandle)
	if !stderrors.Is(err, errors.ErrNullHandle) {
		t.Fatal("errors.Is(err, ErrNullHandle) = false")
	}

	wantKind(t, tbl.Set(0, marshal.ClassServerInfo, marshal.FieldServerID, "x"), errors.KindNullHandle)
	wantKind(t, tbl.Destroy(0, marshal.ClassServerInfo), errors.KindNullHandle)

	_, err = tbl.ClassOf(0)
	wantKind(t, err, errors.KindNullHandle)

	_, err = tbl.Len(0, marshal.ClassContactNym, marshal.ListServers)
	wantKind(t, err, errors.KindNullHandle)
}

func testUpcast(t *testing.T, tbl marshal.Table) {
	h := mustNew(t, tbl, marshal.ClassServerInfo)

	for _, to := range []marshal.Class{marshal.ClassServerInfo, marshal.ClassDisplayable, marshal.ClassStorable} {
		up, err := tbl.Upcast(h, marshal.ClassServerInfo, to)
		if err != nil {
			t.Fatalf("Upcast to %s: %v", to, err)
		}
		if up == 0 {
			t.Fatalf("Upcast to %s returned the null handle", to)
		}
		if c, err := tbl.ClassOf(up); err != nil || c != marshal.ClassServerInfo {
			t.Fatalf("ClassOf(upcast to %s) = %s, %v", to, c, err)
		}
	}

	_, err := tbl.Upcast(h, marshal.ClassServerInfo, marshal.ClassContactNym)
	wantKind(t, err, errors.KindTypeMismatch)

	up, err := tbl.Upcast(0, marshal.ClassServerInfo, marshal.ClassDisplayable)
	if err != nil || up != 0 {
		t.Fatalf("Upcast(0) = %d, %v; want 0, nil", up, err)
	}
}

func testDynamicCast(t *testing.T, tbl marshal.Table) {
	si := mustNew(t, tbl, marshal.ClassServerInfo)
	nym := mustNew(t, tbl, marshal.ClassContactNym)

	storable, err := tbl.Upcast(si, marshal.ClassServerInfo, marshal.ClassStorable)
	if err != nil {
		t.Fatalf("Upcast: %v", err)
	}

	got, err := tbl.DynamicCast(storable, marshal.ClassServerInfo)
	if err != nil || got == 0 {
		t.Fatalf("DynamicCast hit = %d, %v", got, err)
	}
	mustSet(t, tbl, got, marshal.ClassServerInfo, marshal.FieldServerID, "shared")
	if v := mustGet(t, tbl, si, marshal.ClassServerInfo, marshal.FieldServerID); v != "shared" {
		t.Fatalf("cast handle does not address the same record: %q", v)
	}

	got, err = tbl.DynamicCast(storable, marshal.ClassContactNym)
	if err != nil || got != 0 {
		t.Fatalf("DynamicCast miss = %d, %v; want 0, nil", got, err)
	}

	got, err = tbl.DynamicCast(nym, marshal.ClassDisplayable)
	if err != nil || got == 0 {
		t.Fatalf("DynamicCast to base = %d, %v", got, err)
	}

	got, err = tbl.DynamicCast(0, marshal.ClassServerInfo)
	if err != nil || got != 0 {
		t.Fatalf("DynamicCast(0) = %d, %v; want 0, nil", got, err)
	}

	if c, err := tbl.ClassOf(nym); err != nil || c != marshal.ClassContactNym {
		t.Fatalf("ClassOf(nym) = %s, %v", c, err)
	}
}

func testDestroyThenStale(t *testing.T, tbl marshal.Table) {
	h := mustNew(t, tbl, marshal.ClassServerInfo)
	mustSet(t, tbl, h, marshal.ClassServerInfo, marshal.FieldServerID, "gone soon")

	if err := tbl.Destroy(h, marshal.ClassServerInfo); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	_, err := tbl.Get(h, marshal.ClassServerInfo, marshal.FieldServerID)
	wantKind(t, err, errors.KindStaleHandle)
	if !stderrors.Is(err, errors.ErrStaleHandle) {
		t.Fatal("errors.Is(err, ErrStaleHandle) = false")
	}
	wantKind(t, tbl.Destroy(h, marshal.ClassServerInfo), errors.KindStaleHandle)

	_, err = tbl.DynamicCast(h, marshal.ClassServerInfo)
	wantKind(t, err, errors.KindStaleHandle)
}

func testStaleAfterReuse(t *testing.T, tbl marshal.Table) {
	old := mustNew(t, tbl, marshal.ClassServerInfo)
	if err := tbl.Destroy(old, marshal.ClassServerInfo); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	fresh := mustNew(t, tbl, marshal.ClassServerInfo)
	mustSet(t, tbl, fresh, marshal.ClassServerInfo, marshal.FieldServerID, "fresh")

	if fresh == old {
		t.Fatal("a reused record must get a different handle")
	}
	_, err := tbl.Get(old, marshal.ClassServerInfo, marshal.FieldServerID)
	wantKind(t, err, errors.KindStaleHandle)
}

// testStaleAfterWraparound reuses a freed record slot more often than a
// small generation counter can count. The original handle must stay stale
// and must never be issued again.
func testStaleAfterWraparound(t *testing.T, tbl marshal.Table) {
	old := mustNew(t, tbl, marshal.ClassServerInfo)
	if err := tbl.Destroy(old, marshal.ClassServerInfo); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	for i := 0; i < 300; i++ {
		h := mustNew(t, tbl, marshal.ClassServerInfo)
		if h == old {
			t.Fatalf("cycle %d reissued handle %#x", i, uint32(old))
		}
		if err := tbl.Destroy(h, marshal.ClassServerInfo); err != nil {
			t.Fatalf("Destroy #%d: %v", i, err)
		}
	}

	fresh := mustNew(t, tbl, marshal.ClassServerInfo)
	mustSet(t, tbl, fresh, marshal.ClassServerInfo, marshal.FieldServerID, "fresh")
	if fresh == old {
		t.Fatal("a reused record must get a different handle")
	}
	_, err := tbl.Get(old, marshal.ClassServerInfo, marshal.FieldServerID)
	wantKind(t, err, errors.KindStaleHandle)
}

func testContainers(t *testing.T, tbl marshal.Table) {
	nym := mustNew(t, tbl, marshal.ClassContactNym)
	a := mustNew(t, tbl, marshal.ClassServerInfo)
	b := mustNew(t, tbl, marshal.ClassServerInfo)
	mustSet(t, tbl, a, marshal.ClassServerInfo, marshal.FieldServerID, "a")
	mustSet(t, tbl, b, marshal.ClassServerInfo, marshal.FieldServerID, "b")

	if n, err := tbl.Len(nym, marshal.ClassContactNym, marshal.ListServers); err != nil || n != 0 {
		t.Fatalf("Len = %d, %v; want 0", n, err)
	}

	for _, e := range []marshal.Handle{a, b} {
		if err := tbl.Append(nym, marshal.ClassContactNym, marshal.ListServers, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if n, err := tbl.Len(nym, marshal.ClassContactNym, marshal.ListServers); err != nil || n != 2 {
		t.Fatalf("Len = %d, %v; want 2", n, err)
	}

	got, err := tbl.At(nym, marshal.ClassContactNym, marshal.ListServers, 1)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if v := mustGet(t, tbl, got, marshal.ClassServerInfo, marshal.FieldServerID); v != "b" {
		t.Fatalf("At(1) server_id = %q, want b", v)
	}

	// Contained records belong to the list.
	wantKind(t, tbl.Destroy(a, marshal.ClassServerInfo), errors.KindNotOwner)
	wantKind(t, tbl.Append(nym, marshal.ClassContactNym, marshal.ListServers, a), errors.KindNotOwner)

	_, err = tbl.At(nym, marshal.ClassContactNym, marshal.ListServers, 2)
	wantKind(t, err, errors.KindOutOfBounds)
	_, err = tbl.At(nym, marshal.ClassContactNym, marshal.ListServers, -1)
	wantKind(t, err, errors.KindOutOfBounds)
	_, err = tbl.Len(nym, marshal.ClassContactNym, "nope")
	wantKind(t, err, errors.KindListUnknown)

	other := mustNew(t, tbl, marshal.ClassContactNym)
	wantKind(t, tbl.Append(nym, marshal.ClassContactNym, marshal.ListServers, other), errors.KindTypeMismatch)

	if err := tbl.RemoveAt(nym, marshal.ClassContactNym, marshal.ListServers, 0); err != nil {
		t.Fatalf("RemoveAt: %v", err)
	}
	_, err = tbl.Get(a, marshal.ClassServerInfo, marshal.FieldServerID)
	wantKind(t, err, errors.KindStaleHandle)

	if n, _ := tbl.Len(nym, marshal.ClassContactNym, marshal.ListServers); n != 1 {
		t.Fatalf("Len after RemoveAt = %d, want 1", n)
	}
	got, err = tbl.At(nym, marshal.ClassContactNym, marshal.ListServers, 0)
	if err != nil || got != b {
		t.Fatalf("At(0) after RemoveAt = %d, %v; want %d", got, err, b)
	}
	wantKind(t, tbl.RemoveAt(nym, marshal.ClassContactNym, marshal.ListServers, 3), errors.KindOutOfBounds)
}

func testDestroyContainer(t *testing.T, tbl marshal.Table) {
	nym := mustNew(t, tbl, marshal.ClassContactNym)
	mustSet(t, tbl, nym, marshal.ClassContactNym, marshal.FieldNymID, "nym-1")

	var elems []marshal.Handle
	for i := 0; i < 3; i++ {
		e := mustNew(t, tbl, marshal.ClassServerInfo)
		if err := tbl.Append(nym, marshal.ClassContactNym, marshal.ListServers, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
		elems = append(elems, e)
	}

	if err := tbl.Destroy(nym, marshal.ClassContactNym); err != nil {
		t.Fatalf("Destroy container: %v", err)
	}
	for i, e := range elems {
		if _, err := tbl.Get(e, marshal.ClassServerInfo, marshal.FieldServerID); err == nil {
			t.Fatalf("element %d survived its container", i)
		}
	}
}

func testConcurrent(t *testing.T, tbl marshal.Table) {
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := tbl.New(marshal.ClassServerInfo)
			if err != nil {
				t.Errorf("New: %v", err)
				return
			}
			want := strings.Repeat(string(rune('a'+i%26)), i+1)
			if err := tbl.Set(h, marshal.ClassServerInfo, marshal.FieldServerID, want); err != nil {
				t.Errorf("Set: %v", err)
				return
			}
			got, err := tbl.Get(h, marshal.ClassServerInfo, marshal.FieldServerID)
			if err != nil || got != want {
				t.Errorf("Get = %q, %v; want %q", got, err, want)
			}
			if err := tbl.Destroy(h, marshal.ClassServerInfo); err != nil {
				t.Errorf("Destroy: %v", err)
			}
		}(i)
	}
	wg.Wait()
}
