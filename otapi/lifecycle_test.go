package otapi

import (
	"runtime"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/otapi-bridge/heap"
	"github.com/wippyai/otapi-bridge/marshal/marshaltest"
)

// waitFor runs the garbage collector until cond holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.GC()
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestFinalizer_ReleasesOwningProxy(t *testing.T) {
	logs := observeLogs(t)
	h := heap.New(nil)
	defer h.Close()
	rec := marshaltest.NewRecorder(h)

	func() {
		si := mustServerInfo(t, rec)
		_ = si.SetServerID("leaked")
	}()

	waitFor(t, "finalizer destroy", func() bool {
		return rec.Count(marshaltest.OpDestroy) == 1
	})
	if h.Records() != 0 {
		t.Fatalf("heap still holds %d records", h.Records())
	}
	if n := logs.FilterMessage("proxy released by finalizer, call Release explicitly").Len(); n != 1 {
		t.Fatalf("finalizer warnings = %d, want 1", n)
	}
}

func TestFinalizer_SkipsReleasedProxy(t *testing.T) {
	logs := observeLogs(t)
	h := heap.New(nil)
	defer h.Close()
	rec := marshaltest.NewRecorder(h)

	func() {
		si := mustServerInfo(t, rec)
		_ = si.Release()
	}()

	// Give the finalizer a chance to run; it must not destroy again.
	for i := 0; i < 5; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	if n := rec.Count(marshaltest.OpDestroy); n != 1 {
		t.Fatalf("destroy calls = %d, want 1", n)
	}
	if logs.Len() != 0 {
		t.Fatalf("unexpected warnings: %v", logs.All())
	}
}

func TestFinalizer_NonOwningViewKeepsRecord(t *testing.T) {
	logs := observeLogs(t)
	h := heap.New(nil)
	defer h.Close()
	rec := marshaltest.NewRecorder(h)

	owner := mustServerInfo(t, rec)
	defer owner.Release()

	func() {
		view, err := WrapServerInfo(rec, owner.Handle(), false)
		if err != nil {
			t.Fatalf("WrapServerInfo: %v", err)
		}
		_, _ = view.ServerID()
	}()

	for i := 0; i < 5; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	if n := rec.Count(marshaltest.OpDestroy); n != 0 {
		t.Fatalf("dropping a view destroyed %d records", n)
	}
	if _, err := owner.ServerID(); err != nil {
		t.Fatalf("owner after view finalized: %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("unexpected warnings: %v", logs.All())
	}
}

type payload struct {
	buf [64]byte
}

func TestPin_KeepsDependentReachable(t *testing.T) {
	h := heap.New(nil)
	defer h.Close()

	si := mustServerInfo(t, h)
	collected := make(chan struct{})

	func() {
		dep := &payload{}
		runtime.AddCleanup(dep, func(ch chan struct{}) { close(ch) }, collected)
		si.Pin(dep)
	}()

	for i := 0; i < 5; i++ {
		runtime.GC()
	}
	select {
	case <-collected:
		t.Fatal("pinned dependent was collected")
	case <-time.After(20 * time.Millisecond):
	}

	if err := si.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	waitFor(t, "dependent collection", func() bool {
		select {
		case <-collected:
			return true
		default:
			return false
		}
	})
}

func TestPin_ElementViewKeepsContainer(t *testing.T) {
	h := heap.New(nil)
	defer h.Close()
	rec := marshaltest.NewRecorder(h)

	var view *ServerInfo
	func() {
		cn := mustContactNym(t, rec)
		si := mustServerInfo(t, rec)
		_ = si.SetServerID("inner")
		if err := cn.AddServerInfo(si); err != nil {
			t.Fatalf("AddServerInfo: %v", err)
		}
		var err error
		view, err = cn.ServerInfo(0)
		if err != nil {
			t.Fatalf("ServerInfo(0): %v", err)
		}
	}()

	for i := 0; i < 5; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	if n := rec.Count(marshaltest.OpDestroy); n != 0 {
		t.Fatalf("container destroyed while a view was reachable")
	}
	if id, err := view.ServerID(); err != nil || id != "inner" {
		t.Fatalf("view ServerID = %q, %v", id, err)
	}

	view = nil
	waitFor(t, "container finalizer", func() bool {
		return rec.Count(marshaltest.OpDestroy) == 1
	})
	if h.Records() != 0 {
		t.Fatalf("heap still holds %d records", h.Records())
	}
}
