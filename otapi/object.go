package otapi

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/otapi-bridge/errors"
	"github.com/wippyai/otapi-bridge/marshal"
)

// Object is implemented by every proxy type.
type Object interface {
	// Class returns the static class of the proxy, not of the record.
	Class() marshal.Class

	// Handle returns the proxy's handle, or 0 once released.
	Handle() marshal.Handle

	// Owns reports whether releasing the proxy destroys the record.
	Owns() bool

	// Release drops the proxy's handle. See Storable.Release.
	Release() error

	base() *Storable

	// levels lists the proxy's refs from the most-derived class down to Storable.
	levels() []*ref
}

// ref is one level of a proxy's upcast chain. Accessors hold the read lock
// for the duration of the native call; release takes the write lock, so a
// record is never destroyed under an in-flight call through the same proxy.
type ref struct {
	mu     sync.RWMutex
	handle marshal.Handle
}

func (r *ref) load() marshal.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handle
}

// Storable is the root proxy type. It carries the ownership flag and the pin
// slot shared by every level of a derived proxy.
type Storable struct {
	table  marshal.Table
	pinned any
	self   ref
	owns   atomic.Bool
	pinMu  sync.Mutex
}

// WrapStorable creates a proxy for h. If owns is true, Release destroys the record.
func WrapStorable(table marshal.Table, h marshal.Handle, owns bool) *Storable {
	s := &Storable{}
	s.init(table, h, owns)
	track(s)
	return s
}

func (s *Storable) init(table marshal.Table, h marshal.Handle, owns bool) {
	s.table = table
	s.self.handle = h
	s.owns.Store(owns)
}

func (s *Storable) base() *Storable {
	return s
}

func (s *Storable) levels() []*ref {
	return []*ref{&s.self}
}

// Class returns marshal.ClassStorable.
func (s *Storable) Class() marshal.Class {
	return marshal.ClassStorable
}

// Handle returns the Storable-level handle, or 0 once released.
func (s *Storable) Handle() marshal.Handle {
	return s.self.load()
}

// Owns reports whether releasing the proxy destroys the record.
func (s *Storable) Owns() bool {
	return s.owns.Load()
}

// Table returns the marshalling table the proxy calls into.
func (s *Storable) Table() marshal.Table {
	return s.table
}

// Pin keeps dep reachable until the proxy is released. It is used when
// native code holds a reference that the Go garbage collector cannot see,
// such as a contained record pointing into its container. A later Pin
// replaces the earlier one; Pin(nil) clears it.
func (s *Storable) Pin(dep any) {
	s.pinMu.Lock()
	s.pinned = dep
	s.pinMu.Unlock()
}

// Release zeroes the handle and, if the proxy owns the record, destroys it.
// Ownership is given up before the destroy call, so the record is destroyed
// at most once however many goroutines or finalizers release concurrently.
// Releasing twice is a no-op. The error reports a failed destroy; the proxy
// is released either way.
func (s *Storable) Release() error {
	err := s.releaseRef(&s.self, marshal.ClassStorable)
	s.Pin(nil)
	return err
}

func (s *Storable) releaseRef(r *ref, c marshal.Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == 0 {
		return nil
	}
	var err error
	if s.owns.CompareAndSwap(true, false) {
		err = s.table.Destroy(r.handle, c)
		if err != nil {
			Logger().Warn("destroy failed",
				zap.String("class", string(c)),
				zap.Uint32("handle", uint32(r.handle)),
				zap.Error(err),
			)
		}
	}
	r.handle = 0
	return err
}

func (s *Storable) get(r *ref, c marshal.Class, f marshal.Field, op string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.handle == 0 {
		return "", errors.UseAfterRelease(string(c), op)
	}
	return s.table.Get(r.handle, c, f)
}

func (s *Storable) set(r *ref, c marshal.Class, f marshal.Field, value, op string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.handle == 0 {
		return errors.UseAfterRelease(string(c), op)
	}
	return s.table.Set(r.handle, c, f, value)
}

// cast runs a dynamic cast against the Storable-level handle of obj. A nil
// or released source yields 0, as does a record of another class.
//
// The read lock of every level is held, most-derived first, the same order
// Release takes them in. Release destroys the record under whichever level
// it reaches first, so a cast racing it sees either a live record or a
// zeroed handle, never a destroyed one.
func cast(obj Object, to marshal.Class, wrap func(marshal.Table, marshal.Handle) (Object, error)) (Object, error) {
	if obj == nil {
		return nil, nil
	}
	s := obj.base()
	if s == nil {
		return nil, nil
	}

	for _, r := range obj.levels() {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.handle == 0 {
			return nil, nil
		}
	}
	h, err := s.table.DynamicCast(s.self.handle, to)
	if err != nil || h == 0 {
		return nil, err
	}
	return wrap(s.table, h)
}

// Wrap creates a proxy of the record's most-derived class. It is the entry
// point for handles produced natively, for example while iterating records.
// Wrap(table, 0, owns) returns nil.
func Wrap(table marshal.Table, h marshal.Handle, owns bool) (Object, error) {
	if h == 0 {
		return nil, nil
	}
	c, err := table.ClassOf(h)
	if err != nil {
		return nil, err
	}
	var obj Object
	switch c {
	case marshal.ClassServerInfo:
		obj, err = WrapServerInfo(table, h, owns)
	case marshal.ClassContactNym:
		obj, err = WrapContactNym(table, h, owns)
	case marshal.ClassDisplayable:
		obj, err = WrapDisplayable(table, h, owns)
	case marshal.ClassStorable:
		obj = WrapStorable(table, h, owns)
	default:
		e := errors.Unsupported(errors.PhaseConstruct, "no proxy type for class")
		e.Class = string(c)
		e.Handle = uint32(h)
		err = e
	}
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// track installs the finalizer fallback. Explicit Release is the primary
// path; the finalizer only catches proxies that were dropped without it, and
// runs at an unspecified time after the proxy becomes unreachable, if ever.
func track(obj Object) {
	runtime.SetFinalizer(obj, finalize)
}

func finalize(obj Object) {
	h := obj.Handle()
	if h == 0 {
		return
	}
	// Non-owning views are routinely dropped without Release.
	if obj.Owns() {
		Logger().Warn("proxy released by finalizer, call Release explicitly",
			zap.String("class", string(obj.Class())),
			zap.Uint32("handle", uint32(h)),
		)
	}
	if err := obj.Release(); err != nil {
		Logger().Warn("finalizer release failed", zap.Error(err))
	}
}
