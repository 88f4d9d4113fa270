package marshaltest

import (
	"sync"

	"github.com/wippyai/otapi-bridge/marshal"
)

// Op identifies a marshalling table operation.
type Op string

const (
	OpNew         Op = "new"
	OpDestroy     Op = "destroy"
	OpGet         Op = "get"
	OpSet         Op = "set"
	OpUpcast      Op = "upcast"
	OpDynamicCast Op = "dynamic_cast"
	OpClassOf     Op = "class_of"
	OpLen         Op = "len"
	OpAppend      Op = "append"
	OpAt          Op = "at"
	OpRemoveAt    Op = "remove_at"
)

// Recorder is a marshal.Table that counts calls before forwarding them.
type Recorder struct {
	next      marshal.Table
	calls     map[Op]int
	destroyed []marshal.Handle
	mu        sync.Mutex
}

var _ marshal.Table = (*Recorder)(nil)

// NewRecorder wraps t.
func NewRecorder(t marshal.Table) *Recorder {
	return &Recorder{next: t, calls: make(map[Op]int)}
}

func (r *Recorder) record(op Op) {
	r.mu.Lock()
	r.calls[op]++
	r.mu.Unlock()
}

// Count returns how many times op reached the table, including failed calls.
func (r *Recorder) Count(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// Destroyed returns the handles passed to successful Destroy calls, in order.
func (r *Recorder) Destroyed() []marshal.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]marshal.Handle(nil), r.destroyed...)
}

// Reset clears all counters.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[Op]int)
	r.destroyed = nil
}

func (r *Recorder) Schema() *marshal.Schema {
	return r.next.Schema()
}

func (r *Recorder) New(c marshal.Class) (marshal.Handle, error) {
	r.record(OpNew)
	return r.next.New(c)
}

func (r *Recorder) Destroy(h marshal.Handle, c marshal.Class) error {
	r.record(OpDestroy)
	err := r.next.Destroy(h, c)
	if err == nil {
		r.mu.Lock()
		r.destroyed = append(r.destroyed, h)
		r.mu.Unlock()
	}
	return err
}

func (r *Recorder) Get(h marshal.Handle, c marshal.Class, f marshal.Field) (string, error) {
	r.record(OpGet)
	return r.next.Get(h, c, f)
}

func (r *Recorder) Set(h marshal.Handle, c marshal.Class, f marshal.Field, value string) error {
	r.record(OpSet)
	return r.next.Set(h, c, f, value)
}

func (r *Recorder) Upcast(h marshal.Handle, from, to marshal.Class) (marshal.Handle, error) {
	r.record(OpUpcast)
	return r.next.Upcast(h, from, to)
}

func (r *Recorder) DynamicCast(h marshal.Handle, to marshal.Class) (marshal.Handle, error) {
	r.record(OpDynamicCast)
	return r.next.DynamicCast(h, to)
}

func (r *Recorder) ClassOf(h marshal.Handle) (marshal.Class, error) {
	r.record(OpClassOf)
	return r.next.ClassOf(h)
}

func (r *Recorder) Len(h marshal.Handle, c marshal.Class, l marshal.List) (int, error) {
	r.record(OpLen)
	return r.next.Len(h, c, l)
}

func (r *Recorder) Append(h marshal.Handle, c marshal.Class, l marshal.List, elem marshal.Handle) error {
	r.record(OpAppend)
	return r.next.Append(h, c, l, elem)
}

func (r *Recorder) At(h marshal.Handle, c marshal.Class, l marshal.List, i int) (marshal.Handle, error) {
	r.record(OpAt)
	return r.next.At(h, c, l, i)
}

func (r *Recorder) RemoveAt(h marshal.Handle, c marshal.Class, l marshal.List, i int) error {
	r.record(OpRemoveAt)
	return r.next.RemoveAt(h, c, l, i)
}
