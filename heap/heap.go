package heap

import (
	stderrors "errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/otapi-bridge/errors"
	"github.com/wippyai/otapi-bridge/marshal"
	"github.com/wippyai/otapi-bridge/resource"
)

// Config holds configuration for heap creation
type Config struct {
	// Schema defaults to marshal.Default.
	Schema *marshal.Schema

	// Logger receives record lifecycle events at debug level. Defaults to a no-op logger.
	Logger *zap.Logger
}

type record struct {
	class  marshal.Class
	fields []string
	lists  [][]marshal.Handle
	owner  marshal.Handle
}

// recordLogger reports table lifecycle events at debug level.
type recordLogger struct {
	log    *zap.Logger
	schema *marshal.Schema
}

func (l *recordLogger) OnResourceEvent(e resource.Event) {
	if ce := l.log.Check(zap.DebugLevel, "record "+e.Type.String()); ce != nil {
		class, _ := l.schema.ClassByID(e.TypeID)
		ce.Write(zap.Uint32("handle", uint32(e.Handle)), zap.String("class", string(class)))
	}
}

// Heap is a Go-resident native record heap. It implements marshal.Table.
type Heap struct {
	schema *marshal.Schema
	table  *resource.Table
	events *recordLogger
	log    *zap.Logger
	mu     sync.RWMutex
	closed bool
}

var _ marshal.Table = (*Heap)(nil)

// New creates an empty heap. cfg may be nil.
func New(cfg *Config) *Heap {
	h := &Heap{
		schema: marshal.Default,
		table:  resource.NewTable(),
		log:    zap.NewNop(),
	}
	if cfg != nil {
		if cfg.Schema != nil {
			h.schema = cfg.Schema
		}
		if cfg.Logger != nil {
			h.log = cfg.Logger.Named("heap")
		}
	}

	h.events = &recordLogger{log: h.log, schema: h.schema}
	h.table.Subscribe(h.events)
	return h
}

// Schema returns the class hierarchy served by the heap.
func (h *Heap) Schema() *marshal.Schema {
	return h.schema
}

// Records returns the number of live records, including contained ones.
func (h *Heap) Records() int {
	return h.table.Len()
}

// Close frees every record that is still live, logging each as dropped.
// Later calls fail with a closed error.
func (h *Heap) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if n := h.table.Len(); n > 0 {
		h.log.Debug("closing heap with live records", zap.Int("records", n))
	}
	h.table.Clear()
	h.table.Unsubscribe(h.events)
	return h.table.Close()
}

// lookup must be called with mu held.
func (h *Heap) lookup(phase errors.Phase, hd marshal.Handle, c marshal.Class) (*record, error) {
	if h.closed {
		return nil, errors.Closed(phase)
	}
	if hd == 0 {
		return nil, errors.NullHandle(phase, string(c))
	}
	v, ok := h.table.Get(resource.Handle(hd))
	if !ok {
		return nil, errors.StaleHandle(phase, string(c), uint32(hd))
	}
	rec := v.(*record)
	if c != "" && !h.schema.IsA(rec.class, c) {
		return nil, errors.TypeMismatch(phase, uint32(hd), string(rec.class), string(c))
	}
	return rec, nil
}

func (h *Heap) checkClass(phase errors.Phase, c marshal.Class) error {
	if !h.schema.Has(c) {
		return errors.New(phase, errors.KindInvalidInput).
			Class(string(c)).
			Detail("unknown class").
			Build()
	}
	return nil
}

// New allocates a zero-valued record.
func (h *Heap) New(c marshal.Class) (marshal.Handle, error) {
	if err := h.checkClass(errors.PhaseHeap, c); err != nil {
		return 0, err
	}
	id, _ := h.schema.ID(c)
	rec := &record{
		class:  c,
		fields: make([]string, len(h.schema.Fields(c))),
		lists:  make([][]marshal.Handle, len(h.schema.Lists(c))),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, errors.Closed(errors.PhaseHeap)
	}
	hd, err := h.table.Insert(id, rec)
	if err != nil {
		if stderrors.Is(err, resource.ErrClosed) {
			return 0, errors.Closed(errors.PhaseHeap)
		}
		return 0, errors.Wrap(errors.PhaseHeap, errors.KindAllocation, err, "insert record")
	}
	return marshal.Handle(hd), nil
}

// Destroy frees a record and its contained records. Records held in a list
// can only be destroyed through RemoveAt or by destroying their container.
func (h *Heap) Destroy(hd marshal.Handle, c marshal.Class) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, err := h.lookup(errors.PhaseHeap, hd, c)
	if err != nil {
		return err
	}
	if rec.owner != 0 {
		return errors.New(errors.PhaseHeap, errors.KindNotOwner).
			Class(string(c)).
			Handle(uint32(hd)).
			Detail("record is owned by container %#x", uint32(rec.owner)).
			Build()
	}
	h.destroyLocked(hd, rec)
	return nil
}

func (h *Heap) destroyLocked(hd marshal.Handle, rec *record) {
	for _, list := range rec.lists {
		for _, elem := range list {
			if v, ok := h.table.Get(resource.Handle(elem)); ok {
				h.destroyLocked(elem, v.(*record))
			}
		}
	}
	rec.lists = nil
	h.table.Remove(resource.Handle(hd))
}

// Get reads a field.
func (h *Heap) Get(hd marshal.Handle, c marshal.Class, f marshal.Field) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rec, err := h.lookup(errors.PhaseAccess, hd, c)
	if err != nil {
		return "", err
	}
	i, ok := h.schema.FieldIndex(c, f)
	if !ok {
		return "", errors.FieldUnknown(errors.PhaseAccess, string(c), string(f))
	}
	return rec.fields[i], nil
}

// Set writes a field.
func (h *Heap) Set(hd marshal.Handle, c marshal.Class, f marshal.Field, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, err := h.lookup(errors.PhaseAccess, hd, c)
	if err != nil {
		return err
	}
	i, ok := h.schema.FieldIndex(c, f)
	if !ok {
		return errors.FieldUnknown(errors.PhaseAccess, string(c), string(f))
	}
	rec.fields[i] = value
	return nil
}

// Upcast returns hd unchanged after checking that from derives from to.
func (h *Heap) Upcast(hd marshal.Handle, from, to marshal.Class) (marshal.Handle, error) {
	if err := h.checkClass(errors.PhaseConstruct, to); err != nil {
		return 0, err
	}
	if !h.schema.IsA(from, to) {
		return 0, errors.TypeMismatch(errors.PhaseConstruct, uint32(hd), string(from), string(to))
	}
	if hd == 0 {
		return 0, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, err := h.lookup(errors.PhaseConstruct, hd, from); err != nil {
		return 0, err
	}
	return hd, nil
}

// DynamicCast returns hd if the record is an instance of to, and 0 otherwise.
// Casting the null handle yields the null handle.
func (h *Heap) DynamicCast(hd marshal.Handle, to marshal.Class) (marshal.Handle, error) {
	if err := h.checkClass(errors.PhaseCast, to); err != nil {
		return 0, err
	}
	if hd == 0 {
		return 0, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	rec, err := h.lookup(errors.PhaseCast, hd, "")
	if err != nil {
		return 0, err
	}
	if !h.schema.IsA(rec.class, to) {
		return 0, nil
	}
	return hd, nil
}

// ClassOf returns the most-derived class of a record.
func (h *Heap) ClassOf(hd marshal.Handle) (marshal.Class, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return "", errors.Closed(errors.PhaseCast)
	}
	if hd == 0 {
		return "", errors.NullHandle(errors.PhaseCast, "")
	}
	id, ok := h.table.TypeID(resource.Handle(hd))
	if !ok {
		return "", errors.StaleHandle(errors.PhaseCast, "", uint32(hd))
	}
	class, ok := h.schema.ClassByID(id)
	if !ok {
		return "", errors.InvalidData(errors.PhaseCast, fmt.Sprintf("record %#x has unknown class id %d", uint32(hd), id))
	}
	return class, nil
}

// listLocked must be called with mu held.
func (h *Heap) listLocked(hd marshal.Handle, c marshal.Class, l marshal.List) (*record, int, marshal.ListDef, error) {
	rec, err := h.lookup(errors.PhaseContainer, hd, c)
	if err != nil {
		return nil, 0, marshal.ListDef{}, err
	}
	i, def, ok := h.schema.ListIndex(c, l)
	if !ok {
		return nil, 0, marshal.ListDef{}, errors.ListUnknown(errors.PhaseContainer, string(c), string(l))
	}
	return rec, i, def, nil
}

// Len returns the number of elements in a list.
func (h *Heap) Len(hd marshal.Handle, c marshal.Class, l marshal.List) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rec, i, _, err := h.listLocked(hd, c, l)
	if err != nil {
		return 0, err
	}
	return len(rec.lists[i]), nil
}

// Append moves elem into a list.
func (h *Heap) Append(hd marshal.Handle, c marshal.Class, l marshal.List, elem marshal.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, i, def, err := h.listLocked(hd, c, l)
	if err != nil {
		return err
	}
	child, err := h.lookup(errors.PhaseContainer, elem, def.Elem)
	if err != nil {
		return err
	}
	if child.owner != 0 {
		return errors.NotOwner(errors.PhaseContainer, string(def.Elem), uint32(elem))
	}
	for p := hd; p != 0; {
		if p == elem {
			return errors.InvalidInput(errors.PhaseContainer, "record cannot contain itself")
		}
		v, ok := h.table.Get(resource.Handle(p))
		if !ok {
			break
		}
		p = v.(*record).owner
	}

	child.owner = hd
	rec.lists[i] = append(rec.lists[i], elem)
	return nil
}

// At returns the handle of a list element.
func (h *Heap) At(hd marshal.Handle, c marshal.Class, l marshal.List, idx int) (marshal.Handle, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rec, i, _, err := h.listLocked(hd, c, l)
	if err != nil {
		return 0, err
	}
	list := rec.lists[i]
	if idx < 0 || idx >= len(list) {
		return 0, errors.OutOfBounds(errors.PhaseContainer, string(c), string(l), idx, len(list))
	}
	return list[idx], nil
}

// RemoveAt removes a list element and destroys it.
func (h *Heap) RemoveAt(hd marshal.Handle, c marshal.Class, l marshal.List, idx int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, i, _, err := h.listLocked(hd, c, l)
	if err != nil {
		return err
	}
	list := rec.lists[i]
	if idx < 0 || idx >= len(list) {
		return errors.OutOfBounds(errors.PhaseContainer, string(c), string(l), idx, len(list))
	}
	elem := list[idx]
	rec.lists[i] = append(list[:idx], list[idx+1:]...)

	if v, ok := h.table.Get(resource.Handle(elem)); ok {
		child := v.(*record)
		child.owner = 0
		h.destroyLocked(elem, child)
	}
	return nil
}
