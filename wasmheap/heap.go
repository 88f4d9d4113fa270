package wasmheap

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/otapi-bridge/errors"
	"github.com/wippyai/otapi-bridge/marshal"
	"github.com/wippyai/otapi-bridge/resource"
)

// Record layout in guest memory, all words little-endian u32:
//
//	+0   class ID (0 once destroyed)
//	+4   owner handle (0 when not contained)
//	+8   field count
//	+12  list count
//	+16  fields: (ptr, len) per field
//	...  lists:  (ptr, len, cap) per list, elements are handles
const (
	offClass   = 0
	offOwner   = 4
	offNFields = 8
	offNLists  = 12
	headerSize = 16
	fieldSize  = 8
	listSize   = 12
	recAlign   = 8
)

// Heap stores native records in the linear memory of a wazero module
// instance. It implements marshal.Table.
//
// Handles are slot references into a host-side table that maps them to
// record addresses, so a handle to a freed record is reported as stale even
// after its memory is reused.
type Heap struct {
	runtime wazero.Runtime
	module  api.Module
	mem     linearMemory
	alloc   heapAllocator
	handles *resource.Store
	schema  *marshal.Schema
	log     *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

var _ marshal.Table = (*Heap)(nil)

// New starts a wazero runtime, instantiates the guest memory module and
// returns an empty heap. cfg may be nil.
func New(ctx context.Context, cfg *Config) (*Heap, error) {
	c := cfg.withDefaults()

	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(c.MemoryLimitPages))

	mod, err := rt.InstantiateWithConfig(ctx, guestModule, wazero.NewModuleConfig().WithName(c.ModuleName))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Load("instantiate guest heap module", err)
	}
	mem := mod.ExportedMemory(guestMemoryExport)
	if mem == nil {
		_ = rt.Close(ctx)
		return nil, errors.Load("guest heap module exports no memory", nil)
	}

	log := c.Logger.Named("wasmheap")
	gm := &guestMemory{mem: mem}
	h := &Heap{
		runtime: rt,
		module:  mod,
		mem:     gm,
		alloc:   newAllocator(gm, log),
		handles: resource.NewStore(),
		schema:  c.Schema,
		log:     log,
	}
	log.Debug("guest heap ready",
		zap.String("module", c.ModuleName),
		zap.Uint32("memory_limit_pages", c.MemoryLimitPages),
	)
	return h, nil
}

// Schema returns the class hierarchy served by the heap.
func (h *Heap) Schema() *marshal.Schema {
	return h.schema
}

// Records returns the number of live records, including contained ones.
func (h *Heap) Records() int {
	return h.handles.Len()
}

// MemorySize returns the current guest memory size in bytes.
func (h *Heap) MemorySize() uint32 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mem.Size()
}

// BytesInUse returns the number of guest bytes held by live allocations.
func (h *Heap) BytesInUse() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.alloc.InUse()
}

// Close frees all records and shuts down the wazero runtime.
func (h *Heap) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	_ = h.handles.Close()
	return h.runtime.Close(ctx)
}

type rec struct {
	class   marshal.Class
	addr    uint32
	nfields uint32
	nlists  uint32
}

func (r rec) fieldAddr(i int) uint32 {
	return r.addr + headerSize + uint32(i)*fieldSize
}

func (r rec) listAddr(i int) uint32 {
	return r.addr + headerSize + r.nfields*fieldSize + uint32(i)*listSize
}

func recordSize(nfields, nlists int) uint32 {
	return headerSize + uint32(nfields)*fieldSize + uint32(nlists)*listSize
}

// lookup must be called with mu held.
func (h *Heap) lookup(phase errors.Phase, hd marshal.Handle, c marshal.Class) (rec, error) {
	if h.closed {
		return rec{}, errors.Closed(phase)
	}
	if hd == 0 {
		return rec{}, errors.NullHandle(phase, string(c))
	}
	v, ok := h.handles.Get(resource.Handle(hd))
	if !ok {
		return rec{}, errors.StaleHandle(phase, string(c), uint32(hd))
	}
	addr := v.(uint32)

	id, err := h.mem.ReadU32(addr + offClass)
	if err != nil {
		return rec{}, err
	}
	class, ok := h.schema.ClassByID(id)
	if !ok {
		return rec{}, errors.New(phase, errors.KindInvalidData).
			Handle(uint32(hd)).
			Detail("record at %#x has unknown class id %d", addr, id).
			Build()
	}
	if c != "" && !h.schema.IsA(class, c) {
		return rec{}, errors.TypeMismatch(phase, uint32(hd), string(class), string(c))
	}

	nf, err := h.mem.ReadU32(addr + offNFields)
	if err != nil {
		return rec{}, err
	}
	nl, err := h.mem.ReadU32(addr + offNLists)
	if err != nil {
		return rec{}, err
	}
	return rec{class: class, addr: addr, nfields: nf, nlists: nl}, nil
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

// New allocates a zero-valued record in guest memory.
func (h *Heap) New(c marshal.Class) (marshal.Handle, error) {
	if err := h.checkClass(errors.PhaseHeap, c); err != nil {
		return 0, err
	}
	id, _ := h.schema.ID(c)
	nf := len(h.schema.Fields(c))
	nl := len(h.schema.Lists(c))
	size := recordSize(nf, nl)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, errors.Closed(errors.PhaseHeap)
	}

	addr, err := h.alloc.Alloc(size, recAlign)
	if err != nil {
		return 0, err
	}
	body := make([]byte, size)
	putU32(body[offClass:], id)
	putU32(body[offNFields:], uint32(nf))
	putU32(body[offNLists:], uint32(nl))
	if err := h.mem.Write(addr, body); err != nil {
		h.alloc.Free(addr, size, recAlign)
		return 0, err
	}

	hd, err := h.handles.Create(id, addr)
	if err != nil {
		h.alloc.Free(addr, size, recAlign)
		if stderrors.Is(err, resource.ErrClosed) {
			return 0, errors.Closed(errors.PhaseHeap)
		}
		return 0, errors.Wrap(errors.PhaseHeap, errors.KindAllocation, err, "register record handle")
	}
	return marshal.Handle(hd), nil
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Destroy frees a record and its contained records.
func (h *Heap) Destroy(hd marshal.Handle, c marshal.Class) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lookup(errors.PhaseHeap, hd, c)
	if err != nil {
		return err
	}
	owner, err := h.mem.ReadU32(r.addr + offOwner)
	if err != nil {
		return err
	}
	if owner != 0 {
		return errors.New(errors.PhaseHeap, errors.KindNotOwner).
			Class(string(c)).
			Handle(uint32(hd)).
			Detail("record is owned by container %#x", owner).
			Build()
	}
	return h.destroyLocked(hd, r)
}

func (h *Heap) destroyLocked(hd marshal.Handle, r rec) error {
	for i := 0; i < int(r.nfields); i++ {
		if err := h.freeField(r, i); err != nil {
			return err
		}
	}
	for i := 0; i < int(r.nlists); i++ {
		la := r.listAddr(i)
		ptr, n, capacity, err := h.readList(la)
		if err != nil {
			return err
		}
		for j := uint32(0); j < n; j++ {
			elem, err := h.mem.ReadU32(ptr + j*4)
			if err != nil {
				return err
			}
			child, err := h.lookup(errors.PhaseHeap, marshal.Handle(elem), "")
			if err != nil {
				// already gone; nothing to free
				continue
			}
			if err := h.destroyLocked(marshal.Handle(elem), child); err != nil {
				return err
			}
		}
		h.alloc.Free(ptr, capacity*4, 4)
	}

	if err := h.mem.WriteU32(r.addr+offClass, 0); err != nil {
		return err
	}
	h.alloc.Free(r.addr, recordSize(int(r.nfields), int(r.nlists)), recAlign)
	h.handles.Drop(resource.Handle(hd))
	if ce := h.log.Check(zap.DebugLevel, "record destroyed"); ce != nil {
		ce.Write(zap.Uint32("handle", uint32(hd)), zap.String("class", string(r.class)))
	}
	return nil
}

func (h *Heap) freeField(r rec, i int) error {
	fa := r.fieldAddr(i)
	ptr, err := h.mem.ReadU32(fa)
	if err != nil {
		return err
	}
	n, err := h.mem.ReadU32(fa + 4)
	if err != nil {
		return err
	}
	h.alloc.Free(ptr, n, 1)
	return nil
}

func (h *Heap) readList(la uint32) (ptr, n, capacity uint32, err error) {
	if ptr, err = h.mem.ReadU32(la); err != nil {
		return
	}
	if n, err = h.mem.ReadU32(la + 4); err != nil {
		return
	}
	capacity, err = h.mem.ReadU32(la + 8)
	return
}

// Get reads a field out of guest memory.
func (h *Heap) Get(hd marshal.Handle, c marshal.Class, f marshal.Field) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, err := h.lookup(errors.PhaseAccess, hd, c)
	if err != nil {
		return "", err
	}
	i, ok := h.schema.FieldIndex(c, f)
	if !ok {
		return "", errors.FieldUnknown(errors.PhaseAccess, string(c), string(f))
	}
	fa := r.fieldAddr(i)
	ptr, err := h.mem.ReadU32(fa)
	if err != nil {
		return "", err
	}
	n, err := h.mem.ReadU32(fa + 4)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	raw, err := h.mem.Read(ptr, n)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Set copies value into guest memory and frees the previous value.
func (h *Heap) Set(hd marshal.Handle, c marshal.Class, f marshal.Field, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, err := h.lookup(errors.PhaseAccess, hd, c)
	if err != nil {
		return err
	}
	i, ok := h.schema.FieldIndex(c, f)
	if !ok {
		return errors.FieldUnknown(errors.PhaseAccess, string(c), string(f))
	}
	if uint64(len(value)) > 1<<31 {
		return errors.AllocationFailed(errors.PhaseAccess, uint32(1<<31), 1)
	}

	n := uint32(len(value))
	ptr, err := h.alloc.Alloc(n, 1)
	if err != nil {
		return err
	}
	if n > 0 {
		if err := h.mem.Write(ptr, []byte(value)); err != nil {
			h.alloc.Free(ptr, n, 1)
			return err
		}
	}
	if err := h.freeField(r, i); err != nil {
		return err
	}
	fa := r.fieldAddr(i)
	if err := h.mem.WriteU32(fa, ptr); err != nil {
		return err
	}
	return h.mem.WriteU32(fa+4, n)
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

// DynamicCast returns hd if the record's class in guest memory derives from to.
func (h *Heap) DynamicCast(hd marshal.Handle, to marshal.Class) (marshal.Handle, error) {
	if err := h.checkClass(errors.PhaseCast, to); err != nil {
		return 0, err
	}
	if hd == 0 {
		return 0, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	r, err := h.lookup(errors.PhaseCast, hd, "")
	if err != nil {
		return 0, err
	}
	if !h.schema.IsA(r.class, to) {
		return 0, nil
	}
	return hd, nil
}

// ClassOf reads the class ID from the record header.
func (h *Heap) ClassOf(hd marshal.Handle) (marshal.Class, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, err := h.lookup(errors.PhaseCast, hd, "")
	if err != nil {
		return "", err
	}
	return r.class, nil
}

// listLocked must be called with mu held.
func (h *Heap) listLocked(hd marshal.Handle, c marshal.Class, l marshal.List) (uint32, marshal.ListDef, error) {
	r, err := h.lookup(errors.PhaseContainer, hd, c)
	if err != nil {
		return 0, marshal.ListDef{}, err
	}
	i, def, ok := h.schema.ListIndex(c, l)
	if !ok {
		return 0, marshal.ListDef{}, errors.ListUnknown(errors.PhaseContainer, string(c), string(l))
	}
	return r.listAddr(i), def, nil
}

// Len returns the number of elements in a list.
func (h *Heap) Len(hd marshal.Handle, c marshal.Class, l marshal.List) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	la, _, err := h.listLocked(hd, c, l)
	if err != nil {
		return 0, err
	}
	n, err := h.mem.ReadU32(la + 4)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Append moves elem into a list, growing the list buffer by doubling.
func (h *Heap) Append(hd marshal.Handle, c marshal.Class, l marshal.List, elem marshal.Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	la, def, err := h.listLocked(hd, c, l)
	if err != nil {
		return err
	}
	child, err := h.lookup(errors.PhaseContainer, elem, def.Elem)
	if err != nil {
		return err
	}
	owner, err := h.mem.ReadU32(child.addr + offOwner)
	if err != nil {
		return err
	}
	if owner != 0 {
		return errors.NotOwner(errors.PhaseContainer, string(def.Elem), uint32(elem))
	}
	if err := h.checkNotAncestor(hd, elem); err != nil {
		return err
	}

	ptr, n, capacity, err := h.readList(la)
	if err != nil {
		return err
	}
	if n == capacity {
		newCap := capacity * 2
		if newCap < 4 {
			newCap = 4
		}
		newPtr, err := h.alloc.Alloc(newCap*4, 4)
		if err != nil {
			return err
		}
		if n > 0 {
			old, err := h.mem.Read(ptr, n*4)
			if err != nil {
				h.alloc.Free(newPtr, newCap*4, 4)
				return err
			}
			if err := h.mem.Write(newPtr, old); err != nil {
				h.alloc.Free(newPtr, newCap*4, 4)
				return err
			}
		}
		h.alloc.Free(ptr, capacity*4, 4)
		ptr, capacity = newPtr, newCap
		if err := h.mem.WriteU32(la, ptr); err != nil {
			return err
		}
		if err := h.mem.WriteU32(la+8, capacity); err != nil {
			return err
		}
	}

	if err := h.mem.WriteU32(ptr+n*4, uint32(elem)); err != nil {
		return err
	}
	if err := h.mem.WriteU32(la+4, n+1); err != nil {
		return err
	}
	return h.mem.WriteU32(child.addr+offOwner, uint32(hd))
}

// checkNotAncestor walks the owner chain of hd looking for elem.
func (h *Heap) checkNotAncestor(hd, elem marshal.Handle) error {
	for p := hd; p != 0; {
		if p == elem {
			return errors.InvalidInput(errors.PhaseContainer, "record cannot contain itself")
		}
		v, ok := h.handles.Get(resource.Handle(p))
		if !ok {
			return nil
		}
		owner, err := h.mem.ReadU32(v.(uint32) + offOwner)
		if err != nil {
			return err
		}
		p = marshal.Handle(owner)
	}
	return nil
}

// At returns the handle of a list element.
func (h *Heap) At(hd marshal.Handle, c marshal.Class, l marshal.List, idx int) (marshal.Handle, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	la, _, err := h.listLocked(hd, c, l)
	if err != nil {
		return 0, err
	}
	ptr, n, _, err := h.readList(la)
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= int(n) {
		return 0, errors.OutOfBounds(errors.PhaseContainer, string(c), string(l), idx, int(n))
	}
	elem, err := h.mem.ReadU32(ptr + uint32(idx)*4)
	if err != nil {
		return 0, err
	}
	return marshal.Handle(elem), nil
}

// RemoveAt removes a list element, shifting later elements down, and destroys it.
func (h *Heap) RemoveAt(hd marshal.Handle, c marshal.Class, l marshal.List, idx int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	la, _, err := h.listLocked(hd, c, l)
	if err != nil {
		return err
	}
	ptr, n, _, err := h.readList(la)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= int(n) {
		return errors.OutOfBounds(errors.PhaseContainer, string(c), string(l), idx, int(n))
	}

	at := ptr + uint32(idx)*4
	elem, err := h.mem.ReadU32(at)
	if err != nil {
		return err
	}
	if tail := n - uint32(idx) - 1; tail > 0 {
		rest, err := h.mem.Read(at+4, tail*4)
		if err != nil {
			return err
		}
		moved := append([]byte(nil), rest...)
		if err := h.mem.Write(at, moved); err != nil {
			return err
		}
	}
	if err := h.mem.WriteU32(la+4, n-1); err != nil {
		return err
	}

	child, err := h.lookup(errors.PhaseContainer, marshal.Handle(elem), "")
	if err != nil {
		return nil //nolint:nilerr // element already freed out of band
	}
	if err := h.mem.WriteU32(child.addr+offOwner, 0); err != nil {
		return err
	}
	return h.destroyLocked(marshal.Handle(elem), child)
}
