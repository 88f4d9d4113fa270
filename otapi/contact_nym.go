package otapi

import (
	"github.com/wippyai/otapi-bridge/errors"
	"github.com/wippyai/otapi-bridge/marshal"
)

// ContactNym is the proxy for a contact's nym record. It owns a list of
// ServerInfo records.
type ContactNym struct {
	Displayable
	self ref
}

// NewContactNym allocates a zero-valued ContactNym record owned by the returned proxy.
func NewContactNym(table marshal.Table) (*ContactNym, error) {
	h, err := table.New(marshal.ClassContactNym)
	if err != nil {
		return nil, err
	}
	cn, err := WrapContactNym(table, h, true)
	if err != nil {
		_ = table.Destroy(h, marshal.ClassContactNym)
		return nil, err
	}
	return cn, nil
}

// WrapContactNym creates a proxy for a ContactNym handle. If owns is true,
// Release destroys the record and every contained ServerInfo.
func WrapContactNym(table marshal.Table, h marshal.Handle, owns bool) (*ContactNym, error) {
	cn := &ContactNym{}
	if err := cn.init(table, h, owns); err != nil {
		return nil, err
	}
	track(cn)
	return cn, nil
}

func (cn *ContactNym) init(table marshal.Table, h marshal.Handle, owns bool) error {
	up, err := table.Upcast(h, marshal.ClassContactNym, marshal.ClassDisplayable)
	if err != nil {
		return err
	}
	if err := cn.Displayable.init(table, up, owns); err != nil {
		return err
	}
	cn.self.handle = h
	return nil
}

// CastContactNym returns a non-owning ContactNym view of obj, or nil if obj
// is nil, released, or not a ContactNym. The view keeps obj reachable.
func CastContactNym(obj Object) (*ContactNym, error) {
	out, err := cast(obj, marshal.ClassContactNym, func(t marshal.Table, h marshal.Handle) (Object, error) {
		cn, err := WrapContactNym(t, h, false)
		if err != nil {
			return nil, err
		}
		cn.Pin(obj)
		return cn, nil
	})
	if err != nil || out == nil {
		return nil, err
	}
	return out.(*ContactNym), nil
}

func (cn *ContactNym) base() *Storable {
	if cn == nil {
		return nil
	}
	return &cn.Storable
}

func (cn *ContactNym) levels() []*ref {
	return []*ref{&cn.self, &cn.Displayable.self, &cn.Storable.self}
}

// Class returns marshal.ClassContactNym.
func (cn *ContactNym) Class() marshal.Class {
	return marshal.ClassContactNym
}

// Handle returns the ContactNym-level handle, or 0 once released.
func (cn *ContactNym) Handle() marshal.Handle {
	return cn.self.load()
}

func (cn *ContactNym) GUILabel() (string, error) {
	return cn.get(&cn.self, marshal.ClassContactNym, marshal.FieldGUILabel, "GUILabel")
}

func (cn *ContactNym) SetGUILabel(v string) error {
	return cn.set(&cn.self, marshal.ClassContactNym, marshal.FieldGUILabel, v, "SetGUILabel")
}

func (cn *ContactNym) NymType() (string, error) {
	return cn.get(&cn.self, marshal.ClassContactNym, marshal.FieldNymType, "NymType")
}

func (cn *ContactNym) SetNymType(v string) error {
	return cn.set(&cn.self, marshal.ClassContactNym, marshal.FieldNymType, v, "SetNymType")
}

func (cn *ContactNym) NymID() (string, error) {
	return cn.get(&cn.self, marshal.ClassContactNym, marshal.FieldNymID, "NymID")
}

func (cn *ContactNym) SetNymID(v string) error {
	return cn.set(&cn.self, marshal.ClassContactNym, marshal.FieldNymID, v, "SetNymID")
}

func (cn *ContactNym) PublicKey() (string, error) {
	return cn.get(&cn.self, marshal.ClassContactNym, marshal.FieldPublicKey, "PublicKey")
}

func (cn *ContactNym) SetPublicKey(v string) error {
	return cn.set(&cn.self, marshal.ClassContactNym, marshal.FieldPublicKey, v, "SetPublicKey")
}

func (cn *ContactNym) Memo() (string, error) {
	return cn.get(&cn.self, marshal.ClassContactNym, marshal.FieldMemo, "Memo")
}

func (cn *ContactNym) SetMemo(v string) error {
	return cn.set(&cn.self, marshal.ClassContactNym, marshal.FieldMemo, v, "SetMemo")
}

// ServerInfoCount returns the number of contained ServerInfo records.
func (cn *ContactNym) ServerInfoCount() (int, error) {
	cn.self.mu.RLock()
	defer cn.self.mu.RUnlock()

	if cn.self.handle == 0 {
		return 0, errors.UseAfterRelease(string(marshal.ClassContactNym), "ServerInfoCount")
	}
	return cn.table.Len(cn.self.handle, marshal.ClassContactNym, marshal.ListServers)
}

// ServerInfo returns a non-owning view of contained record i. The view pins
// cn, so the container outlives every view into it.
func (cn *ContactNym) ServerInfo(i int) (*ServerInfo, error) {
	cn.self.mu.RLock()
	defer cn.self.mu.RUnlock()

	if cn.self.handle == 0 {
		return nil, errors.UseAfterRelease(string(marshal.ClassContactNym), "ServerInfo")
	}
	h, err := cn.table.At(cn.self.handle, marshal.ClassContactNym, marshal.ListServers, i)
	if err != nil {
		return nil, err
	}
	si, err := WrapServerInfo(cn.table, h, false)
	if err != nil {
		return nil, err
	}
	si.Pin(cn)
	return si, nil
}

// AddServerInfo moves si into the container. si must own its record; it
// becomes a non-owning proxy pinned to cn and stays usable until cn
// releases the record or RemoveServerInfo drops it.
func (cn *ContactNym) AddServerInfo(si *ServerInfo) error {
	if si == nil {
		return errors.InvalidInput(errors.PhaseContainer, "nil ServerInfo")
	}

	cn.self.mu.RLock()
	defer cn.self.mu.RUnlock()
	if cn.self.handle == 0 {
		return errors.UseAfterRelease(string(marshal.ClassContactNym), "AddServerInfo")
	}

	si.self.mu.RLock()
	defer si.self.mu.RUnlock()
	if si.self.handle == 0 {
		return errors.UseAfterRelease(string(marshal.ClassServerInfo), "AddServerInfo")
	}

	if !si.owns.CompareAndSwap(true, false) {
		return errors.NotOwner(errors.PhaseContainer, string(marshal.ClassServerInfo), uint32(si.self.handle))
	}
	if err := cn.table.Append(cn.self.handle, marshal.ClassContactNym, marshal.ListServers, si.self.handle); err != nil {
		si.owns.Store(true)
		return err
	}
	si.Pin(cn)
	return nil
}

// RemoveServerInfo removes contained record i and destroys it. Views of the
// removed record report stale_handle afterwards.
func (cn *ContactNym) RemoveServerInfo(i int) error {
	cn.self.mu.RLock()
	defer cn.self.mu.RUnlock()

	if cn.self.handle == 0 {
		return errors.UseAfterRelease(string(marshal.ClassContactNym), "RemoveServerInfo")
	}
	return cn.table.RemoveAt(cn.self.handle, marshal.ClassContactNym, marshal.ListServers, i)
}

// Release releases the ContactNym level and then every supertype level. An
// owning proxy destroys the record together with its contained records.
func (cn *ContactNym) Release() error {
	err := cn.releaseRef(&cn.self, marshal.ClassContactNym)
	if derr := cn.Displayable.Release(); err == nil {
		err = derr
	}
	return err
}
