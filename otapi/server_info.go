package otapi

import (
	"github.com/wippyai/otapi-bridge/marshal"
)

// ServerInfo is the proxy for a native ServerInfo record: a server contract
// reference with a label, an ID and a type.
type ServerInfo struct {
	Displayable
	self ref
}

// NewServerInfo allocates a zero-valued ServerInfo record owned by the returned proxy.
func NewServerInfo(table marshal.Table) (*ServerInfo, error) {
	h, err := table.New(marshal.ClassServerInfo)
	if err != nil {
		return nil, err
	}
	si, err := WrapServerInfo(table, h, true)
	if err != nil {
		_ = table.Destroy(h, marshal.ClassServerInfo)
		return nil, err
	}
	return si, nil
}

// WrapServerInfo creates a proxy for a ServerInfo handle. If owns is true,
// Release destroys the record. Handle 0 yields a released proxy.
func WrapServerInfo(table marshal.Table, h marshal.Handle, owns bool) (*ServerInfo, error) {
	si := &ServerInfo{}
	if err := si.init(table, h, owns); err != nil {
		return nil, err
	}
	track(si)
	return si, nil
}

func (si *ServerInfo) init(table marshal.Table, h marshal.Handle, owns bool) error {
	up, err := table.Upcast(h, marshal.ClassServerInfo, marshal.ClassDisplayable)
	if err != nil {
		return err
	}
	if err := si.Displayable.init(table, up, owns); err != nil {
		return err
	}
	si.self.handle = h
	return nil
}

// CastServerInfo returns a non-owning ServerInfo view of obj, or nil if obj
// is nil, released, or not a ServerInfo. The view keeps obj reachable.
func CastServerInfo(obj Object) (*ServerInfo, error) {
	out, err := cast(obj, marshal.ClassServerInfo, func(t marshal.Table, h marshal.Handle) (Object, error) {
		si, err := WrapServerInfo(t, h, false)
		if err != nil {
			return nil, err
		}
		si.Pin(obj)
		return si, nil
	})
	if err != nil || out == nil {
		return nil, err
	}
	return out.(*ServerInfo), nil
}

func (si *ServerInfo) base() *Storable {
	if si == nil {
		return nil
	}
	return &si.Storable
}

func (si *ServerInfo) levels() []*ref {
	return []*ref{&si.self, &si.Displayable.self, &si.Storable.self}
}

// Class returns marshal.ClassServerInfo.
func (si *ServerInfo) Class() marshal.Class {
	return marshal.ClassServerInfo
}

// Handle returns the ServerInfo-level handle, or 0 once released.
func (si *ServerInfo) Handle() marshal.Handle {
	return si.self.load()
}

func (si *ServerInfo) GUILabel() (string, error) {
	return si.get(&si.self, marshal.ClassServerInfo, marshal.FieldGUILabel, "GUILabel")
}

func (si *ServerInfo) SetGUILabel(v string) error {
	return si.set(&si.self, marshal.ClassServerInfo, marshal.FieldGUILabel, v, "SetGUILabel")
}

func (si *ServerInfo) ServerID() (string, error) {
	return si.get(&si.self, marshal.ClassServerInfo, marshal.FieldServerID, "ServerID")
}

func (si *ServerInfo) SetServerID(v string) error {
	return si.set(&si.self, marshal.ClassServerInfo, marshal.FieldServerID, v, "SetServerID")
}

func (si *ServerInfo) ServerType() (string, error) {
	return si.get(&si.self, marshal.ClassServerInfo, marshal.FieldServerType, "ServerType")
}

func (si *ServerInfo) SetServerType(v string) error {
	return si.set(&si.self, marshal.ClassServerInfo, marshal.FieldServerType, v, "SetServerType")
}

// Release releases the ServerInfo level and then every supertype level.
// Only an owning proxy destroys the record; it does so exactly once.
func (si *ServerInfo) Release() error {
	err := si.releaseRef(&si.self, marshal.ClassServerInfo)
	if derr := si.Displayable.Release(); err == nil {
		err = derr
	}
	return err
}
