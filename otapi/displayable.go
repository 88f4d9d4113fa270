package otapi

import (
	"github.com/wippyai/otapi-bridge/marshal"
)

// Displayable is the proxy for records carrying a GUI label.
type Displayable struct {
	Storable
	self ref
}

// WrapDisplayable creates a proxy for a Displayable handle. If owns is true,
// Release destroys the record. Handle 0 yields a released proxy.
func WrapDisplayable(table marshal.Table, h marshal.Handle, owns bool) (*Displayable, error) {
	d := &Displayable{}
	if err := d.init(table, h, owns); err != nil {
		return nil, err
	}
	track(d)
	return d, nil
}

func (d *Displayable) init(table marshal.Table, h marshal.Handle, owns bool) error {
	up, err := table.Upcast(h, marshal.ClassDisplayable, marshal.ClassStorable)
	if err != nil {
		return err
	}
	d.Storable.init(table, up, owns)
	d.self.handle = h
	return nil
}

// CastDisplayable returns a non-owning Displayable view of obj, or nil if obj
// is nil, released, or not a Displayable.
func CastDisplayable(obj Object) (*Displayable, error) {
	out, err := cast(obj, marshal.ClassDisplayable, func(t marshal.Table, h marshal.Handle) (Object, error) {
		d, err := WrapDisplayable(t, h, false)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
	if err != nil || out == nil {
		return nil, err
	}
	return out.(*Displayable), nil
}

func (d *Displayable) base() *Storable {
	if d == nil {
		return nil
	}
	return &d.Storable
}

func (d *Displayable) levels() []*ref {
	return []*ref{&d.self, &d.Storable.self}
}

// Class returns marshal.ClassDisplayable.
func (d *Displayable) Class() marshal.Class {
	return marshal.ClassDisplayable
}

// Handle returns the Displayable-level handle, or 0 once released.
func (d *Displayable) Handle() marshal.Handle {
	return d.self.load()
}

// GUILabel returns the label shown for the record.
func (d *Displayable) GUILabel() (string, error) {
	return d.get(&d.self, marshal.ClassDisplayable, marshal.FieldGUILabel, "GUILabel")
}

// SetGUILabel sets the label shown for the record.
func (d *Displayable) SetGUILabel(v string) error {
	return d.set(&d.self, marshal.ClassDisplayable, marshal.FieldGUILabel, v, "SetGUILabel")
}

// Release releases the Displayable level and then the Storable level.
func (d *Displayable) Release() error {
	err := d.releaseRef(&d.self, marshal.ClassDisplayable)
	if serr := d.Storable.Release(); err == nil {
		err = serr
	}
	return err
}
