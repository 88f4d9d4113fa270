package marshal

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/otapi-bridge/errors"
)

// Native classes of the OTAPI storable hierarchy.
const (
	ClassStorable    Class = "Storable"
	ClassDisplayable Class = "Displayable"
	ClassServerInfo  Class = "ServerInfo"
	ClassContactNym  Class = "ContactNym"
)

// Field names as declared on the native records.
const (
	FieldGUILabel   Field = "gui_label"
	FieldServerID   Field = "server_id"
	FieldServerType Field = "server_type"
	FieldNymType    Field = "nym_type"
	FieldNymID      Field = "nym_id"
	FieldPublicKey  Field = "public_key"
	FieldMemo       Field = "memo"
)

// ListServers is the ContactNym list of contained ServerInfo records.
const ListServers List = "servers"

// FieldDef declares a field. Only wit.String is supported; a nil Type means string.
type FieldDef struct {
	Type wit.Type
	Name Field
}

// ListDef declares a list of contained records owned by the declaring record.
type ListDef struct {
	Name List
	Elem Class
}

// ClassDef declares a native class. Parent is empty for a root class.
type ClassDef struct {
	Name   Class
	Parent Class
	Fields []FieldDef
	Lists  []ListDef
}

type classInfo struct {
	fieldIdx map[Field]int
	listIdx  map[List]int
	def      ClassDef
	fields   []FieldDef
	lists    []ListDef
	chain    []Class
	id       uint32
}

// Schema is a validated single-inheritance class hierarchy.
// A Schema is immutable after construction and safe for concurrent use.
type Schema struct {
	classes map[Class]*classInfo
	byID    []*classInfo
}

// Default is the OTAPI storable schema.
var Default = MustSchema(
	ClassDef{Name: ClassStorable},
	ClassDef{
		Name:   ClassDisplayable,
		Parent: ClassStorable,
		Fields: []FieldDef{{Name: FieldGUILabel, Type: wit.String{}}},
	},
	ClassDef{
		Name:   ClassServerInfo,
		Parent: ClassDisplayable,
		Fields: []FieldDef{
			{Name: FieldServerID, Type: wit.String{}},
			{Name: FieldServerType, Type: wit.String{}},
		},
	},
	ClassDef{
		Name:   ClassContactNym,
		Parent: ClassDisplayable,
		Fields: []FieldDef{
			{Name: FieldNymType, Type: wit.String{}},
			{Name: FieldNymID, Type: wit.String{}},
			{Name: FieldPublicKey, Type: wit.String{}},
			{Name: FieldMemo, Type: wit.String{}},
		},
		Lists: []ListDef{{Name: ListServers, Elem: ClassServerInfo}},
	},
)

// MustSchema is like NewSchema but panics on error.
func MustSchema(defs ...ClassDef) *Schema {
	s, err := NewSchema(defs...)
	if err != nil {
		panic(err)
	}
	return s
}

// NewSchema validates class definitions and flattens inherited members.
// Definitions may appear in any order. Class IDs follow definition order, starting at 1.
func NewSchema(defs ...ClassDef) (*Schema, error) {
	s := &Schema{
		classes: make(map[Class]*classInfo, len(defs)),
		byID:    make([]*classInfo, 0, len(defs)),
	}

	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.InvalidInput(errors.PhaseSchema, "class name is empty")
		}
		if _, dup := s.classes[d.Name]; dup {
			return nil, errors.New(errors.PhaseSchema, errors.KindInvalidInput).
				Class(string(d.Name)).
				Detail("class declared twice").
				Build()
		}
		ci := &classInfo{def: d, id: uint32(len(s.byID) + 1)}
		s.classes[d.Name] = ci
		s.byID = append(s.byID, ci)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[Class]int, len(defs))

	var resolve func(c Class) error
	resolve = func(c Class) error {
		switch state[c] {
		case done:
			return nil
		case visiting:
			return errors.New(errors.PhaseSchema, errors.KindInvalidInput).
				Class(string(c)).
				Detail("inheritance cycle").
				Build()
		}
		state[c] = visiting

		ci := s.classes[c]
		var inheritedFields []FieldDef
		var inheritedLists []ListDef
		chain := []Class{c}
		if p := ci.def.Parent; p != "" {
			parent, ok := s.classes[p]
			if !ok {
				return errors.New(errors.PhaseSchema, errors.KindInvalidInput).
					Class(string(c)).
					Detail("unknown parent %q", p).
					Build()
			}
			if err := resolve(p); err != nil {
				return err
			}
			inheritedFields = parent.fields
			inheritedLists = parent.lists
			chain = append(chain, parent.chain...)
		}

		ci.chain = chain
		ci.fields = make([]FieldDef, 0, len(inheritedFields)+len(ci.def.Fields))
		ci.fields = append(ci.fields, inheritedFields...)
		ci.fieldIdx = make(map[Field]int, cap(ci.fields))
		for i, f := range inheritedFields {
			ci.fieldIdx[f.Name] = i
		}
		for _, f := range ci.def.Fields {
			if f.Name == "" {
				return errors.New(errors.PhaseSchema, errors.KindInvalidInput).
					Class(string(c)).
					Detail("field name is empty").
					Build()
			}
			if _, dup := ci.fieldIdx[f.Name]; dup {
				return errors.New(errors.PhaseSchema, errors.KindInvalidInput).
					Class(string(c)).
					Field(string(f.Name)).
					Detail("field shadows an existing field").
					Build()
			}
			if f.Type == nil {
				f.Type = wit.String{}
			}
			if _, ok := f.Type.(wit.String); !ok {
				return errors.New(errors.PhaseSchema, errors.KindUnsupported).
					Class(string(c)).
					Field(string(f.Name)).
					Detail("field type %s is not supported, only string", TypeName(f.Type)).
					Build()
			}
			ci.fieldIdx[f.Name] = len(ci.fields)
			ci.fields = append(ci.fields, f)
		}

		ci.lists = make([]ListDef, 0, len(inheritedLists)+len(ci.def.Lists))
		ci.lists = append(ci.lists, inheritedLists...)
		ci.listIdx = make(map[List]int, cap(ci.lists))
		for i, l := range inheritedLists {
			ci.listIdx[l.Name] = i
		}
		for _, l := range ci.def.Lists {
			if _, dup := ci.listIdx[l.Name]; dup || l.Name == "" {
				return errors.New(errors.PhaseSchema, errors.KindInvalidInput).
					Class(string(c)).
					Field(string(l.Name)).
					Detail("list name is empty or declared twice").
					Build()
			}
			if _, ok := s.classes[l.Elem]; !ok {
				return errors.New(errors.PhaseSchema, errors.KindInvalidInput).
					Class(string(c)).
					Field(string(l.Name)).
					Detail("unknown element class %q", l.Elem).
					Build()
			}
			ci.listIdx[l.Name] = len(ci.lists)
			ci.lists = append(ci.lists, l)
		}

		state[c] = done
		return nil
	}

	for _, ci := range s.byID {
		if err := resolve(ci.def.Name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Lookup returns the definition of a class as declared.
func (s *Schema) Lookup(c Class) (ClassDef, bool) {
	ci, ok := s.classes[c]
	if !ok {
		return ClassDef{}, false
	}
	return ci.def, true
}

// Has reports whether the class is declared.
func (s *Schema) Has(c Class) bool {
	_, ok := s.classes[c]
	return ok
}

// IsA reports whether c is ancestor or derives from it.
func (s *Schema) IsA(c, ancestor Class) bool {
	ci, ok := s.classes[c]
	if !ok {
		return false
	}
	for _, a := range ci.chain {
		if a == ancestor {
			return true
		}
	}
	return false
}

// Chain returns c followed by its ancestors up to the root.
func (s *Schema) Chain(c Class) []Class {
	ci, ok := s.classes[c]
	if !ok {
		return nil
	}
	return append([]Class(nil), ci.chain...)
}

// Fields returns all fields of c including inherited ones, base class first.
func (s *Schema) Fields(c Class) []FieldDef {
	ci, ok := s.classes[c]
	if !ok {
		return nil
	}
	return append([]FieldDef(nil), ci.fields...)
}

// FieldIndex returns the slot of field f in records of class c.
func (s *Schema) FieldIndex(c Class, f Field) (int, bool) {
	ci, ok := s.classes[c]
	if !ok {
		return 0, false
	}
	i, ok := ci.fieldIdx[f]
	return i, ok
}

// Lists returns all lists of c including inherited ones, base class first.
func (s *Schema) Lists(c Class) []ListDef {
	ci, ok := s.classes[c]
	if !ok {
		return nil
	}
	return append([]ListDef(nil), ci.lists...)
}

// ListIndex returns the slot of list l in records of class c.
func (s *Schema) ListIndex(c Class, l List) (int, ListDef, bool) {
	ci, ok := s.classes[c]
	if !ok {
		return 0, ListDef{}, false
	}
	i, ok := ci.listIdx[l]
	if !ok {
		return 0, ListDef{}, false
	}
	return i, ci.lists[i], true
}

// ID returns the numeric class ID used in native record headers.
func (s *Schema) ID(c Class) (uint32, bool) {
	ci, ok := s.classes[c]
	if !ok {
		return 0, false
	}
	return ci.id, true
}

// ClassByID is the inverse of ID.
func (s *Schema) ClassByID(id uint32) (Class, bool) {
	if id == 0 || int(id) > len(s.byID) {
		return "", false
	}
	return s.byID[id-1].def.Name, true
}

// Classes returns all classes in ID order.
func (s *Schema) Classes() []Class {
	out := make([]Class, len(s.byID))
	for i, ci := range s.byID {
		out[i] = ci.def.Name
	}
	return out
}

// TypeName renders a WIT type the way it appears in WIT source.
func TypeName(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "string"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}
