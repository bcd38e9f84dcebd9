package schema

import (
	"errors"
	"fmt"
	"reflect"
)

const tagName = "attr"

var (
	// ErrUnknownAttribute is returned when a name is not in the table.
	ErrUnknownAttribute = errors.New("unknown attribute")
	// ErrUnknownOffset is returned when an offset is not the start of an attribute.
	ErrUnknownOffset = errors.New("no attribute at offset")
	// ErrInvalidLayout is returned by FromStruct for layouts it cannot describe.
	ErrInvalidLayout = errors.New("invalid record layout")
)

// Descriptor locates one attribute inside the record.
type Descriptor struct {
	Name   string
	Offset int
	Kind   Kind
	Size   int
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s(%s@%d+%d)", d.Name, d.Kind, d.Offset, d.Size)
}

// Table is an immutable attribute table. Both lookup directions are built
// from the same descriptor list.
type Table struct {
	size     int
	attrs    []Descriptor
	byName   map[string]int
	byOffset map[int]int
}

// FromStruct builds the table of the struct type t.
func FromStruct(t reflect.Type) (*Table, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidLayout, t)
	}
	tbl := &Table{
		size:     int(t.Size()),
		byName:   make(map[string]int, t.NumField()),
		byOffset: make(map[int]int, t.NumField()),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, ok := f.Tag.Lookup(tagName)
		if !ok || name == "-" {
			continue
		}
		if name == "" || !f.IsExported() {
			return nil, fmt.Errorf("%w: field %s has an empty or unexported attribute", ErrInvalidLayout, f.Name)
		}
		kind, err := kindOf(f.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrInvalidLayout, f.Name, err)
		}
		d := Descriptor{
			Name:   name,
			Offset: int(f.Offset),
			Kind:   kind,
			Size:   int(f.Type.Size()),
		}
		if _, dup := tbl.byName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate attribute %q", ErrInvalidLayout, name)
		}
		if _, dup := tbl.byOffset[d.Offset]; dup {
			return nil, fmt.Errorf("%w: attribute %q shares offset %d", ErrInvalidLayout, name, d.Offset)
		}
		tbl.byName[name] = len(tbl.attrs)
		tbl.byOffset[d.Offset] = len(tbl.attrs)
		tbl.attrs = append(tbl.attrs, d)
	}
	return tbl, nil
}

// MustFromStruct is like FromStruct but panics on error. It is meant for
// package-level tables whose layout is fixed at build time.
func MustFromStruct(t reflect.Type) *Table {
	tbl, err := FromStruct(t)
	if err != nil {
		panic(err)
	}
	return tbl
}

func kindOf(t reflect.Type) (Kind, error) {
	switch t.Kind() {
	case reflect.Int32, reflect.Int64:
		return KindInteger, nil
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 && t.Len() > 1 {
			return KindText, nil
		}
	}
	return KindInvalid, fmt.Errorf("unsupported type %s", t)
}

// Resolve returns the descriptor of the named attribute.
func (t *Table) Resolve(name string) (Descriptor, error) {
	i, ok := t.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w %q", ErrUnknownAttribute, name)
	}
	return t.attrs[i], nil
}

// ResolveByOffset returns the attribute that starts exactly at off.
func (t *Table) ResolveByOffset(off int) (Descriptor, error) {
	i, ok := t.byOffset[off]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w %d", ErrUnknownOffset, off)
	}
	return t.attrs[i], nil
}

// Descriptors returns the attributes in layout order.
func (t *Table) Descriptors() []Descriptor {
	out := make([]Descriptor, len(t.attrs))
	copy(out, t.attrs)
	return out
}

// Names returns the attribute names in layout order.
func (t *Table) Names() []string {
	out := make([]string, len(t.attrs))
	for i, d := range t.attrs {
		out[i] = d.Name
	}
	return out
}

// Len returns the number of attributes.
func (t *Table) Len() int { return len(t.attrs) }

// RecordSize is the byte size of the struct the table was built from.
func (t *Table) RecordSize() int { return t.size }
