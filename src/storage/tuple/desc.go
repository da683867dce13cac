package tuple

import (
	"fmt"
	"strings"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
)

type FieldDesc struct {
	Type FieldType
	Name string
}

// TupleDesc is the schema of a table: an ordered list of typed, named fields.
// It is immutable once constructed.
type TupleDesc struct {
	fields []FieldDesc
}

func NewTupleDesc(types []FieldType, names []string) *TupleDesc {
	assert.Assert(len(types) > 0, "tuple desc must have at least one field")
	assert.Assert(
		names == nil || len(names) == len(types),
		"got %d names for %d types",
		len(names),
		len(types),
	)

	fields := make([]FieldDesc, len(types))
	for i, t := range types {
		fields[i].Type = t
		if names != nil {
			fields[i].Name = names[i]
		}
	}

	return &TupleDesc{fields: fields}
}

// Merge concatenates two descriptors, a's fields first.
func Merge(a, b *TupleDesc) *TupleDesc {
	fields := make([]FieldDesc, 0, len(a.fields)+len(b.fields))
	fields = append(fields, a.fields...)
	fields = append(fields, b.fields...)

	return &TupleDesc{fields: fields}
}

func (d *TupleDesc) NumFields() int {
	return len(d.fields)
}

func (d *TupleDesc) Field(i int) FieldDesc {
	assert.Assert(i >= 0 && i < len(d.fields), "field index %d is out of range", i)
	return d.fields[i]
}

func (d *TupleDesc) FieldType(i int) FieldType {
	return d.Field(i).Type
}

func (d *TupleDesc) FieldName(i int) string {
	return d.Field(i).Name
}

// IndexOf returns the position of the first field called name.
func (d *TupleDesc) IndexOf(name string) (int, error) {
	for i, f := range d.fields {
		if f.Name == name {
			return i, nil
		}
	}

	return -1, fmt.Errorf("%w: field %q", common.ErrNotFound, name)
}

// Size is the number of bytes a tuple of this schema occupies on a page.
func (d *TupleDesc) Size() int {
	size := 0
	for _, f := range d.fields {
		size += f.Type.Size()
	}
	return size
}

// WithPrefix returns a copy whose field names are qualified as prefix.name.
func (d *TupleDesc) WithPrefix(prefix string) *TupleDesc {
	fields := make([]FieldDesc, len(d.fields))
	for i, f := range d.fields {
		fields[i] = FieldDesc{
			Type: f.Type,
			Name: prefix + "." + f.Name,
		}
	}

	return &TupleDesc{fields: fields}
}

// Equals compares types only, names are ignored.
func (d *TupleDesc) Equals(other *TupleDesc) bool {
	if other == nil || len(d.fields) != len(other.fields) {
		return false
	}

	for i := range d.fields {
		if d.fields[i].Type != other.fields[i].Type {
			return false
		}
	}
	return true
}

func (d *TupleDesc) String() string {
	parts := make([]string, len(d.fields))
	for i, f := range d.fields {
		parts[i] = fmt.Sprintf("%s(%s)", f.Type, f.Name)
	}
	return strings.Join(parts, ", ")
}
