package tuple

import (
	"fmt"
	"strings"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/pkg/optional"
)

type Tuple struct {
	desc     *TupleDesc
	fields   []Field
	recordID optional.Optional[common.RecordID]
}

func New(desc *TupleDesc, fields ...Field) *Tuple {
	assert.Assert(
		len(fields) == 0 || len(fields) == desc.NumFields(),
		"expected %d fields, got %d",
		desc.NumFields(),
		len(fields),
	)

	t := &Tuple{
		desc:     desc,
		fields:   make([]Field, desc.NumFields()),
		recordID: optional.None[common.RecordID](),
	}
	copy(t.fields, fields)

	return t
}

// Clone returns a copy of the tuple that shares no state with t.
func (t *Tuple) Clone() *Tuple {
	c := New(t.desc, t.fields...)
	c.recordID = t.recordID
	return c
}

func (t *Tuple) Desc() *TupleDesc {
	return t.desc
}

func (t *Tuple) Field(i int) Field {
	assert.Assert(i >= 0 && i < len(t.fields), "field index %d is out of range", i)
	return t.fields[i]
}

func (t *Tuple) SetField(i int, f Field) {
	assert.Assert(i >= 0 && i < len(t.fields), "field index %d is out of range", i)
	assert.Assert(
		f.Type() == t.desc.FieldType(i).Type,
		"field %d expects %s, got %s",
		i,
		t.desc.FieldType(i),
		f.Type(),
	)
	t.fields[i] = f
}

func (t *Tuple) Fields() []Field {
	return t.fields
}

// RecordID returns the storage location of a persisted tuple.
func (t *Tuple) RecordID() (common.RecordID, bool) {
	return t.recordID.Get()
}

func (t *Tuple) SetRecordID(rid common.RecordID) {
	t.recordID.Emplace(rid)
}

func (t *Tuple) ClearRecordID() {
	t.recordID.Clear()
}

// Serialize writes the tuple into dst, which must hold desc.Size() bytes.
func (t *Tuple) Serialize(dst []byte) {
	assert.Assert(len(dst) >= t.desc.Size(), "slot is too small for tuple")

	offset := 0
	for i, f := range t.fields {
		ft := t.desc.FieldType(i)
		assert.Assert(f != nil, "field %d is not set", i)
		f.Serialize(dst[offset:offset+ft.Size()], ft)
		offset += ft.Size()
	}
}

func Deserialize(desc *TupleDesc, src []byte) (*Tuple, error) {
	t := New(desc)

	offset := 0
	for i := range desc.NumFields() {
		ft := desc.FieldType(i)
		f, err := DeserializeField(ft, src[offset:])
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		t.fields[i] = f
		offset += ft.Size()
	}

	return t, nil
}

// Join concatenates the fields of two tuples under a merged descriptor.
func Join(desc *TupleDesc, a, b *Tuple) *Tuple {
	fields := make([]Field, 0, len(a.fields)+len(b.fields))
	fields = append(fields, a.fields...)
	fields = append(fields, b.fields...)
	return New(desc, fields...)
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		if f == nil {
			parts[i] = "null"
			continue
		}
		parts[i] = f.String()
	}
	return strings.Join(parts, "\t")
}
