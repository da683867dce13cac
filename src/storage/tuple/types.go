package tuple

import (
	"fmt"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
)

type Type uint8

const (
	IntType Type = iota
	StringType
)

const (
	intSize = 4
	// string slots carry a big-endian length prefix before the padded bytes
	stringLenPrefixSize = 4

	DefaultStringLen = 128
)

func (t Type) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	}

	assert.Assert(false, "unknown field type %d", uint8(t))
	return ""
}

// FieldType is a column type together with its declared width.
type FieldType struct {
	Type   Type
	MaxLen int
}

func Int() FieldType {
	return FieldType{Type: IntType}
}

func String(maxLen int) FieldType {
	assert.Assert(maxLen > 0, "string max length must be positive, got %d", maxLen)
	return FieldType{Type: StringType, MaxLen: maxLen}
}

// Size is the number of bytes the field occupies inside a tuple slot.
func (f FieldType) Size() int {
	switch f.Type {
	case IntType:
		return intSize
	case StringType:
		return stringLenPrefixSize + f.MaxLen
	}

	assert.Assert(false, "unknown field type %d", uint8(f.Type))
	return 0
}

func (f FieldType) String() string {
	if f.Type == StringType {
		return fmt.Sprintf("string(%d)", f.MaxLen)
	}
	return f.Type.String()
}
