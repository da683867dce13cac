package tuple

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
)

type CompareOp uint8

const (
	OpEquals CompareOp = iota
	OpNotEquals
	OpLessThan
	OpLessThanOrEq
	OpGreaterThan
	OpGreaterThanOrEq
	OpLike
)

func (op CompareOp) String() string {
	switch op {
	case OpEquals:
		return "="
	case OpNotEquals:
		return "<>"
	case OpLessThan:
		return "<"
	case OpLessThanOrEq:
		return "<="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEq:
		return ">="
	case OpLike:
		return "LIKE"
	}
	return "?"
}

// ParseCompareOp accepts the textual forms String produces, plus "!=".
func ParseCompareOp(s string) (CompareOp, error) {
	switch strings.ToUpper(s) {
	case "=", "==":
		return OpEquals, nil
	case "<>", "!=":
		return OpNotEquals, nil
	case "<":
		return OpLessThan, nil
	case "<=":
		return OpLessThanOrEq, nil
	case ">":
		return OpGreaterThan, nil
	case ">=":
		return OpGreaterThanOrEq, nil
	case "LIKE":
		return OpLike, nil
	}
	return 0, fmt.Errorf("unknown comparison operator %q", s)
}

type Field interface {
	Type() Type
	// Serialize writes the field into dst, which is exactly ft.Size() bytes.
	Serialize(dst []byte, ft FieldType)
	Compare(op CompareOp, other Field) bool
	String() string
}

type IntField int32

var _ Field = IntField(0)

func (f IntField) Type() Type {
	return IntType
}

func (f IntField) Serialize(dst []byte, ft FieldType) {
	assert.Assert(ft.Type == IntType, "int field serialized as %s", ft)
	binary.BigEndian.PutUint32(dst, uint32(f))
}

func (f IntField) Compare(op CompareOp, other Field) bool {
	o, ok := other.(IntField)
	if !ok {
		return false
	}

	switch op {
	case OpEquals, OpLike:
		return f == o
	case OpNotEquals:
		return f != o
	case OpLessThan:
		return f < o
	case OpLessThanOrEq:
		return f <= o
	case OpGreaterThan:
		return f > o
	case OpGreaterThanOrEq:
		return f >= o
	}
	return false
}

func (f IntField) String() string {
	return strconv.Itoa(int(f))
}

type StringField string

var _ Field = StringField("")

func (f StringField) Type() Type {
	return StringType
}

func (f StringField) Serialize(dst []byte, ft FieldType) {
	assert.Assert(ft.Type == StringType, "string field serialized as %s", ft)

	s := string(f)
	if len(s) > ft.MaxLen {
		s = s[:ft.MaxLen]
	}

	binary.BigEndian.PutUint32(dst, uint32(len(s)))
	body := dst[stringLenPrefixSize:]
	n := copy(body, s)
	clear(body[n:])
}

func (f StringField) Compare(op CompareOp, other Field) bool {
	o, ok := other.(StringField)
	if !ok {
		return false
	}

	c := strings.Compare(string(f), string(o))
	switch op {
	case OpEquals:
		return c == 0
	case OpNotEquals:
		return c != 0
	case OpLessThan:
		return c < 0
	case OpLessThanOrEq:
		return c <= 0
	case OpGreaterThan:
		return c > 0
	case OpGreaterThanOrEq:
		return c >= 0
	case OpLike:
		return strings.Contains(string(f), string(o))
	}
	return false
}

func (f StringField) String() string {
	return string(f)
}

// DeserializeField reads a field of type ft from src.
func DeserializeField(ft FieldType, src []byte) (Field, error) {
	if len(src) < ft.Size() {
		return nil, fmt.Errorf("field %s needs %d bytes, got %d", ft, ft.Size(), len(src))
	}

	switch ft.Type {
	case IntType:
		return IntField(int32(binary.BigEndian.Uint32(src))), nil
	case StringType:
		n := int(binary.BigEndian.Uint32(src))
		if n > ft.MaxLen {
			return nil, fmt.Errorf("string length %d exceeds declared maximum %d", n, ft.MaxLen)
		}
		return StringField(src[stringLenPrefixSize : stringLenPrefixSize+n]), nil
	}

	return nil, fmt.Errorf("unknown field type %d", uint8(ft.Type))
}

// ParseField converts the textual form of a value into a field of type ft.
func ParseField(ft FieldType, s string) (Field, error) {
	switch ft.Type {
	case IntType:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse int %q: %w", s, err)
		}
		return IntField(int32(v)), nil
	case StringType:
		if len(s) > ft.MaxLen {
			return nil, fmt.Errorf("string %q is longer than %d bytes", s, ft.MaxLen)
		}
		return StringField(s), nil
	}

	return nil, fmt.Errorf("unknown field type %d", uint8(ft.Type))
}
