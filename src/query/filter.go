package query

import (
	"fmt"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

// Predicate compares a field of a tuple against a constant operand.
type Predicate struct {
	Field   int
	Op      tuple.CompareOp
	Operand tuple.Field
}

func (p Predicate) Filter(t *tuple.Tuple) bool {
	return t.Field(p.Field).Compare(p.Op, p.Operand)
}

func (p Predicate) String() string {
	return fmt.Sprintf("$%d %s %s", p.Field, p.Op, p.Operand)
}

// Filter passes through the child tuples that satisfy the predicate.
type Filter struct {
	fetcher

	pred  Predicate
	child OpIterator
}

var _ OpIterator = &Filter{}

func NewFilter(pred Predicate, child OpIterator) *Filter {
	assert.Assert(
		pred.Field >= 0 && pred.Field < child.TupleDesc().NumFields(),
		"predicate field %d is out of range",
		pred.Field,
	)

	f := &Filter{pred: pred, child: child}
	f.fetchNext = f.fetch
	return f
}

func (f *Filter) Predicate() Predicate {
	return f.pred
}

func (f *Filter) TupleDesc() *tuple.TupleDesc {
	return f.child.TupleDesc()
}

func (f *Filter) Open() error {
	if err := f.child.Open(); err != nil {
		return err
	}
	f.open()
	return nil
}

func (f *Filter) fetch() (*tuple.Tuple, error) {
	for {
		ok, err := f.child.HasNext()
		if err != nil || !ok {
			return nil, err
		}

		t, err := f.child.Next()
		if err != nil {
			return nil, err
		}

		if f.pred.Filter(t) {
			return t, nil
		}
	}
}

func (f *Filter) Rewind() error {
	if err := f.rewind(); err != nil {
		return err
	}
	return f.child.Rewind()
}

func (f *Filter) Close() {
	f.close()
	f.child.Close()
}
