package query

import (
	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/heap"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

func countDesc() *tuple.TupleDesc {
	return tuple.NewTupleDesc([]tuple.FieldType{tuple.Int()}, []string{"count"})
}

// modifier runs apply over every child tuple the first time it is asked for
// a tuple and then yields a single tuple holding the number of affected
// tuples. Rewinding yields the same count again without reapplying.
type modifier struct {
	fetcher

	child OpIterator
	apply func(t *tuple.Tuple) error

	result  *tuple.Tuple
	emitted bool
}

func newModifier(child OpIterator, apply func(t *tuple.Tuple) error) *modifier {
	m := &modifier{child: child, apply: apply}
	m.fetchNext = m.fetch
	return m
}

func (m *modifier) TupleDesc() *tuple.TupleDesc {
	return countDesc()
}

func (m *modifier) Open() error {
	m.open()
	m.emitted = false
	return nil
}

func (m *modifier) run() (*tuple.Tuple, error) {
	if err := m.child.Open(); err != nil {
		return nil, err
	}
	defer m.child.Close()

	count := 0
	for {
		ok, err := m.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		t, err := m.child.Next()
		if err != nil {
			return nil, err
		}

		if err := m.apply(t); err != nil {
			return nil, err
		}
		count++
	}

	return tuple.New(countDesc(), tuple.IntField(int32(count))), nil //nolint:gosec
}

func (m *modifier) fetch() (*tuple.Tuple, error) {
	if m.emitted {
		return nil, nil
	}

	if m.result == nil {
		result, err := m.run()
		if err != nil {
			return nil, err
		}
		m.result = result
	}

	m.emitted = true
	return m.result, nil
}

func (m *modifier) Rewind() error {
	if err := m.rewind(); err != nil {
		return err
	}
	m.emitted = false
	return nil
}

func (m *modifier) Close() {
	m.close()
}

// Insert adds every tuple of its child to a table.
type Insert struct {
	*modifier
}

var _ OpIterator = &Insert{}

func NewInsert(
	txnID common.TxnID,
	pool Mutator,
	catalog Catalog,
	child OpIterator,
	tableID common.FileID,
) (*Insert, error) {
	file, err := catalog.HeapFile(tableID)
	if err != nil {
		return nil, err
	}

	if !child.TupleDesc().Equals(file.TupleDesc()) {
		return nil, errors.Wrapf(heap.ErrDescMismatch, "insert into table %d", tableID)
	}

	apply := func(t *tuple.Tuple) error {
		// the child's names may be qualified differently than the table's
		stored := tuple.New(file.TupleDesc(), t.Fields()...)
		return pool.InsertTuple(txnID, tableID, stored)
	}

	return &Insert{modifier: newModifier(child, apply)}, nil
}

// Delete removes every tuple of its child from the table it was read from.
type Delete struct {
	*modifier
}

var _ OpIterator = &Delete{}

func NewDelete(txnID common.TxnID, pool Mutator, child OpIterator) *Delete {
	apply := func(t *tuple.Tuple) error {
		return pool.DeleteTuple(txnID, t)
	}

	return &Delete{modifier: newModifier(child, apply)}
}
