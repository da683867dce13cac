package query

import (
	"fmt"

	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/heap"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

// OpIterator is the protocol every operator implements. HasNext, Next and
// Rewind fail with common.ErrIllegalState unless the iterator is open. Next
// fails with common.ErrNotFound once the iterator is exhausted.
type OpIterator interface {
	Open() error
	HasNext() (bool, error)
	Next() (*tuple.Tuple, error)
	Rewind() error
	Close()
	TupleDesc() *tuple.TupleDesc
}

// Catalog is what scans and inserts need to resolve tables.
type Catalog interface {
	HeapFile(id common.FileID) (*heap.File, error)
	TableName(id common.FileID) (string, error)
}

// Mutator is the only way operators modify tables.
type Mutator interface {
	InsertTuple(txnID common.TxnID, fileID common.FileID, t *tuple.Tuple) error
	DeleteTuple(txnID common.TxnID, t *tuple.Tuple) error
}

var (
	_ OpIterator = &heap.Iterator{}
)

// fetcher buffers one tuple ahead of the consumer. fetchNext returns nil
// once the operator has nothing more to produce.
type fetcher struct {
	opened    bool
	next      *tuple.Tuple
	fetchNext func() (*tuple.Tuple, error)
}

func (f *fetcher) open() {
	f.opened = true
	f.next = nil
}

func (f *fetcher) close() {
	f.opened = false
	f.next = nil
}

func (f *fetcher) checkOpen() error {
	if !f.opened {
		return fmt.Errorf("%w: operator is not open", common.ErrIllegalState)
	}
	return nil
}

func (f *fetcher) rewind() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	f.next = nil
	return nil
}

func (f *fetcher) HasNext() (bool, error) {
	if err := f.checkOpen(); err != nil {
		return false, err
	}

	if f.next == nil {
		t, err := f.fetchNext()
		if err != nil {
			return false, err
		}
		f.next = t
	}

	return f.next != nil, nil
}

func (f *fetcher) Next() (*tuple.Tuple, error) {
	ok, err := f.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no more tuples", common.ErrNotFound)
	}

	t := f.next
	f.next = nil
	return t, nil
}

// Collect drains an open iterator.
func Collect(it OpIterator) ([]*tuple.Tuple, error) {
	var res []*tuple.Tuple
	for {
		ok, err := it.HasNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			return res, nil
		}

		t, err := it.Next()
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
}
