package heap

import (
	"fmt"

	"github.com/Blackdeer1524/heapdb/src/bufferpool"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

// Iterator scans a heap file page by page in ascending page order, fetching
// every page read-only through the buffer pool. Pages are fetched lazily, so
// a scan only locks the pages it has reached.
type Iterator struct {
	file  *File
	txnID common.TxnID

	opened bool
	nextPg common.PageID
	buffer []*tuple.Tuple
}

func (it *Iterator) Open() error {
	it.opened = true
	it.nextPg = 0
	it.buffer = nil
	return nil
}

func (it *Iterator) HasNext() (bool, error) {
	if !it.opened {
		return false, fmt.Errorf("%w: iterator is not open", common.ErrIllegalState)
	}

	for len(it.buffer) == 0 {
		numPages, err := it.file.NumPages()
		if err != nil {
			return false, err
		}
		if it.nextPg >= common.PageID(numPages) { //nolint:gosec
			return false, nil
		}

		p, err := it.file.fetchPage(it.txnID, it.nextPg, bufferpool.ReadOnly)
		if err != nil {
			return false, err
		}

		it.buffer = p.Tuples()
		it.nextPg++
	}

	return true, nil
}

// Next returns common.ErrNotFound once the scan is exhausted.
func (it *Iterator) Next() (*tuple.Tuple, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no more tuples", common.ErrNotFound)
	}

	t := it.buffer[0]
	it.buffer = it.buffer[1:]
	return t, nil
}

func (it *Iterator) Rewind() error {
	if !it.opened {
		return fmt.Errorf("%w: iterator is not open", common.ErrIllegalState)
	}

	it.nextPg = 0
	it.buffer = nil
	return nil
}

func (it *Iterator) Close() {
	it.opened = false
	it.buffer = nil
}

func (it *Iterator) TupleDesc() *tuple.TupleDesc {
	return it.file.desc
}
