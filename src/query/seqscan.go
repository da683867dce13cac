package query

import (
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/heap"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

// SeqScan reads every tuple of a table. Output fields are named alias.field
// and keep the record id of the stored tuple, so they can be deleted.
type SeqScan struct {
	fetcher

	tableID common.FileID
	alias   string
	desc    *tuple.TupleDesc
	it      *heap.Iterator
}

var _ OpIterator = &SeqScan{}

// NewSeqScan uses the table name as the alias when alias is empty.
func NewSeqScan(
	txnID common.TxnID,
	catalog Catalog,
	tableID common.FileID,
	alias string,
) (*SeqScan, error) {
	file, err := catalog.HeapFile(tableID)
	if err != nil {
		return nil, err
	}

	if alias == "" {
		if alias, err = catalog.TableName(tableID); err != nil {
			return nil, err
		}
	}

	s := &SeqScan{
		tableID: tableID,
		alias:   alias,
		desc:    file.TupleDesc().WithPrefix(alias),
		it:      file.Iterator(txnID),
	}
	s.fetchNext = s.fetch

	return s, nil
}

func (s *SeqScan) TableID() common.FileID {
	return s.tableID
}

func (s *SeqScan) Alias() string {
	return s.alias
}

func (s *SeqScan) TupleDesc() *tuple.TupleDesc {
	return s.desc
}

func (s *SeqScan) Open() error {
	if err := s.it.Open(); err != nil {
		return err
	}
	s.open()
	return nil
}

func (s *SeqScan) fetch() (*tuple.Tuple, error) {
	ok, err := s.it.HasNext()
	if err != nil || !ok {
		return nil, err
	}

	stored, err := s.it.Next()
	if err != nil {
		return nil, err
	}

	t := tuple.New(s.desc, stored.Fields()...)
	if rid, ok := stored.RecordID(); ok {
		t.SetRecordID(rid)
	}
	return t, nil
}

func (s *SeqScan) Rewind() error {
	if err := s.rewind(); err != nil {
		return err
	}
	return s.it.Rewind()
}

func (s *SeqScan) Close() {
	s.close()
	s.it.Close()
}
