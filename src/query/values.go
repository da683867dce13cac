package query

import (
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

// Values iterates over a fixed list of tuples.
type Values struct {
	fetcher

	desc   *tuple.TupleDesc
	tuples []*tuple.Tuple
	pos    int
}

var _ OpIterator = &Values{}

func NewValues(desc *tuple.TupleDesc, tuples ...*tuple.Tuple) *Values {
	v := &Values{desc: desc, tuples: tuples}
	v.fetchNext = v.fetch
	return v
}

func (v *Values) TupleDesc() *tuple.TupleDesc {
	return v.desc
}

func (v *Values) Open() error {
	v.pos = 0
	v.open()
	return nil
}

func (v *Values) fetch() (*tuple.Tuple, error) {
	if v.pos >= len(v.tuples) {
		return nil, nil
	}
	t := v.tuples[v.pos]
	v.pos++
	return t, nil
}

func (v *Values) Rewind() error {
	if err := v.rewind(); err != nil {
		return err
	}
	v.pos = 0
	return nil
}

func (v *Values) Close() {
	v.close()
}
