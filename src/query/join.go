package query

import (
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

// JoinPredicate compares a field of the left tuple with a field of the right
// one.
type JoinPredicate struct {
	Left  int
	Op    tuple.CompareOp
	Right int
}

func (p JoinPredicate) Filter(left, right *tuple.Tuple) bool {
	return left.Field(p.Left).Compare(p.Op, right.Field(p.Right))
}

// Join is a nested loops join. The right child is rewound for every left
// tuple.
type Join struct {
	fetcher

	pred        JoinPredicate
	left, right OpIterator
	desc        *tuple.TupleDesc

	current *tuple.Tuple
}

var _ OpIterator = &Join{}

func NewJoin(pred JoinPredicate, left, right OpIterator) *Join {
	j := &Join{
		pred:  pred,
		left:  left,
		right: right,
		desc:  tuple.Merge(left.TupleDesc(), right.TupleDesc()),
	}
	j.fetchNext = j.fetch
	return j
}

func (j *Join) TupleDesc() *tuple.TupleDesc {
	return j.desc
}

func (j *Join) Open() error {
	if err := j.left.Open(); err != nil {
		return err
	}
	if err := j.right.Open(); err != nil {
		j.left.Close()
		return err
	}

	j.current = nil
	j.open()
	return nil
}

func (j *Join) fetch() (*tuple.Tuple, error) {
	for {
		if j.current == nil {
			ok, err := j.left.HasNext()
			if err != nil || !ok {
				return nil, err
			}
			if j.current, err = j.left.Next(); err != nil {
				return nil, err
			}
			if err := j.right.Rewind(); err != nil {
				return nil, err
			}
		}

		for {
			ok, err := j.right.HasNext()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}

			r, err := j.right.Next()
			if err != nil {
				return nil, err
			}
			if j.pred.Filter(j.current, r) {
				return tuple.Join(j.desc, j.current, r), nil
			}
		}

		j.current = nil
	}
}

func (j *Join) Rewind() error {
	if err := j.rewind(); err != nil {
		return err
	}

	j.current = nil
	if err := j.left.Rewind(); err != nil {
		return err
	}
	return j.right.Rewind()
}

func (j *Join) Close() {
	j.close()
	j.current = nil
	j.left.Close()
	j.right.Close()
}
