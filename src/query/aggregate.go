package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

// NoGrouping aggregates the whole input into a single group.
const NoGrouping = -1

var ErrUnsupportedAggregate = errors.New("unsupported aggregate")

type AggOp uint8

const (
	AggMin AggOp = iota
	AggMax
	AggSum
	AggAvg
	AggCount
)

var aggOpNames = [...]string{
	AggMin:   "min",
	AggMax:   "max",
	AggSum:   "sum",
	AggAvg:   "avg",
	AggCount: "count",
}

func (op AggOp) String() string {
	assert.Assert(int(op) < len(aggOpNames), "unknown aggregate op %d", uint8(op))
	return aggOpNames[op]
}

func ParseAggOp(s string) (AggOp, error) {
	for op, name := range aggOpNames {
		if strings.EqualFold(name, s) {
			return AggOp(op), nil //nolint:gosec
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedAggregate, s)
}

// aggState folds the values of one group.
type aggState struct {
	count int64
	sum   int64
	min   int64
	max   int64
}

func newAggState() *aggState {
	return &aggState{min: math.MaxInt64, max: math.MinInt64}
}

func (s *aggState) merge(op AggOp, f tuple.Field) {
	s.count++
	if op == AggCount {
		return
	}

	v := int64(assert.Cast[tuple.IntField](f))
	switch op {
	case AggMin:
		s.min = min(s.min, v)
	case AggMax:
		s.max = max(s.max, v)
	case AggSum, AggAvg:
		s.sum += v
	}
}

func (s *aggState) result(op AggOp) tuple.IntField {
	var v int64
	switch op {
	case AggMin:
		v = s.min
	case AggMax:
		v = s.max
	case AggSum:
		v = s.sum
	case AggAvg:
		v = s.sum / s.count
	case AggCount:
		v = s.count
	}
	return tuple.IntField(int32(v)) //nolint:gosec
}

// Aggregate computes one aggregate over its child, optionally grouped by a
// field. Output tuples are (group, value), or (value) without grouping.
// String fields can only be counted.
type Aggregate struct {
	fetcher

	child      OpIterator
	aggField   int
	groupField int
	op         AggOp
	desc       *tuple.TupleDesc

	results []*tuple.Tuple
	pos     int
}

var _ OpIterator = &Aggregate{}

func NewAggregate(child OpIterator, aggField int, groupField int, op AggOp) (*Aggregate, error) {
	childDesc := child.TupleDesc()
	if aggField < 0 || aggField >= childDesc.NumFields() {
		return nil, errors.Errorf("aggregate field %d is out of range", aggField)
	}
	if groupField != NoGrouping && (groupField < 0 || groupField >= childDesc.NumFields()) {
		return nil, errors.Errorf("group field %d is out of range", groupField)
	}

	if childDesc.FieldType(aggField).Type == tuple.StringType && op != AggCount {
		return nil, fmt.Errorf("%w: %s over a string field", ErrUnsupportedAggregate, op)
	}

	var (
		types []tuple.FieldType
		names []string
	)
	if groupField != NoGrouping {
		types = append(types, childDesc.FieldType(groupField))
		names = append(names, childDesc.FieldName(groupField))
	}
	types = append(types, tuple.Int())
	names = append(names, fmt.Sprintf("%s(%s)", op, childDesc.FieldName(aggField)))

	a := &Aggregate{
		child:      child,
		aggField:   aggField,
		groupField: groupField,
		op:         op,
		desc:       tuple.NewTupleDesc(types, names),
	}
	a.fetchNext = a.fetch

	return a, nil
}

func (a *Aggregate) AggregateOp() AggOp {
	return a.op
}

func (a *Aggregate) GroupField() int {
	return a.groupField
}

func (a *Aggregate) AggregateField() int {
	return a.aggField
}

func (a *Aggregate) TupleDesc() *tuple.TupleDesc {
	return a.desc
}

// Open consumes the whole child.
func (a *Aggregate) Open() error {
	results, err := a.compute()
	if err != nil {
		return err
	}

	a.results = results
	a.pos = 0
	a.open()
	return nil
}

func (a *Aggregate) compute() ([]*tuple.Tuple, error) {
	if err := a.child.Open(); err != nil {
		return nil, err
	}
	defer a.child.Close()

	var order []tuple.Field
	groups := map[tuple.Field]*aggState{}

	for {
		ok, err := a.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		t, err := a.child.Next()
		if err != nil {
			return nil, err
		}

		var key tuple.Field = tuple.IntField(0)
		if a.groupField != NoGrouping {
			key = t.Field(a.groupField)
		}

		state, ok := groups[key]
		if !ok {
			state = newAggState()
			groups[key] = state
			order = append(order, key)
		}
		state.merge(a.op, t.Field(a.aggField))
	}

	results := make([]*tuple.Tuple, 0, len(order))
	for _, key := range order {
		value := groups[key].result(a.op)
		if a.groupField == NoGrouping {
			results = append(results, tuple.New(a.desc, value))
			continue
		}
		results = append(results, tuple.New(a.desc, key, value))
	}

	return results, nil
}

func (a *Aggregate) fetch() (*tuple.Tuple, error) {
	if a.pos >= len(a.results) {
		return nil, nil
	}

	t := a.results[a.pos]
	a.pos++
	return t, nil
}

func (a *Aggregate) Rewind() error {
	if err := a.rewind(); err != nil {
		return err
	}
	a.pos = 0
	return nil
}

func (a *Aggregate) Close() {
	a.close()
	a.results = nil
}
