package stats

import (
	"math"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/heapdb/src/catalog"
	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/query"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

const (
	DefaultBuckets       = 100
	DefaultIOCostPerPage = 1000
)

// TableStats summarizes one table for cost estimation: its size and a
// histogram per field.
type TableStats struct {
	tableID       common.FileID
	numPages      int
	numTuples     int
	ioCostPerPage int

	desc       *tuple.TupleDesc
	histograms []Histogram
}

// Compute scans the table twice under the transaction: once for the value
// ranges of the int fields and once to fill the histograms.
func Compute(
	txnID common.TxnID,
	c query.Catalog,
	tableID common.FileID,
	buckets int,
	ioCostPerPage int,
) (*TableStats, error) {
	file, err := c.HeapFile(tableID)
	if err != nil {
		return nil, err
	}

	numPages, err := file.NumPages()
	if err != nil {
		return nil, err
	}

	scan, err := query.NewSeqScan(txnID, c, tableID, "")
	if err != nil {
		return nil, err
	}
	if err := scan.Open(); err != nil {
		return nil, err
	}
	defer scan.Close()

	desc := file.TupleDesc()
	mins := make([]int32, desc.NumFields())
	maxs := make([]int32, desc.NumFields())
	for i := range mins {
		mins[i], maxs[i] = math.MaxInt32, math.MinInt32
	}

	numTuples := 0
	err = forEach(scan, func(t *tuple.Tuple) {
		numTuples++
		for i := range desc.NumFields() {
			if v, ok := t.Field(i).(tuple.IntField); ok {
				mins[i] = min(mins[i], int32(v))
				maxs[i] = max(maxs[i], int32(v))
			}
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "collect ranges of %d", tableID)
	}

	histograms := make([]Histogram, desc.NumFields())
	for i := range histograms {
		switch desc.FieldType(i).Type {
		case tuple.IntType:
			if numTuples == 0 {
				mins[i], maxs[i] = 0, 0
			}
			histograms[i] = intColumn{NewIntHistogram(buckets, mins[i], maxs[i])}
		case tuple.StringType:
			histograms[i] = NewStringHistogram(buckets)
		}
	}

	if err := scan.Rewind(); err != nil {
		return nil, err
	}

	err = forEach(scan, func(t *tuple.Tuple) {
		for i, h := range histograms {
			h.Add(t.Field(i))
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fill histograms of %d", tableID)
	}

	return &TableStats{
		tableID:       tableID,
		numPages:      numPages,
		numTuples:     numTuples,
		ioCostPerPage: ioCostPerPage,
		desc:          desc,
		histograms:    histograms,
	}, nil
}

func forEach(it query.OpIterator, fn func(t *tuple.Tuple)) error {
	for {
		ok, err := it.HasNext()
		if err != nil || !ok {
			return err
		}

		t, err := it.Next()
		if err != nil {
			return err
		}
		fn(t)
	}
}

// ComputeAll computes the statistics of every table, keyed by table name.
func ComputeAll(
	txnID common.TxnID,
	c *catalog.Catalog,
	buckets int,
	ioCostPerPage int,
	log common.Logger,
) (map[string]*TableStats, error) {
	log.Debugw("computing table stats", "tables", len(c.TableIDs()))

	res := make(map[string]*TableStats)
	for _, id := range c.TableIDs() {
		name, err := c.TableName(id)
		if err != nil {
			return nil, err
		}

		s, err := Compute(txnID, c, id, buckets, ioCostPerPage)
		if err != nil {
			return nil, errors.Wrapf(err, "stats of %s", name)
		}
		res[name] = s
	}

	return res, nil
}

func (s *TableStats) TableID() common.FileID {
	return s.tableID
}

func (s *TableStats) NumPages() int {
	return s.numPages
}

func (s *TableStats) TotalTuples() int {
	return s.numTuples
}

// EstimateScanCost is the cost of reading every page of the table.
func (s *TableStats) EstimateScanCost() float64 {
	return float64(s.numPages * s.ioCostPerPage)
}

// EstimateTableCardinality is the number of tuples left after applying a
// predicate with the given selectivity.
func (s *TableStats) EstimateTableCardinality(selectivity float64) int {
	return int(selectivity * float64(s.numTuples))
}

// EstimateSelectivity estimates the fraction of tuples whose field satisfies
// "field op constant".
func (s *TableStats) EstimateSelectivity(field int, op tuple.CompareOp, constant tuple.Field) float64 {
	assert.Assert(field >= 0 && field < len(s.histograms), "field %d is out of range", field)
	assert.Assert(
		constant.Type() == s.desc.FieldType(field).Type,
		"field %d is %s, constant is %s",
		field,
		s.desc.FieldType(field),
		constant.Type(),
	)

	return s.histograms[field].Selectivity(op, constant)
}
