package stats

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Blackdeer1524/heapdb/src/bufferpool"
	"github.com/Blackdeer1524/heapdb/src/catalog"
	"github.com/Blackdeer1524/heapdb/src/pkg/common"
	"github.com/Blackdeer1524/heapdb/src/storage/heap"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
	"github.com/Blackdeer1524/heapdb/src/txns"
)

const delta = 1e-9

func TestIntHistogramUniform(t *testing.T) {
	h := NewIntHistogram(10, 1, 10)
	for v := range int32(10) {
		h.AddValue(v + 1)
	}
	require.Equal(t, 10, h.Total())

	assert.InDelta(t, 0.1, h.EstimateSelectivity(tuple.OpEquals, 5), delta)
	assert.InDelta(t, 0.9, h.EstimateSelectivity(tuple.OpNotEquals, 5), delta)
	assert.InDelta(t, 0.4, h.EstimateSelectivity(tuple.OpLessThan, 5), delta)
	assert.InDelta(t, 0.5, h.EstimateSelectivity(tuple.OpLessThanOrEq, 5), delta)
	assert.InDelta(t, 0.5, h.EstimateSelectivity(tuple.OpGreaterThan, 5), delta)
	assert.InDelta(t, 0.6, h.EstimateSelectivity(tuple.OpGreaterThanOrEq, 5), delta)
}

func TestIntHistogramOutOfRange(t *testing.T) {
	h := NewIntHistogram(4, 10, 20)
	for v := range int32(11) {
		h.AddValue(v + 10)
	}

	assert.Zero(t, h.EstimateSelectivity(tuple.OpEquals, 9))
	assert.Zero(t, h.EstimateSelectivity(tuple.OpLessThan, 10))
	assert.Zero(t, h.EstimateSelectivity(tuple.OpGreaterThan, 20))
	assert.InDelta(t, 1, h.EstimateSelectivity(tuple.OpLessThan, 21), delta)
	assert.InDelta(t, 1, h.EstimateSelectivity(tuple.OpGreaterThan, 9), delta)
	assert.InDelta(t, 1, h.EstimateSelectivity(tuple.OpNotEquals, 100), delta)
}

func TestIntHistogramSkewed(t *testing.T) {
	h := NewIntHistogram(10, 0, 99)
	for i := range 90 {
		h.AddValue(int32(i % 10)) //nolint:gosec
	}
	for i := range 10 {
		h.AddValue(int32(90 + i)) //nolint:gosec
	}

	assert.InDelta(t, 0.9, h.EstimateSelectivity(tuple.OpLessThan, 10), delta)
	assert.InDelta(t, 0.1, h.EstimateSelectivity(tuple.OpGreaterThanOrEq, 90), delta)
	assert.Zero(t, h.EstimateSelectivity(tuple.OpEquals, 50))
	assert.Greater(t, h.AvgSelectivity(), 0.0)
}

func TestIntHistogramPartitionsValues(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	h := NewIntHistogram(7, -50, 100)
	for range 1000 {
		h.AddValue(int32(rnd.Intn(151) - 50)) //nolint:gosec
	}

	for v := int32(-60); v <= 110; v++ {
		less := h.EstimateSelectivity(tuple.OpLessThan, v)
		equal := h.EstimateSelectivity(tuple.OpEquals, v)
		greater := h.EstimateSelectivity(tuple.OpGreaterThan, v)
		assert.InDelta(t, 1, less+equal+greater, 1e-6, "v = %d", v)

		assert.InDelta(t, less+equal, h.EstimateSelectivity(tuple.OpLessThanOrEq, v), 1e-6)
		assert.LessOrEqual(t, h.EstimateSelectivity(tuple.OpLessThan, v), h.EstimateSelectivity(tuple.OpLessThan, v+1))
	}
}

func TestIntHistogramEmpty(t *testing.T) {
	h := NewIntHistogram(DefaultBuckets, 0, 0)
	assert.Zero(t, h.EstimateSelectivity(tuple.OpEquals, 0))
	assert.Zero(t, h.EstimateSelectivity(tuple.OpGreaterThan, -1))
	assert.Zero(t, h.AvgSelectivity())
}

func TestStringHistogram(t *testing.T) {
	h := NewStringHistogram(DefaultBuckets)
	for _, s := range []string{"apple", "banana", "cherry", "zebra"} {
		h.AddValue(s)
	}

	assert.Zero(t, h.EstimateSelectivity(tuple.OpLessThan, ""))
	assert.Zero(t, h.EstimateSelectivity(tuple.OpGreaterThan, "zzzz"))
	assert.InDelta(t, 1, h.EstimateSelectivity(tuple.OpLessThanOrEq, "zzzz"), delta)
	assert.Less(t, h.EstimateSelectivity(tuple.OpLessThan, "a"), h.EstimateSelectivity(tuple.OpLessThan, "d"))
	assert.InDelta(
		t,
		1,
		h.EstimateSelectivity(tuple.OpLessThan, "m")+
			h.EstimateSelectivity(tuple.OpEquals, "m")+
			h.EstimateSelectivity(tuple.OpGreaterThan, "m"),
		1e-6,
	)
}

type env struct {
	pool    *bufferpool.Manager
	catalog *catalog.Catalog
	file    *heap.File
}

func peopleDesc() *tuple.TupleDesc {
	return tuple.NewTupleDesc(
		[]tuple.FieldType{tuple.Int(), tuple.String(16), tuple.Int()},
		[]string{"id", "name", "age"},
	)
}

func setup(t *testing.T, rows int) env {
	log := zaptest.NewLogger(t).Sugar()

	c := catalog.New(log)
	pool, err := bufferpool.New(8, bufferpool.NewLRUReplacer(), c, txns.NewLockManager(log), log)
	require.NoError(t, err)

	file, err := heap.NewFile(afero.NewMemMapFs(), "/db/people.dat", peopleDesc(), 512, pool, log)
	require.NoError(t, err)
	c.AddTable(file, "people", "id")

	for i := range rows {
		row := tuple.New(
			peopleDesc(),
			tuple.IntField(int32(i)), //nolint:gosec
			tuple.StringField(fmt.Sprintf("n%03d", i)),
			tuple.IntField(int32(i%10)), //nolint:gosec
		)
		require.NoError(t, pool.InsertTuple(1, file.FileID(), row))
	}
	require.NoError(t, pool.TransactionComplete(1, true))

	return env{pool: pool, catalog: c, file: file}
}

func TestTableStats(t *testing.T) {
	e := setup(t, 100)

	s, err := Compute(2, e.catalog, e.file.FileID(), DefaultBuckets, DefaultIOCostPerPage)
	require.NoError(t, err)

	pages, err := e.file.NumPages()
	require.NoError(t, err)
	require.Greater(t, pages, 1)

	assert.Equal(t, e.file.FileID(), s.TableID())
	assert.Equal(t, 100, s.TotalTuples())
	assert.Equal(t, pages, s.NumPages())
	assert.InDelta(t, float64(pages*DefaultIOCostPerPage), s.EstimateScanCost(), delta)

	sel := s.EstimateSelectivity(0, tuple.OpLessThan, tuple.IntField(50))
	assert.InDelta(t, 0.5, sel, delta)
	assert.Equal(t, 50, s.EstimateTableCardinality(sel))

	assert.InDelta(t, 0.1, s.EstimateSelectivity(2, tuple.OpEquals, tuple.IntField(3)), delta)
	assert.Zero(t, s.EstimateSelectivity(2, tuple.OpGreaterThan, tuple.IntField(9)))

	below := s.EstimateSelectivity(1, tuple.OpLessThan, tuple.StringField("n050"))
	assert.Greater(t, below, 0.0)
	assert.LessOrEqual(t, below, 1.0)

	// the scans ran under the transaction and keep their locks until it ends
	pageIdent := common.PageIdentity{FileID: e.file.FileID(), PageID: 0}
	assert.True(t, e.pool.HoldsLock(2, pageIdent))
	require.NoError(t, e.pool.TransactionComplete(2, true))
}

func TestTableStatsEmptyTable(t *testing.T) {
	e := setup(t, 0)

	s, err := Compute(2, e.catalog, e.file.FileID(), DefaultBuckets, DefaultIOCostPerPage)
	require.NoError(t, err)

	assert.Zero(t, s.TotalTuples())
	assert.Zero(t, s.NumPages())
	assert.Zero(t, s.EstimateSelectivity(0, tuple.OpEquals, tuple.IntField(1)))
	assert.Zero(t, s.EstimateTableCardinality(1))
}

func TestComputeAll(t *testing.T) {
	e := setup(t, 20)

	all, err := ComputeAll(2, e.catalog, 10, 1, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 20, all["people"].TotalTuples())

	_, err = Compute(2, e.catalog, common.FileID(12345), 10, 1)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
