package stats

import (
	"fmt"
	"strings"

	"github.com/Blackdeer1524/heapdb/src/pkg/assert"
	"github.com/Blackdeer1524/heapdb/src/storage/tuple"
)

// Histogram estimates the fraction of a column's values that satisfy a
// comparison with a constant.
type Histogram interface {
	Add(f tuple.Field)
	Selectivity(op tuple.CompareOp, f tuple.Field) float64
}

// IntHistogram is an equi-width histogram over [min, max]. Values are
// assumed to be spread uniformly inside a bucket.
type IntHistogram struct {
	min   int64
	max   int64
	width int64

	buckets []int
	total   int
}

func NewIntHistogram(buckets int, minVal, maxVal int32) *IntHistogram {
	assert.Assert(buckets > 0, "histogram needs at least one bucket")
	assert.Assert(minVal <= maxVal, "empty histogram range [%d, %d]", minVal, maxVal)

	span := int64(maxVal) - int64(minVal) + 1
	width := (span + int64(buckets) - 1) / int64(buckets)

	return &IntHistogram{
		min:     int64(minVal),
		max:     int64(maxVal),
		width:   width,
		buckets: make([]int, (span+width-1)/width),
	}
}

func (h *IntHistogram) bucket(v int64) int {
	return int((v - h.min) / h.width)
}

// bounds returns the inclusive value range of the bucket. The last bucket
// can be narrower than the others.
func (h *IntHistogram) bounds(b int) (int64, int64) {
	lo := h.min + int64(b)*h.width
	return lo, min(lo+h.width-1, h.max)
}

// AddValue records v. Values outside the histogram range count towards the
// nearest edge bucket.
func (h *IntHistogram) AddValue(v int32) {
	clamped := min(max(int64(v), h.min), h.max)
	h.buckets[h.bucket(clamped)]++
	h.total++
}

func (h *IntHistogram) Total() int {
	return h.total
}

// EstimateSelectivity returns the estimated fraction of the recorded values
// x for which "x op v" holds. LIKE is treated as equality.
func (h *IntHistogram) EstimateSelectivity(op tuple.CompareOp, v int32) float64 {
	if h.total == 0 {
		return 0
	}

	var sel float64
	switch op {
	case tuple.OpEquals, tuple.OpLike:
		sel = h.equal(int64(v))
	case tuple.OpNotEquals:
		sel = 1 - h.equal(int64(v))
	case tuple.OpLessThan:
		sel = h.less(int64(v))
	case tuple.OpLessThanOrEq:
		sel = h.less(int64(v)) + h.equal(int64(v))
	case tuple.OpGreaterThan:
		sel = h.greater(int64(v))
	case tuple.OpGreaterThanOrEq:
		sel = h.greater(int64(v)) + h.equal(int64(v))
	default:
		assert.Assert(false, "unknown comparison %d", op)
	}

	return min(max(sel, 0), 1)
}

func (h *IntHistogram) equal(v int64) float64 {
	if v < h.min || v > h.max {
		return 0
	}

	b := h.bucket(v)
	lo, hi := h.bounds(b)
	return float64(h.buckets[b]) / float64(hi-lo+1) / float64(h.total)
}

func (h *IntHistogram) less(v int64) float64 {
	if v <= h.min {
		return 0
	}
	if v > h.max {
		return 1
	}

	b := h.bucket(v)
	lo, hi := h.bounds(b)

	count := float64(h.buckets[b]) * float64(v-lo) / float64(hi-lo+1)
	for _, n := range h.buckets[:b] {
		count += float64(n)
	}
	return count / float64(h.total)
}

func (h *IntHistogram) greater(v int64) float64 {
	if v < h.min {
		return 1
	}
	if v >= h.max {
		return 0
	}

	b := h.bucket(v)
	lo, hi := h.bounds(b)

	count := float64(h.buckets[b]) * float64(hi-v) / float64(hi-lo+1)
	for _, n := range h.buckets[b+1:] {
		count += float64(n)
	}
	return count / float64(h.total)
}

// AvgSelectivity is the expected selectivity of an equality predicate with
// a constant drawn from the recorded values.
func (h *IntHistogram) AvgSelectivity() float64 {
	if h.total == 0 {
		return 0
	}

	var sum float64
	for b, n := range h.buckets {
		lo, hi := h.bounds(b)
		share := float64(n) / float64(h.total)
		sum += share * share / float64(hi-lo+1)
	}
	return sum
}

func (h *IntHistogram) String() string {
	var sb strings.Builder
	for b, n := range h.buckets {
		lo, hi := h.bounds(b)
		_, _ = fmt.Fprintf(&sb, "[%d, %d]: %d\n", lo, hi, n)
	}
	return sb.String()
}

type intColumn struct {
	*IntHistogram
}

func (c intColumn) Add(f tuple.Field) {
	c.AddValue(int32(assert.Cast[tuple.IntField](f)))
}

func (c intColumn) Selectivity(op tuple.CompareOp, f tuple.Field) float64 {
	return c.EstimateSelectivity(op, int32(assert.Cast[tuple.IntField](f)))
}

// stringPrefixLen bytes of a string are mapped onto the int range, so the
// histogram orders strings by their prefix only.
const stringPrefixLen = 4

var maxStringKey = stringKey("zzzz")

// stringKey keeps the lexicographic order of ASCII strings whose bytes are at
// most 'z'.
func stringKey(s string) int32 {
	var v int32
	for i := range stringPrefixLen {
		var c byte
		if i < len(s) {
			c = min(s[i], 'z')
		}
		v = v<<8 | int32(c)
	}
	return v
}

// StringHistogram estimates string predicates through an IntHistogram over
// the string prefixes.
type StringHistogram struct {
	ints *IntHistogram
}

func NewStringHistogram(buckets int) *StringHistogram {
	return &StringHistogram{ints: NewIntHistogram(buckets, 0, maxStringKey)}
}

func (h *StringHistogram) AddValue(s string) {
	h.ints.AddValue(stringKey(s))
}

func (h *StringHistogram) EstimateSelectivity(op tuple.CompareOp, s string) float64 {
	return h.ints.EstimateSelectivity(op, stringKey(s))
}

func (h *StringHistogram) Add(f tuple.Field) {
	h.AddValue(string(assert.Cast[tuple.StringField](f)))
}

func (h *StringHistogram) Selectivity(op tuple.CompareOp, f tuple.Field) float64 {
	return h.EstimateSelectivity(op, string(assert.Cast[tuple.StringField](f)))
}

var (
	_ Histogram = intColumn{}
	_ Histogram = &StringHistogram{}
)
